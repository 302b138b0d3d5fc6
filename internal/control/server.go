package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/turtacn/lspbridge/internal/connection"
	"github.com/turtacn/lspbridge/pkg/consts"
	"github.com/turtacn/lspbridge/pkg/logger"
)

const (
	// maxMessageSize is the maximum size of a request (1MB).
	maxMessageSize = 1024 * 1024
	// readTimeout is the timeout for reading a request from a client.
	readTimeout = 30 * time.Second
	// socketPermissions are the file permissions for the Unix socket.
	socketPermissions = 0600
)

// Commands is what the control socket can invoke.
type Commands interface {
	StartLanguageServer(ctx context.Context) error
	StopLanguageServer(ctx context.Context) error
	CheckStatus(ctx context.Context) error
	Status(ctx context.Context) (connection.StatusView, error)
}

type Server struct {
	sockPath string
	commands Commands

	mu       sync.RWMutex
	listener net.Listener
	running  bool
	ready    chan struct{}
	log      logger.Logger
}

func NewServer(sockPath string, commands Commands) *Server {
	return &Server{
		sockPath: sockPath,
		commands: commands,
		ready:    make(chan struct{}),
		log:      logger.Named("control"),
	}
}

// Ready is closed once the socket accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start listens on the socket and serves requests until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.sockPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	// Clean up stale socket if it exists
	_ = os.Remove(s.sockPath)

	listener, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.sockPath, socketPermissions); err != nil {
		_ = listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()
	close(s.ready)

	s.log.Info("control socket listening", "socket", s.sockPath)

	go s.serve(ctx)

	<-ctx.Done()
	return s.Stop()
}

// Stop closes the listener and removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.log.Error("error closing listener", "error", err)
		}
		s.listener = nil
	}
	_ = os.Remove(s.sockPath)

	s.log.Info("control socket stopped")
	return nil
}

func (s *Server) serve(ctx context.Context) {
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.mu.RLock()
				running := s.running
				s.mu.RUnlock()
				if !running {
					return
				}
				s.log.Error("accept error", "error", err)
				continue
			}
		}

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		s.log.Error("set read deadline error", "error", err)
		return
	}

	decoder := json.NewDecoder(io.LimitReader(conn, maxMessageSize))
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(Response{Error: fmt.Sprintf("decode error: %v", err)})
		return
	}

	resp := s.handleRequest(ctx, &req)
	resp.ID = req.ID
	_ = encoder.Encode(resp)
}

func (s *Server) handleRequest(ctx context.Context, req *Request) Response {
	s.log.Debug("control request", "method", req.Method)

	var err error
	switch req.Method {
	case consts.CommandStartServer:
		err = s.commands.StartLanguageServer(ctx)
	case consts.CommandStopServer:
		err = s.commands.StopLanguageServer(ctx)
	case consts.CommandCheckStatus:
		err = s.commands.CheckStatus(ctx)
	case consts.CommandStatus:
		view, err := s.commands.Status(ctx)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{Result: view}
	default:
		return Response{Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{Result: AckResult{OK: true}}
}

// Personal.AI order the ending
