// Package lspclient maintains the TCP connection to a GDScript language
// server and reports its status. It does not interpret the analysis
// protocol beyond message framing.
package lspclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/turtacn/lspbridge/internal/monitor"
	"github.com/turtacn/lspbridge/pkg/consts"
	lberrors "github.com/turtacn/lspbridge/pkg/errors"
	"github.com/turtacn/lspbridge/pkg/logger"
)

// ErrAlreadyStarted is returned by Start on a client that is already started.
var ErrAlreadyStarted = errors.New("language client already started")

// StatusHandler receives connection status changes.
type StatusHandler func(consts.ClientStatus)

// MessageHandler receives framed messages from the server once the client is started.
type MessageHandler func(json.RawMessage)

// DialFunc opens the transport connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Client struct {
	mu           sync.Mutex
	host         string
	embeddedPort int
	port         int
	started      bool
	conn         net.Conn
	gen          uint64

	handlers    []StatusHandler
	onMessage   MessageHandler
	dial        DialFunc
	dialTimeout time.Duration
	log         logger.Logger
}

// New creates a client for the embedded server at host:embeddedPort.
func New(host string, embeddedPort int) *Client {
	d := &net.Dialer{}
	return &Client{
		host:         host,
		embeddedPort: embeddedPort,
		port:         consts.NoPort,
		dial:         d.DialContext,
		dialTimeout:  consts.DefaultDialTimeout,
		log:          logger.Named("lsp.client"),
	}
}

// SetDialer replaces the dialer; used by tests and custom transports.
func (c *Client) SetDialer(dial DialFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dial = dial
}

// SetEmbedded updates the embedded server address used by later connects.
func (c *Client) SetEmbedded(host string, port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = host
	c.embeddedPort = port
}

// Port returns the dynamic headless port, or consts.NoPort.
func (c *Client) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

func (c *Client) SetPort(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.port = port
}

// Started reports whether Start has been called on the current session.
func (c *Client) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// WatchStatus registers h for every later status change.
func (c *Client) WatchStatus(h StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// OnMessage registers the handler for server messages.
func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = h
}

// Endpoint returns the address ConnectToServer would dial for target.
func (c *Client) Endpoint(target consts.Target) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpointLocked(target)
}

func (c *Client) endpointLocked(target consts.Target) string {
	port := c.embeddedPort
	if target == consts.TargetHeadless && c.port != consts.NoPort {
		port = c.port
	}
	return net.JoinHostPort(c.host, strconv.Itoa(port))
}

// ConnectToServer drops any current connection and dials target in the
// background. Status is reported as PENDING, then CONNECTED or DISCONNECTED.
// A later call supersedes an earlier one: results of stale dials are discarded.
func (c *Client) ConnectToServer(target consts.Target) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	addr := c.endpointLocked(target)
	old := c.conn
	c.conn = nil
	dial := c.dial
	timeout := c.dialTimeout
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	go func() {
		c.emit(gen, consts.ClientPending)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		conn, err := dial(ctx, "tcp", addr)
		cancel()
		if err != nil {
			c.log.Debug("Client: dial failed", "addr", addr, "target", target,
				"err", lberrors.New(lberrors.ErrCodeConnectFailed, "Dial", "cannot reach language server", err))
			c.emit(gen, consts.ClientDisconnected)
			return
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.log.Info("Client: connected", "addr", addr, "target", target)
		c.emit(gen, consts.ClientConnected)
		c.readLoop(gen, conn)
	}()
}

// Start begins delivering server messages. The returned closer ends the
// session; a client can be started again after it is closed.
func (c *Client) Start() (io.Closer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, ErrAlreadyStarted
	}
	c.started = true
	c.log.Info("Client: started")
	return closerFunc(c.stop), nil
}

// Close drops the connection without reporting a status change.
func (c *Client) Close() error {
	return c.stop()
}

func (c *Client) stop() error {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	c.conn = nil
	c.started = false
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) readLoop(gen uint64, conn net.Conn) {
	r := bufio.NewReaderSize(conn, 64*1024)
	for {
		msg, err := readMessage(r)
		if err != nil {
			if errors.Is(err, errMissingLength) {
				// Malformed frame, keep reading
				continue
			}
			c.log.Info("Client: connection closed", "err", err)
			c.emit(gen, consts.ClientDisconnected)
			return
		}

		c.mu.Lock()
		h := c.onMessage
		deliver := c.started && gen == c.gen
		c.mu.Unlock()
		if deliver && h != nil {
			h(msg)
		}
	}
}

// emit notifies watchers unless gen has been superseded.
func (c *Client) emit(gen uint64, status consts.ClientStatus) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	handlers := append([]StatusHandler(nil), c.handlers...)
	c.mu.Unlock()

	monitor.ClientStatusEvents.WithLabelValues(string(status)).Inc()
	for _, h := range handlers {
		h(status)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Personal.AI order the ending
