package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/turtacn/lspbridge/internal/connection"
	"github.com/turtacn/lspbridge/pkg/consts"
)

// DefaultClientTimeout bounds a request, including a headless launch.
const DefaultClientTimeout = 30 * time.Second

// ErrNotRunning is returned when no bridge is listening on the socket.
var ErrNotRunning = errors.New("lspbridge not running")

// Client talks to a running bridge over its control socket.
type Client struct {
	sockPath string
	timeout  time.Duration
}

func NewClient(sockPath string) *Client {
	return &Client{
		sockPath: sockPath,
		timeout:  DefaultClientTimeout,
	}
}

// SetTimeout sets the timeout for client operations.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

func (c *Client) call(method string, params any) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.sockPath, c.timeout)
	if err != nil {
		return nil, c.wrapConnError(err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(Request{Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("lspbridge error: %s", resp.Error)
	}
	return &resp, nil
}

func (c *Client) wrapConnError(err error) error {
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ENOENT, syscall.ECONNREFUSED:
			return fmt.Errorf("%w (%s)", ErrNotRunning, c.sockPath)
		}
	}
	if os.IsNotExist(err) {
		return fmt.Errorf("%w (%s)", ErrNotRunning, c.sockPath)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return errors.New("lspbridge request timed out")
	}
	return fmt.Errorf("connect to lspbridge: %w", err)
}

func (c *Client) StartLanguageServer() error {
	_, err := c.call(consts.CommandStartServer, nil)
	return err
}

func (c *Client) StopLanguageServer() error {
	_, err := c.call(consts.CommandStopServer, nil)
	return err
}

func (c *Client) CheckStatus() error {
	_, err := c.call(consts.CommandCheckStatus, nil)
	return err
}

// Status returns the bridge's current status view.
func (c *Client) Status() (*connection.StatusView, error) {
	resp, err := c.call(consts.CommandStatus, nil)
	if err != nil {
		return nil, err
	}

	// Re-marshal to convert the generic result
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	var view connection.StatusView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &view, nil
}

// Personal.AI order the ending
