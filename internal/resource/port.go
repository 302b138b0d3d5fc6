// Package resource hands out operating system resources the language
// server needs before it can be launched.
package resource

import (
	"fmt"
	"net"
	"strconv"

	"github.com/turtacn/lspbridge/pkg/logger"
)

// FreePort asks the kernel for an unused TCP port on host and releases it
// immediately so a child process can bind it. The port is not reserved:
// another process may take it before the child binds.
func FreePort(host string) (int, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("allocate port on %s: %w", host, err)
	}
	defer l.Close()

	_, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, err
	}
	logger.Log.Debug("Allocated free port", "host", host, "port", port)
	return port, nil
}

// Personal.AI order the ending
