// Package tunnel provides the listener the observer server accepts
// connections on: a local TCP port or a public ngrok endpoint.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
)

// Endpoint hands out the listener the observer server serves on.
type Endpoint interface {
	Listen(ctx context.Context) (net.Listener, error)
	URL() string
	Close() error
}

// LocalEndpoint listens on a local TCP address.
type LocalEndpoint struct {
	addr string

	mu sync.Mutex
	ln net.Listener
}

func NewLocal(addr string) *LocalEndpoint {
	return &LocalEndpoint{addr: addr}
}

func (l *LocalEndpoint) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", l.addr, err)
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	return ln, nil
}

// URL returns the base URL of the bound address, or "" before Listen.
func (l *LocalEndpoint) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return ""
	}
	return "http://" + l.ln.Addr().String()
}

func (l *LocalEndpoint) Close() error {
	l.mu.Lock()
	ln := l.ln
	l.ln = nil
	l.mu.Unlock()

	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		return fmt.Errorf("closing listener: %w", err)
	}
	return nil
}

func httpsURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "https://" + addr
}
