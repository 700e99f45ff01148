package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	ngroklib "golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// ErrNoAuthToken is returned by Listen when no ngrok auth token is configured.
var ErrNoAuthToken = errors.New("ngrok auth token is required (set tunnel.authtoken in config or OIBENCH_NGROK_AUTHTOKEN env var)")

// NgrokTunnel exposes the observer server on a public ngrok URL.
type NgrokTunnel struct {
	authToken string
	domain    string

	mu       sync.Mutex
	listener net.Listener
	url      string
}

// NewNgrok creates a tunnel with the given auth token and optional fixed domain.
func NewNgrok(authToken, domain string) *NgrokTunnel {
	return &NgrokTunnel{
		authToken: authToken,
		domain:    domain,
	}
}

func (n *NgrokTunnel) endpointOptions() []ngrokconfig.HTTPEndpointOption {
	if n.domain == "" {
		return nil
	}
	return []ngrokconfig.HTTPEndpointOption{ngrokconfig.WithDomain(n.domain)}
}

// Listen opens the tunnel. Connections arriving on the public URL are
// accepted from the returned listener.
func (n *NgrokTunnel) Listen(ctx context.Context) (net.Listener, error) {
	if n.authToken == "" {
		return nil, ErrNoAuthToken
	}

	slog.Info("starting ngrok tunnel", "domain", n.domain)

	ln, err := ngroklib.Listen(ctx,
		ngrokconfig.HTTPEndpoint(n.endpointOptions()...),
		ngroklib.WithAuthtoken(n.authToken),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}

	url := httpsURL(ln.Addr().String())

	n.mu.Lock()
	n.listener = ln
	n.url = url
	n.mu.Unlock()

	slog.Info("ngrok tunnel established", "public_url", url)
	return ln, nil
}

// URL returns the public URL, or "" before Listen.
func (n *NgrokTunnel) URL() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.url
}

// Close shuts the tunnel down. It is safe to call before Listen.
func (n *NgrokTunnel) Close() error {
	n.mu.Lock()
	ln, url := n.listener, n.url
	n.listener, n.url = nil, ""
	n.mu.Unlock()

	if ln == nil {
		return nil
	}

	slog.Info("closing ngrok tunnel", "public_url", url)
	if err := ln.Close(); err != nil {
		return fmt.Errorf("failed to close ngrok tunnel: %w", err)
	}
	return nil
}
