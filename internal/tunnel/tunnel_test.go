package tunnel

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Endpoint = (*LocalEndpoint)(nil)
	_ Endpoint = (*NgrokTunnel)(nil)
)

func TestLocalEndpoint_ListenAndClose(t *testing.T) {
	t.Parallel()

	ep := NewLocal("127.0.0.1:0")
	assert.Empty(t, ep.URL())

	ln, err := ep.Listen(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ep.URL(), "http://127.0.0.1:"))

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()
	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	_ = conn.Close()

	require.NoError(t, ep.Close())
	assert.Empty(t, ep.URL())
	assert.NoError(t, ep.Close(), "second close should be a no-op")
}

func TestLocalEndpoint_WhenAddressInvalid_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := NewLocal("256.0.0.1:99999").Listen(context.Background())
	assert.Error(t, err)
}

func TestNewNgrok_SetsFields(t *testing.T) {
	t.Parallel()

	tun := NewNgrok("test-token", "test-domain.ngrok.io")

	assert.Equal(t, "test-token", tun.authToken)
	assert.Equal(t, "test-domain.ngrok.io", tun.domain)
	assert.Len(t, tun.endpointOptions(), 1)
}

func TestNewNgrok_EmptyDomain_UsesRandomDomain(t *testing.T) {
	t.Parallel()

	tun := NewNgrok("test-token", "")
	assert.Empty(t, tun.endpointOptions())
}

func TestNgrokTunnel_Listen_WithoutToken_Fails(t *testing.T) {
	t.Parallel()

	_, err := NewNgrok("", "").Listen(context.Background())
	require.ErrorIs(t, err, ErrNoAuthToken)
	assert.Contains(t, err.Error(), "OIBENCH_NGROK_AUTHTOKEN")
}

func TestNgrokTunnel_BeforeListen(t *testing.T) {
	t.Parallel()

	tun := NewNgrok("test-token", "")
	assert.Empty(t, tun.URL())
	assert.NoError(t, tun.Close(), "closing unstarted tunnel should not error")
}

func TestHTTPSURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://abc.ngrok.app", httpsURL("abc.ngrok.app"))
	assert.Equal(t, "https://abc.ngrok.app", httpsURL("https://abc.ngrok.app"))
	assert.Equal(t, "http://x", httpsURL("http://x"))
}
