package realtime

import (
	"fmt"
	"net"
	"net/url"
)

const (
	DefaultPort = "8000"
	Path        = "/ws"
)

// EndpointFromOrigin derives the push endpoint from a page or backend origin:
// same hostname, ws/wss by scheme, fixed port. This keeps working whether the
// site is reached via localhost or a LAN address.
func EndpointFromOrigin(origin, port string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid origin %q: missing host", origin)
	}
	if port == "" {
		port = DefaultPort
	}

	scheme := "ws"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "wss"
	}

	ws := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(u.Hostname(), port),
		Path:   Path,
	}
	return ws.String(), nil
}
