package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"threadsync/pkg/interfaces"
)

// Dialer opens thread-scoped connections to the discussion server.
type Dialer struct {
	endpoint *url.URL
	opts     Options
	dialer   *websocket.Dialer
}

var _ interfaces.Dialer = (*Dialer)(nil)

// NewDialer validates endpoint (ws:// or wss://) and returns a Dialer for it.
func NewDialer(endpoint string, opts Options) (*Dialer, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	return &Dialer{
		endpoint: u,
		opts:     opts.withDefaults(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// URL returns the handshake URL for opts.
// FUNCTIONAL DISCOVERY: identity travels in the query string so the server can scope
// the socket before the first frame, mirroring the user_id/role/session_id handshake
func (d *Dialer) URL(opts interfaces.DialOptions) string {
	u := *d.endpoint
	q := u.Query()
	q.Set("participant_id", opts.ParticipantID)
	q.Set("role", string(opts.Role))
	q.Set("thread_id", opts.ThreadID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial performs the websocket handshake.
func (d *Dialer) Dial(ctx context.Context, opts interfaces.DialOptions) (interfaces.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.URL(opts), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: status %d: %v", ErrDialFailed, d.endpoint.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDialFailed, d.endpoint.Host, err)
	}
	return NewConnection(conn, d.opts), nil
}
