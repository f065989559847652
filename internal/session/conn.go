package session

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// Conn is the transport surface the session drives. Production connections
// wrap a websocket; tests substitute scripted fakes.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Dialer opens a transport connection to an endpoint address.
type Dialer func(endpoint string) (Conn, error)

// EndpointURL builds the socket address for a user's session, mapping http
// schemes to their websocket counterparts and escaping both identifiers.
func EndpointURL(base, userID, sessionID string) (string, error) {
	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)
	if userID == "" || sessionID == "" {
		return "", errors.New("user id and session id are required")
	}

	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("base url requires a host")
	}

	prefix := strings.TrimRight(u.EscapedPath(), "/")
	return u.Scheme + "://" + u.Host + prefix + "/ws/" + url.PathEscape(userID) + "/" + url.PathEscape(sessionID), nil
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) ReadJSON(v any) error {
	return websocket.JSON.Receive(c.conn, v)
}

// WriteJSON serializes writes because heartbeat, replies, and user sends
// share the socket.
func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.conn, v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func defaultDialer(timeout time.Duration) Dialer {
	return func(endpoint string) (Conn, error) {
		config, err := websocket.NewConfig(endpoint, originFor(endpoint))
		if err != nil {
			return nil, fmt.Errorf("configure websocket: %w", err)
		}
		config.Dialer = &net.Dialer{Timeout: timeout}
		conn, err := websocket.DialConfig(config)
		if err != nil {
			return nil, fmt.Errorf("dial websocket: %w", err)
		}
		return &wsConn{conn: conn}, nil
	}
}

// originFor derives the handshake origin from the endpoint address.
func originFor(endpoint string) string {
	origin := strings.Replace(endpoint, "wss://", "https://", 1)
	return strings.Replace(origin, "ws://", "http://", 1)
}
