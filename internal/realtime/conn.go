package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/katatrina/schoolhub-BE/internal/event"
)

var (
	// ErrUnauthorized means the server rejected the access token, either at
	// the handshake or by closing the stream with 4401.
	ErrUnauthorized = errors.New("stream unauthorized")
	// ErrPersistentDisconnect is reported after every reconnect attempt failed.
	ErrPersistentDisconnect = errors.New("persistent disconnect")
)

// Conn is one open notification stream.
type Conn interface {
	Read(ctx context.Context) (event.Frame, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, accessToken string) (Conn, error)
}

// WebsocketDialer dials the notification stream endpoint.
type WebsocketDialer struct {
	URL        string
	HTTPClient *http.Client
}

func (d *WebsocketDialer) Dial(ctx context.Context, accessToken string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	conn, resp, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: handshake rejected", ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) Read(ctx context.Context) (event.Frame, error) {
	var frame event.Frame
	err := wsjson.Read(ctx, c.conn, &frame)
	if err != nil {
		if websocket.CloseStatus(err) == event.StatusAccessTokenExpired {
			return event.Frame{}, fmt.Errorf("%w: access token expired", ErrUnauthorized)
		}
		return event.Frame{}, err
	}
	return frame, nil
}

func (c *websocketConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
