package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MaxMessageSize bounds a single inbound WebSocket message.
const MaxMessageSize = 256 * 1024 * 1024

// DialOptions configures a WebSocket connection.
type DialOptions struct {
	Headers          http.Header
	HandshakeTimeout time.Duration
}

// WebSocket carries messages as text frames over a WebSocket connection.
type WebSocket struct {
	conn *websocket.Conn
	url  string

	handlers *handlers
	writeMu  sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// DialWebSocket connects to url. The dial honors ctx cancellation and deadline.
func DialWebSocket(ctx context.Context, url string, opts DialOptions) (*WebSocket, error) {
	dialer := websocket.Dialer{
		Proxy:            nil,
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}
	conn, resp, err := dialer.DialContext(ctx, url, opts.Headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: unexpected status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	conn.SetReadLimit(MaxMessageSize)
	return NewWebSocket(conn, url), nil
}

// NewWebSocket wraps an established connection and starts the reader loop.
func NewWebSocket(conn *websocket.Conn, url string) *WebSocket {
	ws := &WebSocket{
		conn:     conn,
		url:      url,
		handlers: newHandlers(),
		closed:   make(chan struct{}),
	}
	go ws.readLoop()
	return ws
}

// URL returns the endpoint this transport is connected to.
func (ws *WebSocket) URL() string {
	return ws.url
}

// Send implements Transport.
func (ws *WebSocket) Send(message []byte) error {
	select {
	case <-ws.closed:
		return ErrClosed
	default:
	}

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	if err := ws.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// SetHandlers implements Transport.
func (ws *WebSocket) SetHandlers(onMessage func([]byte), onClose func(error)) {
	ws.handlers.set(onMessage, onClose)
}

// Close implements Transport. It sends a close frame before tearing down the
// connection; failures to send it are ignored.
func (ws *WebSocket) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closed)
		ws.writeMu.Lock()
		_ = ws.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		ws.writeMu.Unlock()
		ws.closeErr = ws.conn.Close()
	})
	return ws.closeErr
}

func (ws *WebSocket) readLoop() {
	if !ws.handlers.wait(ws.closed) {
		return
	}
	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			ws.handlers.onClose(ws.readEndError(err))
			return
		}
		ws.handlers.onMessage(data)
	}
}

func (ws *WebSocket) readEndError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	select {
	case <-ws.closed:
		return nil
	default:
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("websocket closed with code %d: %w", closeErr.Code, err)
	}
	return err
}
