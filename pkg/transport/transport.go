// Package transport provides the duplex message channels used to talk to a
// browser process: NUL framed pipes and WebSocket connections.
//
// A Transport starts delivering inbound messages only after SetHandlers is
// called, so nothing is lost between connecting and handing the transport to
// its owner. Messages are opaque byte slices; this package never inspects them.
package transport

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send after the transport closed.
var ErrClosed = errors.New("transport closed")

// Transport is a duplex message channel to a browser.
type Transport interface {
	// Send writes one message.
	Send(message []byte) error

	// SetHandlers installs the inbound callbacks and starts delivery.
	// onMessage is called sequentially from a single goroutine. onClose is
	// called once, after the last message, with the read error (nil on a
	// clean end of stream). Only the first call has any effect.
	SetHandlers(onMessage func([]byte), onClose func(error))

	// Close shuts the channel down. Safe to call more than once.
	Close() error
}

// handlers holds the callbacks and the gate the reader loop waits on.
type handlers struct {
	once      sync.Once
	ready     chan struct{}
	onMessage func([]byte)
	onClose   func(error)
}

func newHandlers() *handlers {
	return &handlers{ready: make(chan struct{})}
}

func (h *handlers) set(onMessage func([]byte), onClose func(error)) {
	h.once.Do(func() {
		if onMessage == nil {
			onMessage = func([]byte) {}
		}
		if onClose == nil {
			onClose = func(error) {}
		}
		h.onMessage = onMessage
		h.onClose = onClose
		close(h.ready)
	})
}

// wait blocks until handlers are installed or done closes. It reports
// whether handlers are available.
func (h *handlers) wait(done <-chan struct{}) bool {
	select {
	case <-h.ready:
		return true
	case <-done:
		select {
		case <-h.ready:
			return true
		default:
			return false
		}
	}
}
