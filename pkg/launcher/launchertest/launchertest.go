// Package launchertest provides fake browsers for testing families and
// session consumers.
package launchertest

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/entrhq/browserkit/pkg/transport"
)

// Request is a message received by a fake browser.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Responder computes the result for a request. Returning an error string
// makes the browser reply with a protocol error.
type Responder func(req Request) (result any, errMessage string)

// PipeBrowser answers requests arriving over a pipe transport.
type PipeBrowser struct {
	requests chan Request
	respond  Responder

	mu  sync.Mutex
	out *os.File
}

// NewPipeBrowser returns the client side transport and the fake browser
// behind it. A nil respond answers every request with an empty result.
func NewPipeBrowser(t *testing.T, respond Responder) (transport.Transport, *PipeBrowser) {
	t.Helper()
	browserInR, browserInW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	browserOutR, browserOutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	if respond == nil {
		respond = func(Request) (any, string) { return map[string]any{}, "" }
	}
	b := &PipeBrowser{requests: make(chan Request, 64), respond: respond, out: browserOutW}
	t.Cleanup(func() {
		browserInR.Close()
		b.Disconnect()
	})
	go b.serve(bufio.NewReader(browserInR))
	return transport.NewPipe(browserInW, browserOutR), b
}

func (b *PipeBrowser) serve(r *bufio.Reader) {
	for {
		frame, err := r.ReadBytes(0)
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(frame[:len(frame)-1], &req); err != nil {
			continue
		}
		select {
		case b.requests <- req:
		default:
		}
		result, errMessage := b.respond(req)
		var reply any
		if errMessage != "" {
			reply = map[string]any{"id": req.ID, "error": map[string]any{"code": -32000, "message": errMessage}}
		} else {
			reply = map[string]any{"id": req.ID, "result": result}
		}
		data, _ := json.Marshal(reply)
		_ = b.Emit(string(data))
	}
}

// Emit writes a raw message to the client.
func (b *PipeBrowser) Emit(message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.out == nil {
		return os.ErrClosed
	}
	_, err := b.out.Write(append([]byte(message), 0))
	return err
}

// Disconnect closes the browser side, as if the browser exited.
func (b *PipeBrowser) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.out != nil {
		b.out.Close()
		b.out = nil
	}
}

// Next returns the next request received, failing the test after a timeout.
func (b *PipeBrowser) Next(t *testing.T) Request {
	t.Helper()
	select {
	case req := <-b.requests:
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("fake browser received no request")
		return Request{}
	}
}

// Methods drains the requests received so far and returns their methods.
func (b *PipeBrowser) Methods() []string {
	var methods []string
	for {
		select {
		case req := <-b.requests:
			methods = append(methods, req.Method)
		default:
			return methods
		}
	}
}

// RecordingTransport records sent messages and never delivers any.
type RecordingTransport struct {
	mu     sync.Mutex
	sent   []string
	closed bool
}

func (r *RecordingTransport) Send(message []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return transport.ErrClosed
	}
	r.sent = append(r.sent, string(message))
	return nil
}

func (r *RecordingTransport) SetHandlers(func([]byte), func(error)) {}

func (r *RecordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Sent returns the messages sent so far.
func (r *RecordingTransport) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}
