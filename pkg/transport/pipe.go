package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Pipe frames messages over two OS streams. Each message is terminated by a
// single NUL byte, which is the framing Chromium and Firefox use for
// --remote-debugging-pipe and -juggler-pipe.
type Pipe struct {
	w io.WriteCloser
	r io.ReadCloser

	handlers *handlers
	writeMu  sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewPipe wraps w (the browser's input) and r (the browser's output) and
// starts the reader loop.
func NewPipe(w io.WriteCloser, r io.ReadCloser) *Pipe {
	p := &Pipe{
		w:        w,
		r:        r,
		handlers: newHandlers(),
		closed:   make(chan struct{}),
	}
	go p.readLoop()
	return p
}

// Send implements Transport.
func (p *Pipe) Send(message []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	frame := make([]byte, 0, len(message)+1)
	frame = append(frame, message...)
	frame = append(frame, 0)
	if _, err := p.w.Write(frame); err != nil {
		return fmt.Errorf("pipe write: %w", err)
	}
	return nil
}

// SetHandlers implements Transport.
func (p *Pipe) SetHandlers(onMessage func([]byte), onClose func(error)) {
	p.handlers.set(onMessage, onClose)
}

// Close implements Transport.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		werr := p.w.Close()
		rerr := p.r.Close()
		p.closeErr = errors.Join(werr, rerr)
	})
	return p.closeErr
}

func (p *Pipe) readLoop() {
	if !p.handlers.wait(p.closed) {
		return
	}
	reader := bufio.NewReaderSize(p.r, 64*1024)
	for {
		frame, err := reader.ReadBytes(0)
		if err != nil {
			p.handlers.onClose(readEndError(err, p.closed))
			return
		}
		p.handlers.onMessage(frame[:len(frame)-1])
	}
}

// readEndError maps the reader's terminal error. EOF and reads interrupted by
// our own Close are a clean end of stream.
func readEndError(err error, closed <-chan struct{}) error {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	select {
	case <-closed:
		return nil
	default:
		return err
	}
}
