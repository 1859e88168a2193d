package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/browserkit/pkg/logging"
	"github.com/entrhq/browserkit/pkg/process"
	"github.com/entrhq/browserkit/pkg/transport"
)

// SessionOptions is the bundle a family receives to build its session. It is
// read-only once handed to Connect.
type SessionOptions struct {
	Name       string
	IsPrimary  bool
	Channel    string
	Persistent bool
	Headless   bool
	SlowMo     time.Duration

	DownloadsPath string
	UserDataDir   string
	Executable    string
	Args          []string
	WSEndpoint    string
	Proxy         *Proxy

	// Process is nil for sessions attached to a remote browser.
	Process    *process.Process
	Transport  transport.Transport
	RecentLogs *RecentLogs
	Logger     *logging.Logger

	// CloseTimeout bounds the graceful phase of Close.
	CloseTimeout time.Duration

	// LaunchOptions are the normalized options of the launch, for family
	// specific settings such as FirefoxUserPrefs.
	LaunchOptions LaunchOptions

	// TestHooks holds the "__testHook" entries of LaunchOptions.Extras.
	TestHooks map[string]any
}

// ValidatePersistent checks the bundle of a persistent launch.
func (o *SessionOptions) ValidatePersistent() error {
	if o.UserDataDir == "" {
		return &ValidationError{Field: "userDataDir", Message: "a persistent context needs a user data directory"}
	}
	if o.DownloadsPath == "" {
		return &ValidationError{Field: "downloadsPath", Message: "a persistent context needs a downloads directory"}
	}
	if o.Proxy != nil && o.Proxy.Server == "" {
		return &ValidationError{Field: "proxy.server", Message: "must not be empty"}
	}
	return nil
}

// Session is a live connection to a browser.
type Session interface {
	ID() string
	Options() *SessionOptions
	// DefaultContext is nil unless the session was launched persistent.
	DefaultContext() *DefaultContext
	// Close shuts the browser down, or disconnects from a remote one, and
	// returns once the session is fully closed.
	Close(ctx context.Context) error
	// Done is closed when the session ends for any reason.
	Done() <-chan struct{}
}

// DefaultContext is the pre-attached browsing context of a persistent launch.
type DefaultContext struct {
	session Session
	load    func(ctx context.Context) error

	once sync.Once
	err  error
}

// NewDefaultContext creates the context; load fetches its initial state.
func NewDefaultContext(session Session, load func(ctx context.Context) error) *DefaultContext {
	return &DefaultContext{session: session, load: load}
}

// Session returns the owning session.
func (c *DefaultContext) Session() Session {
	return c.session
}

// Load fetches the default state. Only the first call does any work.
func (c *DefaultContext) Load(ctx context.Context) error {
	c.once.Do(func() {
		if c.load != nil {
			c.err = c.load(ctx)
		}
	})
	return c.err
}

// Close closes the browser the context belongs to.
func (c *DefaultContext) Close(ctx context.Context) error {
	return c.session.Close(ctx)
}

// ProtocolError is an error reply from the browser.
type ProtocolError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", e.Method, e.Message)
}

type request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type incoming struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *ProtocolError  `json:"error"`
}

type reply struct {
	result json.RawMessage
	err    error
}

// BaseSession implements Session over a transport and, for launched
// browsers, a process. It correlates request ids just enough for families
// to run their handshakes; everything else is forwarded to the event handler.
type BaseSession struct {
	id     string
	opts   *SessionOptions
	logger *logging.Logger

	defaultContext *DefaultContext

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan reply
	onEvent EventHandler

	closeOnce sync.Once
	done      chan struct{}
}

// EventHandler receives messages that are not replies to a Call.
type EventHandler func(method string, params json.RawMessage)

// NewBaseSession takes ownership of the transport and becomes the exit
// observer of the process. onEvent may be nil.
func NewBaseSession(opts *SessionOptions, onEvent EventHandler) (*BaseSession, error) {
	if opts.Transport == nil {
		return nil, errors.New("session requires a transport")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &BaseSession{
		id:      uuid.New().String(),
		opts:    opts,
		logger:  logger,
		pending: make(map[int64]chan reply),
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	if opts.Process != nil {
		if err := opts.Process.OnExit(func(status process.ExitStatus) {
			s.logger.Debugf("browser process exited: %s", status)
			_ = opts.Transport.Close()
			s.didClose()
		}); err != nil {
			return nil, err
		}
	}
	opts.Transport.SetHandlers(s.dispatch, func(err error) {
		if err != nil {
			s.logger.Warnf("transport closed: %v", err)
		}
		s.didClose()
	})
	return s, nil
}

func (s *BaseSession) ID() string { return s.id }

func (s *BaseSession) Options() *SessionOptions { return s.opts }

func (s *BaseSession) Done() <-chan struct{} { return s.done }

func (s *BaseSession) DefaultContext() *DefaultContext { return s.defaultContext }

// SetDefaultContext attaches the persistent default context.
func (s *BaseSession) SetDefaultContext(c *DefaultContext) {
	s.defaultContext = c
}

// SetEventHandler replaces the event handler.
func (s *BaseSession) SetEventHandler(fn EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

// Call sends a request and waits for its reply.
func (s *BaseSession) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil, ErrBrowserClosed
	default:
	}
	s.nextID++
	id := s.nextID
	ch := make(chan reply, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		s.forget(id)
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	if err := s.opts.Transport.Send(data); err != nil {
		s.forget(id)
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case r := <-ch:
		var pe *ProtocolError
		if errors.As(r.err, &pe) {
			pe.Method = method
		}
		return r.result, r.err
	case <-ctx.Done():
		s.forget(id)
		return nil, ctx.Err()
	}
}

func (s *BaseSession) forget(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

func (s *BaseSession) dispatch(data []byte) {
	var msg incoming
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warnf("dropping malformed message: %v", err)
		return
	}
	s.mu.Lock()
	if msg.ID != nil {
		ch, ok := s.pending[*msg.ID]
		delete(s.pending, *msg.ID)
		s.mu.Unlock()
		if ok {
			r := reply{result: msg.Result}
			if msg.Error != nil {
				r.err = msg.Error
			}
			ch <- r
		}
		return
	}
	onEvent := s.onEvent
	s.mu.Unlock()
	if onEvent != nil {
		onEvent(msg.Method, msg.Params)
	}
}

func (s *BaseSession) didClose() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		pending := s.pending
		s.pending = make(map[int64]chan reply)
		close(s.done)
		s.mu.Unlock()
		for _, ch := range pending {
			ch <- reply{err: ErrBrowserClosed}
		}
	})
}

// Close shuts the browser down. Launched browsers go through the graceful
// close protocol of the process; remote sessions just disconnect.
func (s *BaseSession) Close(ctx context.Context) error {
	if p := s.opts.Process; p != nil {
		closed := make(chan error, 1)
		go func() { closed <- p.Close(s.opts.CloseTimeout) }()
		select {
		case err := <-closed:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		if err := s.opts.Transport.Close(); err != nil {
			s.logger.Debugf("transport close: %v", err)
		}
		s.didClose()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
