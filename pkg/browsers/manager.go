package browsers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/logging"
)

const (
	// DefaultMaxSessions caps concurrently running sessions.
	DefaultMaxSessions = 5

	// DefaultIdleTimeout is how long a session may go unused before
	// CleanupIdleSessions closes it.
	DefaultIdleTimeout = 30 * time.Minute
)

// Session is a named, running browser.
type Session struct {
	Name       string
	Family     string
	Persistent bool
	Headless   bool
	CreatedAt  time.Time
	LastUsedAt time.Time

	// Browser is the launched session.
	Browser launcher.Session
}

// SessionInfo describes a session without exposing it.
type SessionInfo struct {
	Name       string
	Family     string
	ID         string
	Persistent bool
	Headless   bool
	PID        int
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// StartOptions configures StartSession.
type StartOptions struct {
	// Family is the browser family name; defaults to chromium.
	Family string

	// UserDataDir makes the session persistent when set.
	UserDataDir string

	Launch launcher.LaunchOptions
}

// Manager keeps named browser sessions. It is safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	starting    map[string]bool
	launchers   map[string]*launcher.Launcher
	maxSessions int
	idleTimeout time.Duration
	closing     bool

	launcherOpts []launcher.Option
	logger       *logging.Logger
	family       func(name string) (launcher.Family, error)
	now          func() time.Time
}

// NewManager returns a manager whose launchers are built with opts.
func NewManager(logger *logging.Logger, opts ...launcher.Option) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		sessions:     make(map[string]*Session),
		starting:     make(map[string]bool),
		launchers:    make(map[string]*launcher.Launcher),
		maxSessions:  DefaultMaxSessions,
		idleTimeout:  DefaultIdleTimeout,
		launcherOpts: append([]launcher.Option{launcher.WithLogger(logger)}, opts...),
		logger:       logger,
		family:       Family,
		now:          time.Now,
	}
}

// StartSession launches a browser and registers it under name.
func (m *Manager) StartSession(ctx context.Context, name string, opts StartOptions) (*Session, error) {
	if opts.Family == "" {
		opts.Family = "chromium"
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil, errors.New("session manager is shutting down")
	}
	if _, exists := m.sessions[name]; exists || m.starting[name] {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if len(m.sessions)+len(m.starting) >= m.maxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", m.maxSessions)
	}
	l, err := m.launcherLocked(opts.Family)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.starting[name] = true
	m.mu.Unlock()

	browser, err := m.launch(ctx, l, opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.starting, name)
	if err != nil {
		return nil, fmt.Errorf("failed to start session %q: %w", name, err)
	}

	now := m.now()
	s := &Session{
		Name:       name,
		Family:     opts.Family,
		Persistent: opts.UserDataDir != "",
		Headless:   browser.Options().Headless,
		CreatedAt:  now,
		LastUsedAt: now,
		Browser:    browser,
	}
	m.sessions[name] = s
	go m.forgetOnExit(s)
	m.logger.Infof("session %q started (%s, id=%s)", name, opts.Family, browser.ID())
	return s, nil
}

func (m *Manager) launch(ctx context.Context, l *launcher.Launcher, opts StartOptions) (launcher.Session, error) {
	if opts.UserDataDir == "" {
		return l.Launch(ctx, opts.Launch)
	}
	dc, err := l.LaunchPersistentContext(ctx, opts.UserDataDir, opts.Launch)
	if err != nil {
		return nil, err
	}
	return dc.Session(), nil
}

func (m *Manager) launcherLocked(family string) (*launcher.Launcher, error) {
	if l, ok := m.launchers[family]; ok {
		return l, nil
	}
	f, err := m.family(family)
	if err != nil {
		return nil, err
	}
	l, err := launcher.New(f, m.launcherOpts...)
	if err != nil {
		return nil, err
	}
	m.launchers[family] = l
	return l, nil
}

// forgetOnExit drops a session whose browser went away on its own.
func (m *Manager) forgetOnExit(s *Session) {
	<-s.Browser.Done()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.Name] == s {
		delete(m.sessions, s.Name)
		m.logger.Infof("session %q exited", s.Name)
	}
}

// GetSession returns the session registered under name and marks it used.
func (m *Manager) GetSession(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("session %q not found", name)
	}
	s.LastUsedAt = m.now()
	return s, nil
}

// ListSessions returns all sessions ordered by name.
func (m *Manager) ListSessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		info := SessionInfo{
			Name:       s.Name,
			Family:     s.Family,
			ID:         s.Browser.ID(),
			Persistent: s.Persistent,
			Headless:   s.Headless,
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt,
		}
		if p := s.Browser.Options().Process; p != nil {
			info.PID = p.PID()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// HasSessions reports whether any session is running.
func (m *Manager) HasSessions() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions) > 0
}

// CloseSession closes and removes a session.
func (m *Manager) CloseSession(ctx context.Context, name string) error {
	m.mu.Lock()
	s, ok := m.sessions[name]
	if ok {
		delete(m.sessions, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %q not found", name)
	}
	return s.Browser.Close(ctx)
}

// CloseAll closes every session and refuses new ones until it returns.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	sessions := m.takeLocked(func(*Session) bool { return true })
	m.mu.Unlock()

	err := closeSessions(ctx, sessions)

	m.mu.Lock()
	m.closing = false
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("errors closing sessions: %w", err)
	}
	return nil
}

// CleanupIdleSessions closes sessions unused for longer than the idle
// timeout.
func (m *Manager) CleanupIdleSessions(ctx context.Context) error {
	m.mu.Lock()
	now := m.now()
	idle := m.takeLocked(func(s *Session) bool { return now.Sub(s.LastUsedAt) > m.idleTimeout })
	m.mu.Unlock()

	for _, s := range idle {
		m.logger.Infof("closing idle session %q", s.Name)
	}
	if err := closeSessions(ctx, idle); err != nil {
		return fmt.Errorf("errors during cleanup: %w", err)
	}
	return nil
}

// SetMaxSessions sets the concurrent session limit.
func (m *Manager) SetMaxSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSessions = n
}

// SetIdleTimeout sets the idle timeout.
func (m *Manager) SetIdleTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = d
}

func (m *Manager) takeLocked(match func(*Session) bool) []*Session {
	var taken []*Session
	for name, s := range m.sessions {
		if match(s) {
			taken = append(taken, s)
			delete(m.sessions, name)
		}
	}
	return taken
}

// closeSessions closes sessions concurrently and joins their errors.
func closeSessions(ctx context.Context, sessions []*Session) error {
	errs := make([]error, len(sessions))
	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			if err := s.Browser.Close(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name, err)
			}
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}
