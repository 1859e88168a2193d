package config

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	// SectionIDLauncher is the identifier for the launcher section
	SectionIDLauncher = "launcher"

	defaultLaunchTimeout = 3 * time.Minute
	defaultCloseTimeout  = 5 * time.Second
	defaultMaxSessions   = 5
	defaultIdleTimeout   = 30 * time.Minute
)

var knownFamilies = map[string]bool{"chromium": true, "firefox": true, "webkit": true}

// LauncherSection holds launch defaults. Command line flags override it.
type LauncherSection struct {
	LaunchTimeout  time.Duration
	CloseTimeout   time.Duration
	DebugMode      bool
	DefaultChannel string
	// Executables maps a family name to an explicit executable path.
	Executables map[string]string
	MaxSessions int
	IdleTimeout time.Duration

	mu sync.RWMutex
}

// NewLauncherSection returns a section with default settings.
func NewLauncherSection() *LauncherSection {
	s := &LauncherSection{}
	s.Reset()
	return s
}

func (s *LauncherSection) ID() string { return SectionIDLauncher }

func (s *LauncherSection) Title() string { return "Launcher" }

func (s *LauncherSection) Description() string {
	return "Timeouts, executables and session limits used when launching browsers."
}

func (s *LauncherSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executables := make(map[string]any, len(s.Executables))
	for family, path := range s.Executables {
		executables[family] = path
	}
	return map[string]any{
		"launch_timeout":  s.LaunchTimeout.String(),
		"close_timeout":   s.CloseTimeout.String(),
		"debug_mode":      s.DebugMode,
		"default_channel": s.DefaultChannel,
		"executables":     executables,
		"max_sessions":    s.MaxSessions,
		"idle_timeout":    s.IdleTimeout.String(),
	}
}

func (s *LauncherSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "launch_timeout":
			s.LaunchTimeout, err = parseDuration(key, value)
		case "close_timeout":
			s.CloseTimeout, err = parseDuration(key, value)
		case "idle_timeout":
			s.IdleTimeout, err = parseDuration(key, value)
		case "debug_mode":
			enabled, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid value type for debug_mode: expected bool, got %T", value)
			}
			s.DebugMode = enabled
		case "default_channel":
			channel, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for default_channel: expected string, got %T", value)
			}
			s.DefaultChannel = channel
		case "max_sessions":
			switch v := value.(type) {
			case float64:
				s.MaxSessions = int(v)
			case int:
				s.MaxSessions = v
			default:
				return fmt.Errorf("invalid value type for max_sessions: expected number, got %T", value)
			}
		case "executables":
			s.Executables, err = parseExecutables(value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *LauncherSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.LaunchTimeout < 0 {
		return fmt.Errorf("launch_timeout must not be negative, got %v", s.LaunchTimeout)
	}
	if s.CloseTimeout <= 0 {
		return fmt.Errorf("close_timeout must be positive, got %v", s.CloseTimeout)
	}
	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}
	families := make([]string, 0, len(s.Executables))
	for family := range s.Executables {
		families = append(families, family)
	}
	sort.Strings(families)
	for _, family := range families {
		if !knownFamilies[family] {
			return fmt.Errorf("executables: unknown browser family %q", family)
		}
	}
	return nil
}

func (s *LauncherSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LaunchTimeout = defaultLaunchTimeout
	s.CloseTimeout = defaultCloseTimeout
	s.DebugMode = false
	s.DefaultChannel = ""
	s.Executables = map[string]string{}
	s.MaxSessions = defaultMaxSessions
	s.IdleTimeout = defaultIdleTimeout
}

// ExecutablePath returns the configured executable for family, or "".
func (s *LauncherSection) ExecutablePath(family string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Executables[family]
}

// Timeouts returns the launch and close timeouts.
func (s *LauncherSection) Timeouts() (launchTimeout, closeTimeout time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LaunchTimeout, s.CloseTimeout
}

// SetExecutable records an explicit executable path for family. An empty
// path removes the entry.
func (s *LauncherSection) SetExecutable(family, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		delete(s.Executables, family)
		return
	}
	s.Executables[family] = path
}

func parseDuration(key string, value any) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", key, err)
		}
		return d, nil
	case float64:
		// JSON numbers are nanoseconds
		return time.Duration(v), nil
	case time.Duration:
		return v, nil
	default:
		return 0, fmt.Errorf("invalid value type for %s: expected string or number, got %T", key, value)
	}
}

func parseExecutables(value any) (map[string]string, error) {
	out := make(map[string]string)
	switch v := value.(type) {
	case map[string]any:
		for family, path := range v {
			p, ok := path.(string)
			if !ok {
				return nil, fmt.Errorf("invalid executable for %s: expected string, got %T", family, path)
			}
			out[family] = p
		}
	case map[string]string:
		for family, path := range v {
			out[family] = path
		}
	default:
		return nil, fmt.Errorf("invalid value type for executables: expected object, got %T", value)
	}
	return out, nil
}
