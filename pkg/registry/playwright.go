package registry

import (
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserkit/pkg/logging"
)

// Families the playwright driver can install and locate.
var Families = []string{"chromium", "firefox", "webkit"}

// Playwright resolves default-channel executables from the browsers the
// playwright driver installed. Branded channels, and families the driver
// could not report, fall back to a Static registry.
//
// The driver is started once, on first lookup, and stopped right after
// the paths are read.
type Playwright struct {
	fallback *Static
	logger   *logging.Logger
	discover func() (map[string]string, error)

	once  sync.Once
	paths map[string]string
}

// NewPlaywright returns a driver backed registry. The driver is expected
// to be installed already; see Install.
func NewPlaywright(fallback *Static, logger *logging.Logger) *Playwright {
	if fallback == nil {
		fallback = NewStatic(nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
	return &Playwright{
		fallback: fallback,
		logger:   logger,
		discover: func() (map[string]string, error) { return driverPaths(opts) },
	}
}

func (p *Playwright) IsSupportedChannel(channel string) bool {
	return p.fallback.IsSupportedChannel(channel)
}

func (p *Playwright) ExecutablePath(family, channel string) string {
	if channel != "" && channel != "chromium" {
		return p.fallback.ExecutablePath(family, channel)
	}
	// Explicit overrides win over whatever the driver installed.
	if path := p.fallback.getenv(EnvVar(family)); path != "" {
		return path
	}
	if path := p.fallback.executables[family]; path != "" {
		return path
	}
	if path := p.driverPath(family); path != "" {
		return path
	}
	return p.fallback.ExecutablePath(family, channel)
}

func (p *Playwright) driverPath(family string) string {
	p.once.Do(func() {
		paths, err := p.discover()
		if err != nil {
			p.logger.Warnf("playwright driver unavailable, falling back to static lookup: %v", err)
			return
		}
		p.paths = paths
	})
	return p.paths[family]
}

func driverPaths(opts *playwright.RunOptions) (map[string]string, error) {
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	defer func() { _ = pw.Stop() }()

	return map[string]string{
		"chromium": pw.Chromium.ExecutablePath(),
		"firefox":  pw.Firefox.ExecutablePath(),
		"webkit":   pw.WebKit.ExecutablePath(),
	}, nil
}

// Install downloads the playwright driver and the given browser families,
// writing progress to out.
func Install(out io.Writer, families ...string) error {
	for _, f := range families {
		if !isFamily(f) {
			return fmt.Errorf("unknown browser family %q", f)
		}
	}
	if out == nil {
		out = io.Discard
	}
	opts := &playwright.RunOptions{
		Browsers: families,
		Verbose:  true,
		Stdout:   out,
		Stderr:   out,
	}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	return nil
}

func isFamily(name string) bool {
	for _, f := range Families {
		if f == name {
			return true
		}
	}
	return false
}
