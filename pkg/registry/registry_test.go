package registry

import (
	"bytes"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/logging"
)

var (
	_ launcher.Registry = (*Static)(nil)
	_ launcher.Registry = (*Playwright)(nil)
)

func fakeStatic(goos string, env map[string]string, existing []string, onPath map[string]string) *Static {
	s := NewStatic(map[string]string{"firefox": "/configured/firefox"})
	s.goos = goos
	s.getenv = func(k string) string { return env[k] }
	s.exists = func(p string) bool {
		for _, e := range existing {
			if e == p {
				return true
			}
		}
		return false
	}
	s.lookPath = func(name string) (string, error) {
		if p, ok := onPath[name]; ok {
			return p, nil
		}
		return "", exec.ErrNotFound
	}
	return s
}

func TestStatic_DefaultChannel(t *testing.T) {
	s := fakeStatic("linux",
		map[string]string{"BROWSERKIT_WEBKIT_EXECUTABLE": "/env/webkit"},
		nil,
		map[string]string{"chromium-browser": "/usr/bin/chromium-browser", "firefox": "/usr/bin/firefox"},
	)

	assert.Equal(t, "/usr/bin/chromium-browser", s.ExecutablePath("chromium", ""))
	assert.Equal(t, "/usr/bin/chromium-browser", s.ExecutablePath("chromium", "chromium"))
	assert.Equal(t, "/configured/firefox", s.ExecutablePath("firefox", ""))
	assert.Equal(t, "/env/webkit", s.ExecutablePath("webkit", ""))
	assert.Equal(t, "", s.ExecutablePath("opera", ""))
}

func TestStatic_Channels(t *testing.T) {
	s := fakeStatic("linux", nil, []string{"/opt/microsoft/msedge/msedge"}, nil)

	assert.True(t, s.IsSupportedChannel("msedge"))
	assert.True(t, s.IsSupportedChannel("chrome-canary"))
	assert.False(t, s.IsSupportedChannel("chrome-nightly"))

	assert.Equal(t, "/opt/microsoft/msedge/msedge", s.ExecutablePath("chromium", "msedge"))
	assert.Equal(t, "/opt/google/chrome/chrome", s.ExecutablePath("chromium", "chrome"), "missing installs still report where they were expected")
	assert.Equal(t, "", s.ExecutablePath("chromium", "chrome-canary"), "no canary on linux")
	assert.Equal(t, "", s.ExecutablePath("firefox", "chrome"))
}

func TestStatic_WindowsRoots(t *testing.T) {
	s := fakeStatic("windows",
		map[string]string{"LOCALAPPDATA": `C:\Users\u\AppData\Local`, "PROGRAMFILES": `C:\Program Files`},
		[]string{`C:\Program Files\Google\Chrome\Application\chrome.exe`},
		nil,
	)
	assert.Equal(t, `C:\Program Files\Google\Chrome\Application\chrome.exe`, s.ExecutablePath("chromium", "chrome"))
	assert.Equal(t, `C:\Users\u\AppData\Local\Google\Chrome SxS\Application\chrome.exe`, s.ExecutablePath("chromium", "chrome-canary"))
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "BROWSERKIT_CHROMIUM_EXECUTABLE", EnvVar("chromium"))
}

func TestPlaywright_UsesDriverPaths(t *testing.T) {
	s := fakeStatic("linux", nil, nil, map[string]string{"firefox": "/usr/bin/firefox"})
	s.executables = nil
	p := NewPlaywright(s, logging.Discard())
	calls := 0
	p.discover = func() (map[string]string, error) {
		calls++
		return map[string]string{"chromium": "/ms-playwright/chromium-1100/chrome-linux/chrome"}, nil
	}

	assert.Equal(t, "/ms-playwright/chromium-1100/chrome-linux/chrome", p.ExecutablePath("chromium", ""))
	assert.Equal(t, "/usr/bin/firefox", p.ExecutablePath("firefox", ""), "falls back when the driver has no path")
	assert.Equal(t, "/opt/google/chrome/chrome", p.ExecutablePath("chromium", "chrome"))
	assert.Equal(t, 1, calls)
}

func TestPlaywright_OverridesWin(t *testing.T) {
	s := fakeStatic("linux", map[string]string{"BROWSERKIT_CHROMIUM_EXECUTABLE": "/env/chrome"}, nil, nil)
	p := NewPlaywright(s, logging.Discard())
	p.discover = func() (map[string]string, error) {
		t.Fatal("driver should not start when overrides exist")
		return nil, nil
	}

	assert.Equal(t, "/env/chrome", p.ExecutablePath("chromium", ""))
	assert.Equal(t, "/configured/firefox", p.ExecutablePath("firefox", ""))
}

func TestPlaywright_DriverFailure(t *testing.T) {
	var buf bytes.Buffer
	s := fakeStatic("linux", nil, nil, map[string]string{"chromium": "/usr/bin/chromium"})
	p := NewPlaywright(s, logging.NewWriterLogger("registry", &buf))
	p.discover = func() (map[string]string, error) { return nil, errors.New("driver missing") }

	assert.Equal(t, "/usr/bin/chromium", p.ExecutablePath("chromium", ""))
	assert.Contains(t, buf.String(), "driver missing")
}

func TestInstall_RejectsUnknownFamily(t *testing.T) {
	err := Install(nil, "chromium", "opera")
	assert.EqualError(t, err, `unknown browser family "opera"`)
}

func TestNewPlaywright_Defaults(t *testing.T) {
	p := NewPlaywright(nil, nil)
	require.NotNil(t, p.fallback)
	assert.True(t, p.IsSupportedChannel("chrome"))
}
