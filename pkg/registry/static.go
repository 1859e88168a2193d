// Package registry resolves browser executables for the launcher.
package registry

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// EnvPrefix starts the per-family override variable, e.g.
// BROWSERKIT_CHROMIUM_EXECUTABLE.
const EnvPrefix = "BROWSERKIT_"

// Branded distributions a chromium launch can ask for.
var channels = []string{
	"chromium",
	"chrome", "chrome-beta", "chrome-dev", "chrome-canary",
	"msedge", "msedge-beta", "msedge-dev", "msedge-canary",
}

// channelPaths lists install locations per OS. Windows entries are
// relative to the program-files style roots in windowsRoots.
var channelPaths = map[string]map[string][]string{
	"linux": {
		"chrome":      {"/opt/google/chrome/chrome"},
		"chrome-beta": {"/opt/google/chrome-beta/chrome"},
		"chrome-dev":  {"/opt/google/chrome-unstable/chrome"},
		"msedge":      {"/opt/microsoft/msedge/msedge"},
		"msedge-beta": {"/opt/microsoft/msedge-beta/msedge"},
		"msedge-dev":  {"/opt/microsoft/msedge-dev/msedge"},
	},
	"darwin": {
		"chrome":        {"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
		"chrome-beta":   {"/Applications/Google Chrome Beta.app/Contents/MacOS/Google Chrome Beta"},
		"chrome-dev":    {"/Applications/Google Chrome Dev.app/Contents/MacOS/Google Chrome Dev"},
		"chrome-canary": {"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary"},
		"msedge":        {"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
		"msedge-beta":   {"/Applications/Microsoft Edge Beta.app/Contents/MacOS/Microsoft Edge Beta"},
		"msedge-dev":    {"/Applications/Microsoft Edge Dev.app/Contents/MacOS/Microsoft Edge Dev"},
		"msedge-canary": {"/Applications/Microsoft Edge Canary.app/Contents/MacOS/Microsoft Edge Canary"},
	},
	"windows": {
		"chrome":        {`Google\Chrome\Application\chrome.exe`},
		"chrome-beta":   {`Google\Chrome Beta\Application\chrome.exe`},
		"chrome-dev":    {`Google\Chrome Dev\Application\chrome.exe`},
		"chrome-canary": {`Google\Chrome SxS\Application\chrome.exe`},
		"msedge":        {`Microsoft\Edge\Application\msedge.exe`},
		"msedge-beta":   {`Microsoft\Edge Beta\Application\msedge.exe`},
		"msedge-dev":    {`Microsoft\Edge Dev\Application\msedge.exe`},
		"msedge-canary": {`Microsoft\Edge SxS\Application\msedge.exe`},
	},
}

var windowsRoots = []string{"LOCALAPPDATA", "PROGRAMFILES", "PROGRAMFILES(X86)"}

// pathNames are searched on $PATH when nothing more specific is known.
var pathNames = map[string][]string{
	"chromium": {"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"},
	"firefox":  {"firefox"},
	"webkit":   {"pw_run.sh", "MiniBrowser"},
}

// Static resolves executables without any driver. Lookup order for the
// default channel is the environment override, the configured path, then
// $PATH. Branded channels resolve to their well-known install location.
type Static struct {
	executables map[string]string

	goos     string
	getenv   func(string) string
	exists   func(string) bool
	lookPath func(string) (string, error)
}

// NewStatic returns a registry using the configured family → path map.
func NewStatic(executables map[string]string) *Static {
	return &Static{
		executables: executables,
		goos:        runtime.GOOS,
		getenv:      os.Getenv,
		exists:      isFile,
		lookPath:    exec.LookPath,
	}
}

// EnvVar returns the override variable name for family.
func EnvVar(family string) string {
	return EnvPrefix + strings.ToUpper(family) + "_EXECUTABLE"
}

func (s *Static) IsSupportedChannel(channel string) bool {
	for _, c := range channels {
		if c == channel {
			return true
		}
	}
	return false
}

func (s *Static) ExecutablePath(family, channel string) string {
	if channel != "" && channel != "chromium" {
		if family != "chromium" {
			return ""
		}
		return s.channelPath(channel)
	}
	if p := s.getenv(EnvVar(family)); p != "" {
		return p
	}
	if p := s.executables[family]; p != "" {
		return p
	}
	for _, name := range pathNames[family] {
		if p, err := s.lookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// channelPath returns the first existing candidate, or the first candidate
// so the caller can report where it looked.
func (s *Static) channelPath(channel string) string {
	var candidates []string
	for _, p := range channelPaths[s.goos][channel] {
		if s.goos != "windows" {
			candidates = append(candidates, p)
			continue
		}
		for _, root := range windowsRoots {
			if dir := s.getenv(root); dir != "" {
				candidates = append(candidates, dir+`\`+p)
			}
		}
	}
	for _, p := range candidates {
		if s.exists(p) {
			return p
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(filepath.Clean(path))
	return err == nil && !info.IsDir()
}
