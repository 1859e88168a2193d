package launcher

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
)

// IgnoreArgs selects which family default arguments to drop. All drops every
// default and leaves only the caller's Args.
type IgnoreArgs struct {
	All  bool     `yaml:"all"`
	Args []string `yaml:"args"`
}

// ProxySettings configures the browser-wide proxy.
type ProxySettings struct {
	Server   string `yaml:"server"`
	Bypass   string `yaml:"bypass"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LaunchOptions are the caller's launch parameters. Launch never mutates them.
type LaunchOptions struct {
	ExecutablePath    string            `yaml:"executable_path"`
	Args              []string          `yaml:"args"`
	IgnoreDefaultArgs IgnoreArgs        `yaml:"ignore_default_args"`
	Env               map[string]string `yaml:"env"`
	Headless          *bool             `yaml:"headless"`
	Devtools          bool              `yaml:"devtools"`
	DownloadsPath     string            `yaml:"downloads_path"`
	Proxy             *ProxySettings    `yaml:"proxy"`
	Timeout           time.Duration     `yaml:"timeout"`
	Channel           string            `yaml:"channel"`
	HandleSIGINT      *bool             `yaml:"handle_sigint"`
	HandleSIGTERM     *bool             `yaml:"handle_sigterm"`
	HandleSIGHUP      *bool             `yaml:"handle_sighup"`
	UseWebSocket      bool              `yaml:"use_web_socket"`
	SlowMo            time.Duration     `yaml:"slow_mo"`

	// Family specific.
	ChromiumSandbox  bool           `yaml:"chromium_sandbox"`
	FirefoxUserPrefs map[string]any `yaml:"firefox_user_prefs"`

	// Extras carries opaque values. Keys prefixed with "__testHook" reach the
	// session unchanged.
	Extras map[string]any `yaml:"extras"`
}

// IsHeadless reports the effective headless mode.
func (o LaunchOptions) IsHeadless() bool {
	if o.Headless == nil {
		return !o.Devtools
	}
	return *o.Headless
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// clone returns a deep enough copy that normalization never aliases the
// caller's slices and maps.
func (o LaunchOptions) clone() LaunchOptions {
	c := o
	c.Args = slices.Clone(o.Args)
	c.IgnoreDefaultArgs.Args = slices.Clone(o.IgnoreDefaultArgs.Args)
	c.Env = maps.Clone(o.Env)
	c.FirefoxUserPrefs = maps.Clone(o.FirefoxUserPrefs)
	c.Extras = maps.Clone(o.Extras)
	if o.Proxy != nil {
		p := *o.Proxy
		c.Proxy = &p
	}
	if o.Headless != nil {
		h := *o.Headless
		c.Headless = &h
	}
	return c
}

// normalizeOptions resolves defaults once per call. In debug mode the
// browser is always headed.
func normalizeOptions(opts LaunchOptions, debugMode bool) (LaunchOptions, error) {
	n := opts.clone()

	headless := n.IsHeadless()
	if debugMode {
		headless = false
	}
	n.Headless = &headless

	if n.DownloadsPath != "" && !filepath.IsAbs(n.DownloadsPath) {
		cwd, err := os.Getwd()
		if err != nil {
			return LaunchOptions{}, fmt.Errorf("failed to resolve downloads path: %w", err)
		}
		n.DownloadsPath = filepath.Join(cwd, n.DownloadsPath)
	}
	if n.Timeout < 0 {
		return LaunchOptions{}, &ValidationError{Field: "timeout", Message: "must not be negative"}
	}
	return n, nil
}

// testHookPrefix marks Extras keys forwarded to the session bundle.
const testHookPrefix = "__testHook"

func testHooks(extras map[string]any) map[string]any {
	hooks := make(map[string]any)
	for k, v := range extras {
		if strings.HasPrefix(k, testHookPrefix) {
			hooks[k] = v
		}
	}
	return hooks
}

// filterArgs drops every arg listed in ignored, preserving order.
func filterArgs(args, ignored []string) []string {
	if len(ignored) == 0 {
		return args
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if !slices.Contains(ignored, arg) {
			out = append(out, arg)
		}
	}
	return out
}

func hasArgPrefix(args []string, prefix string) bool {
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}
	return false
}

// Env is a process environment keyed by variable name.
type Env map[string]string

// EnvFromList parses os.Environ style entries.
func EnvFromList(list []string) Env {
	env := make(Env, len(list))
	for _, kv := range list {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// List renders the environment sorted by name.
func (e Env) List() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e[k])
	}
	return out
}

// baseEnv returns the caller's environment, or the host's when unset.
func baseEnv(env map[string]string) Env {
	if env == nil {
		return EnvFromList(os.Environ())
	}
	return Env(maps.Clone(env))
}
