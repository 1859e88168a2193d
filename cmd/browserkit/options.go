package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserkit/pkg/config"
	"github.com/entrhq/browserkit/pkg/launcher"
)

// launchFile is the YAML document accepted by --options.
type launchFile struct {
	Browser     string `yaml:"browser"`
	UserDataDir string `yaml:"user_data_dir"`

	Options launcher.LaunchOptions `yaml:",inline"`
}

// launchFlags are the launch command's flags. Only flags the user set
// override the options file.
type launchFlags struct {
	optionsFile string
	executable  string
	channel     string
	headless    bool
	devtools    bool
	userDataDir string
	downloads   string
	args        []string
	env         map[string]string
	proxy       string
	proxyBypass string
	timeout     time.Duration
	webSocket   bool
	sandbox     bool
	metricsAddr string
}

func (f *launchFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.optionsFile, "options", "", "YAML file with launch options")
	fs.StringVar(&f.executable, "executable", "", "browser executable, bypassing the registry")
	fs.StringVar(&f.channel, "channel", "", "branded distribution, e.g. chrome or msedge")
	fs.BoolVar(&f.headless, "headless", true, "run without a visible window")
	fs.BoolVar(&f.devtools, "devtools", false, "open devtools for each tab (implies headed)")
	fs.StringVar(&f.userDataDir, "user-data-dir", "", "launch a persistent context in this profile directory")
	fs.StringVar(&f.downloads, "downloads", "", "directory for downloads")
	fs.StringArrayVar(&f.args, "arg", nil, "extra browser argument (repeatable)")
	fs.StringToStringVar(&f.env, "env", nil, "environment variable for the browser, KEY=VALUE")
	fs.StringVar(&f.proxy, "proxy", "", "proxy server, e.g. socks5://127.0.0.1:1080")
	fs.StringVar(&f.proxyBypass, "proxy-bypass", "", "comma separated hosts that skip the proxy")
	fs.DurationVar(&f.timeout, "timeout", 0, "launch timeout (0 uses the configured default)")
	fs.BoolVar(&f.webSocket, "web-socket", false, "connect over a WebSocket endpoint instead of a pipe (chromium)")
	fs.BoolVar(&f.sandbox, "sandbox", false, "enable the chromium sandbox")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while the browser runs")
}

// resolveLaunch merges config defaults, the options file and flags, in
// increasing precedence.
func resolveLaunch(fs *pflag.FlagSet, f *launchFlags, browser string, section *config.LauncherSection) (launchFile, error) {
	var file launchFile
	if f.optionsFile != "" {
		raw, err := os.ReadFile(f.optionsFile)
		if err != nil {
			return launchFile{}, fmt.Errorf("failed to read options file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return launchFile{}, fmt.Errorf("failed to parse options file %s: %w", f.optionsFile, err)
		}
	}
	opts := &file.Options

	if browser != "" {
		file.Browser = browser
	}
	if file.Browser == "" {
		file.Browser = "chromium"
	}

	if section != nil {
		launchTimeout, _ := section.Timeouts()
		if opts.Timeout == 0 {
			opts.Timeout = launchTimeout
		}
		if opts.Channel == "" {
			opts.Channel = section.DefaultChannel
		}
	}

	if fs.Changed("executable") {
		opts.ExecutablePath = f.executable
	}
	if fs.Changed("channel") {
		opts.Channel = f.channel
	}
	if fs.Changed("headless") {
		headless := f.headless
		opts.Headless = &headless
	}
	if fs.Changed("devtools") {
		opts.Devtools = f.devtools
	}
	if fs.Changed("user-data-dir") {
		file.UserDataDir = f.userDataDir
	}
	if fs.Changed("downloads") {
		opts.DownloadsPath = f.downloads
	}
	opts.Args = append(opts.Args, f.args...)
	if len(f.env) > 0 {
		if opts.Env == nil {
			opts.Env = launcher.EnvFromList(os.Environ())
		}
		for k, v := range f.env {
			opts.Env[k] = v
		}
	}
	if fs.Changed("proxy") {
		opts.Proxy = &launcher.ProxySettings{Server: f.proxy}
	}
	if fs.Changed("proxy-bypass") {
		if opts.Proxy == nil {
			return launchFile{}, fmt.Errorf("--proxy-bypass requires a proxy server")
		}
		opts.Proxy.Bypass = strings.TrimSpace(f.proxyBypass)
	}
	if fs.Changed("timeout") {
		opts.Timeout = f.timeout
	}
	if fs.Changed("web-socket") {
		opts.UseWebSocket = f.webSocket
	}
	if fs.Changed("sandbox") {
		opts.ChromiumSandbox = f.sandbox
	}
	return file, nil
}
