// Package chromium implements the Chromium browser family.
//
// Chromium is the primary family: it speaks the DevTools protocol natively,
// so besides launching it can attach to a browser started elsewhere through
// its remote debugging endpoint.
package chromium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"

	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/transport"
)

// Name is the family name.
const Name = "chromium"

// Switches every launch starts with.
var defaultSwitches = []string{
	"--disable-field-trial-config",
	"--disable-background-networking",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-back-forward-cache",
	"--disable-breakpad",
	"--disable-client-side-phishing-detection",
	"--disable-component-extensions-with-background-pages",
	"--disable-component-update",
	"--no-default-browser-check",
	"--disable-default-apps",
	"--disable-dev-shm-usage",
	"--disable-extensions",
	"--disable-features=ImprovedCookieControls,LazyFrameLoading,GlobalMediaControls,DestroyProfileOnBrowserClose,MediaRouter,DialMediaRouteProvider,AcceptCHFrame,AutoExpandDetailsElement,CertificateTransparencyComponentUpdater,AvoidUnnecessaryBeforeUnloadCheckSync,Translate,HttpsUpgrades,PaintHolding",
	"--allow-pre-commit-input",
	"--disable-hang-monitor",
	"--disable-ipc-flooding-protection",
	"--disable-popup-blocking",
	"--disable-prompt-on-repost",
	"--disable-renderer-backgrounding",
	"--force-color-profile=srgb",
	"--metrics-recording-only",
	"--no-first-run",
	"--enable-automation",
	"--password-store=basic",
	"--use-mock-keychain",
	"--no-service-autorun",
	"--export-tagged-pdf",
	"--disable-search-engine-choice-screen",
}

var headlessSwitches = []string{
	"--headless",
	"--hide-scrollbars",
	"--mute-audio",
	"--blink-settings=primaryHoverType=2,availableHoverTypes=2,primaryPointerType=4,availablePointerTypes=4",
}

const sandboxHint = "Chromium sandboxing failed!\n" +
	"================================\n" +
	"To avoid the sandboxing issue, do either of the following:\n" +
	"  - (preferred): Configure your environment to support sandboxing\n" +
	"  - (alternative): Launch Chromium without sandbox using 'chromium_sandbox: false' option\n" +
	"================================"

// Family is the Chromium family.
type Family struct{}

// New returns the Chromium family.
func New() *Family {
	return &Family{}
}

func (f *Family) Name() string { return Name }

func (f *Family) IsPrimary() bool { return true }

func (f *Family) DefaultArgs(opts launcher.LaunchOptions, persistent bool, userDataDir string) ([]string, error) {
	if _, ok := launcher.FindArgPrefix(opts.Args, "--user-data-dir"); ok {
		return nil, launcher.UserDataDirArgError("--user-data-dir")
	}
	if _, ok := launcher.FindArgPrefix(opts.Args, "--remote-debugging-pipe"); ok {
		return nil, &launcher.ValidationError{Field: "args", Message: "the remote debugging connection is managed by the launcher"}
	}
	for _, arg := range opts.Args {
		if !strings.HasPrefix(arg, "-") {
			return nil, &launcher.ValidationError{Field: "args", Message: "arguments can not specify page to be opened"}
		}
	}

	args := append([]string(nil), defaultSwitches...)
	if runtime.GOOS == "darwin" {
		args = append(args, "--enable-unsafe-swiftshader")
	}
	if opts.Devtools {
		args = append(args, "--auto-open-devtools-for-tabs")
	}
	if opts.IsHeadless() {
		args = append(args, headlessSwitches...)
	}
	if !opts.ChromiumSandbox {
		args = append(args, "--no-sandbox")
	}

	proxy, err := launcher.NormalizeProxy(opts.Proxy)
	if err != nil {
		return nil, err
	}
	if proxy != nil {
		args = append(args, proxyArgs(proxy)...)
	}

	args = append(args, opts.Args...)
	args = append(args, "--user-data-dir="+userDataDir)
	if opts.UseWebSocket {
		args = append(args, "--remote-debugging-port=0")
	} else if _, ok := launcher.FindArgPrefix(opts.Args, "--remote-debugging-port"); !ok {
		args = append(args, "--remote-debugging-pipe")
	}
	if persistent {
		args = append(args, "about:blank")
	} else {
		args = append(args, "--no-startup-window")
	}
	return args, nil
}

const loopbackRule = "<-loopback>"

func proxyArgs(proxy *launcher.Proxy) []string {
	var args []string
	if proxy.Scheme == "socks5" {
		u, err := url.Parse(proxy.Server)
		if err == nil {
			args = append(args, fmt.Sprintf(`--host-resolver-rules="MAP * ~NOTFOUND , EXCLUDE %s"`, u.Hostname()))
		}
	}
	args = append(args, "--proxy-server="+proxy.Server)

	var rules []string
	for _, rule := range proxy.Bypass {
		if strings.HasPrefix(rule, ".") {
			rule = "*" + rule
		}
		rules = append(rules, rule)
	}
	// Loopback traffic is proxied unless a rule already says otherwise.
	if !proxy.Bypasses(loopbackRule) {
		rules = append(rules, loopbackRule)
	}
	return append(args, "--proxy-bypass-list="+strings.Join(rules, ";"))
}

func (f *Family) AmendEnvironment(env launcher.Env, userDataDir, executable string, args []string) launcher.Env {
	return env
}

func (f *Family) RewriteStartupError(err error) error {
	err = launcher.ReplaceLogs(err, launcher.NoXServerMessage, "Missing X server", "missing X server")
	return launcher.ReplaceLogs(err, sandboxHint, "crbug.com/357670", "No usable sandbox!", "crbug.com/638180")
}

func (f *Family) AttemptGracefulClose(t transport.Transport) error {
	return launcher.SendBrowserClose(t, "Browser.close")
}

func (f *Family) Connect(ctx context.Context, opts *launcher.SessionOptions) (launcher.Session, error) {
	s, err := launcher.NewBaseSession(opts, nil)
	if err != nil {
		return nil, err
	}
	if _, err := s.Call(ctx, "Browser.getVersion", nil); err != nil {
		return nil, err
	}
	if opts.Persistent {
		s.SetDefaultContext(launcher.NewDefaultContext(s, func(ctx context.Context) error {
			return loadDefaultContext(ctx, s, opts)
		}))
	}
	return s, nil
}

// loadDefaultContext routes downloads of the default context to the
// downloads dir and attaches to the pages the browser opened at startup.
func loadDefaultContext(ctx context.Context, s *launcher.BaseSession, opts *launcher.SessionOptions) error {
	if _, err := s.Call(ctx, "Browser.setDownloadBehavior", map[string]any{
		"behavior":      "allowAndName",
		"downloadPath":  opts.DownloadsPath,
		"eventsEnabled": true,
	}); err != nil {
		return err
	}
	_, err := s.Call(ctx, "Target.setAutoAttach", map[string]any{
		"autoAttach":             true,
		"waitForDebuggerOnStart": true,
		"flatten":                true,
	})
	return err
}

func (f *Family) ConnectOverRemoteEndpoint(ctx context.Context, endpoint string, opts launcher.RemoteOptions) (launcher.Session, error) {
	headers := http.Header{}
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}

	wsURL := endpoint
	if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
		resolved, err := resolveWebSocketURL(ctx, endpoint, headers)
		if err != nil {
			return nil, &launcher.TransportError{Endpoint: endpoint, Err: err}
		}
		wsURL = resolved
	}

	ws, err := transport.DialWebSocket(ctx, wsURL, transport.DialOptions{Headers: headers})
	if err != nil {
		return nil, &launcher.TransportError{Endpoint: wsURL, Err: err}
	}
	s, err := launcher.NewBaseSession(&launcher.SessionOptions{
		Name:         Name,
		IsPrimary:    true,
		SlowMo:       opts.SlowMo,
		WSEndpoint:   wsURL,
		Transport:    ws,
		Logger:       opts.Logger,
		CloseTimeout: opts.CloseTimeout,
		TestHooks:    map[string]any{},
	}, nil)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	if _, err := s.Call(ctx, "Browser.getVersion", nil); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	return s, nil
}

type versionInfo struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// resolveWebSocketURL asks a DevTools HTTP endpoint for its browser target.
func resolveWebSocketURL(ctx context.Context, endpoint string, headers http.Header) (string, error) {
	versionURL := strings.TrimSuffix(endpoint, "/") + "/json/version/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d when connecting to %s.\nThis does not look like a DevTools server, try connecting via ws://", resp.StatusCode, versionURL)
	}
	var info versionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", versionURL, err)
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("%s did not report a webSocketDebuggerUrl", versionURL)
	}
	return info.WebSocketDebuggerURL, nil
}
