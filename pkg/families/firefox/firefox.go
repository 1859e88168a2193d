// Package firefox implements the Firefox browser family, driven over the
// Juggler pipe.
package firefox

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/transport"
)

// Name is the family name.
const Name = "firefox"

const homeOwnerHint = "Firefox is unable to launch if the $HOME folder isn't owned by the current user.\n" +
	"Workaround: Set the HOME=/root environment variable when running browserkit."

// Family is the Firefox family.
type Family struct{}

// New returns the Firefox family.
func New() *Family {
	return &Family{}
}

func (f *Family) Name() string { return Name }

func (f *Family) IsPrimary() bool { return false }

func (f *Family) DefaultArgs(opts launcher.LaunchOptions, persistent bool, userDataDir string) ([]string, error) {
	if _, ok := launcher.FindArgPrefix(opts.Args, "-profile", "--profile"); ok {
		return nil, launcher.UserDataDirArgError("--profile")
	}
	if _, ok := launcher.FindArgPrefix(opts.Args, "-juggler"); ok {
		return nil, &launcher.ValidationError{Field: "args", Message: "the Juggler connection is managed by the launcher"}
	}
	if opts.UseWebSocket {
		return nil, &launcher.ValidationError{Field: "use_web_socket", Message: "firefox only supports the pipe transport"}
	}

	args := []string{"-no-remote"}
	if opts.IsHeadless() {
		args = append(args, "-headless")
	} else {
		args = append(args, "-wait-for-browser", "-foreground")
	}
	args = append(args, "-profile", userDataDir, "-juggler-pipe")
	args = append(args, opts.Args...)
	if persistent {
		args = append(args, "about:blank")
	} else {
		args = append(args, "-silent")
	}
	return args, nil
}

func (f *Family) AmendEnvironment(env launcher.Env, userDataDir, executable string, args []string) launcher.Env {
	if runtime.GOOS == "linux" {
		// Snap confinement breaks profiles outside the snap's home.
		delete(env, "SNAP_NAME")
		delete(env, "SNAP_INSTANCE_NAME")
	}
	return env
}

func (f *Family) RewriteStartupError(err error) error {
	err = launcher.ReplaceLogs(err, homeOwnerHint, "as root in a regular user's session is not supported.")
	return launcher.ReplaceLogs(err, launcher.NoXServerMessage, "no DISPLAY environment variable specified")
}

func (f *Family) AttemptGracefulClose(t transport.Transport) error {
	return launcher.SendBrowserClose(t, "Browser.close")
}

func (f *Family) Connect(ctx context.Context, opts *launcher.SessionOptions) (launcher.Session, error) {
	if home, err := os.UserHomeDir(); err == nil && !filepath.IsAbs(home) {
		return nil, fmt.Errorf("cannot launch Firefox with relative home directory %q", home)
	}

	s, err := launcher.NewBaseSession(opts, nil)
	if err != nil {
		return nil, err
	}
	if _, err := s.Call(ctx, "Browser.enable", map[string]any{
		"attachToDefaultContext": opts.Persistent,
		"userPrefs":              userPrefs(opts),
	}); err != nil {
		return nil, err
	}
	if _, err := s.Call(ctx, "Browser.getInfo", nil); err != nil {
		return nil, err
	}
	if opts.Proxy != nil {
		if _, err := s.Call(ctx, "Browser.setBrowserProxy", jugglerProxy(opts.Proxy)); err != nil {
			return nil, err
		}
	}
	if opts.Persistent {
		s.SetDefaultContext(launcher.NewDefaultContext(s, func(ctx context.Context) error {
			_, err := s.Call(ctx, "Browser.setDownloadOptions", map[string]any{
				"downloadOptions": map[string]any{
					"behavior":     "saveToDisk",
					"downloadsDir": opts.DownloadsPath,
				},
			})
			return err
		}))
	}
	return s, nil
}

type pref struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// userPrefs turns the firefox_user_prefs launch option into Juggler prefs,
// sorted by name.
func userPrefs(opts *launcher.SessionOptions) []pref {
	raw := opts.LaunchOptions.FirefoxUserPrefs
	prefs := make([]pref, 0, len(raw))
	for name, value := range raw {
		prefs = append(prefs, pref{Name: name, Value: value})
	}
	sort.Slice(prefs, func(i, j int) bool { return prefs[i].Name < prefs[j].Name })
	return prefs
}

func jugglerProxy(p *launcher.Proxy) map[string]any {
	kind := p.Scheme
	if kind == "socks5" {
		kind = "socks"
	}
	proxy := map[string]any{
		"type":     kind,
		"bypass":   p.Bypass,
		"username": p.Username,
		"password": p.Password,
	}
	if u, err := url.Parse(p.Server); err == nil {
		proxy["host"] = u.Hostname()
		if port, err := strconv.Atoi(u.Port()); err == nil {
			proxy["port"] = port
		}
	}
	return proxy
}

func (f *Family) ConnectOverRemoteEndpoint(ctx context.Context, endpoint string, opts launcher.RemoteOptions) (launcher.Session, error) {
	return nil, &launcher.UnsupportedOperationError{Family: Name, Operation: "connectOverCDP"}
}
