// Package webkit implements the WebKit browser family, driven over the
// inspector pipe.
package webkit

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/transport"
)

// Name is the family name.
const Name = "webkit"

// Family is the WebKit family.
type Family struct{}

// New returns the WebKit family.
func New() *Family {
	return &Family{}
}

func (f *Family) Name() string { return Name }

func (f *Family) IsPrimary() bool { return false }

func (f *Family) DefaultArgs(opts launcher.LaunchOptions, persistent bool, userDataDir string) ([]string, error) {
	if _, ok := launcher.FindArgPrefix(opts.Args, "--user-data-dir"); ok {
		return nil, launcher.UserDataDirArgError("--user-data-dir")
	}
	for _, arg := range opts.Args {
		if !strings.HasPrefix(arg, "-") {
			return nil, &launcher.ValidationError{Field: "args", Message: "arguments can not specify page to be opened"}
		}
	}
	if opts.UseWebSocket {
		return nil, &launcher.ValidationError{Field: "use_web_socket", Message: "webkit only supports the pipe transport"}
	}

	args := []string{"--inspector-pipe"}
	if runtime.GOOS == "windows" {
		args = append(args, "--disable-accelerated-compositing")
	}
	if opts.IsHeadless() {
		args = append(args, "--headless")
	}
	if persistent {
		args = append(args, "--user-data-dir="+userDataDir)
	} else {
		args = append(args, "--no-startup-window")
	}

	proxy, err := launcher.NormalizeProxy(opts.Proxy)
	if err != nil {
		return nil, err
	}
	if proxy != nil {
		switch runtime.GOOS {
		case "darwin":
			args = append(args, "--proxy="+proxy.Server)
			if len(proxy.Bypass) > 0 {
				args = append(args, "--proxy-bypass-list="+proxy.BypassList())
			}
		case "linux":
			args = append(args, "--proxy="+proxy.Server)
			for _, host := range proxy.Bypass {
				args = append(args, "--ignore-host="+host)
			}
		case "windows":
			args = append(args, "--curl-proxy="+proxy.Server)
			if len(proxy.Bypass) > 0 {
				args = append(args, "--curl-noproxy="+proxy.BypassList())
			}
		}
	}

	args = append(args, opts.Args...)
	if persistent {
		args = append(args, "about:blank")
	}
	return args, nil
}

func (f *Family) AmendEnvironment(env launcher.Env, userDataDir, executable string, args []string) launcher.Env {
	if runtime.GOOS == "windows" {
		if _, persistent := launcher.FindArgPrefix(args, "--user-data-dir"); persistent {
			env["CURL_COOKIE_JAR_PATH"] = filepath.Join(userDataDir, "cookiejar.db")
		}
	}
	return env
}

func (f *Family) RewriteStartupError(err error) error {
	return launcher.ReplaceLogs(err, launcher.NoXServerMessage, "cannot open display")
}

func (f *Family) AttemptGracefulClose(t transport.Transport) error {
	return launcher.SendBrowserClose(t, "Playwright.close")
}

func (f *Family) Connect(ctx context.Context, opts *launcher.SessionOptions) (launcher.Session, error) {
	s, err := launcher.NewBaseSession(opts, nil)
	if err != nil {
		return nil, err
	}
	if _, err := s.Call(ctx, "Playwright.enable", nil); err != nil {
		return nil, err
	}
	if opts.Persistent {
		s.SetDefaultContext(launcher.NewDefaultContext(s, func(ctx context.Context) error {
			_, err := s.Call(ctx, "Playwright.setDownloadBehavior", map[string]any{
				"behavior":     "allow",
				"downloadPath": opts.DownloadsPath,
			})
			return err
		}))
	}
	return s, nil
}

func (f *Family) ConnectOverRemoteEndpoint(ctx context.Context, endpoint string, opts launcher.RemoteOptions) (launcher.Session, error) {
	return nil, &launcher.UnsupportedOperationError{Family: Name, Operation: "connectOverCDP"}
}
