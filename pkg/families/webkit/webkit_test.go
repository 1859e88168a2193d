package webkit

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/launcher/launchertest"
)

func TestDefaultArgs(t *testing.T) {
	f := New()

	args, err := f.DefaultArgs(launcher.LaunchOptions{Args: []string{"--enable-logging"}}, false, "/tmp/profile")
	require.NoError(t, err)
	assert.Equal(t, "--inspector-pipe", args[0])
	assert.Contains(t, args, "--headless")
	assert.Contains(t, args, "--no-startup-window")
	assert.NotContains(t, args, "--user-data-dir=/tmp/profile")
	assert.Equal(t, "--enable-logging", args[len(args)-1])

	args, err = f.DefaultArgs(launcher.LaunchOptions{Devtools: true}, true, "/tmp/profile")
	require.NoError(t, err)
	assert.NotContains(t, args, "--headless")
	assert.Contains(t, args, "--user-data-dir=/tmp/profile")
	assert.Equal(t, "about:blank", args[len(args)-1])
}

func TestDefaultArgs_ProxyOnLinux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("proxy flags differ per platform")
	}
	args, err := New().DefaultArgs(launcher.LaunchOptions{
		Proxy: &launcher.ProxySettings{Server: "proxy:8080", Bypass: "a.com, b.com"},
	}, false, "/p")
	require.NoError(t, err)
	assert.Contains(t, args, "--proxy=http://proxy:8080")
	assert.Contains(t, args, "--ignore-host=a.com")
	assert.Contains(t, args, "--ignore-host=b.com")
}

func TestDefaultArgs_Rejects(t *testing.T) {
	f := New()
	for _, opts := range []launcher.LaunchOptions{
		{Args: []string{"--user-data-dir=/x"}},
		{Args: []string{"about:blank"}},
		{UseWebSocket: true},
	} {
		_, err := f.DefaultArgs(opts, false, "/p")
		assert.ErrorIs(t, err, launcher.ErrValidation)
	}
}

func TestRewriteStartupError(t *testing.T) {
	display := &launcher.LaunchError{Err: launcher.ErrBrowserClosed, Logs: []string{"(MiniBrowser:1): Gtk-WARNING **: cannot open display: :0"}}
	assert.Contains(t, New().RewriteStartupError(display).Error(), "XServer")
}

func TestConnect_Handshake(t *testing.T) {
	tr, browser := launchertest.NewPipeBrowser(t, nil)
	session, err := New().Connect(context.Background(), &launcher.SessionOptions{
		Name:          Name,
		Persistent:    true,
		DownloadsPath: "/dl",
		Transport:     tr,
	})
	require.NoError(t, err)
	assert.Equal(t, "Playwright.enable", browser.Next(t).Method)

	require.NoError(t, session.DefaultContext().Load(context.Background()))
	load := browser.Next(t)
	assert.Equal(t, "Playwright.setDownloadBehavior", load.Method)
	assert.JSONEq(t, `{"behavior":"allow","downloadPath":"/dl"}`, string(load.Params))
}

func TestConnect_ProtocolError(t *testing.T) {
	tr, _ := launchertest.NewPipeBrowser(t, func(req launchertest.Request) (any, string) {
		return nil, "Playwright domain is not available"
	})
	_, err := New().Connect(context.Background(), &launcher.SessionOptions{Name: Name, Transport: tr})
	var pe *launcher.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Playwright.enable", pe.Method)
}

func TestAttemptGracefulClose(t *testing.T) {
	tr := &launchertest.RecordingTransport{}
	require.NoError(t, New().AttemptGracefulClose(tr))
	assert.JSONEq(t, `{"id":-9999,"method":"Playwright.close","params":{}}`, tr.Sent()[0])
}

func TestConnectOverRemoteEndpoint_Unsupported(t *testing.T) {
	_, err := New().ConnectOverRemoteEndpoint(context.Background(), "http://127.0.0.1:1", launcher.RemoteOptions{})
	assert.ErrorIs(t, err, launcher.ErrUnsupportedOperation)
}
