package chromium

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/launcher/launchertest"
)

func boolPtr(b bool) *bool { return &b }

func TestDefaultArgs(t *testing.T) {
	f := New()

	args, err := f.DefaultArgs(launcher.LaunchOptions{Args: []string{"--lang=de"}}, false, "/tmp/profile")
	require.NoError(t, err)
	assert.Contains(t, args, "--headless")
	assert.Contains(t, args, "--no-sandbox")
	assert.Contains(t, args, "--enable-automation")
	assert.Contains(t, args, "--user-data-dir=/tmp/profile")
	assert.Contains(t, args, "--remote-debugging-pipe")
	assert.Contains(t, args, "--lang=de")
	assert.Equal(t, "--no-startup-window", args[len(args)-1])

	args, err = f.DefaultArgs(launcher.LaunchOptions{Headless: boolPtr(false), ChromiumSandbox: true}, true, "/tmp/profile")
	require.NoError(t, err)
	assert.NotContains(t, args, "--headless")
	assert.NotContains(t, args, "--no-sandbox")
	assert.Equal(t, "about:blank", args[len(args)-1])

	args, err = f.DefaultArgs(launcher.LaunchOptions{UseWebSocket: true, Devtools: true}, false, "/p")
	require.NoError(t, err)
	assert.Contains(t, args, "--remote-debugging-port=0")
	assert.Contains(t, args, "--auto-open-devtools-for-tabs")
	assert.NotContains(t, args, "--remote-debugging-pipe")
}

func TestDefaultArgs_RejectsManagedArguments(t *testing.T) {
	f := New()
	for _, arg := range []string{"--user-data-dir=/x", "--remote-debugging-pipe", "https://example.com"} {
		_, err := f.DefaultArgs(launcher.LaunchOptions{Args: []string{arg}}, false, "/p")
		assert.ErrorIs(t, err, launcher.ErrValidation, arg)
	}

	_, err := f.DefaultArgs(launcher.LaunchOptions{Args: []string{"--user-data-dir=/x"}}, true, "/p")
	assert.Contains(t, err.Error(), "Pass userDataDir parameter")
}

func TestDefaultArgs_Proxy(t *testing.T) {
	f := New()
	args, err := f.DefaultArgs(launcher.LaunchOptions{
		Proxy: &launcher.ProxySettings{Server: "socks5://proxy.local:1080", Bypass: ".example.com, intranet"},
	}, false, "/p")
	require.NoError(t, err)
	assert.Contains(t, args, `--host-resolver-rules="MAP * ~NOTFOUND , EXCLUDE proxy.local"`)
	assert.Contains(t, args, "--proxy-server=socks5://proxy.local:1080")
	assert.Contains(t, args, "--proxy-bypass-list=*.example.com;intranet;<-loopback>")

	args, err = f.DefaultArgs(launcher.LaunchOptions{
		Proxy: &launcher.ProxySettings{Server: "proxy.local:3128", Bypass: "<-loopback>"},
	}, false, "/p")
	require.NoError(t, err)
	assert.Contains(t, args, "--proxy-server=http://proxy.local:3128")
	assert.Contains(t, args, "--proxy-bypass-list=<-loopback>")
}

func TestRewriteStartupError(t *testing.T) {
	f := New()

	sandbox := &launcher.LaunchError{Err: launcher.ErrBrowserClosed, Logs: []string{"FATAL: No usable sandbox! Update your kernel"}}
	err := f.RewriteStartupError(sandbox)
	assert.Contains(t, err.Error(), "Chromium sandboxing failed!")
	assert.NotContains(t, err.Error(), "Update your kernel")
	assert.ErrorIs(t, err, launcher.ErrBrowserClosed)

	display := &launcher.LaunchError{Err: launcher.ErrBrowserClosed, Logs: []string{"Missing X server or $DISPLAY"}}
	assert.Contains(t, f.RewriteStartupError(display).Error(), "XServer")

	other := errors.New("boom")
	assert.Same(t, other, f.RewriteStartupError(other))
}

func TestAttemptGracefulClose(t *testing.T) {
	tr := &launchertest.RecordingTransport{}
	require.NoError(t, New().AttemptGracefulClose(tr))
	require.Len(t, tr.Sent(), 1)
	assert.JSONEq(t, `{"id":-9999,"method":"Browser.close","params":{}}`, tr.Sent()[0])
}

func TestConnect_PersistentLoadsDefaultContext(t *testing.T) {
	tr, browser := launchertest.NewPipeBrowser(t, nil)
	opts := &launcher.SessionOptions{Name: Name, Persistent: true, DownloadsPath: "/dl", Transport: tr}

	session, err := New().Connect(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "Browser.getVersion", browser.Next(t).Method)

	dc := session.DefaultContext()
	require.NotNil(t, dc)
	require.NoError(t, dc.Load(context.Background()))

	req := browser.Next(t)
	assert.Equal(t, "Browser.setDownloadBehavior", req.Method)
	assert.JSONEq(t, `{"behavior":"allowAndName","downloadPath":"/dl","eventsEnabled":true}`, string(req.Params))
	assert.Equal(t, "Target.setAutoAttach", browser.Next(t).Method)
}

func TestConnect_BrowserGone(t *testing.T) {
	tr, browser := launchertest.NewPipeBrowser(t, nil)
	browser.Disconnect()

	_, err := New().Connect(context.Background(), &launcher.SessionOptions{Name: Name, Transport: tr})
	assert.ErrorIs(t, err, launcher.ErrBrowserClosed)
}

// newDevToolsServer serves /json/version and a browser target that answers
// every request with an empty result.
func newDevToolsServer(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	methods := make(chan string, 16)
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/json/version/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/devtools/browser/abc"
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "HeadlessChrome/120.0",
			"webSocketDebuggerUrl": wsURL,
		})
	})
	mux.HandleFunc("/devtools/browser/abc", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req launchertest.Request
			if json.Unmarshal(data, &req) != nil {
				continue
			}
			methods <- req.Method
			reply, _ := json.Marshal(map[string]any{"id": req.ID, "result": map[string]any{"product": "HeadlessChrome/120.0"}})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, methods
}

func TestConnectOverRemoteEndpoint_HTTPDiscovery(t *testing.T) {
	server, methods := newDevToolsServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := New().ConnectOverRemoteEndpoint(ctx, server.URL+"/", launcher.RemoteOptions{
		Headers: map[string]string{"X-Token": "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Browser.getVersion", <-methods)

	so := session.Options()
	assert.True(t, so.IsPrimary)
	assert.Nil(t, so.Process)
	assert.True(t, strings.HasSuffix(so.WSEndpoint, "/devtools/browser/abc"))

	require.NoError(t, session.Close(ctx))
}

func TestConnectOverRemoteEndpoint_NotDevTools(t *testing.T) {
	server, _ := newDevToolsServer(t)

	_, err := New().ConnectOverRemoteEndpoint(context.Background(), server.URL, launcher.RemoteOptions{})
	assert.ErrorIs(t, err, launcher.ErrTransport)
	assert.Contains(t, err.Error(), "unexpected status 403")
	assert.Contains(t, err.Error(), "does not look like a DevTools server")
}

func TestConnectOverRemoteEndpoint_WebSocketURL(t *testing.T) {
	server, methods := newDevToolsServer(t)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/devtools/browser/abc"

	session, err := New().ConnectOverRemoteEndpoint(context.Background(), wsURL, launcher.RemoteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Browser.getVersion", <-methods)
	assert.Equal(t, wsURL, session.Options().WSEndpoint)
	require.NoError(t, session.Close(context.Background()))
}
