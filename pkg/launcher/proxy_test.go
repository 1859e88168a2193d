package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProxy(t *testing.T) {
	tests := []struct {
		name       string
		settings   ProxySettings
		wantServer string
		wantBypass string
		wantErr    string
	}{
		{name: "host and port default to http", settings: ProxySettings{Server: "proxy.local:3128"}, wantServer: "http://proxy.local:3128"},
		{name: "path is dropped", settings: ProxySettings{Server: "https://proxy.local:443/some/path"}, wantServer: "https://proxy.local:443"},
		{name: "socks5 without auth", settings: ProxySettings{Server: "socks5://127.0.0.1:1080"}, wantServer: "socks5://127.0.0.1:1080"},
		{name: "socks4", settings: ProxySettings{Server: "socks4://127.0.0.1:1080"}, wantServer: "socks4://127.0.0.1:1080"},
		{
			name:       "bypass is trimmed",
			settings:   ProxySettings{Server: "proxy:1", Bypass: " .example.com, localhost ,,"},
			wantServer: "http://proxy:1",
			wantBypass: ".example.com,localhost",
		},
		{name: "socks5 auth", settings: ProxySettings{Server: "socks5://h:1", Username: "u"}, wantErr: "socks5 proxy authentication"},
		{name: "socks4 auth", settings: ProxySettings{Server: "socks4://h:1", Password: "p"}, wantErr: "Socks4 proxy protocol does not support authentication"},
		{name: "empty server", settings: ProxySettings{}, wantErr: "must not be empty"},
		{name: "unknown scheme", settings: ProxySettings{Server: "ftp://h:21"}, wantErr: "unsupported proxy scheme"},
		{name: "space in host", settings: ProxySettings{Server: "http://a b"}, wantErr: "invalid proxy server"},
		{name: "non-numeric port", settings: ProxySettings{Server: "http://h:port"}, wantErr: "invalid proxy server"},
		{name: "port out of range", settings: ProxySettings{Server: "http://host:99999"}, wantErr: "invalid proxy port"},
		{name: "zero port without scheme", settings: ProxySettings{Server: "host:0"}, wantErr: "invalid proxy port"},
		{name: "bad bypass", settings: ProxySettings{Server: "h:1", Bypass: "[a-"}, wantErr: "invalid bypass rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NormalizeProxy(&tt.settings)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantServer, p.Server)
			assert.Equal(t, tt.wantBypass, p.BypassList())
		})
	}
}

func TestNormalizeProxy_Nil(t *testing.T) {
	p, err := NormalizeProxy(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestProxy_Bypasses(t *testing.T) {
	p, err := NormalizeProxy(&ProxySettings{Server: "proxy:1", Bypass: ".internal.net,localhost,10.0.*"})
	require.NoError(t, err)

	assert.True(t, p.Bypasses("api.internal.net"))
	assert.True(t, p.Bypasses("a.b.internal.net"))
	assert.True(t, p.Bypasses("localhost"))
	assert.True(t, p.Bypasses("10.0.0.7"))
	assert.False(t, p.Bypasses("example.com"))
}

func TestProxy_BypassesNoProxyRules(t *testing.T) {
	p, err := NormalizeProxy(&ProxySettings{Server: "socks5://proxy:1080", Bypass: "corp.example,10.0.0.0/8,.svc"})
	require.NoError(t, err)

	assert.True(t, p.Bypasses("corp.example"))
	assert.True(t, p.Bypasses("git.corp.example:8443"))
	assert.True(t, p.Bypasses("10.1.2.3"))
	assert.True(t, p.Bypasses("api.svc"))
	assert.True(t, p.Bypasses("127.0.0.1:9222"), "loopback always bypasses")
	assert.False(t, p.Bypasses("svc"))
	assert.False(t, p.Bypasses("11.0.0.1"))
	assert.False(t, p.Bypasses("example.org"))
}
