package launcher

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/net/http/httpproxy"
)

// Proxy is a validated proxy configuration.
type Proxy struct {
	// Server is scheme://host[:port] with no path or credentials.
	Server   string
	Scheme   string
	Bypass   []string
	Username string
	Password string

	bypass  []glob.Glob
	noProxy func(*url.URL) (*url.URL, error)
}

// Bypasses reports whether host, optionally with a port, skips the proxy.
// Wildcard rules match as globs; plain rules follow NO_PROXY semantics, so
// ".example.com" covers subdomains and "10.0.0.0/8" covers the block.
// Loopback hosts always bypass.
func (p *Proxy) Bypasses(host string) bool {
	bare := (&url.URL{Host: host}).Hostname()
	for _, g := range p.bypass {
		if g.Match(bare) {
			return true
		}
	}
	if p.noProxy == nil {
		return false
	}
	via, err := p.noProxy(&url.URL{Scheme: "http", Host: host})
	return err == nil && via == nil
}

// BypassList joins the bypass rules the way browsers expect them.
func (p *Proxy) BypassList() string {
	return strings.Join(p.Bypass, ",")
}

// NormalizeProxy validates settings and defaults the scheme to http. A nil
// input yields a nil proxy.
func NormalizeProxy(settings *ProxySettings) (*Proxy, error) {
	if settings == nil {
		return nil, nil
	}
	server := strings.TrimSpace(settings.Server)
	if server == "" {
		return nil, &ValidationError{Field: "proxy.server", Message: "must not be empty"}
	}

	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Hostname() == "" {
		return nil, &ValidationError{Field: "proxy.server", Message: fmt.Sprintf("invalid proxy server %q", settings.Server)}
	}
	if port := u.Port(); port != "" {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return nil, &ValidationError{Field: "proxy.server", Message: fmt.Sprintf("invalid proxy port %q", port)}
		}
	}

	credentials := settings.Username != "" || settings.Password != ""
	switch u.Scheme {
	case "http", "https":
	case "socks4":
		if credentials {
			return nil, &ValidationError{Field: "proxy", Message: "Socks4 proxy protocol does not support authentication"}
		}
	case "socks5":
		if credentials {
			return nil, &ValidationError{Field: "proxy", Message: "Browser does not support socks5 proxy authentication"}
		}
	default:
		return nil, &ValidationError{Field: "proxy.server", Message: fmt.Sprintf("unsupported proxy scheme %q", u.Scheme)}
	}

	p := &Proxy{
		Server:   u.Scheme + "://" + u.Host,
		Scheme:   u.Scheme,
		Username: settings.Username,
		Password: settings.Password,
	}

	var plain []string
	for _, rule := range strings.Split(settings.Bypass, ",") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		p.Bypass = append(p.Bypass, rule)
		if !strings.ContainsAny(rule, "*?[]{}") {
			plain = append(plain, rule)
			continue
		}
		g, err := glob.Compile(rule)
		if err != nil {
			return nil, &ValidationError{Field: "proxy.bypass", Message: fmt.Sprintf("invalid bypass rule %q: %v", rule, err)}
		}
		p.bypass = append(p.bypass, g)
	}
	p.noProxy = (&httpproxy.Config{
		HTTPProxy:  p.Server,
		HTTPSProxy: p.Server,
		NoProxy:    strings.Join(plain, ","),
	}).ProxyFunc()
	return p, nil
}
