package launcher

import (
	"regexp"
	"strings"
	"sync"
)

var endpointPattern = regexp.MustCompile(`^DevTools listening on (ws://.*)$`)

// MatchEndpoint extracts the WebSocket URL from a "DevTools listening on" line.
// Trailing whitespace, including the CR of CRLF output, is not part of the URL.
func MatchEndpoint(line string) (string, bool) {
	m := endpointPattern.FindStringSubmatch(strings.TrimRight(line, " \t\r\n"))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// endpointFuture is resolved by the first matching output line.
type endpointFuture struct {
	once sync.Once
	ch   chan string
}

func newEndpointFuture() *endpointFuture {
	return &endpointFuture{ch: make(chan string, 1)}
}

// offer resolves the future if line announces an endpoint. Later matches
// are ignored.
func (f *endpointFuture) offer(line string) {
	url, ok := MatchEndpoint(line)
	if !ok {
		return
	}
	f.once.Do(func() {
		f.ch <- url
	})
}

// abandon resolves a pending future with an empty URL, meaning the process
// went away without announcing an endpoint.
func (f *endpointFuture) abandon() {
	f.once.Do(func() {
		f.ch <- ""
	})
}

func (f *endpointFuture) wait() <-chan string {
	return f.ch
}
