package launcher

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchEndpoint(t *testing.T) {
	url, ok := MatchEndpoint("DevTools listening on ws://127.0.0.1:9222/devtools/browser/abc")
	assert.True(t, ok)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", url)

	url, ok = MatchEndpoint("DevTools listening on ws://127.0.0.1:9222/devtools/browser/abc\r")
	assert.True(t, ok)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", url)

	for _, line := range []string{
		"",
		"[1234:5678] DevTools listening on ws://127.0.0.1:1/x",
		"DevTools listening on http://127.0.0.1:1/x",
		"Juggler listening on ws://127.0.0.1:1/x",
	} {
		_, ok := MatchEndpoint(line)
		assert.False(t, ok, line)
	}
}

func TestEndpointFuture_FirstMatchWins(t *testing.T) {
	f := newEndpointFuture()
	f.offer("starting up")
	f.offer("DevTools listening on ws://first")
	f.offer("DevTools listening on ws://second")

	select {
	case url := <-f.wait():
		assert.Equal(t, "ws://first", url)
	default:
		t.Fatal("future not resolved")
	}
	select {
	case url := <-f.wait():
		t.Fatalf("resolved twice: %s", url)
	default:
	}
}

func TestRecentLogs_KeepsNewest(t *testing.T) {
	logs := NewRecentLogs(3)
	assert.Empty(t, logs.Lines())

	logs.Add("a")
	logs.Add("b")
	assert.Equal(t, []string{"a", "b"}, logs.Lines())

	for i := 0; i < 5; i++ {
		logs.Add(fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, logs.Lines())
}

func TestRecentLogs_DefaultCapacity(t *testing.T) {
	logs := NewRecentLogs(0)
	for i := 0; i < 150; i++ {
		logs.Add(fmt.Sprintf("%d", i))
	}
	lines := logs.Lines()
	assert.Len(t, lines, recentLogsSize)
	assert.Equal(t, "50", lines[0])
	assert.Equal(t, "149", lines[len(lines)-1])
}

func TestIsSpawnRace(t *testing.T) {
	race := &LaunchError{
		Err:  ErrBrowserClosed,
		Logs: []string{"Inconsistency detected by ld.so: dl-open.c: 272: assertion failed"},
	}
	assert.True(t, IsSpawnRace(race))
	assert.True(t, IsSpawnRace(fmt.Errorf("wrapped: %w", race)))
	assert.False(t, IsSpawnRace(errors.New("inconsistency detected")))
	assert.False(t, IsSpawnRace(nil))
}

func TestExecutableNotFoundError_Messages(t *testing.T) {
	explicit := &ExecutableNotFoundError{Family: "chromium", Path: "/opt/chrome", Explicit: true}
	assert.Equal(t, "Failed to launch chromium because executable doesn't exist at /opt/chrome", explicit.Error())

	resolved := &ExecutableNotFoundError{Family: "firefox", Path: "/cache/firefox/firefox"}
	assert.Contains(t, resolved.Error(), "Executable doesn't exist at /cache/firefox/firefox")
	assert.Contains(t, resolved.Error(), "install firefox")

	assert.ErrorIs(t, explicit, ErrExecutableNotFound)
}

func TestLaunchError_AppendsLogs(t *testing.T) {
	logs := NewRecentLogs(10)
	logs.Add("first")
	logs.Add("second")

	err := withLogs(errors.New("boom"), logs)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "first\nsecond")

	again := withLogs(err, NewRecentLogs(10))
	assert.Same(t, err, again)
}

func TestEndpointFuture_Abandon(t *testing.T) {
	f := newEndpointFuture()
	f.abandon()
	f.offer("DevTools listening on ws://late")
	assert.Equal(t, "", <-f.wait())

	resolved := newEndpointFuture()
	resolved.offer("DevTools listening on ws://early")
	resolved.abandon()
	assert.Equal(t, "ws://early", <-resolved.wait())
}
