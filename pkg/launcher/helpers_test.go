package launcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBox(t *testing.T) {
	assert.Equal(t, "╔════════╗\n║ ab     ║\n║ cdefgh ║\n╚════════╝", Box("ab\ncdefgh", 1))
}

func TestFindArgPrefix(t *testing.T) {
	arg, ok := FindArgPrefix([]string{"--lang=de", "--user-data-dir=/p"}, "-profile", "--user-data-dir")
	assert.True(t, ok)
	assert.Equal(t, "--user-data-dir=/p", arg)

	_, ok = FindArgPrefix([]string{"--lang=de"}, "--user-data-dir")
	assert.False(t, ok)
}

func TestReplaceLogs(t *testing.T) {
	launchErr := &LaunchError{Err: ErrBrowserClosed, Logs: []string{"starting", "Missing X server"}}

	replaced := ReplaceLogs(launchErr, "use xvfb", "X server")
	var got *LaunchError
	assert.ErrorAs(t, replaced, &got)
	assert.Equal(t, []string{"", Box("use xvfb", 1)}, got.Logs)
	assert.ErrorIs(t, replaced, ErrBrowserClosed)
	assert.NotContains(t, replaced.Error(), "Missing X server")

	assert.Same(t, launchErr, ReplaceLogs(launchErr, "hint", "sandbox"))

	plain := errors.New("plain")
	assert.Same(t, plain, ReplaceLogs(plain, "hint", "plain"))
}

func TestUserDataDirArgError(t *testing.T) {
	err := UserDataDirArgError("-profile")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "instead of specifying '-profile' argument")
}
