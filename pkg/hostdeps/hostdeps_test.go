package hostdeps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/logging"
)

var _ launcher.HostValidator = (*Validator)(nil)

const lddOutput = `	linux-vdso.so.1 (0x00007ffd)
	libdl.so.2 => /lib/x86_64-linux-gnu/libdl.so.2 (0x00007f)
	libnss3.so => not found
	libgbm.so.1 => not found
	libnss3.so => not found
	libcustom.so.7 => not found
	libc.so.6 => /lib/x86_64-linux-gnu/libc.so.6 (0x00007f)
`

func fakeValidator(out string, err error) (*Validator, *[]string) {
	var seen []string
	v := New(logging.Discard())
	v.goos = "linux"
	v.run = func(_ context.Context, name string, args, env []string) ([]byte, error) {
		seen = append(seen, name+" "+strings.Join(args, " "))
		for _, kv := range env {
			if strings.HasPrefix(kv, "LD_LIBRARY_PATH=") {
				seen = append(seen, kv)
			}
		}
		return []byte(out), err
	}
	return v, &seen
}

func TestValidate_ReportsMissingLibraries(t *testing.T) {
	t.Setenv("LD_LIBRARY_PATH", "")
	v, seen := fakeValidator(lddOutput, nil)

	err := v.Validate(context.Background(), "/ms-playwright/chromium/chrome", "chromium")
	require.ErrorIs(t, err, launcher.ErrHostRequirements)

	var hostErr *launcher.HostRequirementError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "chromium", hostErr.Family)
	assert.Equal(t, []string{"libcustom.so.7", "libgbm.so.1", "libnss3.so"}, hostErr.Missing)
	assert.Equal(t, []string{"ldd /ms-playwright/chromium/chrome", "LD_LIBRARY_PATH=/ms-playwright/chromium"}, *seen)

	assert.Equal(t, "sudo apt-get install libgbm1 libnss3", InstallHint(hostErr.Missing))
}

func TestValidate_CleanHost(t *testing.T) {
	v, _ := fakeValidator("\tlibc.so.6 => /lib/libc.so.6 (0x1)\n", nil)
	assert.NoError(t, v.Validate(context.Background(), "/usr/bin/firefox", "firefox"))
}

func TestValidate_LddFailureIsNotFatal(t *testing.T) {
	v, _ := fakeValidator("\tnot a dynamic executable\n", errors.New("exit status 1"))
	assert.NoError(t, v.Validate(context.Background(), "/opt/webkit/pw_run.sh", "webkit"))
}

func TestValidate_SkippedOffLinux(t *testing.T) {
	v, seen := fakeValidator(lddOutput, nil)
	v.goos = "darwin"
	assert.NoError(t, v.Validate(context.Background(), "/Applications/Chromium", "chromium"))
	assert.Empty(t, *seen)
}

func TestValidate_Cancelled(t *testing.T) {
	v, _ := fakeValidator("", context.Canceled)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, v.Validate(ctx, "/usr/bin/chromium", "chromium"), context.Canceled)
}

func TestInstallHint_Unknown(t *testing.T) {
	assert.Equal(t, "", InstallHint([]string{"libcustom.so.7"}))
}
