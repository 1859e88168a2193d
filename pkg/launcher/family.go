package launcher

import (
	"context"
	"time"

	"github.com/entrhq/browserkit/pkg/logging"
	"github.com/entrhq/browserkit/pkg/transport"
)

// Family supplies the per-engine rules the launcher itself stays agnostic of.
type Family interface {
	// Name is the family name, e.g. "chromium".
	Name() string

	// IsPrimary marks the family that speaks the remote debugging protocol
	// natively and supports ConnectOverRemoteEndpoint.
	IsPrimary() bool

	// DefaultArgs returns the full argument list, caller args included.
	DefaultArgs(opts LaunchOptions, persistent bool, userDataDir string) ([]string, error)

	// AmendEnvironment adjusts the child environment.
	AmendEnvironment(env Env, userDataDir, executable string, args []string) Env

	// Connect builds the session over an open transport.
	Connect(ctx context.Context, opts *SessionOptions) (Session, error)

	// RewriteStartupError turns a launch failure into a more helpful error.
	RewriteStartupError(err error) error

	// AttemptGracefulClose asks the browser to exit over its transport.
	AttemptGracefulClose(t transport.Transport) error

	// ConnectOverRemoteEndpoint attaches to an already running browser.
	ConnectOverRemoteEndpoint(ctx context.Context, endpoint string, opts RemoteOptions) (Session, error)
}

// Registry resolves installed executables.
type Registry interface {
	// ExecutablePath returns the executable for family and channel, or ""
	// when none is known.
	ExecutablePath(family, channel string) string

	// IsSupportedChannel reports whether channel names a known distribution.
	IsSupportedChannel(channel string) bool
}

// HostValidator checks that the host can run an executable.
type HostValidator interface {
	Validate(ctx context.Context, executable, family string) error
}

// RemoteOptions configures ConnectOverRemoteEndpoint.
type RemoteOptions struct {
	Headers map[string]string
	SlowMo  time.Duration

	// Filled in by the launcher.
	Logger       *logging.Logger
	CloseTimeout time.Duration
}
