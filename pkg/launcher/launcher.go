// Package launcher starts browser processes and connects to them.
//
// A Launcher is bound to one browser family. Launch normalizes the options,
// spawns the executable under a single deadline, discovers the DevTools
// endpoint when needed, opens a transport and lets the family build a
// Session on top of it. Every resource acquired on the way is released if
// the launch fails or is cancelled.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/browserkit/pkg/logging"
	"github.com/entrhq/browserkit/pkg/process"
	"github.com/entrhq/browserkit/pkg/progress"
	"github.com/entrhq/browserkit/pkg/tempdir"
	"github.com/entrhq/browserkit/pkg/transport"
)

const (
	// DefaultCloseTimeout bounds the graceful phase of a shutdown.
	DefaultCloseTimeout = 5 * time.Second

	// DebugEnv enables debug mode when set to "inspector".
	DebugEnv = "BROWSERKIT_DEBUG"

	artifactsPrefix = "browserkit-artifacts-"
)

// Launcher launches browsers of one family.
type Launcher struct {
	family       Family
	registry     Registry
	validator    HostValidator
	logger       *logging.Logger
	debugMode    bool
	closeTimeout time.Duration
	tempRoot     string
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithRegistry sets where executables are resolved from.
func WithRegistry(r Registry) Option {
	return func(l *Launcher) {
		l.registry = r
	}
}

// WithHostValidator checks host dependencies before spawning a resolved executable.
func WithHostValidator(v HostValidator) Option {
	return func(l *Launcher) {
		l.validator = v
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// WithDebugMode forces headed browsers.
func WithDebugMode(enabled bool) Option {
	return func(l *Launcher) {
		l.debugMode = enabled
	}
}

// WithCloseTimeout sets how long a graceful close may take before the
// process is killed.
func WithCloseTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		l.closeTimeout = d
	}
}

// WithTempRoot sets where temporary profiles and artifacts are created.
func WithTempRoot(dir string) Option {
	return func(l *Launcher) {
		l.tempRoot = dir
	}
}

// New creates a launcher for family.
func New(family Family, opts ...Option) (*Launcher, error) {
	if family == nil {
		return nil, errors.New("launcher requires a browser family")
	}
	l := &Launcher{
		family:       family,
		closeTimeout: DefaultCloseTimeout,
		debugMode:    os.Getenv(DebugEnv) == "inspector",
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.Discard()
	}
	l.logger = l.logger.WithPrefix("[" + family.Name() + "]")
	return l, nil
}

// Family returns the browser family.
func (l *Launcher) Family() Family {
	return l.family
}

// Launch starts a browser and returns a session connected to it.
func (l *Launcher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	return l.launch(ctx, "launch", opts, false, "")
}

// LaunchPersistentContext starts a browser with a persistent profile in
// userDataDir and returns its default context, already loaded.
func (l *Launcher) LaunchPersistentContext(ctx context.Context, userDataDir string, opts LaunchOptions) (*DefaultContext, error) {
	if userDataDir != "" && !filepath.IsAbs(userDataDir) {
		abs, err := filepath.Abs(userDataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user data dir: %w", err)
		}
		userDataDir = abs
	}
	session, err := l.launch(ctx, "launchPersistentContext", opts, true, userDataDir)
	if err != nil {
		return nil, err
	}
	dc := session.DefaultContext()
	if dc == nil {
		_ = session.Close(context.Background())
		return nil, fmt.Errorf("%s did not attach a default context", l.family.Name())
	}
	return dc, nil
}

// ConnectOverRemoteEndpoint attaches to a browser started elsewhere.
func (l *Launcher) ConnectOverRemoteEndpoint(ctx context.Context, endpoint string, opts RemoteOptions, timeout time.Duration) (Session, error) {
	opts.Logger = l.logger
	if opts.CloseTimeout == 0 {
		opts.CloseTimeout = l.closeTimeout
	}
	label := l.family.Name() + ".connectOverCDP"
	return progress.Run(ctx, label, timeout, l.logger, func(p *progress.Progress) (Session, error) {
		p.Log("<ws connecting> %s", endpoint)
		return l.family.ConnectOverRemoteEndpoint(p.Context(), endpoint, opts)
	})
}

func (l *Launcher) launch(ctx context.Context, method string, opts LaunchOptions, persistent bool, userDataDir string) (Session, error) {
	started := time.Now()
	family := l.family.Name()

	normalized, err := normalizeOptions(opts, l.debugMode)
	if err != nil {
		recordLaunch(family, started, err)
		return nil, l.family.RewriteStartupError(err)
	}

	label := family + "." + method
	session, err := progress.Run(ctx, label, normalized.Timeout, l.logger, func(p *progress.Progress) (Session, error) {
		return l.launchWithRetry(p, normalized, persistent, userDataDir)
	})
	recordLaunch(family, started, err)
	if err != nil {
		l.logger.Errorf("%s failed: %v", label, err)
		return nil, l.family.RewriteStartupError(err)
	}
	l.logger.Infof("%s succeeded in %s (session %s)", label, time.Since(started).Round(time.Millisecond), session.ID())
	return session, nil
}

// launchWithRetry retries exactly once when the browser hit the glibc
// loader race during startup.
func (l *Launcher) launchWithRetry(p *progress.Progress, opts LaunchOptions, persistent bool, userDataDir string) (Session, error) {
	session, err := l.innerLaunch(p, opts, persistent, userDataDir)
	if err == nil || !IsSpawnRace(err) {
		return session, err
	}
	p.Log("<restarting browser due to hitting race condition in glibc>")
	recordRetry(l.family.Name())
	return l.innerLaunch(p, opts, persistent, userDataDir)
}

func (l *Launcher) innerLaunch(p *progress.Progress, opts LaunchOptions, persistent bool, userDataDir string) (session Session, err error) {
	proxy, err := NormalizeProxy(opts.Proxy)
	if err != nil {
		return nil, err
	}

	logs := NewRecentLogs(recentLogsSize)
	launched, err := l.launchProcess(p, opts, persistent, userDataDir, logs)
	if err != nil {
		return nil, withLogs(err, logs)
	}
	defer func() {
		if err != nil {
			_ = launched.process.Close(l.closeTimeout)
			_ = launched.transport.Close()
			err = withLogs(err, logs)
		}
	}()

	bundle := &SessionOptions{
		Name:          l.family.Name(),
		IsPrimary:     l.family.IsPrimary(),
		Channel:       opts.Channel,
		Persistent:    persistent,
		Headless:      opts.IsHeadless(),
		SlowMo:        opts.SlowMo,
		DownloadsPath: launched.downloadsPath,
		UserDataDir:   launched.userDataDir,
		Executable:    launched.executable,
		Args:          launched.args,
		WSEndpoint:    launched.wsEndpoint,
		Proxy:         proxy,
		Process:       launched.process,
		Transport:     launched.transport,
		RecentLogs:    logs,
		Logger:        l.logger.WithPrefix(fmt.Sprintf("[pid=%d]", launched.process.PID())),
		CloseTimeout:  l.closeTimeout,
		LaunchOptions: opts,
		TestHooks:     testHooks(opts.Extras),
	}
	if persistent {
		if err := bundle.ValidatePersistent(); err != nil {
			return nil, err
		}
	}

	session, err = l.family.Connect(p.Context(), bundle)
	if err != nil {
		return nil, err
	}
	if persistent && !opts.IgnoreDefaultArgs.All {
		dc := session.DefaultContext()
		if dc == nil {
			return nil, fmt.Errorf("%s did not attach a default context", l.family.Name())
		}
		if err := dc.Load(p.Context()); err != nil {
			return nil, fmt.Errorf("failed to load default context: %w", err)
		}
	}
	return session, nil
}

type launchedProcess struct {
	process       *process.Process
	transport     transport.Transport
	downloadsPath string
	userDataDir   string
	executable    string
	args          []string
	wsEndpoint    string
}

// transportRef lets the graceful close hook reach a transport that is only
// opened after the process started.
type transportRef struct {
	mu sync.Mutex
	t  transport.Transport
}

func (r *transportRef) set(t transport.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t = t
}

func (r *transportRef) get() transport.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t
}

func (l *Launcher) launchProcess(p *progress.Progress, opts LaunchOptions, persistent bool, userDataDir string, logs *RecentLogs) (*launchedProcess, error) {
	ctx := p.Context()
	family := l.family.Name()
	tracker := tempdir.NewTracker(l.tempRoot)
	spawned := false
	defer func() {
		// Once spawned, the process removes them after it exits.
		if !spawned {
			_ = tracker.RemoveAll()
		}
	}()

	downloadsPath := opts.DownloadsPath
	if downloadsPath != "" {
		if err := os.MkdirAll(downloadsPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create downloads dir: %w", err)
		}
	} else {
		dir, err := tracker.Create(artifactsPrefix)
		if err != nil {
			return nil, err
		}
		downloadsPath = dir
	}

	if userDataDir == "" {
		dir, err := tracker.Create(fmt.Sprintf("browserkit_%s_profile-", family))
		if err != nil {
			return nil, err
		}
		userDataDir = dir
	}

	args, err := l.buildArgs(opts, persistent, userDataDir)
	if err != nil {
		return nil, err
	}

	executable, err := l.resolveExecutable(opts)
	if err != nil {
		return nil, err
	}
	if opts.ExecutablePath == "" && l.validator != nil {
		if err := l.validator.Validate(ctx, executable, family); err != nil {
			var hostErr *HostRequirementError
			if errors.As(err, &hostErr) {
				return nil, err
			}
			return nil, &HostRequirementError{Family: family, Err: err}
		}
	}

	needsEndpoint := opts.UseWebSocket || hasArgPrefix(args, "--remote-debugging-port")
	endpoint := newEndpointFuture()
	env := l.family.AmendEnvironment(baseEnv(opts.Env), userDataDir, executable, args)

	var pid atomic.Int64
	ref := &transportRef{}
	proc, err := process.Launch(ctx, process.Options{
		Executable:    executable,
		Args:          args,
		Env:           env.List(),
		HandleSIGINT:  boolOr(opts.HandleSIGINT, true),
		HandleSIGTERM: boolOr(opts.HandleSIGTERM, true),
		HandleSIGHUP:  boolOr(opts.HandleSIGHUP, true),
		Pipe:          !needsEndpoint,
		TempDirs:      tracker,
		AttemptGracefulClose: func(context.Context) error {
			t := ref.get()
			if t == nil {
				return errors.New("no transport to the browser")
			}
			return l.family.AttemptGracefulClose(t)
		},
		OnLine: func(stream process.Stream, line string) {
			endpoint.offer(line)
			logs.Add(line)
			// The call log only grows while the launch is in flight.
			if ctx.Err() == nil {
				p.Log("[pid=%d][%s] %s", pid.Load(), stream, line)
			} else {
				l.logger.Debugf("[pid=%d][%s] %s", pid.Load(), stream, line)
			}
		},
		Logger: l.logger,
	})
	if err != nil {
		return nil, err
	}
	spawned = true
	pid.Store(int64(proc.PID()))
	trackProcess(proc.Done())
	p.Log("<launched> pid=%d", proc.PID())

	p.CleanupWhenAborted(func() {
		_ = proc.Close(l.closeTimeout)
	})

	fail := func(err error) (*launchedProcess, error) {
		_ = proc.Close(l.closeTimeout)
		return nil, err
	}

	result := &launchedProcess{
		process:       proc,
		downloadsPath: downloadsPath,
		userDataDir:   userDataDir,
		executable:    executable,
		args:          args,
	}

	if needsEndpoint {
		go func() {
			<-proc.Done()
			endpoint.abandon()
		}()
		url, err := progress.Await(p, endpoint.wait())
		if err != nil {
			return fail(&TransportError{Err: err})
		}
		if url == "" {
			return fail(&TransportError{Err: fmt.Errorf("browser process exited before announcing its endpoint (%s)", proc.ExitStatus())})
		}
		result.wsEndpoint = url
		p.Log("<ws connecting> %s", result.wsEndpoint)
		ws, err := transport.DialWebSocket(ctx, result.wsEndpoint, transport.DialOptions{HandshakeTimeout: p.TimeUntilDeadline()})
		if err != nil {
			return fail(&TransportError{Endpoint: result.wsEndpoint, Err: err})
		}
		p.Log("<ws connected> %s", result.wsEndpoint)
		result.transport = ws
	} else {
		w, r := proc.Pipe()
		result.transport = transport.NewPipe(w, r)
	}
	ref.set(result.transport)
	return result, nil
}

func (l *Launcher) buildArgs(opts LaunchOptions, persistent bool, userDataDir string) ([]string, error) {
	if opts.IgnoreDefaultArgs.All {
		return append([]string(nil), opts.Args...), nil
	}
	defaults, err := l.family.DefaultArgs(opts, persistent, userDataDir)
	if err != nil {
		return nil, err
	}
	return filterArgs(defaults, opts.IgnoreDefaultArgs.Args), nil
}

func (l *Launcher) resolveExecutable(opts LaunchOptions) (string, error) {
	family := l.family.Name()
	if opts.ExecutablePath != "" {
		if !fileExists(opts.ExecutablePath) {
			return "", &ExecutableNotFoundError{Family: family, Path: opts.ExecutablePath, Explicit: true}
		}
		return opts.ExecutablePath, nil
	}
	if l.registry == nil {
		return "", &ExecutableNotFoundError{Family: family}
	}
	if opts.Channel != "" && !l.registry.IsSupportedChannel(opts.Channel) {
		return "", &ValidationError{Field: "channel", Message: fmt.Sprintf("unsupported %s distribution %q", family, opts.Channel)}
	}
	path := l.registry.ExecutablePath(family, opts.Channel)
	if path == "" || !fileExists(path) {
		return "", &ExecutableNotFoundError{Family: family, Path: path}
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
