// Package process spawns and supervises a browser process.
//
// A Process owns the OS process, its output scanners and the directories to
// remove once it exits. Shutdown is two-phase: Close first runs the graceful
// close action and waits for exit, escalating to a process-group kill if the
// action fails or the timeout elapses.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/browserkit/pkg/logging"
)

// ErrExitObserverSet is returned when OnExit is called a second time.
var ErrExitObserverSet = errors.New("process: exit observer already set")

// Stream identifies which output stream a line came from.
type Stream string

const (
	Stdout Stream = "out"
	Stderr Stream = "err"
)

// ExitStatus describes how the process ended. Signal is empty unless the
// process was terminated by a signal, in which case Code is -1.
type ExitStatus struct {
	Code   int
	Signal string
}

func (s ExitStatus) String() string {
	signal := s.Signal
	if signal == "" {
		signal = "null"
	}
	return fmt.Sprintf("exitCode=%d, signal=%s", s.Code, signal)
}

// Cleaner removes resources that must outlive the process but not its exit.
type Cleaner interface {
	RemoveAll() error
}

// Options configures Launch.
type Options struct {
	Executable string
	Args       []string
	// Env is the complete environment of the child, in os.Environ form.
	Env []string
	Dir string

	HandleSIGINT  bool
	HandleSIGTERM bool
	HandleSIGHUP  bool

	// Pipe opens two extra descriptors: fd 3 is read by the child, fd 4 is
	// written by the child.
	Pipe bool

	// TempDirs is swept after the process exits, whatever the launch outcome.
	TempDirs Cleaner

	// AttemptGracefulClose asks the browser to shut down. It should return once
	// the request is sent; Close then waits for the process to exit.
	AttemptGracefulClose func(ctx context.Context) error

	// OnLine receives every output line in emission order per stream. Calls
	// are serialized.
	OnLine func(stream Stream, line string)

	Logger *logging.Logger
}

// Process is a running browser process.
type Process struct {
	cmd    *exec.Cmd
	pid    int
	opts   Options
	logger *logging.Logger

	// Parent ends of the fd 3 / fd 4 pipes, nil unless Options.Pipe.
	pipeWrite *os.File
	pipeRead  *os.File
	pipeMu    sync.Mutex
	pipeTaken bool

	done   chan struct{}
	status ExitStatus

	exitMu sync.Mutex
	exited bool
	onExit func(ExitStatus)

	closeOnce sync.Once
}

const maxLineSize = 1024 * 1024

// outputDrainTimeout bounds reading output after the process exited.
const outputDrainTimeout = 250 * time.Millisecond

// Launch starts the process. It fails only if the process could not be
// started; ctx is consulted before spawning but does not bound the process
// lifetime.
func Launch(ctx context.Context, opts Options) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	cmd := exec.Command(opts.Executable, opts.Args...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir
	configureProcAttr(cmd)

	// Output pipes are created here rather than through StdoutPipe so that
	// Wait returns on process exit even while descendants hold the write ends.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		stdout.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	cmd.Stdout, cmd.Stderr = stdoutW, stderrW
	outputs := []*os.File{stdout, stderr}

	p := &Process{
		cmd:  cmd,
		opts: opts,
		done: make(chan struct{}),
	}

	childEnds := []*os.File{stdoutW, stderrW}
	if opts.Pipe {
		childIn, parentWrite, err := os.Pipe()
		if err != nil {
			closeFiles(append(outputs, childEnds...))
			return nil, fmt.Errorf("failed to create browser pipe: %w", err)
		}
		parentRead, childOut, err := os.Pipe()
		if err != nil {
			closeFiles(append(outputs, childEnds...))
			closeFiles([]*os.File{childIn, parentWrite})
			return nil, fmt.Errorf("failed to create browser pipe: %w", err)
		}
		cmd.ExtraFiles = []*os.File{childIn, childOut}
		childEnds = append(childEnds, childIn, childOut)
		p.pipeWrite, p.pipeRead = parentWrite, parentRead
	}

	logger.Infof("<launching> %s %s", opts.Executable, strings.Join(opts.Args, " "))
	startErr := cmd.Start()
	closeFiles(childEnds)
	if startErr != nil {
		closeFiles(outputs)
		p.closePipes()
		logger.Errorf("<launch failed> %v", startErr)
		return nil, fmt.Errorf("failed to launch: %w", startErr)
	}

	p.pid = cmd.Process.Pid
	p.logger = logger.WithPrefix(fmt.Sprintf("[pid=%d]", p.pid))
	p.logger.Infof("<launched>")

	hub.register(p)
	go p.supervise(stdout, stderr)
	return p, nil
}

// PID returns the OS process id.
func (p *Process) PID() int {
	return p.pid
}

// Pipe hands over the parent ends of the fd 3 / fd 4 pipe: w feeds the
// browser, r reads from it. The caller owns them afterwards. Both are nil
// unless launched with Options.Pipe.
func (p *Process) Pipe() (w io.WriteCloser, r io.ReadCloser) {
	p.pipeMu.Lock()
	defer p.pipeMu.Unlock()
	if p.pipeWrite == nil {
		return nil, nil
	}
	p.pipeTaken = true
	return p.pipeWrite, p.pipeRead
}

// Done is closed once the process exited and its temp dirs were swept.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitStatus returns the exit status. Only meaningful after Done is closed.
func (p *Process) ExitStatus() ExitStatus {
	<-p.done
	return p.status
}

// OnExit installs the exit observer. It may be set once; if the process has
// already exited, fn runs immediately on its own goroutine.
func (p *Process) OnExit(fn func(ExitStatus)) error {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	if p.onExit != nil {
		return ErrExitObserverSet
	}
	p.onExit = fn
	if p.exited {
		go fn(p.status)
	}
	return nil
}

// Kill terminates the process group immediately and waits for the exit.
func (p *Process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	p.logger.Infof("<kill>")
	err := killProcess(p.cmd.Process)
	<-p.done
	return err
}

// Close shuts the process down gracefully, force killing it if the graceful
// attempt fails or takes longer than timeout. It returns only after the OS
// process exited. Concurrent calls share one shutdown.
func (p *Process) Close(timeout time.Duration) error {
	p.closeOnce.Do(func() {
		go p.shutdown(timeout)
	})
	<-p.done
	return nil
}

func (p *Process) shutdown(timeout time.Duration) {
	select {
	case <-p.done:
		return
	default:
	}
	if timeout <= 0 || p.opts.AttemptGracefulClose == nil {
		_ = p.Kill()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	graceful := make(chan error, 1)
	go func() {
		graceful <- p.gracefullyClose(ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-graceful:
		if err != nil {
			p.logger.Warnf("<graceful close failed> %v", err)
			_ = p.Kill()
		}
	case <-timer.C:
		p.logger.Warnf("<graceful close timed out after %s, will force kill>", timeout)
		cancel()
		_ = p.Kill()
	}
}

func (p *Process) gracefullyClose(ctx context.Context) error {
	p.logger.Infof("<gracefully close start>")
	if err := p.opts.AttemptGracefulClose(ctx); err != nil {
		return err
	}
	select {
	case <-p.done:
		p.logger.Infof("<gracefully close end>")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Process) supervise(stdout, stderr *os.File) {
	var lineMu sync.Mutex
	emit := func(stream Stream, line string) {
		if p.opts.OnLine == nil {
			return
		}
		lineMu.Lock()
		defer lineMu.Unlock()
		p.opts.OnLine(stream, line)
	}

	var g errgroup.Group
	g.Go(func() error { return scanLines(stdout, Stdout, emit) })
	g.Go(func() error { return scanLines(stderr, Stderr, emit) })

	waitErr := p.cmd.Wait()
	p.status = exitStatusOf(p.cmd.ProcessState)
	if waitErr != nil && p.cmd.ProcessState == nil {
		p.logger.Errorf("<wait failed> %v", waitErr)
	}

	// Descendants may keep the output pipes open. Read what the process
	// left buffered, then stop.
	deadline := time.Now().Add(outputDrainTimeout)
	for _, f := range []*os.File{stdout, stderr} {
		if err := f.SetReadDeadline(deadline); err != nil {
			_ = f.Close()
		}
	}
	if err := g.Wait(); err != nil {
		p.logger.Debugf("<output scan ended> %v", err)
	}
	closeFiles([]*os.File{stdout, stderr})
	p.logger.Infof("<process did exit: %s>", p.status)

	hub.unregister(p)
	p.closePipes()

	if p.opts.TempDirs != nil {
		p.logger.Debugf("<starting temporary directories cleanup>")
		if err := p.opts.TempDirs.RemoveAll(); err != nil {
			p.logger.Warnf("<temporary directories cleanup failed> %v", err)
		}
		p.logger.Debugf("<finished temporary directories cleanup>")
	}

	p.exitMu.Lock()
	p.exited = true
	onExit := p.onExit
	p.exitMu.Unlock()

	close(p.done)
	if onExit != nil {
		onExit(p.status)
	}
}

// closePipes releases the parent pipe ends unless they were handed over.
func (p *Process) closePipes() {
	p.pipeMu.Lock()
	defer p.pipeMu.Unlock()
	if p.pipeTaken {
		return
	}
	if p.pipeWrite != nil {
		_ = p.pipeWrite.Close()
	}
	if p.pipeRead != nil {
		_ = p.pipeRead.Close()
	}
}

func scanLines(r io.Reader, stream Stream, emit func(Stream, string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		emit(stream, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		// Drain so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return fmt.Errorf("%s scan: %w", stream, err)
	}
	return nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func exitStatusOf(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	if signal := exitSignal(state); signal != "" {
		return ExitStatus{Code: -1, Signal: signal}
	}
	return ExitStatus{Code: state.ExitCode()}
}
