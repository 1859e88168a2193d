// Package progress runs long operations under a single deadline with a
// stack of cleanup actions that unwind when the operation is aborted.
package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/browserkit/pkg/logging"
)

// TimeoutError reports that an operation exceeded its deadline.
type TimeoutError struct {
	Label   string
	Timeout time.Duration
	CallLog []string
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: Timeout %s exceeded.", e.Label, e.Timeout)
	if len(e.CallLog) > 0 {
		b.WriteString("\nCall log:")
		for _, line := range e.CallLog {
			b.WriteString("\n  - ")
			b.WriteString(line)
		}
	}
	return b.String()
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// Progress is the scope handed to an operation body.
type Progress struct {
	ctx      context.Context
	label    string
	logger   *logging.Logger
	deadline time.Time

	mu       sync.Mutex
	cleanups []func()
	callLog  []string
}

// Context returns the operation context. Every blocking step must honor it.
func (p *Progress) Context() context.Context {
	return p.ctx
}

// Log records a line in the call log and forwards it to the logger.
func (p *Progress) Log(format string, v ...interface{}) {
	line := fmt.Sprintf(format, v...)
	p.mu.Lock()
	p.callLog = append(p.callLog, line)
	p.mu.Unlock()
	p.logger.Debugf("%s", line)
}

// CleanupWhenAborted registers an action to run if the operation fails or is
// aborted. Actions run in reverse registration order; on success they are dropped.
func (p *Progress) CleanupWhenAborted(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanups = append(p.cleanups, fn)
}

// TimeUntilDeadline returns the time left, or 0 when there is no deadline.
func (p *Progress) TimeUntilDeadline() time.Duration {
	if p.deadline.IsZero() {
		return 0
	}
	if left := time.Until(p.deadline); left > 0 {
		return left
	}
	return 0
}

func (p *Progress) runCleanups() {
	p.mu.Lock()
	cleanups := p.cleanups
	p.cleanups = nil
	p.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// Run executes fn under a deadline of timeout (0 means none). If fn fails or
// the context ends first, registered cleanups unwind before Run returns.
// An expired deadline is reported as *TimeoutError.
func Run[T any](ctx context.Context, label string, timeout time.Duration, logger *logging.Logger, fn func(*Progress) (T, error)) (T, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	p := &Progress{ctx: ctx, label: label, logger: logger}
	if d, ok := ctx.Deadline(); ok {
		p.deadline = d
	}
	p.Log("%s", label)

	result, err := fn(p)
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
	}
	if err == nil {
		p.mu.Lock()
		p.cleanups = nil
		p.mu.Unlock()
		return result, nil
	}

	p.runCleanups()

	var zero T
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && timeout > 0 {
		p.mu.Lock()
		callLog := append([]string(nil), p.callLog...)
		p.mu.Unlock()
		return zero, &TimeoutError{Label: label, Timeout: timeout, CallLog: callLog}
	}
	return zero, err
}

// Await blocks until ch yields a value or the operation is aborted.
func Await[T any](p *Progress, ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-p.ctx.Done():
		var zero T
		return zero, p.ctx.Err()
	}
}
