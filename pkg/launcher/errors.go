package launcher

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	// ErrValidation indicates invalid launch options.
	ErrValidation = errors.New("invalid launch options")

	// ErrExecutableNotFound indicates the browser executable is missing.
	ErrExecutableNotFound = errors.New("browser executable not found")

	// ErrHostRequirements indicates the host lacks libraries the browser needs.
	ErrHostRequirements = errors.New("host requirements not met")

	// ErrTransport indicates the transport to the browser could not be opened.
	ErrTransport = errors.New("browser transport failed")

	// ErrUnsupportedOperation indicates the family does not support an operation.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrBrowserClosed indicates the browser went away before answering.
	ErrBrowserClosed = errors.New("browser has been closed")
)

// spawnRaceSignature is printed by the dynamic loader when the browser hits
// the glibc startup race. Launches failing with it are retried once.
const spawnRaceSignature = "Inconsistency detected by ld.so"

// IsSpawnRace reports whether err carries the glibc loader race signature.
func IsSpawnRace(err error) bool {
	return err != nil && strings.Contains(err.Error(), spawnRaceSignature)
}

// ValidationError reports an option that cannot be used.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ExecutableNotFoundError reports a missing browser executable. Explicit is
// set when the caller supplied the path.
type ExecutableNotFoundError struct {
	Family   string
	Path     string
	Explicit bool
}

func (e *ExecutableNotFoundError) Error() string {
	if e.Explicit {
		return fmt.Sprintf("Failed to launch %s because executable doesn't exist at %s", e.Family, e.Path)
	}
	if e.Path == "" {
		return fmt.Sprintf("Executable for %s is not installed.\nRun \"browserkit install %s\" to install it.", e.Family, e.Family)
	}
	return fmt.Sprintf("Executable doesn't exist at %s\nLooks like the browser was not installed or was updated.\nRun \"browserkit install %s\" to reinstall it.", e.Path, e.Family)
}

func (e *ExecutableNotFoundError) Is(target error) bool {
	return target == ErrExecutableNotFound
}

// HostRequirementError reports that the host validator rejected the executable.
type HostRequirementError struct {
	Family  string
	Missing []string
	Err     error
}

func (e *HostRequirementError) Error() string {
	msg := fmt.Sprintf("Host system is missing dependencies to run %s", e.Family)
	if len(e.Missing) > 0 {
		msg += ":\n    " + strings.Join(e.Missing, "\n    ")
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

func (e *HostRequirementError) Unwrap() error {
	return e.Err
}

func (e *HostRequirementError) Is(target error) bool {
	return target == ErrHostRequirements
}

// TransportError reports a failure to discover or connect to the endpoint.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("failed to connect to browser: %v", e.Err)
	}
	return fmt.Sprintf("failed to connect to browser at %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// UnsupportedOperationError reports an operation a family does not provide.
type UnsupportedOperationError struct {
	Family    string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s is not supported by %s", e.Operation, e.Family)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// LaunchError wraps a failed launch attempt with the tail of the browser output.
type LaunchError struct {
	Err  error
	Logs []string
}

func (e *LaunchError) Error() string {
	if len(e.Logs) == 0 {
		return e.Err.Error()
	}
	var b strings.Builder
	b.WriteString(e.Err.Error())
	b.WriteString("\n==================== Browser output: ====================\n")
	b.WriteString(strings.Join(e.Logs, "\n"))
	return b.String()
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

func withLogs(err error, logs *RecentLogs) error {
	if err == nil {
		return nil
	}
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return err
	}
	return &LaunchError{Err: err, Logs: logs.Lines()}
}
