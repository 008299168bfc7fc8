package model

import "fmt"

// ConfigError wraps configuration-validation failures: invalid JSON,
// duplicate names, cyclic dependencies, bad threshold ranges.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string { return "config error: " + e.Detail }

// NewConfigError builds a ConfigError with a formatted detail message.
func NewConfigError(format string, args ...any) error {
	return &ConfigError{Detail: fmt.Sprintf(format, args...)}
}

// SpawnErrorKind classifies why a child failed to start.
type SpawnErrorKind string

const (
	SpawnNotFound          SpawnErrorKind = "not_found"
	SpawnPermissionDenied  SpawnErrorKind = "permission_denied"
	SpawnWorkingDirMissing SpawnErrorKind = "working_dir_missing"
	SpawnOther             SpawnErrorKind = "other"
)

// SpawnError is returned by the OS facade when a child fails to start.
type SpawnError struct {
	Kind SpawnErrorKind
	Message string
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn error (%s): %s", e.Kind, e.Message)
}

// DependencyNotReadyError is returned to the caller of start when one or
// more dependencies are not Running.
type DependencyNotReadyError struct {
	Missing []string
}

func (e *DependencyNotReadyError) Error() string {
	return fmt.Sprintf("dependencies not ready: %v", e.Missing)
}

// NotFoundError marks an unknown process name or alert id.
type NotFoundError struct {
	Kind string
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// TransientIOError marks a transient I/O failure. The control plane's log
// tail endpoint returns a failed tail read to its caller as this error;
// notification-delivery failures are logged and counted by the alert bus
// and never surfaced to callers.
type TransientIOError struct {
	Op string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient io error during %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// DisabledError is returned by start when the target process is disabled.
type DisabledError struct {
	Process string
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("process %s is disabled", e.Process)
}

// QuarantinedError is returned by start when the target process is still
// within its quarantine window.
type QuarantinedError struct {
	Process string
	Until string
}

func (e *QuarantinedError) Error() string {
	return fmt.Sprintf("process %s is quarantined until %s", e.Process, e.Until)
}
