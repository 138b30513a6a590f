package messaging

import "fmt"

// ErrCommandNotFound is returned when Call targets a command with no route
// and no local handler.
type ErrCommandNotFound struct {
	Command string
}

func (e *ErrCommandNotFound) Error() string {
	return fmt.Sprintf("messaging: no handler for %s", e.Command)
}

// ErrNoFactory is returned by SetRoute when the strategy has no registered
// transport.
type ErrNoFactory struct {
	Command  string
	Strategy string
}

func (e *ErrNoFactory) Error() string {
	return fmt.Sprintf("messaging: no transport for strategy %q (command %s)", e.Strategy, e.Command)
}

// ErrFactoryFailed wraps a transport factory error.
type ErrFactoryFailed struct {
	Command  string
	Strategy string
	Endpoint string
	Cause    error
}

func (e *ErrFactoryFailed) Error() string {
	return fmt.Sprintf("messaging: transport %q failed for %s (endpoint %s): %v",
		e.Strategy, e.Command, e.Endpoint, e.Cause)
}

func (e *ErrFactoryFailed) Unwrap() error { return e.Cause }

// ErrPanic wraps a recovered handler panic.
type ErrPanic struct {
	Command string
	Value   any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("messaging: %s panicked: %v", e.Command, e.Value)
}
