package audit

import (
	"errors"
	"fmt"
)

var (
	ErrNilTarget         = errors.New("target is nil")
	ErrMethodNotFound    = errors.New("method not found on target type")
	ErrUnexported        = errors.New("method is not exported")
	ErrSignatureMismatch = errors.New("method parameters do not match declared signature")

	// ErrAborted is recorded when the wrapped call exits through runtime.Goexit.
	ErrAborted = errors.New("call aborted by runtime.Goexit")
)

// ResolutionError is returned when the concrete operation behind an
// interface-declared call cannot be resolved. It belongs to the capture core,
// never to the audited call.
type ResolutionError struct {
	Declared string
	Target   string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("audit: cannot resolve %s on %s: %v", e.Declared, e.Target, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// SinkError reports a sink that failed to persist or forward an event.
// The dispatcher logs it; callers of audited operations never see it.
type SinkError struct {
	Sink    string
	EventID string
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("audit: sink %q failed for event %s: %v", e.Sink, e.EventID, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// PanicError is how a recovered panic appears in an Event's failure slot.
// The boundary re-panics with Value itself, not with this wrapper.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
