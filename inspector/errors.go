package inspector

import (
	"errors"
	"fmt"
)

// ActivationError is returned when the inspector could not enter the Active
// state. The engine stays Inactive.
type ActivationError struct {
	Op    string
	Cause error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("inspector: activation failed (%s): %v", e.Op, e.Cause)
}

func (e *ActivationError) Unwrap() error { return e.Cause }

// SynthesisError reports a failed click-to-inspect attempt. It is delivered
// as an inspector-error event; the engine still deactivates.
type SynthesisError struct {
	Tag   string
	Cause error
}

func (e *SynthesisError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("inspector: selector synthesis failed: %v", e.Cause)
	}
	return fmt.Sprintf("inspector: selector synthesis failed for <%s>: %v", e.Tag, e.Cause)
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// ErrTargetNotFound is returned when an event or query addresses a node
// that does not exist in the document.
var ErrTargetNotFound = errors.New("inspector: target not found")

// ErrUnknownEvent is returned by DispatchAt for event types the inspector
// does not route.
var ErrUnknownEvent = errors.New("inspector: unknown event type")
