package fast

import (
	"errors"
	"fmt"
)

// ErrPresenceMapTruncated indicates the input ends before the presence map's
// stop bit.
var ErrPresenceMapTruncated = errors.New("fast: presence map truncated")

// ErrUnknownFieldOperatorState indicates a field whose value must come from
// the context, but the context holds none and the instruction has no
// initial value.
var ErrUnknownFieldOperatorState = errors.New("fast: no previous value for field operator")

// ErrTruncated indicates the input ends in the middle of a field.
var ErrTruncated = errors.New("fast: truncated input")

// ErrOverflow indicates an integer that does not fit its type.
var ErrOverflow = errors.New("fast: integer overflow")

// ErrUnknownTemplate indicates a template id absent from the registry.
var ErrUnknownTemplate = errors.New("fast: unknown template")

// ErrInvalidTemplate indicates an operator, type and initial value that
// cannot be combined.
var ErrInvalidTemplate = errors.New("fast: invalid template")

// ErrMissingField indicates a mandatory field absent from the message or
// null on the wire.
var ErrMissingField = errors.New("fast: missing mandatory field")

// ErrConstantMismatch indicates a message value that differs from the
// template constant.
var ErrConstantMismatch = errors.New("fast: value differs from constant")

// ErrInvalidValue indicates a value that cannot be represented by the
// field's type.
var ErrInvalidValue = errors.New("fast: invalid value")

// ErrFieldNotInTemplate indicates a message field the template cannot carry.
var ErrFieldNotInTemplate = errors.New("fast: field not in template")

// Error ties a failure to the template and field being processed.
type Error struct {
	Err        error
	TemplateID uint32
	Tag        int
}

func (e *Error) Error() string {
	if e.Tag != 0 {
		return fmt.Sprintf("%v (template %d, tag %d)", e.Err, e.TemplateID, e.Tag)
	}
	return fmt.Sprintf("%v (template %d)", e.Err, e.TemplateID)
}

func (e *Error) Unwrap() error {
	return e.Err
}
