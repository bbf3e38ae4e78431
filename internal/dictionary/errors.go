package dictionary

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateTag indicates two definitions for the same tag, or a tag
// listed twice in one layout.
var ErrDuplicateTag = errors.New("dictionary: duplicate tag")

// ErrDuplicateName indicates two fields sharing a name.
var ErrDuplicateName = errors.New("dictionary: duplicate name")

// ErrDuplicateMessage indicates two messages sharing a MsgType.
var ErrDuplicateMessage = errors.New("dictionary: duplicate message type")

// ErrUnresolvedReference indicates a member naming an unknown field,
// component or length field, or a component cycle.
var ErrUnresolvedReference = errors.New("dictionary: unresolved reference")

// ErrMissingMandatoryField indicates the header or trailer lacks an
// envelope field.
var ErrMissingMandatoryField = errors.New("dictionary: missing mandatory field")

// ErrInvalidDefinition indicates a structurally invalid definition, such as
// an unknown type name or an empty group.
var ErrInvalidDefinition = errors.New("dictionary: invalid definition")

// BuildError reports why Build rejected a set of raw definitions.
type BuildError struct {
	Err     error
	Context string
	Tag     int
	Name    string
	Detail  string
}

func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Context != "" {
		fmt.Fprintf(&b, " in %s", e.Context)
	}
	if e.Tag != 0 {
		fmt.Fprintf(&b, ": tag %d", e.Tag)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " (%s)", e.Name)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
