package tagvalue

import (
	"errors"
	"fmt"
)

// Session reject reasons (tag 373).
const (
	RejectInvalidTagNumber        = 0
	RejectRequiredTagMissing      = 1
	RejectTagNotDefinedForMessage = 2
	RejectUndefinedTag            = 3
	RejectTagWithoutValue         = 4
	RejectValueIncorrect          = 5
	RejectIncorrectDataFormat     = 6
	RejectInvalidMsgType          = 11
	RejectTagAppearsMoreThanOnce  = 13
	RejectIncorrectNumInGroup     = 16
	RejectOther                   = 99
)

// ErrIncomplete signals that the buffer ends before the message does. It is
// a request for more bytes rather than a failure.
var ErrIncomplete = errors.New("tagvalue: incomplete message")

// ErrChecksumMismatch indicates a CheckSum that does not match the bytes.
var ErrChecksumMismatch = errors.New("tagvalue: checksum mismatch")

// ErrBodyLengthMismatch indicates a BodyLength that does not frame the message.
var ErrBodyLengthMismatch = errors.New("tagvalue: body length mismatch")

// ErrMessageTooLarge indicates a declared BodyLength above the configured limit.
var ErrMessageTooLarge = errors.New("tagvalue: message too large")

// ErrGarbled indicates the envelope (BeginString, BodyLength) cannot be parsed.
var ErrGarbled = errors.New("tagvalue: garbled message")

// ErrMalformedTag indicates a non-numeric tag or missing '='.
var ErrMalformedTag = errors.New("tagvalue: malformed tag")

// ErrEmptyValue indicates a tag with no value.
var ErrEmptyValue = errors.New("tagvalue: tag without value")

// ErrMissingRequiredField indicates a required field is absent.
var ErrMissingRequiredField = errors.New("tagvalue: missing required field")

// ErrUnknownMessageType indicates a MsgType absent from the dictionary.
var ErrUnknownMessageType = errors.New("tagvalue: unknown message type")

// ErrGroupCountMismatch indicates a NumInGroup value that differs from the
// number of entries present.
var ErrGroupCountMismatch = errors.New("tagvalue: group count mismatch")

// ErrUnknownTagInGroup indicates an undefined tag inside an unfinished group.
var ErrUnknownTagInGroup = errors.New("tagvalue: unknown tag in group")

// ErrDuplicateTag indicates a defined tag repeated outside a group.
var ErrDuplicateTag = errors.New("tagvalue: tag appears more than once")

// ErrIncorrectDataFormat indicates a value that does not parse as its type.
var ErrIncorrectDataFormat = errors.New("tagvalue: incorrect data format")

// ErrValueOutOfRange indicates a value outside the enumerated set.
var ErrValueOutOfRange = errors.New("tagvalue: value out of range")

// ErrSeparatorInValue indicates a non-data value containing the separator.
var ErrSeparatorInValue = errors.New("tagvalue: separator in value")

// DecodeError describes why a message was rejected, with enough context
// to build a session-level Reject.
type DecodeError struct {
	Err       error
	MsgType   string
	MsgSeqNum int
	PossDup   bool
	RefTag    int
	fatal     bool
}

func (e *DecodeError) Error() string {
	msg := e.Err.Error()
	if e.MsgType != "" {
		msg += fmt.Sprintf(" (msg_type=%s", e.MsgType)
		if e.MsgSeqNum > 0 {
			msg += fmt.Sprintf(" seq=%d", e.MsgSeqNum)
		}
		msg += ")"
	}
	if e.RefTag != 0 {
		msg += fmt.Sprintf(": tag %d", e.RefTag)
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the stream can no longer be trusted: a framing or
// integrity failure rather than a single bad message.
func (e *DecodeError) Fatal() bool {
	return e.fatal
}

// RejectReason maps the error to a SessionRejectReason value.
func (e *DecodeError) RejectReason() int {
	switch {
	case errors.Is(e.Err, ErrMalformedTag):
		return RejectInvalidTagNumber
	case errors.Is(e.Err, ErrMissingRequiredField):
		return RejectRequiredTagMissing
	case errors.Is(e.Err, ErrUnknownTagInGroup):
		return RejectTagNotDefinedForMessage
	case errors.Is(e.Err, ErrEmptyValue):
		return RejectTagWithoutValue
	case errors.Is(e.Err, ErrValueOutOfRange):
		return RejectValueIncorrect
	case errors.Is(e.Err, ErrIncorrectDataFormat):
		return RejectIncorrectDataFormat
	case errors.Is(e.Err, ErrUnknownMessageType):
		return RejectInvalidMsgType
	case errors.Is(e.Err, ErrDuplicateTag):
		return RejectTagAppearsMoreThanOnce
	case errors.Is(e.Err, ErrGroupCountMismatch):
		return RejectIncorrectNumInGroup
	default:
		return RejectOther
	}
}

// IsFatal reports whether err is a fatal *DecodeError.
func IsFatal(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Fatal()
}

// EncodeError reports why a message could not be serialized.
type EncodeError struct {
	Err error
	Tag int
}

func (e *EncodeError) Error() string {
	if e.Tag != 0 {
		return fmt.Sprintf("encode: %v: tag %d", e.Err, e.Tag)
	}
	return "encode: " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
