// Package message provides the structured message form shared by the
// tag-value and FAST codecs: a header, body and trailer, each an ordered
// list of fields that may contain repeating groups.
package message

import (
	"strconv"
	"strings"

	"github.com/solatis/fixengine/internal/dictionary"
)

// Session-level message types.
const (
	TypeHeartbeat     = "0"
	TypeTestRequest   = "1"
	TypeResendRequest = "2"
	TypeReject        = "3"
	TypeSequenceReset = "4"
	TypeLogout        = "5"
	TypeLogon         = "A"
)

// Message is a structured FIX message. BodyLength and CheckSum are derived
// by the encoder and never stored.
type Message struct {
	Header  FieldSet
	Body    FieldSet
	Trailer FieldSet
}

// New returns a message with MsgType set.
func New(msgType string) *Message {
	m := &Message{}
	m.Header.Set(dictionary.TagMsgType, msgType)
	return m
}

// MsgType returns the value of tag 35, or "".
func (m *Message) MsgType() string {
	v, _ := m.Header.Get(dictionary.TagMsgType)
	return v
}

// SeqNum returns the value of tag 34.
func (m *Message) SeqNum() (int, error) {
	return m.Header.GetInt(dictionary.TagMsgSeqNum)
}

// IsAdmin reports whether m is a session-level message.
func (m *Message) IsAdmin() bool {
	return IsAdminType(m.MsgType())
}

// IsAdminType reports whether msgType is a session-level message type.
func IsAdminType(msgType string) bool {
	switch msgType {
	case TypeHeartbeat, TypeTestRequest, TypeResendRequest, TypeReject,
		TypeSequenceReset, TypeLogout, TypeLogon:
		return true
	}
	return false
}

// Section returns the set a tag belongs to according to d.
func (m *Message) Section(d *dictionary.Dictionary, tag int) *FieldSet {
	switch {
	case d.IsHeaderTag(tag):
		return &m.Header
	case d.IsTrailerTag(tag):
		return &m.Trailer
	default:
		return &m.Body
	}
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	return &Message{
		Header:  m.Header.Clone(),
		Body:    m.Body.Clone(),
		Trailer: m.Trailer.Clone(),
	}
}

// Equal reports whether both messages hold identical fields.
func (m *Message) Equal(o *Message) bool {
	return m.Header.Equal(&o.Header) && m.Body.Equal(&o.Body) && m.Trailer.Equal(&o.Trailer)
}

// String renders the message with '|' separators for logs. Derived fields
// are omitted.
func (m *Message) String() string {
	var b strings.Builder
	for _, s := range []*FieldSet{&m.Header, &m.Body, &m.Trailer} {
		writeFields(&b, s)
	}
	return b.String()
}

func writeFields(b *strings.Builder, s *FieldSet) {
	for _, f := range s.fields {
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.Itoa(f.Tag))
		b.WriteByte('=')
		b.WriteString(f.Value)
		for i := range f.Entries {
			writeFields(b, &f.Entries[i])
		}
	}
}
