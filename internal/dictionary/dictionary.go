// Package dictionary models a FIX protocol version: its fields, enumerated
// values and message layouts, including nested repeating groups.
//
// A Dictionary is produced once by Build from raw definitions and is
// immutable afterwards. All lookups are map-backed and safe for concurrent
// use by any number of codecs and sessions.
package dictionary

import "sort"

// Well-known envelope tags.
const (
	TagBeginString = 8
	TagBodyLength  = 9
	TagMsgType     = 35
	TagCheckSum    = 10
	TagMsgSeqNum   = 34
	TagSendingTime = 52
)

// Message categories.
const (
	CategoryAdmin = "admin"
	CategoryApp   = "app"
)

// FieldDefinition describes one tag.
type FieldDefinition struct {
	Tag  int
	Name string
	Type DataType

	// LengthTag is the tag of the Length field carrying this data field's
	// byte count, or zero.
	LengthTag int

	// DataTag is the inverse link, set on Length fields that carry the
	// byte count of a data field.
	DataTag int

	values map[string]string
}

// Kind is shorthand for f.Type.Kind().
func (f *FieldDefinition) Kind() Kind {
	return f.Type.Kind()
}

// HasEnum reports whether the field restricts values to an enumerated set.
func (f *FieldDefinition) HasEnum() bool {
	return len(f.values) > 0
}

// IsValidEnum reports whether v is an allowed value. Fields without an
// enumerated set accept any value. MultipleCharValue and
// MultipleStringValue fields check every space-separated element.
func (f *FieldDefinition) IsValidEnum(v string) bool {
	if len(f.values) == 0 {
		return true
	}
	if f.Type == TypeMultipleCharValue || f.Type == TypeMultipleStringValue {
		start := 0
		for i := 0; i <= len(v); i++ {
			if i == len(v) || v[i] == ' ' {
				if _, ok := f.values[v[start:i]]; !ok {
					return false
				}
				start = i + 1
			}
		}
		return true
	}
	_, ok := f.values[v]
	return ok
}

// EnumDescription returns the description of an enumerated value.
func (f *FieldDefinition) EnumDescription(v string) (string, bool) {
	d, ok := f.values[v]
	return d, ok
}

// EnumValues returns the enumerated values in sorted order.
func (f *FieldDefinition) EnumValues() []string {
	out := make([]string, 0, len(f.values))
	for v := range f.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Member is one entry of a Layout: either a scalar field or a group. For
// groups, Field is the count (NumInGroup) field.
type Member struct {
	Field    *FieldDefinition
	Group    *GroupDefinition
	Required bool
}

// Tag returns the member's tag (the count tag for groups).
func (m Member) Tag() int {
	return m.Field.Tag
}

// IsGroup reports whether m introduces a repeating group.
func (m Member) IsGroup() bool {
	return m.Group != nil
}

// Layout is an ordered list of members with constant-time tag lookup.
type Layout struct {
	Members []Member
	index   map[int]int
}

// Member looks up a direct member by tag.
func (l *Layout) Member(tag int) (Member, bool) {
	if l == nil {
		return Member{}, false
	}
	i, ok := l.index[tag]
	if !ok {
		return Member{}, false
	}
	return l.Members[i], true
}

// Position returns the declaration index of tag within the layout.
func (l *Layout) Position(tag int) (int, bool) {
	if l == nil {
		return 0, false
	}
	i, ok := l.index[tag]
	return i, ok
}

// Has reports whether tag is a direct member.
func (l *Layout) Has(tag int) bool {
	_, ok := l.Position(tag)
	return ok
}

// RequiredTags returns the tags of required members in declaration order.
func (l *Layout) RequiredTags() []int {
	var out []int
	for _, m := range l.Members {
		if m.Required {
			out = append(out, m.Tag())
		}
	}
	return out
}

// GroupDefinition describes a repeating group introduced by a count field.
// Every repetition starts with the delimiter field (the first member).
type GroupDefinition struct {
	Layout
	CountField *FieldDefinition
}

// Delimiter returns the tag that starts every group entry.
func (g *GroupDefinition) Delimiter() int {
	return g.Members[0].Tag()
}

// MessageDefinition describes the body of one message type.
type MessageDefinition struct {
	Layout
	MsgType  string
	Name     string
	Category string
}

// IsAdmin reports whether the message belongs to the session layer.
func (m *MessageDefinition) IsAdmin() bool {
	return m.Category == CategoryAdmin
}

// Dictionary is the immutable schema of one protocol version.
type Dictionary struct {
	version      string
	fields       map[int]*FieldDefinition
	fieldsByName map[string]*FieldDefinition
	messages     map[string]*MessageDefinition
	components   map[string][]Member
	header       *Layout
	trailer      *Layout
}

// Version returns the BeginString of the protocol version, e.g. "FIX.4.4".
func (d *Dictionary) Version() string {
	return d.version
}

// FieldByTag looks up a field definition by tag number.
func (d *Dictionary) FieldByTag(tag int) (*FieldDefinition, bool) {
	f, ok := d.fields[tag]
	return f, ok
}

// FieldByName looks up a field definition by name.
func (d *Dictionary) FieldByName(name string) (*FieldDefinition, bool) {
	f, ok := d.fieldsByName[name]
	return f, ok
}

// MessageByType looks up a message definition by its MsgType code.
func (d *Dictionary) MessageByType(msgType string) (*MessageDefinition, bool) {
	m, ok := d.messages[msgType]
	return m, ok
}

// Component returns the resolved member list of a named component.
func (d *Dictionary) Component(name string) ([]Member, bool) {
	c, ok := d.components[name]
	return c, ok
}

// Header returns the standard header layout.
func (d *Dictionary) Header() *Layout {
	return d.header
}

// Trailer returns the standard trailer layout.
func (d *Dictionary) Trailer() *Layout {
	return d.trailer
}

// IsHeaderTag reports whether tag belongs to the standard header.
func (d *Dictionary) IsHeaderTag(tag int) bool {
	return d.header.Has(tag)
}

// IsTrailerTag reports whether tag belongs to the standard trailer.
func (d *Dictionary) IsTrailerTag(tag int) bool {
	return d.trailer.Has(tag)
}

// Messages returns all message definitions sorted by MsgType.
func (d *Dictionary) Messages() []*MessageDefinition {
	out := make([]*MessageDefinition, 0, len(d.messages))
	for _, m := range d.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MsgType < out[j].MsgType })
	return out
}

// Fields returns all field definitions sorted by tag.
func (d *Dictionary) Fields() []*FieldDefinition {
	out := make([]*FieldDefinition, 0, len(d.fields))
	for _, f := range d.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}
