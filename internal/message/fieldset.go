package message

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ErrFieldNotFound indicates a lookup for a tag that is not present.
var ErrFieldNotFound = errors.New("message: field not found")

// ErrInvalidValue indicates a value that does not parse as the requested type.
var ErrInvalidValue = errors.New("message: invalid value")

// TimestampLayout is the UTCTimestamp layout used when stamping messages.
const TimestampLayout = "20060102-15:04:05.000"

var timestampLayouts = []string{
	"20060102-15:04:05.000000000",
	"20060102-15:04:05.000000",
	TimestampLayout,
	"20060102-15:04:05",
}

// FieldError ties a lookup or conversion failure to a tag.
type FieldError struct {
	Tag int
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("tag %d: %v", e.Tag, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Field is one tag=value entry. Group fields carry the count in Value and
// the repeated blocks in Entries.
type Field struct {
	Tag     int
	Value   string
	Entries []FieldSet
}

// IsGroup reports whether the field introduces a repeating group.
func (f Field) IsGroup() bool {
	return f.Entries != nil
}

// FieldSet is an ordered list of fields. Order is the wire order; lookups
// return the first occurrence of a tag.
type FieldSet struct {
	fields []Field
}

// NewFieldSet builds a set from fields in order.
func NewFieldSet(fields ...Field) FieldSet {
	return FieldSet{fields: append([]Field(nil), fields...)}
}

// Len returns the number of top-level fields.
func (s *FieldSet) Len() int {
	return len(s.fields)
}

// Fields returns the fields in order. The slice must not be modified.
func (s *FieldSet) Fields() []Field {
	return s.fields
}

// Tags returns the top-level tags in order.
func (s *FieldSet) Tags() []int {
	out := make([]int, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Tag
	}
	return out
}

func (s *FieldSet) index(tag int) int {
	for i := range s.fields {
		if s.fields[i].Tag == tag {
			return i
		}
	}
	return -1
}

// Has reports whether tag is present.
func (s *FieldSet) Has(tag int) bool {
	return s.index(tag) >= 0
}

// Field returns the first field with tag.
func (s *FieldSet) Field(tag int) (Field, bool) {
	i := s.index(tag)
	if i < 0 {
		return Field{}, false
	}
	return s.fields[i], true
}

// Get returns the raw value of tag.
func (s *FieldSet) Get(tag int) (string, bool) {
	f, ok := s.Field(tag)
	return f.Value, ok
}

// Add appends a field without checking for an existing tag.
func (s *FieldSet) Add(tag int, value string) {
	s.fields = append(s.fields, Field{Tag: tag, Value: value})
}

// AddField appends f as-is.
func (s *FieldSet) AddField(f Field) {
	s.fields = append(s.fields, f)
}

// Set replaces the value of tag, or appends it if absent.
func (s *FieldSet) Set(tag int, value string) {
	if i := s.index(tag); i >= 0 {
		s.fields[i] = Field{Tag: tag, Value: value}
		return
	}
	s.Add(tag, value)
}

// Remove deletes every occurrence of tag.
func (s *FieldSet) Remove(tag int) {
	out := s.fields[:0]
	for _, f := range s.fields {
		if f.Tag != tag {
			out = append(out, f)
		}
	}
	s.fields = out
}

// SetInt stores an integer value.
func (s *FieldSet) SetInt(tag, v int) {
	s.Set(tag, strconv.Itoa(v))
}

// SetBool stores a boolean as Y or N.
func (s *FieldSet) SetBool(tag int, v bool) {
	if v {
		s.Set(tag, "Y")
		return
	}
	s.Set(tag, "N")
}

// SetChar stores a single character.
func (s *FieldSet) SetChar(tag int, c byte) {
	s.Set(tag, string([]byte{c}))
}

// SetDecimal stores a decimal in plain notation.
func (s *FieldSet) SetDecimal(tag int, d decimal.Decimal) {
	s.Set(tag, d.String())
}

// SetTime stores a UTC timestamp with millisecond precision.
func (s *FieldSet) SetTime(tag int, t time.Time) {
	s.Set(tag, t.UTC().Format(TimestampLayout))
}

// SetGroup stores a repeating group, replacing any previous one.
func (s *FieldSet) SetGroup(tag int, entries []FieldSet) {
	if entries == nil {
		entries = []FieldSet{}
	}
	f := Field{Tag: tag, Value: strconv.Itoa(len(entries)), Entries: entries}
	if i := s.index(tag); i >= 0 {
		s.fields[i] = f
		return
	}
	s.fields = append(s.fields, f)
}

// Group returns the entries of a repeating group.
func (s *FieldSet) Group(tag int) ([]FieldSet, bool) {
	f, ok := s.Field(tag)
	if !ok || !f.IsGroup() {
		return nil, false
	}
	return f.Entries, true
}

// GetString returns the value of tag or a *FieldError.
func (s *FieldSet) GetString(tag int) (string, error) {
	v, ok := s.Get(tag)
	if !ok {
		return "", &FieldError{Tag: tag, Err: ErrFieldNotFound}
	}
	return v, nil
}

// GetInt parses the value of tag as an integer.
func (s *FieldSet) GetInt(tag int) (int, error) {
	v, err := s.GetString(tag)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &FieldError{Tag: tag, Err: ErrInvalidValue}
	}
	return n, nil
}

// GetBool parses the value of tag as Y/N.
func (s *FieldSet) GetBool(tag int) (bool, error) {
	v, err := s.GetString(tag)
	if err != nil {
		return false, err
	}
	switch v {
	case "Y":
		return true, nil
	case "N":
		return false, nil
	default:
		return false, &FieldError{Tag: tag, Err: ErrInvalidValue}
	}
}

// GetDecimal parses the value of tag as a decimal.
func (s *FieldSet) GetDecimal(tag int) (decimal.Decimal, error) {
	v, err := s.GetString(tag)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &FieldError{Tag: tag, Err: ErrInvalidValue}
	}
	return d, nil
}

// GetTime parses the value of tag as a UTCTimestamp.
func (s *FieldSet) GetTime(tag int) (time.Time, error) {
	v, err := s.GetString(tag)
	if err != nil {
		return time.Time{}, err
	}
	return ParseTimestamp(tag, v)
}

// ParseTimestamp parses a UTCTimestamp value at any supported precision.
func ParseTimestamp(tag int, v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if len(layout) != len(v) {
			continue
		}
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &FieldError{Tag: tag, Err: ErrInvalidValue}
}

// Clone returns a deep copy of s.
func (s *FieldSet) Clone() FieldSet {
	out := FieldSet{fields: make([]Field, len(s.fields))}
	for i, f := range s.fields {
		out.fields[i] = f
		if f.Entries != nil {
			out.fields[i].Entries = make([]FieldSet, len(f.Entries))
			for j := range f.Entries {
				out.fields[i].Entries[j] = f.Entries[j].Clone()
			}
		}
	}
	return out
}

// Equal reports whether both sets hold the same fields in the same order.
func (s *FieldSet) Equal(o *FieldSet) bool {
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		a, b := s.fields[i], o.fields[i]
		if a.Tag != b.Tag || a.Value != b.Value || a.IsGroup() != b.IsGroup() {
			return false
		}
		if len(a.Entries) != len(b.Entries) {
			return false
		}
		for j := range a.Entries {
			if !a.Entries[j].Equal(&b.Entries[j]) {
				return false
			}
		}
	}
	return true
}
