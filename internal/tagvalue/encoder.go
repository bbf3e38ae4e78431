package tagvalue

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/solatis/fixengine/internal/dictionary"
	"github.com/solatis/fixengine/internal/message"
)

// Encoder serializes messages for one dictionary. It holds no per-message
// state and is safe for concurrent use.
type Encoder struct {
	dict *dictionary.Dictionary
	cfg  Config
}

// NewEncoder returns an encoder for d.
func NewEncoder(d *dictionary.Dictionary, cfg Config) *Encoder {
	return &Encoder{dict: d, cfg: cfg.normalized()}
}

// Encode serializes m. BodyLength and CheckSum are computed; any values
// for tags 9 and 10 in m are ignored.
func (e *Encoder) Encode(m *message.Message) ([]byte, error) {
	return e.AppendEncode(nil, m)
}

// AppendEncode appends the serialization of m to dst.
func (e *Encoder) AppendEncode(dst []byte, m *message.Message) ([]byte, error) {
	msgType := m.MsgType()
	if msgType == "" {
		return dst, &EncodeError{Err: ErrMissingRequiredField, Tag: dictionary.TagMsgType}
	}
	def, ok := e.dict.MessageByType(msgType)
	if !ok {
		return dst, &EncodeError{Err: ErrUnknownMessageType}
	}

	begin, ok := m.Header.Get(dictionary.TagBeginString)
	if !ok {
		begin = e.dict.Version()
	}

	w := writer{buf: bytes.NewBuffer(dst), sep: e.cfg.Separator}
	start := len(dst)
	w.field(dictionary.TagBeginString, begin)

	// BodyLength is spliced in here once the body is known.
	lengthAt := w.buf.Len()

	bodyStart := lengthAt
	w.field(dictionary.TagMsgType, msgType)

	skip := map[int]bool{
		dictionary.TagBeginString: true,
		dictionary.TagBodyLength:  true,
		dictionary.TagMsgType:     true,
		dictionary.TagCheckSum:    true,
	}
	if err := e.section(&w, e.dict.Header(), &m.Header, skip); err != nil {
		return dst, err
	}
	if err := e.section(&w, &def.Layout, &m.Body, skip); err != nil {
		return dst, err
	}
	if err := e.section(&w, e.dict.Trailer(), &m.Trailer, skip); err != nil {
		return dst, err
	}

	out := w.buf.Bytes()
	bodyLen := len(out) - bodyStart
	if bodyLen > e.cfg.MaxMessageSize {
		return dst, &EncodeError{Err: ErrMessageTooLarge}
	}

	lengthField := make([]byte, 0, 16)
	lengthField = append(lengthField, "9="...)
	lengthField = strconv.AppendInt(lengthField, int64(bodyLen), 10)
	lengthField = append(lengthField, e.cfg.Separator)
	out = splice(out, lengthAt, lengthField)

	sum := Checksum(out[start:])
	out = append(out, "10="...)
	out = append(out, FormatChecksum(sum)...)
	out = append(out, e.cfg.Separator)
	return out, nil
}

func splice(b []byte, at int, ins []byte) []byte {
	n := len(b)
	b = append(b, ins...)
	copy(b[at+len(ins):], b[at:n])
	copy(b[at:], ins)
	return b
}

// section writes the fields of s: layout members in declared order first,
// then undeclared fields in message order.
func (e *Encoder) section(w *writer, layout *dictionary.Layout, s *message.FieldSet, skip map[int]bool) error {
	if err := e.checkRequired(layout, s, skip); err != nil {
		return err
	}

	fields := make([]message.Field, 0, s.Len())
	for _, f := range s.Fields() {
		if !skip[f.Tag] {
			fields = append(fields, f)
		}
	}
	rank := func(tag int) int {
		if p, ok := layout.Position(tag); ok {
			return p
		}
		return len(layout.Members)
	}
	sort.SliceStable(fields, func(i, j int) bool {
		return rank(fields[i].Tag) < rank(fields[j].Tag)
	})

	for _, f := range fields {
		mem, known := layout.Member(f.Tag)
		if known && mem.IsGroup() {
			if err := e.group(w, mem.Group, f); err != nil {
				return err
			}
			continue
		}
		if err := e.scalar(w, s, f); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) checkRequired(layout *dictionary.Layout, s *message.FieldSet, skip map[int]bool) error {
	for _, m := range layout.Members {
		if !m.Required || skip[m.Tag()] {
			continue
		}
		f, ok := s.Field(m.Tag())
		if !ok {
			return &EncodeError{Err: ErrMissingRequiredField, Tag: m.Tag()}
		}
		if m.IsGroup() && len(f.Entries) == 0 {
			return &EncodeError{Err: ErrMissingRequiredField, Tag: m.Tag()}
		}
	}
	return nil
}

func (e *Encoder) scalar(w *writer, s *message.FieldSet, f message.Field) error {
	if f.IsGroup() {
		return &EncodeError{Err: ErrIncorrectDataFormat, Tag: f.Tag}
	}
	def, known := e.dict.FieldByTag(f.Tag)
	if known && def.DataTag != 0 {
		// Length fields always describe the data that follows.
		if data, ok := s.Get(def.DataTag); ok {
			w.field(f.Tag, strconv.Itoa(len(data)))
			return nil
		}
	}
	if known && def.LengthTag != 0 && !s.Has(def.LengthTag) {
		w.field(def.LengthTag, strconv.Itoa(len(f.Value)))
	}
	if f.Value == "" {
		return &EncodeError{Err: ErrEmptyValue, Tag: f.Tag}
	}
	if !(known && def.Kind() == dictionary.KindData) && bytes.IndexByte([]byte(f.Value), w.sep) >= 0 {
		return &EncodeError{Err: ErrSeparatorInValue, Tag: f.Tag}
	}
	w.field(f.Tag, f.Value)
	return nil
}

func (e *Encoder) group(w *writer, g *dictionary.GroupDefinition, f message.Field) error {
	if !f.IsGroup() {
		return &EncodeError{Err: ErrIncorrectDataFormat, Tag: f.Tag}
	}
	if len(f.Entries) == 0 {
		return nil
	}
	w.field(f.Tag, strconv.Itoa(len(f.Entries)))
	for i := range f.Entries {
		entry := &f.Entries[i]
		if !entry.Has(g.Delimiter()) {
			return &EncodeError{Err: ErrMissingRequiredField, Tag: g.Delimiter()}
		}
		for _, ef := range entry.Fields() {
			if !g.Has(ef.Tag) {
				return &EncodeError{Err: ErrUnknownTagInGroup, Tag: ef.Tag}
			}
		}
		if err := e.section(w, &g.Layout, entry, nil); err != nil {
			return err
		}
	}
	return nil
}

type writer struct {
	buf *bytes.Buffer
	sep byte
}

func (w *writer) field(tag int, value string) {
	var num [20]byte
	w.buf.Write(strconv.AppendInt(num[:0], int64(tag), 10))
	w.buf.WriteByte('=')
	w.buf.WriteString(value)
	w.buf.WriteByte(w.sep)
}
