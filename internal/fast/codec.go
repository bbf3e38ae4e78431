package fast

import (
	"errors"
	"math"
	"strconv"

	"github.com/solatis/fixengine/internal/message"
	"github.com/solatis/fixengine/internal/types"
)

/*
 * Message layout on the wire:
 *
 *   pmap | [template id] | field payloads in instruction order
 *
 * The presence map carries seven bits per byte in the upper bits, most
 * significant first; the low bit is clear until the map's final byte,
 * which sets it. Field payloads use stop-bit encoding instead.
 *
 * The first presence bit says whether the template id is present; when
 * clear, the id of the previous message on the stream applies. Sequence
 * entries carry their own presence map when any of their instructions
 * needs one.
 *
 * Presence bits are consumed in instruction order by copy, increment,
 * default, tail and optional constant fields. The encoder decides each
 * bit by asking what the decoder would infer from the context, so both
 * sides apply identical context updates.
 */

// Encoder serializes messages with registered templates.
type Encoder struct {
	reg *Registry
}

// NewEncoder returns an encoder over reg.
func NewEncoder(reg *Registry) *Encoder {
	return &Encoder{reg: reg}
}

// Encode serializes m with the template registered for its MsgType.
func (e *Encoder) Encode(ctx *Context, m *message.Message) ([]byte, error) {
	t, ok := e.reg.ForMsgType(m.MsgType())
	if !ok {
		return nil, &Error{Err: ErrUnknownTemplate}
	}
	return e.EncodeTemplate(ctx, t.ID, m)
}

// EncodeTemplate serializes m with template id. ctx is updated only on
// success.
func (e *Encoder) EncodeTemplate(ctx *Context, id uint32, m *message.Message) ([]byte, error) {
	t, ok := e.reg.Get(id)
	if !ok {
		return nil, &Error{Err: ErrUnknownTemplate, TemplateID: id}
	}
	if err := t.conforms(m); err != nil {
		return nil, err
	}

	tx := ctx.begin()
	var pm pmapWriter
	var body []byte

	prior := tx.get(templateIDKey)
	if prior.state == slotAssigned && prior.v.u == uint64(id) {
		pm.set(false)
	} else {
		pm.set(true)
		body = AppendUint(body, uint64(id))
	}
	tx.set(templateIDKey, value{u: uint64(id)}, false)
	if t.Reset {
		tx.resetContext()
	}

	st := &encodeState{tx: tx, id: id}
	body, err := st.instructions(t.Instructions, func(inst *Instruction) (message.Field, bool) {
		return sectionOf(m, inst.Section).Field(inst.Tag)
	}, &pm, body)
	if err != nil {
		return nil, err
	}

	out := pm.appendTo(make([]byte, 0, len(body)+4))
	out = append(out, body...)
	tx.commit()
	return out, nil
}

func (t *Template) conforms(m *message.Message) error {
	for _, sec := range []Section{SectionHeader, SectionBody, SectionTrailer} {
		for _, f := range sectionOf(m, sec).Fields() {
			if s, ok := t.tags[f.Tag]; !ok || s != sec {
				return &Error{Err: ErrFieldNotInTemplate, TemplateID: t.ID, Tag: f.Tag}
			}
		}
	}
	return nil
}

func sectionOf(m *message.Message, s Section) *message.FieldSet {
	switch s {
	case SectionHeader:
		return &m.Header
	case SectionTrailer:
		return &m.Trailer
	default:
		return &m.Body
	}
}

type encodeState struct {
	tx *txn
	id uint32
}

func (s *encodeState) wrap(err error, tag int) error {
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Err: err, TemplateID: s.id, Tag: tag}
}

func (s *encodeState) instructions(insts []Instruction, lookup func(*Instruction) (message.Field, bool), pm *pmapWriter, out []byte) ([]byte, error) {
	for i := range insts {
		inst := &insts[i]
		f, present := lookup(inst)
		var err error
		if inst.Type == TypeSequence {
			out, err = s.sequence(inst, f, present, pm, out)
		} else {
			if present && f.IsGroup() {
				return out, s.wrap(ErrInvalidValue, inst.Tag)
			}
			out, err = s.scalar(inst, f.Value, present, pm, out)
		}
		if err != nil {
			return out, s.wrap(err, inst.Tag)
		}
	}
	return out, nil
}

func (s *encodeState) sequence(inst *Instruction, f message.Field, present bool, pm *pmapWriter, out []byte) ([]byte, error) {
	seq := inst.Sequence
	if present && !f.IsGroup() {
		return out, ErrInvalidValue
	}
	n := len(f.Entries)
	out, err := s.scalar(&seq.Length, strconv.Itoa(n), present || !inst.Optional, pm, out)
	if err != nil {
		return out, err
	}
	for i := range f.Entries {
		entry := &f.Entries[i]
		for _, ef := range entry.Fields() {
			if !seq.tags[ef.Tag] {
				return out, s.wrap(ErrFieldNotInTemplate, ef.Tag)
			}
		}
		var epm pmapWriter
		body, err := s.instructions(seq.Instructions, func(si *Instruction) (message.Field, bool) {
			return entry.Field(si.Tag)
		}, &epm, nil)
		if err != nil {
			return out, err
		}
		if seq.pmap {
			out = epm.appendTo(out)
		}
		out = append(out, body...)
	}
	return out, nil
}

func (s *encodeState) scalar(inst *Instruction, text string, present bool, pm *pmapWriter, out []byte) ([]byte, error) {
	null := !present
	if null && !inst.Optional && inst.Operator != OpConstant {
		return out, ErrMissingField
	}
	var v value
	if present {
		var err error
		if v, err = parseValue(inst.Type, text); err != nil {
			return out, err
		}
	}

	switch inst.Operator {
	case OpNone:
		return writeValue(out, inst, v, null)

	case OpConstant:
		if null {
			if inst.Optional {
				pm.set(false)
			}
			return out, nil
		}
		if !equalValue(inst.Type, v, inst.initial) {
			return out, ErrConstantMismatch
		}
		if inst.Optional {
			pm.set(true)
		}
		return out, nil

	case OpDefault:
		if (inst.HasValue && !null && equalValue(inst.Type, v, inst.initial)) || (!inst.HasValue && null) {
			pm.set(false)
			return out, nil
		}
		pm.set(true)
		return writeValue(out, inst, v, null)

	case OpCopy, OpIncrement, OpTail:
		prior := s.tx.get(inst.key)
		iv, inull, ok, err := implied(inst, prior)
		s.tx.set(inst.key, v, null)
		if err == nil && ok && inull == null && (null || equalValue(inst.Type, v, iv)) {
			pm.set(false)
			return out, nil
		}
		pm.set(true)
		if inst.Operator == OpTail {
			return writeTail(out, inst, v, null, baseValue(inst, prior))
		}
		return writeValue(out, inst, v, null)

	case OpDelta:
		if null {
			return AppendNullableInt(out, 0, true)
		}
		base, err := deltaBase(inst, s.tx.get(inst.key))
		if err != nil {
			return out, err
		}
		s.tx.set(inst.key, v, false)
		return writeDelta(out, inst, v, base)
	}
	return out, ErrInvalidTemplate
}

// implied returns what a decoder infers for a field whose presence bit is
// clear. ok is false when the state does not allow omission.
func implied(inst *Instruction, prior slot) (v value, null, ok bool, err error) {
	switch prior.state {
	case slotAssigned:
		if inst.Operator == OpIncrement {
			v, err = incremented(inst.Type, prior.v)
			return v, false, err == nil, err
		}
		return prior.v, false, true, nil
	case slotEmpty:
		return value{}, true, inst.Optional, nil
	default:
		if inst.HasValue {
			return inst.initial, false, true, nil
		}
		return value{}, true, inst.Optional, nil
	}
}

// baseValue is the reference for delta and tail: the previous value, else
// the initial value, else the type's zero value. Only optional delta fields
// and tail fields reach the zero value; see deltaBase.
func baseValue(inst *Instruction, prior slot) value {
	if prior.state == slotAssigned {
		return prior.v
	}
	if inst.HasValue {
		return inst.initial
	}
	return value{}
}

func writeValue(out []byte, inst *Instruction, v value, null bool) ([]byte, error) {
	switch inst.Type {
	case TypeUInt:
		if inst.Optional {
			return AppendNullableUint(out, v.u, null)
		}
		return AppendUint(out, v.u), nil
	case TypeInt:
		if inst.Optional {
			return AppendNullableInt(out, v.i, null)
		}
		return AppendInt(out, v.i), nil
	case TypeASCII:
		return AppendASCII(out, v.s, inst.Optional, null)
	case TypeBytes:
		return AppendBytes(out, []byte(v.s), inst.Optional, null)
	case TypeDecimal:
		var err error
		if inst.Optional {
			if out, err = AppendNullableInt(out, int64(v.e), null); err != nil || null {
				return out, err
			}
		} else {
			out = AppendInt(out, int64(v.e))
		}
		return AppendInt(out, v.m), nil
	}
	return out, ErrInvalidTemplate
}

func appendDelta(out []byte, d int64, nullable bool) ([]byte, error) {
	if nullable {
		return AppendNullableInt(out, d, false)
	}
	return AppendInt(out, d), nil
}

func sub64(a, b int64) (int64, error) {
	d := a - b
	if (a^b)&(a^d) < 0 {
		return 0, ErrOverflow
	}
	return d, nil
}

func add64(a, b int64) (int64, error) {
	s := a + b
	if (a^s)&(b^s) < 0 {
		return 0, ErrOverflow
	}
	return s, nil
}

func writeDelta(out []byte, inst *Instruction, v, base value) ([]byte, error) {
	switch inst.Type {
	case TypeUInt:
		if v.u > math.MaxInt64 || base.u > math.MaxInt64 {
			return out, ErrOverflow
		}
		return appendDelta(out, int64(v.u)-int64(base.u), inst.Optional)
	case TypeInt:
		d, err := sub64(v.i, base.i)
		if err != nil {
			return out, err
		}
		return appendDelta(out, d, inst.Optional)
	case TypeDecimal:
		dm, err := sub64(v.m, base.m)
		if err != nil {
			return out, err
		}
		if out, err = appendDelta(out, int64(v.e)-int64(base.e), inst.Optional); err != nil {
			return out, err
		}
		return AppendInt(out, dm), nil
	default:
		sub, diff := stringDelta(base.s, v.s)
		out, err := appendDelta(out, sub, inst.Optional)
		if err != nil {
			return out, err
		}
		if inst.Type == TypeBytes {
			return AppendBytes(out, []byte(diff), false, false)
		}
		return AppendASCII(out, diff, false, false)
	}
}

// stringDelta picks the shorter of an append (remove sub bytes from the
// end) and a prepend (remove -sub-1 bytes from the front) edit.
func stringDelta(base, v string) (int64, string) {
	cp := 0
	for cp < len(base) && cp < len(v) && base[cp] == v[cp] {
		cp++
	}
	cs := 0
	for cs < len(base) && cs < len(v) && base[len(base)-1-cs] == v[len(v)-1-cs] {
		cs++
	}
	appendDiff := v[cp:]
	prependDiff := v[:len(v)-cs]
	if len(prependDiff) < len(appendDiff) {
		return -int64(len(base)-cs) - 1, prependDiff
	}
	return int64(len(base) - cp), appendDiff
}

func applyStringDelta(base string, sub int64, diff string) (string, error) {
	if sub >= 0 {
		if sub > int64(len(base)) {
			return "", ErrInvalidValue
		}
		return base[:len(base)-int(sub)] + diff, nil
	}
	cut := -sub - 1
	if cut > int64(len(base)) {
		return "", ErrInvalidValue
	}
	return diff + base[cut:], nil
}

// writeTail emits the length of the prefix kept from base followed by the
// new suffix. A null keep length marks an absent optional value.
func writeTail(out []byte, inst *Instruction, v value, null bool, base value) ([]byte, error) {
	keep := 0
	if !null {
		for keep < len(base.s) && keep < len(v.s) && base.s[keep] == v.s[keep] {
			keep++
		}
	}
	var err error
	if inst.Optional {
		if out, err = AppendNullableUint(out, uint64(keep), null); err != nil || null {
			return out, err
		}
	} else {
		out = AppendUint(out, uint64(keep))
	}
	if inst.Type == TypeBytes {
		return AppendBytes(out, []byte(v.s[keep:]), false, false)
	}
	return AppendASCII(out, v.s[keep:], false, false)
}

// Decoder parses messages with registered templates.
type Decoder struct {
	reg *Registry
}

// NewDecoder returns a decoder over reg.
func NewDecoder(reg *Registry) *Decoder {
	return &Decoder{reg: reg}
}

// Decode parses the first message in buf and returns the bytes consumed.
// ctx is updated only on success.
func (d *Decoder) Decode(ctx *Context, buf []byte) (*message.Message, int, error) {
	r := &reader{buf: buf}
	pm, err := readPMap(r)
	if err != nil {
		return nil, 0, &Error{Err: err}
	}

	tx := ctx.begin()
	var id uint32
	if pm.next() {
		u, err := r.uint()
		if err != nil {
			return nil, 0, &Error{Err: err}
		}
		if u > math.MaxUint32 {
			return nil, 0, &Error{Err: ErrOverflow}
		}
		id = uint32(u)
	} else {
		prior := tx.get(templateIDKey)
		if prior.state != slotAssigned {
			return nil, 0, &Error{Err: ErrUnknownFieldOperatorState}
		}
		id = uint32(prior.v.u)
	}
	tx.set(templateIDKey, value{u: uint64(id)}, false)

	t, ok := d.reg.Get(id)
	if !ok {
		return nil, 0, &Error{Err: ErrUnknownTemplate, TemplateID: id}
	}
	if t.Reset {
		tx.resetContext()
	}

	m := &message.Message{}
	st := &decodeState{tx: tx, id: id, r: r}
	err = st.instructions(t.Instructions, pm, func(inst *Instruction, f message.Field) {
		sectionOf(m, inst.Section).AddField(f)
	})
	if err != nil {
		return nil, 0, err
	}
	tx.commit()
	return m, r.pos, nil
}

type decodeState struct {
	tx *txn
	id uint32
	r  *reader
}

func (s *decodeState) wrap(err error, tag int) error {
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Err: err, TemplateID: s.id, Tag: tag}
}

func (s *decodeState) instructions(insts []Instruction, pm *pmapReader, sink func(*Instruction, message.Field)) error {
	for i := range insts {
		inst := &insts[i]
		if inst.Type == TypeSequence {
			f, present, err := s.sequence(inst, pm)
			if err != nil {
				return s.wrap(err, inst.Tag)
			}
			if present {
				sink(inst, f)
			}
			continue
		}
		text, present, err := s.scalar(inst, pm)
		if err != nil {
			return s.wrap(err, inst.Tag)
		}
		if present {
			sink(inst, message.Field{Tag: inst.Tag, Value: text})
		}
	}
	return nil
}

func (s *decodeState) sequence(inst *Instruction, pm *pmapReader) (message.Field, bool, error) {
	seq := inst.Sequence
	text, present, err := s.scalar(&seq.Length, pm)
	if err != nil || !present {
		return message.Field{}, false, err
	}
	n, err := strconv.Atoi(text)
	if err != nil || n > types.MaxGroupEntries {
		return message.Field{}, false, ErrInvalidValue
	}
	if n == 0 {
		return message.Field{}, false, nil
	}

	entries := make([]message.FieldSet, n)
	for i := range entries {
		epm := &pmapReader{}
		if seq.pmap {
			if epm, err = readPMap(s.r); err != nil {
				return message.Field{}, false, err
			}
		}
		entry := &entries[i]
		err := s.instructions(seq.Instructions, epm, func(_ *Instruction, f message.Field) {
			entry.AddField(f)
		})
		if err != nil {
			return message.Field{}, false, err
		}
	}
	return message.Field{Tag: inst.Tag, Value: text, Entries: entries}, true, nil
}

func (s *decodeState) scalar(inst *Instruction, pm *pmapReader) (string, bool, error) {
	switch inst.Operator {
	case OpNone:
		v, null, err := readValue(s.r, inst)
		if err != nil || null {
			return "", false, err
		}
		return formatValue(inst.Type, v), true, nil

	case OpConstant:
		if inst.Optional && !pm.next() {
			return "", false, nil
		}
		return formatValue(inst.Type, inst.initial), true, nil

	case OpDefault:
		if !pm.next() {
			if inst.HasValue {
				return formatValue(inst.Type, inst.initial), true, nil
			}
			return "", false, nil
		}
		v, null, err := readValue(s.r, inst)
		if err != nil || null {
			return "", false, err
		}
		return formatValue(inst.Type, v), true, nil

	case OpCopy, OpIncrement, OpTail:
		prior := s.tx.get(inst.key)
		if !pm.next() {
			iv, inull, ok, err := implied(inst, prior)
			if err != nil {
				return "", false, err
			}
			if !ok {
				return "", false, ErrUnknownFieldOperatorState
			}
			s.tx.set(inst.key, iv, inull)
			if inull {
				return "", false, nil
			}
			return formatValue(inst.Type, iv), true, nil
		}
		var v value
		var null bool
		var err error
		if inst.Operator == OpTail {
			v, null, err = readTail(s.r, inst, baseValue(inst, prior))
		} else {
			v, null, err = readValue(s.r, inst)
		}
		if err != nil {
			return "", false, err
		}
		s.tx.set(inst.key, v, null)
		if null {
			return "", false, nil
		}
		return formatValue(inst.Type, v), true, nil

	case OpDelta:
		base, err := deltaBase(inst, s.tx.get(inst.key))
		if err != nil {
			return "", false, err
		}
		v, null, err := readDelta(s.r, inst, base)
		if err != nil || null {
			return "", false, err
		}
		s.tx.set(inst.key, v, false)
		return formatValue(inst.Type, v), true, nil
	}
	return "", false, ErrInvalidTemplate
}

func readValue(r *reader, inst *Instruction) (value, bool, error) {
	switch inst.Type {
	case TypeUInt:
		if inst.Optional {
			u, null, err := r.nullableUint()
			return value{u: u}, null, err
		}
		u, err := r.uint()
		return value{u: u}, false, err
	case TypeInt:
		if inst.Optional {
			i, null, err := r.nullableInt()
			return value{i: i}, null, err
		}
		i, err := r.int()
		return value{i: i}, false, err
	case TypeASCII:
		s, null, err := r.ascii(inst.Optional)
		return value{s: s}, null, err
	case TypeBytes:
		b, null, err := r.bytes(inst.Optional)
		return value{s: string(b)}, null, err
	case TypeDecimal:
		var e int64
		if inst.Optional {
			v, null, err := r.nullableInt()
			if err != nil || null {
				return value{}, null, err
			}
			e = v
		} else {
			v, err := r.int()
			if err != nil {
				return value{}, false, err
			}
			e = v
		}
		if e < minExponent || e > maxExponent {
			return value{}, false, ErrOverflow
		}
		m, err := r.int()
		return value{m: m, e: int32(e)}, false, err
	}
	return value{}, false, ErrInvalidTemplate
}

func readDeltaInt(r *reader, nullable bool) (int64, bool, error) {
	if nullable {
		return r.nullableInt()
	}
	d, err := r.int()
	return d, false, err
}

func readDelta(r *reader, inst *Instruction, base value) (value, bool, error) {
	d, null, err := readDeltaInt(r, inst.Optional)
	if err != nil || null {
		return value{}, null, err
	}
	switch inst.Type {
	case TypeUInt:
		if base.u > math.MaxInt64 {
			return value{}, false, ErrOverflow
		}
		n, err := add64(int64(base.u), d)
		if err != nil || n < 0 {
			return value{}, false, ErrOverflow
		}
		return value{u: uint64(n)}, false, nil
	case TypeInt:
		n, err := add64(base.i, d)
		return value{i: n}, false, err
	case TypeDecimal:
		e := int64(base.e) + d
		if e < minExponent || e > maxExponent {
			return value{}, false, ErrOverflow
		}
		dm, err := r.int()
		if err != nil {
			return value{}, false, err
		}
		m, err := add64(base.m, dm)
		return value{m: m, e: int32(e)}, false, err
	default:
		var diff string
		if inst.Type == TypeBytes {
			b, _, err := r.bytes(false)
			if err != nil {
				return value{}, false, err
			}
			diff = string(b)
		} else {
			s, _, err := r.ascii(false)
			if err != nil {
				return value{}, false, err
			}
			diff = s
		}
		s, err := applyStringDelta(base.s, d, diff)
		return value{s: s}, false, err
	}
}

func readTail(r *reader, inst *Instruction, base value) (value, bool, error) {
	var keep uint64
	if inst.Optional {
		k, null, err := r.nullableUint()
		if err != nil || null {
			return value{}, null, err
		}
		keep = k
	} else {
		k, err := r.uint()
		if err != nil {
			return value{}, false, err
		}
		keep = k
	}
	if keep > uint64(len(base.s)) {
		return value{}, false, ErrInvalidValue
	}
	var suffix string
	if inst.Type == TypeBytes {
		b, _, err := r.bytes(false)
		if err != nil {
			return value{}, false, err
		}
		suffix = string(b)
	} else {
		s, _, err := r.ascii(false)
		if err != nil {
			return value{}, false, err
		}
		suffix = s
	}
	return value{s: base.s[:keep] + suffix}, false, nil
}
