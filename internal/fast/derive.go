package fast

import (
	"fmt"

	"github.com/solatis/fixengine/internal/dictionary"
)

// TemplateFromDictionary derives a template for msgType: BeginString and
// MsgType are constants, MsgSeqNum increments, text fields copy, numeric
// fields are delta-encoded from 0 and data fields are carried as-is.
// BodyLength and CheckSum have no FAST representation and are omitted.
func TemplateFromDictionary(d *dictionary.Dictionary, msgType string, id uint32) (*Template, error) {
	def, ok := d.MessageByType(msgType)
	if !ok {
		return nil, &Error{Err: fmt.Errorf("%w: unknown message type %q", ErrInvalidTemplate, msgType), TemplateID: id}
	}
	t := &Template{ID: id, Name: def.Name, MsgType: msgType}

	for _, m := range d.Header().Members {
		switch m.Tag() {
		case dictionary.TagBodyLength:
			continue
		case dictionary.TagBeginString:
			t.Instructions = append(t.Instructions, constant(m, d.Version(), SectionHeader))
		case dictionary.TagMsgType:
			t.Instructions = append(t.Instructions, constant(m, msgType, SectionHeader))
		case dictionary.TagMsgSeqNum:
			t.Instructions = append(t.Instructions, Instruction{
				Tag:      m.Tag(),
				Name:     m.Field.Name,
				Type:     TypeUInt,
				Operator: OpIncrement,
				Optional: !m.Required,
				Section:  SectionHeader,
			})
		default:
			t.Instructions = append(t.Instructions, derive(m, SectionHeader))
		}
	}
	for _, m := range def.Members {
		t.Instructions = append(t.Instructions, derive(m, SectionBody))
	}
	for _, m := range d.Trailer().Members {
		if m.Tag() == dictionary.TagCheckSum {
			continue
		}
		t.Instructions = append(t.Instructions, derive(m, SectionTrailer))
	}

	if err := t.prepare(); err != nil {
		return nil, err
	}
	return t, nil
}

// RegistryFromDictionary derives one template per message type, numbered
// from firstID in MsgType order.
func RegistryFromDictionary(d *dictionary.Dictionary, firstID uint32) (*Registry, error) {
	r, _ := NewRegistry()
	id := firstID
	for _, def := range d.Messages() {
		t, err := TemplateFromDictionary(d, def.MsgType, id)
		if err != nil {
			return nil, err
		}
		if err := r.Add(t); err != nil {
			return nil, err
		}
		id++
	}
	return r, nil
}

func constant(m dictionary.Member, v string, sec Section) Instruction {
	return Instruction{
		Tag:      m.Tag(),
		Name:     m.Field.Name,
		Type:     TypeASCII,
		Operator: OpConstant,
		Section:  sec,
		Value:    v,
		HasValue: true,
	}
}

func derive(m dictionary.Member, sec Section) Instruction {
	inst := Instruction{
		Tag:      m.Tag(),
		Name:     m.Field.Name,
		Optional: !m.Required,
		Section:  sec,
	}
	if m.IsGroup() {
		inst.Type = TypeSequence
		seq := &Sequence{Length: Instruction{Name: m.Field.Name, Type: TypeUInt, Operator: OpNone}}
		for _, gm := range m.Group.Members {
			seq.Instructions = append(seq.Instructions, derive(gm, sec))
		}
		inst.Sequence = seq
		return inst
	}

	f := m.Field
	switch f.Kind() {
	case dictionary.KindInt:
		switch f.Type {
		case dictionary.TypeLength, dictionary.TypeNumInGroup, dictionary.TypeSeqNum, dictionary.TypeTagNum:
			inst.Type = TypeUInt
		default:
			inst.Type = TypeInt
		}
		inst.Operator = OpDelta
	case dictionary.KindFloat:
		inst.Type = TypeDecimal
		inst.Operator = OpDelta
	case dictionary.KindData:
		inst.Type = TypeBytes
		inst.Operator = OpNone
	default:
		inst.Type = TypeASCII
		inst.Operator = OpCopy
	}
	if inst.Operator == OpDelta {
		inst.Value, inst.HasValue = "0", true
	}
	return inst
}
