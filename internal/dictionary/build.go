package dictionary

import (
	"fmt"
	"strconv"
)

// Member kinds in raw definitions.
const (
	MemberField     = "field"
	MemberGroup     = "group"
	MemberComponent = "component"
)

// RawDefinitions is the loader-neutral input to Build. Members reference
// fields by name and components by name; nothing is resolved until Build.
type RawDefinitions struct {
	Version    string         `yaml:"version"`
	Fields     []RawField     `yaml:"fields"`
	Components []RawComponent `yaml:"components"`
	Header     []RawMember    `yaml:"header"`
	Trailer    []RawMember    `yaml:"trailer"`
	Messages   []RawMessage   `yaml:"messages"`
}

// RawField is an unresolved field definition.
type RawField struct {
	Tag         int        `yaml:"tag"`
	Name        string     `yaml:"name"`
	Type        string     `yaml:"type"`
	LengthField string     `yaml:"length_field,omitempty"`
	Values      []RawValue `yaml:"values,omitempty"`
}

// RawValue is one enumerated value.
type RawValue struct {
	Enum        string `yaml:"enum"`
	Description string `yaml:"description"`
}

// RawMember references a field, group or component. For groups, Name is
// the count field.
type RawMember struct {
	Kind     string      `yaml:"kind"`
	Name     string      `yaml:"name"`
	Required bool        `yaml:"required"`
	Members  []RawMember `yaml:"members,omitempty"`
}

// RawComponent is a named, reusable member list.
type RawComponent struct {
	Name    string      `yaml:"name"`
	Members []RawMember `yaml:"members"`
}

// RawMessage is an unresolved message layout.
type RawMessage struct {
	MsgType  string      `yaml:"msg_type"`
	Name     string      `yaml:"name"`
	Category string      `yaml:"category"`
	Members  []RawMember `yaml:"members"`
}

// Tags every dictionary must place in its header and trailer.
var (
	mandatoryHeader  = []int{TagBeginString, TagBodyLength, TagMsgType, TagMsgSeqNum, TagSendingTime}
	mandatoryTrailer = []int{TagCheckSum}
)

type builder struct {
	raw       *RawDefinitions
	d         *Dictionary
	rawComps  map[string]*RawComponent
	resolving map[string]bool
}

// Build validates raw definitions and resolves every reference, producing
// an immutable Dictionary. The returned error is always a *BuildError.
func Build(raw RawDefinitions) (*Dictionary, error) {
	b := &builder{
		raw: &raw,
		d: &Dictionary{
			version:      raw.Version,
			fields:       make(map[int]*FieldDefinition, len(raw.Fields)),
			fieldsByName: make(map[string]*FieldDefinition, len(raw.Fields)),
			messages:     make(map[string]*MessageDefinition, len(raw.Messages)),
			components:   make(map[string][]Member, len(raw.Components)),
		},
		rawComps:  make(map[string]*RawComponent, len(raw.Components)),
		resolving: make(map[string]bool),
	}
	if err := b.fields(); err != nil {
		return nil, err
	}
	if err := b.componentIndex(); err != nil {
		return nil, err
	}
	for _, c := range raw.Components {
		if _, err := b.component(c.Name, "component "+c.Name); err != nil {
			return nil, err
		}
	}
	if err := b.envelope(); err != nil {
		return nil, err
	}
	if err := b.messages(); err != nil {
		return nil, err
	}
	return b.d, nil
}

func (b *builder) fields() error {
	for _, rf := range b.raw.Fields {
		if rf.Tag <= 0 {
			return &BuildError{Err: ErrInvalidDefinition, Context: "fields", Tag: rf.Tag, Name: rf.Name, Detail: "tag must be positive"}
		}
		if rf.Name == "" {
			return &BuildError{Err: ErrInvalidDefinition, Context: "fields", Tag: rf.Tag, Detail: "missing name"}
		}
		if _, dup := b.d.fields[rf.Tag]; dup {
			return &BuildError{Err: ErrDuplicateTag, Context: "fields", Tag: rf.Tag, Name: rf.Name}
		}
		if _, dup := b.d.fieldsByName[rf.Name]; dup {
			return &BuildError{Err: ErrDuplicateName, Context: "fields", Tag: rf.Tag, Name: rf.Name}
		}
		t, err := ParseDataType(rf.Type)
		if err != nil {
			return &BuildError{Err: ErrInvalidDefinition, Context: "fields", Tag: rf.Tag, Name: rf.Name, Detail: err.Error()}
		}
		f := &FieldDefinition{Tag: rf.Tag, Name: rf.Name, Type: t}
		if len(rf.Values) > 0 {
			f.values = make(map[string]string, len(rf.Values))
			for _, v := range rf.Values {
				f.values[v.Enum] = v.Description
			}
		}
		b.d.fields[f.Tag] = f
		b.d.fieldsByName[f.Name] = f
	}

	for _, rf := range b.raw.Fields {
		if rf.LengthField == "" {
			continue
		}
		f := b.d.fields[rf.Tag]
		if f.Kind() != KindData {
			return &BuildError{Err: ErrInvalidDefinition, Context: "fields", Tag: f.Tag, Name: f.Name, Detail: "length_field on non-data field"}
		}
		lf, ok := b.d.fieldsByName[rf.LengthField]
		if !ok {
			return &BuildError{Err: ErrUnresolvedReference, Context: "fields", Tag: f.Tag, Name: rf.LengthField, Detail: "length field"}
		}
		if lf.Type != TypeLength {
			return &BuildError{Err: ErrInvalidDefinition, Context: "fields", Tag: lf.Tag, Name: lf.Name, Detail: "length field must be LENGTH"}
		}
		if lf.DataTag != 0 {
			return &BuildError{Err: ErrDuplicateTag, Context: "fields", Tag: lf.Tag, Name: lf.Name, Detail: "length field shared by two data fields"}
		}
		f.LengthTag = lf.Tag
		lf.DataTag = f.Tag
	}
	return nil
}

func (b *builder) componentIndex() error {
	for i := range b.raw.Components {
		c := &b.raw.Components[i]
		if _, dup := b.rawComps[c.Name]; dup {
			return &BuildError{Err: ErrDuplicateName, Context: "components", Name: c.Name}
		}
		b.rawComps[c.Name] = c
	}
	return nil
}

// component resolves a component once, detecting cycles.
func (b *builder) component(name, ctx string) ([]Member, error) {
	if m, ok := b.d.components[name]; ok {
		return m, nil
	}
	rc, ok := b.rawComps[name]
	if !ok {
		return nil, &BuildError{Err: ErrUnresolvedReference, Context: ctx, Name: name, Detail: "component"}
	}
	if b.resolving[name] {
		return nil, &BuildError{Err: ErrUnresolvedReference, Context: ctx, Name: name, Detail: "component cycle"}
	}
	b.resolving[name] = true
	defer delete(b.resolving, name)

	members, err := b.members(rc.Members, "component "+name)
	if err != nil {
		return nil, err
	}
	b.d.components[name] = members
	return members, nil
}

// members resolves a raw member list, flattening components in place.
func (b *builder) members(raw []RawMember, ctx string) ([]Member, error) {
	out := make([]Member, 0, len(raw))
	for _, rm := range raw {
		switch rm.Kind {
		case MemberField, "":
			f, err := b.field(rm.Name, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, Member{Field: f, Required: rm.Required})
		case MemberGroup:
			g, err := b.group(rm, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, Member{Field: g.CountField, Group: g, Required: rm.Required})
		case MemberComponent:
			cm, err := b.component(rm.Name, ctx)
			if err != nil {
				return nil, err
			}
			for _, m := range cm {
				// An optional component relaxes its members.
				m.Required = m.Required && rm.Required
				out = append(out, m)
			}
		default:
			return nil, &BuildError{Err: ErrInvalidDefinition, Context: ctx, Name: rm.Name, Detail: "unknown member kind " + strconv.Quote(rm.Kind)}
		}
	}
	return out, nil
}

func (b *builder) field(name, ctx string) (*FieldDefinition, error) {
	f, ok := b.d.fieldsByName[name]
	if !ok {
		return nil, &BuildError{Err: ErrUnresolvedReference, Context: ctx, Name: name, Detail: "field"}
	}
	return f, nil
}

func (b *builder) group(rm RawMember, ctx string) (*GroupDefinition, error) {
	count, err := b.field(rm.Name, ctx)
	if err != nil {
		return nil, err
	}
	if count.Type != TypeNumInGroup {
		return nil, &BuildError{Err: ErrInvalidDefinition, Context: ctx, Tag: count.Tag, Name: count.Name, Detail: "group count field must be NUMINGROUP"}
	}
	if len(rm.Members) == 0 {
		return nil, &BuildError{Err: ErrInvalidDefinition, Context: ctx, Tag: count.Tag, Name: count.Name, Detail: "empty group"}
	}
	gctx := fmt.Sprintf("%s group %s", ctx, count.Name)
	members, err := b.members(rm.Members, gctx)
	if err != nil {
		return nil, err
	}
	layout, err := newLayout(members, gctx)
	if err != nil {
		return nil, err
	}
	return &GroupDefinition{Layout: *layout, CountField: count}, nil
}

func newLayout(members []Member, ctx string) (*Layout, error) {
	l := &Layout{Members: members, index: make(map[int]int, len(members))}
	for i, m := range members {
		if _, dup := l.index[m.Tag()]; dup {
			return nil, &BuildError{Err: ErrDuplicateTag, Context: ctx, Tag: m.Tag(), Name: m.Field.Name}
		}
		l.index[m.Tag()] = i
	}
	return l, nil
}

func (b *builder) envelope() error {
	hm, err := b.members(b.raw.Header, "header")
	if err != nil {
		return err
	}
	if b.d.header, err = newLayout(hm, "header"); err != nil {
		return err
	}
	tm, err := b.members(b.raw.Trailer, "trailer")
	if err != nil {
		return err
	}
	if b.d.trailer, err = newLayout(tm, "trailer"); err != nil {
		return err
	}
	for _, tag := range mandatoryHeader {
		if !b.d.header.Has(tag) {
			return &BuildError{Err: ErrMissingMandatoryField, Context: "header", Tag: tag}
		}
	}
	for _, tag := range mandatoryTrailer {
		if !b.d.trailer.Has(tag) {
			return &BuildError{Err: ErrMissingMandatoryField, Context: "trailer", Tag: tag}
		}
	}
	for _, m := range b.d.header.Members {
		if b.d.trailer.Has(m.Tag()) {
			return &BuildError{Err: ErrDuplicateTag, Context: "trailer", Tag: m.Tag(), Name: m.Field.Name}
		}
	}
	return nil
}

func (b *builder) messages() error {
	for _, rm := range b.raw.Messages {
		ctx := "message " + rm.MsgType
		if rm.MsgType == "" {
			return &BuildError{Err: ErrInvalidDefinition, Context: "messages", Name: rm.Name, Detail: "missing msg_type"}
		}
		if _, dup := b.d.messages[rm.MsgType]; dup {
			return &BuildError{Err: ErrDuplicateMessage, Context: ctx, Name: rm.Name}
		}
		members, err := b.members(rm.Members, ctx)
		if err != nil {
			return err
		}
		layout, err := newLayout(members, ctx)
		if err != nil {
			return err
		}
		for _, m := range layout.Members {
			if b.d.header.Has(m.Tag()) || b.d.trailer.Has(m.Tag()) {
				return &BuildError{Err: ErrDuplicateTag, Context: ctx, Tag: m.Tag(), Name: m.Field.Name, Detail: "body field is also an envelope field"}
			}
		}
		category := rm.Category
		if category == "" {
			category = CategoryApp
		}
		b.d.messages[rm.MsgType] = &MessageDefinition{
			Layout:   *layout,
			MsgType:  rm.MsgType,
			Name:     rm.Name,
			Category: category,
		}
	}
	return nil
}
