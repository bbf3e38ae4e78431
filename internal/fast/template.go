package fast

import (
	"fmt"
	"strconv"
	"sync"
)

// Operator selects how a field is compressed.
type Operator int

const (
	// OpNone always carries the value and never touches the context.
	OpNone Operator = iota
	// OpConstant never carries the value; optional constants use a
	// presence bit.
	OpConstant
	// OpCopy omits the value when it equals the previous one.
	OpCopy
	// OpDelta always carries the difference from the previous value.
	OpDelta
	// OpIncrement omits the value when it is the previous one plus one.
	OpIncrement
	// OpDefault omits the value when it equals the initial value.
	OpDefault
	// OpTail carries a prefix length kept from the previous value plus the
	// new suffix.
	OpTail
)

var operatorNames = [...]string{"none", "constant", "copy", "delta", "increment", "default", "tail"}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return "invalid"
}

// usesPMap reports whether the operator consumes a presence bit.
func (o Operator) usesPMap(optional bool) bool {
	switch o {
	case OpCopy, OpIncrement, OpDefault, OpTail:
		return true
	case OpConstant:
		return optional
	default:
		return false
	}
}

// FieldType is the wire representation of a field.
type FieldType int

const (
	TypeUInt FieldType = iota
	TypeInt
	TypeASCII
	TypeBytes
	TypeDecimal
	TypeSequence
)

var fieldTypeNames = [...]string{"uint", "int", "ascii", "bytes", "decimal", "sequence"}

func (t FieldType) String() string {
	if int(t) < len(fieldTypeNames) {
		return fieldTypeNames[t]
	}
	return "invalid"
}

// Section places a field in a message.
type Section int

const (
	SectionBody Section = iota
	SectionHeader
	SectionTrailer
)

// Instruction describes one field of a template.
type Instruction struct {
	Tag      int
	Name     string
	Type     FieldType
	Operator Operator
	Optional bool
	Section  Section

	// Value is the initial value for constant, default, copy, increment,
	// delta and tail, in tag-value text form. HasValue distinguishes an
	// empty string from no initial value.
	Value    string
	HasValue bool

	// Key names the context entry. Empty means the tag path.
	Key string

	// Sequence describes a repeating group when Type is TypeSequence.
	Sequence *Sequence

	key     string
	initial value
}

// Sequence is a repeating group. Length carries the entry count and may use
// any integer operator.
type Sequence struct {
	Length       Instruction
	Instructions []Instruction
	pmap         bool
	tags         map[int]bool
}

// Template is an ordered list of instructions identified by ID.
type Template struct {
	ID           uint32
	Name         string
	MsgType      string
	Reset        bool
	Instructions []Instruction

	tags map[int]Section
}

// Registry holds prepared templates. A template must not be modified after
// it is added.
type Registry struct {
	mu        sync.RWMutex
	byID      map[uint32]*Template
	byMsgType map[string]*Template
}

// NewRegistry validates and registers templates.
func NewRegistry(templates ...*Template) (*Registry, error) {
	r := &Registry{
		byID:      make(map[uint32]*Template),
		byMsgType: make(map[string]*Template),
	}
	for _, t := range templates {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add validates t and registers it. IDs must be unique.
func (r *Registry) Add(t *Template) error {
	if err := t.prepare(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[t.ID]; dup {
		return &Error{Err: fmt.Errorf("%w: duplicate id", ErrInvalidTemplate), TemplateID: t.ID}
	}
	r.byID[t.ID] = t
	if t.MsgType != "" {
		if _, ok := r.byMsgType[t.MsgType]; !ok {
			r.byMsgType[t.MsgType] = t
		}
	}
	return nil
}

// Get returns the template with id.
func (r *Registry) Get(id uint32) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// ForMsgType returns the first template registered for msgType.
func (r *Registry) ForMsgType(msgType string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byMsgType[msgType]
	return t, ok
}

func (t *Template) prepare() error {
	if err := prepareInstructions(t.ID, t.Instructions, ""); err != nil {
		return err
	}
	t.tags = make(map[int]Section, len(t.Instructions))
	for _, inst := range t.Instructions {
		t.tags[inst.Tag] = inst.Section
	}
	return nil
}

func prepareInstructions(id uint32, insts []Instruction, prefix string) error {
	seen := make(map[int]bool, len(insts))
	for i := range insts {
		inst := &insts[i]
		if inst.Tag <= 0 {
			return invalid(id, inst.Tag, "tag must be positive")
		}
		if seen[inst.Tag] {
			return invalid(id, inst.Tag, "duplicate tag")
		}
		seen[inst.Tag] = true
		if err := prepareInstruction(id, inst, prefix); err != nil {
			return err
		}
	}
	return nil
}

func prepareInstruction(id uint32, inst *Instruction, prefix string) error {
	inst.key = inst.Key
	if inst.key == "" {
		inst.key = prefix + strconv.Itoa(inst.Tag)
	}

	if inst.Type == TypeSequence {
		seq := inst.Sequence
		if seq == nil || len(seq.Instructions) == 0 {
			return invalid(id, inst.Tag, "sequence without instructions")
		}
		seq.Length.Tag = inst.Tag
		seq.Length.Optional = inst.Optional
		seq.Length.Section = inst.Section
		if seq.Length.Type != TypeUInt {
			return invalid(id, inst.Tag, "sequence length must be uint")
		}
		if err := prepareInstruction(id, &seq.Length, prefix); err != nil {
			return err
		}
		if err := prepareInstructions(id, seq.Instructions, inst.key+"."); err != nil {
			return err
		}
		seq.pmap = needsPMap(seq.Instructions)
		seq.tags = make(map[int]bool, len(seq.Instructions))
		for _, si := range seq.Instructions {
			seq.tags[si.Tag] = true
		}
		return nil
	}

	switch inst.Operator {
	case OpIncrement:
		if inst.Type != TypeUInt && inst.Type != TypeInt {
			return invalid(id, inst.Tag, "increment requires an integer type")
		}
	case OpTail:
		if inst.Type != TypeASCII && inst.Type != TypeBytes {
			return invalid(id, inst.Tag, "tail requires a string type")
		}
	case OpConstant:
		if !inst.HasValue {
			return invalid(id, inst.Tag, "constant without value")
		}
	case OpDefault:
		if !inst.HasValue && !inst.Optional {
			return invalid(id, inst.Tag, "mandatory default without value")
		}
	case OpNone, OpCopy, OpDelta:
	default:
		return invalid(id, inst.Tag, "unknown operator")
	}

	if inst.HasValue {
		v, err := parseValue(inst.Type, inst.Value)
		if err != nil {
			return invalid(id, inst.Tag, "initial value does not parse")
		}
		inst.initial = v
	}
	return nil
}

func needsPMap(insts []Instruction) bool {
	for i := range insts {
		inst := &insts[i]
		if inst.Type == TypeSequence {
			if inst.Sequence.Length.Operator.usesPMap(inst.Optional) {
				return true
			}
			continue
		}
		if inst.Operator.usesPMap(inst.Optional) {
			return true
		}
	}
	return false
}

func invalid(id uint32, tag int, detail string) error {
	return &Error{Err: fmt.Errorf("%w: %s", ErrInvalidTemplate, detail), TemplateID: id, Tag: tag}
}
