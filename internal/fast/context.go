package fast

// slotState distinguishes a never-set entry from one holding null.
type slotState int

const (
	slotUndefined slotState = iota
	slotAssigned
	slotEmpty
)

type slot struct {
	state slotState
	v     value
}

// templateIDKey holds the last template id; it cannot collide with tag
// paths, which are digits and dots.
const templateIDKey = "#tid"

// Context holds the previous value of every field for one logical stream
// and direction. It is not safe for concurrent use.
//
// Encode and Decode stage their updates and apply them only when the whole
// message succeeds, so a rejected message leaves the context untouched.
type Context struct {
	values map[string]slot
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{values: make(map[string]slot)}
}

// Reset forgets every previous value. The next message on the stream
// carries all non-constant values explicitly.
func (c *Context) Reset() {
	c.values = make(map[string]slot)
}

// Len returns the number of context entries.
func (c *Context) Len() int {
	return len(c.values)
}

func (c *Context) begin() *txn {
	return &txn{ctx: c, staged: make(map[string]slot)}
}

type txn struct {
	ctx    *Context
	staged map[string]slot
	reset  bool
}

func (t *txn) get(key string) slot {
	if s, ok := t.staged[key]; ok {
		return s
	}
	if t.reset {
		return slot{}
	}
	return t.ctx.values[key]
}

func (t *txn) set(key string, v value, null bool) {
	if null {
		t.staged[key] = slot{state: slotEmpty}
		return
	}
	t.staged[key] = slot{state: slotAssigned, v: v}
}

// resetContext hides committed values for the rest of the message and
// replaces them on commit.
func (t *txn) resetContext() {
	tid, hasTID := t.staged[templateIDKey]
	t.staged = make(map[string]slot)
	if hasTID {
		t.staged[templateIDKey] = tid
	}
	t.reset = true
}

func (t *txn) commit() {
	if t.reset {
		t.ctx.values = t.staged
		return
	}
	for k, s := range t.staged {
		t.ctx.values[k] = s
	}
}
