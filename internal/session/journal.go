package session

import (
	"github.com/tidwall/btree"

	"github.com/solatis/fixengine/internal/message"
)

// journal keeps recently sent messages by sequence number for resend.
// Administrative messages are recorded as nil so a resend replaces them
// with a gap fill.
type journal struct {
	entries *btree.Map[int, *message.Message]
	max     int
}

func newJournal(max int) *journal {
	return &journal{entries: btree.NewMap[int, *message.Message](32), max: max}
}

func (j *journal) add(seq int, m *message.Message) {
	if m.IsAdmin() {
		j.entries.Set(seq, nil)
	} else {
		j.entries.Set(seq, m.Clone())
	}
	for j.entries.Len() > j.max {
		j.entries.PopMin()
	}
}

// ascend calls fn for application messages with seq in [from, to].
func (j *journal) ascend(from, to int, fn func(seq int, m *message.Message)) {
	j.entries.Ascend(from, func(seq int, m *message.Message) bool {
		if seq > to {
			return false
		}
		if m != nil {
			fn(seq, m)
		}
		return true
	})
}

func (j *journal) reset() {
	j.entries = btree.NewMap[int, *message.Message](32)
}

func (j *journal) len() int {
	return j.entries.Len()
}

// inbox buffers inbound messages that arrived ahead of a gap. A nil entry
// marks a sequence number whose message was already handled and only needs
// to advance the expected number when reached.
type inbox struct {
	entries *btree.Map[int, *message.Message]
}

func newInbox() *inbox {
	return &inbox{entries: btree.NewMap[int, *message.Message](16)}
}

func (b *inbox) put(seq int, m *message.Message) {
	b.entries.Set(seq, m)
}

func (b *inbox) min() (int, *message.Message, bool) {
	return b.entries.Min()
}

func (b *inbox) remove(seq int) {
	b.entries.Delete(seq)
}

func (b *inbox) len() int {
	return b.entries.Len()
}

func (b *inbox) clear() {
	b.entries = btree.NewMap[int, *message.Message](16)
}
