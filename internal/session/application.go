package session

import (
	"time"

	"github.com/solatis/fixengine/internal/message"
	"github.com/solatis/fixengine/internal/types"
)

// Application receives session notifications and inbound messages. All
// callbacks run on the session's goroutine and must not block.
type Application interface {
	OnLogon(id types.SessionIdentity)
	OnLogout(id types.SessionIdentity, err error)
	FromAdmin(id types.SessionIdentity, msg *message.Message)
	FromApp(id types.SessionIdentity, msg *message.Message)
}

// NopApplication ignores every callback.
type NopApplication struct{}

func (NopApplication) OnLogon(types.SessionIdentity)                      {}
func (NopApplication) OnLogout(types.SessionIdentity, error)              {}
func (NopApplication) FromAdmin(types.SessionIdentity, *message.Message) {}
func (NopApplication) FromApp(types.SessionIdentity, *message.Message)   {}

// TimerSource schedules callbacks. The returned stop function cancels the
// callback if it has not started and reports whether it did.
type TimerSource interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// SystemTimers schedules on the runtime timer heap.
type SystemTimers struct{}

func (SystemTimers) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
