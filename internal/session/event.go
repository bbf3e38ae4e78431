package session

import (
	"time"

	"github.com/solatis/fixengine/internal/message"
)

// Timer names one of the session's timers. Starting a timer replaces any
// running timer of the same kind.
type Timer int

const (
	// TimerHeartbeat fires when nothing was sent for a heartbeat interval.
	TimerHeartbeat Timer = iota
	// TimerInbound fires when nothing was received for a heartbeat interval.
	TimerInbound
	// TimerLogon bounds the Logon exchange.
	TimerLogon
	// TimerLogout bounds the wait for the peer's Logout.
	TimerLogout
)

var timerNames = [...]string{"heartbeat", "inbound", "logon", "logout"}

func (t Timer) String() string {
	if t >= 0 && int(t) < len(timerNames) {
		return timerNames[t]
	}
	return "invalid"
}

// allTimers lists every timer kind.
var allTimers = []Timer{TimerHeartbeat, TimerInbound, TimerLogon, TimerLogout}

// Event is an input to Machine.Step.
type Event interface {
	isEvent()
}

// Connected reports a new transport. Initiators send Logon.
type Connected struct{}

// Received carries a decoded inbound message.
type Received struct {
	Msg *message.Message
}

// ReceiveFailed carries an inbound message that failed to decode.
type ReceiveFailed struct {
	Err error
}

// Submit asks to send an application message.
type Submit struct {
	Msg *message.Message
}

// TimerFired reports that a timer started by StartTimer elapsed.
type TimerFired struct {
	Timer Timer
}

// LogoutRequested asks for an orderly logout.
type LogoutRequested struct {
	Text string
}

// Disconnected reports that the transport is gone.
type Disconnected struct {
	Err error
}

func (Connected) isEvent()       {}
func (Received) isEvent()        {}
func (ReceiveFailed) isEvent()   {}
func (Submit) isEvent()          {}
func (TimerFired) isEvent()      {}
func (LogoutRequested) isEvent() {}
func (Disconnected) isEvent()    {}

// Effect is an action the caller of Machine.Step must carry out, in order.
type Effect interface {
	isEffect()
}

// Send writes a fully stamped message to the transport.
type Send struct {
	Msg *message.Message
}

// Deliver hands an inbound message to the application.
type Deliver struct {
	Msg   *message.Message
	Admin bool
}

// Persist stores the sequence state. It precedes any Send in the same step.
type Persist struct {
	Snapshot Snapshot
}

// StartTimer (re)arms a timer.
type StartTimer struct {
	Timer Timer
	After time.Duration
}

// CancelTimer stops a timer if running.
type CancelTimer struct {
	Timer Timer
}

// Disconnect closes the transport. Err is nil for an orderly logout.
type Disconnect struct {
	Err error
}

// ResetFAST clears FAST contexts bound to the session.
type ResetFAST struct{}

// LoggedOn reports a completed Logon exchange.
type LoggedOn struct{}

// LoggedOut reports the end of a logged-on session.
type LoggedOut struct {
	Err error
}

func (Send) isEffect()        {}
func (Deliver) isEffect()     {}
func (Persist) isEffect()     {}
func (StartTimer) isEffect()  {}
func (CancelTimer) isEffect() {}
func (Disconnect) isEffect()  {}
func (ResetFAST) isEffect()   {}
func (LoggedOn) isEffect()    {}
func (LoggedOut) isEffect()   {}
