// Package session implements the FIX session layer: a deterministic state
// machine that sequences both message streams, and a Runner that binds it
// to a byte stream, timers, a persistence store and the application.
//
// The Machine never blocks and never performs I/O. Every input is an Event
// and every consequence is an Effect the caller executes in order, so the
// protocol logic can be driven step by step in tests.
package session

import "fmt"

// Phase is the lifecycle stage of a session.
type Phase int

const (
	// PhaseDisconnected means no transport is bound. Sequence numbers are
	// retained for the next connection.
	PhaseDisconnected Phase = iota
	// PhaseLogonInProgress means the transport is up and the Logon exchange
	// has not completed.
	PhaseLogonInProgress
	// PhaseActive means both sides are logged on and in sequence.
	PhaseActive
	// PhaseResendInProgress means a ResendRequest is outstanding and
	// out-of-order inbound messages are being buffered.
	PhaseResendInProgress
	// PhaseLogoutInProgress means a Logout was sent and the peer's answer
	// is awaited.
	PhaseLogoutInProgress
)

var phaseNames = [...]string{"disconnected", "logon_in_progress", "active", "resend_in_progress", "logout_in_progress"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "invalid"
}

// ParsePhase converts the String form back to a Phase.
func ParsePhase(s string) (Phase, bool) {
	for i, n := range phaseNames {
		if n == s {
			return Phase(i), true
		}
	}
	return PhaseDisconnected, false
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	v, ok := ParsePhase(string(b))
	if !ok {
		return fmt.Errorf("unknown session phase %q", b)
	}
	*p = v
	return nil
}

// LoggedOn reports whether application traffic may flow.
func (p Phase) LoggedOn() bool {
	return p == PhaseActive || p == PhaseResendInProgress || p == PhaseLogoutInProgress
}
