package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSequenceTooLow indicates an inbound MsgSeqNum below the expected
	// value without PossDupFlag. The session cannot continue.
	ErrSequenceTooLow = errors.New("session: MsgSeqNum too low")

	// ErrMissingSeqNum indicates an inbound message without a usable
	// MsgSeqNum.
	ErrMissingSeqNum = errors.New("session: missing MsgSeqNum")

	// ErrLogonExpected indicates a first inbound message other than Logon.
	ErrLogonExpected = errors.New("session: expected logon")

	// ErrLogonRejected indicates the peer answered our Logon with Logout.
	ErrLogonRejected = errors.New("session: logon rejected by peer")

	// ErrAuthentication indicates an inbound Logon failed the credential check.
	ErrAuthentication = errors.New("session: logon authentication failed")

	// ErrUnexpectedLogon indicates a Logon on an established session.
	ErrUnexpectedLogon = errors.New("session: unexpected logon")

	// ErrIdentityMismatch indicates inbound CompIDs or BeginString that do
	// not match the session identity.
	ErrIdentityMismatch = errors.New("session: identity mismatch")

	// ErrLogonTimeout indicates the Logon exchange did not complete in time.
	ErrLogonTimeout = errors.New("session: logon timeout")

	// ErrLogoutTimeout indicates the peer did not answer our Logout in time.
	ErrLogoutTimeout = errors.New("session: logout timeout")

	// ErrHeartbeatTimeout indicates no inbound traffic after a TestRequest.
	ErrHeartbeatTimeout = errors.New("session: heartbeat timeout")

	// ErrAdminMessage indicates an attempt to submit a session-level message
	// through the application path.
	ErrAdminMessage = errors.New("session: administrative messages are generated by the session")

	// ErrInvalidConfig indicates an unusable session configuration.
	ErrInvalidConfig = errors.New("session: invalid config")
)

// ProtocolError records the sequence numbers involved in a fatal violation.
type ProtocolError struct {
	Err      error
	MsgType  string
	Expected int
	Received int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v: expected %d, received %d (msg_type=%s)", e.Err, e.Expected, e.Received, e.MsgType)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
