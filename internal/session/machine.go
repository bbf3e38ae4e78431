package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/solatis/fixengine/internal/dictionary"
	"github.com/solatis/fixengine/internal/message"
	"github.com/solatis/fixengine/internal/tagvalue"
	"github.com/solatis/fixengine/internal/types"
)

// Machine is the session state machine. It is not safe for concurrent use:
// exactly one goroutine calls Step, which makes sequence number assignment
// and state transitions strictly ordered.
type Machine struct {
	cfg Config

	phase     Phase
	nextOut   int
	nextIn    int
	heartbeat time.Duration
	lastSent  time.Time
	lastRecv  time.Time

	testReqPending bool
	testReqSeq     int

	// [resendBegin, resendEnd] is the outstanding ResendRequest; zero when
	// none.
	resendBegin int
	resendEnd   int

	sentReset bool
	loggedOn  bool

	journal *journal
	pending *inbox

	// unsentFrom is the lowest journaled number submitted while not logged
	// on; zero when none is waiting.
	unsentFrom int
	// requeued holds unsent application messages whose numbers a sequence
	// reset discarded. They are renumbered and sent once logged on.
	requeued []*message.Message

	effects []Effect
	dirty   bool
}

// NewMachine returns a disconnected machine starting from snap.
func NewMachine(cfg Config, snap Snapshot) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()
	m := &Machine{
		cfg:       cfg,
		heartbeat: cfg.HeartbeatInterval,
		journal:   newJournal(cfg.MaxJournal),
		pending:   newInbox(),
	}
	m.Restore(snap)
	return m, nil
}

// Restore loads sequence numbers from snap. The phase is always reset to
// disconnected. Restore must not be called while connected.
func (m *Machine) Restore(snap Snapshot) {
	m.nextOut = max(snap.NextOutbound, 1)
	m.nextIn = max(snap.NextInbound, 1)
	m.phase = PhaseDisconnected
}

// Identity returns the session identity.
func (m *Machine) Identity() types.SessionIdentity {
	return m.cfg.Identity
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// NextOutbound returns the sequence number the next sent message will carry.
func (m *Machine) NextOutbound() int {
	return m.nextOut
}

// NextInbound returns the expected sequence number of the next inbound
// message.
func (m *Machine) NextInbound() int {
	return m.nextIn
}

// HeartbeatInterval returns the negotiated interval.
func (m *Machine) HeartbeatInterval() time.Duration {
	return m.heartbeat
}

// ResendRange returns the outstanding ResendRequest range.
func (m *Machine) ResendRange() (begin, end int, ok bool) {
	return m.resendBegin, m.resendEnd, m.resendBegin != 0
}

// Buffered returns the number of inbound messages held behind a gap.
func (m *Machine) Buffered() int {
	return m.pending.len()
}

// Snapshot returns the persistable state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		NextOutbound: m.nextOut,
		NextInbound:  m.nextIn,
		Phase:        m.phase,
		UpdatedAt:    m.cfg.Now().UTC(),
	}
}

// Step applies one event and returns the effects to execute in order. When
// the state changed, the first effect is a Persist.
func (m *Machine) Step(ev Event) []Effect {
	m.effects = nil
	m.dirty = false

	switch e := ev.(type) {
	case Connected:
		m.connected()
	case Received:
		m.received(e.Msg)
	case ReceiveFailed:
		m.receiveFailed(e.Err)
	case Submit:
		m.submit(e.Msg)
	case TimerFired:
		m.timerFired(e.Timer)
	case LogoutRequested:
		m.logout(e.Text)
	case Disconnected:
		m.disconnect(e.Err, false)
	}

	out := m.effects
	m.effects = nil
	if m.dirty {
		out = append([]Effect{Persist{Snapshot: m.Snapshot()}}, out...)
	}
	return out
}

func (m *Machine) emit(e Effect) {
	m.effects = append(m.effects, e)
}

func (m *Machine) now() time.Time {
	return m.cfg.Now()
}

func (m *Machine) setPhase(p Phase) {
	if m.phase != p {
		m.phase = p
		m.dirty = true
	}
}

func (m *Machine) connected() {
	if m.phase != PhaseDisconnected {
		return
	}
	now := m.now()
	m.lastSent, m.lastRecv = now, now
	m.testReqPending = false
	m.resendBegin, m.resendEnd = 0, 0
	m.pending.clear()
	m.heartbeat = m.cfg.HeartbeatInterval
	m.sentReset = false

	m.setPhase(PhaseLogonInProgress)
	m.emit(StartTimer{Timer: TimerLogon, After: m.cfg.LogonTimeout})

	if m.cfg.Role == types.RoleInitiator {
		if m.cfg.ResetOnLogon {
			m.resetSequences()
			m.sentReset = true
		}
		m.send(newLogon(int(m.heartbeat/time.Second), m.sentReset, m.cfg.Username, m.cfg.Password))
	}
}

// resetSequences restarts both streams at 1. Messages that never reached
// the peer are kept for renumbering.
func (m *Machine) resetSequences() {
	if m.unsentFrom > 0 {
		m.journal.ascend(m.unsentFrom, m.nextOut-1, func(_ int, msg *message.Message) {
			m.requeued = append(m.requeued, msg)
		})
		m.unsentFrom = 0
	}
	m.nextOut, m.nextIn = 1, 1
	m.journal.reset()
	m.pending.clear()
	m.dirty = true
	m.emit(ResetFAST{})
}

// stamp fills the standard header for seq.
func (m *Machine) stamp(msg *message.Message, seq int) {
	id := m.cfg.Identity
	msg.Header.Set(dictionary.TagBeginString, id.BeginString)
	msg.Header.Set(tagSenderCompID, id.SenderCompID)
	msg.Header.Set(tagTargetCompID, id.TargetCompID)
	msg.Header.SetInt(dictionary.TagMsgSeqNum, seq)
	msg.Header.SetTime(dictionary.TagSendingTime, m.now())
}

// assign stamps msg with the next outbound number and journals it.
func (m *Machine) assign(msg *message.Message) {
	m.stamp(msg, m.nextOut)
	m.journal.add(m.nextOut, msg)
	m.nextOut++
	m.dirty = true
}

// send assigns a sequence number and emits msg.
func (m *Machine) send(msg *message.Message) {
	m.assign(msg)
	if msg.MsgType() == message.TypeLogon && m.cfg.SignLogon != nil {
		if err := m.cfg.SignLogon(msg); err != nil {
			m.disconnect(fmt.Errorf("sign logon: %w", err), true)
			return
		}
	}
	m.transmit(msg)
}

func (m *Machine) transmit(msg *message.Message) {
	m.lastSent = m.now()
	m.emit(Send{Msg: msg})
}

func (m *Machine) submit(msg *message.Message) {
	if m.phase == PhaseActive || m.phase == PhaseResendInProgress {
		m.assign(msg)
		m.transmit(msg)
		return
	}
	if len(m.requeued) > 0 {
		m.requeued = append(m.requeued, msg)
		return
	}
	if m.unsentFrom == 0 {
		m.unsentFrom = m.nextOut
	}
	m.assign(msg)
}

// flushRequeued sends messages held back by a sequence reset. Without a
// reset, queued messages reach the peer through its ResendRequest.
func (m *Machine) flushRequeued() {
	m.unsentFrom = 0
	for _, msg := range m.requeued {
		m.assign(msg)
		m.transmit(msg)
	}
	m.requeued = nil
}

func (m *Machine) startHeartbeats() {
	if m.heartbeat <= 0 {
		return
	}
	m.emit(StartTimer{Timer: TimerHeartbeat, After: m.heartbeat})
	m.emit(StartTimer{Timer: TimerInbound, After: m.heartbeat})
}

func (m *Machine) received(msg *message.Message) {
	if m.phase == PhaseDisconnected {
		return
	}
	m.lastRecv = m.now()
	m.testReqPending = false

	seq, err := msg.SeqNum()
	if err != nil {
		m.disconnect(ErrMissingSeqNum, true)
		return
	}
	if !m.identityMatches(msg) {
		m.send(newReject(seq, msg.MsgType(), tagSenderCompID, rejectCompIDProblem, "CompID problem"))
		m.send(newLogout("CompID problem"))
		m.disconnect(ErrIdentityMismatch, true)
		return
	}

	if m.phase == PhaseLogonInProgress {
		m.logonReceived(msg, seq)
		return
	}

	msgType := msg.MsgType()
	if msgType == message.TypeSequenceReset && !flag(&msg.Body, tagGapFillFlag) {
		m.sequenceReset(msg, seq)
		return
	}

	switch {
	case seq < m.nextIn:
		if flag(&msg.Header, tagPossDupFlag) {
			return
		}
		m.tooLow(msgType, seq)
	case seq > m.nextIn:
		m.ahead(msg, seq)
	default:
		m.accept(msg, seq)
		m.drain()
	}
}

// rejectCompIDProblem is SessionRejectReason 9.
const rejectCompIDProblem = 9

func (m *Machine) identityMatches(msg *message.Message) bool {
	id := m.cfg.Identity
	if v, ok := msg.Header.Get(dictionary.TagBeginString); ok && v != id.BeginString {
		return false
	}
	sender, _ := msg.Header.Get(tagSenderCompID)
	target, _ := msg.Header.Get(tagTargetCompID)
	return sender == id.TargetCompID && target == id.SenderCompID
}

func (m *Machine) tooLow(msgType string, seq int) {
	m.send(newLogout(fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", m.nextIn, seq)))
	m.disconnect(&ProtocolError{Err: ErrSequenceTooLow, MsgType: msgType, Expected: m.nextIn, Received: seq}, true)
}

func (m *Machine) logonReceived(msg *message.Message, seq int) {
	switch msg.MsgType() {
	case message.TypeLogon:
	case message.TypeLogout:
		m.emit(Deliver{Msg: msg, Admin: true})
		text, _ := msg.Body.Get(tagText)
		m.disconnect(fmt.Errorf("%w: %s", ErrLogonRejected, text), true)
		return
	default:
		m.disconnect(fmt.Errorf("%w: received msg_type %s", ErrLogonExpected, msg.MsgType()), true)
		return
	}

	acceptor := m.cfg.Role == types.RoleAcceptor
	if acceptor && m.cfg.Authenticate != nil {
		if err := m.cfg.Authenticate(msg); err != nil {
			m.send(newLogout("logon rejected"))
			m.disconnect(fmt.Errorf("%w: %v", ErrAuthentication, err), true)
			return
		}
	}

	if acceptor {
		if secs, ok := intField(&msg.Body, tagHeartBtInt); ok && secs >= 0 {
			m.heartbeat = time.Duration(secs) * time.Second
		}
	}

	reset := flag(&msg.Body, tagResetSeqNumFlag)
	switch {
	case acceptor && (reset || m.cfg.ResetOnLogon):
		m.resetSequences()
		reset = true
	case !acceptor && reset && !m.sentReset:
		m.nextIn = 1
		m.dirty = true
	}

	if seq < m.nextIn {
		m.tooLow(message.TypeLogon, seq)
		return
	}

	if acceptor {
		m.send(newLogon(int(m.heartbeat/time.Second), reset, "", ""))
	}
	m.loggedOn = true
	m.setPhase(PhaseActive)
	m.emit(CancelTimer{Timer: TimerLogon})
	m.emit(LoggedOn{})
	m.emit(Deliver{Msg: msg, Admin: true})
	m.startHeartbeats()
	m.flushRequeued()

	if seq == m.nextIn {
		m.nextIn++
		m.dirty = true
		return
	}
	m.pending.put(seq, nil)
	m.requestResend(m.nextIn, seq-1)
}

// ahead handles a message beyond the expected number.
func (m *Machine) ahead(msg *message.Message, seq int) {
	switch msg.MsgType() {
	case message.TypeLogout:
		m.process(msg)
		return
	case message.TypeResendRequest:
		m.process(msg)
		m.pending.put(seq, nil)
	default:
		m.pending.put(seq, msg)
	}
	if m.phase == PhaseActive || (m.phase == PhaseLogoutInProgress && m.resendBegin == 0) {
		m.requestResend(m.nextIn, seq-1)
	}
}

func (m *Machine) requestResend(begin, end int) {
	m.resendBegin, m.resendEnd = begin, end
	if m.phase == PhaseActive {
		m.setPhase(PhaseResendInProgress)
	}
	m.send(newResendRequest(begin, end))
}

// accept processes an in-sequence message and advances the expected number.
func (m *Machine) accept(msg *message.Message, seq int) {
	if !m.process(msg) {
		m.nextIn = seq + 1
	}
	m.dirty = true
}

// drain replays buffered messages that are now in sequence and leaves
// ResendInProgress once the outstanding range is covered.
func (m *Machine) drain() {
	for m.phase != PhaseDisconnected {
		seq, msg, ok := m.pending.min()
		if !ok || seq > m.nextIn {
			break
		}
		m.pending.remove(seq)
		if seq < m.nextIn {
			continue
		}
		if msg == nil {
			m.nextIn = seq + 1
			m.dirty = true
			continue
		}
		m.accept(msg, seq)
	}

	if m.resendBegin == 0 || m.nextIn <= m.resendEnd || !m.phase.LoggedOn() {
		return
	}
	if seq, _, ok := m.pending.min(); ok {
		m.requestResend(m.nextIn, seq-1)
		return
	}
	m.resendBegin, m.resendEnd = 0, 0
	if m.phase == PhaseResendInProgress {
		m.setPhase(PhaseActive)
	}
}

// process handles an in-sequence message. It reports whether it set the
// expected inbound number itself.
func (m *Machine) process(msg *message.Message) bool {
	msgType := msg.MsgType()
	if !message.IsAdminType(msgType) {
		m.emit(Deliver{Msg: msg})
		return false
	}
	m.emit(Deliver{Msg: msg, Admin: true})

	switch msgType {
	case message.TypeTestRequest:
		id, _ := msg.Body.Get(tagTestReqID)
		m.send(newHeartbeat(id))

	case message.TypeResendRequest:
		begin, _ := intField(&msg.Body, tagBeginSeqNo)
		end, _ := intField(&msg.Body, tagEndSeqNo)
		m.resend(begin, end)

	case message.TypeSequenceReset:
		newSeq, ok := intField(&msg.Body, tagNewSeqNo)
		seq, _ := msg.SeqNum()
		if !ok || newSeq <= seq {
			m.send(newReject(seq, msgType, tagNewSeqNo, tagvalue.RejectValueIncorrect, "NewSeqNo must exceed MsgSeqNum"))
			return false
		}
		m.nextIn = newSeq
		m.dirty = true
		return true

	case message.TypeLogout:
		if m.phase != PhaseLogoutInProgress {
			m.send(newLogout(""))
		}
		m.disconnect(nil, true)

	case message.TypeLogon:
		m.send(newLogout("unexpected logon"))
		m.disconnect(ErrUnexpectedLogon, true)
	}
	return false
}

// sequenceReset handles reset mode, which ignores MsgSeqNum.
func (m *Machine) sequenceReset(msg *message.Message, seq int) {
	m.emit(Deliver{Msg: msg, Admin: true})
	newSeq, ok := intField(&msg.Body, tagNewSeqNo)
	if !ok || newSeq < m.nextIn {
		m.send(newReject(seq, message.TypeSequenceReset, tagNewSeqNo, tagvalue.RejectValueIncorrect, "NewSeqNo below expected"))
		return
	}
	m.nextIn = newSeq
	m.dirty = true
	m.drain()
}

// resend services a ResendRequest from the journal. Application messages go
// out again with their original numbers and PossDupFlag; everything else is
// covered by gap fills. An EndSeqNo of 0 means everything sent so far.
func (m *Machine) resend(begin, end int) {
	last := m.nextOut - 1
	if end == 0 || end > last {
		end = last
	}
	begin = max(begin, 1)
	if begin > end {
		return
	}

	gapFrom := begin
	m.journal.ascend(begin, end, func(seq int, orig *message.Message) {
		if seq > gapFrom {
			m.gapFill(gapFrom, seq)
		}
		m.retransmit(orig)
		gapFrom = seq + 1
	})
	if gapFrom <= end {
		m.gapFill(gapFrom, end+1)
	}
}

func (m *Machine) retransmit(orig *message.Message) {
	msg := orig.Clone()
	if sent, ok := orig.Header.Get(dictionary.TagSendingTime); ok {
		msg.Header.Set(tagOrigSendingTime, sent)
	}
	msg.Header.SetBool(tagPossDupFlag, true)
	msg.Header.SetTime(dictionary.TagSendingTime, m.now())
	m.transmit(msg)
}

func (m *Machine) gapFill(seq, newSeqNo int) {
	msg := newGapFill(newSeqNo)
	m.stamp(msg, seq)
	msg.Header.SetBool(tagPossDupFlag, true)
	msg.Header.SetTime(tagOrigSendingTime, m.now())
	m.transmit(msg)
}

func (m *Machine) receiveFailed(err error) {
	if m.phase == PhaseDisconnected {
		return
	}
	var de *tagvalue.DecodeError
	if !errors.As(err, &de) || de.Fatal() || m.phase == PhaseLogonInProgress {
		m.disconnect(err, true)
		return
	}
	m.lastRecv = m.now()
	m.testReqPending = false

	seq := de.MsgSeqNum
	if seq == 0 {
		return
	}
	switch {
	case seq < m.nextIn:
		if !de.PossDup {
			m.tooLow(de.MsgType, seq)
		}
	case seq > m.nextIn:
		m.send(newReject(seq, de.MsgType, de.RefTag, de.RejectReason(), de.Err.Error()))
		m.pending.put(seq, nil)
		if m.phase == PhaseActive {
			m.requestResend(m.nextIn, seq-1)
		}
	default:
		m.send(newReject(seq, de.MsgType, de.RefTag, de.RejectReason(), de.Err.Error()))
		m.nextIn = seq + 1
		m.dirty = true
		m.drain()
	}
}

func (m *Machine) timerFired(t Timer) {
	now := m.now()
	switch t {
	case TimerHeartbeat:
		if !m.phase.LoggedOn() || m.heartbeat <= 0 {
			return
		}
		if idle := now.Sub(m.lastSent); idle < m.heartbeat {
			m.emit(StartTimer{Timer: TimerHeartbeat, After: m.heartbeat - idle})
			return
		}
		m.send(newHeartbeat(""))
		m.emit(StartTimer{Timer: TimerHeartbeat, After: m.heartbeat})

	case TimerInbound:
		if !m.phase.LoggedOn() || m.heartbeat <= 0 {
			return
		}
		if idle := now.Sub(m.lastRecv); !m.testReqPending && idle < m.heartbeat {
			m.emit(StartTimer{Timer: TimerInbound, After: m.heartbeat - idle})
			return
		}
		if m.testReqPending {
			m.disconnect(ErrHeartbeatTimeout, true)
			return
		}
		m.testReqSeq++
		m.testReqPending = true
		m.send(newTestRequest(fmt.Sprintf("TEST-%d", m.testReqSeq)))
		m.emit(StartTimer{Timer: TimerInbound, After: m.heartbeat})

	case TimerLogon:
		if m.phase == PhaseLogonInProgress {
			m.disconnect(ErrLogonTimeout, true)
		}

	case TimerLogout:
		if m.phase == PhaseLogoutInProgress {
			m.disconnect(ErrLogoutTimeout, true)
		}
	}
}

func (m *Machine) logout(text string) {
	switch m.phase {
	case PhaseActive, PhaseResendInProgress:
		m.send(newLogout(text))
		m.setPhase(PhaseLogoutInProgress)
		m.emit(StartTimer{Timer: TimerLogout, After: m.cfg.LogoutTimeout})
	case PhaseLogonInProgress:
		m.disconnect(nil, true)
	}
}

// disconnect moves to PhaseDisconnected and discards buffered resend state.
// close asks the caller to drop the transport.
func (m *Machine) disconnect(err error, close bool) {
	if m.phase == PhaseDisconnected {
		return
	}
	wasLoggedOn := m.loggedOn
	m.loggedOn = false
	m.setPhase(PhaseDisconnected)
	m.pending.clear()
	m.resendBegin, m.resendEnd = 0, 0
	m.testReqPending = false

	for _, t := range allTimers {
		m.emit(CancelTimer{Timer: t})
	}
	if close {
		m.emit(Disconnect{Err: err})
	}
	if wasLoggedOn {
		m.emit(LoggedOut{Err: err})
	}
}
