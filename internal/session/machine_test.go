package session

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/solatis/fixengine/internal/message"
	"github.com/solatis/fixengine/internal/tagvalue"
	"github.com/solatis/fixengine/internal/types"
)

var identity = types.SessionIdentity{BeginString: "FIX.4.4", SenderCompID: "BUY", TargetCompID: "SELL"}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newMachine(t *testing.T, role types.Role, opts ...func(*Config)) (*Machine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 2, 10, 11, 12, 0, time.UTC)}
	cfg := DefaultConfig(identity, role)
	cfg.Now = clock.Now
	for _, opt := range opts {
		opt(&cfg)
	}
	m, err := NewMachine(cfg, InitialSnapshot())
	if err != nil {
		t.Fatalf("NewMachine() error = %v, want nil", err)
	}
	return m, clock
}

// peer builds a message as the counterparty would send it.
func peer(msgType string, seq int, body ...string) *message.Message {
	m := message.New(msgType)
	m.Header.Set(8, "FIX.4.4")
	m.Header.Set(49, "SELL")
	m.Header.Set(56, "BUY")
	m.Header.SetInt(34, seq)
	m.Header.Set(52, "20240102-10:11:12.000")
	for i := 0; i+1 < len(body); i += 2 {
		tag, _ := strconv.Atoi(body[i])
		m.Body.Set(tag, body[i+1])
	}
	return m
}

func possDup(m *message.Message) *message.Message {
	m.Header.SetBool(43, true)
	return m
}

func order(clOrdID string) *message.Message {
	m := message.New("D")
	m.Body.Set(11, clOrdID)
	m.Body.Set(55, "IBM")
	m.Body.Set(54, "1")
	m.Body.Set(60, "20240102-10:11:12.000")
	m.Body.Set(38, "100")
	m.Body.Set(40, "1")
	return m
}

func sent(effects []Effect) []*message.Message {
	var out []*message.Message
	for _, e := range effects {
		if s, ok := e.(Send); ok {
			out = append(out, s.Msg)
		}
	}
	return out
}

func delivered(effects []Effect, admin bool) []*message.Message {
	var out []*message.Message
	for _, e := range effects {
		if d, ok := e.(Deliver); ok && d.Admin == admin {
			out = append(out, d.Msg)
		}
	}
	return out
}

func find[T Effect](effects []Effect) (T, bool) {
	for _, e := range effects {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func field(t *testing.T, m *message.Message, tag int) string {
	t.Helper()
	if v, ok := m.Header.Get(tag); ok {
		return v
	}
	if v, ok := m.Body.Get(tag); ok {
		return v
	}
	t.Fatalf("tag %d missing from %s", tag, m)
	return ""
}

func seqs(t *testing.T, msgs []*message.Message) []int {
	t.Helper()
	out := make([]int, len(msgs))
	for i, m := range msgs {
		seq, err := m.SeqNum()
		if err != nil {
			t.Fatalf("SeqNum() error = %v", err)
		}
		out[i] = seq
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// logon brings an initiator to Active with the peer's Logon at seq 1.
func logon(t *testing.T, m *Machine) {
	t.Helper()
	m.Step(Connected{})
	m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "30")})
	if m.Phase() != PhaseActive {
		t.Fatalf("Phase() = %v, want active", m.Phase())
	}
}

func TestInitiatorLogon(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)

	effects := m.Step(Connected{})
	if _, ok := effects[0].(Persist); !ok {
		t.Errorf("first effect = %T, want Persist", effects[0])
	}
	out := sent(effects)
	if len(out) != 1 || out[0].MsgType() != "A" {
		t.Fatalf("sent = %v, want one Logon", out)
	}
	for tag, want := range map[int]string{8: "FIX.4.4", 49: "BUY", 56: "SELL", 34: "1", 98: "0", 108: "30"} {
		if got := field(t, out[0], tag); got != want {
			t.Errorf("Logon tag %d = %q, want %q", tag, got, want)
		}
	}
	if st, ok := find[StartTimer](effects); !ok || st.Timer != TimerLogon {
		t.Errorf("StartTimer = %+v, want logon timer", st)
	}
	if m.Phase() != PhaseLogonInProgress {
		t.Errorf("Phase() = %v, want logon_in_progress", m.Phase())
	}

	effects = m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "30")})
	if m.Phase() != PhaseActive {
		t.Fatalf("Phase() = %v, want active", m.Phase())
	}
	if _, ok := find[LoggedOn](effects); !ok {
		t.Error("LoggedOn not emitted")
	}
	if ct, ok := find[CancelTimer](effects); !ok || ct.Timer != TimerLogon {
		t.Errorf("CancelTimer = %+v, want logon timer", ct)
	}
	if len(sent(effects)) != 0 {
		t.Errorf("initiator answered Logon with %v", sent(effects))
	}
	if m.NextInbound() != 2 || m.NextOutbound() != 2 {
		t.Errorf("next in/out = %d/%d, want 2/2", m.NextInbound(), m.NextOutbound())
	}
}

func TestAcceptorLogon(t *testing.T) {
	m, _ := newMachine(t, types.RoleAcceptor)

	if out := sent(m.Step(Connected{})); len(out) != 0 {
		t.Fatalf("acceptor sent %v on connect", out)
	}
	effects := m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "10")})
	out := sent(effects)
	if len(out) != 1 || out[0].MsgType() != "A" {
		t.Fatalf("sent = %v, want Logon reply", out)
	}
	if got := field(t, out[0], 108); got != "10" {
		t.Errorf("reply HeartBtInt = %q, want 10", got)
	}
	if m.HeartbeatInterval() != 10*time.Second {
		t.Errorf("HeartbeatInterval() = %v, want 10s", m.HeartbeatInterval())
	}
	if m.Phase() != PhaseActive {
		t.Errorf("Phase() = %v, want active", m.Phase())
	}
}

func TestAcceptorLogon_ResetSeqNumFlag(t *testing.T) {
	m, _ := newMachine(t, types.RoleAcceptor)
	m.Restore(Snapshot{NextOutbound: 10, NextInbound: 20})
	m.Step(Connected{})

	effects := m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "30", "141", "Y")})
	if _, ok := find[ResetFAST](effects); !ok {
		t.Error("ResetFAST not emitted")
	}
	out := sent(effects)
	if len(out) != 1 {
		t.Fatalf("sent = %v, want Logon reply", out)
	}
	if got := field(t, out[0], 34); got != "1" {
		t.Errorf("reply MsgSeqNum = %q, want 1", got)
	}
	if got := field(t, out[0], 141); got != "Y" {
		t.Errorf("reply ResetSeqNumFlag = %q, want Y", got)
	}
	if m.NextInbound() != 2 || m.NextOutbound() != 2 {
		t.Errorf("next in/out = %d/%d, want 2/2", m.NextInbound(), m.NextOutbound())
	}
}

func TestInitiatorLogon_ResetOnLogon(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator, func(c *Config) { c.ResetOnLogon = true })
	m.Restore(Snapshot{NextOutbound: 7, NextInbound: 9})

	out := sent(m.Step(Connected{}))
	if got := field(t, out[0], 34); got != "1" {
		t.Errorf("Logon MsgSeqNum = %q, want 1", got)
	}
	if got := field(t, out[0], 141); got != "Y" {
		t.Errorf("Logon ResetSeqNumFlag = %q, want Y", got)
	}
	m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "30", "141", "Y")})
	if m.NextInbound() != 2 {
		t.Errorf("NextInbound() = %d, want 2", m.NextInbound())
	}
}

func TestResetOnLogon_RenumbersQueuedMessages(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator, func(c *Config) { c.ResetOnLogon = true })
	m.Restore(Snapshot{NextOutbound: 7, NextInbound: 9})
	m.Step(Submit{Msg: order("queued-1")})
	m.Step(Submit{Msg: order("queued-2")})

	out := sent(m.Step(Connected{}))
	if len(out) != 1 || out[0].MsgType() != "A" || field(t, out[0], 34) != "1" {
		t.Fatalf("sent = %v, want Logon seq 1", out)
	}
	if out := sent(m.Step(Submit{Msg: order("queued-3")})); len(out) != 0 {
		t.Fatalf("sent %v before logon completed", out)
	}

	out = sent(m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "30", "141", "Y")}))
	if got := seqs(t, out); !equalInts(got, []int{2, 3, 4}) {
		t.Fatalf("sent seqs = %v, want [2 3 4]", got)
	}
	for i, want := range []string{"queued-1", "queued-2", "queued-3"} {
		if out[i].MsgType() != "D" || field(t, out[i], 11) != want {
			t.Errorf("sent[%d] = %s, want order %s", i, out[i], want)
		}
		if out[i].Header.Has(43) {
			t.Errorf("sent[%d] carries PossDupFlag", i)
		}
	}
	if m.NextOutbound() != 5 {
		t.Errorf("NextOutbound() = %d, want 5", m.NextOutbound())
	}

	out = sent(m.Step(Received{Msg: peer("2", 2, "7", "1", "16", "0")}))
	if len(out) != 4 || out[0].MsgType() != "4" || field(t, out[0], 36) != "2" {
		t.Fatalf("resend = %v, want gap fill 1 -> 2 then three orders", out)
	}
	if got := seqs(t, out[1:]); !equalInts(got, []int{2, 3, 4}) {
		t.Errorf("resent seqs = %v, want [2 3 4]", got)
	}
}

func TestLogon_Failures(t *testing.T) {
	tests := []struct {
		name string
		role types.Role
		opt  func(*Config)
		snap Snapshot
		msg  *message.Message
		want error
	}{
		{
			name: "first message is not a logon",
			role: types.RoleAcceptor,
			msg:  peer("0", 1),
			want: ErrLogonExpected,
		},
		{
			name: "authentication fails",
			role: types.RoleAcceptor,
			opt: func(c *Config) {
				c.Authenticate = func(*message.Message) error { return errors.New("bad password") }
			},
			msg:  peer("A", 1, "98", "0", "108", "30"),
			want: ErrAuthentication,
		},
		{
			name: "logon answered with logout",
			role: types.RoleInitiator,
			msg:  peer("5", 1, "58", "unknown session"),
			want: ErrLogonRejected,
		},
		{
			name: "sequence number too low",
			role: types.RoleInitiator,
			snap: Snapshot{NextOutbound: 1, NextInbound: 5},
			msg:  peer("A", 3, "98", "0", "108", "30"),
			want: ErrSequenceTooLow,
		},
		{
			name: "comp id mismatch",
			role: types.RoleAcceptor,
			msg: func() *message.Message {
				m := peer("A", 1, "98", "0", "108", "30")
				m.Header.Set(49, "OTHER")
				return m
			}(),
			want: ErrIdentityMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []func(*Config){}
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			m, _ := newMachine(t, tt.role, opts...)
			if tt.snap.NextInbound != 0 {
				m.Restore(tt.snap)
			}
			m.Step(Connected{})

			effects := m.Step(Received{Msg: tt.msg})
			d, ok := find[Disconnect](effects)
			if !ok {
				t.Fatalf("no Disconnect in %v", effects)
			}
			if !errors.Is(d.Err, tt.want) {
				t.Errorf("Disconnect.Err = %v, want %v", d.Err, tt.want)
			}
			if _, ok := find[LoggedOn](effects); ok {
				t.Error("LoggedOn emitted for a failed logon")
			}
			if m.Phase() != PhaseDisconnected {
				t.Errorf("Phase() = %v, want disconnected", m.Phase())
			}
		})
	}
}

func TestLogon_Timeout(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	m.Step(Connected{})

	effects := m.Step(TimerFired{Timer: TimerLogon})
	if d, ok := find[Disconnect](effects); !ok || !errors.Is(d.Err, ErrLogonTimeout) {
		t.Errorf("Disconnect = %+v, want ErrLogonTimeout", d)
	}
}

func TestLogon_HigherSequenceRequestsResend(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	m.Step(Connected{})

	effects := m.Step(Received{Msg: peer("A", 4, "98", "0", "108", "30")})
	out := sent(effects)
	if len(out) != 1 || out[0].MsgType() != "2" {
		t.Fatalf("sent = %v, want ResendRequest", out)
	}
	if b, e := field(t, out[0], 7), field(t, out[0], 16); b != "1" || e != "3" {
		t.Errorf("ResendRequest range = [%s, %s], want [1, 3]", b, e)
	}
	if m.Phase() != PhaseResendInProgress {
		t.Errorf("Phase() = %v, want resend_in_progress", m.Phase())
	}

	m.Step(Received{Msg: possDup(peer("4", 1, "123", "Y", "36", "4"))})
	if m.NextInbound() != 5 {
		t.Errorf("NextInbound() = %d, want 5 after gap fill covers the logon", m.NextInbound())
	}
	if m.Phase() != PhaseActive {
		t.Errorf("Phase() = %v, want active", m.Phase())
	}
}

func TestGapRecovery(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)
	m.Step(Received{Msg: peer("8", 2)})

	effects := m.Step(Received{Msg: peer("8", 5)})
	if got := delivered(effects, false); len(got) != 0 {
		t.Fatalf("delivered %v ahead of the gap", got)
	}
	out := sent(effects)
	if len(out) != 1 || out[0].MsgType() != "2" {
		t.Fatalf("sent = %v, want ResendRequest", out)
	}
	if b, e := field(t, out[0], 7), field(t, out[0], 16); b != "3" || e != "4" {
		t.Errorf("ResendRequest range = [%s, %s], want [3, 4]", b, e)
	}
	if m.Phase() != PhaseResendInProgress || m.Buffered() != 1 {
		t.Fatalf("Phase() = %v Buffered() = %d, want resend_in_progress with one buffered", m.Phase(), m.Buffered())
	}

	var replayed []*message.Message
	replayed = append(replayed, delivered(m.Step(Received{Msg: possDup(peer("8", 3))}), false)...)
	if m.Phase() != PhaseResendInProgress {
		t.Errorf("Phase() = %v after partial fill, want resend_in_progress", m.Phase())
	}
	replayed = append(replayed, delivered(m.Step(Received{Msg: possDup(peer("8", 4))}), false)...)

	if got := seqs(t, replayed); !equalInts(got, []int{3, 4, 5}) {
		t.Errorf("delivered seqs = %v, want [3 4 5]", got)
	}
	if m.Phase() != PhaseActive {
		t.Errorf("Phase() = %v, want active", m.Phase())
	}
	if m.NextInbound() != 6 {
		t.Errorf("NextInbound() = %d, want 6", m.NextInbound())
	}
	if _, _, ok := m.ResendRange(); ok {
		t.Error("resend range still outstanding")
	}
}

func TestGapRecovery_GapFill(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)

	m.Step(Received{Msg: peer("8", 6)})
	effects := m.Step(Received{Msg: possDup(peer("4", 2, "123", "Y", "36", "5"))})
	if m.NextInbound() != 5 {
		t.Fatalf("NextInbound() = %d, want 5", m.NextInbound())
	}
	if len(delivered(effects, false)) != 0 {
		t.Errorf("delivered before the gap closed")
	}

	effects = m.Step(Received{Msg: possDup(peer("8", 5))})
	if got := seqs(t, delivered(effects, false)); !equalInts(got, []int{5, 6}) {
		t.Errorf("delivered seqs = %v, want [5 6]", got)
	}
	if m.Phase() != PhaseActive {
		t.Errorf("Phase() = %v, want active", m.Phase())
	}
}

func TestGapRecovery_SecondGapRequestsAgain(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)

	m.Step(Received{Msg: peer("8", 4)})
	m.Step(Received{Msg: peer("8", 8)})
	m.Step(Received{Msg: possDup(peer("8", 2))})

	effects := m.Step(Received{Msg: possDup(peer("8", 3))})
	if got := seqs(t, delivered(effects, false)); !equalInts(got, []int{3, 4}) {
		t.Errorf("delivered seqs = %v, want [3 4]", got)
	}
	out := sent(effects)
	if len(out) != 1 || out[0].MsgType() != "2" {
		t.Fatalf("sent = %v, want a second ResendRequest", out)
	}
	if b, e := field(t, out[0], 7), field(t, out[0], 16); b != "5" || e != "7" {
		t.Errorf("ResendRequest range = [%s, %s], want [5, 7]", b, e)
	}
	if m.Phase() != PhaseResendInProgress {
		t.Errorf("Phase() = %v, want resend_in_progress", m.Phase())
	}
}

func TestSequenceReset_ResetMode(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)

	m.Step(Received{Msg: peer("4", 99, "36", "10")})
	if m.NextInbound() != 10 {
		t.Errorf("NextInbound() = %d, want 10", m.NextInbound())
	}

	effects := m.Step(Received{Msg: peer("4", 10, "36", "3")})
	out := sent(effects)
	if len(out) != 1 || out[0].MsgType() != "3" {
		t.Fatalf("sent = %v, want Reject for a backwards reset", out)
	}
	if got := field(t, out[0], 373); got != strconv.Itoa(tagvalue.RejectValueIncorrect) {
		t.Errorf("SessionRejectReason = %q, want 5", got)
	}
	if m.NextInbound() != 10 {
		t.Errorf("NextInbound() = %d, want 10", m.NextInbound())
	}
}

func TestSequenceTooLow(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)
	m.Step(Received{Msg: peer("8", 2)})
	m.Step(Received{Msg: peer("8", 3)})

	if effects := m.Step(Received{Msg: possDup(peer("8", 2))}); len(effects) != 0 {
		t.Errorf("PossDup duplicate produced %v, want nothing", effects)
	}
	if m.Phase() != PhaseActive {
		t.Fatalf("Phase() = %v, want active", m.Phase())
	}

	effects := m.Step(Received{Msg: peer("8", 2)})
	out := sent(effects)
	if len(out) != 1 || out[0].MsgType() != "5" {
		t.Fatalf("sent = %v, want Logout", out)
	}
	if got := field(t, out[0], 58); got != "MsgSeqNum too low, expecting 4 but received 2" {
		t.Errorf("Logout text = %q", got)
	}
	d, ok := find[Disconnect](effects)
	var pe *ProtocolError
	if !ok || !errors.As(d.Err, &pe) || pe.Expected != 4 || pe.Received != 2 {
		t.Errorf("Disconnect = %+v, want ProtocolError expected 4 received 2", d)
	}
	if _, ok := find[LoggedOut](effects); !ok {
		t.Error("LoggedOut not emitted")
	}
}

func TestOutboundStamping(t *testing.T) {
	m, clock := newMachine(t, types.RoleInitiator)
	logon(t, m)

	clock.advance(time.Second)
	effects := m.Step(Submit{Msg: order("o-1")})
	if _, ok := effects[0].(Persist); !ok {
		t.Errorf("first effect = %T, want Persist", effects[0])
	}
	out := sent(effects)
	if len(out) != 1 {
		t.Fatalf("sent = %v, want the order", out)
	}
	for tag, want := range map[int]string{8: "FIX.4.4", 49: "BUY", 56: "SELL", 34: "2", 52: "20240102-10:11:13.000"} {
		if got := field(t, out[0], tag); got != want {
			t.Errorf("tag %d = %q, want %q", tag, got, want)
		}
	}
}

func TestSubmitWhileDisconnected(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)

	if out := sent(m.Step(Submit{Msg: order("early")})); len(out) != 0 {
		t.Fatalf("sent %v while disconnected", out)
	}
	if m.NextOutbound() != 2 {
		t.Fatalf("NextOutbound() = %d, want 2", m.NextOutbound())
	}

	out := sent(m.Step(Connected{}))
	if got := field(t, out[0], 34); got != "2" {
		t.Errorf("Logon MsgSeqNum = %q, want 2", got)
	}
	m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "30")})

	out = sent(m.Step(Received{Msg: peer("2", 2, "7", "1", "16", "0")}))
	if len(out) != 2 {
		t.Fatalf("resent %d messages, want 2", len(out))
	}
	if out[0].MsgType() != "D" || field(t, out[0], 34) != "1" || field(t, out[0], 43) != "Y" {
		t.Errorf("first resend = %s, want order seq 1 with PossDupFlag", out[0])
	}
	if out[1].MsgType() != "4" || field(t, out[1], 34) != "2" || field(t, out[1], 36) != "3" {
		t.Errorf("second resend = %s, want gap fill 2 -> 3", out[1])
	}
}

func TestResendRequestServicing(t *testing.T) {
	m, clock := newMachine(t, types.RoleInitiator)
	logon(t, m)

	m.Step(Submit{Msg: order("o-2")})
	clock.advance(30 * time.Second)
	m.Step(TimerFired{Timer: TimerHeartbeat})
	m.Step(Submit{Msg: order("o-4")})
	if m.NextOutbound() != 5 {
		t.Fatalf("NextOutbound() = %d, want 5", m.NextOutbound())
	}

	clock.advance(time.Second)
	out := sent(m.Step(Received{Msg: peer("2", 2, "7", "1", "16", "0")}))
	want := []struct {
		msgType string
		seq     string
		newSeq  string
	}{
		{"4", "1", "2"},
		{"D", "2", ""},
		{"4", "3", "4"},
		{"D", "4", ""},
	}
	if len(out) != len(want) {
		t.Fatalf("resent %d messages, want %d: %v", len(out), len(want), out)
	}
	for i, w := range want {
		got := out[i]
		if got.MsgType() != w.msgType || field(t, got, 34) != w.seq {
			t.Errorf("resend %d = %s, want %s seq %s", i, got, w.msgType, w.seq)
		}
		if field(t, got, 43) != "Y" {
			t.Errorf("resend %d lacks PossDupFlag", i)
		}
		if w.newSeq != "" && field(t, got, 36) != w.newSeq {
			t.Errorf("gap fill %d NewSeqNo = %s, want %s", i, field(t, got, 36), w.newSeq)
		}
	}
	if got := field(t, out[1], 122); got != "20240102-10:11:12.000" {
		t.Errorf("OrigSendingTime = %q, want original SendingTime", got)
	}
	if m.NextOutbound() != 5 {
		t.Errorf("NextOutbound() = %d after resend, want 5", m.NextOutbound())
	}
}

func TestResendRequest_EvictedFromJournal(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator, func(c *Config) { c.MaxJournal = 2 })
	logon(t, m)
	for i := 0; i < 4; i++ {
		m.Step(Submit{Msg: order("o-" + strconv.Itoa(i))})
	}

	out := sent(m.Step(Received{Msg: peer("2", 2, "7", "2", "16", "5")}))
	if len(out) != 3 {
		t.Fatalf("resent %d messages, want 3: %v", len(out), out)
	}
	if out[0].MsgType() != "4" || field(t, out[0], 34) != "2" || field(t, out[0], 36) != "4" {
		t.Errorf("first resend = %s, want gap fill 2 -> 4", out[0])
	}
	if got := seqs(t, out[1:]); !equalInts(got, []int{4, 5}) {
		t.Errorf("retransmitted seqs = %v, want [4 5]", got)
	}
}

func TestHeartbeats(t *testing.T) {
	m, clock := newMachine(t, types.RoleInitiator)
	logon(t, m)

	clock.advance(10 * time.Second)
	effects := m.Step(TimerFired{Timer: TimerHeartbeat})
	if len(sent(effects)) != 0 {
		t.Errorf("heartbeat sent before the interval elapsed")
	}
	if st, ok := find[StartTimer](effects); !ok || st.After != 20*time.Second {
		t.Errorf("StartTimer = %+v, want re-arm for the remaining 20s", st)
	}

	clock.advance(20 * time.Second)
	out := sent(m.Step(TimerFired{Timer: TimerHeartbeat}))
	if len(out) != 1 || out[0].MsgType() != "0" {
		t.Errorf("sent = %v, want Heartbeat", out)
	}

	out = sent(m.Step(Received{Msg: peer("1", 2, "112", "ping")}))
	if len(out) != 1 || out[0].MsgType() != "0" || field(t, out[0], 112) != "ping" {
		t.Errorf("TestRequest answered with %v, want Heartbeat 112=ping", out)
	}
}

func TestTestRequestThenDisconnect(t *testing.T) {
	m, clock := newMachine(t, types.RoleInitiator)
	logon(t, m)

	clock.advance(30 * time.Second)
	out := sent(m.Step(TimerFired{Timer: TimerInbound}))
	if len(out) != 1 || out[0].MsgType() != "1" {
		t.Fatalf("sent = %v, want TestRequest", out)
	}
	id := field(t, out[0], 112)

	clock.advance(30 * time.Second)
	effects := m.Step(TimerFired{Timer: TimerInbound})
	if d, ok := find[Disconnect](effects); !ok || !errors.Is(d.Err, ErrHeartbeatTimeout) {
		t.Errorf("Disconnect = %+v, want ErrHeartbeatTimeout", d)
	}

	m2, clock2 := newMachine(t, types.RoleInitiator)
	logon(t, m2)
	clock2.advance(30 * time.Second)
	m2.Step(TimerFired{Timer: TimerInbound})
	m2.Step(Received{Msg: peer("0", 2, "112", id)})
	clock2.advance(30 * time.Second)
	if _, ok := find[Disconnect](m2.Step(TimerFired{Timer: TimerInbound})); ok {
		t.Error("disconnected although the peer answered the TestRequest")
	}
}

func TestLogout(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)

	effects := m.Step(LogoutRequested{Text: "done"})
	out := sent(effects)
	if len(out) != 1 || out[0].MsgType() != "5" || field(t, out[0], 58) != "done" {
		t.Fatalf("sent = %v, want Logout", out)
	}
	if m.Phase() != PhaseLogoutInProgress {
		t.Errorf("Phase() = %v, want logout_in_progress", m.Phase())
	}
	if st, ok := find[StartTimer](effects); !ok || st.Timer != TimerLogout {
		t.Errorf("StartTimer = %+v, want logout timer", st)
	}

	effects = m.Step(Received{Msg: peer("5", 2)})
	if len(sent(effects)) != 0 {
		t.Errorf("answered the peer's confirmation with %v", sent(effects))
	}
	d, ok := find[Disconnect](effects)
	if !ok || d.Err != nil {
		t.Errorf("Disconnect = %+v, want clean disconnect", d)
	}
	if lo, ok := find[LoggedOut](effects); !ok || lo.Err != nil {
		t.Errorf("LoggedOut = %+v, want clean logout", lo)
	}
}

func TestLogout_PeerInitiated(t *testing.T) {
	m, _ := newMachine(t, types.RoleAcceptor)
	m.Step(Connected{})
	m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "30")})

	effects := m.Step(Received{Msg: peer("5", 2)})
	out := sent(effects)
	if len(out) != 1 || out[0].MsgType() != "5" {
		t.Fatalf("sent = %v, want Logout reply", out)
	}
	if d, ok := find[Disconnect](effects); !ok || d.Err != nil {
		t.Errorf("Disconnect = %+v, want clean disconnect", d)
	}
	if m.NextInbound() != 3 {
		t.Errorf("NextInbound() = %d, want 3", m.NextInbound())
	}
}

func TestLogout_Timeout(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)
	m.Step(LogoutRequested{})

	effects := m.Step(TimerFired{Timer: TimerLogout})
	if d, ok := find[Disconnect](effects); !ok || !errors.Is(d.Err, ErrLogoutTimeout) {
		t.Errorf("Disconnect = %+v, want ErrLogoutTimeout", d)
	}
}

func TestReceiveFailed(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)

	bad := &tagvalue.DecodeError{Err: tagvalue.ErrMissingRequiredField, MsgType: "D", MsgSeqNum: 2, RefTag: 11}
	out := sent(m.Step(ReceiveFailed{Err: bad}))
	if len(out) != 1 || out[0].MsgType() != "3" {
		t.Fatalf("sent = %v, want Reject", out)
	}
	for tag, want := range map[int]string{45: "2", 371: "11", 372: "D", 373: "1"} {
		if got := field(t, out[0], tag); got != want {
			t.Errorf("Reject tag %d = %q, want %q", tag, got, want)
		}
	}
	if m.NextInbound() != 3 {
		t.Errorf("NextInbound() = %d, want 3", m.NextInbound())
	}
	if m.Phase() != PhaseActive {
		t.Errorf("Phase() = %v, want active", m.Phase())
	}
}

func TestReceiveFailed_Fatal(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)

	// A framing failure surfaces as a non-decode error from the scanner.
	err := errors.New("connection reset")
	effects := m.Step(ReceiveFailed{Err: err})
	if d, ok := find[Disconnect](effects); !ok || !errors.Is(d.Err, err) {
		t.Errorf("Disconnect = %+v, want %v", d, err)
	}
}

func TestDisconnected_DiscardsBufferedState(t *testing.T) {
	m, _ := newMachine(t, types.RoleInitiator)
	logon(t, m)
	m.Step(Received{Msg: peer("8", 5)})

	effects := m.Step(Disconnected{Err: errors.New("eof")})
	if _, ok := find[Disconnect](effects); ok {
		t.Error("Disconnect emitted for a transport that is already gone")
	}
	if _, ok := find[LoggedOut](effects); !ok {
		t.Error("LoggedOut not emitted")
	}
	if m.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", m.Buffered())
	}
	if _, _, ok := m.ResendRange(); ok {
		t.Error("resend range survived the disconnect")
	}
	if m.NextInbound() != 2 {
		t.Errorf("NextInbound() = %d, want 2", m.NextInbound())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"blank sender", func(c *Config) { c.Identity.SenderCompID = "" }},
		{"fractional heartbeat", func(c *Config) { c.HeartbeatInterval = 1500 * time.Millisecond }},
		{"negative timeout", func(c *Config) { c.LogonTimeout = -time.Second }},
		{"unknown role", func(c *Config) { c.Role = types.Role(7) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(identity, types.RoleInitiator)
			tt.mutate(&cfg)
			if _, err := NewMachine(cfg, InitialSnapshot()); err == nil {
				t.Error("NewMachine() error = nil, want error")
			}
		})
	}
}
