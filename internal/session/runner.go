package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/solatis/fixengine/internal/dictionary"
	"github.com/solatis/fixengine/internal/fast"
	"github.com/solatis/fixengine/internal/message"
	"github.com/solatis/fixengine/internal/tagvalue"
	"github.com/solatis/fixengine/internal/types"
)

// ErrAlreadyRunning indicates a second concurrent Run on one Runner.
var ErrAlreadyRunning = errors.New("session: runner already running")

// inboxSize bounds Send and Logout calls queued ahead of the session loop.
const inboxSize = 256

// Runner drives a Machine over a byte stream. One Runner serves one
// session across any number of sequential connections.
type Runner struct {
	machine *Machine
	enc     *tagvalue.Encoder
	dec     *tagvalue.Decoder
	codec   tagvalue.Config
	store   Store

	app       Application
	timers    TimerSource
	metrics   *Metrics
	logger    *slog.Logger
	contexts  []*fast.Context
	observers []func(types.SessionIdentity, Phase)

	inbox    chan Event
	restored bool
	running  atomic.Bool
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithApplication sets the application callbacks.
func WithApplication(app Application) RunnerOption {
	return func(r *Runner) { r.app = app }
}

// WithTimers replaces the system timer source.
func WithTimers(ts TimerSource) RunnerOption {
	return func(r *Runner) { r.timers = ts }
}

// WithMetrics records session metrics.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithFASTContexts binds FAST contexts that must be cleared whenever the
// session resets its sequence numbers.
func WithFASTContexts(ctxs ...*fast.Context) RunnerOption {
	return func(r *Runner) { r.contexts = append(r.contexts, ctxs...) }
}

// WithPhaseObserver registers fn to be called on every phase change.
func WithPhaseObserver(fn func(types.SessionIdentity, Phase)) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, fn) }
}

// NewRunner binds machine to the tag-value codec for dict and to store.
func NewRunner(machine *Machine, dict *dictionary.Dictionary, codec tagvalue.Config, store Store, opts ...RunnerOption) (*Runner, error) {
	if machine == nil {
		return nil, fmt.Errorf("machine cannot be nil")
	}
	if dict == nil {
		return nil, fmt.Errorf("dictionary cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	r := &Runner{
		machine: machine,
		enc:     tagvalue.NewEncoder(dict, codec),
		dec:     tagvalue.NewDecoder(dict, codec),
		codec:   codec,
		store:   store,
		app:     NopApplication{},
		timers:  SystemTimers{},
		logger:  slog.Default(),
		inbox:   make(chan Event, inboxSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.app == nil {
		r.app = NopApplication{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Identity returns the session identity.
func (r *Runner) Identity() types.SessionIdentity {
	return r.machine.Identity()
}

// Send queues an application message. The session stamps the header and
// assigns the sequence number; messages queued while not logged on are
// journaled and reach the peer through resend, or are renumbered when the
// logon resets sequence numbers. A message the encoder
// would refuse is returned as a *tagvalue.EncodeError and never numbered.
func (r *Runner) Send(ctx context.Context, msg *message.Message) error {
	msgType := msg.MsgType()
	if message.IsAdminType(msgType) {
		return ErrAdminMessage
	}
	if _, ok := r.dec.Dictionary().MessageByType(msgType); !ok {
		return fmt.Errorf("%w: %q", tagvalue.ErrUnknownMessageType, msgType)
	}
	msg = msg.Clone()
	trial := msg.Clone()
	r.machine.stamp(trial, 1)
	if _, err := r.enc.Encode(trial); err != nil {
		return err
	}
	return r.enqueue(ctx, Submit{Msg: msg})
}

// Logout starts an orderly logout.
func (r *Runner) Logout(ctx context.Context, text string) error {
	return r.enqueue(ctx, LogoutRequested{Text: text})
}

func (r *Runner) enqueue(ctx context.Context, ev Event) error {
	select {
	case r.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves one connection until it ends. It returns nil after an
// orderly logout and the cause otherwise. conn is closed on return.
func (r *Runner) Run(ctx context.Context, conn io.ReadWriteCloser) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)
	defer conn.Close()

	id := r.machine.Identity()
	if !r.restored {
		snap, ok, err := r.store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("load session state: %w", err)
		}
		if ok {
			r.machine.Restore(snap)
		}
		r.restored = true
	}

	c := &connection{
		r:      r,
		conn:   conn,
		name:   id.String(),
		log:    r.logger.With("session", id.String(), "conn_id", string(types.NewConnectionID())),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		timers: make(map[Timer]func() bool),
	}
	defer close(c.done)
	defer c.stopTimers()

	c.log.Info("connection established", "role", r.machine.cfg.Role.String(),
		"next_outbound", r.machine.NextOutbound(), "next_inbound", r.machine.NextInbound())
	go c.read()

	if c.step(ctx, Connected{}) {
		return c.err
	}
	for {
		var ev Event
		select {
		case <-ctx.Done():
			c.step(context.WithoutCancel(ctx), Disconnected{Err: ctx.Err()})
			return ctx.Err()
		case ev = <-c.events:
		case ev = <-r.inbox:
		}
		if c.step(ctx, ev) {
			return c.err
		}
	}
}

// connection is the per-connection state of Run.
type connection struct {
	r      *Runner
	conn   io.ReadWriteCloser
	name   string
	log    *slog.Logger
	events chan Event
	done   chan struct{}
	timers map[Timer]func() bool

	failed bool
	err    error
}

func (c *connection) read() {
	limit := c.r.codec.MaxMessageSize
	if limit <= 0 {
		limit = types.DefaultMaxMessageSize
	}
	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 0, 4096), limit+64)
	sc.Split(tagvalue.SplitFunc(c.r.codec))

	for sc.Scan() {
		var ev Event
		msg, _, err := c.r.dec.Decode(sc.Bytes())
		if err != nil {
			ev = ReceiveFailed{Err: err}
		} else {
			ev = Received{Msg: msg}
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case c.events <- Disconnected{Err: err}:
	case <-c.done:
	}
}

// step feeds ev to the machine and executes the effects. It reports whether
// the connection is finished.
func (c *connection) step(ctx context.Context, ev Event) bool {
	switch e := ev.(type) {
	case Received:
		c.r.metrics.message(c.name, "in", e.Msg.MsgType())
		c.log.Debug("message received", "msg_type", e.Msg.MsgType(), "seq", seqOf(e.Msg))
	case ReceiveFailed:
		c.r.metrics.decodeError(c.name, tagvalue.IsFatal(e.Err))
		c.log.Warn("inbound message rejected", "error", e.Err)
	case Disconnected:
		if c.err == nil {
			c.err = e.Err
		}
	}

	before := c.r.machine.Phase()
	c.execute(ctx, c.r.machine.Step(ev))
	after := c.r.machine.Phase()
	if after != before {
		c.log.Info("session phase changed", "from", before.String(), "phase", after.String())
		for _, fn := range c.r.observers {
			fn(c.r.machine.Identity(), after)
		}
	}
	return after == PhaseDisconnected
}

func (c *connection) execute(ctx context.Context, effects []Effect) {
	id := c.r.machine.Identity()
	for _, eff := range effects {
		switch e := eff.(type) {
		case Persist:
			if err := c.r.store.Save(ctx, id, e.Snapshot); err != nil {
				c.log.Error("failed to persist session state", "error", err)
				if !c.failed {
					c.fail(ctx, fmt.Errorf("persist session state: %w", err))
					return
				}
				continue
			}
			c.r.metrics.snapshot(c.name, e.Snapshot)

		case Send:
			if c.failed {
				continue
			}
			msg := e.Msg
			b, err := c.r.enc.Encode(msg)
			if err != nil && !msg.IsAdmin() {
				c.log.Error("outbound message cannot be encoded, sending gap fill", "msg_type", msg.MsgType(), "seq", seqOf(msg), "error", err)
				msg = gapFillFor(msg)
				b, err = c.r.enc.Encode(msg)
			}
			if err != nil {
				c.log.Error("failed to encode outbound message", "msg_type", msg.MsgType(), "seq", seqOf(msg), "error", err)
				continue
			}
			if _, err := c.conn.Write(b); err != nil {
				c.fail(ctx, fmt.Errorf("write: %w", err))
				return
			}
			c.r.metrics.message(c.name, "out", msg.MsgType())
			c.log.Debug("message sent", "msg_type", msg.MsgType(), "seq", seqOf(msg))

		case Deliver:
			if e.Admin {
				c.r.app.FromAdmin(id, e.Msg)
			} else {
				c.r.app.FromApp(id, e.Msg)
			}

		case StartTimer:
			c.startTimer(e.Timer, e.After)

		case CancelTimer:
			c.cancelTimer(e.Timer)

		case Disconnect:
			if c.err == nil {
				c.err = e.Err
			}
			c.r.metrics.disconnect(c.name, e.Err)
			if e.Err != nil {
				c.log.Warn("disconnecting", "error", e.Err)
			}
			c.conn.Close()

		case ResetFAST:
			for _, fc := range c.r.contexts {
				fc.Reset()
			}

		case LoggedOn:
			c.log.Info("logged on", "heartbeat_interval", c.r.machine.HeartbeatInterval().String())
			c.r.app.OnLogon(id)

		case LoggedOut:
			c.log.Info("logged out", "error", e.Err)
			c.r.app.OnLogout(id, e.Err)
		}
	}
}

// fail tears the connection down after an I/O or persistence failure.
func (c *connection) fail(ctx context.Context, err error) {
	c.failed = true
	if c.err == nil {
		c.err = err
	}
	c.conn.Close()
	c.r.metrics.disconnect(c.name, err)
	c.execute(ctx, c.r.machine.Step(Disconnected{Err: err}))
}

func (c *connection) startTimer(t Timer, d time.Duration) {
	c.cancelTimer(t)
	c.timers[t] = c.r.timers.AfterFunc(d, func() {
		select {
		case c.events <- TimerFired{Timer: t}:
		case <-c.done:
		}
	})
}

func (c *connection) cancelTimer(t Timer) {
	if stop, ok := c.timers[t]; ok {
		stop()
		delete(c.timers, t)
	}
}

func (c *connection) stopTimers() {
	for t := range c.timers {
		c.cancelTimer(t)
	}
}

func seqOf(m *message.Message) int {
	seq, _ := m.SeqNum()
	return seq
}
