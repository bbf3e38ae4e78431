package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/solatis/fixengine/internal/core/auth"
	"github.com/solatis/fixengine/internal/core/config"
	"github.com/solatis/fixengine/internal/core/server"
	"github.com/solatis/fixengine/internal/dictionary"
	"github.com/solatis/fixengine/internal/fast"
	"github.com/solatis/fixengine/internal/message"
	"github.com/solatis/fixengine/internal/session"
	"github.com/solatis/fixengine/internal/store"
	"github.com/solatis/fixengine/internal/tagvalue"
	"github.com/solatis/fixengine/internal/types"
)

const reconnectDelay = 5 * time.Second

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run the configured FIX session over TCP",
	Long: `Runs one FIX session. An initiator dials session.addr and reconnects after
each disconnect; an acceptor listens on session.addr and serves one
counterparty connection at a time. SIGINT or SIGTERM logs out and exits.`,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.Flags().Bool("once", false, "exit after the first connection ends")
	sessionCmd.Flags().String("fast-capture", "", "append inbound application messages FAST-encoded to this file; the stream restarts with each sequence reset")
}

// logApplication logs inbound application messages and optionally
// captures them as a FAST stream.
type logApplication struct {
	session.NopApplication
	logger  *slog.Logger
	capture *fastCapture
}

func (a logApplication) FromApp(id types.SessionIdentity, msg *message.Message) {
	seq, _ := msg.SeqNum()
	a.logger.Info("application message", "session", id.String(), "msg_type", msg.MsgType(), "seq", seq, "fields", msg.String())
	if a.capture != nil {
		if err := a.capture.write(msg); err != nil {
			a.logger.Warn("failed to capture message", "msg_type", msg.MsgType(), "seq", seq, "error", err)
		}
	}
}

// fastCapture writes messages to a file with one FAST context. The runner
// calls it from its session loop, which is also where the context is reset.
type fastCapture struct {
	f   *os.File
	enc *fast.Encoder
	ctx *fast.Context
}

func newFASTCapture(path string, dict *dictionary.Dictionary) (*fastCapture, error) {
	reg, err := fast.RegistryFromDictionary(dict, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to derive FAST templates: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return &fastCapture{f: f, enc: fast.NewEncoder(reg), ctx: fast.NewContext()}, nil
}

func (c *fastCapture) write(msg *message.Message) error {
	b, err := c.enc.Encode(c.ctx, msg)
	if err != nil {
		return err
	}
	_, err = c.f.Write(b)
	return err
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, logger, flush, err := setup(cmd)
	if err != nil {
		return err
	}
	defer flush()
	once, _ := cmd.Flags().GetBool("once")
	capturePath, _ := cmd.Flags().GetString("fast-capture")

	dict, err := loadDictionary(cfg.Dictionary.Path, cfg.Session.BeginString)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.URL, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sc, err := sessionConfig(cfg.Session)
	if err != nil {
		return err
	}
	machine, err := session.NewMachine(sc, session.InitialSnapshot())
	if err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app := logApplication{logger: logger}
	opts := []session.RunnerOption{
		session.WithMetrics(session.NewMetrics(reg)),
		session.WithLogger(logger),
	}
	if capturePath != "" {
		app.capture, err = newFASTCapture(capturePath, dict)
		if err != nil {
			return err
		}
		defer app.capture.f.Close()
		opts = append(opts, session.WithFASTContexts(app.capture.ctx))
	}
	opts = append(opts, session.WithApplication(app))

	if cfg.Admin.Port != 0 {
		admin, err := server.NewAdminServer(cfg.Admin, logger)
		if err != nil {
			return fmt.Errorf("failed to create admin server: %w", err)
		}
		if _, err := admin.Listen(); err != nil {
			return err
		}
		go func() {
			if err := admin.Serve(); err != nil {
				logger.Error("admin server stopped", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = admin.Shutdown(sctx)
		}()
		opts = append(opts, session.WithPhaseObserver(admin.ObservePhase))
	}

	if cfg.Admin.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.Admin.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer metricsSrv.Close()
	}

	runner, err := session.NewRunner(machine, dict, tagvalue.DefaultConfig(), st, opts...)
	if err != nil {
		return err
	}

	logger.Info("starting fixengine session", "version", Version, "session", runner.Identity().String(),
		"role", cfg.Session.Role.String(), "addr", cfg.Session.Addr)

	if cfg.Session.Role == types.RoleAcceptor {
		return serveAcceptor(ctx, runner, cfg.Session, logger, once)
	}
	return runInitiator(ctx, runner, cfg.Session, logger, once)
}

// sessionConfig converts the loaded configuration and wires logon
// credentials from the environment.
func sessionConfig(c config.SessionConfig) (session.Config, error) {
	sc := session.DefaultConfig(c.Identity(), c.Role)
	sc.HeartbeatInterval = c.HeartbeatInterval
	sc.LogonTimeout = c.LogonTimeout
	sc.LogoutTimeout = c.LogoutTimeout
	sc.ResetOnLogon = c.ResetOnLogon
	sc.MaxJournal = c.MaxJournal

	secrets, err := config.LogonSecrets()
	if err != nil {
		return sc, fmt.Errorf("failed to load logon secrets: %w", err)
	}
	switch c.Role {
	case types.RoleInitiator:
		if c.Username == "" {
			break
		}
		secret, ok := secrets[c.Username]
		if !ok {
			return sc, fmt.Errorf("no logon secret for username %q (set FIXENGINE_LOGON_SECRET)", c.Username)
		}
		sc.SignLogon = auth.NewSigner(c.Username, secret).Sign
	case types.RoleAcceptor:
		if len(secrets) > 0 {
			sc.Authenticate = auth.NewAuthenticator(secrets).Authenticate
		}
	}
	return sc, nil
}

// runWithLogout runs one connection. Cancelling ctx requests a Logout and
// gives the peer the logout timeout to answer before the connection is cut.
func runWithLogout(ctx context.Context, runner *session.Runner, conn net.Conn, logoutTimeout time.Duration) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Run(runCtx, conn) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	_ = runner.Logout(runCtx, "shutting down")
	select {
	case err := <-done:
		return err
	case <-time.After(logoutTimeout + time.Second):
		cancel()
		return <-done
	}
}

func runInitiator(ctx context.Context, runner *session.Runner, c config.SessionConfig, logger *slog.Logger, once bool) error {
	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("connect failed", "addr", c.Addr, "error", err)
		} else {
			err = runWithLogout(ctx, runner, conn, c.LogoutTimeout)
			if err != nil {
				logger.Warn("connection ended", "error", err)
			}
		}
		if once || ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func serveAcceptor(ctx context.Context, runner *session.Runner, c config.SessionConfig, logger *slog.Logger, once bool) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", c.Addr, err)
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	logger.Info("accepting connections", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		logger.Info("counterparty connected", "remote", conn.RemoteAddr().String())
		err = runWithLogout(ctx, runner, conn, c.LogoutTimeout)
		if err != nil {
			logger.Warn("connection ended", "error", err)
		}
		if once || ctx.Err() != nil {
			return err
		}
	}
}
