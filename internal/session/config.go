package session

import (
	"fmt"
	"time"

	"github.com/solatis/fixengine/internal/message"
	"github.com/solatis/fixengine/internal/types"
)

// Default timings.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultLogonTimeout      = 10 * time.Second
	DefaultLogoutTimeout     = 2 * time.Second
)

// Config parameterizes a Machine.
type Config struct {
	Identity types.SessionIdentity
	Role     types.Role

	// HeartbeatInterval is sent in the initiator's Logon. An acceptor
	// adopts the interval the initiator proposes. Zero disables heartbeats.
	HeartbeatInterval time.Duration
	LogonTimeout      time.Duration
	LogoutTimeout     time.Duration

	// ResetOnLogon resets both sequence numbers to 1 at every logon and
	// sets ResetSeqNumFlag.
	ResetOnLogon bool

	// MaxJournal bounds the outbound messages kept for resend. Older
	// messages are answered with a gap fill.
	MaxJournal int

	// Username and Password are sent in the initiator's Logon.
	Username string
	Password string

	// SignLogon, when set, is called on every outbound Logon after the
	// header is stamped.
	SignLogon func(logon *message.Message) error

	// Authenticate, when set, vets every inbound Logon on an acceptor.
	Authenticate func(logon *message.Message) error

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a configuration for id with default timings.
func DefaultConfig(id types.SessionIdentity, role types.Role) Config {
	return Config{
		Identity:          id,
		Role:              role,
		HeartbeatInterval: DefaultHeartbeatInterval,
		LogonTimeout:      DefaultLogonTimeout,
		LogoutTimeout:     DefaultLogoutTimeout,
		MaxJournal:        types.DefaultMaxJournal,
	}
}

// Validate checks identity and timings.
func (c Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.Role != types.RoleInitiator && c.Role != types.RoleAcceptor {
		return fmt.Errorf("%w: role %d", ErrInvalidConfig, c.Role)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: negative heartbeat interval", ErrInvalidConfig)
	}
	if c.HeartbeatInterval%time.Second != 0 {
		return fmt.Errorf("%w: heartbeat interval must be whole seconds", ErrInvalidConfig)
	}
	if c.LogonTimeout < 0 || c.LogoutTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.MaxJournal < 0 {
		return fmt.Errorf("%w: negative journal size", ErrInvalidConfig)
	}
	return nil
}

func (c Config) normalized() Config {
	if c.LogonTimeout == 0 {
		c.LogonTimeout = DefaultLogonTimeout
	}
	if c.LogoutTimeout == 0 {
		c.LogoutTimeout = DefaultLogoutTimeout
	}
	if c.MaxJournal == 0 {
		c.MaxJournal = types.DefaultMaxJournal
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
