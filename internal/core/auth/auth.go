// Package auth signs and verifies FIX Logon credentials.
//
// The initiator puts its key id in Username (553) and an HMAC-SHA256
// signature in Password (554). The acceptor looks the key up by Username
// and recomputes the signature over the Logon's header fields.
package auth

import (
	"fmt"
	"time"

	"github.com/solatis/fixengine/internal/dictionary"
	"github.com/solatis/fixengine/internal/message"
)

const (
	tagSenderCompID = 49
	tagTargetCompID = 56
	tagUsername     = 553
	tagPassword     = 554
)

// DefaultMaxSkew bounds the difference between a Logon's SendingTime and
// the acceptor's clock.
const DefaultMaxSkew = 2 * time.Minute

// Authenticator verifies inbound Logons against a set of shared secrets
// keyed by Username.
type Authenticator struct {
	secrets map[string][]byte
	maxSkew time.Duration
	now     func() time.Time
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithMaxSkew sets the allowed SendingTime skew. Zero disables the check.
func WithMaxSkew(d time.Duration) Option {
	return func(a *Authenticator) { a.maxSkew = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// NewAuthenticator verifies against secrets.
func NewAuthenticator(secrets map[string][]byte, opts ...Option) *Authenticator {
	a := &Authenticator{secrets: secrets, maxSkew: DefaultMaxSkew, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate checks the credentials of logon. Its signature matches
// session.Config.Authenticate.
func (a *Authenticator) Authenticate(logon *message.Message) error {
	username, okUser := logon.Body.Get(tagUsername)
	password, okPass := logon.Body.Get(tagPassword)
	if !okUser || !okPass || username == "" {
		return ErrMissingCredentials
	}

	mac, err := ParseSignature(password)
	if err != nil {
		return err
	}
	secret, ok := a.secrets[username]
	if !ok {
		return ErrUnknownKey
	}

	canonical, err := canonicalOf(logon, username)
	if err != nil {
		return err
	}
	if !VerifyHMAC(mac, ComputeHMAC(secret, canonical)) {
		return ErrInvalidSignature
	}

	if a.maxSkew > 0 {
		sent, err := logon.Header.GetTime(dictionary.TagSendingTime)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStaleLogon, err)
		}
		skew := a.now().Sub(sent)
		if skew < -a.maxSkew || skew > a.maxSkew {
			return fmt.Errorf("%w: %s", ErrStaleLogon, skew)
		}
	}
	return nil
}

// Signer adds credentials to outbound Logons.
type Signer struct {
	keyID  string
	secret []byte
}

// NewSigner signs with secret under keyID.
func NewSigner(keyID string, secret []byte) *Signer {
	return &Signer{keyID: keyID, secret: secret}
}

// Sign sets Username and Password on a stamped logon. Its signature
// matches session.Config.SignLogon.
func (s *Signer) Sign(logon *message.Message) error {
	canonical, err := canonicalOf(logon, s.keyID)
	if err != nil {
		return err
	}
	logon.Body.Set(tagUsername, s.keyID)
	logon.Body.Set(tagPassword, FormatSignature(ComputeHMAC(s.secret, canonical)))
	return nil
}

func canonicalOf(logon *message.Message, username string) (string, error) {
	var vals [4]string
	for i, tag := range []int{dictionary.TagSendingTime, dictionary.TagMsgSeqNum, tagSenderCompID, tagTargetCompID} {
		v, ok := logon.Header.Get(tag)
		if !ok {
			return "", fmt.Errorf("logon header missing tag %d", tag)
		}
		vals[i] = v
	}
	return Canonical(vals[0], vals[1], vals[2], vals[3], username), nil
}
