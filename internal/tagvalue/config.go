// Package tagvalue implements the classic FIX tag=value wire encoding.
//
// The encoder orders fields by the dictionary layout and patches BodyLength
// and CheckSum after the rest of the message is written. The decoder frames
// a message by BodyLength, verifies CheckSum, then walks the tokens against
// the dictionary to rebuild header, body, trailer and nested groups.
package tagvalue

import "github.com/solatis/fixengine/internal/types"

// SOH is the standard field separator.
const SOH byte = 0x01

// Config controls framing and validation.
type Config struct {
	// Separator terminates every field. SOH on the wire; '|' is common in logs.
	Separator byte

	// MaxMessageSize bounds the declared BodyLength.
	MaxMessageSize int

	// VerifyChecksum rejects messages whose CheckSum does not match.
	VerifyChecksum bool

	// ValidateValues checks data formats and enumerated values.
	ValidateValues bool
}

// DefaultConfig returns SOH separators, a 64 KiB limit and full validation.
func DefaultConfig() Config {
	return Config{
		Separator:      SOH,
		MaxMessageSize: types.DefaultMaxMessageSize,
		VerifyChecksum: true,
		ValidateValues: true,
	}
}

func (c Config) normalized() Config {
	if c.Separator == 0 {
		c.Separator = SOH
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = types.DefaultMaxMessageSize
	}
	return c
}
