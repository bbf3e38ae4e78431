package auth

import "errors"

// Logon authentication failures. The session answers all of them with the
// same Logout text so a peer cannot tell an unknown key from a bad
// signature.
var (
	ErrMissingCredentials     = errors.New("logon carries no Username or Password")
	ErrInvalidSignatureFormat = errors.New("invalid logon signature format")
	ErrUnknownKey             = errors.New("unknown logon key")
	ErrInvalidSignature       = errors.New("logon signature mismatch")
	ErrStaleLogon             = errors.New("logon SendingTime outside allowed skew")
)
