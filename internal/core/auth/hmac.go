package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "fx-v1-"

// Canonical joins the Logon fields covered by the signature. Binding the
// sequence number and SendingTime keeps a captured Password from being
// replayed on a later Logon.
func Canonical(sendingTime, seqNum, sender, target, username string) string {
	return strings.Join([]string{sendingTime, seqNum, sender, target, username}, "\x01")
}

// ComputeHMAC returns HMAC-SHA256 of canonical under secret.
func ComputeHMAC(secret []byte, canonical string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(canonical))
	return h.Sum(nil)
}

// VerifyHMAC compares two MACs in constant time.
func VerifyHMAC(expected, computed []byte) bool {
	return hmac.Equal(expected, computed)
}

// FormatSignature renders a MAC as a Password value: fx-v1-<64 hex chars>.
func FormatSignature(mac []byte) string {
	return signaturePrefix + hex.EncodeToString(mac)
}

// ParseSignature extracts the MAC from a Password value.
func ParseSignature(password string) ([]byte, error) {
	rest, ok := strings.CutPrefix(password, signaturePrefix)
	if !ok || len(rest) != 2*sha256.Size {
		return nil, ErrInvalidSignatureFormat
	}
	for _, c := range rest {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return nil, ErrInvalidSignatureFormat
		}
	}
	mac, err := hex.DecodeString(rest)
	if err != nil {
		return nil, ErrInvalidSignatureFormat
	}
	return mac, nil
}
