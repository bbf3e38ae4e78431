package tagvalue

import "strconv"

// Checksum returns the byte sum of b modulo 256.
func Checksum(b []byte) int {
	var sum uint
	for _, c := range b {
		sum += uint(c)
	}
	return int(sum % 256)
}

// FormatChecksum renders a checksum as exactly three decimal digits.
func FormatChecksum(sum int) string {
	s := strconv.Itoa(sum % 256)
	switch len(s) {
	case 1:
		return "00" + s
	case 2:
		return "0" + s
	default:
		return s
	}
}

// parseChecksum accepts exactly three ASCII digits.
func parseChecksum(b []byte) (int, bool) {
	if len(b) != 3 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n > 255 {
		return 0, false
	}
	return n, true
}
