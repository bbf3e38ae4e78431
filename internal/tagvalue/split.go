package tagvalue

import (
	"bufio"
	"errors"
	"io"
)

// SplitFunc returns a bufio.SplitFunc that yields one complete message per
// token, framed by BodyLength. Framing failures stop the scanner with the
// *DecodeError; a partial message at EOF yields io.ErrUnexpectedEOF.
//
// Scanner buffers must hold a full message; size them with
//
//	s.Buffer(make([]byte, 0, 4096), cfg.MaxMessageSize+64)
func SplitFunc(cfg Config) bufio.SplitFunc {
	cfg = cfg.normalized()
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if len(data) == 0 {
			return 0, nil, nil
		}
		fr, err := scanFrame(data, cfg)
		switch {
		case err == nil:
			return fr.size, data[:fr.size], nil
		case errors.Is(err, ErrIncomplete):
			if atEOF {
				return 0, nil, io.ErrUnexpectedEOF
			}
			return 0, nil, nil
		default:
			return 0, nil, err
		}
	}
}
