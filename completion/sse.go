package completion

import (
	"bufio"
	"bytes"
	"io"
)

// SSEScanner scans Server-Sent Events (SSE) streams.
// It reassembles line-delimited event records across read boundaries, so a
// record split mid-chunk by the network is delivered intact.
type SSEScanner struct {
	scanner *bufio.Scanner
	data    string
	err     error
}

// NewSSEScanner creates a new SSE scanner.
func NewSSEScanner(r io.Reader) *SSEScanner {
	return &SSEScanner{
		scanner: bufio.NewScanner(r),
	}
}

// Scan advances to the next SSE data event.
// Lines without the "data:" prefix (comments, event boundaries) are skipped.
func (s *SSEScanner) Scan() bool {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()

		if len(line) == 0 {
			continue
		}

		// Both "data: x" and "data:x" are valid on the wire.
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			s.data = string(bytes.TrimPrefix(rest, []byte(" ")))
			return true
		}
	}

	s.err = s.scanner.Err()
	return false
}

// Data returns the current event data.
func (s *SSEScanner) Data() string {
	return s.data
}

// Err returns any scanning error.
func (s *SSEScanner) Err() error {
	return s.err
}
