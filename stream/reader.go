package stream

import (
	"bufio"
	"io"
)

const maxLineBytes = 1024 * 1024

// Reader yields Events from an SSE byte stream. It returns io.EOF after the
// Done event has been delivered or when the underlying reader is exhausted.
type Reader struct {
	scanner *bufio.Scanner
	parser  *Parser
	pending []Event
}

// NewReader wraps source. Lines longer than 1 MiB fail with
// bufio.ErrTooLong.
func NewReader(source io.Reader) *Reader {
	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	return &Reader{scanner: scanner, parser: NewParser()}
}

// Next returns the next event.
func (r *Reader) Next() (Event, error) {
	if r == nil || r.scanner == nil {
		return nil, io.EOF
	}

	for len(r.pending) == 0 {
		if r.parser.Done() {
			return nil, io.EOF
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		r.pending = r.parser.ParseLine(r.scanner.Text())
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]

	return ev, nil
}
