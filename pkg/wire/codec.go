package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// initialLineBuffer is the scanner's starting buffer size.
	initialLineBuffer = 64 * 1024

	// maxLineBytes bounds a single message line. Anything larger is a
	// protocol violation, not a legitimate payload.
	maxLineBytes = 16 * 1024 * 1024
)

var (
	// ErrEmbeddedNewline is returned when a value would serialize with
	// an embedded newline and corrupt the channel framing.
	ErrEmbeddedNewline = errors.New("wire: value contains embedded newline")

	// ErrLineTooLong is returned when an incoming line exceeds the
	// codec's maximum message size.
	ErrLineTooLong = errors.New("wire: line exceeds maximum message size")
)

// Encoder writes one JSON value per line and flushes after every line,
// so the peer never blocks on a buffered message.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode marshals v, writes it as a single newline-terminated line and
// flushes immediately.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal: %w", err)
	}

	// json.Marshal compacts marshaler output and rejects raw newlines
	// inside strings, so in practice this never trips; a line with an
	// embedded newline must never reach the channel regardless.
	if bytes.ContainsRune(data, '\n') {
		return ErrEmbeddedNewline
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	return e.w.Flush()
}

// Flush writes out any buffered data. Encode flushes on every line, so
// this matters only on shutdown paths.
func (e *Encoder) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w.Flush()
}

// Decoder reads newline-delimited JSON lines from a channel's input
// stream. It does not parse the line; callers decide whether to treat
// it as a request or a reply.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, initialLineBuffer), maxLineBytes)
	return &Decoder{scanner: s}
}

// Next returns the next line on the channel. It returns io.EOF when the
// input stream closes, which callers map to channel_closed when a
// request is still outstanding. The returned slice is only valid until
// the next call.
func (d *Decoder) Next() ([]byte, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return nil, ErrLineTooLong
			}
			return nil, fmt.Errorf("wire: read: %w", err)
		}
		return nil, io.EOF
	}
	return d.scanner.Bytes(), nil
}
