// Package wire implements the client/daemon framing: spec.md §4.F. A
// request is one command tag byte followed by command-specific payload
// bytes, terminated by the client half-closing its write side. A response
// is zero or more (stream-id, length, bytes) frames followed by a clean
// close. The length field is fixed at 64 bits little-endian per spec.md
// §9's instruction for fresh implementations.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Tag identifies the requested command.
type Tag byte

const (
	TagEnqueue Tag = 0
	TagRemove  Tag = 1
	TagList    Tag = 2
	TagRunNow  Tag = 3
)

func (t Tag) String() string {
	switch t {
	case TagEnqueue:
		return "ENQUEUE"
	case TagRemove:
		return "REMOVE"
	case TagList:
		return "LIST"
	case TagRunNow:
		return "RUN-NOW"
	default:
		return fmt.Sprintf("tag(%d)", byte(t))
	}
}

// Stream identifies which of the client's standard streams a response
// frame should be forwarded to.
type Stream byte

const (
	StreamStdout Stream = 0
	StreamStderr Stream = 1
	// StreamEnd is a sentinel meaning "no more frames follow on this
	// stream id's behalf"; in this implementation the response simply
	// ends with a clean connection close, but StreamEnd is kept so a
	// caller can emit an explicit terminator frame when multiplexing
	// over a longer-lived transport than one connection per request.
	StreamEnd Stream = 2
)

// ReadTag reads the single command tag byte beginning a request frame.
func ReadTag(r io.Reader) (Tag, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("wire: read tag: %w", err)
	}
	return Tag(b[0]), nil
}

// WriteTag writes the command tag byte beginning a request frame.
func WriteTag(w io.Writer, t Tag) error {
	_, err := w.Write([]byte{byte(t)})
	return err
}

// NewRequestID returns a UUID used only for log correlation: it is never
// persisted in the on-disk Job record, which uses the monotone store id.
func NewRequestID() string { return uuid.NewString() }

// WriteFrame writes one response frame: stream id, 8-byte LE length,
// then the payload bytes.
func WriteFrame(w io.Writer, stream Stream, payload []byte) error {
	var hdr [9]byte
	hdr[0] = byte(stream)
	binary.LittleEndian.PutUint64(hdr[1:], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("wire: write frame payload: %w", err)
		}
	}
	return nil
}

// Frame is one decoded response frame.
type Frame struct {
	Stream  Stream
	Payload []byte
}

// ReadFrame reads one response frame. io.EOF (with no bytes consumed)
// means the response is complete: the sender closed cleanly.
func ReadFrame(r io.Reader) (*Frame, error) {
	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("wire: truncated frame header")
		}
		return nil, err
	}
	n := binary.LittleEndian.Uint64(hdr[1:])
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("wire: read frame payload: %w", err)
		}
	}
	return &Frame{Stream: Stream(hdr[0]), Payload: payload}, nil
}

// Writer streams stdout/stderr bytes from a daemon-side worker back to
// the client, framing each write.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) Stdout(p []byte) error { return WriteFrame(w.w, StreamStdout, p) }
func (w *Writer) Stderr(p []byte) error { return WriteFrame(w.w, StreamStderr, p) }

// Errorf frames a formatted message on the stderr stream: spec.md §4.F's
// "an error on the daemon side produces one frame on the stderr stream
// containing a human-readable message".
func (w *Writer) Errorf(format string, args ...any) error {
	return w.Stderr([]byte(fmt.Sprintf(format, args...)))
}

// EncodeIDs concatenates ids as NUL-terminated decimal strings, the
// payload shape used by REMOVE and RUN-NOW requests.
func EncodeIDs(ids []uint64) []byte {
	var out []byte
	for _, id := range ids {
		out = append(out, []byte(fmt.Sprintf("%d", id))...)
		out = append(out, 0)
	}
	return out
}

// DecodeIDs splits a NUL-terminated-decimal-strings payload back into
// ids. An empty payload decodes to an empty (not nil-vs-empty
// significant) slice — callers distinguish "no ids" (meaning "all") from
// "some ids" by length.
func DecodeIDs(payload []byte) ([]uint64, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var ids []uint64
	start := 0
	for i, b := range payload {
		if b != 0 {
			continue
		}
		s := payload[start:i]
		start = i + 1
		var id uint64
		if _, err := fmt.Sscanf(string(s), "%d", &id); err != nil {
			return nil, fmt.Errorf("wire: decode id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
