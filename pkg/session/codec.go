// Package session implements the TCP session registry, handshake
// state machine, and outbound-bootstrap loop: the mailbox component
// that turns a raw socket into a consolidated peer connection the
// chain manager and data-request pool can gossip through.
package session

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// Frame is the opaque payload exchanged between consolidated sessions;
// its wire encoding is not specified here (that boundary is owned by
// whatever concrete FrameCodec is wired in) — this package only
// defines the codec interface and ships one concrete implementation.
type Frame struct {
	Kind    string
	Payload []byte
}

// FrameCodec reads and writes length-prefixed frame envelopes around
// an opaque payload. Swappable without touching session logic, since
// the bit-exact wire format is outside this system's scope.
type FrameCodec interface {
	WriteFrame(w io.Writer, f Frame) error
	ReadFrame(r io.Reader) (Frame, error)
}

// GobLengthPrefixedCodec is the concrete FrameCodec shipped by
// default: a 4-byte big-endian length prefix around a gob-encoded
// Frame envelope.
type GobLengthPrefixedCodec struct {
	MaxFrameSize int
}

const defaultMaxFrameSize = 16 << 20 // 16MiB

func NewGobLengthPrefixedCodec() *GobLengthPrefixedCodec {
	return &GobLengthPrefixedCodec{MaxFrameSize: defaultMaxFrameSize}
}

func (c *GobLengthPrefixedCodec) WriteFrame(w io.Writer, f Frame) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	lengthPrefix := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthPrefix, uint32(buf.Len()))
	if _, err := w.Write(lengthPrefix); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

func (c *GobLengthPrefixedCodec) ReadFrame(r io.Reader) (Frame, error) {
	lengthPrefix := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthPrefix); err != nil {
		return Frame{}, fmt.Errorf("read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthPrefix)
	maxSize := c.MaxFrameSize
	if maxSize == 0 {
		maxSize = defaultMaxFrameSize
	}
	if int(length) > maxSize {
		return Frame{}, fmt.Errorf("frame size %d exceeds maximum %d", length, maxSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("read frame body: %w", err)
	}

	var f Frame
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
