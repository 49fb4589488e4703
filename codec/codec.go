// Package codec implements the ABCI socket wire format: every message is a
// protobuf-encoded Request or Response prefixed by its length as an unsigned
// varint. Decoder and Encoder turn a byte stream into discrete messages and
// back.
package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cyberinferno/go-abci/abci"
)

// DefaultMaxMessageSize bounds the size of a single decoded message.
const DefaultMaxMessageSize = 64 * 1024 * 1024

var (
	ErrMalformed       = errors.New("codec: malformed message")
	ErrMessageTooLarge = errors.New("codec: message too large")
)

// Decoder reads length-delimited messages from a byte stream. It is not safe
// for concurrent use.
type Decoder struct {
	r       *bufio.Reader
	maxSize uint64
}

// NewDecoder creates a Decoder reading from r. A maxSize of zero or less
// selects DefaultMaxMessageSize.
//
// Parameters:
//   - r: The byte stream to read from
//   - maxSize: Maximum accepted message size in bytes
//
// Returns:
//   - A new Decoder
func NewDecoder(r io.Reader, maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}

	return &Decoder{r: bufio.NewReader(r), maxSize: uint64(maxSize)}
}

// ReadRequest reads and decodes the next request. It returns io.EOF when the
// stream ends cleanly on a message boundary.
func (d *Decoder) ReadRequest() (abci.Request, error) {
	b, err := d.readFrame()
	if err != nil {
		return nil, err
	}

	return UnmarshalRequest(b)
}

// ReadResponse reads and decodes the next response. It returns io.EOF when the
// stream ends cleanly on a message boundary.
func (d *Decoder) ReadResponse() (abci.Response, error) {
	b, err := d.readFrame()
	if err != nil {
		return nil, err
	}

	return UnmarshalResponse(b)
}

// readFrame returns a freshly allocated message body; decoded messages may
// alias it.
func (d *Decoder) readFrame() ([]byte, error) {
	size, err := binary.ReadUvarint(d.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated length prefix", ErrMalformed)
		}
		return nil, fmt.Errorf("codec: read length prefix: %w", err)
	}

	if size > d.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, size, d.maxSize)
	}

	b := make([]byte, size)
	if _, err := io.ReadFull(d.r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated body (%d bytes expected)", ErrMalformed, size)
		}
		return nil, fmt.Errorf("codec: read body: %w", err)
	}

	return b, nil
}

// Encoder writes length-delimited messages to a byte stream. Writes are
// buffered until Flush. It is not safe for concurrent use.
type Encoder struct {
	w       *bufio.Writer
	maxSize int
}

// NewEncoder creates an Encoder writing to w. A maxSize of zero or less
// selects DefaultMaxMessageSize.
func NewEncoder(w io.Writer, maxSize int) *Encoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}

	return &Encoder{w: bufio.NewWriter(w), maxSize: maxSize}
}

// WriteResponse encodes resp and buffers it as one complete frame.
func (e *Encoder) WriteResponse(resp abci.Response) error {
	b, err := MarshalResponse(resp)
	if err != nil {
		return err
	}

	return e.writeFrame(b)
}

// WriteRequest encodes req and buffers it as one complete frame.
func (e *Encoder) WriteRequest(req abci.Request) error {
	b, err := MarshalRequest(req)
	if err != nil {
		return err
	}

	return e.writeFrame(b)
}

// Flush writes any buffered frames to the underlying stream.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

func (e *Encoder) writeFrame(b []byte) error {
	if len(b) > e.maxSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, len(b), e.maxSize)
	}

	prefix := protowire.AppendVarint(make([]byte, 0, binary.MaxVarintLen64), uint64(len(b)))
	if _, err := e.w.Write(prefix); err != nil {
		return err
	}

	_, err := e.w.Write(b)
	return err
}
