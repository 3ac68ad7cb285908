package peer

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/majchrzamemil/handshaker/wire"
)

const (
	// readBufferSize is the size of the buffer payloads are drained
	// through.
	readBufferSize = 1024

	// maxEmptyReads is the number of consecutive reads returning no data
	// and no error tolerated before the stream is considered stalled.
	maxEmptyReads = 100

	// maxRetainedPayload is the largest version payload kept for the
	// caller. Version payloads are well below it.
	maxRetainedPayload = readBufferSize
)

// Frame is a single message read off the stream.
type Frame struct {
	Header  wire.MessageHeader
	Command wire.Command

	// Payload holds the version payload when it is small enough to be
	// retained. It is nil for every other message.
	Payload []byte
}

// Reader extracts discrete messages from a byte stream. It owns its buffer
// and is not safe for concurrent use.
type Reader struct {
	r      io.Reader
	btcnet wire.BitcoinNet
	buf    [readBufferSize]byte
}

// NewReader returns a Reader for messages of the bitcoin network btcnet
// arriving on r.
func NewReader(r io.Reader, btcnet wire.BitcoinNet) *Reader {
	return &Reader{r: r, btcnet: btcnet}
}

// framingError returns a wire framing error for the reader.
func framingError(desc string, err error) *wire.MessageError {
	return &wire.MessageError{
		Func:        "Reader.ReadMessage",
		Code:        wire.ErrFraming,
		Description: desc,
		Err:         err,
	}
}

// ReadMessage reads the next message from the stream.
//
// It returns io.EOF, unwrapped, when the stream ends cleanly on a message
// boundary. A message with an unrecognized command is drained and reported
// as a nil Frame with a nil error so the caller can move on to the next
// one. Failures of the underlying reader are returned as a *TransportError
// and everything that leaves the stream desynchronized as a
// *wire.MessageError with code wire.ErrFraming.
func (r *Reader) ReadMessage() (*Frame, error) {
	hdrBytes := r.buf[:wire.MessageHeaderSize]
	n, err := r.readFull(hdrBytes)
	switch {
	case n == 0 && err == io.EOF:
		return nil, io.EOF
	case err == io.EOF:
		desc := fmt.Sprintf("stream closed after %d header bytes", n)
		return nil, framingError(desc, io.ErrUnexpectedEOF)
	case errors.Is(err, io.ErrNoProgress):
		return nil, framingError("stream stalled reading header", err)
	case err != nil:
		return nil, err
	}

	hdr, err := wire.ParseHeader(hdrBytes)
	if err != nil {
		return nil, err
	}

	// Messages for another network mean we are talking to the wrong
	// peer or have lost track of message boundaries.
	if hdr.Net != r.btcnet {
		desc := fmt.Sprintf("message from other network [%v]", hdr.Net)
		return nil, framingError(desc, nil)
	}

	cmd, cmdErr := wire.CommandFromBytes(hdr.Command)

	hasher := wire.NewPayloadHasher()
	var sink io.Writer = hasher
	var retained *bytes.Buffer
	if cmd == wire.CmdVersion && hdr.Length <= maxRetainedPayload {
		retained = bytes.NewBuffer(make([]byte, 0, hdr.Length))
		sink = io.MultiWriter(hasher, retained)
	}

	if err := r.drain(sink, int(hdr.Length)); err != nil {
		return nil, err
	}

	if sum := hasher.Checksum(); sum != hdr.Checksum {
		desc := fmt.Sprintf("payload checksum failed - header "+
			"indicates %08x, but actual checksum is %08x",
			hdr.Checksum, sum)
		return nil, framingError(desc, nil)
	}

	if cmdErr != nil {
		log.Debugf("Skipping message: %v (%d payload bytes)", cmdErr,
			hdr.Length)
		return nil, nil
	}

	frame := &Frame{Header: *hdr, Command: cmd}
	if retained != nil {
		frame.Payload = retained.Bytes()
	}
	return frame, nil
}

// drain copies exactly n payload bytes from the stream to w through the
// reader's buffer.
func (r *Reader) drain(w io.Writer, n int) error {
	total := n
	for n > 0 {
		chunk := r.buf[:min(n, readBufferSize)]
		read, err := r.readFull(chunk)
		// Writes go to hashers and in-memory buffers which cannot fail.
		_, _ = w.Write(chunk[:read])
		n -= read

		switch {
		case err == io.EOF:
			desc := fmt.Sprintf("stream closed after %d of %d payload "+
				"bytes", total-n, total)
			return framingError(desc, io.ErrUnexpectedEOF)
		case errors.Is(err, io.ErrNoProgress):
			desc := fmt.Sprintf("stream stalled after %d of %d "+
				"payload bytes", total-n, total)
			return framingError(desc, err)
		case err != nil:
			return err
		}
	}
	return nil
}

// readFull reads exactly len(p) bytes unless the stream ends, fails, or
// returns nothing maxEmptyReads times in a row. It returns io.EOF
// when the stream ended early, io.ErrNoProgress when it stalled and a
// *TransportError for anything else.
func (r *Reader) readFull(p []byte) (int, error) {
	var n, empty int
	for n < len(p) {
		nn, err := r.r.Read(p[n:])
		n += nn
		switch {
		case n == len(p):
			return n, nil
		case err == io.EOF:
			return n, io.EOF
		case err != nil:
			return n, &TransportError{Op: "read", Err: err}
		case nn == 0:
			empty++
			if empty >= maxEmptyReads {
				return n, io.ErrNoProgress
			}
		default:
			empty = 0
		}
	}
	return n, nil
}
