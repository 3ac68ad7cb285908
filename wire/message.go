package wire

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MessageHeaderSize is the number of bytes in a bitcoin message header.
// Bitcoin network (magic) 4 bytes + command 12 bytes + payload length 4 bytes +
// checksum 4 bytes.
const MessageHeaderSize = 24

// CommandSize is the fixed size of all commands in the common bitcoin message
// header. Shorter commands must be zero padded.
const CommandSize = 12

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = (1024 * 1024 * 32) // 32MB

// EmptyPayloadChecksum is the checksum of a zero length payload as read
// from the header. On the wire it appears as 5d f6 e0 e2.
const EmptyPayloadChecksum uint32 = 0xe2e0f65d

// Command is the name of a message as carried in the header.
type Command string

// Commands used in bitcoin message headers which describe the type of message.
const (
	CmdVersion Command = "version"
	CmdVerAck  Command = "verack"
)

// knownCommands maps the padded header field of every supported command
// back to the command.
var knownCommands = map[[CommandSize]byte]Command{
	CmdVersion.Bytes(): CmdVersion,
	CmdVerAck.Bytes():  CmdVerAck,
}

// String returns the command name.
func (c Command) String() string {
	return string(c)
}

// Bytes returns the command as the fixed size, zero padded header field.
func (c Command) Bytes() [CommandSize]byte {
	var command [CommandSize]byte
	copy(command[:], c)
	return command
}

// CommandFromBytes returns the command encoded in a header command field.
// A field that does not exactly match a supported command yields a
// MessageError with code ErrUnknownCommand.
func CommandFromBytes(b [CommandSize]byte) (Command, error) {
	if cmd, ok := knownCommands[b]; ok {
		return cmd, nil
	}
	str := fmt.Sprintf("unknown command %q", bytes.TrimRight(b[:], "\x00"))
	return "", messageError("CommandFromBytes", ErrUnknownCommand, str)
}

// Message is an interface that describes a bitcoin message. A type that
// implements Message has complete control over the representation of its
// data and may therefore contain additional or fewer fields than those
// which are used directly in the protocol encoded message.
type Message interface {
	BtcDecode(io.Reader) error
	BtcEncode(io.Writer) error
	Command() Command
}

// MessageHeader defines the header structure for all bitcoin protocol
// messages.
type MessageHeader struct {
	Net      BitcoinNet        // 4 bytes
	Command  [CommandSize]byte // 12 bytes
	Length   uint32            // 4 bytes
	Checksum uint32            // 4 bytes
}

// Bytes returns the 24 byte wire encoding of the header.
func (h *MessageHeader) Bytes() []byte {
	hw := bytes.NewBuffer(make([]byte, 0, MessageHeaderSize))
	// Writes to a bytes.Buffer cannot fail.
	_ = writeElements(hw, h.Net, h.Command, h.Length, h.Checksum)
	return hw.Bytes()
}

// ParseHeader decodes a 24 byte message header. It fails with a framing
// error when the input has the wrong size or declares a payload larger
// than MaxMessagePayload. The command field is not interpreted here; see
// CommandFromBytes.
func ParseHeader(b []byte) (*MessageHeader, error) {
	if len(b) != MessageHeaderSize {
		str := fmt.Sprintf("header is %d bytes, want %d", len(b),
			MessageHeaderSize)
		return nil, messageError("ParseHeader", ErrFraming, str)
	}

	hdr := MessageHeader{}
	hr := bytes.NewReader(b)
	err := readElements(hr, &hdr.Net, &hdr.Command, &hdr.Length, &hdr.Checksum)
	if err != nil {
		return nil, wrapError("ParseHeader", ErrFraming, err)
	}

	if hdr.Length > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - header "+
			"indicates %d bytes, but max message payload is %d "+
			"bytes.", hdr.Length, MaxMessagePayload)
		return nil, messageError("ParseHeader", ErrFraming, str)
	}

	return &hdr, nil
}

// Checksum returns the integrity tag of a payload: the first four bytes of
// its double SHA-256, as the header carries them.
func Checksum(payload []byte) uint32 {
	return littleEndian.Uint32(chainhash.DoubleHashB(payload)[:4])
}

// PayloadHasher computes the same value as Checksum for a payload that
// arrives in pieces. It implements io.Writer.
type PayloadHasher struct {
	h hash.Hash
}

// NewPayloadHasher returns a hasher for a new payload.
func NewPayloadHasher() *PayloadHasher {
	return &PayloadHasher{h: sha256.New()}
}

// Write adds more payload bytes. It never returns an error.
func (p *PayloadHasher) Write(b []byte) (int, error) {
	return p.h.Write(b)
}

// Checksum returns the checksum of everything written so far.
func (p *PayloadHasher) Checksum() uint32 {
	return littleEndian.Uint32(chainhash.HashB(p.h.Sum(nil))[:4])
}

// SerializedMessage is a wire ready header and payload pair.
type SerializedMessage struct {
	Header  []byte
	Payload []byte
}

// Bytes returns the header followed by the payload.
func (m *SerializedMessage) Bytes() []byte {
	b := make([]byte, 0, len(m.Header)+len(m.Payload))
	b = append(b, m.Header...)
	return append(b, m.Payload...)
}

// BuildMessage encodes msg and frames it for the bitcoin network btcnet.
func BuildMessage(msg Message, btcnet BitcoinNet) (*SerializedMessage, error) {
	cmd := msg.Command()
	if len(cmd) > CommandSize {
		str := fmt.Sprintf("command [%s] is too long [max %v]",
			cmd, CommandSize)
		return nil, messageError("BuildMessage", ErrSerialization, str)
	}

	var bw bytes.Buffer
	if err := msg.BtcEncode(&bw); err != nil {
		if IsErrorCode(err, ErrSerialization) {
			return nil, err
		}
		return nil, wrapError("BuildMessage", ErrSerialization, err)
	}
	payload := bw.Bytes()
	lenp := len(payload)

	if lenp > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload is %d bytes",
			lenp, MaxMessagePayload)
		return nil, messageError("BuildMessage", ErrSerialization, str)
	}

	checksum := EmptyPayloadChecksum
	switch {
	case cmd == CmdVerAck && lenp != 0:
		str := fmt.Sprintf("verack payload must be empty, encoded %d "+
			"bytes", lenp)
		return nil, messageError("BuildMessage", ErrSerialization, str)
	case cmd != CmdVerAck:
		checksum = Checksum(payload)
	}

	hdr := MessageHeader{
		Net:      btcnet,
		Command:  cmd.Bytes(),
		Length:   uint32(lenp),
		Checksum: checksum,
	}

	return &SerializedMessage{Header: hdr.Bytes(), Payload: payload}, nil
}

// WriteMessage writes a bitcoin Message to w including the necessary header
// information and returns the number of bytes written.
func WriteMessage(w io.Writer, msg Message, btcnet BitcoinNet) (int, error) {
	sm, err := BuildMessage(msg, btcnet)
	if err != nil {
		return 0, err
	}

	// Write header and payload in one call so a connection sees a single
	// write per message.
	return w.Write(sm.Bytes())
}
