package wire

import (
	"fmt"
	"io"
	"time"
)

// MaxUserAgentLen is the maximum allowed length for the user agent field in
// a version message. The length is carried in a single byte.
const MaxUserAgentLen = 255

// MsgVersion implements the Message interface and represents a bitcoin
// version message. It is used for a peer to advertise itself as soon as an
// outbound connection is made. The remote peer then uses this information
// along with its own to negotiate.
//
// The payload is packed with no padding between fields:
//
//	version:i32 services:u64 timestamp:i64 addr_recv:26 addr_from:26
//	nonce:u64 ua_len:u8 user_agent:ua_len start_height:i32 relay:u8
type MsgVersion struct {
	// Version of the protocol the node is using.
	ProtocolVersion int32

	// Bitfield which identifies the enabled services.
	Services ServiceFlag

	// Time the message was generated. This is encoded as an int64 on the
	// wire.
	Timestamp time.Time

	// Address of the remote peer.
	AddrYou NetAddress

	// Address of the local peer.
	AddrMe NetAddress

	// Unique value associated with message that is used to detect self
	// connections.
	Nonce uint64

	// The user agent that generated message.
	UserAgent string

	// Last block seen by the generator of the version message.
	LastBlock int32

	// Whether the remote peer should announce relayed transactions.
	Relay bool
}

// HasService returns whether the specified service is supported by the peer
// that generated the message.
func (msg *MsgVersion) HasService(service ServiceFlag) bool {
	return msg.Services&service == service
}

// AddService adds service as a supported service by the peer generating the
// message.
func (msg *MsgVersion) AddService(service ServiceFlag) {
	msg.Services |= service
}

// BtcDecode decodes r using the bitcoin protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgVersion) BtcDecode(r io.Reader) error {
	var sec int64
	err := readElements(r, &msg.ProtocolVersion, &msg.Services, &sec)
	if err != nil {
		return wrapError("MsgVersion.BtcDecode", ErrSerialization, err)
	}
	msg.Timestamp = time.Unix(sec, 0)

	err = readNetAddress(r, &msg.AddrYou)
	if err != nil {
		return wrapError("MsgVersion.BtcDecode", ErrSerialization, err)
	}
	err = readNetAddress(r, &msg.AddrMe)
	if err != nil {
		return wrapError("MsgVersion.BtcDecode", ErrSerialization, err)
	}

	var uaLen uint8
	err = readElements(r, &msg.Nonce, &uaLen)
	if err != nil {
		return wrapError("MsgVersion.BtcDecode", ErrSerialization, err)
	}
	ua := make([]byte, uaLen)
	if _, err := io.ReadFull(r, ua); err != nil {
		return wrapError("MsgVersion.BtcDecode", ErrSerialization, err)
	}
	msg.UserAgent = string(ua)

	err = readElements(r, &msg.LastBlock, &msg.Relay)
	if err != nil {
		return wrapError("MsgVersion.BtcDecode", ErrSerialization, err)
	}
	return nil
}

// BtcEncode encodes the receiver to w using the bitcoin protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgVersion) BtcEncode(w io.Writer) error {
	if len(msg.UserAgent) > MaxUserAgentLen {
		str := fmt.Sprintf("user agent too long [len %v, max %v]",
			len(msg.UserAgent), MaxUserAgentLen)
		return messageError("MsgVersion.BtcEncode", ErrSerialization, str)
	}

	err := writeElements(w, msg.ProtocolVersion, msg.Services,
		msg.Timestamp.Unix())
	if err != nil {
		return err
	}

	err = writeNetAddress(w, &msg.AddrYou)
	if err != nil {
		return err
	}
	err = writeNetAddress(w, &msg.AddrMe)
	if err != nil {
		return err
	}

	err = writeElements(w, msg.Nonce, uint8(len(msg.UserAgent)))
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, msg.UserAgent); err != nil {
		return err
	}

	return writeElements(w, msg.LastBlock, msg.Relay)
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgVersion) Command() Command {
	return CmdVersion
}

// SerializeSize returns the number of bytes the encoded message occupies.
func (msg *MsgVersion) SerializeSize() int {
	// Protocol version 4 bytes + services 8 bytes + timestamp 8 bytes +
	// two net addresses + nonce 8 bytes + user agent length 1 byte +
	// user agent + last block 4 bytes + relay 1 byte.
	return 28 + 2*netAddressSize + 1 + len(msg.UserAgent) + 5
}

// NewMsgVersion returns a new bitcoin version message that conforms to the
// Message interface using the passed parameters and defaults for the
// remaining fields.
func NewMsgVersion(me *NetAddress, you *NetAddress, nonce uint64,
	lastBlock int32) *MsgVersion {

	// Limit the timestamp to one second precision since the protocol
	// doesn't support better.
	return &MsgVersion{
		ProtocolVersion: ProtocolVersion,
		Services:        0,
		Timestamp:       time.Unix(time.Now().Unix(), 0),
		AddrYou:         *you,
		AddrMe:          *me,
		Nonce:           nonce,
		UserAgent:       DefaultUserAgent,
		LastBlock:       lastBlock,
		Relay:           false,
	}
}
