package wire

import (
	"bytes"
	"encoding/hex"
	"io"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	btcdwire "github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

// goldenVersion is a mainnet version message for 79.116.148.118:8333 with
// timestamp 1693259353, nonce 0x6517e68c5db32e3b and user agent
// "emil-handshake", captured from a working client.
const goldenVersion = "f9beb4d976657273696f6e00000000006400000011f11187" +
	"7111010000000000000000005916ed6400000000000000000000000000000000" +
	"000000000000ffff4f749476208d000000000000000000000000000000000000" +
	"ffff0000000000003b2eb35d8ce617650e656d696c2d68616e647368616b6500" +
	"00000000"

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// TestChecksumEmpty ensures the checksum of an empty payload is the constant
// used for verack headers and that it serializes to the well known bytes.
func TestChecksumEmpty(t *testing.T) {
	require.Equal(t, EmptyPayloadChecksum, Checksum(nil))
	require.Equal(t, EmptyPayloadChecksum, Checksum([]byte{}))

	var b [4]byte
	littleEndian.PutUint32(b[:], EmptyPayloadChecksum)
	require.Equal(t, [4]byte{0x5d, 0xf6, 0xe0, 0xe2}, b)
}

// TestPayloadHasher ensures hashing a payload in pieces matches Checksum.
func TestPayloadHasher(t *testing.T) {
	payload := mustDecodeHex(t, goldenVersion)[MessageHeaderSize:]

	h := NewPayloadHasher()
	for i := 0; i < len(payload); i += 7 {
		_, err := h.Write(payload[i:min(i+7, len(payload))])
		require.NoError(t, err)
	}
	require.Equal(t, Checksum(payload), h.Checksum())
	require.Equal(t, uint32(0x8711f111), h.Checksum())

	require.Equal(t, EmptyPayloadChecksum, NewPayloadHasher().Checksum())
}

// TestParseHeaderVector decodes a literal header.
func TestParseHeaderVector(t *testing.T) {
	b := []byte{
		0xf9, 0xbe, 0xb4, 0xd9, // magic
		0x76, 0x65, 0x72, 0x73, 0x69, 0x6f, 0x6e, 0x00, // "version"
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // length
		0xaa, 0xbb, 0xcc, 0xdd, // checksum
	}

	hdr, err := ParseHeader(b)
	require.NoError(t, err)
	require.Equal(t, MainNet, hdr.Net)
	require.Equal(t, uint32(0), hdr.Length)
	require.Equal(t, uint32(0xddccbbaa), hdr.Checksum)

	cmd, err := CommandFromBytes(hdr.Command)
	require.NoError(t, err)
	require.Equal(t, CmdVersion, cmd)

	require.Equal(t, b, hdr.Bytes(), "header does not re-encode:\n%s",
		spew.Sdump(hdr))
}

// TestParseHeaderErrors ensures malformed headers are framing errors.
func TestParseHeaderErrors(t *testing.T) {
	tooLarge := (&MessageHeader{
		Net:     MainNet,
		Command: CmdVersion.Bytes(),
		Length:  MaxMessagePayload + 1,
	}).Bytes()

	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short", make([]byte, MessageHeaderSize-1)},
		{"long", make([]byte, MessageHeaderSize+1)},
		{"payload too large", tooLarge},
	}

	for _, test := range tests {
		_, err := ParseHeader(test.in)
		require.Error(t, err, test.name)
		require.True(t, IsErrorCode(err, ErrFraming), "%s: %v", test.name, err)
	}
}

// TestCommandFromBytes ensures the command lookup inverts Command.Bytes and
// reports anything else as an unknown command.
func TestCommandFromBytes(t *testing.T) {
	for _, cmd := range []Command{CmdVersion, CmdVerAck} {
		got, err := CommandFromBytes(cmd.Bytes())
		require.NoError(t, err)
		require.Equal(t, cmd, got)
	}

	require.Equal(t, [CommandSize]byte{'v', 'e', 'r', 's', 'i', 'o', 'n'},
		CmdVersion.Bytes())
	require.Equal(t, [CommandSize]byte{'v', 'e', 'r', 'a', 'c', 'k'},
		CmdVerAck.Bytes())

	unknown := [][CommandSize]byte{
		{},
		{'p', 'i', 'n', 'g'},
		{'s', 'e', 'n', 'd', 'h', 'e', 'a', 'd', 'e', 'r', 's'},
		// Right name, garbage in the padding.
		{'v', 'e', 'r', 'a', 'c', 'k', 0, 0, 0, 0, 0, 1},
		{'V', 'E', 'R', 'S', 'I', 'O', 'N'},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
	}
	for _, b := range unknown {
		_, err := CommandFromBytes(b)
		require.True(t, IsErrorCode(err, ErrUnknownCommand), "%x: %v", b, err)
	}
}

// TestBuildVersionGolden ensures a version message is byte for byte the
// captured golden message.
func TestBuildVersionGolden(t *testing.T) {
	you := NewNetAddressAddrPort(netip.MustParseAddrPort("79.116.148.118:8333"), 0)
	me := NewNetAddressAddrPort(netip.MustParseAddrPort("0.0.0.0:0"), 0)
	msg := NewMsgVersion(me, you, 0x6517e68c5db32e3b, 0)
	msg.Timestamp = time.Unix(1693259353, 0)
	msg.UserAgent = "emil-handshake"

	sm, err := BuildMessage(msg, MainNet)
	require.NoError(t, err)

	want := mustDecodeHex(t, goldenVersion)
	require.Equal(t, want[:MessageHeaderSize], sm.Header)
	require.Equal(t, want[MessageHeaderSize:], sm.Payload)
	require.Equal(t, want, sm.Bytes())
	require.Equal(t, msg.SerializeSize(), len(sm.Payload))

	// Decoding the golden payload yields the same message back.
	var got MsgVersion
	require.NoError(t, got.BtcDecode(bytes.NewReader(sm.Payload)))
	require.Equal(t, msg.Nonce, got.Nonce)
	require.Equal(t, msg.UserAgent, got.UserAgent)
	require.True(t, msg.Timestamp.Equal(got.Timestamp))
	require.True(t, msg.AddrYou.IP.Equal(got.AddrYou.IP))
	require.Equal(t, uint16(8333), got.AddrYou.Port)
}

// TestBuildVerAck ensures verack messages carry no payload and the fixed
// empty payload checksum.
func TestBuildVerAck(t *testing.T) {
	sm, err := BuildMessage(NewMsgVerAck(), MainNet)
	require.NoError(t, err)
	require.Empty(t, sm.Payload)

	want := []byte{
		0xf9, 0xbe, 0xb4, 0xd9,
		0x76, 0x65, 0x72, 0x61, 0x63, 0x6b, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x5d, 0xf6, 0xe0, 0xe2,
	}
	require.Equal(t, want, sm.Header)
}

// fakeMessage lets tests push arbitrary payloads through BuildMessage.
type fakeMessage struct {
	command Command
	payload []byte
	err     error
}

func (m *fakeMessage) BtcDecode(r io.Reader) error { return nil }

func (m *fakeMessage) BtcEncode(w io.Writer) error {
	if m.err != nil {
		return m.err
	}
	_, err := w.Write(m.payload)
	return err
}

func (m *fakeMessage) Command() Command { return m.command }

// TestBuildMessageErrors ensures encoding defects surface as serialization
// errors.
func TestBuildMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"long command", &fakeMessage{command: "averylongcommand"}},
		{"verack with payload", &fakeMessage{command: CmdVerAck, payload: []byte{1}}},
		{"encode failure", &fakeMessage{command: CmdVersion, err: io.ErrShortWrite}},
		{"user agent too long", &MsgVersion{UserAgent: strings.Repeat("a", MaxUserAgentLen+1)}},
	}

	for _, test := range tests {
		_, err := BuildMessage(test.msg, MainNet)
		require.True(t, IsErrorCode(err, ErrSerialization), "%s: %v",
			test.name, err)
	}
}

// TestBtcdReadsOurMessages checks the framing against an independent
// implementation: btcd must accept our version and verack messages,
// including their checksums.
func TestBtcdReadsOurMessages(t *testing.T) {
	you := NewNetAddressAddrPort(netip.MustParseAddrPort("[2001:db8::1]:18333"), SFNodeNetwork)
	me := NewNetAddressAddrPort(netip.MustParseAddrPort("127.0.0.1:18444"), 0)
	msg := NewMsgVersion(me, you, 42, 800000)
	msg.Relay = true

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, msg, TestNet3)
	require.NoError(t, err)
	_, err = WriteMessage(&buf, NewMsgVerAck(), TestNet3)
	require.NoError(t, err)

	pver := btcdwire.ProtocolVersion
	got, _, err := btcdwire.ReadMessage(&buf, pver, btcdwire.TestNet3)
	require.NoError(t, err)
	gotVersion, ok := got.(*btcdwire.MsgVersion)
	require.True(t, ok, "got %T", got)
	require.Equal(t, msg.ProtocolVersion, gotVersion.ProtocolVersion)
	require.Equal(t, msg.Nonce, gotVersion.Nonce)
	require.Equal(t, msg.UserAgent, gotVersion.UserAgent)
	require.Equal(t, msg.LastBlock, gotVersion.LastBlock)
	require.False(t, gotVersion.DisableRelayTx)
	require.True(t, msg.AddrYou.IP.Equal(gotVersion.AddrYou.IP))
	require.Equal(t, msg.AddrYou.Port, gotVersion.AddrYou.Port)
	require.Equal(t, uint64(msg.AddrYou.Services), uint64(gotVersion.AddrYou.Services))
	require.True(t, msg.AddrMe.IP.Equal(gotVersion.AddrMe.IP))

	got, _, err = btcdwire.ReadMessage(&buf, pver, btcdwire.TestNet3)
	require.NoError(t, err)
	require.IsType(t, &btcdwire.MsgVerAck{}, got)
}

// TestDecodeBtcdVersion ensures a version message produced by btcd decodes.
func TestDecodeBtcdVersion(t *testing.T) {
	you := btcdwire.NewNetAddressIPPort(net.ParseIP("10.0.0.2"), 8333, btcdwire.SFNodeNetwork)
	me := btcdwire.NewNetAddressIPPort(net.ParseIP("10.0.0.1"), 8333, 0)
	bmsg := btcdwire.NewMsgVersion(me, you, 0x1122334455667788, 123)
	bmsg.ProtocolVersion = int32(ProtocolVersion)

	var buf bytes.Buffer
	err := btcdwire.WriteMessage(&buf, bmsg, btcdwire.ProtocolVersion, btcdwire.MainNet)
	require.NoError(t, err)

	hdr, err := ParseHeader(buf.Next(MessageHeaderSize))
	require.NoError(t, err)
	require.Equal(t, MainNet, hdr.Net)
	require.Equal(t, int(hdr.Length), buf.Len())
	require.Equal(t, Checksum(buf.Bytes()), hdr.Checksum)

	var msg MsgVersion
	require.NoError(t, msg.BtcDecode(&buf))
	require.Equal(t, bmsg.Nonce, msg.Nonce)
	require.Equal(t, bmsg.UserAgent, msg.UserAgent)
	require.Equal(t, bmsg.LastBlock, msg.LastBlock)
	require.Equal(t, !bmsg.DisableRelayTx, msg.Relay)
	require.True(t, bmsg.AddrYou.IP.Equal(msg.AddrYou.IP))
	require.Equal(t, bmsg.AddrYou.Port, msg.AddrYou.Port)
	require.True(t, msg.AddrYou.HasService(SFNodeNetwork))
	require.Equal(t, bmsg.Timestamp.Unix(), msg.Timestamp.Unix())
}
