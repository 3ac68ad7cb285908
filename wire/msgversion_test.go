package wire

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

// newVersionFuzzer returns a fuzzer that fills a MsgVersion with arbitrary
// but encodable values.
func newVersionFuzzer(seed int64) *fuzz.Fuzzer {
	return fuzz.NewWithSeed(seed).NilChance(0).Funcs(
		func(na *NetAddress, c fuzz.Continue) {
			c.Fuzz(&na.Services)
			c.Fuzz(&na.Port)
			if c.RandBool() {
				na.IP = net.IPv4(byte(c.Intn(256)), byte(c.Intn(256)),
					byte(c.Intn(256)), byte(c.Intn(256)))
				return
			}
			ip := make(net.IP, net.IPv6len)
			for i := range ip {
				ip[i] = byte(c.Intn(256))
			}
			// Keep clear of the IPv4-mapped range.
			ip[0] = 0x20
			na.IP = ip
		},
		func(s *string, c fuzz.Continue) {
			b := make([]byte, c.Intn(MaxUserAgentLen+1))
			for i := range b {
				b[i] = byte(c.Intn(256))
			}
			*s = string(b)
		},
		func(ts *time.Time, c fuzz.Continue) {
			*ts = time.Unix(c.Int63n(1<<40)-1<<39, 0)
		},
	)
}

// TestVersionRoundTrip ensures decoding an encoded version message gives
// back the same field values for arbitrary timestamps, nonces and addresses.
func TestVersionRoundTrip(t *testing.T) {
	f := newVersionFuzzer(1)

	for i := 0; i < 500; i++ {
		var want MsgVersion
		f.Fuzz(&want)

		var buf bytes.Buffer
		require.NoError(t, want.BtcEncode(&buf), "encode #%d", i)
		require.Equal(t, want.SerializeSize(), buf.Len(), "size #%d", i)

		var got MsgVersion
		require.NoError(t, got.BtcDecode(&buf), "decode #%d", i)
		require.Zero(t, buf.Len(), "trailing bytes #%d", i)

		require.True(t, want.Timestamp.Equal(got.Timestamp),
			"timestamp #%d: got %v want %v", i, got.Timestamp, want.Timestamp)
		got.Timestamp = want.Timestamp
		require.Equal(t, want, got, "round trip #%d:\ngot %s\nwant %s", i,
			spew.Sdump(got), spew.Sdump(want))
	}
}

// TestVersionDecodeShort ensures every truncation of a valid payload is a
// serialization error rather than a panic.
func TestVersionDecodeShort(t *testing.T) {
	var msg MsgVersion
	newVersionFuzzer(2).Fuzz(&msg)

	var buf bytes.Buffer
	require.NoError(t, msg.BtcEncode(&buf))
	payload := buf.Bytes()

	for n := 0; n < len(payload); n++ {
		var got MsgVersion
		err := got.BtcDecode(bytes.NewReader(payload[:n]))
		require.True(t, IsErrorCode(err, ErrSerialization),
			"truncated to %d: %v", n, err)
	}
}

// TestVersionServices exercises the service helpers.
func TestVersionServices(t *testing.T) {
	msg := NewMsgVersion(&NetAddress{}, &NetAddress{}, 0, 0)
	require.False(t, msg.HasService(SFNodeNetwork))
	msg.AddService(SFNodeNetwork)
	require.True(t, msg.HasService(SFNodeNetwork))
	require.Equal(t, ProtocolVersion, msg.ProtocolVersion)
	require.Equal(t, DefaultUserAgent, msg.UserAgent)
	require.Equal(t, CmdVersion, msg.Command())
}
