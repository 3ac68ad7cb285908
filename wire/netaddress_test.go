package wire

import (
	"bytes"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNetAddressEncoding tests the NetAddress wire encoding for IPv4 and
// IPv6 addresses.
func TestNetAddressEncoding(t *testing.T) {
	tests := []struct {
		in   *NetAddress
		want []byte
	}{
		{
			NewNetAddressAddrPort(netip.MustParseAddrPort("127.0.0.1:8333"), SFNodeNetwork),
			[]byte{
				0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // SFNodeNetwork
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0xff, 0xff, 0x7f, 0x00, 0x00, 0x01, // IP 127.0.0.1
				0x20, 0x8d, // Port 8333 in big-endian
			},
		},
		{
			NewNetAddressAddrPort(netip.MustParseAddrPort("[2001:db8::ff00:42:8329]:18444"), 0),
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x20, 0x01, 0x0d, 0xb8, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0xff, 0x00, 0x00, 0x42, 0x83, 0x29,
				0x48, 0x0c,
			},
		},
		{
			// Nil IP is written as all zeros.
			&NetAddress{Port: 1},
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x01,
			},
		},
	}

	for i, test := range tests {
		var buf bytes.Buffer
		require.NoError(t, writeNetAddress(&buf, test.in), "test #%d", i)
		require.Equal(t, test.want, buf.Bytes(), "test #%d", i)
		require.Len(t, buf.Bytes(), netAddressSize)

		var na NetAddress
		require.NoError(t, readNetAddress(&buf, &na), "test #%d", i)
		require.Equal(t, test.in.Services, na.Services, "test #%d", i)
		require.Equal(t, test.in.Port, na.Port, "test #%d", i)
		if test.in.IP != nil {
			require.True(t, test.in.IP.Equal(na.IP), "test #%d", i)
		}
	}
}

// TestNetAddressWords ensures addresses expose the eight 16-bit words of
// their IPv6 form, with IPv4 under ::ffff:.
func TestNetAddressWords(t *testing.T) {
	na := NewNetAddressIPPort(net.ParseIP("79.116.148.118"), 8333, 0)
	require.Equal(t, [8]uint16{0, 0, 0, 0, 0, 0xffff, 0x4f74, 0x9476}, na.Words())

	na = NewNetAddress(&net.TCPAddr{IP: net.ParseIP("fe80::1"), Port: 1}, 0)
	require.Equal(t, [8]uint16{0xfe80, 0, 0, 0, 0, 0, 0, 1}, na.Words())
	require.Equal(t, uint16(1), na.Port)

	require.Equal(t, [8]uint16{}, (&NetAddress{}).Words())
}

// TestNetAddressServices exercises the service helpers.
func TestNetAddressServices(t *testing.T) {
	na := NewNetAddressIPPort(net.ParseIP("127.0.0.1"), 8333, 0)
	require.False(t, na.HasService(SFNodeWitness))
	na.AddService(SFNodeWitness)
	require.True(t, na.HasService(SFNodeWitness))
}
