package wire

import (
	"io"
	"net"
	"net/netip"
)

// netAddressSize is the number of bytes a NetAddress occupies inside a
// version message: services 8 bytes + ip 16 bytes + port 2 bytes.
const netAddressSize = 26

// NetAddress defines information about a peer on the network including
// the services it supports, its IP address, and port. The timestamp that
// addr messages carry is not part of the version message encoding and is
// therefore not represented here.
type NetAddress struct {
	// Bitfield which identifies the services supported by the address.
	Services ServiceFlag

	// IP address of the peer.
	IP net.IP

	// Port the peer is using. This is encoded in big endian on the wire
	// which differs from most everything else.
	Port uint16
}

// HasService returns whether the specified service is supported by the
// address.
func (na *NetAddress) HasService(service ServiceFlag) bool {
	return na.Services&service == service
}

// AddService adds service as a supported service by the peer generating
// the message.
func (na *NetAddress) AddService(service ServiceFlag) {
	na.Services |= service
}

// Words returns the address as eight 16-bit words, the representation the
// wire format is defined over. IPv4 addresses appear under ::ffff:.
func (na *NetAddress) Words() [8]uint16 {
	var ip [16]byte
	if na.IP != nil {
		copy(ip[:], na.IP.To16())
	}

	var words [8]uint16
	for i := range words {
		words[i] = bigEndian.Uint16(ip[i*2:])
	}
	return words
}

// NewNetAddressIPPort returns a new NetAddress using the provided IP, port,
// and supported services.
func NewNetAddressIPPort(ip net.IP, port uint16, services ServiceFlag) *NetAddress {
	return &NetAddress{
		Services: services,
		IP:       ip,
		Port:     port,
	}
}

// NewNetAddress returns a new NetAddress using the provided TCP address and
// supported services.
func NewNetAddress(addr *net.TCPAddr, services ServiceFlag) *NetAddress {
	return NewNetAddressIPPort(addr.IP, uint16(addr.Port), services)
}

// NewNetAddressAddrPort returns a new NetAddress using the provided address
// and port. No name resolution takes place.
func NewNetAddressAddrPort(ap netip.AddrPort, services ServiceFlag) *NetAddress {
	addr := ap.Addr()
	var ip net.IP
	if addr.Is4() {
		a4 := addr.As4()
		ip = net.IPv4(a4[0], a4[1], a4[2], a4[3])
	} else {
		a16 := addr.As16()
		ip = net.IP(a16[:])
	}
	return NewNetAddressIPPort(ip, ap.Port(), services)
}

// readNetAddress reads an encoded NetAddress from r.
func readNetAddress(r io.Reader, na *NetAddress) error {
	var ip [16]byte
	err := readElements(r, &na.Services, &ip)
	if err != nil {
		return err
	}

	// Sigh. Bitcoin protocol mixes little and big endian.
	port, err := binarySerializer.Uint16(r, bigEndian)
	if err != nil {
		return err
	}

	*na = NetAddress{
		Services: na.Services,
		IP:       net.IP(ip[:]),
		Port:     port,
	}
	return nil
}

// writeNetAddress serializes a NetAddress to w. IPv4 addresses are
// written in their IPv4-mapped IPv6 form.
func writeNetAddress(w io.Writer, na *NetAddress) error {
	// Ensure to always write 16 bytes even if the ip is nil.
	var ip [16]byte
	if na.IP != nil {
		copy(ip[:], na.IP.To16())
	}
	err := writeElements(w, na.Services, ip)
	if err != nil {
		return err
	}

	// Sigh. Bitcoin protocol mixes little and big endian.
	return binarySerializer.PutUint16(w, bigEndian, na.Port)
}
