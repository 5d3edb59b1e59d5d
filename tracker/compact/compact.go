// Package compact implements the peer list encodings used by trackers: the compact forms of BEP 23
// and BEP 15 (IPv4) and BEP 7 (IPv6), and the dictionary form of BEP 3.
package compact

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	"github.com/anacrolix/trackerclient/tracker/shared"
)

// The peer list doesn't divide into whole peers for the address family.
type MalformedPeerListError struct {
	Len    int
	Family AddrFamily
}

func (me *MalformedPeerListError) Error() string {
	return fmt.Sprintf(
		"compact %v peer list length %v is not a multiple of %v",
		me.Family, me.Len, me.Family.GroupSize())
}

func (me *MalformedPeerListError) Unwrap() error {
	return shared.ErrMalformedResponse
}

// Decodes a compact peer list for the given address family. Peers are returned in the order they
// appear.
func UnmarshalPeers(b []byte, family AddrFamily) (ret []shared.Peer, err error) {
	groupSize := family.GroupSize()
	if len(b)%groupSize != 0 {
		err = &MalformedPeerListError{Len: len(b), Family: family}
		return
	}
	addrLen := family.AddrLen()
	ret = make([]shared.Peer, 0, len(b)/groupSize)
	for ; len(b) != 0; b = b[groupSize:] {
		ip := make(net.IP, addrLen)
		copy(ip, b[:addrLen])
		ret = append(ret, shared.Peer{
			IP:   ip,
			Port: int(binary.BigEndian.Uint16(b[addrLen:groupSize])),
		})
	}
	return
}

func UnmarshalIPv4Peers(b []byte) ([]shared.Peer, error) {
	return UnmarshalPeers(b, AddrFamilyIpv4)
}

func UnmarshalIPv6Peers(b []byte) ([]shared.Peer, error) {
	return UnmarshalPeers(b, AddrFamilyIpv6)
}

// Encodes peers in compact form. Every peer must have an address of the given family, IPv4-mapped
// IPv6 addresses are accepted for IPv4.
func MarshalPeers(peers []shared.Peer, family AddrFamily) ([]byte, error) {
	b := make([]byte, 0, len(peers)*family.GroupSize())
	for _, p := range peers {
		var ip net.IP
		switch family {
		case AddrFamilyIpv4:
			ip = p.IP.To4()
		case AddrFamilyIpv6:
			if p.IP.To4() == nil {
				ip = p.IP.To16()
			}
		}
		if ip == nil {
			return nil, fmt.Errorf("peer %v is not %v", p, family)
		}
		if p.Port < 0 || p.Port > 0xffff {
			return nil, fmt.Errorf("peer %v has port out of range", p)
		}
		b = append(b, ip...)
		b = binary.BigEndian.AppendUint16(b, uint16(p.Port))
	}
	return b, nil
}

// Returns the value for the IP address field in a UDP announce. Only IPv4 addresses fit, anything
// else is zero, which tells the tracker to use the source address of the packet.
func IPv4Field(addr netip.Addr) uint32 {
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0
	}
	a4 := addr.As4()
	return binary.BigEndian.Uint32(a4[:])
}
