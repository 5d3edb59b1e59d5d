package compact

import (
	"fmt"
	"net"

	"github.com/anacrolix/missinggo/v2"
)

// Discriminates behaviours based on address family in use. BEP 15 says the peers in an announce
// response are IPv6 if the request was made over IPv6, so this is decided from the socket and not
// from the payload.
type AddrFamily int

const (
	AddrFamilyIpv4 AddrFamily = iota + 1
	AddrFamilyIpv6
)

func (me AddrFamily) String() string {
	switch me {
	case AddrFamilyIpv4:
		return "ipv4"
	case AddrFamilyIpv6:
		return "ipv6"
	}
	return fmt.Sprintf("AddrFamily(%d)", int(me))
}

// Length of the address part of a compact peer.
func (me AddrFamily) AddrLen() int {
	switch me {
	case AddrFamilyIpv4:
		return net.IPv4len
	case AddrFamilyIpv6:
		return net.IPv6len
	}
	panic(me)
}

// Length of a compact peer: the address and a 2 byte port.
func (me AddrFamily) GroupSize() int {
	return me.AddrLen() + 2
}

// Determines the family from a local socket address. ok is false if the address doesn't imply a
// family, such as the "[::]" reported by dual-stack sockets bound through the "udp" network.
func FamilyOfAddr(addr net.Addr) (_ AddrFamily, ok bool) {
	ip := missinggo.AddrIP(addr)
	if ip == nil {
		return
	}
	if ip.To4() == nil && ip.IsUnspecified() {
		return
	}
	return FamilyOfIP(ip), true
}

// IPv4-mapped IPv6 addresses are IPv4.
func FamilyOfIP(ip net.IP) AddrFamily {
	if ip.To4() != nil {
		return AddrFamilyIpv4
	}
	return AddrFamilyIpv6
}
