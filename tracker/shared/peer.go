package shared

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// A peer as returned by a tracker. ID is only set for the non-compact dictionary form in BEP 3.
type Peer struct {
	IP   net.IP `bencode:"ip"`
	Port int    `bencode:"port"`
	ID   []byte `bencode:"peer id"`
}

func (p Peer) ToNetipAddrPort() (addrPort netip.AddrPort, ok bool) {
	addr, ok := netip.AddrFromSlice(p.IP)
	addrPort = netip.AddrPortFrom(addr.Unmap(), uint16(p.Port))
	return
}

func (p Peer) String() string {
	loc := net.JoinHostPort(p.IP.String(), strconv.FormatInt(int64(p.Port), 10))
	if len(p.ID) != 0 {
		return fmt.Sprintf("%x at %s", p.ID, loc)
	}
	return loc
}
