package udp

import (
	"net"
	"net/netip"

	"github.com/anacrolix/log"

	"github.com/anacrolix/trackerclient/tracker/compact"
)

type NewConnClientOpts struct {
	// The network to operate to use, such as "udp4", "udp", "udp6".
	Network string
	// Resolved tracker address.
	Addr netip.AddrPort
	// If non-zero, forces either IPv4 or IPv6 peers in the UDP tracker wire protocol.
	Family compact.AddrFamily
	Ids    TransactionIdSource
	Logger log.Logger
}

// A Client with its own socket, for when the caller doesn't have one to share.
type ConnClient struct {
	Client Client
	conn   net.PacketConn
}

func familyForNetwork(network string) compact.AddrFamily {
	switch network {
	case "udp4":
		return compact.AddrFamilyIpv4
	case "udp6":
		return compact.AddrFamilyIpv6
	}
	return 0
}

func NewConnClient(opts NewConnClientOpts) (cc *ConnClient, err error) {
	if opts.Network == "" {
		opts.Network = "udp"
	}
	conn, err := net.ListenPacket(opts.Network, ":0")
	if err != nil {
		return
	}
	family := opts.Family
	if family == 0 {
		family = familyForNetwork(opts.Network)
	}
	cc = &ConnClient{
		Client: Client{
			Socket: conn,
			Addr:   opts.Addr,
			Family: family,
			Ids:    opts.Ids,
			Logger: opts.Logger,
		},
		conn: conn,
	}
	return
}

func (cc *ConnClient) Close() error {
	return cc.conn.Close()
}

func (cc *ConnClient) LocalAddr() net.Addr {
	return cc.conn.LocalAddr()
}
