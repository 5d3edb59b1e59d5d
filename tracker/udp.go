package tracker

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/anacrolix/log"

	"github.com/anacrolix/trackerclient/tracker/compact"
	"github.com/anacrolix/trackerclient/tracker/shared"
	"github.com/anacrolix/trackerclient/tracker/udp"
)

// Satisfied by *net.Resolver and *dnscache.Resolver.
type Resolver interface {
	LookupHost(ctx context.Context, host string) (addrs []string, err error)
}

var _ Resolver = net.DefaultResolver

func udpNetwork(ep Endpoint, opts *Options) string {
	if ep.UdpNetwork != "" {
		return ep.UdpNetwork
	}
	if opts.UdpNetwork != "" {
		return opts.UdpNetwork
	}
	return "udp"
}

func addrMatchesNetwork(addr netip.Addr, network string) bool {
	switch network {
	case "udp4":
		return addr.Is4()
	case "udp6":
		return addr.Is6()
	}
	return true
}

// Returns the first address for the host usable on the network.
func resolveUdpAddr(ctx context.Context, r Resolver, network, host, port string) (ret netip.AddrPort, err error) {
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		err = fmt.Errorf("parsing port: %w", err)
		return
	}
	var hosts []string
	if _, parseErr := netip.ParseAddr(host); parseErr == nil {
		hosts = []string{host}
	} else {
		hosts, err = r.LookupHost(ctx, host)
		if err != nil {
			err = shared.WrapNetError("resolving tracker host", err)
			return
		}
	}
	for _, h := range hosts {
		addr, parseErr := netip.ParseAddr(h)
		if parseErr != nil {
			continue
		}
		addr = addr.Unmap().WithZone("")
		if addrMatchesNetwork(addr, network) {
			ret = netip.AddrPortFrom(addr, uint16(portNum))
			return
		}
	}
	err = &shared.TransportError{
		Op:  "resolving tracker host",
		Err: fmt.Errorf("no %v addresses for %q in %q", network, host, hosts),
	}
	return
}

func announceUdp(ctx context.Context, ep Endpoint, req AnnounceRequest, opts *Options) (ret AnnounceResponse, err error) {
	network := udpNetwork(ep, opts)
	resolver := opts.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addr, err := resolveUdpAddr(ctx, resolver, network, ep.URL.Hostname(), ep.URL.Port())
	if err != nil {
		return
	}
	logger := opts.logger().WithNames("udp")
	cl := udp.Client{
		Socket: opts.UdpSocket,
		Addr:   addr,
		Logger: logger,
	}
	if cl.Socket == nil {
		var cc *udp.ConnClient
		cc, err = udp.NewConnClient(udp.NewConnClientOpts{
			Network: network,
			Addr:    addr,
			Logger:  logger,
		})
		if err != nil {
			err = &shared.TransportError{Op: "opening udp socket", Err: err}
			return
		}
		defer cc.Close()
		cl = cc.Client
	}
	connIds := opts.ConnIds
	if connIds == nil {
		connIds = &DefaultConnIds
	}
	key := udp.ConnIdKey{
		Endpoint:  ep.URL.String(),
		LocalAddr: cl.Socket.LocalAddr().String(),
		Remote:    addr,
	}
	connId, err := connIds.Get(ctx, key, cl.Connect)
	if err != nil {
		return
	}
	if req.IPAddress == 0 && opts.ClientIp4.Ok {
		req.IPAddress = compact.IPv4Field(opts.ClientIp4.Value)
	}
	var udpOpts udp.Options
	if ep.URL.Path != "" || ep.URL.RawQuery != "" {
		udpOpts.RequestUri = ep.URL.RequestURI()
	}
	resp, err := cl.Announce(ctx, connId, req, udpOpts)
	if err != nil {
		// The tracker may have forgotten the connection ID, or the reply was lost.
		connIds.Invalidate(key)
		logger.Levelf(log.Debug, "invalidated connection id for %v", key)
		return
	}
	ret.Interval = resp.Interval
	ret.Leechers = resp.Leechers
	ret.Seeders = resp.Seeders
	ret.Peers = resp.Peers
	return
}
