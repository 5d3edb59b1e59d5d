// Package udptest provides a scriptable in-process UDP tracker for testing clients.
package udptest

import (
	"bytes"
	"context"
	"encoding"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"testing"

	"github.com/anacrolix/dht/v2/krpc"
	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2"
	"github.com/anacrolix/sync"

	"github.com/anacrolix/trackerclient/tracker/udp"
)

type Torrent struct {
	Leechers int32
	Seeders  int32
	Peers    []krpc.NodeAddr
}

// An announce as the server received it.
type Announce struct {
	ConnectionId udp.ConnectionId
	Request      udp.AnnounceRequest
	// Whatever followed the fixed size request, which is BEP 41 options.
	Options []byte
	Source  net.Addr
}

type Server struct {
	PacketConn net.PacketConn
	Torrents   map[udp.InfoHash]Torrent
	// Defaults to 900.
	Interval int32
	// If set, connect requests get an error action with this message.
	ConnectError string
	// If set, announces get an error action with this message.
	AnnounceError string
	// Returning true drops the request without a reply.
	Drop   func(udp.RequestHeader) bool
	Logger log.Logger

	mu        sync.Mutex
	conns     map[udp.ConnectionId]struct{}
	connects  int
	announces []Announce
}

// Starts a Server on a loopback socket for the network, closing it when the test ends. The
// configure funcs are applied before serving starts.
func New(t testing.TB, network string, configure ...func(*Server)) *Server {
	t.Helper()
	host := "127.0.0.1"
	if network == "udp6" {
		host = "::1"
	}
	pc, err := net.ListenPacket(network, net.JoinHostPort(host, "0"))
	if err != nil {
		t.Fatal(err)
	}
	s := &Server{
		PacketConn: pc,
		Torrents:   make(map[udp.InfoHash]Torrent),
		Logger:     log.Default.WithNames("udptest"),
	}
	for _, f := range configure {
		f(s)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		pc.Close()
		<-done
	})
	return s
}

func (s *Server) Addr() *net.UDPAddr {
	return s.PacketConn.LocalAddr().(*net.UDPAddr)
}

func (s *Server) AddrPort() netip.AddrPort {
	ap := s.Addr().AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Number of connect requests handled, including ones that were answered with errors.
func (s *Server) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *Server) Announces() []Announce {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Announce(nil), s.announces...)
}

func (s *Server) SetTorrent(ih udp.InfoHash, t Torrent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Torrents[ih] = t
}

// Forgets all issued connection IDs, so announces using them are rejected.
func (s *Server) ExpireConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.conns)
}

func (s *Server) Serve(ctx context.Context) error {
	for {
		err := s.ServeOne()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return err
		}
		if err != nil {
			s.Logger.Levelf(log.Debug, "serving request: %v", err)
		}
	}
}

func (s *Server) respond(addr net.Addr, rh udp.ResponseHeader, parts ...interface{}) (err error) {
	var buf bytes.Buffer
	for _, p := range append([]interface{}{rh}, parts...) {
		err = udp.Write(&buf, p)
		if err != nil {
			return
		}
	}
	_, err = s.PacketConn.WriteTo(buf.Bytes(), addr)
	return
}

func (s *Server) newConn() (ret udp.ConnectionId) {
	ret = rand.Uint64()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[udp.ConnectionId]struct{})
	}
	s.conns[ret] = struct{}{}
	s.connects++
	return
}

func (s *Server) connected(id udp.ConnectionId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[id]
	return ok
}

func (s *Server) ServeOne() (err error) {
	b := make([]byte, 0x10000)
	n, addr, err := s.PacketConn.ReadFrom(b)
	if err != nil {
		return
	}
	r := bytes.NewReader(b[:n])
	var h udp.RequestHeader
	err = udp.Read(r, &h)
	if err != nil {
		return
	}
	if s.Drop != nil && s.Drop(h) {
		return
	}
	switch h.Action {
	case udp.ActionConnect:
		if h.ConnectionId != udp.ConnectRequestConnectionId {
			return fmt.Errorf("bad connect request connection id %x", h.ConnectionId)
		}
		connId := s.newConn()
		if s.ConnectError != "" {
			return s.respondError(addr, h.TransactionId, s.ConnectError)
		}
		return s.respond(addr, udp.ResponseHeader{
			Action:        udp.ActionConnect,
			TransactionId: h.TransactionId,
		}, udp.ConnectionResponse{
			ConnectionId: connId,
		})
	case udp.ActionAnnounce:
		if !s.connected(h.ConnectionId) {
			return s.respondError(addr, h.TransactionId, "not connected")
		}
		var ar udp.AnnounceRequest
		err = udp.Read(r, &ar)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.announces = append(s.announces, Announce{
			ConnectionId: h.ConnectionId,
			Request:      ar,
			Options:      bytes.Clone(b[n-r.Len() : n]),
			Source:       addr,
		})
		t := s.Torrents[ar.InfoHash]
		s.mu.Unlock()
		if s.AnnounceError != "" {
			return s.respondError(addr, h.TransactionId, s.AnnounceError)
		}
		bm := func() encoding.BinaryMarshaler {
			if missinggo.AddrIP(addr).To4() != nil {
				return krpc.CompactIPv4NodeAddrs(t.Peers)
			}
			return krpc.CompactIPv6NodeAddrs(t.Peers)
		}()
		var peers []byte
		peers, err = bm.MarshalBinary()
		if err != nil {
			return
		}
		interval := s.Interval
		if interval == 0 {
			interval = 900
		}
		return s.respond(addr, udp.ResponseHeader{
			Action:        udp.ActionAnnounce,
			TransactionId: h.TransactionId,
		}, udp.AnnounceResponseHeader{
			Interval: interval,
			Leechers: t.Leechers,
			Seeders:  t.Seeders,
		}, peers)
	default:
		s.respondError(addr, h.TransactionId, "unhandled action")
		return fmt.Errorf("unhandled action: %v", h.Action)
	}
}

func (s *Server) respondError(addr net.Addr, tId udp.TransactionId, msg string) error {
	return s.respond(addr, udp.ResponseHeader{
		Action:        udp.ActionError,
		TransactionId: tId,
	}, []byte(msg))
}
