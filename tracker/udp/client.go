package udp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2"
	"github.com/anacrolix/missinggo/v2/panicif"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anacrolix/trackerclient/tracker/compact"
	"github.com/anacrolix/trackerclient/tracker/shared"
)

var tracer = otel.Tracer("trackerclient.tracker.udp")

// The parts of a net.PacketConn the Client uses.
type Socket interface {
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
}

var _ Socket = (net.PacketConn)(nil)

// Client does request/reply exchanges with a single UDP tracker over a Socket. It doesn't hold any
// connection state itself: connection IDs are returned by Connect and passed to Announce, so
// callers can cache them however they like (see ConnIdCache). A Client must not be used for
// concurrent exchanges on the same Socket, since replies are read by whoever is waiting.
type Client struct {
	Socket Socket
	// The resolved tracker address. Replies from any other address are ignored.
	Addr netip.AddrPort
	// Forces the address family for peers in announce responses. The default is taken from the
	// socket local address, falling back to the tracker address.
	Family compact.AddrFamily
	// Defaults to DefaultTransactionIds.
	Ids TransactionIdSource
	// Defaults to DefaultAnnounceTimeout.
	AnnounceTimeout time.Duration
	Logger          log.Logger
}

func (cl *Client) ids() TransactionIdSource {
	if cl.Ids != nil {
		return cl.Ids
	}
	return DefaultTransactionIds
}

func (cl *Client) announceTimeout() time.Duration {
	if cl.AnnounceTimeout != 0 {
		return cl.AnnounceTimeout
	}
	return DefaultAnnounceTimeout
}

func (cl *Client) logger() log.Logger {
	if cl.Logger.IsZero() {
		return log.Default.WithNames("tracker", "udp")
	}
	return cl.Logger
}

func (cl *Client) family() compact.AddrFamily {
	if cl.Family != 0 {
		return cl.Family
	}
	if f, ok := compact.FamilyOfAddr(cl.Socket.LocalAddr()); ok {
		return f
	}
	return compact.FamilyOfIP(cl.Addr.Addr().AsSlice())
}

func (cl *Client) fromTracker(addr net.Addr) bool {
	ip, ok := netip.AddrFromSlice(missinggo.AddrIP(addr))
	if !ok {
		return false
	}
	return ip.Unmap().WithZone("") == cl.Addr.Addr().Unmap().WithZone("") &&
		missinggo.AddrPort(addr) == int(cl.Addr.Port())
}

// Converts a finished context to an error. Deadlines are timeouts like any other.
func contextError(ctx context.Context) error {
	err := context.Cause(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", shared.ErrTimeout, err)
	}
	return err
}

// Sends a request with a fresh transaction ID, and waits up to timeout for the reply from the
// tracker with the same transaction ID. Datagrams from elsewhere, with other transaction IDs, or
// too short to have a header are ignored, they might be late replies to earlier attempts.
func (cl *Client) exchange(
	ctx context.Context, connId ConnectionId, action Action, body []byte, timeout time.Duration,
) (
	h ResponseHeader, respBody []byte, err error,
) {
	tId := cl.ids().NextId()
	var buf bytes.Buffer
	err = Write(&buf, RequestHeader{
		ConnectionId:  connId,
		Action:        action,
		TransactionId: tId,
	})
	panicif.Err(err)
	buf.Write(body)
	n, err := cl.Socket.WriteTo(buf.Bytes(), net.UDPAddrFromAddrPort(cl.Addr))
	if err == nil && n < buf.Len() {
		err = io.ErrShortWrite
	}
	if err != nil {
		err = &shared.TransportError{Op: "writing request", Err: err}
		return
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	err = cl.Socket.SetReadDeadline(deadline)
	if err != nil {
		err = &shared.TransportError{Op: "setting read deadline", Err: err}
		return
	}
	// Wake the read if the context is cancelled. A wakeup that has started must finish before we
	// return, or it could clobber the deadline of the next exchange on the socket.
	woken := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(woken)
		cl.Socket.SetReadDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			<-woken
		}
	}()
	b := make([]byte, 0x10000) // IP limits packet size to 64KB
	for {
		var addr net.Addr
		n, addr, err = cl.Socket.ReadFrom(b)
		if ctx.Err() != nil {
			err = contextError(ctx)
			return
		}
		if err != nil {
			err = shared.WrapNetError("reading response", err)
			return
		}
		if !cl.fromTracker(addr) {
			cl.logger().Levelf(log.Debug, "ignoring %v byte packet from %v, expected %v", n, addr, cl.Addr)
			continue
		}
		r := bytes.NewReader(b[:n])
		err = Read(r, &h)
		if err != nil {
			cl.logger().Levelf(log.Debug, "ignoring %v byte packet from %v: %v", n, addr, err)
			continue
		}
		if h.TransactionId != tId {
			cl.logger().Levelf(log.Debug, "ignoring response with transaction id %x, expected %x", h.TransactionId, tId)
			continue
		}
		respBody = bytes.Clone(b[n-r.Len() : n])
		err = nil
		return
	}
}

func recordSpanErr(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
}
