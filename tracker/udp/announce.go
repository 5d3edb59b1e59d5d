package udp

import (
	"bytes"
	"context"
	"fmt"

	"github.com/anacrolix/log"

	"github.com/anacrolix/trackerclient/tracker/compact"
	"github.com/anacrolix/trackerclient/tracker/shared"
)

type AnnounceEvent = shared.AnnounceEvent

// Marshalled as binary by the UDP client, so be careful making changes.
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerId     [20]byte
	Downloaded uint64
	Left       uint64
	Uploaded   uint64
	// Apparently this is optional. None can be used for announces done at regular intervals.
	Event AnnounceEvent
	// Our IPv4 address in network order. 0 tells the tracker to use the packet source address.
	IPAddress uint32
	Key       uint32
	NumWant   int32 // How many peer addresses are desired. Zero means follow Left.
	Port      uint16
} // 82 bytes

type AnnounceResponse struct {
	Interval int32 // Minimum seconds the local peer should wait before next announce.
	Leechers int32
	Seeders  int32
	Peers    []shared.Peer
}

// BEP 41 option type for URL data. The end of options and NOP types are never sent.
const optionTypeURLData = 0x2

type Options struct {
	// The path and query of the tracker URL, passed as BEP 41 URLData.
	RequestUri string
}

func (opts Options) Encode() (ret []byte) {
	uri := opts.RequestUri
	for len(uri) != 0 {
		l := min(len(uri), 0xff)
		ret = append(ret, optionTypeURLData, byte(l))
		ret = append(ret, uri[:l]...)
		uri = uri[l:]
	}
	return
}

// Does a single announce exchange with the given connection ID. There are no retries: if the
// tracker doesn't reply within the announce timeout, the caller should start over with a fresh
// connection ID.
func (cl *Client) Announce(
	ctx context.Context, connId ConnectionId, req AnnounceRequest, opts Options,
) (
	ret AnnounceResponse, err error,
) {
	ctx, span := tracer.Start(ctx, "Client.Announce")
	defer span.End()
	defer func() { recordSpanErr(span, err) }()
	if req.NumWant == 0 {
		req.NumWant = shared.NumWant(req.Left)
	}
	h, body, err := cl.exchange(ctx, connId, ActionAnnounce, append(mustMarshal(req), opts.Encode()...), cl.announceTimeout())
	if err != nil {
		err = fmt.Errorf("announcing: %w", err)
		return
	}
	switch h.Action {
	case ActionAnnounce:
	case ActionError:
		err = shared.TrackerFailure{Reason: string(body)}
		return
	default:
		err = fmt.Errorf("%w: unexpected announce response action %v", shared.ErrMalformedResponse, h.Action)
		return
	}
	r := bytes.NewReader(body)
	var respHdr AnnounceResponseHeader
	err = Read(r, &respHdr)
	if err != nil {
		err = fmt.Errorf("%w: reading announce response header: %v", shared.ErrMalformedResponse, err)
		return
	}
	family := cl.family()
	peers, err := compact.UnmarshalPeers(body[len(body)-r.Len():], family)
	if err != nil {
		err = fmt.Errorf("reading announce response peers: %w", err)
		return
	}
	cl.logger().Levelf(log.Debug, "announce response from %v: %+v, %v %v peers", cl.Addr, respHdr, len(peers), family)
	ret.Interval = respHdr.Interval
	ret.Leechers = respHdr.Leechers
	ret.Seeders = respHdr.Seeders
	ret.Peers = peers
	return
}
