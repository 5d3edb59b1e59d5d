package udp

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2/panicif"
	"go.opentelemetry.io/otel/attribute"

	"github.com/anacrolix/trackerclient/tracker/shared"
)

// Obtains a connection ID from the tracker. Timeouts are retried with a fresh transaction ID, waiting
// twice as long each time, until the 3840s wait also times out.
func (cl *Client) Connect(ctx context.Context) (id ConnectionId, err error) {
	ctx, span := tracer.Start(ctx, "Client.Connect")
	defer span.End()
	defer func() { recordSpanErr(span, err) }()
	for n := 0; n < maxConnectAttempts; n++ {
		span.SetAttributes(attribute.Int("connect.attempts", n+1))
		var h ResponseHeader
		var body []byte
		h, body, err = cl.exchange(ctx, ConnectRequestConnectionId, ActionConnect, nil, timeout(n))
		if errors.Is(err, shared.ErrTimeout) && ctx.Err() == nil {
			cl.logger().Levelf(log.Debug, "connect attempt %v to %v timed out after %v", n+1, cl.Addr, timeout(n))
			continue
		}
		if err != nil {
			err = fmt.Errorf("connecting to %v: %w", cl.Addr, err)
			return
		}
		return connectResponseId(h, body)
	}
	err = fmt.Errorf("connecting to %v: %w after %v attempts", cl.Addr, shared.ErrTimeout, maxConnectAttempts)
	return
}

func connectResponseId(h ResponseHeader, body []byte) (id ConnectionId, err error) {
	switch h.Action {
	case ActionConnect:
	case ActionError:
		// udp://tracker.torrent.eu.org:451/announce frequently returns "Connection ID
		// missmatch.\x00"
		err = shared.TrackerFailure{Reason: string(body)}
		return
	default:
		err = fmt.Errorf("%w: unexpected connect response action %v", shared.ErrMalformedResponse, h.Action)
		return
	}
	if len(body) != 8 {
		err = fmt.Errorf("%w: connect response body has length %v", shared.ErrMalformedResponse, len(body))
		return
	}
	var connResp ConnectionResponse
	err = Read(bytes.NewReader(body), &connResp)
	panicif.Err(err)
	id = connResp.ConnectionId
	return
}
