package udp

import (
	"context"

	"github.com/anacrolix/trackerclient/tracker/shared"
)

type ScrapeRequest []InfoHash

// Returns the complete scrape datagram. Up to about 74 info hashes fit in one request.
func MarshalScrapeRequest(connId ConnectionId, tId TransactionId, ihs []InfoHash) []byte {
	return mustMarshal(
		RequestHeader{
			ConnectionId:  connId,
			Action:        ActionScrape,
			TransactionId: tId,
		},
		ScrapeRequest(ihs),
	)
}

// Scrape responses aren't decoded yet, so this doesn't send anything.
func (cl *Client) Scrape(ctx context.Context, connId ConnectionId, ihs []InfoHash) error {
	return shared.ErrScrapeUnsupported
}
