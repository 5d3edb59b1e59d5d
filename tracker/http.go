package tracker

import (
	"context"

	trHttp "github.com/anacrolix/trackerclient/tracker/http"
)

func announceHttp(ctx context.Context, ep Endpoint, req AnnounceRequest, opts *Options) (ret AnnounceResponse, err error) {
	cl := trHttp.NewClient(ep.URL, trHttp.NewClientOpts{
		HttpClient: opts.HttpClient,
		Proxy:      opts.HTTPProxy,
		Logger:     opts.Logger,
	})
	resp, err := cl.Announce(ctx, req, trHttp.AnnounceOpt{
		UserAgent:  opts.UserAgent,
		HostHeader: opts.HostHeader,
		ClientIp4:  opts.ClientIp4,
		ClientIp6:  opts.ClientIp6,
	})
	if err != nil {
		return
	}
	ret.Interval = resp.Interval
	ret.MinInterval = resp.MinInterval
	ret.Leechers = resp.Leechers
	ret.Seeders = resp.Seeders
	ret.Peers = resp.Peers
	ret.TrackerId = resp.TrackerId
	ret.Warning = resp.Warning
	return
}
