package tracker

import (
	"context"
	"net/http"
	"net/netip"
	"net/url"
	"time"

	"github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anacrolix/trackerclient/tracker/shared"
	"github.com/anacrolix/trackerclient/tracker/udp"
)

const (
	None      = shared.AnnounceEventNone
	Started   = shared.AnnounceEventStarted
	Stopped   = shared.AnnounceEventStopped
	Completed = shared.AnnounceEventCompleted
)

type (
	AnnounceRequest = udp.AnnounceRequest
	AnnounceEvent   = shared.AnnounceEvent
	Peer            = shared.Peer
)

type AnnounceResponse struct {
	Interval int32 // Minimum seconds the local peer should wait before next announce.
	Leechers int32
	Seeders  int32
	Peers    []Peer
	// Only from HTTP trackers.
	MinInterval int32
	TrackerId   string
	Warning     string
}

// Applied by Announce.Do when no Context is given. It outlasts one lost UDP connect datagram and a
// full announce wait. Callers wanting the full UDP connect backoff should pass their own Context.
const DefaultTrackerAnnounceTimeout = time.Minute

var tracer = otel.Tracer("trackerclient.tracker")

// Connection IDs are shared by announces that don't provide their own cache. They're only reused by
// announces on the same socket, so reuse needs Options.UdpSocket. Without one each announce opens an
// ephemeral socket and does its own connect handshake, even when concurrent with others to the same
// tracker.
var DefaultConnIds udp.ConnIdCache

type Options struct {
	UserAgent  string
	HostHeader string
	HTTPProxy  func(*http.Request) (*url.URL, error)
	// Overrides the default HTTP client built from the other HTTP options.
	HttpClient *http.Client
	// "udp4", "udp6" or "udp". The tracker URL scheme takes precedence.
	UdpNetwork string
	// Reusing a socket across announces allows connection IDs to be reused. The caller keeps
	// ownership. It must not be used for other announces concurrently.
	UdpSocket udp.Socket
	ClientIp4 generics.Option[netip.Addr]
	ClientIp6 generics.Option[netip.Addr]
	// Defaults to DefaultConnIds.
	ConnIds *udp.ConnIdCache
	// Resolves UDP tracker hosts. Defaults to net.DefaultResolver.
	Resolver Resolver
	Logger   log.Logger
}

func (me *Options) logger() log.Logger {
	if me.Logger.IsZero() {
		return log.Default.WithNames("tracker")
	}
	return me.Logger
}

type Announce struct {
	TrackerUrl string
	Request    AnnounceRequest
	// If nil, DefaultTrackerAnnounceTimeout applies.
	Context context.Context
	Options
}

func (me Announce) Do() (res AnnounceResponse, err error) {
	ctx := me.Context
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultTrackerAnnounceTimeout)
		defer cancel()
	}
	return Request(ctx, me.TrackerUrl, me.Request, me.Options)
}

// Announces to the tracker at the endpoint URL, over HTTP or UDP depending on the scheme. The
// request isn't modified, except that numwant follows the amount left.
func Request(ctx context.Context, endpoint string, req AnnounceRequest, opts Options) (ret AnnounceResponse, err error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return
	}
	ctx, span := tracer.Start(ctx, "Request", trace.WithAttributes(
		attribute.String("tracker.url", endpoint),
		attribute.String("tracker.transport", ep.Kind.String()),
		attribute.String("announce.event", req.Event.String()),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("announce.error_kind", shared.ErrorKindOf(err).String()))
		}
	}()
	req.NumWant = shared.NumWant(req.Left)
	logger := opts.logger()
	logger.Levelf(log.Debug, "announcing %x (event %q) to %v", req.InfoHash, req.Event, endpoint)
	switch ep.Kind {
	case EndpointHttp:
		ret, err = announceHttp(ctx, ep, req, &opts)
	case EndpointUdp:
		ret, err = announceUdp(ctx, ep, req, &opts)
	default:
		err = ErrBadScheme
	}
	if err != nil {
		logger.Levelf(log.Debug, "announce to %v failed: %v", endpoint, err)
		return
	}
	span.SetAttributes(
		attribute.Int("announce.peers", len(ret.Peers)),
		attribute.Int("announce.interval", int(ret.Interval)),
	)
	logger.Levelf(log.Debug, "announce to %v: interval %v, %v seeders, %v leechers, %v peers",
		endpoint, ret.Interval, ret.Seeders, ret.Leechers, len(ret.Peers))
	return
}
