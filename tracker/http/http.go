package httpTracker

import (
	"bytes"
	"context"
	"expvar"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/httptoo"

	"github.com/anacrolix/torrent/bencode"

	"github.com/anacrolix/trackerclient/tracker/shared"
	"github.com/anacrolix/trackerclient/tracker/udp"
	"github.com/anacrolix/trackerclient/version"
)

var vars = expvar.NewMap("tracker/http")

const DefaultTimeout = 25 * time.Second

// Announce response bodies beyond this are rejected as malformed.
const MaxResponseSize = 1 << 20

type AnnounceRequest = udp.AnnounceRequest

type AnnounceOpt struct {
	UserAgent  string
	HostHeader string
	ClientIp4  generics.Option[netip.Addr]
	ClientIp6  generics.Option[netip.Addr]
}

type AnnounceResponse struct {
	Interval    int32 // Minimum seconds the local peer should wait before next announce.
	MinInterval int32
	Leechers    int32
	Seeders     int32
	Peers       []shared.Peer
	TrackerId   string
	Warning     string
}

type ProxyFunc func(*http.Request) (*url.URL, error)

type NewClientOpts struct {
	// Used as is if set, and the other fields are ignored.
	HttpClient *http.Client
	// Defaults to http.ProxyFromEnvironment.
	Proxy       ProxyFunc
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
	Logger      log.Logger
}

type Client struct {
	hc     *http.Client
	url_   *url.URL
	logger log.Logger
}

func NewClient(url_ *url.URL, opts NewClientOpts) Client {
	logger := opts.Logger
	if logger.IsZero() {
		logger = log.Default.WithNames("tracker", "http")
	}
	hc := opts.HttpClient
	if hc == nil {
		proxy := opts.Proxy
		if proxy == nil {
			proxy = http.ProxyFromEnvironment
		}
		dialContext := opts.DialContext
		if dialContext == nil {
			dialContext = (&net.Dialer{Timeout: DefaultTimeout}).DialContext
		}
		hc = &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				DialContext:           dialContext,
				Proxy:                 proxy,
				TLSHandshakeTimeout:   DefaultTimeout,
				ResponseHeaderTimeout: DefaultTimeout,
				MaxIdleConns:          1,
				DisableKeepAlives:     true,
			},
		}
	}
	return Client{
		hc:     hc,
		url_:   url_,
		logger: logger,
	}
}

func (cl Client) URL() *url.URL {
	return httptoo.CopyURL(cl.url_)
}

func setAnnounceParams(_url *url.URL, ar *AnnounceRequest, opts AnnounceOpt) {
	// Any query already in the announce URL goes last.
	existing := _url.Query().Encode()
	var b strings.Builder
	add := func(key, value string) {
		if b.Len() != 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
	}
	add("key", strconv.FormatUint(uint64(ar.Key), 10))
	add("peer_id", url.QueryEscape(string(ar.PeerId[:])))
	// AFAICT, port is mandatory, and there's no implied port key.
	add("port", strconv.FormatUint(uint64(ar.Port), 10))
	add("uploaded", strconv.FormatUint(ar.Uploaded, 10))
	add("downloaded", strconv.FormatUint(ar.Downloaded, 10))
	// The AWS S3 tracker returns "400 Bad Request: left(-1) was not in the valid range 0 -
	// 9223372036854775807" if left is out of range, or "500 Internal Server Error: Internal Server
	// Error" if omitted entirely.
	add("left", strconv.FormatUint(ar.Left&math.MaxInt64, 10))
	if ar.Event != shared.AnnounceEventNone {
		add("event", ar.Event.String())
	}
	// http://stackoverflow.com/questions/17418004/why-does-tracker-server-not-understand-my-request-bittorrent-protocol
	add("compact", "1")
	// According to https://wiki.vuze.com/w/Message_Stream_Encryption.
	add("supportcrypto", "1")
	add("numwant", strconv.FormatInt(int64(shared.NumWant(ar.Left)), 10))
	// BEP 3 mentions having an "ip" param, and BEP 7 says we can list addresses for other
	// address-families, although it's not encouraged.
	if opts.ClientIp4.Ok {
		add("ip", url.QueryEscape(opts.ClientIp4.Value.String()))
	} else if opts.ClientIp6.Ok {
		add("ip", url.QueryEscape(opts.ClientIp6.Value.String()))
	}
	if opts.ClientIp4.Ok {
		add("ipv4", url.QueryEscape(opts.ClientIp4.Value.String()))
	}
	if opts.ClientIp6.Ok {
		add("ipv6", url.QueryEscape(opts.ClientIp6.Value.String()))
	}
	// https://github.com/anacrolix/torrent/issues/534
	add("info_hash", strings.ReplaceAll(url.QueryEscape(string(ar.InfoHash[:])), "+", "%20"))
	if existing != "" {
		b.WriteByte('&')
		b.WriteString(existing)
	}
	_url.RawQuery = b.String()
}

func (cl Client) Announce(ctx context.Context, ar AnnounceRequest, opt AnnounceOpt) (ret AnnounceResponse, err error) {
	_url := httptoo.CopyURL(cl.url_)
	setAnnounceParams(_url, &ar, opt)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, _url.String(), nil)
	if err != nil {
		return
	}
	userAgent := opt.UserAgent
	if userAgent == "" {
		userAgent = version.DefaultHttpUserAgent
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Host = opt.HostHeader
	cl.logger.Levelf(log.Debug, "announcing to %v", _url)
	resp, err := cl.hc.Do(req)
	if err != nil {
		vars.Add("http announce transport errors", 1)
		err = shared.WrapNetError("doing http request", err)
		return
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = io.Copy(&buf, io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		err = shared.WrapNetError("reading response body", err)
		return
	}
	if buf.Len() > MaxResponseSize {
		vars.Add("http announce oversize responses", 1)
		err = fmt.Errorf("%w: response body exceeds %v bytes", shared.ErrMalformedResponse, MaxResponseSize)
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		vars.Add("http announce bad status", 1)
		err = &shared.TransportError{
			Op:  "response from tracker",
			Err: fmt.Errorf("%s: %s", resp.Status, buf.String()),
		}
		return
	}
	var trackerResponse HttpResponse
	err = bencode.Unmarshal(buf.Bytes(), &trackerResponse)
	if _, ok := err.(bencode.ErrUnusedTrailingBytes); ok {
		err = nil
	} else if err != nil {
		vars.Add("http announce malformed responses", 1)
		err = fmt.Errorf("%w: decoding %q: %v", shared.ErrMalformedResponse, buf.Bytes(), err)
		return
	}
	if trackerResponse.FailureReason != "" {
		vars.Add("http announce failure reasons", 1)
		err = shared.TrackerFailure{Reason: trackerResponse.FailureReason}
		return
	}
	vars.Add("successful http announces", 1)
	if trackerResponse.WarningMessage != "" {
		cl.logger.Levelf(log.Warning, "tracker %v warning: %q", cl.url_, trackerResponse.WarningMessage)
	}
	ret.Interval = shared.DefaultInterval
	if trackerResponse.Interval != nil {
		ret.Interval = *trackerResponse.Interval
	}
	ret.MinInterval = trackerResponse.MinInterval
	ret.Leechers = trackerResponse.Incomplete
	ret.Seeders = trackerResponse.Complete
	ret.TrackerId = trackerResponse.TrackerId
	ret.Warning = trackerResponse.WarningMessage
	if len(trackerResponse.Peers.List) != 0 {
		vars.Add("http responses with nonempty peers key", 1)
	}
	ret.Peers = trackerResponse.Peers.List
	if len(trackerResponse.Peers6) != 0 {
		vars.Add("http responses with nonempty peers6 key", 1)
	}
	ret.Peers = append(ret.Peers, trackerResponse.Peers6...)
	cl.logger.Levelf(log.Debug, "announce response from %v: interval %v, %v peers", cl.url_, ret.Interval, len(ret.Peers))
	return
}
