package httpTracker

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/anacrolix/generics"
	qt "github.com/frankban/quicktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/types/infohash"

	"github.com/anacrolix/trackerclient/tracker/shared"
	"github.com/anacrolix/trackerclient/tracker/udp"
	"github.com/anacrolix/trackerclient/version"
)

func TestUnmarshalHTTPResponsePeerDicts(t *testing.T) {
	var hr HttpResponse
	require.NoError(t, bencode.Unmarshal(
		[]byte("d5:peersl"+
			"d2:ip7:1.2.3.47:peer id20:thisisthe20bytepeeri4:porti9999ee"+
			"d2:ip39:2001:0db8:85a3:0000:0000:8a2e:0370:73347:peer id20:thisisthe20bytepeeri4:porti9998ee"+
			"e"+
			"6:peers618:123412341234123456"+
			"e"),
		&hr))

	require.Len(t, hr.Peers.List, 2)
	assert.False(t, hr.Peers.Compact)
	assert.Equal(t, []byte("thisisthe20bytepeeri"), hr.Peers.List[0].ID)
	assert.EqualValues(t, 9999, hr.Peers.List[0].Port)
	assert.EqualValues(t, 9998, hr.Peers.List[1].Port)
	assert.NotNil(t, hr.Peers.List[0].IP)
	assert.NotNil(t, hr.Peers.List[1].IP)

	assert.Len(t, hr.Peers6, 1)
	assert.EqualValues(t, "1234123412341234", hr.Peers6[0].IP)
	assert.EqualValues(t, 0x3536, hr.Peers6[0].Port)
	assert.Nil(t, hr.Interval)
}

func TestUnmarshalHttpResponseNoPeers(t *testing.T) {
	var hr HttpResponse
	require.NoError(t, bencode.Unmarshal(
		[]byte("d6:peers618:123412341234123456e"),
		&hr,
	))
	require.Len(t, hr.Peers.List, 0)
	assert.Len(t, hr.Peers6, 1)
}

func TestUnmarshalHttpResponsePeers6NotCompact(t *testing.T) {
	var hr HttpResponse
	require.Error(t, bencode.Unmarshal(
		[]byte("d6:peers6lee"),
		&hr,
	))
}

func TestUnmarshalHttpResponseCompactPeers(t *testing.T) {
	var hr HttpResponse
	require.NoError(t, bencode.Unmarshal(
		[]byte("d8:intervali1800e12:min intervali60e5:peers6:\x7f\x00\x00\x01\x1a\xe1e"),
		&hr,
	))
	require.NotNil(t, hr.Interval)
	assert.EqualValues(t, 1800, *hr.Interval)
	assert.EqualValues(t, 60, hr.MinInterval)
	assert.True(t, hr.Peers.Compact)
	require.Len(t, hr.Peers.List, 1)
	assert.Equal(t, "127.0.0.1:6881", hr.Peers.List[0].String())
}

func TestUnmarshalHttpResponseMalformedPeers(t *testing.T) {
	var hr HttpResponse
	require.Error(t, bencode.Unmarshal([]byte("d5:peers5:\x7f\x00\x00\x01\x1ae"), &hr))
	require.Error(t, bencode.Unmarshal([]byte("d5:peersi3ee"), &hr))
}

func TestAnnounceMalformedPeers(t *testing.T) {
	cl := newTestTracker(t, &trackerHandler{raw: "d5:peers5:\x7f\x00\x00\x01\x1ae"})
	_, err := cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	require.ErrorIs(t, err, shared.ErrMalformedResponse)
}

// Checks that infohash bytes that correspond to spaces are escaped with %20 instead of +. See
// https://github.com/anacrolix/torrent/issues/534
func TestSetAnnounceInfohashParamWithSpaces(t *testing.T) {
	someUrl := &url.URL{}
	ihBytes := [20]uint8{
		0x2b, 0x76, 0xa, 0xa1, 0x78, 0x93, 0x20, 0x30, 0xc8, 0x47,
		0xdc, 0xdf, 0x8e, 0xae, 0xbf, 0x56, 0xa, 0x1b, 0xd1, 0x6c,
	}
	setAnnounceParams(
		someUrl,
		&udp.AnnounceRequest{
			InfoHash: ihBytes,
		},
		AnnounceOpt{})
	t.Logf("%q", someUrl)
	qt.Assert(t, someUrl.Query().Get("info_hash"), qt.Equals, string(ihBytes[:]))
	qt.Check(t,
		someUrl.String(),
		qt.Contains,
		"info_hash=%2Bv%0A%A1x%93%200%C8G%DC%DF%8E%AE%BFV%0A%1B%D1l")
}

func TestSetAnnounceParams(t *testing.T) {
	c := qt.New(t)
	u, err := url.Parse("http://tracker.example/announce?passkey=abc")
	c.Assert(err, qt.IsNil)
	setAnnounceParams(u, &udp.AnnounceRequest{
		PeerId:     version.RandomPeerId("-TC0100-"),
		Key:        0xdeadbeef,
		Port:       6881,
		Uploaded:   1,
		Downloaded: 2,
		Left:       3,
		Event:      shared.AnnounceEventStarted,
	}, AnnounceOpt{
		ClientIp4: generics.Some(netip.MustParseAddr("1.2.3.4")),
		ClientIp6: generics.Some(netip.MustParseAddr("2001:db8::1")),
	})
	q := u.Query()
	c.Check(q.Get("key"), qt.Equals, "3735928559")
	c.Check(q.Get("port"), qt.Equals, "6881")
	c.Check(q.Get("uploaded"), qt.Equals, "1")
	c.Check(q.Get("downloaded"), qt.Equals, "2")
	c.Check(q.Get("left"), qt.Equals, "3")
	c.Check(q.Get("event"), qt.Equals, "started")
	c.Check(q.Get("compact"), qt.Equals, "1")
	c.Check(q.Get("supportcrypto"), qt.Equals, "1")
	c.Check(q.Get("numwant"), qt.Equals, "100")
	c.Check(q.Get("ip"), qt.Equals, "1.2.3.4")
	c.Check(q.Get("ipv4"), qt.Equals, "1.2.3.4")
	c.Check(q.Get("ipv6"), qt.Equals, "2001:db8::1")
	c.Check(q.Get("passkey"), qt.Equals, "abc")
	c.Check(strings.HasPrefix(q.Get("peer_id"), "-TC0100-"), qt.IsTrue)
	c.Check(strings.HasSuffix(u.RawQuery, "&passkey=abc"), qt.IsTrue)
}

func TestSetAnnounceParamsSeeding(t *testing.T) {
	c := qt.New(t)
	u := &url.URL{}
	setAnnounceParams(u, &udp.AnnounceRequest{Left: 0}, AnnounceOpt{
		ClientIp6: generics.Some(netip.MustParseAddr("2001:db8::1")),
	})
	q := u.Query()
	c.Check(q.Get("numwant"), qt.Equals, "0")
	c.Check(q.Has("event"), qt.IsFalse)
	c.Check(q.Get("ip"), qt.Equals, "2001:db8::1")
	c.Check(q.Has("ipv4"), qt.IsFalse)
}

func TestSetAnnounceParamsUnknownLeft(t *testing.T) {
	u := &url.URL{}
	setAnnounceParams(u, &udp.AnnounceRequest{Left: ^uint64(0)}, AnnounceOpt{})
	qt.Check(t, u.Query().Get("left"), qt.Equals, "9223372036854775807")
}

type trackerHandler struct {
	t      testing.TB
	status int
	body   interface{}
	raw    string
	reqs   chan *http.Request
}

func (me *trackerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case me.reqs <- r:
	default:
	}
	if me.status != 0 {
		w.WriteHeader(me.status)
	}
	if me.raw != "" {
		w.Write([]byte(me.raw))
		return
	}
	b, err := bencode.Marshal(me.body)
	if err != nil {
		me.t.Error(err)
	}
	w.Write(b)
}

func newTestTracker(t *testing.T, h *trackerHandler) Client {
	h.t = t
	h.reqs = make(chan *http.Request, 1)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL + "/announce")
	require.NoError(t, err)
	return NewClient(u, NewClientOpts{})
}

func TestAnnounceFailureReason(t *testing.T) {
	cl := newTestTracker(t, &trackerHandler{
		body: map[string]interface{}{"failure reason": "bad torrent"},
	})
	_, err := cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	var tf shared.TrackerFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, "bad torrent", tf.Reason)
	assert.Equal(t, shared.ErrorKindTrackerFailure, shared.ErrorKindOf(err))
}

func TestAnnounceCompactPeers(t *testing.T) {
	h := &trackerHandler{
		body: map[string]interface{}{
			"interval":        1800,
			"complete":        3,
			"incomplete":      1,
			"peers":           "\x0a\x00\x00\x01\x1a\xe1\x0a\x00\x00\x02\x1a\xe2",
			"tracker id":      "abc",
			"warning message": "slow down",
		},
	}
	cl := newTestTracker(t, h)
	resp, err := cl.Announce(context.Background(), AnnounceRequest{Left: 1}, AnnounceOpt{UserAgent: "test-agent"})
	require.NoError(t, err)
	assert.EqualValues(t, 1800, resp.Interval)
	assert.EqualValues(t, 3, resp.Seeders)
	assert.EqualValues(t, 1, resp.Leechers)
	assert.Equal(t, "abc", resp.TrackerId)
	assert.Equal(t, "slow down", resp.Warning)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "10.0.0.1:6881", resp.Peers[0].String())
	assert.Equal(t, "10.0.0.2:6882", resp.Peers[1].String())
	req := <-h.reqs
	assert.Equal(t, "test-agent", req.Header.Get("User-Agent"))
	assert.Equal(t, "/announce", req.URL.Path)
	assert.Equal(t, "100", req.URL.Query().Get("numwant"))
}

func TestAnnounceDefaultIntervalAndUserAgent(t *testing.T) {
	h := &trackerHandler{
		body: map[string]interface{}{
			"peers":  []interface{}{map[string]interface{}{"ip": "10.0.0.3", "port": 1}},
			"peers6": "\x20\x01\x0d\xb8\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01\x00\x02",
		},
	}
	cl := newTestTracker(t, h)
	resp, err := cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	require.NoError(t, err)
	assert.EqualValues(t, shared.DefaultInterval, resp.Interval)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "10.0.0.3:1", resp.Peers[0].String())
	assert.Equal(t, "[2001:db8::1]:2", resp.Peers[1].String())
	req := <-h.reqs
	assert.Equal(t, version.DefaultHttpUserAgent, req.Header.Get("User-Agent"))
	assert.Equal(t, "0", req.URL.Query().Get("numwant"))
}

func TestAnnounceHostHeader(t *testing.T) {
	h := &trackerHandler{body: map[string]interface{}{}}
	cl := newTestTracker(t, h)
	_, err := cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{HostHeader: "tracker.example"})
	require.NoError(t, err)
	assert.Equal(t, "tracker.example", (<-h.reqs).Host)
}

func TestAnnounceBadStatus(t *testing.T) {
	cl := newTestTracker(t, &trackerHandler{status: http.StatusNotFound, raw: "no such torrent"})
	_, err := cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	var te *shared.TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "no such torrent")
}

func TestAnnounceMalformedBody(t *testing.T) {
	cl := newTestTracker(t, &trackerHandler{raw: "<html>hello</html>"})
	_, err := cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	require.ErrorIs(t, err, shared.ErrMalformedResponse)
}

func TestAnnounceTrailingBytesTolerated(t *testing.T) {
	cl := newTestTracker(t, &trackerHandler{raw: "d8:intervali60eeGARBAGE"})
	resp, err := cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	require.NoError(t, err)
	assert.EqualValues(t, 60, resp.Interval)
}

func TestAnnounceOversizeBody(t *testing.T) {
	cl := newTestTracker(t, &trackerHandler{raw: "d8:intervali60ee" + strings.Repeat("x", MaxResponseSize)})
	_, err := cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	require.ErrorIs(t, err, shared.ErrMalformedResponse)
	assert.ErrorContains(t, err, "exceeds")
}

func TestAnnounceBodyAtSizeLimit(t *testing.T) {
	body := "d8:intervali60ee"
	cl := newTestTracker(t, &trackerHandler{raw: body + strings.Repeat("x", MaxResponseSize-len(body))})
	resp, err := cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	require.NoError(t, err)
	assert.EqualValues(t, 60, resp.Interval)
}

func TestAnnounceTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })
	u, err := url.Parse(srv.URL + "/announce")
	require.NoError(t, err)
	cl := NewClient(u, NewClientOpts{HttpClient: &http.Client{Timeout: 50 * time.Millisecond}})
	_, err = cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	assert.Equal(t, shared.ErrorKindTimeout, shared.ErrorKindOf(err))
}

func TestAnnounceConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	cl := NewClient(&url.URL{Scheme: "http", Host: addr, Path: "/announce"}, NewClientOpts{})
	_, err = cl.Announce(context.Background(), AnnounceRequest{}, AnnounceOpt{})
	assert.Equal(t, shared.ErrorKindTransport, shared.ErrorKindOf(err))
}

func TestPeersMarshalRoundTrip(t *testing.T) {
	c := qt.New(t)
	for _, compact := range []bool{false, true} {
		in := Peers{
			List: []shared.Peer{
				{IP: net.IPv4(1, 2, 3, 4).To4(), Port: 5},
				{IP: net.IPv4(6, 7, 8, 9).To4(), Port: 10},
			},
			Compact: compact,
		}
		b, err := bencode.Marshal(in)
		c.Assert(err, qt.IsNil)
		var out Peers
		c.Assert(bencode.Unmarshal(b, &out), qt.IsNil)
		c.Check(out.Compact, qt.Equals, compact)
		c.Assert(out.List, qt.HasLen, 2)
		c.Check(out.List[1].String(), qt.Equals, "6.7.8.9:10")
	}
}

func TestScrapeURL(t *testing.T) {
	c := qt.New(t)
	ih := infohash.T{0x20, 0x2b}
	for _, tc := range []struct {
		announce string
		scrape   string
	}{
		{"http://example.com/announce", "http://example.com/scrape"},
		{"http://example.com/x/announce", "http://example.com/x/scrape"},
		{"http://example.com/announce.php", "http://example.com/scrape.php"},
		{"http://example.com/announce?x2%0644", "http://example.com/scrape?x2%0644"},
	} {
		u, err := url.Parse(tc.announce)
		c.Assert(err, qt.IsNil)
		s, err := ScrapeURL(u, nil)
		c.Assert(err, qt.IsNil)
		c.Check(s.Scheme+"://"+s.Host+s.Path, qt.Equals, strings.SplitN(tc.scrape, "?", 2)[0])
		c.Check(u.String(), qt.Equals, tc.announce)
	}
	u, _ := url.Parse("http://example.com/a?passkey=p")
	_, err := ScrapeURL(u, nil)
	c.Check(err, qt.ErrorIs, shared.ErrScrapeUnsupported)
	u, _ = url.Parse("http://example.com/announce?passkey=p")
	s, err := ScrapeURL(u, []infohash.T{ih})
	c.Assert(err, qt.IsNil)
	c.Check(s.Query().Get("passkey"), qt.Equals, "p")
	c.Check(s.Query().Get("info_hash"), qt.Equals, ih.AsString())
	c.Check(strings.Contains(s.RawQuery, "%20%2B"), qt.IsTrue)
}
