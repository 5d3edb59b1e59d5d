package tracker

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestParseEndpoint(t *testing.T) {
	for _, tc := range []struct {
		url        string
		kind       EndpointKind
		udpNetwork string
	}{
		{"http://tracker.example/announce", EndpointHttp, ""},
		{"https://tracker.example/announce?passkey=x", EndpointHttp, ""},
		{"udp://tracker.example:6969/announce", EndpointUdp, ""},
		{"udp4://tracker.example:6969", EndpointUdp, "udp4"},
		{"udp6://[::1]:6969/announce", EndpointUdp, "udp6"},
	} {
		ep, err := ParseEndpoint(tc.url)
		qt.Assert(t, qt.IsNil(err))
		qt.Check(t, qt.Equals(ep.Kind, tc.kind))
		qt.Check(t, qt.Equals(ep.UdpNetwork, tc.udpNetwork))
		qt.Check(t, qt.Equals(ep.URL.String(), tc.url))
	}
}

func TestParseEndpointErrors(t *testing.T) {
	_, err := ParseEndpoint("lol://tracker.openbittorrent.com:80/announce")
	qt.Check(t, qt.Equals(err, ErrBadScheme))
	_, err = ParseEndpoint("wss://tracker.example/announce")
	qt.Check(t, qt.Equals(err, ErrBadScheme))
	_, err = ParseEndpoint("udp://tracker.example/announce")
	qt.Check(t, qt.IsNotNil(err))
	_, err = ParseEndpoint("http://[::1")
	qt.Check(t, qt.IsNotNil(err))
}
