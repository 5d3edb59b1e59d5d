package tracker

import (
	"errors"
	"fmt"
	"net/url"
)

var ErrBadScheme = errors.New("unknown scheme")

type EndpointKind int

const (
	EndpointHttp EndpointKind = iota + 1
	EndpointUdp
)

func (me EndpointKind) String() string {
	switch me {
	case EndpointHttp:
		return "http"
	case EndpointUdp:
		return "udp"
	}
	return fmt.Sprintf("EndpointKind(%d)", int(me))
}

// A tracker announce URL, classified by transport.
type Endpoint struct {
	Kind EndpointKind
	URL  *url.URL
	// Set by the "udp4" and "udp6" schemes.
	UdpNetwork string
}

func ParseEndpoint(s string) (ret Endpoint, err error) {
	u, err := url.Parse(s)
	if err != nil {
		err = fmt.Errorf("parsing tracker url: %w", err)
		return
	}
	ret.URL = u
	switch u.Scheme {
	case "http", "https":
		ret.Kind = EndpointHttp
	case "udp4", "udp6":
		ret.UdpNetwork = u.Scheme
		fallthrough
	case "udp":
		ret.Kind = EndpointUdp
		if u.Hostname() == "" || u.Port() == "" {
			err = fmt.Errorf("udp tracker url %q needs a host and port", s)
			return
		}
	default:
		err = ErrBadScheme
	}
	return
}
