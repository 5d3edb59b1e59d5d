package httpTracker

import (
	"fmt"

	"github.com/anacrolix/torrent/bencode"

	"github.com/anacrolix/trackerclient/tracker/compact"
	"github.com/anacrolix/trackerclient/tracker/shared"
)

type HttpResponse struct {
	FailureReason  string `bencode:"failure reason"`
	WarningMessage string `bencode:"warning message"`
	// Nil if the tracker didn't give one.
	Interval    *int32 `bencode:"interval"`
	MinInterval int32  `bencode:"min interval"`
	TrackerId   string `bencode:"tracker id"`
	Complete    int32  `bencode:"complete"`
	Incomplete  int32  `bencode:"incomplete"`
	Peers       Peers  `bencode:"peers"`
	// BEP 7
	Peers6 Peers6 `bencode:"peers6"`
}

type Peers struct {
	List    []shared.Peer
	Compact bool
}

func (me Peers) MarshalBencode() ([]byte, error) {
	if me.Compact {
		b, err := compact.MarshalPeers(me.List, compact.AddrFamilyIpv4)
		if err != nil {
			return nil, err
		}
		return bencode.Marshal(b)
	}
	l := make([]map[string]interface{}, 0, len(me.List))
	for _, p := range me.List {
		d := map[string]interface{}{
			"ip":   p.IP.String(),
			"port": p.Port,
		}
		if len(p.ID) != 0 {
			d["peer id"] = string(p.ID)
		}
		l = append(l, d)
	}
	return bencode.Marshal(l)
}

var (
	_ bencode.Unmarshaler = (*Peers)(nil)
	_ bencode.Marshaler   = Peers{}
	_ bencode.Unmarshaler = (*Peers6)(nil)
	_ bencode.Marshaler   = Peers6{}
)

func (me *Peers) UnmarshalBencode(b []byte) (err error) {
	var _v interface{}
	err = bencode.Unmarshal(b, &_v)
	if err != nil {
		return
	}
	switch v := _v.(type) {
	case string:
		vars.Add("http responses with string peers", 1)
		me.List, err = compact.UnmarshalIPv4Peers([]byte(v))
		me.Compact = true
		return
	case []interface{}:
		vars.Add("http responses with list peers", 1)
		me.List, err = compact.PeersFromDicts(v)
		me.Compact = false
		return
	default:
		vars.Add("http responses with unhandled peers type", 1)
		err = fmt.Errorf("%w: unsupported peers type: %T", shared.ErrMalformedResponse, _v)
		return
	}
}

// BEP 7 compact IPv6 peers. There's no dictionary form.
type Peers6 []shared.Peer

func (me Peers6) MarshalBencode() ([]byte, error) {
	b, err := compact.MarshalPeers(me, compact.AddrFamilyIpv6)
	if err != nil {
		return nil, err
	}
	return bencode.Marshal(b)
}

func (me *Peers6) UnmarshalBencode(b []byte) (err error) {
	var s string
	err = bencode.Unmarshal(b, &s)
	if err != nil {
		vars.Add("http responses with unhandled peers6 type", 1)
		return fmt.Errorf("%w: peers6: %v", shared.ErrMalformedResponse, err)
	}
	*me, err = compact.UnmarshalIPv6Peers([]byte(s))
	return
}
