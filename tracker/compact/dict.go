package compact

import (
	"fmt"
	"net"

	"github.com/anacrolix/trackerclient/tracker/shared"
)

// Decodes the non-compact peer list in BEP 3, as produced by decoding bencode into interface{}. Each
// element is a dict with "ip", "port" and optionally "peer id". An "ip" that doesn't parse (BEP 3
// permits DNS names) leaves Peer.IP nil.
func PeersFromDicts(list []interface{}) (ret []shared.Peer, err error) {
	ret = make([]shared.Peer, 0, len(list))
	for i, elem := range list {
		d, ok := elem.(map[string]interface{})
		if !ok {
			err = fmt.Errorf("%w: peer %v is %T, not a dict", shared.ErrMalformedResponse, i, elem)
			return
		}
		var p shared.Peer
		err = peerFromDict(&p, d)
		if err != nil {
			err = fmt.Errorf("%w: peer %v: %v", shared.ErrMalformedResponse, i, err)
			return
		}
		ret = append(ret, p)
	}
	return
}

func peerFromDict(p *shared.Peer, d map[string]interface{}) error {
	switch ip := d["ip"].(type) {
	case string:
		p.IP = net.ParseIP(ip)
	case nil:
	default:
		return fmt.Errorf("ip is %T", ip)
	}
	port, ok := d["port"].(int64)
	if !ok {
		return fmt.Errorf("port is %T", d["port"])
	}
	if port < 0 || port > 0xffff {
		return fmt.Errorf("port %v out of range", port)
	}
	p.Port = int(port)
	if id, ok := d["peer id"]; ok {
		s, ok := id.(string)
		if !ok {
			return fmt.Errorf("peer id is %T", id)
		}
		p.ID = []byte(s)
	}
	return nil
}
