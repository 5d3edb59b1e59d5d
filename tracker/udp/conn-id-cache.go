package udp

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/anacrolix/sync"
	"golang.org/x/sync/singleflight"
)

// BEP 15: "A client can use a connection ID until one minute after it has received it."
const DefaultConnIdTtl = time.Minute

// Trackers tie connection IDs to the source address, so the key includes the local socket.
type ConnIdKey struct {
	Endpoint  string
	LocalAddr string
	Remote    netip.AddrPort
}

func (me ConnIdKey) String() string {
	return fmt.Sprintf("%s via %s to %s", me.Endpoint, me.LocalAddr, me.Remote)
}

type connIdEntry struct {
	id     ConnectionId
	issued time.Time
}

// Caches connection IDs so consecutive announces to a tracker from the same socket don't each need
// a connect round trip. Concurrent Gets for the same key share a single connect. The zero value is
// ready to use.
type ConnIdCache struct {
	// Defaults to DefaultConnIdTtl.
	Ttl time.Duration
	// Defaults to time.Now.
	Now func() time.Time

	mu      sync.Mutex
	entries map[ConnIdKey]connIdEntry
	connect singleflight.Group
}

func (me *ConnIdCache) now() time.Time {
	if me.Now != nil {
		return me.Now()
	}
	return time.Now()
}

func (me *ConnIdCache) ttl() time.Duration {
	if me.Ttl != 0 {
		return me.Ttl
	}
	return DefaultConnIdTtl
}

func (me *ConnIdCache) lookup(key ConnIdKey) (id ConnectionId, ok bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	e, ok := me.entries[key]
	if !ok {
		return
	}
	if me.now().Sub(e.issued) >= me.ttl() {
		delete(me.entries, key)
		return 0, false
	}
	return e.id, true
}

func (me *ConnIdCache) store(key ConnIdKey, id ConnectionId, issued time.Time) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.entries == nil {
		me.entries = make(map[ConnIdKey]connIdEntry)
	}
	// Keys that include ephemeral sockets are never looked up again.
	now := me.now()
	for k, e := range me.entries {
		if now.Sub(e.issued) >= me.ttl() {
			delete(me.entries, k)
		}
	}
	me.entries[key] = connIdEntry{id: id, issued: issued}
}

// Returns a valid connection ID for the key, calling connect if there isn't one. If another caller
// is already connecting for the key, this waits for its result instead. The context of the caller
// that started the connect is the one that applies to it.
func (me *ConnIdCache) Get(
	ctx context.Context,
	key ConnIdKey,
	connect func(context.Context) (ConnectionId, error),
) (ConnectionId, error) {
	if id, ok := me.lookup(key); ok {
		return id, nil
	}
	resC := me.connect.DoChan(key.String(), func() (interface{}, error) {
		// Another flight might have stored one while we were waiting to start.
		if id, ok := me.lookup(key); ok {
			return id, nil
		}
		// The ID is valid from when the tracker issued it, which is some time before we read it.
		issued := me.now()
		id, err := connect(ctx)
		if err != nil {
			return nil, err
		}
		me.store(key, id, issued)
		return id, nil
	})
	select {
	case <-ctx.Done():
		return 0, contextError(ctx)
	case res := <-resC:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(ConnectionId), nil
	}
}

// Drops the connection ID for the key. Call this after an error involving the ID, so the next Get
// connects again.
func (me *ConnIdCache) Invalidate(key ConnIdKey) {
	me.mu.Lock()
	defer me.mu.Unlock()
	delete(me.entries, key)
}
