// Announces to the trackers of torrents and prints the responses.
package main

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"github.com/anacrolix/torrent/types/infohash"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/rs/dnscache"

	"github.com/anacrolix/trackerclient/internal/envx"
	"github.com/anacrolix/trackerclient/tracker"
	httpTracker "github.com/anacrolix/trackerclient/tracker/http"
	"github.com/anacrolix/trackerclient/tracker/shared"
	"github.com/anacrolix/trackerclient/tracker/udp"
	"github.com/anacrolix/trackerclient/version"
)

type flagsType struct {
	Tracker    []string              `arg:"--tracker,separate" help:"announce to this tracker too"`
	Event      tracker.AnnounceEvent `help:"none, started, stopped or completed"`
	Port       uint16
	Left       *uint64       `help:"bytes left, unknown if omitted"`
	UdpNetwork string        `arg:"--udp-network" help:"udp4 or udp6, both are tried for udp:// trackers if omitted"`
	PublicIp4  netip.Addr    `arg:"--public-ip4"`
	PublicIp6  netip.Addr    `arg:"--public-ip6"`
	Repeat     int           `help:"announce this many more times on the same socket"`
	MaxWait    time.Duration `arg:"--max-wait" help:"cap on the tracker interval between repeats"`
	Timeout    time.Duration `help:"per announce"`
	ScrapeUrl  bool          `arg:"--scrape-url" help:"print the HTTP scrape URL instead of announcing"`
	Anonymous  bool          `help:"identify as a common client instead of this one"`
	Torrents   []string      `arg:"positional,required" help:".torrent file, magnet link or hex info hash"`
}

func defaultFlags() flagsType {
	return flagsType{
		Tracker:    envx.Strings(nil, "TRACKER_ANNOUNCE_TRACKERS"),
		Port:       uint16(envx.Int(6881, "TRACKER_ANNOUNCE_PORT")),
		UdpNetwork: envx.String("", "TRACKER_ANNOUNCE_UDP_NETWORK"),
		MaxWait:    envx.Duration(time.Minute, "TRACKER_ANNOUNCE_MAX_WAIT"),
		Timeout:    envx.Duration(time.Minute, "TRACKER_ANNOUNCE_TIMEOUT"),
		Anonymous:  envx.Boolean(false, "TRACKER_ANNOUNCE_ANONYMOUS"),
	}
}

func main() {
	defer envpprof.Stop()
	if err := mainErr(); err != nil {
		log.Printf("error in main: %v", err)
		os.Exit(1)
	}
}

func mainErr() error {
	flags := defaultFlags()
	arg.MustParse(&flags)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	resolver := &dnscache.Resolver{}
	go refreshResolver(ctx, resolver)
	ann := newAnnouncer(flags, resolver)
	var wg sync.WaitGroup
	for _, a := range flags.Torrents {
		t, err := parseTarget(a)
		if err != nil {
			return fmt.Errorf("parsing torrent %q: %w", a, err)
		}
		trackers := t.trackers(flags.Tracker)
		if len(trackers) == 0 {
			ann.logger.Levelf(log.Warning, "no trackers for %v", t.InfoHash)
		}
		for _, tr := range trackers {
			if flags.ScrapeUrl {
				ann.printScrapeUrl(tr, t)
				continue
			}
			for _, network := range ann.udpNetworks(tr) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ann.doTracker(ctx, tr, network, t)
				}()
			}
		}
	}
	wg.Wait()
	return ctx.Err()
}

func refreshResolver(ctx context.Context, r *dnscache.Resolver) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Refresh(true)
		}
	}
}

func newAnnouncer(flags flagsType, resolver *dnscache.Resolver) *announcer {
	prefix := version.DefaultBep20Prefix
	if flags.Anonymous {
		prefix = version.AnonymousBep20Prefix
	}
	return &announcer{
		flags:    flags,
		resolver: resolver,
		logger:   log.Default.WithNames("tracker-announce"),
		peerId:   version.RandomPeerId(prefix),
	}
}

type announcer struct {
	flags    flagsType
	resolver *dnscache.Resolver
	logger   log.Logger
	peerId   [20]byte
	// Serializes output from concurrent announces.
	mu sync.Mutex
}

func (me *announcer) printScrapeUrl(tr string, t target) {
	ep, err := tracker.ParseEndpoint(tr)
	if err != nil {
		me.logger.Levelf(log.Error, "parsing %q: %v", tr, err)
		return
	}
	if ep.Kind != tracker.EndpointHttp {
		fmt.Printf("%s: scrape unsupported\n", tr)
		return
	}
	u, err := httpTracker.ScrapeURL(ep.URL, []infohash.T{t.InfoHash})
	if err != nil {
		fmt.Printf("%s: %v\n", tr, err)
		return
	}
	fmt.Println(u)
}

// Plain udp:// trackers are tried over both address families unless a network is given.
func (me *announcer) udpNetworks(tr string) []string {
	ep, err := tracker.ParseEndpoint(tr)
	if err != nil || ep.Kind != tracker.EndpointUdp {
		return []string{""}
	}
	if ep.UdpNetwork != "" {
		return []string{ep.UdpNetwork}
	}
	if me.flags.UdpNetwork != "" {
		return []string{me.flags.UdpNetwork}
	}
	return []string{"udp4", "udp6"}
}

func (me *announcer) request(t target) tracker.AnnounceRequest {
	left := uint64(math.MaxUint64)
	if me.flags.Left != nil {
		left = *me.flags.Left
	}
	return tracker.AnnounceRequest{
		InfoHash: t.InfoHash,
		PeerId:   me.peerId,
		Left:     left,
		Event:    me.flags.Event,
		Port:     me.flags.Port,
	}
}

func (me *announcer) options(network string) (opts tracker.Options) {
	opts = tracker.Options{
		UdpNetwork: network,
		Resolver:   me.resolver,
		Logger:     me.logger,
		ConnIds:    &udp.ConnIdCache{},
	}
	if me.flags.Anonymous {
		opts.UserAgent = version.AnonymousHttpUserAgent
	}
	if me.flags.PublicIp4.IsValid() {
		opts.ClientIp4 = generics.Some(me.flags.PublicIp4)
	}
	if me.flags.PublicIp6.IsValid() {
		opts.ClientIp6 = generics.Some(me.flags.PublicIp6)
	}
	return
}

func (me *announcer) doTracker(ctx context.Context, tr, network string, t target) {
	opts := me.options(network)
	req := me.request(t)
	name := tr
	if network != "" {
		name = fmt.Sprintf("%s (%s)", tr, network)
	}
	if me.flags.Repeat > 0 && network != "" {
		// Repeats share a socket so the connection ID is reused.
		pc, err := net.ListenPacket(network, ":0")
		if err != nil {
			me.logger.Levelf(log.Error, "opening socket for %v: %v", name, err)
			return
		}
		defer pc.Close()
		opts.UdpSocket = pc
	}
	for i := 0; ; i++ {
		started := time.Now()
		announceCtx, cancel := context.WithTimeout(ctx, me.flags.Timeout)
		resp, err := tracker.Request(announceCtx, tr, req, opts)
		cancel()
		me.printResult(name, t, time.Since(started), resp, err)
		if i >= me.flags.Repeat || ctx.Err() != nil {
			return
		}
		wait := min(time.Duration(resp.Interval)*time.Second, me.flags.MaxWait)
		if err != nil {
			wait = me.flags.MaxWait
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		// Only the first announce carries the event.
		req.Event = tracker.None
	}
}

func (me *announcer) printResult(name string, t target, took time.Duration, resp tracker.AnnounceResponse, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if err != nil {
		fmt.Printf("%s: %v: error after %v (%v): %v\n", name, t.InfoHash, took, shared.ErrorKindOf(err), err)
		return
	}
	next := time.Now().Add(time.Duration(resp.Interval) * time.Second)
	fmt.Printf("%s: %v: %v seeders, %v leechers, %v peers in %v, next announce %s\n",
		name, t.InfoHash, humanize.Comma(int64(resp.Seeders)), humanize.Comma(int64(resp.Leechers)),
		len(resp.Peers), took, humanize.Time(next))
	fmt.Print(spew.Sdump(resp))
}
