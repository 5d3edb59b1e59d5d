package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/types/infohash"
)

// An info hash and the trackers found alongside it.
type target struct {
	InfoHash infohash.T
	Trackers []string
}

func parseTarget(arg string) (ret target, err error) {
	if strings.HasPrefix(arg, "magnet:") {
		var m metainfo.Magnet
		m, err = metainfo.ParseMagnetUri(arg)
		if err != nil {
			err = fmt.Errorf("parsing magnet: %w", err)
			return
		}
		ret.InfoHash = m.InfoHash
		ret.Trackers = m.Trackers
		return
	}
	if len(arg) == 2*infohash.Size {
		if _, statErr := os.Stat(arg); statErr != nil {
			err = ret.InfoHash.FromHexString(arg)
			return
		}
	}
	mi, err := metainfo.LoadFromFile(arg)
	if err != nil {
		err = fmt.Errorf("loading metainfo: %w", err)
		return
	}
	ret.InfoHash = mi.HashInfoBytes()
	for _, tier := range mi.UpvertedAnnounceList() {
		ret.Trackers = append(ret.Trackers, tier...)
	}
	return
}

// Extra trackers come first, and duplicates are dropped.
func (me target) trackers(extra []string) (ret []string) {
	seen := make(map[string]struct{})
	for _, tr := range append(extra[:len(extra):len(extra)], me.Trackers...) {
		if _, ok := seen[tr]; ok || tr == "" {
			continue
		}
		seen[tr] = struct{}{}
		ret = append(ret, tr)
	}
	return
}
