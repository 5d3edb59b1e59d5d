package shared

import (
	"fmt"
)

type AnnounceEvent int32

// NOTE: the trailing comments are the strings used in the HTTP "event" param. See BEP 3, "event",
// and https://github.com/anacrolix/torrent/issues/416#issuecomment-751427001. The numeric values
// are the ones BEP 15 puts on the wire.
const (
	// Default event, equivalent to unspecified
	AnnounceEventNone AnnounceEvent = iota //
	// Local peer just completed the torrent.
	AnnounceEventCompleted // completed
	// Local peer has just resumed this torrent.
	AnnounceEventStarted // started
	// Local peer is leaving the swarm.
	AnnounceEventStopped // stopped
)

var announceEventStrings = []string{"", "completed", "started", "stopped"}

func (e AnnounceEvent) String() string {
	// Return a safe default in case event values are not sanitized.
	if e < 0 || int(e) >= len(announceEventStrings) {
		return ""
	}
	return announceEventStrings[e]
}

func (me *AnnounceEvent) UnmarshalText(text []byte) error {
	for key, str := range announceEventStrings {
		if string(text) == str {
			*me = AnnounceEvent(key)
			return nil
		}
	}
	if string(text) == "none" {
		*me = AnnounceEventNone
		return nil
	}
	return fmt.Errorf("unknown event %q", text)
}

const (
	// How many peers we ask for when we still need data.
	DefaultNumWant = 100
	// Used when a tracker doesn't tell us when to come back.
	DefaultInterval = 900
)

// Returns the numwant for an announce. There's no point asking for peers when we're seeding, the
// tracker will hand out our address to those that need it.
func NumWant(left uint64) int32 {
	if left == 0 {
		return 0
	}
	return DefaultNumWant
}
