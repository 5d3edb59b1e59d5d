package udp

import (
	"time"
)

const (
	// BEP 15: "If a response is not received after 15 * 2 ^ n seconds, the client should
	// retransmit the request, where n starts at 0 and is increased up to 8 (3840 seconds) after
	// every retransmission."
	initialTimeout     = 15 * time.Second
	maxTimeoutExponent = 8
	maxTimeout         = initialTimeout << maxTimeoutExponent
	// Connect attempts before giving up, one for each n in 0..8.
	maxConnectAttempts = maxTimeoutExponent + 1

	DefaultAnnounceTimeout = 25 * time.Second
)

// How long to wait for a reply after the given number of consecutive timeouts.
func timeout(contiguousTimeouts int) (d time.Duration) {
	if contiguousTimeouts > maxTimeoutExponent {
		contiguousTimeouts = maxTimeoutExponent
	}
	d = initialTimeout
	for ; contiguousTimeouts > 0; contiguousTimeouts-- {
		d *= 2
	}
	return
}
