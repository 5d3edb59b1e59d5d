package udp

import (
	"math"
	"testing"
	"time"

	qt "github.com/go-quicktest/qt"
)

func TestTimeoutMax(t *testing.T) {
	qt.Check(t, qt.Equals(timeout(8), maxTimeout))
	qt.Check(t, qt.Equals(timeout(9), maxTimeout))
	qt.Check(t, qt.Equals(timeout(math.MaxInt32), maxTimeout))
	qt.Check(t, qt.Equals(maxTimeout, 3840*time.Second))
}

func TestTimeoutSchedule(t *testing.T) {
	var got []time.Duration
	for n := range maxConnectAttempts {
		got = append(got, timeout(n)/time.Second)
	}
	qt.Check(t, qt.DeepEquals(got, []time.Duration{15, 30, 60, 120, 240, 480, 960, 1920, 3840}))
}
