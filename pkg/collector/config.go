package collector

import (
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/podwatch/podwatch/pkg/ims"
	"github.com/podwatch/podwatch/pkg/period"
	"github.com/podwatch/podwatch/pkg/storage"
)

// Configured sets up the collector and poller based on flags.
func Configured(portal ims.Portal, registry *period.Registry, db storage.Database) *Poller {
	interval := lflag.Duration("scan-interval", time.Hour, "How often to run an acquisition cycle")
	delayLow := lflag.Duration("pacing-low", defaultDelayLow, "Lower bound of the randomized delay between portal calls")
	delayHigh := lflag.Duration("pacing-high", defaultDelayHigh, "Upper bound of the randomized delay between portal calls")
	pointDelayLow := lflag.Duration("point-pacing-low", defaultPointDelayLow, "Lower bound of the randomized delay between delivery points")
	pointDelayHigh := lflag.Duration("point-pacing-high", defaultPointDelayHigh, "Upper bound of the randomized delay between delivery points")

	c := New(portal, registry)
	p := &Poller{collector: c, db: db}

	lflag.Do(func() {
		if *delayHigh < *delayLow {
			panic("pacing-high must not be below pacing-low")
		}
		if *pointDelayHigh < *pointDelayLow {
			panic("point-pacing-high must not be below point-pacing-low")
		}
		c.delayLow = *delayLow
		c.delayHigh = *delayHigh
		c.pointDelayLow = *pointDelayLow
		c.pointDelayHigh = *pointDelayHigh
		p.interval = *interval
	})

	return p
}
