package router

import (
	"time"

	"github.com/shipnav/nmearouter/nmea"
)

// gsvAssembler collects the parts of one satellites-in-view sequence. Parts
// must arrive in order; a gap or a sequence taking longer than maxSpan
// throws the partial result away.
type gsvAssembler struct {
	maxSpan time.Duration
	total   int
	next    int
	started time.Time
	inView  int
	sats    []nmea.GSVSatellite
}

func newGSVAssembler(maxSpan time.Duration) *gsvAssembler {
	return &gsvAssembler{maxSpan: maxSpan}
}

func (a *gsvAssembler) reset() {
	a.total, a.next, a.inView = 0, 0, 0
	a.sats = nil
}

// add feeds one part. It returns the complete satellite list when g was the
// last part of a sequence.
func (a *gsvAssembler) add(g nmea.GSV, at time.Time) ([]nmea.GSVSatellite, int, bool) {
	if !g.Valid() {
		a.reset()
		return nil, 0, false
	}
	if a.next > 0 && at.Sub(a.started) > a.maxSpan {
		a.reset()
	}
	if g.MessageNumber == 1 {
		a.reset()
		a.total = g.TotalMessages
		a.started = at
		a.next = 1
	}
	if a.next == 0 || g.MessageNumber != a.next || g.TotalMessages != a.total {
		a.reset()
		return nil, 0, false
	}
	a.inView = g.InView
	for _, s := range g.Satellites {
		if s.PRN > 0 {
			a.sats = append(a.sats, s)
		}
	}
	if g.MessageNumber < a.total {
		a.next++
		return nil, 0, false
	}
	sats, inView := a.sats, a.inView
	a.reset()
	return sats, inView, true
}
