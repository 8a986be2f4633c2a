package timesync

import (
	"errors"
	"testing"
	"time"

	"github.com/shipnav/nmearouter/nmea"
)

var gnss = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type clockRecorder struct {
	set []time.Time
	err error
}

func (c *clockRecorder) setClock(t time.Time) error {
	if c.err != nil {
		return c.err
	}
	c.set = append(c.set, t)
	return nil
}

func newTestSetter(now *time.Time) (*Setter, *clockRecorder) {
	rec := &clockRecorder{}
	s := New("")
	s.setClock = rec.setClock
	s.now = func() time.Time { return *now }
	return s, rec
}

func TestSetter_StepsLargeOffset(t *testing.T) {
	now := gnss.Add(2*time.Second + 100*time.Millisecond)
	s, rec := newTestSetter(&now)

	s.process(sample{gnss: gnss, received: gnss.Add(2 * time.Second)})
	if len(rec.set) != 1 {
		t.Fatalf("clock set %d times", len(rec.set))
	}
	if want := gnss.Add(100 * time.Millisecond); !rec.set[0].Equal(want) {
		t.Fatalf("set to %v, want %v", rec.set[0], want)
	}
}

func TestSetter_AveragesSmallOffsets(t *testing.T) {
	now := gnss.Add(100 * time.Millisecond)
	s, rec := newTestSetter(&now)

	// 100ms behind: the first average is above the acceptable offset
	s.process(sample{gnss: gnss, received: now})
	if len(rec.set) != 1 {
		t.Fatalf("clock set %d times", len(rec.set))
	}
	if d := now.Sub(rec.set[0]); d < 60*time.Millisecond || d > 70*time.Millisecond {
		t.Fatalf("corrected by %v", d)
	}

	// right after a set the average starts over and stays small
	now = now.Add(time.Second)
	s.process(sample{gnss: now.Add(-100 * time.Millisecond), received: now})
	if len(rec.set) != 1 {
		t.Fatalf("clock set again after %v", now.Sub(s.lastSetTime))
	}
}

func TestSetter_AcceptsSmallDifference(t *testing.T) {
	now := gnss.Add(10 * time.Millisecond)
	s, rec := newTestSetter(&now)
	for i := 0; i < 20; i++ {
		s.process(sample{gnss: now.Add(-10 * time.Millisecond), received: now})
		now = now.Add(time.Second)
	}
	if len(rec.set) != 0 {
		t.Fatalf("clock set for a 10ms difference")
	}
}

func TestSetter_IgnoresImplausibleYear(t *testing.T) {
	now := gnss
	s, rec := newTestSetter(&now)
	s.process(sample{gnss: time.Date(2002, 7, 4, 20, 15, 31, 0, time.UTC), received: now})
	if len(rec.set) != 0 {
		t.Fatalf("clock set from year 2002")
	}
}

func TestSetter_FailedSetIsRetried(t *testing.T) {
	now := gnss.Add(time.Second)
	s, rec := newTestSetter(&now)
	rec.err = errors.New("sudo: a password is required")
	s.process(sample{gnss: gnss, received: now})
	if !s.lastSetTime.IsZero() {
		t.Fatalf("failed set recorded")
	}
	rec.err = nil
	s.process(sample{gnss: gnss, received: now})
	if len(rec.set) != 1 {
		t.Fatalf("clock set %d times", len(rec.set))
	}
}

func TestSetter_OnNewSentence(t *testing.T) {
	now := gnss
	s, _ := newTestSetter(&now)
	s.source = "Handheld"

	rmc, err := nmea.ParseAt(nmea.AppendChecksum("$GPRMC,120000.00,A,4807.038,N,01131.000,E,022.4,084.4,010624,003.1,W"), now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s.OnNewSentence("Ship", rmc)
	select {
	case <-s.c:
		t.Fatalf("time taken from another source")
	default:
	}

	s.OnNewSentence("Handheld", rmc)
	select {
	case got := <-s.c:
		if !got.gnss.Equal(gnss) || !got.received.Equal(now) {
			t.Fatalf("sample = %+v", got)
		}
	default:
		t.Fatalf("no sample queued")
	}

	void, _ := nmea.ParseAt(nmea.AppendChecksum("$GPRMC,120000.00,V,,,,,,,010624,,"), now)
	s.OnNewSentence("Handheld", void)
	if len(s.c) != 0 {
		t.Fatalf("void fix queued")
	}
}

func TestSetter_StartStop(t *testing.T) {
	now := gnss.Add(time.Second)
	s, _ := newTestSetter(&now)
	done := make(chan time.Time, 1)
	s.setClock = func(t time.Time) error {
		done <- t
		return nil
	}
	s.Start()
	defer s.Stop()

	s.SetTime(gnss, now)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("clock not set")
	}
}
