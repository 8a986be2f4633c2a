/*
	Copyright (c) 2022 R. van Twisk
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	setter.go: keep the OS clock in line with the GNSS time of routed
	RMC and ZDA sentences.
*/

package timesync

import (
	"math"
	"os/exec"
	"time"

	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	log "github.com/sirupsen/logrus"
)

const (
	AVERAGE_OVER           = 10.0                  // seconds, moving average window of the time difference
	ACCEPTABLE_TIME_OFFSET = 40 * time.Millisecond // averaged difference we still accept
	STEP_THRESHOLD         = 300 * time.Millisecond
	MAX_AVERAGED_OFFSET    = 5 * time.Second
	MIN_SET_INTERVAL       = time.Minute
	MIN_VALID_YEAR         = 2022 // receivers report 1980 or 2000 before the almanac is complete
)

type sample struct {
	gnss     time.Time
	received time.Time
}

// Setter sets the OS clock from GNSS time. Large offsets are stepped at
// once; small ones only when the moving average stays above
// ACCEPTABLE_TIME_OFFSET, at most once per MIN_SET_INTERVAL.
type Setter struct {
	source string

	movingTimeDifference  float64 // ms, OS minus GNSS
	lastMovingAverageTime time.Time
	lastSetTime           time.Time

	c        chan sample
	eh       *common.ExitHelper
	setClock func(t time.Time) error
	now      func() time.Time
	log      *log.Entry
}

// New returns a setter accepting time only from source, or from every
// source when source is empty.
func New(source string) *Setter {
	return &Setter{
		source:   source,
		c:        make(chan sample, 1),
		eh:       common.NewExitHelper(),
		setClock: setSystemTime,
		now:      time.Now,
		log:      common.Logger("timesync"),
	}
}

// OnNewSentence takes the date and time of valid RMC and ZDA sentences.
func (s *Setter) OnNewSentence(source string, sn nmea.Sentence) {
	if s.source != "" && source != s.source {
		return
	}
	var (
		t  time.Time
		ok bool
	)
	switch p := sn.Payload().(type) {
	case nmea.RMC:
		if p.Valid() {
			t, ok = p.DateTime()
		}
	case nmea.ZDA:
		t, ok = p.DateTime()
	}
	if !ok {
		return
	}
	received := sn.Time()
	if received.IsZero() {
		received = s.now()
	}
	s.SetTime(t, received)
}

// SetTime queues a GNSS time received at the given OS time. Values are
// dropped while the previous one is still being applied.
func (s *Setter) SetTime(gnss, received time.Time) {
	select {
	case s.c <- sample{gnss: gnss, received: received}:
	default:
		s.log.Debug("queue full, disregarding time")
	}
}

func (s *Setter) Start() {
	s.eh.Go(s.run)
}

func (s *Setter) Stop() {
	s.eh.Exit()
}

func (s *Setter) run(quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case t := <-s.c:
			s.process(t)
		}
	}
}

func movingExpAvg(value, oldValue, fdtime, ftime float64) float64 {
	alpha := 1.0 - math.Exp(-fdtime/ftime)
	return alpha*value + (1.0-alpha)*oldValue
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func (s *Setter) process(t sample) {
	if t.gnss.Year() < MIN_VALID_YEAR {
		return
	}
	now := s.now()
	// what the GNSS clock reads right now
	gnssNow := t.gnss.Add(now.Sub(t.received))
	offset := t.received.Sub(t.gnss)

	if absDuration(offset) <= MAX_AVERAGED_OFFSET {
		dt := now.Sub(s.lastMovingAverageTime).Seconds()
		if s.lastMovingAverageTime.IsZero() {
			dt = AVERAGE_OVER
		}
		s.movingTimeDifference = movingExpAvg(float64(offset.Milliseconds()), s.movingTimeDifference, dt, AVERAGE_OVER)
		s.lastMovingAverageTime = now
	} else {
		s.movingTimeDifference = 0
	}

	if absDuration(offset) > STEP_THRESHOLD {
		s.set(gnssNow, now)
		return
	}

	averaged := time.Duration(s.movingTimeDifference * float64(time.Millisecond))
	if absDuration(averaged) > ACCEPTABLE_TIME_OFFSET && now.Sub(s.lastSetTime) > MIN_SET_INTERVAL {
		s.set(now.Add(-averaged), now)
	}
}

func (s *Setter) set(t, now time.Time) {
	s.log.WithFields(log.Fields{
		"from": now.Format("20060102 15:04:05.000"),
		"to":   t.Format("20060102 15:04:05.000"),
	}).Info("setting system time")
	if err := s.setClock(t); err != nil {
		s.log.WithError(err).Error("set date failure")
		return
	}
	s.lastSetTime = now
	s.movingTimeDifference = 0
}

func setSystemTime(t time.Time) error {
	setStr := t.UTC().Format("20060102 15:04:05.000") + " UTC"
	if common.IsRunningAsRoot() {
		return exec.Command("date", "-s", setStr).Run()
	}
	return exec.Command("sudo", "date", "-s", setStr).Run()
}
