/*
	Copyright (c) 2022 R. van Twisk
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	targets.go: AIS target table fed from routed !AIVDM sentences.
*/

package ais

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	goais "github.com/BertoldVdb/go-ais"
	"github.com/BertoldVdb/go-ais/aisnmea"
	geo "github.com/kellydunn/golang-geo"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	"github.com/shipnav/nmearouter/router"
	log "github.com/sirupsen/logrus"
)

const (
	KmPerNauticalMile = 1.852

	// "not available" values of the position report fields
	sogUnavailable     = 102.3
	cogUnavailable     = 360
	headingUnavailable = 511
	latUnavailable     = 91
	lonUnavailable     = 181
)

// PositionProvider supplies the own ship position for range and bearing.
// router.Cache implements it.
type PositionProvider interface {
	TryGetCurrentPosition(source string, preferRecent bool) (router.PositionFix, bool)
}

// Target is the last known state of one AIS station.
type Target struct {
	MMSI        uint32    `json:"mmsi"`
	Class       string    `json:"class"` // A or B
	Name        string    `json:"name,omitempty"`
	CallSign    string    `json:"callSign,omitempty"`
	Destination string    `json:"destination,omitempty"`
	ShipType    uint8     `json:"shipType,omitempty"`
	NavStatus   uint8     `json:"navStatus"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lon"`
	PositionOK  bool      `json:"positionValid"`
	Speed       Value     `json:"sog"` // knots
	Course      Value     `json:"cog"`
	Heading     Value     `json:"heading"`
	RateOfTurn  Value     `json:"rot"` // degrees per minute
	RangeNM     float64   `json:"rangeNm"`
	Bearing     float64   `json:"bearing"`
	RangeOK     bool      `json:"rangeValid"`
	LastSeen    time.Time `json:"lastSeen"`
	Messages    uint64    `json:"messages"`
}

// Value is a reading that may be unknown. Unknown is NaN and marshals to
// null.
type Value float64

func unknown() Value { return Value(math.NaN()) }

func (v Value) Known() bool { return !math.IsNaN(float64(v)) }

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Known() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(v))
}

// TargetTable decodes AIS sentences and keeps one Target per MMSI.
// It is a router observer.
type TargetTable struct {
	codecMu sync.Mutex
	codec   *aisnmea.NMEACodec
	targets cmap.ConcurrentMap[string, Target]
	own     PositionProvider
	ownMMSI uint32
	now     func() time.Time
	log     *log.Entry
}

// NewTargetTable creates an empty table. own may be nil, ranges are then
// never computed.
func NewTargetTable(own PositionProvider) *TargetTable {
	return &TargetTable{
		codec:   aisnmea.NMEACodecNew(goais.CodecNew(false, false)),
		targets: cmap.New[Target](),
		own:     own,
		now:     time.Now,
		log:     common.Logger("ais"),
	}
}

// OwnMMSI returns the MMSI seen in !AIVDO sentences, 0 before the first one.
func (t *TargetTable) OwnMMSI() uint32 {
	t.codecMu.Lock()
	defer t.codecMu.Unlock()
	return t.ownMMSI
}

// OnNewSentence feeds encapsulated VDM/VDO sentences to the decoder.
// Everything else is ignored.
func (t *TargetTable) OnNewSentence(source string, s nmea.Sentence) {
	if s.Start() != nmea.EncapsulatedDelimiter || (s.ID() != "VDM" && s.ID() != "VDO") {
		return
	}
	at := s.Time()
	if at.IsZero() {
		at = t.now()
	}
	if err := t.Decode(s.Serialize(), at); err != nil {
		t.log.WithField("source", source).WithError(err).Debug("invalid AIS data")
	}
}

// Decode parses one !AIVDM line. Fragments of multi sentence messages are
// buffered until the last one arrives.
func (t *TargetTable) Decode(line string, at time.Time) error {
	t.codecMu.Lock()
	msg, err := t.codec.ParseSentence(line)
	if err == nil && msg != nil && msg.MessageType == "VDO" {
		t.ownMMSI = msg.Packet.GetHeader().UserID
	}
	t.codecMu.Unlock()
	if err != nil {
		return err
	}
	if msg == nil || msg.Packet == nil || msg.MessageType == "VDO" {
		return nil
	}
	t.importMessage(msg.Packet, at)
	return nil
}

func (t *TargetTable) importMessage(p goais.Packet, at time.Time) {
	header := p.GetHeader()
	update := Target{MMSI: header.UserID}
	apply := func(ti *Target) {}

	switch m := p.(type) {
	case goais.PositionReport:
		update.Class = "A"
		apply = func(ti *Target) {
			ti.NavStatus = m.NavigationalStatus
			setPosition(ti, float64(m.Latitude), float64(m.Longitude))
			setCourse(ti, float64(m.Sog), float64(m.Cog), m.TrueHeading)
			ti.RateOfTurn = rateOfTurn(m.RateOfTurn)
		}
	case goais.StandardClassBPositionReport:
		update.Class = "B"
		apply = func(ti *Target) {
			setPosition(ti, float64(m.Latitude), float64(m.Longitude))
			setCourse(ti, float64(m.Sog), float64(m.Cog), m.TrueHeading)
		}
	case goais.ExtendedClassBPositionReport:
		update.Class = "B"
		apply = func(ti *Target) {
			setPosition(ti, float64(m.Latitude), float64(m.Longitude))
			setCourse(ti, float64(m.Sog), float64(m.Cog), m.TrueHeading)
			ti.Name = aisText(m.Name)
			ti.ShipType = m.Type
		}
	case goais.ShipStaticData:
		update.Class = "A"
		apply = func(ti *Target) {
			ti.Name = aisText(m.Name)
			ti.CallSign = aisText(m.CallSign)
			ti.Destination = aisText(m.Destination)
			ti.ShipType = m.Type
		}
	case goais.StaticDataReport:
		update.Class = "B"
		apply = func(ti *Target) {
			if m.ReportA.Valid {
				ti.Name = aisText(m.ReportA.Name)
			}
			if m.ReportB.Valid {
				ti.CallSign = aisText(m.ReportB.CallSign)
				ti.ShipType = m.ReportB.ShipType
			}
		}
	default:
		// binary broadcasts, base stations, safety messages
		return
	}

	t.targets.Upsert(key(header.UserID), update, func(exist bool, old, n Target) Target {
		ti := n
		if exist {
			ti = old
			if n.Class != "" {
				ti.Class = n.Class
			}
		} else {
			ti.Speed, ti.Course, ti.Heading, ti.RateOfTurn = unknown(), unknown(), unknown(), unknown()
		}
		apply(&ti)
		ti.LastSeen = at
		ti.Messages++
		return ti
	})
}

func key(mmsi uint32) string {
	return strconv.FormatUint(uint64(mmsi), 10)
}

func aisText(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "@"))
}

func setPosition(ti *Target, lat, lon float64) {
	if lat == latUnavailable || lon == lonUnavailable || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return
	}
	ti.Latitude, ti.Longitude = lat, lon
	ti.PositionOK = true
}

func setCourse(ti *Target, sog, cog float64, heading uint16) {
	ti.Speed, ti.Course, ti.Heading = unknown(), unknown(), unknown()
	if sog < sogUnavailable {
		ti.Speed = Value(sog)
	}
	if cog < cogUnavailable {
		ti.Course = Value(cog)
	}
	if heading != headingUnavailable {
		ti.Heading = Value(heading)
	}
}

// rateOfTurn converts the encoded ROT indicator to degrees per minute.
func rateOfTurn(rot int16) Value {
	if rot == -128 || rot > 126 || rot < -126 {
		return unknown()
	}
	v := float64(rot) / 4.733
	return Value(math.Copysign(v*v, v))
}

// Get returns the target with the given MMSI.
func (t *TargetTable) Get(mmsi uint32) (Target, bool) {
	ti, ok := t.targets.Get(key(mmsi))
	if !ok {
		return Target{}, false
	}
	withRange(&ti, t.ownPoint())
	return ti, true
}

func (t *TargetTable) Count() int {
	return t.targets.Count()
}

// Targets returns all targets, nearest first. Targets without a range
// follow, ordered by MMSI.
func (t *TargetTable) Targets() []Target {
	own := t.ownPoint()
	out := make([]Target, 0, t.targets.Count())
	for item := range t.targets.IterBuffered() {
		ti := item.Val
		withRange(&ti, own)
		out = append(out, ti)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RangeOK != b.RangeOK {
			return a.RangeOK
		}
		if a.RangeOK && a.RangeNM != b.RangeNM {
			return a.RangeNM < b.RangeNM
		}
		return a.MMSI < b.MMSI
	})
	return out
}

func (t *TargetTable) ownPoint() *geo.Point {
	if t.own == nil {
		return nil
	}
	fix, ok := t.own.TryGetCurrentPosition(router.AnySource, false)
	if !ok {
		return nil
	}
	return geo.NewPoint(fix.Latitude, fix.Longitude)
}

func withRange(ti *Target, own *geo.Point) {
	ti.RangeOK = false
	if own == nil || !ti.PositionOK {
		return
	}
	target := geo.NewPoint(ti.Latitude, ti.Longitude)
	ti.RangeNM = own.GreatCircleDistance(target) / KmPerNauticalMile
	ti.Bearing = nmea.NormalizeAngle(own.BearingTo(target))
	ti.RangeOK = true
}

// Prune drops targets not heard for maxAge and returns how many were
// removed.
func (t *TargetTable) Prune(maxAge time.Duration) int {
	now := t.now()
	n := 0
	for item := range t.targets.IterBuffered() {
		if now.Sub(item.Val.LastSeen) > maxAge {
			t.targets.Remove(item.Key)
			n++
		}
	}
	return n
}
