package router

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gansidui/geohash"
	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
)

// Category groups sentence types that answer the same question.
type Category int

const (
	CategoryPosition Category = iota
	CategoryCourse
	CategoryHeading
	CategoryTime
	CategoryDOP
	CategorySatellites
)

func (c Category) String() string {
	switch c {
	case CategoryPosition:
		return "position"
	case CategoryCourse:
		return "course"
	case CategoryHeading:
		return "heading"
	case CategoryTime:
		return "time"
	case CategoryDOP:
		return "dop"
	case CategorySatellites:
		return "satellites"
	}
	return "unknown"
}

var sentenceCategories = map[nmea.SentenceID][]Category{
	nmea.TypeGGA: {CategoryPosition},
	nmea.TypeGLL: {CategoryPosition},
	nmea.TypeRMC: {CategoryPosition, CategoryCourse, CategoryTime},
	nmea.TypeVTG: {CategoryCourse},
	nmea.TypeHDT: {CategoryHeading},
	nmea.TypeHDG: {CategoryHeading},
	nmea.TypeHDM: {CategoryHeading},
	nmea.TypeZDA: {CategoryTime},
	nmea.TypeGSA: {CategoryDOP},
	nmea.TypeGSV: {CategorySatellites},
}

// PositionFix is the answer to "where are we". Unknown values are NaN.
type PositionFix struct {
	Latitude        float64
	Longitude       float64
	Altitude        float64 // meters above the ellipsoid
	Track           float64 // degrees true
	SpeedOverGround float64 // knots
	Heading         float64 // degrees true
	Time            time.Time
	Source          string
	Geohash         string
}

// Satellite is one satellite of an assembled GSV sequence.
type Satellite struct {
	Name          string
	PRN           int
	Constellation nmea.Constellation
	Talker        nmea.TalkerID
	Elevation     int
	Azimuth       int
	SNR           int
}

type cacheKey struct {
	source   string
	category Category
}

type cacheEntry struct {
	sentence nmea.Sentence
	at       time.Time
}

type satelliteGroup struct {
	talker nmea.TalkerID
	sats   []nmea.GSVSatellite
	inView int
	at     time.Time
}

// Cache keeps the newest sentence of each category per source, plus the
// last complete satellites-in-view sequence per source and talker.
type Cache struct {
	mu         sync.RWMutex
	entries    map[cacheKey]cacheEntry
	assemblers map[string]*gsvAssembler
	satellites map[string]map[string]satelliteGroup
	maxAge     time.Duration
	preferred  string
	now        func() time.Time
}

func NewCache(maxAge time.Duration, preferred string, now func() time.Time) *Cache {
	if maxAge <= 0 {
		maxAge = common.POSITION_MAX_AGE
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries:    make(map[cacheKey]cacheEntry),
		assemblers: make(map[string]*gsvAssembler),
		satellites: make(map[string]map[string]satelliteGroup),
		maxAge:     maxAge,
		preferred:  preferred,
		now:        now,
	}
}

func (c *Cache) PreferredSource() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.preferred
}

func (c *Cache) SetPreferredSource(source string) {
	c.mu.Lock()
	c.preferred = source
	c.mu.Unlock()
}

// Update stores s if its type belongs to a cached category.
func (c *Cache) Update(source string, s nmea.Sentence, at time.Time) {
	cats, ok := sentenceCategories[s.ID()]
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range cats {
		if cat == CategorySatellites {
			c.addGSV(source, s, at)
			continue
		}
		c.entries[cacheKey{source, cat}] = cacheEntry{sentence: s, at: at}
	}
}

func (c *Cache) addGSV(source string, s nmea.Sentence, at time.Time) {
	g, ok := s.Payload().(nmea.GSV)
	if !ok {
		return
	}
	key := string(s.Talker()) + g.SignalID
	akey := source + "/" + key
	a, ok := c.assemblers[akey]
	if !ok {
		a = newGSVAssembler(common.GSV_SEQUENCE_MAX)
		c.assemblers[akey] = a
	}
	sats, inView, complete := a.add(g, at)
	if !complete {
		return
	}
	groups, ok := c.satellites[source]
	if !ok {
		groups = make(map[string]satelliteGroup)
		c.satellites[source] = groups
	}
	groups[key] = satelliteGroup{talker: s.Talker(), sats: sats, inView: inView, at: at}
}

// Latest returns the newest cached sentence of cat from source, regardless
// of its age.
func (c *Cache) Latest(source string, cat Category) (nmea.Sentence, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey{source, cat}]
	return e.sentence, e.at, ok
}

func (c *Cache) fresh(source string, cat Category, now time.Time) (cacheEntry, bool) {
	e, ok := c.entries[cacheKey{source, cat}]
	if !ok || now.Sub(e.at) > c.maxAge {
		return cacheEntry{}, false
	}
	return e, true
}

// TryGetCurrentPosition returns the newest valid fix not older than the
// cache's max age. With source == AnySource the preferred source wins
// unless preferRecent is set; otherwise the most recent fix is used.
func (c *Cache) TryGetCurrentPosition(source string, preferRecent bool) (PositionFix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()

	if source != AnySource {
		return c.positionOf(source, now)
	}
	if !preferRecent && c.preferred != "" {
		if fix, ok := c.positionOf(c.preferred, now); ok {
			return fix, true
		}
	}
	var best PositionFix
	found := false
	for k := range c.entries {
		if k.category != CategoryPosition {
			continue
		}
		fix, ok := c.positionOf(k.source, now)
		if !ok {
			continue
		}
		if !found || fix.Time.After(best.Time) || (fix.Time.Equal(best.Time) && fix.Source < best.Source) {
			best, found = fix, true
		}
	}
	return best, found
}

func (c *Cache) positionOf(source string, now time.Time) (PositionFix, bool) {
	e, ok := c.fresh(source, CategoryPosition, now)
	if !ok || !e.sentence.Valid() {
		return PositionFix{}, false
	}
	fix := PositionFix{
		Altitude:        math.NaN(),
		Track:           math.NaN(),
		SpeedOverGround: math.NaN(),
		Heading:         math.NaN(),
		Time:            e.at,
		Source:          source,
	}
	switch p := e.sentence.Payload().(type) {
	case nmea.GGA:
		fix.Latitude, fix.Longitude = p.Latitude, p.Longitude
		fix.Altitude = p.Altitude()
	case nmea.RMC:
		fix.Latitude, fix.Longitude = p.Latitude, p.Longitude
	case nmea.GLL:
		fix.Latitude, fix.Longitude = p.Latitude, p.Longitude
	default:
		return PositionFix{}, false
	}

	if ce, ok := c.fresh(source, CategoryCourse, now); ok && ce.sentence.Valid() {
		switch p := ce.sentence.Payload().(type) {
		case nmea.VTG:
			fix.Track, fix.SpeedOverGround = p.TrueTrack, p.SpeedKnots
		case nmea.RMC:
			fix.Track, fix.SpeedOverGround = p.CourseOverGround, p.SpeedOverGround
		}
	}
	if he, ok := c.fresh(source, CategoryHeading, now); ok && he.sentence.Valid() {
		switch p := he.sentence.Payload().(type) {
		case nmea.HDT:
			fix.Heading = p.Heading
		case nmea.HDG:
			fix.Heading = p.TrueHeading()
		case nmea.HDM:
			fix.Heading = p.Heading
		}
	}
	fix.Geohash, _ = geohash.Encode(fix.Latitude, fix.Longitude, 9)
	return fix, true
}

// GetSatellitesInView returns the satellites of the newest complete GSV
// sequences of one source, all talkers merged, and the number of
// satellites in view they announce.
func (c *Cache) GetSatellitesInView() ([]Satellite, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()

	source := ""
	if c.hasSatellites(c.preferred, now) {
		source = c.preferred
	} else {
		var newest time.Time
		for s, groups := range c.satellites {
			for _, g := range groups {
				if now.Sub(g.at) > common.SATELLITES_MAX_AGE {
					continue
				}
				if source == "" || g.at.After(newest) || (g.at.Equal(newest) && s < source) {
					source, newest = s, g.at
				}
			}
		}
	}
	if source == "" {
		return nil, 0
	}

	var out []Satellite
	total := 0
	for _, g := range c.satellites[source] {
		if now.Sub(g.at) > common.SATELLITES_MAX_AGE {
			continue
		}
		total += g.inView
		for _, s := range g.sats {
			constellation, name := nmea.SatelliteName(s.PRN)
			if constellation == nmea.ConstellationUnknown {
				constellation = nmea.TalkerConstellation(g.talker)
			}
			out = append(out, Satellite{
				Name:          name,
				PRN:           s.PRN,
				Constellation: constellation,
				Talker:        g.talker,
				Elevation:     s.Elevation,
				Azimuth:       s.Azimuth,
				SNR:           s.SNR,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Talker < out[j].Talker
	})
	return out, total
}

func (c *Cache) hasSatellites(source string, now time.Time) bool {
	if source == "" {
		return false
	}
	for _, g := range c.satellites[source] {
		if now.Sub(g.at) <= common.SATELLITES_MAX_AGE {
			return true
		}
	}
	return false
}

// CurrentTime returns the last UTC time received in ZDA or RMC, advanced by
// the time elapsed since it arrived.
func (c *Cache) CurrentTime() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()

	var best time.Time
	var bestAt time.Time
	found := false
	for k, e := range c.entries {
		if k.category != CategoryTime || now.Sub(e.at) > c.maxAge {
			continue
		}
		var t time.Time
		ok := false
		switch p := e.sentence.Payload().(type) {
		case nmea.ZDA:
			t, ok = p.DateTime()
		case nmea.RMC:
			if p.Valid() {
				t, ok = p.DateTime()
			}
		}
		if ok && (!found || e.at.After(bestAt)) {
			best, bestAt, found = t, e.at, true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return best.Add(now.Sub(bestAt)), true
}
