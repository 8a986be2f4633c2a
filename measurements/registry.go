// Package measurements keeps the latest value of every instrument reading
// seen in the routed traffic, resolved to one unit per quantity.
package measurements

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shipnav/nmearouter/nmea"
)

// Names of the resolved values.
const (
	Depth             = "Depth"
	WaterTemperature  = "WaterTemperature"
	SpeedThroughWater = "SpeedThroughWater"
	ApparentWindSpeed = "ApparentWindSpeed"
	ApparentWindAngle = "ApparentWindAngle"
	TrueWindSpeed     = "TrueWindSpeed"
	TrueWindAngle     = "TrueWindAngle"
	TrueWindDirection = "TrueWindDirection"
	Heading           = "Heading"
	SpeedOverGround   = "SpeedOverGround"
	CourseOverGround  = "CourseOverGround"
	Pressure          = "Pressure"
	AirTemperature    = "AirTemperature"
	Humidity          = "Humidity"
	RudderAngle       = "RudderAngle"
	RateOfTurn        = "RateOfTurn"
	Log               = "Log"
	TripLog           = "TripLog"

	// TransducerPrefix names XDR readings that map to none of the above,
	// e.g. "Transducer.ENGINE#0".
	TransducerPrefix = "Transducer."
)

const (
	UnitMeters    = "m"
	UnitCelsius   = "°C"
	UnitKnots     = "kn"
	UnitDegrees   = "°"
	UnitHPa       = "hPa"
	UnitPercent   = "%"
	UnitDegPerMin = "°/min"
	UnitNM        = "NM"
)

// Measurement is one resolved value.
type Measurement struct {
	Name   string    `json:"name"`
	Value  float64   `json:"value"`
	Unit   string    `json:"unit"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
}

var formats = map[string]string{
	UnitHPa:     "#,###.#",
	UnitDegrees: "#,###.",
	UnitPercent: "#,###.",
	UnitNM:      "#,###.##",
}

// Formatted renders the value with thousands grouping and the unit.
func (m Measurement) Formatted() string {
	f, ok := formats[m.Unit]
	if !ok {
		f = "#,###.#"
	}
	s := humanize.FormatFloat(f, m.Value)
	if m.Unit == "" {
		return s
	}
	if m.Unit == UnitDegrees {
		return s + m.Unit
	}
	return s + " " + m.Unit
}

// Registry is a router observer holding the newest value per name.
type Registry struct {
	mu     sync.RWMutex
	values map[string]Measurement
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		values: make(map[string]Measurement),
		now:    time.Now,
	}
}

// OnNewSentence updates the values carried by s. Void or malformed
// sentences are ignored.
func (r *Registry) OnNewSentence(source string, s nmea.Sentence) {
	if s.Payload() == nil || !s.Valid() {
		return
	}
	at := s.Time()
	if at.IsZero() {
		at = r.now()
	}
	u := update{r: r, source: source, at: at}

	switch p := s.Payload().(type) {
	case nmea.DPT:
		depth := p.Depth
		if !math.IsNaN(p.Offset) {
			depth += p.Offset
		}
		u.set(Depth, depth, UnitMeters)
	case nmea.DBT:
		u.set(Depth, p.Depth(), UnitMeters)
	case nmea.MTW:
		u.set(WaterTemperature, p.Temperature, UnitCelsius)
	case nmea.VHW:
		u.set(SpeedThroughWater, p.SpeedKnots, UnitKnots)
		u.set(Heading, p.HeadingTrue, UnitDegrees)
	case nmea.VLW:
		u.set(Log, p.Total, UnitNM)
		u.set(TripLog, p.Trip, UnitNM)
	case nmea.MWV:
		if p.Relative() {
			u.set(ApparentWindSpeed, p.SpeedKnots(), UnitKnots)
			u.set(ApparentWindAngle, p.Angle, UnitDegrees)
			return
		}
		u.set(TrueWindSpeed, p.SpeedKnots(), UnitKnots)
		u.set(TrueWindAngle, p.Angle, UnitDegrees)
		if h, ok := r.Get(Heading); ok {
			u.set(TrueWindDirection, nmea.NormalizeAngle(h.Value+p.Angle), UnitDegrees)
		}
	case nmea.VWR:
		u.set(ApparentWindSpeed, p.SpeedKnots, UnitKnots)
		u.set(ApparentWindAngle, nmea.NormalizeAngle(p.Angle), UnitDegrees)
	case nmea.MWD:
		u.set(TrueWindDirection, p.DirectionTrue, UnitDegrees)
		u.set(TrueWindSpeed, p.Knots(), UnitKnots)
	case nmea.HDG:
		u.set(Heading, p.TrueHeading(), UnitDegrees)
	case nmea.HDT:
		u.set(Heading, p.Heading, UnitDegrees)
	case nmea.RMC:
		u.set(SpeedOverGround, p.SpeedOverGround, UnitKnots)
		u.set(CourseOverGround, p.CourseOverGround, UnitDegrees)
	case nmea.VTG:
		u.set(SpeedOverGround, p.SpeedKnots, UnitKnots)
		u.set(CourseOverGround, p.TrueTrack, UnitDegrees)
	case nmea.MDA:
		u.set(Pressure, p.PressureHPa(), UnitHPa)
		u.set(AirTemperature, p.AirTemperature, UnitCelsius)
		u.set(Humidity, p.RelativeHumidity, UnitPercent)
		u.set(WaterTemperature, p.WaterTemperature, UnitCelsius)
	case nmea.XDR:
		for _, m := range p.Measurements {
			u.transducer(m)
		}
	case nmea.RSA:
		u.set(RudderAngle, p.Starboard, UnitDegrees)
	case nmea.ROT:
		u.set(RateOfTurn, p.Rate, UnitDegPerMin)
	}
}

type update struct {
	r      *Registry
	source string
	at     time.Time
}

func (u update) set(name string, v float64, unit string) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	u.r.mu.Lock()
	u.r.values[name] = Measurement{Name: name, Value: v, Unit: unit, Source: u.source, Time: u.at}
	u.r.mu.Unlock()
}

// transducer maps the well known environment readings of an XDR sentence
// and files everything else under its transducer name.
func (u update) transducer(m nmea.Transducer) {
	name := strings.ToUpper(m.Name)
	switch {
	case m.Type == "P" && (name == "" || strings.Contains(name, "BARO")):
		switch m.Unit {
		case "B":
			u.set(Pressure, m.Value*1000, UnitHPa)
		case "P":
			u.set(Pressure, m.Value/100, UnitHPa)
		}
		return
	case m.Type == "C" && (name == "" || strings.Contains(name, "AIR")):
		u.set(AirTemperature, m.Value, UnitCelsius)
		return
	case m.Type == "H":
		u.set(Humidity, m.Value, UnitPercent)
		return
	}
	if m.Name == "" {
		return
	}
	u.set(TransducerPrefix+m.Name, m.Value, transducerUnit(m))
}

func transducerUnit(m nmea.Transducer) string {
	switch m.Unit {
	case "C":
		return UnitCelsius
	case "D":
		return UnitDegrees
	case "P":
		if m.Type == "H" {
			return UnitPercent
		}
		return "Pa"
	case "B":
		return "bar"
	case "V":
		return "V"
	case "A":
		return "A"
	case "R":
		return "rpm"
	case "M":
		return UnitMeters
	}
	return m.Unit
}

// Get returns the newest value named name.
func (r *Registry) Get(name string) (Measurement, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.values[name]
	return m, ok
}

// All returns every value, sorted by name.
func (r *Registry) All() []Measurement {
	r.mu.RLock()
	out := make([]Measurement, 0, len(r.values))
	for _, m := range r.values {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fresh returns the values younger than maxAge.
func (r *Registry) Fresh(maxAge time.Duration) []Measurement {
	now := r.now()
	var out []Measurement
	for _, m := range r.All() {
		if now.Sub(m.Time) <= maxAge {
			out = append(out, m)
		}
	}
	return out
}
