package nmea

import "math"

const (
	TypeMWV SentenceID = "MWV"
	TypeMWD SentenceID = "MWD"
	TypeVWR SentenceID = "VWR"
	TypeDPT SentenceID = "DPT"
	TypeDBT SentenceID = "DBT"
	TypeVHW SentenceID = "VHW"
	TypeMTW SentenceID = "MTW"
	TypeVLW SentenceID = "VLW"
	TypeXDR SentenceID = "XDR"
	TypeMDA SentenceID = "MDA"
)

func init() {
	register(TypeMWV, decodeMWV)
	register(TypeMWD, decodeMWD)
	register(TypeVWR, decodeVWR)
	register(TypeDPT, decodeDPT)
	register(TypeDBT, decodeDBT)
	register(TypeVHW, decodeVHW)
	register(TypeMTW, decodeMTW)
	register(TypeVLW, decodeVLW)
	register(TypeXDR, decodeXDR)
	register(TypeMDA, decodeMDA)
}

// Speed conversion factors to knots.
const (
	KnotsPerMeterPerSecond = 1.943844
	KnotsPerKmh            = 0.539957
	KnotsPerMph            = 0.868976
)

// MWV is wind speed and angle, relative (R) or theoretical/true (T).
type MWV struct {
	Angle     float64
	Reference string
	Speed     float64
	Unit      string // K, M, N or S
	Status    string
	malformed bool
}

func decodeMWV(r *fieldReader) Payload {
	w := MWV{
		Angle:     r.float(0),
		Reference: r.str(1),
		Speed:     r.float(2),
		Unit:      r.str(3),
		Status:    r.str(4),
	}
	w.malformed = r.malformed
	return w
}

func (MWV) SentenceID() SentenceID { return TypeMWV }

func (w MWV) Valid() bool {
	return !w.malformed && w.Status == "A" && !isNaN(w.Angle, w.Speed)
}

// Relative reports whether the angle is relative to the bow.
func (w MWV) Relative() bool { return w.Reference == "R" }

// SpeedKnots converts the wind speed to knots.
func (w MWV) SpeedKnots() float64 {
	switch w.Unit {
	case "N":
		return w.Speed
	case "M":
		return w.Speed * KnotsPerMeterPerSecond
	case "K":
		return w.Speed * KnotsPerKmh
	case "S":
		return w.Speed * KnotsPerMph
	}
	return math.NaN()
}

func (w MWV) MarshalFields() []string {
	return []string{formatFloat(w.Angle, 1), w.Reference, formatFloat(w.Speed, 1), w.Unit, w.Status}
}

// MWD is true wind direction and speed.
type MWD struct {
	DirectionTrue     float64
	DirectionMagnetic float64
	SpeedKnots        float64
	SpeedMs           float64
	malformed         bool
}

func decodeMWD(r *fieldReader) Payload {
	w := MWD{
		DirectionTrue:     r.float(0),
		DirectionMagnetic: r.float(2),
		SpeedKnots:        r.float(4),
		SpeedMs:           r.float(6),
	}
	w.malformed = r.malformed
	return w
}

func (MWD) SentenceID() SentenceID { return TypeMWD }

func (w MWD) Valid() bool {
	return !w.malformed && !math.IsNaN(w.DirectionTrue) && !(math.IsNaN(w.SpeedKnots) && math.IsNaN(w.SpeedMs))
}

// Knots returns the speed in knots, converted from m/s when needed.
func (w MWD) Knots() float64 {
	if !math.IsNaN(w.SpeedKnots) {
		return w.SpeedKnots
	}
	return w.SpeedMs * KnotsPerMeterPerSecond
}

func (w MWD) MarshalFields() []string {
	return []string{
		formatFloat(w.DirectionTrue, 1), "T", formatFloat(w.DirectionMagnetic, 1), "M",
		formatFloat(w.SpeedKnots, 1), "N", formatFloat(w.SpeedMs, 1), "M",
	}
}

// VWR is relative wind speed and angle; port angles are negative.
type VWR struct {
	Angle      float64
	SpeedKnots float64
	SpeedMs    float64
	SpeedKmh   float64
	malformed  bool
}

func decodeVWR(r *fieldReader) Payload {
	w := VWR{
		Angle:      r.signed(0, 1, "L"),
		SpeedKnots: r.float(2),
		SpeedMs:    r.float(4),
		SpeedKmh:   r.float(6),
	}
	w.malformed = r.malformed
	return w
}

func (VWR) SentenceID() SentenceID { return TypeVWR }

func (w VWR) Valid() bool {
	return !w.malformed && !isNaN(w.Angle, w.SpeedKnots)
}

func (w VWR) MarshalFields() []string {
	a, d := formatSigned(w.Angle, 1, "R", "L")
	return []string{
		a, d, formatFloat(w.SpeedKnots, 1), "N",
		formatFloat(w.SpeedMs, 1), "M", formatFloat(w.SpeedKmh, 1), "K",
	}
}

// DPT is depth below transducer with the transducer offset. A positive
// offset is the distance to the waterline, negative to the keel.
type DPT struct {
	Depth     float64
	Offset    float64
	MaxRange  float64
	malformed bool
}

func decodeDPT(r *fieldReader) Payload {
	d := DPT{
		Depth:    r.float(0),
		Offset:   r.float(1),
		MaxRange: r.float(2),
	}
	d.malformed = r.malformed
	return d
}

func (DPT) SentenceID() SentenceID { return TypeDPT }

func (d DPT) Valid() bool {
	return !d.malformed && !math.IsNaN(d.Depth)
}

func (d DPT) MarshalFields() []string {
	f := []string{formatFloat(d.Depth, 1), formatFloat(d.Offset, 1)}
	if !math.IsNaN(d.MaxRange) {
		f = append(f, formatFloat(d.MaxRange, 1))
	}
	return f
}

// DBT is depth below transducer in feet, meters and fathoms.
type DBT struct {
	Feet      float64
	Meters    float64
	Fathoms   float64
	malformed bool
}

func decodeDBT(r *fieldReader) Payload {
	d := DBT{
		Feet:    r.float(0),
		Meters:  r.float(2),
		Fathoms: r.float(4),
	}
	d.malformed = r.malformed
	return d
}

func (DBT) SentenceID() SentenceID { return TypeDBT }

func (d DBT) Valid() bool {
	return !d.malformed && !(math.IsNaN(d.Meters) && math.IsNaN(d.Feet))
}

// Depth returns meters, converted from feet when only feet are present.
func (d DBT) Depth() float64 {
	if !math.IsNaN(d.Meters) {
		return d.Meters
	}
	return d.Feet * 0.3048
}

func (d DBT) MarshalFields() []string {
	return []string{
		formatFloat(d.Feet, 1), "f", formatFloat(d.Meters, 1), "M", formatFloat(d.Fathoms, 1), "F",
	}
}

// VHW is water speed and heading.
type VHW struct {
	HeadingTrue     float64
	HeadingMagnetic float64
	SpeedKnots      float64
	SpeedKmh        float64
	malformed       bool
}

func decodeVHW(r *fieldReader) Payload {
	v := VHW{
		HeadingTrue:     r.float(0),
		HeadingMagnetic: r.float(2),
		SpeedKnots:      r.float(4),
		SpeedKmh:        r.float(6),
	}
	v.malformed = r.malformed
	return v
}

func (VHW) SentenceID() SentenceID { return TypeVHW }

func (v VHW) Valid() bool {
	return !v.malformed && !math.IsNaN(v.SpeedKnots)
}

func (v VHW) MarshalFields() []string {
	return []string{
		formatFloat(v.HeadingTrue, 1), "T", formatFloat(v.HeadingMagnetic, 1), "M",
		formatFloat(v.SpeedKnots, 1), "N", formatFloat(v.SpeedKmh, 1), "K",
	}
}

// MTW is water temperature in degrees Celsius.
type MTW struct {
	Temperature float64
	malformed   bool
}

func decodeMTW(r *fieldReader) Payload {
	m := MTW{Temperature: r.float(0)}
	if u := r.str(1); u != "" && u != "C" {
		r.malformed = true
	}
	m.malformed = r.malformed
	return m
}

func (MTW) SentenceID() SentenceID { return TypeMTW }

func (m MTW) Valid() bool {
	return !m.malformed && !math.IsNaN(m.Temperature)
}

func (m MTW) MarshalFields() []string {
	return []string{formatFloat(m.Temperature, 1), "C"}
}

// VLW is distance traveled through water, in nautical miles.
type VLW struct {
	Total       float64
	Trip        float64
	GroundTotal float64
	GroundTrip  float64
	malformed   bool
}

func decodeVLW(r *fieldReader) Payload {
	v := VLW{
		Total:       r.float(0),
		Trip:        r.float(2),
		GroundTotal: r.float(4),
		GroundTrip:  r.float(6),
	}
	v.malformed = r.malformed
	return v
}

func (VLW) SentenceID() SentenceID { return TypeVLW }

func (v VLW) Valid() bool {
	return !v.malformed && !math.IsNaN(v.Total)
}

func (v VLW) MarshalFields() []string {
	f := []string{formatFloat(v.Total, 1), "N", formatFloat(v.Trip, 1), "N"}
	if !isNaN(v.GroundTotal) || !isNaN(v.GroundTrip) {
		f = append(f, formatFloat(v.GroundTotal, 1), "N", formatFloat(v.GroundTrip, 1), "N")
	}
	return f
}

// Transducer is one measurement of an XDR sentence.
type Transducer struct {
	Type  string // A angle, C temperature, P pressure, H humidity, ...
	Value float64
	Unit  string
	Name  string
}

// XDR is a list of transducer measurements.
type XDR struct {
	Measurements []Transducer
	malformed    bool
}

func decodeXDR(r *fieldReader) Payload {
	var x XDR
	for i := 0; i+4 <= r.count(); i += 4 {
		x.Measurements = append(x.Measurements, Transducer{
			Type:  r.str(i),
			Value: r.float(i + 1),
			Unit:  r.str(i + 2),
			Name:  r.str(i + 3),
		})
	}
	if r.count()%4 != 0 {
		r.malformed = true
	}
	x.malformed = r.malformed
	return x
}

func (XDR) SentenceID() SentenceID { return TypeXDR }

func (x XDR) Valid() bool {
	return !x.malformed && len(x.Measurements) > 0
}

func (x XDR) MarshalFields() []string {
	var f []string
	for _, m := range x.Measurements {
		f = append(f, m.Type, formatFloat(m.Value, 2), m.Unit, m.Name)
	}
	return f
}

// MDA is the meteorological composite sentence.
type MDA struct {
	PressureInches    float64
	PressureBars      float64
	AirTemperature    float64
	WaterTemperature  float64
	RelativeHumidity  float64
	AbsoluteHumidity  float64
	DewPoint          float64
	WindDirectionTrue float64
	WindDirectionMag  float64
	WindSpeedKnots    float64
	WindSpeedMs       float64
	malformed         bool
}

func decodeMDA(r *fieldReader) Payload {
	m := MDA{
		PressureInches:    r.float(0),
		PressureBars:      r.float(2),
		AirTemperature:    r.float(4),
		WaterTemperature:  r.float(6),
		RelativeHumidity:  r.float(8),
		AbsoluteHumidity:  r.float(9),
		DewPoint:          r.float(10),
		WindDirectionTrue: r.float(12),
		WindDirectionMag:  r.float(14),
		WindSpeedKnots:    r.float(16),
		WindSpeedMs:       r.float(18),
	}
	m.malformed = r.malformed
	return m
}

func (MDA) SentenceID() SentenceID { return TypeMDA }

func (m MDA) Valid() bool {
	return !m.malformed
}

// PressureHPa returns barometric pressure in hectopascal.
func (m MDA) PressureHPa() float64 {
	if !math.IsNaN(m.PressureBars) {
		return m.PressureBars * 1000
	}
	return m.PressureInches * 33.8639
}

func (m MDA) MarshalFields() []string {
	return []string{
		formatFloat(m.PressureInches, 2), "I", formatFloat(m.PressureBars, 3), "B",
		formatFloat(m.AirTemperature, 1), "C", formatFloat(m.WaterTemperature, 1), "C",
		formatFloat(m.RelativeHumidity, 1), formatFloat(m.AbsoluteHumidity, 1),
		formatFloat(m.DewPoint, 1), "C",
		formatFloat(m.WindDirectionTrue, 1), "T", formatFloat(m.WindDirectionMag, 1), "M",
		formatFloat(m.WindSpeedKnots, 1), "N", formatFloat(m.WindSpeedMs, 1), "M",
	}
}
