package nmea

import (
	"math"
	"time"
)

const (
	TypeGGA SentenceID = "GGA"
	TypeRMC SentenceID = "RMC"
	TypeGLL SentenceID = "GLL"
	TypeVTG SentenceID = "VTG"
	TypeGSA SentenceID = "GSA"
	TypeGSV SentenceID = "GSV"
	TypeZDA SentenceID = "ZDA"
)

func init() {
	register(TypeGGA, decodeGGA)
	register(TypeRMC, decodeRMC)
	register(TypeGLL, decodeGLL)
	register(TypeVTG, decodeVTG)
	register(TypeGSA, decodeGSA)
	register(TypeGSV, decodeGSV)
	register(TypeZDA, decodeZDA)
}

// FixQuality is the GGA quality indicator.
type FixQuality int

const (
	NoFix FixQuality = iota
	GPSFix
	DifferentialFix
	PPSFix
	RTKFix
	FloatRTKFix
	EstimatedFix
	ManualFix
	SimulationFix
)

func (q FixQuality) String() string {
	switch q {
	case NoFix:
		return "NoFix"
	case GPSFix:
		return "GPSFix"
	case DifferentialFix:
		return "DifferentialFix"
	case PPSFix:
		return "PPSFix"
	case RTKFix:
		return "RTKFix"
	case FloatRTKFix:
		return "FloatRTKFix"
	case EstimatedFix:
		return "EstimatedFix"
	case ManualFix:
		return "ManualFix"
	case SimulationFix:
		return "SimulationFix"
	}
	return "Unknown"
}

// GGA is the GNSS fix data sentence.
type GGA struct {
	Time            TimeOfDay
	Latitude        float64
	Longitude       float64
	Quality         FixQuality
	Satellites      int
	HDOP            float64
	AltitudeMSL     float64 // meters above mean sea level
	GeoidSeparation float64 // meters, ellipsoid minus MSL
	DGPSAge         string
	DGPSStation     string
	malformed       bool
}

func decodeGGA(r *fieldReader) Payload {
	g := GGA{
		Time:            r.timeOfDay(0),
		Latitude:        r.degrees(1, 2, "S"),
		Longitude:       r.degrees(3, 4, "W"),
		Quality:         FixQuality(r.int(5)),
		Satellites:      r.int(6),
		HDOP:            r.float(7),
		AltitudeMSL:     r.float(8),
		GeoidSeparation: r.float(10),
		DGPSAge:         r.str(12),
		DGPSStation:     r.str(13),
	}
	if g.Quality == Unknown {
		g.Quality = NoFix
	}
	g.malformed = r.malformed
	return g
}

func (GGA) SentenceID() SentenceID { return TypeGGA }

func (g GGA) Valid() bool {
	return !g.malformed && g.Quality != NoFix && !isNaN(g.Latitude, g.Longitude)
}

// Altitude is the height above the ellipsoid in meters.
func (g GGA) Altitude() float64 {
	if math.IsNaN(g.GeoidSeparation) {
		return g.AltitudeMSL
	}
	return g.AltitudeMSL + g.GeoidSeparation
}

func (g GGA) MarshalFields() []string {
	lat, ns := formatLatitude(g.Latitude)
	lon, ew := formatLongitude(g.Longitude)
	return []string{
		g.Time.String(), lat, ns, lon, ew,
		formatInt(int(g.Quality)), formatInt2(g.Satellites), formatFloat(g.HDOP, 1),
		formatFloat(g.AltitudeMSL, 1), "M", formatFloat(g.GeoidSeparation, 1), "M",
		g.DGPSAge, g.DGPSStation,
	}
}

// RMC is the recommended minimum navigation sentence.
type RMC struct {
	Time              TimeOfDay
	Status            string // A active, V void
	Latitude          float64
	Longitude         float64
	SpeedOverGround   float64 // knots
	CourseOverGround  float64 // degrees true
	Date              Date
	MagneticVariation float64 // degrees, west negative
	Mode              string
	malformed         bool
}

func decodeRMC(r *fieldReader) Payload {
	m := RMC{
		Time:              r.timeOfDay(0),
		Status:            r.str(1),
		Latitude:          r.degrees(2, 3, "S"),
		Longitude:         r.degrees(4, 5, "W"),
		SpeedOverGround:   r.float(6),
		CourseOverGround:  r.float(7),
		Date:              r.date(8),
		MagneticVariation: r.signed(9, 10, "W"),
		Mode:              r.str(11),
	}
	m.malformed = r.malformed
	return m
}

func (RMC) SentenceID() SentenceID { return TypeRMC }

func (m RMC) Valid() bool {
	return !m.malformed && m.Status == "A" && !isNaN(m.Latitude, m.Longitude)
}

// DateTime combines date and time of the fix.
func (m RMC) DateTime() (time.Time, bool) {
	return m.Date.At(m.Time)
}

func (m RMC) MarshalFields() []string {
	lat, ns := formatLatitude(m.Latitude)
	lon, ew := formatLongitude(m.Longitude)
	vr, vd := formatSigned(m.MagneticVariation, 1, "E", "W")
	f := []string{
		m.Time.String(), m.Status, lat, ns, lon, ew,
		formatFloat(m.SpeedOverGround, 1), formatFloat(m.CourseOverGround, 1),
		m.Date.String(), vr, vd,
	}
	if m.Mode != "" {
		f = append(f, m.Mode)
	}
	return f
}

// GLL is geographic position, latitude/longitude.
type GLL struct {
	Latitude  float64
	Longitude float64
	Time      TimeOfDay
	Status    string
	Mode      string
	malformed bool
}

func decodeGLL(r *fieldReader) Payload {
	g := GLL{
		Latitude:  r.degrees(0, 1, "S"),
		Longitude: r.degrees(2, 3, "W"),
		Time:      r.timeOfDay(4),
		Status:    r.str(5),
		Mode:      r.str(6),
	}
	g.malformed = r.malformed
	return g
}

func (GLL) SentenceID() SentenceID { return TypeGLL }

func (g GLL) Valid() bool {
	return !g.malformed && g.Status == "A" && !isNaN(g.Latitude, g.Longitude)
}

func (g GLL) MarshalFields() []string {
	lat, ns := formatLatitude(g.Latitude)
	lon, ew := formatLongitude(g.Longitude)
	f := []string{lat, ns, lon, ew, g.Time.String(), g.Status}
	if g.Mode != "" {
		f = append(f, g.Mode)
	}
	return f
}

// VTG is course and speed over ground.
type VTG struct {
	TrueTrack     float64
	MagneticTrack float64
	SpeedKnots    float64
	SpeedKmh      float64
	Mode          string
	malformed     bool
}

func decodeVTG(r *fieldReader) Payload {
	v := VTG{
		TrueTrack:     r.float(0),
		MagneticTrack: r.float(2),
		SpeedKnots:    r.float(4),
		SpeedKmh:      r.float(6),
		Mode:          r.str(8),
	}
	v.malformed = r.malformed
	return v
}

func (VTG) SentenceID() SentenceID { return TypeVTG }

func (v VTG) Valid() bool {
	return !v.malformed && v.Mode != "N" && !math.IsNaN(v.SpeedKnots)
}

func (v VTG) MarshalFields() []string {
	f := []string{
		formatFloat(v.TrueTrack, 1), "T", formatFloat(v.MagneticTrack, 1), "M",
		formatFloat(v.SpeedKnots, 1), "N", formatFloat(v.SpeedKmh, 1), "K",
	}
	if v.Mode != "" {
		f = append(f, v.Mode)
	}
	return f
}

// GSA is DOP and active satellites.
type GSA struct {
	Mode      string // M manual, A automatic
	FixType   int    // 1 none, 2 2D, 3 3D
	SVs       []string
	PDOP      float64
	HDOP      float64
	VDOP      float64
	SystemID  string
	malformed bool
}

func decodeGSA(r *fieldReader) Payload {
	g := GSA{
		Mode:    r.str(0),
		FixType: r.int(1),
	}
	for i := 2; i < 14; i++ {
		g.SVs = append(g.SVs, r.str(i))
	}
	g.PDOP = r.float(14)
	g.HDOP = r.float(15)
	g.VDOP = r.float(16)
	g.SystemID = r.str(17)
	g.malformed = r.malformed
	return g
}

func (GSA) SentenceID() SentenceID { return TypeGSA }

func (g GSA) Valid() bool {
	return !g.malformed && g.FixType >= 2
}

// Used returns the non-empty satellite ids of the solution.
func (g GSA) Used() []string {
	out := make([]string, 0, len(g.SVs))
	for _, sv := range g.SVs {
		if sv != "" {
			out = append(out, sv)
		}
	}
	return out
}

func (g GSA) MarshalFields() []string {
	f := []string{g.Mode, formatInt(g.FixType)}
	for i := 0; i < 12; i++ {
		sv := ""
		if i < len(g.SVs) {
			sv = g.SVs[i]
		}
		f = append(f, sv)
	}
	f = append(f, formatFloat(g.PDOP, 1), formatFloat(g.HDOP, 1), formatFloat(g.VDOP, 1))
	if g.SystemID != "" {
		f = append(f, g.SystemID)
	}
	return f
}

// GSVSatellite is one satellite block of a GSV sentence. Empty values are
// Unknown.
type GSVSatellite struct {
	PRN       int
	Elevation int
	Azimuth   int
	SNR       int
}

// GSV is one part of a satellites-in-view sequence.
type GSV struct {
	TotalMessages int
	MessageNumber int
	InView        int
	Satellites    []GSVSatellite
	SignalID      string
	malformed     bool
}

func decodeGSV(r *fieldReader) Payload {
	g := GSV{
		TotalMessages: r.int(0),
		MessageNumber: r.int(1),
		InView:        r.int(2),
	}
	n := r.count() - 3
	for i := 0; i+4 <= n; i += 4 {
		g.Satellites = append(g.Satellites, GSVSatellite{
			PRN:       r.int(3 + i),
			Elevation: r.int(4 + i),
			Azimuth:   r.int(5 + i),
			SNR:       r.int(6 + i),
		})
	}
	if n > 0 && n%4 == 1 {
		g.SignalID = r.str(r.count() - 1)
	}
	g.malformed = r.malformed
	return g
}

func (GSV) SentenceID() SentenceID { return TypeGSV }

func (g GSV) Valid() bool {
	return !g.malformed && g.TotalMessages > 0 && g.MessageNumber > 0 && g.MessageNumber <= g.TotalMessages
}

func (g GSV) MarshalFields() []string {
	f := []string{formatInt(g.TotalMessages), formatInt(g.MessageNumber), formatInt2(g.InView)}
	for _, s := range g.Satellites {
		f = append(f, formatInt2(s.PRN), formatInt2(s.Elevation), formatInt3(s.Azimuth), formatInt2(s.SNR))
	}
	if g.SignalID != "" {
		f = append(f, g.SignalID)
	}
	return f
}

// ZDA is UTC time and date.
type ZDA struct {
	Time          TimeOfDay
	Day           int
	Month         int
	Year          int
	OffsetHours   int
	OffsetMinutes int
	malformed     bool
}

func decodeZDA(r *fieldReader) Payload {
	z := ZDA{
		Time:          r.timeOfDay(0),
		Day:           r.int(1),
		Month:         r.int(2),
		Year:          r.int(3),
		OffsetHours:   r.int(4),
		OffsetMinutes: r.int(5),
	}
	z.malformed = r.malformed
	return z
}

func (ZDA) SentenceID() SentenceID { return TypeZDA }

func (z ZDA) Valid() bool {
	return !z.malformed && z.Time.Valid && z.Day > 0 && z.Month > 0 && z.Year > 0
}

// DateTime returns the UTC instant carried by the sentence.
func (z ZDA) DateTime() (time.Time, bool) {
	if !z.Valid() {
		return time.Time{}, false
	}
	return Date{Valid: true, Day: z.Day, Month: z.Month, Year: z.Year}.At(z.Time)
}

func (z ZDA) MarshalFields() []string {
	year := ""
	if z.Year != Unknown {
		year = formatInt(z.Year)
	}
	return []string{
		z.Time.String(), formatInt2(z.Day), formatInt2(z.Month), year,
		formatInt2(z.OffsetHours), formatInt2(z.OffsetMinutes),
	}
}
