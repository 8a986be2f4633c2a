package nmea

import "math"

const (
	TypeRMB SentenceID = "RMB"
	TypeBOD SentenceID = "BOD"
	TypeBWC SentenceID = "BWC"
	TypeRTE SentenceID = "RTE"
	TypeWPL SentenceID = "WPL"
	TypeXTE SentenceID = "XTE"
)

func init() {
	register(TypeRMB, decodeRMB)
	register(TypeBOD, decodeBOD)
	register(TypeBWC, decodeBWC)
	register(TypeRTE, decodeRTE)
	register(TypeWPL, decodeWPL)
	register(TypeXTE, decodeXTE)
}

// RMB is the recommended minimum navigation information toward the active
// waypoint. CrossTrack is negative when the vessel has to steer left.
type RMB struct {
	Status          string
	CrossTrack      float64 // nm
	Origin          string
	Destination     string
	DestLatitude    float64
	DestLongitude   float64
	Range           float64 // nm
	Bearing         float64 // degrees true
	ClosingVelocity float64 // knots
	Arrived         string
	Mode            string
	malformed       bool
}

func decodeRMB(r *fieldReader) Payload {
	m := RMB{
		Status:          r.str(0),
		CrossTrack:      r.signed(1, 2, "L"),
		Origin:          r.str(3),
		Destination:     r.str(4),
		DestLatitude:    r.degrees(5, 6, "S"),
		DestLongitude:   r.degrees(7, 8, "W"),
		Range:           r.float(9),
		Bearing:         r.float(10),
		ClosingVelocity: r.float(11),
		Arrived:         r.str(12),
		Mode:            r.str(13),
	}
	m.malformed = r.malformed
	return m
}

func (RMB) SentenceID() SentenceID { return TypeRMB }

func (m RMB) Valid() bool {
	return !m.malformed && m.Status == "A"
}

func (m RMB) MarshalFields() []string {
	xte, dir := formatSigned(m.CrossTrack, 2, "R", "L")
	lat, ns := formatLatitude(m.DestLatitude)
	lon, ew := formatLongitude(m.DestLongitude)
	f := []string{
		m.Status, xte, dir, m.Origin, m.Destination, lat, ns, lon, ew,
		formatFloat(m.Range, 1), formatFloat(m.Bearing, 1), formatFloat(m.ClosingVelocity, 1),
		m.Arrived,
	}
	if m.Mode != "" {
		f = append(f, m.Mode)
	}
	return f
}

// BOD is bearing from origin to destination waypoint.
type BOD struct {
	BearingTrue     float64
	BearingMagnetic float64
	Destination     string
	Origin          string
	malformed       bool
}

func decodeBOD(r *fieldReader) Payload {
	b := BOD{
		BearingTrue:     r.float(0),
		BearingMagnetic: r.float(2),
		Destination:     r.str(4),
		Origin:          r.str(5),
	}
	b.malformed = r.malformed
	return b
}

func (BOD) SentenceID() SentenceID { return TypeBOD }

func (b BOD) Valid() bool {
	return !b.malformed && !(math.IsNaN(b.BearingTrue) && math.IsNaN(b.BearingMagnetic))
}

func (b BOD) MarshalFields() []string {
	return []string{
		formatFloat(b.BearingTrue, 1), "T", formatFloat(b.BearingMagnetic, 1), "M",
		b.Destination, b.Origin,
	}
}

// BWC is bearing and distance to a waypoint along the great circle.
type BWC struct {
	Time            TimeOfDay
	Latitude        float64
	Longitude       float64
	BearingTrue     float64
	BearingMagnetic float64
	Distance        float64 // nm
	Waypoint        string
	Mode            string
	malformed       bool
}

func decodeBWC(r *fieldReader) Payload {
	b := BWC{
		Time:            r.timeOfDay(0),
		Latitude:        r.degrees(1, 2, "S"),
		Longitude:       r.degrees(3, 4, "W"),
		BearingTrue:     r.float(5),
		BearingMagnetic: r.float(7),
		Distance:        r.float(9),
		Waypoint:        r.str(11),
		Mode:            r.str(12),
	}
	b.malformed = r.malformed
	return b
}

func (BWC) SentenceID() SentenceID { return TypeBWC }

func (b BWC) Valid() bool {
	return !b.malformed && !isNaN(b.Latitude, b.Longitude) && b.Mode != "N"
}

func (b BWC) MarshalFields() []string {
	lat, ns := formatLatitude(b.Latitude)
	lon, ew := formatLongitude(b.Longitude)
	f := []string{
		b.Time.String(), lat, ns, lon, ew,
		formatFloat(b.BearingTrue, 1), "T", formatFloat(b.BearingMagnetic, 1), "M",
		formatFloat(b.Distance, 1), "N", b.Waypoint,
	}
	if b.Mode != "" {
		f = append(f, b.Mode)
	}
	return f
}

// RTE is one part of a route: a list of waypoint names.
type RTE struct {
	TotalMessages int
	MessageNumber int
	Type          string // c complete, w working
	Route         string
	Waypoints     []string
	malformed     bool
}

func decodeRTE(r *fieldReader) Payload {
	t := RTE{
		TotalMessages: r.int(0),
		MessageNumber: r.int(1),
		Type:          r.str(2),
		Route:         r.str(3),
	}
	for i := 4; i < r.count(); i++ {
		t.Waypoints = append(t.Waypoints, r.str(i))
	}
	t.malformed = r.malformed
	return t
}

func (RTE) SentenceID() SentenceID { return TypeRTE }

func (t RTE) Valid() bool {
	return !t.malformed && t.TotalMessages > 0 && t.MessageNumber > 0 && t.MessageNumber <= t.TotalMessages
}

func (t RTE) MarshalFields() []string {
	f := []string{formatInt(t.TotalMessages), formatInt(t.MessageNumber), t.Type, t.Route}
	return append(f, t.Waypoints...)
}

// WPL is a waypoint location.
type WPL struct {
	Latitude  float64
	Longitude float64
	Name      string
	malformed bool
}

func decodeWPL(r *fieldReader) Payload {
	w := WPL{
		Latitude:  r.degrees(0, 1, "S"),
		Longitude: r.degrees(2, 3, "W"),
		Name:      r.str(4),
	}
	w.malformed = r.malformed
	return w
}

func (WPL) SentenceID() SentenceID { return TypeWPL }

func (w WPL) Valid() bool {
	return !w.malformed && !isNaN(w.Latitude, w.Longitude) && w.Name != ""
}

func (w WPL) MarshalFields() []string {
	lat, ns := formatLatitude(w.Latitude)
	lon, ew := formatLongitude(w.Longitude)
	return []string{lat, ns, lon, ew, w.Name}
}

// XTE is the cross-track error. Negative values mean steer left.
type XTE struct {
	Status     string
	CycleLock  string
	CrossTrack float64 // nm
	Mode       string
	malformed  bool
}

func decodeXTE(r *fieldReader) Payload {
	x := XTE{
		Status:     r.str(0),
		CycleLock:  r.str(1),
		CrossTrack: r.signed(2, 3, "L"),
		Mode:       r.str(5),
	}
	x.malformed = r.malformed
	return x
}

func (XTE) SentenceID() SentenceID { return TypeXTE }

func (x XTE) Valid() bool {
	return !x.malformed && x.Status == "A" && x.CycleLock == "A" && !math.IsNaN(x.CrossTrack)
}

func (x XTE) MarshalFields() []string {
	v, d := formatSigned(x.CrossTrack, 2, "R", "L")
	f := []string{x.Status, x.CycleLock, v, d, "N"}
	if x.Mode != "" {
		f = append(f, x.Mode)
	}
	return f
}
