package nmea

import "math"

const (
	TypeHDG SentenceID = "HDG"
	TypeHDT SentenceID = "HDT"
	TypeHDM SentenceID = "HDM"
	TypeROT SentenceID = "ROT"
	TypeRSA SentenceID = "RSA"
)

func init() {
	register(TypeHDG, decodeHDG)
	register(TypeHDT, decodeHDT)
	register(TypeHDM, decodeHDM)
	register(TypeROT, decodeROT)
	register(TypeRSA, decodeRSA)
}

// HDG is magnetic sensor heading with deviation and variation. West values
// are negative.
type HDG struct {
	Heading   float64
	Deviation float64
	Variation float64
	malformed bool
}

func decodeHDG(r *fieldReader) Payload {
	h := HDG{
		Heading:   r.float(0),
		Deviation: r.signed(1, 2, "W"),
		Variation: r.signed(3, 4, "W"),
	}
	h.malformed = r.malformed
	return h
}

func (HDG) SentenceID() SentenceID { return TypeHDG }

func (h HDG) Valid() bool {
	return !h.malformed && !math.IsNaN(h.Heading)
}

// TrueHeading applies deviation and variation to the sensor heading.
// Missing corrections count as zero.
func (h HDG) TrueHeading() float64 {
	out := h.Heading
	if !math.IsNaN(h.Deviation) {
		out += h.Deviation
	}
	if !math.IsNaN(h.Variation) {
		out += h.Variation
	}
	return NormalizeAngle(out)
}

func (h HDG) MarshalFields() []string {
	dv, dd := formatSigned(h.Deviation, 1, "E", "W")
	vv, vd := formatSigned(h.Variation, 1, "E", "W")
	return []string{formatFloat(h.Heading, 1), dv, dd, vv, vd}
}

// HDT is true heading.
type HDT struct {
	Heading   float64
	malformed bool
}

func decodeHDT(r *fieldReader) Payload {
	h := HDT{Heading: r.float(0)}
	if r.str(1) != "T" && r.str(1) != "" {
		r.malformed = true
	}
	h.malformed = r.malformed
	return h
}

func (HDT) SentenceID() SentenceID { return TypeHDT }

func (h HDT) Valid() bool {
	return !h.malformed && !math.IsNaN(h.Heading)
}

func (h HDT) MarshalFields() []string {
	return []string{formatFloat(h.Heading, 1), "T"}
}

// HDM is magnetic heading.
type HDM struct {
	Heading   float64
	malformed bool
}

func decodeHDM(r *fieldReader) Payload {
	h := HDM{Heading: r.float(0)}
	if r.str(1) != "M" && r.str(1) != "" {
		r.malformed = true
	}
	h.malformed = r.malformed
	return h
}

func (HDM) SentenceID() SentenceID { return TypeHDM }

func (h HDM) Valid() bool {
	return !h.malformed && !math.IsNaN(h.Heading)
}

func (h HDM) MarshalFields() []string {
	return []string{formatFloat(h.Heading, 1), "M"}
}

// ROT is rate of turn in degrees per minute, negative to port.
type ROT struct {
	Rate      float64
	Status    string
	malformed bool
}

func decodeROT(r *fieldReader) Payload {
	o := ROT{Rate: r.float(0), Status: r.str(1)}
	o.malformed = r.malformed
	return o
}

func (ROT) SentenceID() SentenceID { return TypeROT }

func (o ROT) Valid() bool {
	return !o.malformed && o.Status == "A" && !math.IsNaN(o.Rate)
}

func (o ROT) MarshalFields() []string {
	return []string{formatFloat(o.Rate, 1), o.Status}
}

// RSA is rudder sensor angle, negative to port.
type RSA struct {
	Starboard       float64
	StarboardStatus string
	Port            float64
	PortStatus      string
	malformed       bool
}

func decodeRSA(r *fieldReader) Payload {
	o := RSA{
		Starboard:       r.float(0),
		StarboardStatus: r.str(1),
		Port:            r.float(2),
		PortStatus:      r.str(3),
	}
	o.malformed = r.malformed
	return o
}

func (RSA) SentenceID() SentenceID { return TypeRSA }

func (o RSA) Valid() bool {
	return !o.malformed && o.StarboardStatus == "A" && !math.IsNaN(o.Starboard)
}

func (o RSA) MarshalFields() []string {
	return []string{formatFloat(o.Starboard, 1), o.StarboardStatus, formatFloat(o.Port, 1), o.PortStatus}
}

// NormalizeAngle maps a in degrees to [0, 360).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}
