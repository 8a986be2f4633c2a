/*
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	fields.go: typed field decoding and encoding shared by all payloads.
*/

package nmea

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Payload is the typed content of a recognized sentence.
type Payload interface {
	SentenceID() SentenceID
	// Valid is false when a field was malformed or the sender flagged the
	// data as void.
	Valid() bool
	// MarshalFields renders the payload as a wire field list.
	MarshalFields() []string
}

// Unknown marks integer fields that were empty on the wire.
const Unknown = -999

type decoder func(r *fieldReader) Payload

var decoders = map[SentenceID]decoder{}

func register(id SentenceID, d decoder) {
	decoders[id] = d
}

// Recognized reports whether id decodes into a typed payload.
func Recognized(id SentenceID) bool {
	_, ok := decoders[id]
	return ok
}

func decode(id SentenceID, fields []string) Payload {
	d, ok := decoders[id]
	if !ok {
		return nil
	}
	return d(&fieldReader{fields: fields})
}

// fieldReader reads typed values out of a field list. Empty fields become
// NaN/Unknown, unparsable fields additionally mark the reader malformed.
type fieldReader struct {
	fields    []string
	malformed bool
}

func (r *fieldReader) str(i int) string {
	if i < 0 || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

func (r *fieldReader) count() int {
	return len(r.fields)
}

func (r *fieldReader) float(i int) float64 {
	s := r.str(i)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.malformed = true
		return math.NaN()
	}
	return v
}

func (r *fieldReader) int(i int) int {
	s := r.str(i)
	if s == "" {
		return Unknown
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.malformed = true
		return Unknown
	}
	return v
}

// signed applies a direction letter to a magnitude; neg is the letter that
// makes the value negative (W, S, L).
func (r *fieldReader) signed(i, dir int, neg string) float64 {
	v := r.float(i)
	if r.str(dir) == neg {
		v = -v
	}
	return v
}

// degrees parses ddmm.mmmm / dddmm.mmmm with its hemisphere letter.
func (r *fieldReader) degrees(i, hemi int, neg string) float64 {
	s := r.str(i)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		r.malformed = true
		return math.NaN()
	}
	deg := math.Floor(v / 100)
	min := v - deg*100
	if min >= 60 {
		r.malformed = true
		return math.NaN()
	}
	out := deg + min/60
	switch r.str(hemi) {
	case neg:
		out = -out
	case "N", "S", "E", "W":
	default:
		r.malformed = true
		return math.NaN()
	}
	return out
}

func (r *fieldReader) timeOfDay(i int) TimeOfDay {
	s := r.str(i)
	if s == "" {
		return TimeOfDay{}
	}
	if len(s) < 6 {
		r.malformed = true
		return TimeOfDay{}
	}
	h, err1 := strconv.Atoi(s[0:2])
	m, err2 := strconv.Atoi(s[2:4])
	sec, err3 := strconv.ParseFloat(s[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil || h > 23 || m > 59 || sec >= 61 {
		r.malformed = true
		return TimeOfDay{}
	}
	return TimeOfDay{
		Valid:       true,
		Hour:        h,
		Minute:      m,
		Second:      int(sec),
		Millisecond: int(math.Round((sec - math.Floor(sec)) * 1000)),
	}
}

func (r *fieldReader) date(i int) Date {
	s := r.str(i)
	if s == "" {
		return Date{}
	}
	if len(s) != 6 {
		r.malformed = true
		return Date{}
	}
	d, err1 := strconv.Atoi(s[0:2])
	m, err2 := strconv.Atoi(s[2:4])
	y, err3 := strconv.Atoi(s[4:6])
	if err1 != nil || err2 != nil || err3 != nil || d < 1 || d > 31 || m < 1 || m > 12 {
		r.malformed = true
		return Date{}
	}
	// Two digit years pivot at 1980, the GPS epoch.
	if y < 80 {
		y += 2000
	} else {
		y += 1900
	}
	return Date{Valid: true, Day: d, Month: m, Year: y}
}

// TimeOfDay is a UTC hhmmss.sss field.
type TimeOfDay struct {
	Valid       bool
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

func (t TimeOfDay) String() string {
	if !t.Valid {
		return ""
	}
	return fmt.Sprintf("%02d%02d%02d.%02d", t.Hour, t.Minute, t.Second, t.Millisecond/10)
}

// Duration is the time since midnight.
func (t TimeOfDay) Duration() float64 {
	return float64(3600*t.Hour+60*t.Minute+t.Second) + float64(t.Millisecond)/1000
}

// Date is a ddmmyy field.
type Date struct {
	Valid bool
	Day   int
	Month int
	Year  int
}

func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return fmt.Sprintf("%02d%02d%02d", d.Day, d.Month, d.Year%100)
}

// At returns the UTC instant of t on day d.
func (d Date) At(t TimeOfDay) (time.Time, bool) {
	if !d.Valid || !t.Valid {
		return time.Time{}, false
	}
	return time.Date(d.Year, time.Month(d.Month), d.Day, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC), true
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func formatInt(v int) string {
	if v == Unknown {
		return ""
	}
	return strconv.Itoa(v)
}

func formatInt2(v int) string {
	if v == Unknown {
		return ""
	}
	return fmt.Sprintf("%02d", v)
}

func formatInt3(v int) string {
	if v == Unknown {
		return ""
	}
	return fmt.Sprintf("%03d", v)
}

// formatSigned splits a signed value into magnitude and direction letter.
func formatSigned(v float64, prec int, pos, neg string) (string, string) {
	if math.IsNaN(v) {
		return "", ""
	}
	if v < 0 {
		return formatFloat(-v, prec), neg
	}
	return formatFloat(v, prec), pos
}

func formatDegrees(v float64, width int, pos, neg string) (string, string) {
	if math.IsNaN(v) {
		return "", ""
	}
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	min := math.Round((v-deg)*60*10000) / 10000
	if min >= 60 {
		deg++
		min -= 60
	}
	return fmt.Sprintf("%0*d%07.4f", width, int(deg), min), hemi
}

func formatLatitude(v float64) (string, string) {
	return formatDegrees(v, 2, "N", "S")
}

func formatLongitude(v float64) (string, string) {
	return formatDegrees(v, 3, "E", "W")
}

func isNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
