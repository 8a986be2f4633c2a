/*
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	sentence.go: NMEA-0183 sentence value and wire serialization.
*/

package nmea

import (
	"fmt"
	"strings"
	"time"
)

// TalkerID is the two letter code of the device class that sent a sentence.
type TalkerID string

// SentenceID is the code identifying the message type (GGA, RMC, ...).
type SentenceID string

// Wildcards used by filter rules. They never appear on the wire.
const (
	AnyTalker   TalkerID   = "*"
	AnySentence SentenceID = "*"
)

const (
	TalkerGPS        TalkerID = "GP"
	TalkerGNSS       TalkerID = "GN"
	TalkerGLONASS    TalkerID = "GL"
	TalkerGalileo    TalkerID = "GA"
	TalkerBeidou     TalkerID = "GB"
	TalkerIntegrated TalkerID = "II"
	TalkerWeather    TalkerID = "WI"
	TalkerSounder    TalkerID = "SD"
	TalkerHeading    TalkerID = "HC"
	TalkerAutopilot  TalkerID = "AP"
	TalkerEngine     TalkerID = "ER"
	TalkerAIS        TalkerID = "AI"
	TalkerAISBase    TalkerID = "AB"
	TalkerYachtDev   TalkerID = "YD" // NMEA2000 gateway
)

const (
	StartDelimiter        = '$'
	EncapsulatedDelimiter = '!'
)

type checksumStyle uint8

const (
	checksumNone checksumStyle = iota
	checksumUpper
	checksumLower
)

// Sentence is an immutable NMEA-0183 sentence. The raw field list is always
// kept so that sentences of unknown type serialize exactly as received.
// Recognized sentence ids additionally carry a typed Payload.
type Sentence struct {
	start    byte
	talker   TalkerID
	id       SentenceID
	fields   []string
	time     time.Time
	payload  Payload
	checksum checksumStyle
}

// NewSentence builds a sentence from a typed payload.
func NewSentence(talker TalkerID, p Payload, t time.Time) Sentence {
	return Sentence{
		start:    StartDelimiter,
		talker:   talker,
		id:       p.SentenceID(),
		fields:   p.MarshalFields(),
		time:     t,
		payload:  p,
		checksum: checksumUpper,
	}
}

// NewRawSentence builds a sentence from a raw field list. Recognized ids are
// decoded the same way Parse does.
func NewRawSentence(talker TalkerID, id SentenceID, fields []string, t time.Time) Sentence {
	f := append([]string(nil), fields...)
	return Sentence{
		start:    StartDelimiter,
		talker:   talker,
		id:       id,
		fields:   f,
		time:     t,
		payload:  decode(id, f),
		checksum: checksumUpper,
	}
}

func (s Sentence) Start() byte {
	if s.start == 0 {
		return StartDelimiter
	}
	return s.start
}

func (s Sentence) Talker() TalkerID { return s.talker }
func (s Sentence) ID() SentenceID   { return s.id }
func (s Sentence) Time() time.Time  { return s.time }
func (s Sentence) Payload() Payload { return s.payload }
func (s Sentence) NumFields() int   { return len(s.fields) }

// Header returns talker and sentence id as they appear on the wire, e.g. GPGGA.
func (s Sentence) Header() string {
	return string(s.talker) + string(s.id)
}

// Fields returns a copy of the raw field list (without the header).
func (s Sentence) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Field returns field i or "" when the sentence is shorter.
func (s Sentence) Field(i int) string {
	if i < 0 || i >= len(s.fields) {
		return ""
	}
	return s.fields[i]
}

// HasChecksum reports whether the sentence was received with a checksum.
func (s Sentence) HasChecksum() bool {
	return s.checksum != checksumNone
}

// Valid reports the validity flag of the typed payload. Raw sentences are
// always valid.
func (s Sentence) Valid() bool {
	if s.payload == nil {
		return true
	}
	return s.payload.Valid()
}

func (s Sentence) WithTalker(t TalkerID) Sentence {
	s.talker = t
	s.fields = s.Fields()
	return s
}

func (s Sentence) WithTime(t time.Time) Sentence {
	s.time = t
	return s
}

// WithPayload replaces the content of the sentence with p. The sentence id
// follows the payload and the checksum is recomputed on serialization.
func (s Sentence) WithPayload(p Payload) Sentence {
	s.id = p.SentenceID()
	s.fields = p.MarshalFields()
	s.payload = p
	if s.checksum == checksumNone {
		s.checksum = checksumUpper
	}
	return s
}

// WithFields replaces the raw fields and decodes them again.
func (s Sentence) WithFields(fields []string) Sentence {
	s.fields = append([]string(nil), fields...)
	s.payload = decode(s.id, s.fields)
	return s
}

func (s Sentence) body() string {
	var b strings.Builder
	b.WriteString(string(s.talker))
	b.WriteString(string(s.id))
	for _, f := range s.fields {
		b.WriteByte(',')
		b.WriteString(f)
	}
	return b.String()
}

// Serialize returns the wire representation without line terminator. The
// checksum is always computed from the current fields.
func (s Sentence) Serialize() string {
	body := s.body()
	format := "%c%s*%02X"
	if s.checksum == checksumLower {
		format = "%c%s*%02x"
	}
	return fmt.Sprintf(format, s.Start(), body, Checksum(body))
}

func (s Sentence) String() string {
	return s.Serialize()
}

// Bytes returns the serialized sentence terminated with CR LF.
func (s Sentence) Bytes() []byte {
	return []byte(s.Serialize() + "\r\n")
}
