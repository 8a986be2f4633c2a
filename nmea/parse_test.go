package nmea

import (
	"errors"
	"math"
	"testing"
	"time"
)

const ggaScenario = "$GPGGA,163810.000,4728.7027,N,00929.9666,E,2,12,0.6,397.4,M,46.8,M,,*52"

func TestParse_GGAScenario(t *testing.T) {
	s, err := Parse(ggaScenario)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Talker() != TalkerGPS || s.ID() != TypeGGA {
		t.Fatalf("header = %s%s", s.Talker(), s.ID())
	}
	g, ok := s.Payload().(GGA)
	if !ok {
		t.Fatalf("payload type %T", s.Payload())
	}
	if math.Abs(g.Latitude-47.478378) > 1e-6 {
		t.Fatalf("lat = %f", g.Latitude)
	}
	if math.Abs(g.Longitude-9.499443) > 1e-6 {
		t.Fatalf("lon = %f", g.Longitude)
	}
	if math.Abs(g.Altitude()-444.2) > 1e-9 {
		t.Fatalf("altitude = %f", g.Altitude())
	}
	if g.Quality != DifferentialFix {
		t.Fatalf("quality = %s", g.Quality)
	}
	if g.Satellites != 12 {
		t.Fatalf("satellites = %d", g.Satellites)
	}
	if g.HDOP != 0.6 {
		t.Fatalf("hdop = %f", g.HDOP)
	}
	if !s.Valid() || !s.HasChecksum() {
		t.Fatalf("expected valid sentence with checksum")
	}
	if got := s.Serialize(); got != ggaScenario {
		t.Fatalf("serialize = %q", got)
	}
}

func TestParse_TrimsLineEnding(t *testing.T) {
	s, err := Parse(ggaScenario + "\r\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if string(s.Bytes()) != ggaScenario+"\r\n" {
		t.Fatalf("bytes = %q", s.Bytes())
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		line string
		code ErrorCode
		is   error
	}{
		{"empty", "", NoSyncByte, ErrNoSyncByte},
		{"no sync", "GPGGA,1,2", NoSyncByte, ErrNoSyncByte},
		{"short header", "$GPGG,1,2", MalformedHeader, ErrMalformedHeader},
		{"lowercase header", "$gpgga,1,2", MalformedHeader, ErrMalformedHeader},
		{"bad checksum", ggaScenario[:len(ggaScenario)-2] + "00", ChecksumInvalid, ErrInvalidChecksum},
		{"one digit checksum", "$HEHDT,274.1,T*2", ChecksumInvalid, ErrInvalidChecksum},
		{"non hex checksum", "$HEHDT,274.1,T*ZZ", ChecksumInvalid, ErrInvalidChecksum},
		{"long checksum", "$HEHDT,274.1,T*2F0", ChecksumInvalid, ErrInvalidChecksum},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.line)
			if err == nil {
				t.Fatalf("expected error")
			}
			if CodeOf(err) != tc.code {
				t.Fatalf("code = %s, want %s", CodeOf(err), tc.code)
			}
			if !errors.Is(err, tc.is) {
				t.Fatalf("errors.Is(%v, %v) = false", err, tc.is)
			}
		})
	}
}

func TestParse_ChecksumOptional(t *testing.T) {
	s, err := Parse("$HEHDT,274.1,T")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.HasChecksum() {
		t.Fatalf("expected no checksum")
	}
	if got := s.Serialize(); got != "$HEHDT,274.1,T*2F" {
		t.Fatalf("serialize = %q", got)
	}
}

func TestParse_LowercaseChecksumPreserved(t *testing.T) {
	line := "$HEHDT,274.1,T*2f"
	s, err := Parse(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := s.Serialize(); got != line {
		t.Fatalf("serialize = %q", got)
	}
}

func TestParse_ProprietaryHeader(t *testing.T) {
	s, err := Parse("$PGRMZ,1494,f,3*23")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Talker() != "PG" || s.ID() != "RMZ" {
		t.Fatalf("talker %q id %q", s.Talker(), s.ID())
	}
	if s.Payload() != nil {
		t.Fatalf("expected raw sentence")
	}
	if s.Serialize() != "$PGRMZ,1494,f,3*23" {
		t.Fatalf("serialize = %q", s.Serialize())
	}
}

func TestParse_UnknownSentenceKeepsFields(t *testing.T) {
	line := "$GPTXT,01,01,02,ANTENNA OK*36"
	s, err := Parse(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.NumFields() != 4 || s.Field(3) != "ANTENNA OK" || s.Field(9) != "" {
		t.Fatalf("fields = %v", s.Fields())
	}
	if s.Serialize() != line {
		t.Fatalf("serialize = %q", s.Serialize())
	}
}

func TestParse_EncapsulatedSentence(t *testing.T) {
	line := AppendChecksum("!AIVDM,1,1,,B,15MwkT1P37G?fl0EJbR0OwT0@MS,0")
	s, err := Parse(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Start() != EncapsulatedDelimiter || s.Talker() != TalkerAIS || s.ID() != "VDM" {
		t.Fatalf("unexpected header %c%s", s.Start(), s.Header())
	}
	if s.Serialize() != line {
		t.Fatalf("serialize = %q, want %q", s.Serialize(), line)
	}
}

func TestParse_MalformedFieldDegrades(t *testing.T) {
	s, err := Parse("$GPGGA,163810.00,47x8.7027,N,00929.9666,E,2,1z,0.6,397.4,M,46.8,M,,")
	if err != nil {
		t.Fatalf("malformed fields must not fail the parse: %v", err)
	}
	g := s.Payload().(GGA)
	if !math.IsNaN(g.Latitude) {
		t.Fatalf("lat = %f, want NaN", g.Latitude)
	}
	if g.Satellites != Unknown {
		t.Fatalf("satellites = %d, want Unknown", g.Satellites)
	}
	if g.Valid() || s.Valid() {
		t.Fatalf("expected invalid payload")
	}
	if math.Abs(g.Longitude-9.499443) > 1e-6 {
		t.Fatalf("lon = %f", g.Longitude)
	}
}

func TestParseAt_StampsTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := ParseAt(ggaScenario, at)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !s.Time().Equal(at) {
		t.Fatalf("time = %v", s.Time())
	}
}

func TestSentence_WithTalkerRecomputesChecksum(t *testing.T) {
	s, err := Parse(ggaScenario)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	n := s.WithTalker(TalkerGNSS)
	want := AppendChecksum("$GNGGA,163810.000,4728.7027,N,00929.9666,E,2,12,0.6,397.4,M,46.8,M,,")
	if n.Serialize() != want {
		t.Fatalf("serialize = %q, want %q", n.Serialize(), want)
	}
	if s.Talker() != TalkerGPS {
		t.Fatalf("original modified")
	}
}

func TestSentence_FieldsIsACopy(t *testing.T) {
	s, _ := Parse(ggaScenario)
	f := s.Fields()
	f[0] = "000000"
	if s.Field(0) != "163810.000" {
		t.Fatalf("sentence mutated through Fields()")
	}
}

func TestChecksum(t *testing.T) {
	if got := AppendChecksum("$GPGGA,163810.000,4728.7027,N,00929.9666,E,2,12,0.6,397.4,M,46.8,M,,"); got != ggaScenario {
		t.Fatalf("AppendChecksum = %q", got)
	}
	if got := AppendChecksum("HEHDT,274.1,T"); got != "HEHDT,274.1,T*2F" {
		t.Fatalf("AppendChecksum without delimiter = %q", got)
	}
}
