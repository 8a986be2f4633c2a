/*
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	parse.go: NMEA-0183 line parser, checksum helpers and error codes.
*/

package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrorCode classifies parse and routing failures reported by endpoints
// and the router.
type ErrorCode int

const (
	NoError ErrorCode = iota
	ChecksumInvalid
	NoSyncByte
	MalformedHeader
	MalformedField
	MessageDropped
	UnknownDestination
	TransformException
	IOError
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "NoError"
	case ChecksumInvalid:
		return "ChecksumInvalid"
	case NoSyncByte:
		return "NoSyncByte"
	case MalformedHeader:
		return "MalformedHeader"
	case MalformedField:
		return "MalformedField"
	case MessageDropped:
		return "MessageDropped"
	case UnknownDestination:
		return "UnknownDestination"
	case TransformException:
		return "TransformException"
	case IOError:
		return "IOError"
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

var (
	ErrNoSyncByte      = errors.New("nmea: no sync byte")
	ErrInvalidChecksum = errors.New("nmea: invalid checksum")
	ErrMalformedHeader = errors.New("nmea: malformed header")
)

// ParseError is returned by Parse. errors.Is matches it against the sentinel
// of its code.
type ParseError struct {
	Code   ErrorCode
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("nmea: %s: %s", e.Code, e.Reason)
}

func (e *ParseError) Is(target error) bool {
	switch e.Code {
	case NoSyncByte:
		return target == ErrNoSyncByte
	case ChecksumInvalid:
		return target == ErrInvalidChecksum
	case MalformedHeader:
		return target == ErrMalformedHeader
	}
	return false
}

// CodeOf extracts the ErrorCode of err, IOError for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return NoError
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return IOError
}

// Checksum is the XOR of all bytes between the start delimiter and '*'.
func Checksum(body string) byte {
	cs := byte(0)
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return cs
}

// AppendChecksum turns "$GPGGA,..." or "GPGGA,..." into a checksummed
// sentence without line terminator.
func AppendChecksum(sentence string) string {
	start := 0
	if len(sentence) > 0 && (sentence[0] == StartDelimiter || sentence[0] == EncapsulatedDelimiter) {
		start = 1
	}
	return fmt.Sprintf("%s*%02X", sentence, Checksum(sentence[start:]))
}

// Parse decodes one sentence, stamping it with the current time.
func Parse(line string) (Sentence, error) {
	return ParseAt(line, time.Now())
}

// ParseAt decodes one sentence. The checksum is optional; when present it
// must be exactly two hex digits matching the sentence body.
func ParseAt(line string, t time.Time) (Sentence, error) {
	line = strings.TrimSpace(line)
	if line == "" || (line[0] != StartDelimiter && line[0] != EncapsulatedDelimiter) {
		return Sentence{}, &ParseError{Code: NoSyncByte, Line: line, Reason: "sentence does not start with '$' or '!'"}
	}

	body := line[1:]
	style := checksumNone
	if star := strings.IndexByte(body, '*'); star >= 0 {
		cs := body[star+1:]
		body = body[:star]
		if len(cs) != 2 {
			return Sentence{}, &ParseError{Code: ChecksumInvalid, Line: line, Reason: fmt.Sprintf("checksum %q is not two hex digits", cs)}
		}
		want, err := strconv.ParseUint(cs, 16, 8)
		if err != nil {
			return Sentence{}, &ParseError{Code: ChecksumInvalid, Line: line, Reason: fmt.Sprintf("checksum %q is not hex", cs)}
		}
		if got := Checksum(body); got != byte(want) {
			return Sentence{}, &ParseError{Code: ChecksumInvalid, Line: line, Reason: fmt.Sprintf("calculated %02X, sentence has %s", got, cs)}
		}
		style = checksumUpper
		if strings.ContainsAny(cs, "abcdef") {
			style = checksumLower
		}
	}

	parts := strings.Split(body, ",")
	header := parts[0]
	if len(header) < 5 {
		return Sentence{}, &ParseError{Code: MalformedHeader, Line: line, Reason: fmt.Sprintf("header %q is shorter than 5 characters", header)}
	}
	for i := 0; i < len(header); i++ {
		c := header[i]
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return Sentence{}, &ParseError{Code: MalformedHeader, Line: line, Reason: fmt.Sprintf("header %q has invalid characters", header)}
		}
	}

	s := Sentence{
		start:    line[0],
		talker:   TalkerID(header[:2]),
		id:       SentenceID(header[2:]),
		fields:   parts[1:],
		time:     t,
		checksum: style,
	}
	s.payload = decode(s.id, s.fields)
	return s, nil
}
