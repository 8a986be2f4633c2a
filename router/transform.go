package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/shipnav/nmearouter/nmea"
)

// TransformKind selects the behavior of a Transform.
type TransformKind int

const (
	TransformNone TransformKind = iota
	// TransformForwardIfStale delivers only while Source has been silent
	// for longer than MaxAge.
	TransformForwardIfStale
	// TransformDropIfStale delivers only while Source is alive.
	TransformDropIfStale
	TransformSetTalker
	TransformDropInvalid
	// TransformNamed runs a function registered on the rule table.
	TransformNamed
)

var transformKindNames = map[TransformKind]string{
	TransformNone:           "none",
	TransformForwardIfStale: "forward-if-stale",
	TransformDropIfStale:    "drop-if-stale",
	TransformSetTalker:      "set-talker",
	TransformDropInvalid:    "drop-invalid",
	TransformNamed:          "named",
}

func (k TransformKind) String() string {
	if s, ok := transformKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TransformKind(%d)", int(k))
}

// ParseTransformKind is the inverse of TransformKind.String.
func ParseTransformKind(s string) (TransformKind, error) {
	if s == "" {
		return TransformNone, nil
	}
	for k, name := range transformKindNames {
		if name == s {
			return k, nil
		}
	}
	return TransformNone, fmt.Errorf("unknown transform kind %q", s)
}

// Transform is plain data so rule tables can be loaded from configuration
// and compared in tests. Only the members used by Kind are meaningful.
type Transform struct {
	Kind   TransformKind
	Source string
	MaxAge time.Duration
	Talker nmea.TalkerID
	Name   string
}

func ForwardIfStale(source string, maxAge time.Duration) Transform {
	return Transform{Kind: TransformForwardIfStale, Source: source, MaxAge: maxAge}
}

func DropIfStale(source string, maxAge time.Duration) Transform {
	return Transform{Kind: TransformDropIfStale, Source: source, MaxAge: maxAge}
}

func SetTalker(t nmea.TalkerID) Transform {
	return Transform{Kind: TransformSetTalker, Talker: t}
}

func DropInvalid() Transform {
	return Transform{Kind: TransformDropInvalid}
}

func Named(name string) Transform {
	return Transform{Kind: TransformNamed, Name: name}
}

// Env is the router state a transform may consult.
type Env struct {
	Liveness *Liveness
	Cache    *Cache
}

// TransformContext describes one delivery a transform runs for.
type TransformContext struct {
	Env
	Source      string
	Destination string
}

// TransformFunc returns the sentence to deliver, or false to suppress the
// delivery to this one destination.
type TransformFunc func(c TransformContext, s nmea.Sentence) (nmea.Sentence, bool, error)

// ErrUnknownTransform is reported when a rule names an unregistered
// transform.
var ErrUnknownTransform = errors.New("router: unknown transform")

// TransformHDGToHDT is the name of the built-in transform turning magnetic
// sensor heading into true heading.
const TransformHDGToHDT = "hdg-to-hdt"

// hdgToHDT converts HDG into HDT using its deviation and variation. Other
// sentences pass unchanged; an invalid HDG is suppressed.
func hdgToHDT(c TransformContext, s nmea.Sentence) (nmea.Sentence, bool, error) {
	h, ok := s.Payload().(nmea.HDG)
	if !ok {
		return s, true, nil
	}
	if !h.Valid() {
		return s, false, nil
	}
	return s.WithPayload(nmea.HDT{Heading: h.TrueHeading()}), true, nil
}

func (t Transform) apply(funcs map[string]TransformFunc, c TransformContext, s nmea.Sentence) (nmea.Sentence, bool, error) {
	switch t.Kind {
	case TransformNone:
		return s, true, nil
	case TransformForwardIfStale:
		return s, c.Liveness.IsStale(t.Source, t.MaxAge), nil
	case TransformDropIfStale:
		return s, !c.Liveness.IsStale(t.Source, t.MaxAge), nil
	case TransformSetTalker:
		return s.WithTalker(t.Talker), true, nil
	case TransformDropInvalid:
		return s, s.Valid(), nil
	case TransformNamed:
		f, ok := funcs[t.Name]
		if !ok {
			return s, false, fmt.Errorf("%w %q", ErrUnknownTransform, t.Name)
		}
		return f(c, s)
	}
	return s, false, fmt.Errorf("router: bad transform kind %d", int(t.Kind))
}
