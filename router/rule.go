package router

import (
	"fmt"
	"strings"

	"github.com/shipnav/nmearouter/nmea"
)

// AnySource matches every source name in a rule.
const AnySource = "*"

// FilterRule is one entry of the ordered rule table. A rule without
// destinations drops what it matches; with Continue unset it also hides the
// sentence from all later rules.
type FilterRule struct {
	Name         string
	Source       string
	Talker       nmea.TalkerID
	Sentences    []nmea.SentenceID // empty matches any sentence
	Destinations []string
	Transform    Transform
	Continue     bool
	LogRaw       bool
}

// ParseSentenceIDs splits a matcher like "RMB|RTE|WPL". "*" and "" match
// any sentence and yield nil.
func ParseSentenceIDs(s string) []nmea.SentenceID {
	var out []nmea.SentenceID
	for _, part := range strings.Split(s, "|") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if nmea.SentenceID(part) == nmea.AnySentence {
			return nil
		}
		out = append(out, nmea.SentenceID(part))
	}
	return out
}

// Matches reports whether the rule applies to s received from source.
func (r FilterRule) Matches(source string, s nmea.Sentence) bool {
	if r.Source != AnySource && r.Source != source {
		return false
	}
	if r.Talker != "" && r.Talker != nmea.AnyTalker && r.Talker != s.Talker() {
		return false
	}
	if len(r.Sentences) == 0 {
		return true
	}
	for _, id := range r.Sentences {
		if id == nmea.AnySentence || id == s.ID() {
			return true
		}
	}
	return false
}

func (r FilterRule) String() string {
	talker := r.Talker
	if talker == "" {
		talker = nmea.AnyTalker
	}
	ids := make([]string, 0, len(r.Sentences))
	for _, id := range r.Sentences {
		ids = append(ids, string(id))
	}
	sentences := strings.Join(ids, "|")
	if sentences == "" {
		sentences = string(nmea.AnySentence)
	}
	return fmt.Sprintf("%s:%s%s -> [%s]", r.Source, talker, sentences, strings.Join(r.Destinations, ","))
}

func (r FilterRule) label(index int) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("rule-%d", index)
}
