package router

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shipnav/nmearouter/nmea"
)

// ErrRouterStarted is returned when the rule table is changed while the
// router dispatches.
var ErrRouterStarted = errors.New("router: rules cannot change while started")

// Delivery is one (destination, sentence) pair produced by a rule. A nil
// Sentence means the transform suppressed this destination.
type Delivery struct {
	Destination string
	Sentence    *nmea.Sentence
	Rule        string
}

// TransformError reports a transform that failed or panicked. The affected
// delivery is suppressed.
type TransformError struct {
	Rule        string
	Destination string
	Err         error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform of rule %s for %s: %v", e.Rule, e.Destination, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

func (e *TransformError) Code() nmea.ErrorCode { return nmea.TransformException }

// Evaluation is the result of running the rule table over one sentence.
type Evaluation struct {
	Deliveries []Delivery
	Matched    []string // labels of the matching rules, in order
	LogRaw     bool
	Errors     []*TransformError
}

// RuleTable is the ordered list of filter rules plus the registry of named
// transforms they may reference.
type RuleTable struct {
	mu     sync.RWMutex
	rules  []FilterRule
	funcs  map[string]TransformFunc
	frozen bool
}

func NewRuleTable() *RuleTable {
	t := &RuleTable{funcs: make(map[string]TransformFunc)}
	t.funcs[TransformHDGToHDT] = hdgToHDT
	return t
}

// Add appends a rule.
func (t *RuleTable) Add(r FilterRule) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return ErrRouterStarted
	}
	r.Sentences = append([]nmea.SentenceID(nil), r.Sentences...)
	r.Destinations = append([]string(nil), r.Destinations...)
	t.rules = append(t.rules, r)
	return nil
}

// RegisterTransform makes f available to rules as Named(name).
func (t *RuleTable) RegisterTransform(name string, f TransformFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return ErrRouterStarted
	}
	t.funcs[name] = f
	return nil
}

func (t *RuleTable) HasTransform(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.funcs[name]
	return ok
}

func (t *RuleTable) Rules() []FilterRule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]FilterRule(nil), t.rules...)
}

func (t *RuleTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rules)
}

func (t *RuleTable) setFrozen(f bool) {
	t.mu.Lock()
	t.frozen = f
	t.mu.Unlock()
}

// Evaluate runs the rules in order over s received from source. Every
// matching rule records one delivery per destination, running the
// transform separately for each. Evaluation stops after the first matching
// rule with Continue unset. A sentence no rule matches yields no deliveries.
func (t *RuleTable) Evaluate(env Env, source string, s nmea.Sentence) Evaluation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ev Evaluation
	for i, r := range t.rules {
		if !r.Matches(source, s) {
			continue
		}
		label := r.label(i)
		ev.Matched = append(ev.Matched, label)
		if r.LogRaw {
			ev.LogRaw = true
		}
		for _, dest := range r.Destinations {
			c := TransformContext{Env: env, Source: source, Destination: dest}
			out, ok, err := t.runTransform(r.Transform, c, s)
			d := Delivery{Destination: dest, Rule: label}
			if err != nil {
				ev.Errors = append(ev.Errors, &TransformError{Rule: label, Destination: dest, Err: err})
			} else if ok {
				d.Sentence = &out
			}
			ev.Deliveries = append(ev.Deliveries, d)
		}
		if !r.Continue {
			break
		}
	}
	return ev
}

func (t *RuleTable) runTransform(tr Transform, c TransformContext, s nmea.Sentence) (out nmea.Sentence, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, ok, err = s, false, fmt.Errorf("panic: %v", p)
		}
	}()
	return tr.apply(t.funcs, c, s)
}
