package endpoint

import (
	"sync"

	"github.com/shipnav/nmearouter/nmea"
	"github.com/tevino/abool/v2"
)

// Loopback is an in-process endpoint. Inject feeds lines as if they were
// received; sent sentences are kept and can be read back with Sent. It
// connects the router to in-process consumers and replays recorded logs.
type Loopback struct {
	base
	started *abool.AtomicBool
	limit   int

	mu   sync.Mutex
	sent []nmea.Sentence
}

// NewLoopback keeps at most limit sent sentences (0 keeps all).
func NewLoopback(name string, limit int, opts ...Option) *Loopback {
	l := &Loopback{started: abool.New(), limit: limit}
	l.base.init(name, KindLoopback, opts)
	return l
}

func (l *Loopback) StartDecode() error {
	if l.started.SetToIf(false, true) {
		l.announce(connected(true, ""))
	}
	return nil
}

func (l *Loopback) StopDecode() {
	if l.started.SetToIf(true, false) {
		l.announce(connected(false, ""))
	}
}

// Inject handles line as received input. It is ignored while stopped.
func (l *Loopback) Inject(line string) {
	if !l.started.IsSet() {
		return
	}
	l.handleBlock(l, line)
}

func (l *Loopback) SendSentence(s nmea.Sentence) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, s)
	if l.limit > 0 && len(l.sent) > l.limit {
		l.sent = l.sent[len(l.sent)-l.limit:]
	}
}

func (l *Loopback) SendSentences(ss []nmea.Sentence) {
	for _, s := range ss {
		l.SendSentence(s)
	}
}

// Sent returns a copy of the sentences sent to the endpoint.
func (l *Loopback) Sent() []nmea.Sentence {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]nmea.Sentence(nil), l.sent...)
}

// Reset forgets the sent sentences.
func (l *Loopback) Reset() {
	l.mu.Lock()
	l.sent = nil
	l.mu.Unlock()
}
