package router

import (
	"sync"
	"time"

	"github.com/shipnav/nmearouter/common"
)

// Liveness records when each source was last heard from. Entries are never
// removed; a source that stops talking just ages.
type Liveness struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	watches map[string][]*watch
	now     func() time.Time
}

func NewLiveness(now func() time.Time) *Liveness {
	if now == nil {
		now = time.Now
	}
	return &Liveness{
		seen:    make(map[string]time.Time),
		watches: make(map[string][]*watch),
		now:     now,
	}
}

// Touch marks source as seen at t.
func (l *Liveness) Touch(source string, t time.Time) {
	l.mu.Lock()
	if prev, ok := l.seen[source]; !ok || t.After(prev) {
		l.seen[source] = t
	}
	watches := l.watches[source]
	l.mu.Unlock()

	for _, w := range watches {
		w.poke()
	}
}

// Age returns the time since source was last seen. ok is false for a
// source that never sent anything.
func (l *Liveness) Age(source string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.seen[source]
	if !ok {
		return 0, false
	}
	return l.now().Sub(t), true
}

// IsStale reports whether source has been silent for longer than window.
// Unknown sources are stale.
func (l *Liveness) IsStale(source string, window time.Duration) bool {
	age, ok := l.Age(source)
	return !ok || age > window
}

// Snapshot returns the age of every source seen so far.
func (l *Liveness) Snapshot() map[string]time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	out := make(map[string]time.Duration, len(l.seen))
	for s, t := range l.seen {
		out[s] = now.Sub(t)
	}
	return out
}

// Watch calls onChange(false) when source stays silent for window and
// onChange(true) when it is heard from again. The returned func stops the
// watch. Watches run on wall clock time.
func (l *Liveness) Watch(source string, window time.Duration, onChange func(online bool)) (stop func()) {
	w := &watch{
		wd:       common.NewWatchDog(window, func() { onChange(false) }),
		onChange: onChange,
	}
	l.mu.Lock()
	l.watches[source] = append(l.watches[source], w)
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.wd.Stop()
			l.mu.Lock()
			defer l.mu.Unlock()
			ws := l.watches[source]
			for i := range ws {
				if ws[i] == w {
					l.watches[source] = append(ws[:i:i], ws[i+1:]...)
					break
				}
			}
		})
	}
}

type watch struct {
	wd       *common.WatchDog
	onChange func(online bool)
}

func (w *watch) poke() {
	if w.wd.Poke() {
		w.onChange(true)
	}
}
