/*
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	router.go: fan-in of all endpoints into one dispatcher that applies the
	rule table and writes to the destination endpoints.
*/

package router

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/endpoint"
	"github.com/shipnav/nmearouter/nmea"
	log "github.com/sirupsen/logrus"
	"github.com/tevino/abool/v2"
)

// ErrDuplicateEndpoint is returned by AddEndPoint for a name already in use.
var ErrDuplicateEndpoint = errors.New("router: duplicate endpoint name")

// Observer sees every sentence the router receives, before routing.
type Observer interface {
	OnNewSentence(source string, s nmea.Sentence)
}

type ObserverFunc func(source string, s nmea.Sentence)

func (f ObserverFunc) OnNewSentence(source string, s nmea.Sentence) { f(source, s) }

// RawLogger receives sentences matched by a rule with LogRaw set.
type RawLogger interface {
	LogRaw(source string, s nmea.Sentence)
}

type Option func(*Router)

func WithMetrics(m *Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

func WithRawLogger(l RawLogger) Option {
	return func(r *Router) { r.rawLog = l }
}

// WithLivenessWindow sets after how much silence a source counts as offline.
func WithLivenessWindow(d time.Duration) Option {
	return func(r *Router) { r.livenessWindow = d }
}

func WithPreferredSource(name string) Option {
	return func(r *Router) { r.preferred = name }
}

// WithCacheMaxAge sets how old a cached fix may be to answer queries.
func WithCacheMaxAge(d time.Duration) Option {
	return func(r *Router) { r.cacheMaxAge = d }
}

func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

type inboxItem struct {
	source string
	s      nmea.Sentence
}

type registration struct {
	ep          endpoint.Endpoint
	unsubscribe func()
	stopWatch   func()
}

// Router dispatches the sentences of all registered endpoints through the
// rule table. It does not own the endpoints, except through Dispose.
type Router struct {
	log            *log.Entry
	table          *RuleTable
	liveness       *Liveness
	cache          *Cache
	metrics        *Metrics
	rawLog         RawLogger
	livenessWindow time.Duration
	cacheMaxAge    time.Duration
	preferred      string
	queueSize      int
	now            func() time.Time

	inbox   chan inboxItem
	status  chan endpoint.Status
	eh      *common.ExitHelper
	started *abool.AtomicBool

	mu        sync.RWMutex
	endpoints map[string]*registration
	order     []string
	observers map[uint64]Observer
	nextObs   uint64

	statusMu sync.Mutex
	statuses map[string]endpoint.Status

	errMu  sync.Mutex
	errLog map[string]*errorWindow
}

type errorWindow struct {
	last       time.Time
	suppressed int
}

func New(opts ...Option) *Router {
	r := &Router{
		log:            common.Logger("router"),
		table:          NewRuleTable(),
		livenessWindow: common.LIVENESS_WINDOW,
		cacheMaxAge:    common.POSITION_MAX_AGE,
		queueSize:      common.DISPATCH_QUEUE_LEN,
		now:            time.Now,
		status:         make(chan endpoint.Status, 64),
		eh:             common.NewExitHelper(),
		started:        abool.New(),
		endpoints:      make(map[string]*registration),
		observers:      make(map[uint64]Observer),
		statuses:       make(map[string]endpoint.Status),
		errLog:         make(map[string]*errorWindow),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	r.liveness = NewLiveness(r.now)
	r.cache = NewCache(r.cacheMaxAge, r.preferred, r.now)
	r.inbox = make(chan inboxItem, r.queueSize)
	return r
}

func (r *Router) Table() *RuleTable { return r.table }

func (r *Router) Liveness() *Liveness { return r.liveness }

func (r *Router) Cache() *Cache { return r.cache }

func (r *Router) Metrics() *Metrics { return r.metrics }

func (r *Router) IsStarted() bool { return r.started.IsSet() }

// QueueLength is the number of sentences waiting for the dispatcher.
func (r *Router) QueueLength() int { return len(r.inbox) }

func (r *Router) env() Env {
	return Env{Liveness: r.liveness, Cache: r.cache}
}

func (r *Router) endpointNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Endpoint returns the registered endpoint called name.
func (r *Router) Endpoint(name string) (endpoint.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.endpoints[name]
	if !ok {
		return nil, false
	}
	return reg.ep, true
}

// StatusChannel is handed to endpoint.WithStatus so endpoints report their
// connection state to the router.
func (r *Router) StatusChannel() chan<- endpoint.Status {
	return r.status
}

// AddEndPoint registers ep and subscribes to its sentences and errors.
func (r *Router) AddEndPoint(ep endpoint.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := ep.Name()
	if _, ok := r.endpoints[name]; ok {
		return fmt.Errorf("%w %q", ErrDuplicateEndpoint, name)
	}
	reg := &registration{ep: ep}
	r.endpoints[name] = reg
	r.order = append(r.order, name)
	r.subscribe(reg)
	if r.started.IsSet() {
		r.watch(reg)
	}
	return nil
}

// AddFilterRule appends rule to the table. The table cannot change while
// the router is started.
func (r *Router) AddFilterRule(rule FilterRule) error {
	return r.table.Add(rule)
}

func (r *Router) AddFilterRules(rules []FilterRule) error {
	for _, rule := range rules {
		if err := r.table.Add(rule); err != nil {
			return err
		}
	}
	return nil
}

// RegisterTransform makes f available to rules as Named(name).
func (r *Router) RegisterTransform(name string, f TransformFunc) error {
	return r.table.RegisterTransform(name, f)
}

// Subscribe registers an observer of all received traffic.
func (r *Router) Subscribe(o Observer) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = o
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.observers, id)
			r.mu.Unlock()
		})
	}
}

// must hold r.mu
func (r *Router) subscribe(reg *registration) {
	if reg.unsubscribe != nil {
		return
	}
	reg.unsubscribe = reg.ep.Subscribe(endpoint.HandlerFuncs{
		Sentence: func(src endpoint.Endpoint, s nmea.Sentence) {
			r.enqueue(src.Name(), s)
		},
		Error: func(src endpoint.Endpoint, message string, code nmea.ErrorCode) {
			r.reportError(src.Name(), message, code)
		},
	})
}

// must hold r.mu
func (r *Router) watch(reg *registration) {
	if reg.stopWatch != nil {
		return
	}
	name := reg.ep.Name()
	reg.stopWatch = r.liveness.Watch(name, r.livenessWindow, func(online bool) {
		if online {
			r.log.WithField("source", name).Info("source online")
			r.metrics.Online.WithLabelValues(name).Set(1)
		} else {
			r.log.WithField("source", name).Warnf("source offline, no data for %s", r.livenessWindow)
			r.metrics.Online.WithLabelValues(name).Set(0)
		}
	})
}

// StartDecode starts the dispatcher. Calling it again is a no-op.
func (r *Router) StartDecode() error {
	if !r.started.SetToIf(false, true) {
		return nil
	}
	r.table.setFrozen(true)

	r.mu.Lock()
	for _, name := range r.order {
		reg := r.endpoints[name]
		r.subscribe(reg)
		r.watch(reg)
	}
	r.mu.Unlock()

	r.eh.Go(r.dispatchLoop)
	r.log.Infof("started with %d endpoints and %d rules", len(r.endpointNames()), r.table.Len())
	return nil
}

// StopDecode unsubscribes from all endpoints, then stops the dispatcher.
// The endpoints keep running.
func (r *Router) StopDecode() {
	r.mu.Lock()
	for _, reg := range r.endpoints {
		if reg.unsubscribe != nil {
			reg.unsubscribe()
			reg.unsubscribe = nil
		}
		if reg.stopWatch != nil {
			reg.stopWatch()
			reg.stopWatch = nil
		}
	}
	r.mu.Unlock()

	r.eh.Exit()
	r.table.setFrozen(false)
	r.started.UnSet()
}

// Dispose stops the router and then every registered endpoint.
func (r *Router) Dispose() {
	r.StopDecode()
	for _, name := range r.endpointNames() {
		r.mu.RLock()
		reg := r.endpoints[name]
		r.mu.RUnlock()
		reg.ep.StopDecode()
	}
}

// SendSentence routes s as if it was received from the Local source.
func (r *Router) SendSentence(s nmea.Sentence) {
	r.enqueue(common.EndpointLocal, s)
}

func (r *Router) SendSentences(ss []nmea.Sentence) {
	for _, s := range ss {
		r.enqueue(common.EndpointLocal, s)
	}
}

func (r *Router) enqueue(source string, s nmea.Sentence) {
	select {
	case r.inbox <- inboxItem{source: source, s: s}:
		r.metrics.QueueLength.Set(float64(len(r.inbox)))
	default:
		r.reportError(source, "dispatch queue full, sentence "+s.Header()+" dropped", nmea.MessageDropped)
	}
}

func (r *Router) dispatchLoop(quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case st := <-r.status:
			r.mergeStatus(st)
		case item := <-r.inbox:
			r.metrics.QueueLength.Set(float64(len(r.inbox)))
			r.dispatch(item.source, item.s)
		}
	}
}

// dispatch handles one sentence. Only the dispatcher goroutine calls it.
func (r *Router) dispatch(source string, s nmea.Sentence) {
	now := r.now()
	r.metrics.Received.WithLabelValues(source).Inc()
	r.liveness.Touch(source, now)
	r.cache.Update(source, s, now)

	r.mu.RLock()
	observers := make([]Observer, 0, len(r.observers))
	for _, o := range r.observers {
		observers = append(observers, o)
	}
	r.mu.RUnlock()
	for _, o := range observers {
		r.notify(o, source, s)
	}

	ev := r.table.Evaluate(r.env(), source, s)
	for _, e := range ev.Errors {
		r.reportError(source, e.Error(), e.Code())
	}
	if ev.LogRaw && r.rawLog != nil {
		r.rawLog.LogRaw(source, s)
	}

	for _, d := range ev.Deliveries {
		if d.Sentence == nil {
			r.metrics.Suppressed.WithLabelValues(d.Rule).Inc()
			continue
		}
		r.mu.RLock()
		reg, ok := r.endpoints[d.Destination]
		r.mu.RUnlock()
		if !ok {
			r.reportError(source, fmt.Sprintf("rule %s: unknown destination %q", d.Rule, d.Destination), nmea.UnknownDestination)
			continue
		}
		reg.ep.SendSentence(*d.Sentence)
		r.metrics.Routed.WithLabelValues(d.Destination).Inc()
	}
}

func (r *Router) notify(o Observer, source string, s nmea.Sentence) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("observer panicked on %s from %s: %v", s.Header(), source, p)
		}
	}()
	o.OnNewSentence(source, s)
}

// reportError counts every error and logs at most one per second and
// source.
func (r *Router) reportError(source, message string, code nmea.ErrorCode) {
	r.metrics.Errors.WithLabelValues(source, code.String()).Inc()

	now := r.now()
	r.errMu.Lock()
	w, ok := r.errLog[source]
	if !ok {
		w = &errorWindow{}
		r.errLog[source] = w
	}
	if now.Sub(w.last) < time.Second {
		w.suppressed++
		r.errMu.Unlock()
		return
	}
	suppressed := w.suppressed
	w.last, w.suppressed = now, 0
	r.errMu.Unlock()

	entry := r.log.WithFields(log.Fields{"source": source, "code": code.String()})
	if suppressed > 0 {
		entry = entry.WithField("suppressed", suppressed)
	}
	entry.Warn(message)
}

func (r *Router) mergeStatus(st endpoint.Status) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.statuses[st.Name] = endpoint.MergeStatus(r.statuses[st.Name], st)
}

func (r *Router) drainStatus() {
	for {
		select {
		case st := <-r.status:
			r.mergeStatus(st)
		default:
			return
		}
	}
}

// SourceStatus is the state of one endpoint as shown on the status page.
type SourceStatus struct {
	endpoint.Status
	Online   bool   `json:"online"`
	LastSeen string `json:"lastSeen,omitempty"`
	AgeMs    int64  `json:"ageMs"`
}

type Status struct {
	Started     bool           `json:"started"`
	Rules       int            `json:"rules"`
	QueueLength int            `json:"queueLength"`
	Endpoints   []SourceStatus `json:"endpoints"`
}

// Status returns a snapshot of the endpoints, their liveness and the
// dispatcher queue.
func (r *Router) Status() Status {
	r.drainStatus()
	out := Status{
		Started:     r.started.IsSet(),
		Rules:       r.table.Len(),
		QueueLength: len(r.inbox),
	}
	names := r.endpointNames()
	sort.Strings(names)

	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	for _, name := range names {
		ss := SourceStatus{Status: r.statuses[name], AgeMs: -1}
		ss.Name = name
		if age, ok := r.liveness.Age(name); ok {
			ss.AgeMs = age.Milliseconds()
			ss.LastSeen = age.Truncate(time.Millisecond).String()
			ss.Online = age <= r.livenessWindow
		}
		out.Endpoints = append(out.Endpoints, ss)
	}
	return out
}
