package router

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/endpoint"
	"github.com/shipnav/nmearouter/nmea"
	"github.com/tarm/serial"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func startedLoopback(t *testing.T, name string) *endpoint.Loopback {
	t.Helper()
	l := endpoint.NewLoopback(name, 0)
	if err := l.StartDecode(); err != nil {
		t.Fatalf("start %s: %v", name, err)
	}
	return l
}

// stalledPort accepts no writes until closed.
type stalledPort struct {
	closed chan struct{}
	once   sync.Once
}

func (p *stalledPort) Read(b []byte) (int, error) {
	<-p.closed
	return 0, errors.New("port closed")
}

func (p *stalledPort) Write(b []byte) (int, error) {
	<-p.closed
	return 0, errors.New("port closed")
}

func (p *stalledPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func TestRouter_RoutesBetweenEndpoints(t *testing.T) {
	handheld := startedLoopback(t, common.EndpointHandheld)
	ship := startedLoopback(t, common.EndpointShip)
	plotter := startedLoopback(t, common.EndpointPlotter)

	r := New(WithMetrics(NewMetrics(prometheus.NewRegistry())))
	for _, ep := range []endpoint.Endpoint{handheld, ship, plotter} {
		if err := r.AddEndPoint(ep); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	r.AddFilterRule(FilterRule{Name: "fix", Source: common.EndpointHandheld, Sentences: ParseSentenceIDs("GGA"),
		Destinations: []string{common.EndpointShip, common.EndpointPlotter}})
	r.AddFilterRule(FilterRule{Name: "heading", Source: common.EndpointShip, Sentences: ParseSentenceIDs("HDG"),
		Destinations: []string{common.EndpointPlotter}, Transform: Named(TransformHDGToHDT)})
	if err := r.StartDecode(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Dispose()

	handheld.Inject(lineGGA + "\r\n")
	ship.Inject(lineHDG + "\r\n")
	handheld.Inject(lineMTW + "\r\n")

	waitFor(t, "plotter deliveries", func() bool { return len(plotter.Sent()) == 2 })
	waitFor(t, "ship delivery", func() bool { return len(ship.Sent()) == 1 })
	if got := ship.Sent()[0].Serialize(); got != lineGGA {
		t.Fatalf("ship got %s", got)
	}
	if got := plotter.Sent()[1].ID(); got != nmea.TypeHDT {
		t.Fatalf("plotter got %s", got)
	}
	if len(handheld.Sent()) != 0 {
		t.Fatalf("handheld received %d sentences", len(handheld.Sent()))
	}

	m := r.Metrics()
	waitFor(t, "received counter", func() bool {
		return testutil.ToFloat64(m.Received.WithLabelValues(common.EndpointHandheld)) == 2
	})
	if got := testutil.ToFloat64(m.Routed.WithLabelValues(common.EndpointPlotter)); got != 2 {
		t.Fatalf("routed to plotter = %v", got)
	}
}

func TestRouter_CacheAndLivenessAreUpdated(t *testing.T) {
	handheld := startedLoopback(t, common.EndpointHandheld)
	r := New(WithPreferredSource(common.EndpointHandheld))
	r.AddEndPoint(handheld)
	r.StartDecode()
	defer r.StopDecode()

	handheld.Inject(lineGGA)
	waitFor(t, "position", func() bool {
		_, ok := r.Cache().TryGetCurrentPosition(AnySource, false)
		return ok
	})
	if _, ok := r.Liveness().Age(common.EndpointHandheld); !ok {
		t.Fatalf("liveness not updated")
	}
	st := r.Status()
	if len(st.Endpoints) != 1 || !st.Endpoints[0].Online || st.Endpoints[0].Name != common.EndpointHandheld {
		t.Fatalf("status = %+v", st)
	}
	if !st.Started {
		t.Fatalf("status not started")
	}
}

func TestRouter_SendSentenceFromLocal(t *testing.T) {
	ship := startedLoopback(t, common.EndpointShip)
	r := New()
	r.AddEndPoint(ship)
	r.AddFilterRule(FilterRule{Source: common.EndpointLocal, Destinations: []string{common.EndpointShip}})
	r.StartDecode()
	defer r.StopDecode()

	r.SendSentences([]nmea.Sentence{mustParse(t, lineMTW), mustParse(t, lineHDT)})
	waitFor(t, "local sentences", func() bool { return len(ship.Sent()) == 2 })
}

func TestRouter_ObserversSeeAllTraffic(t *testing.T) {
	handheld := startedLoopback(t, common.EndpointHandheld)
	r := New()
	r.AddEndPoint(handheld)

	var mu sync.Mutex
	var seen []string
	unsubscribe := r.Subscribe(ObserverFunc(func(source string, s nmea.Sentence) {
		mu.Lock()
		seen = append(seen, source+":"+s.Header())
		mu.Unlock()
	}))
	r.Subscribe(ObserverFunc(func(source string, s nmea.Sentence) { panic("observer bug") }))
	r.StartDecode()
	defer r.StopDecode()

	// no rule matches, observers are still told
	handheld.Inject(lineGGA)
	waitFor(t, "observer", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == "Handheld:GPGGA"
	})

	unsubscribe()
	handheld.Inject(lineMTW)
	r.SendSentence(mustParse(t, lineHDT))
	waitFor(t, "dispatch", func() bool {
		return testutil.ToFloat64(r.Metrics().Received.WithLabelValues(common.EndpointLocal)) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("observer called after unsubscribe: %v", seen)
	}
}

func TestRouter_UnknownDestinationAndTransformErrors(t *testing.T) {
	ship := startedLoopback(t, common.EndpointShip)
	r := New()
	r.AddEndPoint(ship)
	r.RegisterTransform("explode", func(c TransformContext, s nmea.Sentence) (nmea.Sentence, bool, error) {
		panic("transform bug")
	})
	r.AddFilterRule(FilterRule{Name: "broken", Source: AnySource, Destinations: []string{common.EndpointShip},
		Transform: Named("explode"), Continue: true})
	r.AddFilterRule(FilterRule{Name: "typo", Source: AnySource, Destinations: []string{"Shp", common.EndpointShip}})
	r.StartDecode()
	defer r.StopDecode()

	r.SendSentence(mustParse(t, lineMTW))
	waitFor(t, "delivery", func() bool { return len(ship.Sent()) == 1 })

	errs := r.Metrics().Errors
	waitFor(t, "error counters", func() bool {
		return testutil.ToFloat64(errs.WithLabelValues(common.EndpointLocal, nmea.UnknownDestination.String())) == 1 &&
			testutil.ToFloat64(errs.WithLabelValues(common.EndpointLocal, nmea.TransformException.String())) == 1
	})
	if got := testutil.ToFloat64(r.Metrics().Suppressed.WithLabelValues("broken")); got != 1 {
		t.Fatalf("suppressed = %v", got)
	}
}

func TestRouter_ParserErrorsAreCounted(t *testing.T) {
	handheld := startedLoopback(t, common.EndpointHandheld)
	r := New()
	r.AddEndPoint(handheld)
	r.StartDecode()
	defer r.StopDecode()

	handheld.Inject("garbage")
	handheld.Inject(lineGGA[:len(lineGGA)-2] + "00")
	handheld.Inject("garbage")
	errs := r.Metrics().Errors
	if got := testutil.ToFloat64(errs.WithLabelValues(common.EndpointHandheld, nmea.NoSyncByte.String())); got != 2 {
		t.Fatalf("NoSyncByte = %v", got)
	}
	if got := testutil.ToFloat64(errs.WithLabelValues(common.EndpointHandheld, nmea.ChecksumInvalid.String())); got != 1 {
		t.Fatalf("ChecksumInvalid = %v", got)
	}
}

func TestRouter_RulesAreFrozenWhileStarted(t *testing.T) {
	r := New()
	r.StartDecode()
	r.StartDecode()
	if err := r.AddFilterRule(FilterRule{Source: AnySource}); !errors.Is(err, ErrRouterStarted) {
		t.Fatalf("err = %v", err)
	}
	r.StopDecode()
	if err := r.AddFilterRule(FilterRule{Source: AnySource}); err != nil {
		t.Fatalf("err after stop = %v", err)
	}
}

func TestRouter_DuplicateEndpoint(t *testing.T) {
	r := New()
	if err := r.AddEndPoint(endpoint.NewLoopback("Ship", 0)); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := r.AddEndPoint(endpoint.NewLoopback("Ship", 0)); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Fatalf("err = %v", err)
	}
}

func TestRouter_StopUnsubscribesAndDisposeStopsEndpoints(t *testing.T) {
	handheld := startedLoopback(t, common.EndpointHandheld)
	ship := startedLoopback(t, common.EndpointShip)
	r := New(WithQueueSize(4))
	r.AddEndPoint(handheld)
	r.AddEndPoint(ship)
	r.AddFilterRule(FilterRule{Source: common.EndpointHandheld, Destinations: []string{common.EndpointShip}})
	r.StartDecode()
	r.StopDecode()

	handheld.Inject(lineGGA)
	if r.QueueLength() != 0 {
		t.Fatalf("sentence queued after StopDecode")
	}

	r.StartDecode()
	handheld.Inject(lineGGA)
	waitFor(t, "delivery after restart", func() bool { return len(ship.Sent()) == 1 })

	r.Dispose()
	handheld.Inject(lineGGA)
	time.Sleep(20 * time.Millisecond)
	if len(ship.Sent()) != 1 {
		t.Fatalf("delivery after Dispose")
	}
}

func TestRouter_BackpressureIsolation(t *testing.T) {
	port := &stalledPort{closed: make(chan struct{})}
	slow := endpoint.NewSerial("Autopilot", endpoint.SerialConfig{Device: "/dev/fake", Baud: 4800}, endpoint.WithQueueSize(4))
	slow.SetOpenFunc(func(c *serial.Config) (io.ReadWriteCloser, error) { return port, nil })
	if err := slow.StartDecode(); err != nil {
		t.Fatalf("start: %v", err)
	}
	fast := startedLoopback(t, common.EndpointPlotter)

	r := New()
	r.AddEndPoint(slow)
	r.AddEndPoint(fast)
	r.AddFilterRule(FilterRule{Source: common.EndpointLocal, Destinations: []string{"Autopilot", common.EndpointPlotter}})
	r.StartDecode()
	defer r.Dispose()

	const burst = 200
	s := mustParse(t, lineHDT)
	for i := 0; i < burst; i++ {
		r.SendSentence(s)
	}
	waitFor(t, "healthy destination", func() bool { return len(fast.Sent()) == burst })

	dropped := testutil.ToFloat64(r.Metrics().Errors.WithLabelValues("Autopilot", nmea.MessageDropped.String()))
	if dropped < burst-5-1 {
		t.Fatalf("dropped on slow destination = %v", dropped)
	}
}

func TestRouter_ErrorLogThrottleFollowsClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := New(WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		r.reportError(common.EndpointShip, "garbage", nmea.NoSyncByte)
	}
	w := r.errLog[common.EndpointShip]
	if !w.last.Equal(now) || w.suppressed != 2 {
		t.Fatalf("window = %+v", w)
	}

	now = now.Add(2 * time.Second)
	r.reportError(common.EndpointShip, "garbage", nmea.NoSyncByte)
	if !w.last.Equal(now) || w.suppressed != 0 {
		t.Fatalf("window after a second = %+v", w)
	}
	if got := testutil.ToFloat64(r.Metrics().Errors.WithLabelValues(common.EndpointShip, nmea.NoSyncByte.String())); got != 4 {
		t.Fatalf("errors = %v", got)
	}
}
