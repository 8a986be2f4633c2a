/*
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	station.go: builds the endpoints, the router and its observers from the
	configuration and owns their lifetime.
*/

package station

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shipnav/nmearouter/ais"
	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/config"
	"github.com/shipnav/nmearouter/endpoint"
	"github.com/shipnav/nmearouter/measurements"
	"github.com/shipnav/nmearouter/rawlog"
	"github.com/shipnav/nmearouter/router"
	"github.com/shipnav/nmearouter/timesync"
	log "github.com/sirupsen/logrus"
	"github.com/tevino/abool/v2"
	"golang.org/x/exp/slices"
)

// Station is the running router with everything attached to it.
type Station struct {
	cfg          config.Config
	router       *router.Router
	endpoints    []endpoint.Endpoint
	measurements *measurements.Registry
	targets      *ais.TargetTable
	rawLog       *rawlog.Logger
	publisher    *measurements.MemcachePublisher
	timeSetter   *timesync.Setter
	unsubscribe  []func()

	mu      sync.Mutex
	pending map[string]endpoint.Endpoint // endpoints that failed to start

	eh          *common.ExitHelper
	initialized *abool.AtomicBool
	log         *log.Entry
}

// New builds the station. reg receives the router metrics and may be nil.
func New(cfg config.Config, reg prometheus.Registerer) (*Station, error) {
	s := &Station{
		cfg:          cfg,
		measurements: measurements.NewRegistry(),
		pending:      make(map[string]endpoint.Endpoint),
		eh:           common.NewExitHelper(),
		initialized:  abool.New(),
		log:          common.Logger("station"),
	}

	opts := []router.Option{
		router.WithMetrics(router.NewMetrics(reg)),
		router.WithLivenessWindow(cfg.Router.LivenessWindow),
		router.WithPreferredSource(cfg.Router.PreferredSource),
		router.WithCacheMaxAge(cfg.Router.PositionMaxAge),
		router.WithQueueSize(cfg.Router.QueueSize),
	}
	if cfg.RawLog.Enable {
		l, err := rawlog.Open(cfg.RawLog.Path, rawlog.Config{MinFreeBytes: cfg.RawLog.MinFreeMB * 1024 * 1024})
		if err != nil {
			return nil, err
		}
		s.rawLog = l
		opts = append(opts, router.WithRawLogger(l))
	}
	s.router = router.New(opts...)

	for _, ec := range cfg.Endpoints {
		ep, err := s.buildEndpoint(ec)
		if err != nil {
			s.closeRawLog()
			return nil, err
		}
		if err := s.router.AddEndPoint(ep); err != nil {
			s.closeRawLog()
			return nil, err
		}
		s.endpoints = append(s.endpoints, ep)
	}

	rules, err := cfg.FilterRules()
	if err != nil {
		s.closeRawLog()
		return nil, err
	}
	if err := s.router.AddFilterRules(rules); err != nil {
		s.closeRawLog()
		return nil, err
	}

	if cfg.AIS.Enable {
		s.targets = ais.NewTargetTable(s.router.Cache())
	}
	if cfg.Memcache.Enable {
		s.publisher = measurements.NewMemcachePublisher(s.measurements, cfg.Memcache.Prefix, cfg.Memcache.Interval, cfg.Memcache.Servers...)
	}
	if cfg.TimeSync.Enable {
		s.timeSetter = timesync.New(cfg.TimeSync.Source)
	}
	return s, nil
}

func (s *Station) buildEndpoint(ec config.EndpointConfig) (endpoint.Endpoint, error) {
	opts := []endpoint.Option{
		endpoint.WithStatus(s.router.StatusChannel()),
		endpoint.WithQueueSize(ec.QueueSize),
	}
	switch ec.Type {
	case config.TypeSerial:
		return endpoint.NewSerial(ec.Name, endpoint.SerialConfig{Device: ec.Device, Baud: ec.Baud}, opts...), nil
	case config.TypeTCPServer:
		return endpoint.NewTCPServer(ec.Name, ec.Address, opts...), nil
	case config.TypeTCPClient:
		return endpoint.NewTCPClient(ec.Name, ec.Address, ec.Reconnect, opts...), nil
	case config.TypeUDP:
		return endpoint.NewUDP(ec.Name, ec.Address, ec.Remotes, opts...), nil
	case config.TypeWebSocket:
		return endpoint.NewWebSocket(ec.Name, ec.Address, ec.Path, opts...), nil
	}
	return nil, fmt.Errorf("endpoint %s: unknown type %q", ec.Name, ec.Type)
}

func (s *Station) Router() *router.Router { return s.router }

func (s *Station) Measurements() *measurements.Registry { return s.measurements }

// Targets is nil unless AIS is enabled.
func (s *Station) Targets() *ais.TargetTable { return s.targets }

// Initialize starts the endpoints, the router and the observers. Endpoints
// that cannot be started are retried in the background.
func (s *Station) Initialize() error {
	if !s.initialized.SetToIf(false, true) {
		return nil
	}

	s.unsubscribe = append(s.unsubscribe, s.router.Subscribe(s.measurements))
	if s.targets != nil {
		s.unsubscribe = append(s.unsubscribe, s.router.Subscribe(s.targets))
		s.eh.Go(s.pruneTargets)
	}
	if s.timeSetter != nil {
		s.unsubscribe = append(s.unsubscribe, s.router.Subscribe(s.timeSetter))
		s.timeSetter.Start()
	}
	if s.rawLog != nil {
		s.rawLog.Start()
	}
	if s.publisher != nil {
		s.publisher.Start()
	}

	if err := s.router.StartDecode(); err != nil {
		return err
	}

	for _, ep := range s.endpoints {
		if err := ep.StartDecode(); err != nil {
			s.log.WithField("endpoint", ep.Name()).WithError(err).Warn("start failed, retrying")
			s.mu.Lock()
			s.pending[ep.Name()] = ep
			s.mu.Unlock()
		}
	}
	s.eh.Go(s.retryEndpoints)
	return nil
}

func (s *Station) retryEndpoints(quit <-chan struct{}) {
	ticker := time.NewTicker(common.REOPEN_INTERVAL)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			s.mu.Lock()
			pending := make([]endpoint.Endpoint, 0, len(s.pending))
			for _, ep := range s.pending {
				pending = append(pending, ep)
			}
			s.mu.Unlock()

			for _, ep := range pending {
				if err := ep.StartDecode(); err != nil {
					continue
				}
				s.log.WithField("endpoint", ep.Name()).Info("started")
				s.mu.Lock()
				delete(s.pending, ep.Name())
				s.mu.Unlock()
			}
		}
	}
}

func (s *Station) pruneTargets(quit <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			if n := s.targets.Prune(s.cfg.AIS.PruneAfter); n > 0 {
				s.log.Debugf("pruned %d AIS targets", n)
			}
		}
	}
}

// Close stops everything Initialize started and releases the raw log.
func (s *Station) Close() {
	if s.initialized.SetToIf(true, false) {
		s.eh.Exit()
		for _, u := range s.unsubscribe {
			u()
		}
		s.unsubscribe = nil
		s.router.Dispose()
		if s.publisher != nil {
			s.publisher.Stop()
		}
		if s.timeSetter != nil {
			s.timeSetter.Stop()
		}
	}
	s.closeRawLog()
}

func (s *Station) closeRawLog() {
	if s.rawLog == nil {
		return
	}
	if err := s.rawLog.Close(); err != nil {
		s.log.WithError(err).Warn("closing raw log")
	}
	s.rawLog = nil
}

// Position is the JSON form of router.PositionFix. Unknown values are null.
type Position struct {
	Latitude        float64   `json:"lat"`
	Longitude       float64   `json:"lon"`
	Altitude        *float64  `json:"alt"`
	Track           *float64  `json:"track"`
	SpeedOverGround *float64  `json:"sog"`
	Heading         *float64  `json:"heading"`
	Time            time.Time `json:"time"`
	Source          string    `json:"source"`
	Geohash         string    `json:"geohash"`
}

func optional(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

type Status struct {
	Router       router.Status              `json:"router"`
	Position     *Position                  `json:"position,omitempty"`
	InView       int                        `json:"satellitesInView"`
	Satellites   []router.Satellite         `json:"satellites"`
	Measurements []measurements.Measurement `json:"measurements"`
	AISTargets   int                        `json:"aisTargets"`
	Pending      []string                   `json:"pendingEndpoints,omitempty"`
}

// Status is the document served on the status page.
func (s *Station) Status() Status {
	st := Status{
		Router:       s.router.Status(),
		Measurements: s.measurements.All(),
	}
	if fix, ok := s.router.Cache().TryGetCurrentPosition(router.AnySource, false); ok {
		st.Position = &Position{
			Latitude:        fix.Latitude,
			Longitude:       fix.Longitude,
			Altitude:        optional(fix.Altitude),
			Track:           optional(fix.Track),
			SpeedOverGround: optional(fix.SpeedOverGround),
			Heading:         optional(fix.Heading),
			Time:            fix.Time,
			Source:          fix.Source,
			Geohash:         fix.Geohash,
		}
	}
	st.Satellites, st.InView = s.router.Cache().GetSatellitesInView()
	if s.targets != nil {
		st.AISTargets = s.targets.Count()
	}
	s.mu.Lock()
	for name := range s.pending {
		st.Pending = append(st.Pending, name)
	}
	s.mu.Unlock()
	slices.Sort(st.Pending)
	return st
}
