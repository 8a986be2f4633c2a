package measurements

import (
	"encoding/json"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/shipnav/nmearouter/common"
	log "github.com/sirupsen/logrus"
)

// KeyAll holds the JSON list of all published values.
const KeyAll = "all"

// Store is the part of the memcache client the publisher needs.
type Store interface {
	Set(item *memcache.Item) error
}

// Published is the JSON document stored per value.
type Published struct {
	Measurement
	Formatted string `json:"formatted"`
}

// MemcachePublisher copies the registry into memcache for the display
// process. Each value is stored under prefix+name, the complete list under
// prefix+KeyAll. Entries expire after three intervals so that a stopped
// router does not leave stale readings behind.
type MemcachePublisher struct {
	store    Store
	registry *Registry
	prefix   string
	interval time.Duration
	maxAge   time.Duration
	eh       *common.ExitHelper
	log      *log.Entry
}

// NewMemcachePublisher connects to the memcache servers at addrs.
func NewMemcachePublisher(r *Registry, prefix string, interval time.Duration, addrs ...string) *MemcachePublisher {
	return NewPublisher(memcache.New(addrs...), r, prefix, interval)
}

func NewPublisher(store Store, r *Registry, prefix string, interval time.Duration) *MemcachePublisher {
	if interval <= 0 {
		interval = time.Second
	}
	return &MemcachePublisher{
		store:    store,
		registry: r,
		prefix:   prefix,
		interval: interval,
		maxAge:   common.MEASUREMENT_MAX_AGE,
		eh:       common.NewExitHelper(),
		log:      common.Logger("measurements"),
	}
}

func (p *MemcachePublisher) expiration() int32 {
	s := int32((3 * p.interval).Seconds())
	if s < 1 {
		s = 1
	}
	return s
}

// Publish stores the current values once. Values older than the
// measurement max age are left out.
func (p *MemcachePublisher) Publish() error {
	values := p.registry.Fresh(p.maxAge)
	all := make([]Published, 0, len(values))
	exp := p.expiration()
	for _, m := range values {
		doc := Published{Measurement: m, Formatted: m.Formatted()}
		all = append(all, doc)
		b, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := p.store.Set(&memcache.Item{Key: p.prefix + m.Name, Value: b, Expiration: exp}); err != nil {
			return err
		}
	}
	b, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return p.store.Set(&memcache.Item{Key: p.prefix + KeyAll, Value: b, Expiration: exp})
}

// Start publishes every interval until Stop.
func (p *MemcachePublisher) Start() {
	p.eh.Go(func(quit <-chan struct{}) {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		failing := false
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				err := p.Publish()
				if err != nil && !failing {
					p.log.WithError(err).Warn("memcache publish failed")
				} else if err == nil && failing {
					p.log.Info("memcache publish recovered")
				}
				failing = err != nil
			}
		}
	})
}

func (p *MemcachePublisher) Stop() {
	p.eh.Exit()
}
