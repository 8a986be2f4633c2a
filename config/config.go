package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	"github.com/shipnav/nmearouter/router"
	"gopkg.in/yaml.v3"
)

// Endpoint types.
const (
	TypeSerial    = "serial"
	TypeTCPServer = "tcp-server"
	TypeTCPClient = "tcp-client"
	TypeUDP       = "udp"
	TypeWebSocket = "websocket"
)

type Config struct {
	Log       LogConfig        `yaml:"log"`
	Router    RouterConfig     `yaml:"router"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Rules     []RuleConfig     `yaml:"rules"`
	Status    StatusConfig     `yaml:"status"`
	RawLog    RawLogConfig     `yaml:"raw_log"`
	Memcache  MemcacheConfig   `yaml:"memcache"`
	TimeSync  TimeSyncConfig   `yaml:"time_sync"`
	AIS       AISConfig        `yaml:"ais"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RouterConfig struct {
	// Preset rules are evaluated after the custom rules. Empty means
	// custom rules only.
	Preset          string        `yaml:"preset"`
	PreferredSource string        `yaml:"preferred_source"`
	LivenessWindow  time.Duration `yaml:"liveness_window"`
	PositionMaxAge  time.Duration `yaml:"position_max_age"`
	QueueSize       int           `yaml:"queue_size"`
}

type EndpointConfig struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type"`
	Address   string        `yaml:"address"` // listen or dial address
	Device    string        `yaml:"device"`
	Baud      int           `yaml:"baud"`
	Remotes   []string      `yaml:"remotes"` // udp destinations
	Path      string        `yaml:"path"`    // websocket path
	QueueSize int           `yaml:"queue_size"`
	Reconnect time.Duration `yaml:"reconnect"`
}

type TransformConfig struct {
	Kind   string        `yaml:"kind"`
	Source string        `yaml:"source"`
	MaxAge time.Duration `yaml:"max_age"`
	Talker string        `yaml:"talker"`
	Name   string        `yaml:"name"`
}

type RuleConfig struct {
	Name         string          `yaml:"name"`
	Source       string          `yaml:"source"`
	Talker       string          `yaml:"talker"`
	Sentences    string          `yaml:"sentences"` // "GGA|RMC", "*"
	Destinations []string        `yaml:"destinations"`
	Transform    TransformConfig `yaml:"transform"`
	Continue     bool            `yaml:"continue"`
	LogRaw       bool            `yaml:"log_raw"`
}

type StatusConfig struct {
	Listen string `yaml:"listen"`
}

type RawLogConfig struct {
	Enable    bool   `yaml:"enable"`
	Path      string `yaml:"path"`
	MinFreeMB uint64 `yaml:"min_free_mb"`
}

type MemcacheConfig struct {
	Enable   bool          `yaml:"enable"`
	Servers  []string      `yaml:"servers"`
	Prefix   string        `yaml:"prefix"`
	Interval time.Duration `yaml:"interval"`
}

type TimeSyncConfig struct {
	Enable bool   `yaml:"enable"`
	Source string `yaml:"source"`
}

type AISConfig struct {
	Enable     bool          `yaml:"enable"`
	PruneAfter time.Duration `yaml:"prune_after"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Router.LivenessWindow <= 0 {
		cfg.Router.LivenessWindow = common.LIVENESS_WINDOW
	}
	if cfg.Router.PositionMaxAge <= 0 {
		cfg.Router.PositionMaxAge = common.POSITION_MAX_AGE
	}
	if cfg.Router.QueueSize <= 0 {
		cfg.Router.QueueSize = common.DISPATCH_QUEUE_LEN
	}
	if cfg.Router.PreferredSource == "" {
		cfg.Router.PreferredSource = common.EndpointHandheld
	}
	for i := range cfg.Endpoints {
		e := &cfg.Endpoints[i]
		if e.QueueSize <= 0 {
			e.QueueSize = common.SEND_QUEUE_SIZE
		}
		if e.Type == TypeSerial && e.Baud == 0 {
			e.Baud = common.NMEA_DEFAULT_BAUD
			if e.Name == common.EndpointAis {
				e.Baud = common.AIS_DEFAULT_BAUD
			}
		}
		if e.Type == TypeTCPClient && e.Reconnect <= 0 {
			e.Reconnect = common.REOPEN_INTERVAL
		}
		if e.Type == TypeWebSocket && e.Path == "" {
			e.Path = "/nmea"
		}
	}
	for i := range cfg.Rules {
		r := &cfg.Rules[i]
		if r.Source == "" {
			r.Source = router.AnySource
		}
		if r.Talker == "" {
			r.Talker = string(nmea.AnyTalker)
		}
	}
	if cfg.RawLog.MinFreeMB == 0 {
		cfg.RawLog.MinFreeMB = 50
	}
	if cfg.Memcache.Interval <= 0 {
		cfg.Memcache.Interval = time.Second
	}
	if len(cfg.Memcache.Servers) == 0 {
		cfg.Memcache.Servers = []string{"127.0.0.1:11211"}
	}
	if cfg.Memcache.Prefix == "" {
		cfg.Memcache.Prefix = "nmea."
	}
	if cfg.AIS.PruneAfter <= 0 {
		cfg.AIS.PruneAfter = common.AIS_TARGET_MAX_AGE
	}
}

// Validate reports the first problem found.
func (cfg Config) Validate() error {
	if cfg.Router.Preset != "" {
		if _, err := router.Preset(cfg.Router.Preset); err != nil {
			return fmt.Errorf("router.preset: %w", err)
		}
	}

	names := make(map[string]bool)
	for i, e := range cfg.Endpoints {
		if e.Name == "" {
			return fmt.Errorf("endpoints[%d].name is required", i)
		}
		if e.Name == common.EndpointLocal || e.Name == router.AnySource {
			return fmt.Errorf("endpoints[%d].name %q is reserved", i, e.Name)
		}
		if names[e.Name] {
			return fmt.Errorf("endpoints[%d].name %q is used twice", i, e.Name)
		}
		names[e.Name] = true

		switch e.Type {
		case TypeSerial:
			if e.Device == "" {
				return fmt.Errorf("endpoints[%d].device is required for type %s", i, e.Type)
			}
		case TypeTCPServer, TypeTCPClient, TypeWebSocket:
			if e.Address == "" {
				return fmt.Errorf("endpoints[%d].address is required for type %s", i, e.Type)
			}
		case TypeUDP:
			if e.Address == "" && len(e.Remotes) == 0 {
				return fmt.Errorf("endpoints[%d] of type udp needs an address or remotes", i)
			}
		case "":
			return fmt.Errorf("endpoints[%d].type is required", i)
		default:
			return fmt.Errorf("endpoints[%d].type %q is unknown", i, e.Type)
		}
	}

	for i, r := range cfg.Rules {
		if r.Source != router.AnySource && r.Source != common.EndpointLocal && !names[r.Source] {
			return fmt.Errorf("rules[%d].source %q is not an endpoint", i, r.Source)
		}
		for j, d := range r.Destinations {
			if !names[d] {
				return fmt.Errorf("rules[%d].destinations[%d] %q is not an endpoint", i, j, d)
			}
		}
		if _, err := r.transform(); err != nil {
			return fmt.Errorf("rules[%d].transform: %w", i, err)
		}
	}

	if cfg.RawLog.Enable && cfg.RawLog.Path == "" {
		return fmt.Errorf("raw_log.path is required when raw_log.enable is true")
	}
	return nil
}

func (r RuleConfig) transform() (router.Transform, error) {
	kind, err := router.ParseTransformKind(r.Transform.Kind)
	if err != nil {
		return router.Transform{}, err
	}
	t := router.Transform{Kind: kind}
	switch kind {
	case router.TransformForwardIfStale, router.TransformDropIfStale:
		if r.Transform.Source == "" || r.Transform.MaxAge <= 0 {
			return t, fmt.Errorf("%s needs source and max_age", kind)
		}
		t.Source, t.MaxAge = r.Transform.Source, r.Transform.MaxAge
	case router.TransformSetTalker:
		if len(r.Transform.Talker) != 2 {
			return t, fmt.Errorf("set-talker needs a two letter talker")
		}
		t.Talker = nmea.TalkerID(strings.ToUpper(r.Transform.Talker))
	case router.TransformNamed:
		if r.Transform.Name == "" {
			return t, fmt.Errorf("named needs a name")
		}
		t.Name = r.Transform.Name
	}
	return t, nil
}

// FilterRules returns the custom rules followed by the preset. Preset
// destinations that are not configured endpoints are left out.
func (cfg Config) FilterRules() ([]router.FilterRule, error) {
	var out []router.FilterRule
	for i, r := range cfg.Rules {
		t, err := r.transform()
		if err != nil {
			return nil, fmt.Errorf("rules[%d].transform: %w", i, err)
		}
		out = append(out, router.FilterRule{
			Name:         r.Name,
			Source:       r.Source,
			Talker:       nmea.TalkerID(strings.ToUpper(r.Talker)),
			Sentences:    router.ParseSentenceIDs(r.Sentences),
			Destinations: r.Destinations,
			Transform:    t,
			Continue:     r.Continue,
			LogRaw:       r.LogRaw,
		})
	}
	if cfg.Router.Preset != "" {
		preset, err := router.Preset(cfg.Router.Preset)
		if err != nil {
			return nil, err
		}
		names := make(map[string]bool)
		for _, e := range cfg.Endpoints {
			names[e.Name] = true
		}
		for _, r := range preset {
			var dest []string
			for _, d := range r.Destinations {
				if names[d] {
					dest = append(dest, d)
				}
			}
			r.Destinations = dest
			out = append(out, r)
		}
	}
	return out, nil
}
