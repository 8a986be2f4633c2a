package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	"github.com/shipnav/nmearouter/router"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nmearouter.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

const boatConfig = `
log:
  level: debug
router:
  preset: with-plotter
  liveness_window: 3s
endpoints:
  - name: Ship
    type: tcp-client
    address: 192.168.1.10:10110
  - name: Handheld
    type: serial
    device: /dev/ttyUSB0
  - name: Ais
    type: serial
    device: /dev/ttyUSB1
  - name: Plotter
    type: tcp-server
    address: ":10110"
rules:
  - name: depth-to-handheld
    source: Ship
    sentences: DPT|DBT
    destinations: [Plotter, Handheld]
    transform:
      kind: set-talker
      talker: sd
raw_log:
  enable: true
  path: /var/log/nmearouter/raw.sqlite
`

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, boatConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Router.LivenessWindow != 3*time.Second || cfg.Router.PositionMaxAge != common.POSITION_MAX_AGE {
		t.Fatalf("router = %+v", cfg.Router)
	}
	if cfg.Router.PreferredSource != common.EndpointHandheld || cfg.Router.QueueSize != common.DISPATCH_QUEUE_LEN {
		t.Fatalf("router = %+v", cfg.Router)
	}
	if cfg.Endpoints[0].Reconnect != common.REOPEN_INTERVAL {
		t.Fatalf("reconnect = %v", cfg.Endpoints[0].Reconnect)
	}
	if cfg.Endpoints[1].Baud != common.NMEA_DEFAULT_BAUD || cfg.Endpoints[2].Baud != common.AIS_DEFAULT_BAUD {
		t.Fatalf("baud = %d, %d", cfg.Endpoints[1].Baud, cfg.Endpoints[2].Baud)
	}
	if cfg.Endpoints[3].QueueSize != common.SEND_QUEUE_SIZE {
		t.Fatalf("queue size = %d", cfg.Endpoints[3].QueueSize)
	}
	if cfg.Rules[0].Talker != "*" {
		t.Fatalf("talker = %q", cfg.Rules[0].Talker)
	}
	if cfg.AIS.PruneAfter != common.AIS_TARGET_MAX_AGE || cfg.Memcache.Interval != time.Second {
		t.Fatalf("ais %+v memcache %+v", cfg.AIS, cfg.Memcache)
	}
}

func TestConfig_FilterRules(t *testing.T) {
	cfg, err := Parse([]byte(boatConfig))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	rules, err := cfg.FilterRules()
	if err != nil {
		t.Fatalf("FilterRules() error: %v", err)
	}
	if want := 1 + len(router.PresetWithPlotter()); len(rules) != want {
		t.Fatalf("rules = %d want %d", len(rules), want)
	}

	custom := rules[0]
	if custom.Name != "depth-to-handheld" || custom.Source != common.EndpointShip {
		t.Fatalf("custom rule = %+v", custom)
	}
	if len(custom.Sentences) != 2 || custom.Sentences[0] != nmea.TypeDPT {
		t.Fatalf("sentences = %v", custom.Sentences)
	}
	if custom.Transform.Kind != router.TransformSetTalker || custom.Transform.Talker != "SD" {
		t.Fatalf("transform = %+v", custom.Transform)
	}

	// AuxiliaryGps is not configured and is left out of the preset
	for _, r := range rules[1:] {
		for _, d := range r.Destinations {
			if d == common.EndpointAuxiliaryGps {
				t.Fatalf("rule %s routes to an unconfigured endpoint", r.Name)
			}
		}
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "EndpointName",
			yaml: "endpoints:\n  - type: udp\n    address: ':10110'\n",
			want: "endpoints[0].name is required",
		},
		{
			name: "EndpointType",
			yaml: "endpoints:\n  - name: Ship\n",
			want: "endpoints[0].type is required",
		},
		{
			name: "UnknownType",
			yaml: "endpoints:\n  - name: Ship\n    type: can\n",
			want: `endpoints[0].type "can" is unknown`,
		},
		{
			name: "Reserved",
			yaml: "endpoints:\n  - name: Local\n    type: udp\n    address: ':10110'\n",
			want: `endpoints[0].name "Local" is reserved`,
		},
		{
			name: "Duplicate",
			yaml: "endpoints:\n  - name: Ship\n    type: udp\n    address: ':1'\n  - name: Ship\n    type: udp\n    address: ':2'\n",
			want: `endpoints[1].name "Ship" is used twice`,
		},
		{
			name: "SerialDevice",
			yaml: "endpoints:\n  - name: Ship\n    type: serial\n",
			want: "endpoints[0].device is required for type serial",
		},
		{
			name: "Address",
			yaml: "endpoints:\n  - name: Ship\n    type: tcp-client\n",
			want: "endpoints[0].address is required for type tcp-client",
		},
		{
			name: "Preset",
			yaml: "router:\n  preset: racing\n",
			want: `router.preset: unknown rule preset "racing"`,
		},
		{
			name: "RuleDestination",
			yaml: "rules:\n  - source: Local\n    destinations: [Ship]\n",
			want: `rules[0].destinations[0] "Ship" is not an endpoint`,
		},
		{
			name: "RuleSource",
			yaml: "rules:\n  - source: Ship\n",
			want: `rules[0].source "Ship" is not an endpoint`,
		},
		{
			name: "TransformKind",
			yaml: "rules:\n  - transform:\n      kind: reverse\n",
			want: `rules[0].transform: unknown transform kind "reverse"`,
		},
		{
			name: "StaleNeedsSource",
			yaml: "rules:\n  - transform:\n      kind: forward-if-stale\n",
			want: "rules[0].transform: forward-if-stale needs source and max_age",
		},
		{
			name: "RawLogPath",
			yaml: "raw_log:\n  enable: true\n",
			want: "raw_log.path is required when raw_log.enable is true",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_EmptyIsValid(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	rules, err := cfg.FilterRules()
	if err != nil || len(rules) != 0 {
		t.Fatalf("rules = %v, err = %v", rules, err)
	}
}
