package station

import (
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shipnav/nmearouter/config"
	"github.com/shipnav/nmearouter/endpoint"
	"github.com/shipnav/nmearouter/measurements"
)

const (
	lineGGA = "$GPGGA,163810.000,4728.7027,N,00929.9666,E,2,12,0.6,397.4,M,46.8,M,,*52"
	lineMTW = "$IIMTW,18.5,C*1F"
	lineAIS = "!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C"
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

func udpAddr(t *testing.T, s *Station, name string) string {
	t.Helper()
	ep, ok := s.Router().Endpoint(name)
	if !ok {
		t.Fatalf("endpoint %s missing", name)
	}
	return ep.(*endpoint.UDP).LocalAddr().String()
}

func send(t *testing.T, addr string, lines ...string) {
	t.Helper()
	conn, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	for _, l := range lines {
		if _, err := conn.Write([]byte(l + "\r\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestStation_RoutesAndObserves(t *testing.T) {
	plotter, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer plotter.Close()

	cfg, err := config.Parse([]byte(`
endpoints:
  - name: Handheld
    type: udp
    address: 127.0.0.1:0
  - name: Ais
    type: udp
    address: 127.0.0.1:0
  - name: Plotter
    type: udp
    remotes: ["` + plotter.LocalAddr().String() + `"]
rules:
  - source: Handheld
    sentences: GGA
    destinations: [Plotter]
ais:
  enable: true
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	s, err := New(cfg, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer s.Close()

	send(t, udpAddr(t, s, "Handheld"), lineGGA, lineMTW)
	send(t, udpAddr(t, s, "Ais"), lineAIS)

	plotter.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := plotter.ReadFrom(buf)
	if err != nil {
		t.Fatalf("plotter read: %v", err)
	}
	if got := strings.TrimSpace(string(buf[:n])); got != lineGGA {
		t.Fatalf("plotter got %q", got)
	}

	waitFor(t, "measurement", func() bool {
		_, ok := s.Measurements().Get(measurements.WaterTemperature)
		return ok
	})
	waitFor(t, "ais target", func() bool { return s.Targets().Count() == 1 })

	st := s.Status()
	if st.Position == nil || st.Position.Source != "Handheld" || st.Position.Track != nil {
		t.Fatalf("position = %+v", st.Position)
	}
	if st.AISTargets != 1 || len(st.Router.Endpoints) != 3 {
		t.Fatalf("status = %+v", st)
	}
	if _, err := json.Marshal(st); err != nil {
		t.Fatalf("status not serializable: %v", err)
	}
}

func TestStation_FailedEndpointIsPending(t *testing.T) {
	cfg, err := config.Parse([]byte(`
endpoints:
  - name: Ship
    type: serial
    device: /dev/nmearouter-missing
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	st := s.Status()
	if len(st.Pending) != 1 || st.Pending[0] != "Ship" {
		t.Fatalf("pending = %v", st.Pending)
	}
	if !st.Router.Started {
		t.Fatalf("router not started")
	}
	s.Close()
	s.Close()
	if s.Router().IsStarted() {
		t.Fatalf("router still started after Close")
	}
}
