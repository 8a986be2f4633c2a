package endpoint

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shipnav/nmearouter/nmea"
	"golang.org/x/net/websocket"
)

// dropLog records the MessageDropped reports of an endpoint.
type dropLog struct {
	mu       sync.Mutex
	messages []string
}

func (d *dropLog) handler() Handler {
	return HandlerFuncs{Error: func(src Endpoint, message string, code nmea.ErrorCode) {
		if code != nmea.MessageDropped {
			return
		}
		d.mu.Lock()
		d.messages = append(d.messages, message)
		d.mu.Unlock()
	}}
}

func (d *dropLog) mentioning(addr string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, m := range d.messages {
		if strings.Contains(m, " "+addr+",") {
			n++
		}
	}
	return n
}

const (
	stallBatch    = 48
	stallQueue    = 64
	stallMaxSends = 40000
)

// sendUntilDropped feeds ep in batches until the stalled client loses a
// sentence. After every batch the healthy client must have received all of
// it, so the healthy queue never fills.
func sendUntilDropped(t *testing.T, ep Endpoint, healthy *int64, drops *dropLog, stalled string) {
	t.Helper()
	s := mustParse(t, nmea.AppendChecksum("$GPTXT,01,01,02,"+strings.Repeat("X", 900)))
	sent := int64(0)
	for drops.mentioning(stalled) == 0 {
		if sent >= stallMaxSends {
			t.Fatalf("no sentence dropped for the stalled client after %d sends", sent)
		}
		for i := 0; i < stallBatch; i++ {
			ep.SendSentence(s)
		}
		sent += stallBatch
		waitFor(t, "healthy client to catch up", func() bool { return atomic.LoadInt64(healthy) == sent })
	}
}

func stopWithin(t *testing.T, ep Endpoint, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		ep.StopDecode()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("StopDecode did not return within %v", d)
	}
}

func TestTCPServer_StalledClientIsIsolated(t *testing.T) {
	srv := NewTCPServer("Plotter", "127.0.0.1:0", WithQueueSize(stallQueue))
	drops := &dropLog{}
	srv.Subscribe(drops.handler())
	if err := srv.StartDecode(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.StopDecode()

	stalled, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer stalled.Close()
	healthy, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer healthy.Close()
	waitFor(t, "two clients", func() bool { return srv.Clients() == 2 })

	var received int64
	go func() {
		sc := bufio.NewScanner(healthy)
		for sc.Scan() {
			atomic.AddInt64(&received, 1)
		}
	}()

	sendUntilDropped(t, srv, &received, drops, stalled.LocalAddr().String())
	if n := drops.mentioning(healthy.LocalAddr().String()); n != 0 {
		t.Fatalf("healthy client dropped %d sentences", n)
	}
	stopWithin(t, srv, 3*time.Second)
}

func dialWebSocket(t *testing.T, ws *WebSocket) (*websocket.Conn, net.Addr) {
	t.Helper()
	raw, err := net.Dial("tcp", ws.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	cfg, err := websocket.NewConfig("ws://"+ws.Addr().String()+"/nmea", "http://localhost/")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	conn, err := websocket.NewClient(cfg, raw)
	if err != nil {
		raw.Close()
		t.Fatalf("handshake: %v", err)
	}
	return conn, raw.LocalAddr()
}

func TestWebSocket_StalledClientIsIsolated(t *testing.T) {
	ws := NewWebSocket("Plotter", "127.0.0.1:0", "/nmea", WithQueueSize(stallQueue))
	drops := &dropLog{}
	ws.Subscribe(drops.handler())
	if err := ws.StartDecode(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ws.StopDecode()

	stalled, stalledAddr := dialWebSocket(t, ws)
	defer stalled.Close()
	healthy, healthyAddr := dialWebSocket(t, ws)
	defer healthy.Close()
	waitFor(t, "two clients", func() bool { return ws.Clients() == 2 })

	var received int64
	go func() {
		for {
			var frame string
			if err := websocket.Message.Receive(healthy, &frame); err != nil {
				return
			}
			atomic.AddInt64(&received, 1)
		}
	}()

	sendUntilDropped(t, ws, &received, drops, stalledAddr.String())
	if n := drops.mentioning(healthyAddr.String()); n != 0 {
		t.Fatalf("healthy client dropped %d sentences", n)
	}
	stopWithin(t, ws, 3*time.Second)
}
