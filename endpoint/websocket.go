package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	"github.com/tevino/abool/v2"
	"golang.org/x/net/websocket"
)

// WebSocket serves sentences to browser clients as text frames. Frames
// received from clients are parsed like any other input.
type WebSocket struct {
	base
	addr    string
	path    string
	eh      *common.ExitHelper
	started *abool.AtomicBool

	srvMu sync.Mutex
	srv   *http.Server
	ln    net.Listener

	clients cmap.ConcurrentMap[string, *streamClient]
}

func NewWebSocket(name, addr, path string, opts ...Option) *WebSocket {
	if path == "" {
		path = "/nmea"
	}
	w := &WebSocket{
		addr:    addr,
		path:    path,
		eh:      common.NewExitHelper(),
		started: abool.New(),
		clients: cmap.New[*streamClient](),
	}
	w.base.init(name, KindWebSocket, opts)
	return w
}

func (w *WebSocket) Addr() net.Addr {
	w.srvMu.Lock()
	defer w.srvMu.Unlock()
	if w.ln == nil {
		return nil
	}
	return w.ln.Addr()
}

func (w *WebSocket) Clients() int {
	return w.clients.Count()
}

func (w *WebSocket) StartDecode() error {
	if !w.started.SetToIf(false, true) {
		return nil
	}
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		w.started.UnSet()
		w.announce(failed(err))
		return fmt.Errorf("websocket %s: %w", w.name, err)
	}
	mux := http.NewServeMux()
	mux.Handle(w.path, websocket.Server{
		// Any origin: plotter apps connect from file:// pages and native code.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   w.serve,
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	w.srvMu.Lock()
	w.srv, w.ln = srv, ln
	w.srvMu.Unlock()
	w.log.Infof("serving websocket on %s%s", ln.Addr(), w.path)
	w.announce(connected(true, ln.Addr().String()))

	w.eh.Go(func(quit <-chan struct{}) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Warnf("serve: %v", err)
		}
	})
	w.eh.Go(func(quit <-chan struct{}) {
		<-quit
		srv.Close()
	})
	return nil
}

func (w *WebSocket) StopDecode() {
	w.eh.Exit()
	w.srvMu.Lock()
	if w.srv != nil {
		w.srv, w.ln = nil, nil
		w.announce(connected(false, w.addr))
	}
	w.srvMu.Unlock()
	w.started.UnSet()
}

// serve runs on the http server goroutine for the lifetime of one client.
func (w *WebSocket) serve(ws *websocket.Conn) {
	quit, ok := w.eh.Add()
	if !ok {
		return
	}
	defer w.eh.Done()

	cl := &streamClient{
		addr:  ws.Request().RemoteAddr,
		queue: newSendQueue(w.queueSize),
		done:  make(chan struct{}),
	}
	w.clients.Set(cl.addr, cl)
	w.announce(clients(w.clients.Count()))
	w.log.Infof("websocket client %s connected", cl.addr)

	defer func() {
		close(cl.done)
		w.clients.Remove(cl.addr)
		w.announce(clients(w.clients.Count()))
		w.log.Infof("websocket client %s disconnected", cl.addr)
	}()

	// Close takes the frame writer lock, so a Send blocked on a client that
	// stopped reading is released with an expired deadline instead.
	watcher := w.eh.Go(func(quit <-chan struct{}) {
		select {
		case <-quit:
		case <-cl.done:
		}
		ws.SetDeadline(time.Now())
	})
	if !watcher {
		ws.Close()
		return
	}
	w.eh.Go(func(quit <-chan struct{}) {
		defer ws.Close()
		cl.queue.run(quit, cl.done, func(b []byte) error {
			return websocket.Message.Send(ws, string(b))
		})
	})

	for {
		var frame string
		if err := websocket.Message.Receive(ws, &frame); err != nil {
			return
		}
		select {
		case <-quit:
			return
		default:
		}
		w.handleBlock(w, frame)
	}
}

func (w *WebSocket) SendSentence(s nmea.Sentence) {
	b := s.Bytes()
	for item := range w.clients.IterBuffered() {
		if !item.Val.queue.push(b) {
			w.dropped(w, item.Key)
		}
	}
}

func (w *WebSocket) SendSentences(ss []nmea.Sentence) {
	for _, s := range ss {
		w.SendSentence(s)
	}
}
