package endpoint

import (
	"errors"
	"fmt"
	"net"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	"github.com/tevino/abool/v2"
)

// TCPServer accepts NMEA clients, e.g. a chart plotter app on a tablet.
// Every client can send sentences; sent sentences go to all clients, each
// through its own queue so a stalled client only loses its own data.
type TCPServer struct {
	base
	addr    string
	eh      *common.ExitHelper
	started *abool.AtomicBool

	lnMu sync.Mutex
	ln   net.Listener

	clients cmap.ConcurrentMap[string, *streamClient]
}

type streamClient struct {
	addr  string
	queue *sendQueue
	done  chan struct{}
}

func NewTCPServer(name, addr string, opts ...Option) *TCPServer {
	t := &TCPServer{
		addr:    addr,
		eh:      common.NewExitHelper(),
		started: abool.New(),
		clients: cmap.New[*streamClient](),
	}
	t.base.init(name, KindTCPServer, opts)
	return t
}

// Addr returns the bound listen address, useful when listening on port 0.
func (t *TCPServer) Addr() net.Addr {
	t.lnMu.Lock()
	defer t.lnMu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

// Clients returns the number of connected clients.
func (t *TCPServer) Clients() int {
	return t.clients.Count()
}

func (t *TCPServer) StartDecode() error {
	if !t.started.SetToIf(false, true) {
		return nil
	}
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		t.started.UnSet()
		t.announce(failed(err))
		return fmt.Errorf("tcp server %s: %w", t.name, err)
	}
	t.lnMu.Lock()
	t.ln = ln
	t.lnMu.Unlock()
	t.log.Infof("listening on %s", ln.Addr())
	t.announce(connected(true, ln.Addr().String()))

	t.eh.Go(func(quit <-chan struct{}) {
		<-quit
		ln.Close()
	})
	t.eh.Go(func(quit <-chan struct{}) {
		t.acceptLoop(ln, quit)
	})
	return nil
}

func (t *TCPServer) StopDecode() {
	t.eh.Exit()
	t.lnMu.Lock()
	t.ln = nil
	t.lnMu.Unlock()
	if t.started.IsSet() {
		t.announce(connected(false, t.addr))
	}
	t.started.UnSet()
}

func (t *TCPServer) acceptLoop(ln net.Listener, quit <-chan struct{}) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.eh.IsExit() {
				return
			}
			t.log.Warnf("accept: %v", err)
			continue
		}
		t.serve(c)
	}
}

func (t *TCPServer) serve(c net.Conn) {
	cl := &streamClient{
		addr:  c.RemoteAddr().String(),
		queue: newSendQueue(t.queueSize),
		done:  make(chan struct{}),
	}
	t.clients.Set(cl.addr, cl)
	t.log.Infof("client %s connected", cl.addr)
	t.announce(clients(t.clients.Count()))

	// Closing here also releases a writer stuck on a client that stopped
	// reading.
	started := t.eh.Go(func(quit <-chan struct{}) {
		select {
		case <-quit:
		case <-cl.done:
		}
		c.Close()
	})
	if !started {
		c.Close()
		t.clients.Remove(cl.addr)
		return
	}
	t.eh.Go(func(quit <-chan struct{}) {
		defer c.Close()
		cl.queue.run(quit, cl.done, func(b []byte) error {
			_, err := c.Write(b)
			return err
		})
	})
	t.eh.Go(func(quit <-chan struct{}) {
		defer func() {
			close(cl.done)
			t.clients.Remove(cl.addr)
			t.log.Infof("client %s disconnected", cl.addr)
			t.announce(clients(t.clients.Count()))
		}()
		readLines(c, false, quit, func(line string) {
			t.handleLine(t, line)
		})
	})
}

func (t *TCPServer) SendSentence(s nmea.Sentence) {
	b := s.Bytes()
	for item := range t.clients.IterBuffered() {
		if !item.Val.queue.push(b) {
			t.dropped(t, item.Key)
		}
	}
}

func (t *TCPServer) SendSentences(ss []nmea.Sentence) {
	for _, s := range ss {
		t.SendSentence(s)
	}
}
