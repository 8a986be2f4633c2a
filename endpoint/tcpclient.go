package endpoint

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	"github.com/tevino/abool/v2"
	"go.uber.org/ratelimit"
)

// TCPClient connects to a remote NMEA server (multiplexer, network GPS)
// and reconnects when the connection drops.
type TCPClient struct {
	base
	addr           string
	dialTimeout    time.Duration
	reconnectEvery time.Duration
	eh             *common.ExitHelper
	started        *abool.AtomicBool
	queue          *sendQueue

	connMu sync.Mutex
	conn   net.Conn
}

func NewTCPClient(name, addr string, reconnectEvery time.Duration, opts ...Option) *TCPClient {
	if reconnectEvery <= 0 {
		reconnectEvery = common.REOPEN_INTERVAL
	}
	t := &TCPClient{
		addr:           addr,
		dialTimeout:    5 * time.Second,
		reconnectEvery: reconnectEvery,
		eh:             common.NewExitHelper(),
		started:        abool.New(),
	}
	t.base.init(name, KindTCPClient, opts)
	t.queue = newSendQueue(t.queueSize)
	return t
}

func (t *TCPClient) StartDecode() error {
	if !t.started.SetToIf(false, true) {
		return nil
	}
	c, err := net.DialTimeout("tcp", t.addr, t.dialTimeout)
	if err != nil {
		t.started.UnSet()
		t.announce(failed(err))
		return fmt.Errorf("tcp client %s: %w", t.name, err)
	}
	t.setConn(c)

	t.eh.Go(t.readLoop)
	t.eh.Go(func(quit <-chan struct{}) {
		t.queue.run(quit, nil, t.write)
	})
	t.eh.Go(func(quit <-chan struct{}) {
		<-quit
		t.closeConn()
	})
	return nil
}

func (t *TCPClient) StopDecode() {
	t.eh.Exit()
	t.closeConn()
	t.started.UnSet()
}

func (t *TCPClient) SendSentence(s nmea.Sentence) {
	if !t.queue.push(s.Bytes()) {
		t.dropped(t, t.addr)
	}
}

func (t *TCPClient) SendSentences(ss []nmea.Sentence) {
	for _, s := range ss {
		t.SendSentence(s)
	}
}

func (t *TCPClient) setConn(c net.Conn) bool {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.eh.IsExit() {
		c.Close()
		return false
	}
	t.conn = c
	t.log.Infof("connected to %s", t.addr)
	t.announce(connected(true, t.addr))
	return true
}

func (t *TCPClient) currentConn() net.Conn {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn
}

func (t *TCPClient) closeConn() {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.announce(connected(false, t.addr))
	}
}

func (t *TCPClient) write(b []byte) error {
	c := t.currentConn()
	if c == nil {
		return nil
	}
	if _, err := c.Write(b); err != nil {
		t.log.Debugf("write: %v", err)
	}
	return nil
}

func (t *TCPClient) readLoop(quit <-chan struct{}) {
	rl := ratelimit.New(1, ratelimit.Per(t.reconnectEvery))
	rl.Take()
	for {
		if c := t.currentConn(); c != nil {
			err := readLines(c, false, quit, func(line string) {
				t.handleLine(t, line)
			})
			select {
			case <-quit:
				return
			default:
			}
			t.emitError(t, fmt.Sprintf("connection to %s lost: %v", t.addr, err), nmea.IOError)
			t.closeConn()
		}

		rl.Take()
		select {
		case <-quit:
			return
		default:
		}
		c, err := net.DialTimeout("tcp", t.addr, t.dialTimeout)
		if err != nil {
			t.log.Debugf("reconnect: %v", err)
			continue
		}
		if !t.setConn(c) {
			return
		}
	}
}
