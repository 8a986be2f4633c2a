package endpoint

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	"github.com/tevino/abool/v2"
	"go.uber.org/ratelimit"
)

// UDP receives datagrams on Listen (optional) and sends every sentence to
// all Remotes (optional). A datagram may carry several sentences.
type UDP struct {
	base
	listen  string
	remotes []string
	eh      *common.ExitHelper
	started *abool.AtomicBool
	queue   *sendQueue

	connMu  sync.Mutex
	conn    net.PacketConn
	targets []*net.UDPAddr
}

func NewUDP(name, listen string, remotes []string, opts ...Option) *UDP {
	u := &UDP{
		listen:  listen,
		remotes: append([]string(nil), remotes...),
		eh:      common.NewExitHelper(),
		started: abool.New(),
	}
	u.base.init(name, KindUDP, opts)
	u.queue = newSendQueue(u.queueSize)
	return u
}

// LocalAddr returns the bound socket address.
func (u *UDP) LocalAddr() net.Addr {
	u.connMu.Lock()
	defer u.connMu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

func (u *UDP) StartDecode() error {
	if !u.started.SetToIf(false, true) {
		return nil
	}
	targets := make([]*net.UDPAddr, 0, len(u.remotes))
	for _, r := range u.remotes {
		a, err := net.ResolveUDPAddr("udp", r)
		if err != nil {
			u.started.UnSet()
			return fmt.Errorf("udp %s: resolve %s: %w", u.name, r, err)
		}
		targets = append(targets, a)
	}

	listen := u.listen
	if listen == "" {
		listen = ":0" // send only
	}
	conn, err := net.ListenPacket("udp", listen)
	if err != nil {
		u.started.UnSet()
		u.announce(failed(err))
		return fmt.Errorf("udp %s: %w", u.name, err)
	}
	u.connMu.Lock()
	u.conn = conn
	u.targets = targets
	u.connMu.Unlock()
	u.announce(connected(true, conn.LocalAddr().String()))

	u.eh.Go(func(quit <-chan struct{}) {
		<-quit
		conn.Close()
	})
	if u.listen != "" {
		u.eh.Go(func(quit <-chan struct{}) {
			u.readLoop(conn)
		})
	}
	u.eh.Go(func(quit <-chan struct{}) {
		u.queue.run(quit, nil, u.write)
	})
	return nil
}

func (u *UDP) StopDecode() {
	u.eh.Exit()
	u.connMu.Lock()
	if u.conn != nil {
		u.conn = nil
		u.announce(connected(false, u.listen))
	}
	u.connMu.Unlock()
	u.started.UnSet()
}

func (u *UDP) readLoop(conn net.PacketConn) {
	buf := make([]byte, 65536)
	rl := ratelimit.New(common.UDP_READ_ERRORS_PER_SECOND)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || u.eh.IsExit() {
				return
			}
			u.emitError(u, fmt.Sprintf("read: %v", err), nmea.IOError)
			rl.Take()
			continue
		}
		u.handleBlock(u, string(buf[:n]))
	}
}

func (u *UDP) write(b []byte) error {
	u.connMu.Lock()
	conn, targets := u.conn, u.targets
	u.connMu.Unlock()
	if conn == nil {
		return nil
	}
	for _, t := range targets {
		if _, err := conn.WriteTo(b, t); err != nil {
			u.log.Debugf("write %s: %v", t, err)
		}
	}
	return nil
}

func (u *UDP) SendSentence(s nmea.Sentence) {
	if len(u.remotes) == 0 {
		return
	}
	if !u.queue.push(s.Bytes()) {
		u.dropped(u, "udp socket")
	}
}

func (u *UDP) SendSentences(ss []nmea.Sentence) {
	for _, s := range ss {
		u.SendSentence(s)
	}
}
