/*
	Copyright (c) 2015-2016 Christopher Young,
	Copyright (c) 2022 Refactored R. van Twisk
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	serial.go: NMEA-0183 over a serial port with automatic reopen.
*/

package endpoint

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	"github.com/tarm/serial"
	"github.com/tevino/abool/v2"
	"go.uber.org/ratelimit"
)

type SerialConfig struct {
	Device         string
	Baud           int
	ReadTimeout    time.Duration
	ReopenInterval time.Duration // minimum time between two open attempts
}

// OpenFunc opens a serial port. Tests replace it with an in-memory pipe.
type OpenFunc func(c *serial.Config) (io.ReadWriteCloser, error)

func openSerialPort(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(c)
}

var errPortClosed = errors.New("serial port not open")

// Serial is an endpoint on a serial device. Read errors are reported as
// IOError; the port is then closed and reopened until StopDecode.
type Serial struct {
	base
	cfg     SerialConfig
	open    OpenFunc
	eh      *common.ExitHelper
	started *abool.AtomicBool
	queue   *sendQueue

	portMu sync.Mutex
	port   io.ReadWriteCloser
}

func NewSerial(name string, cfg SerialConfig, opts ...Option) *Serial {
	if cfg.Baud == 0 {
		cfg.Baud = common.NMEA_DEFAULT_BAUD
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = common.SERIAL_READ_TIMEOUT
	}
	if cfg.ReopenInterval == 0 {
		cfg.ReopenInterval = common.REOPEN_INTERVAL
	}
	s := &Serial{
		cfg:     cfg,
		open:    openSerialPort,
		eh:      common.NewExitHelper(),
		started: abool.New(),
	}
	s.base.init(name, KindSerial, opts)
	s.queue = newSendQueue(s.queueSize)
	return s
}

// SetOpenFunc replaces the port opener. It must be called before
// StartDecode.
func (s *Serial) SetOpenFunc(f OpenFunc) {
	s.open = f
}

func (s *Serial) serialConfig() *serial.Config {
	return &serial.Config{Name: s.cfg.Device, Baud: s.cfg.Baud, ReadTimeout: s.cfg.ReadTimeout}
}

func (s *Serial) StartDecode() error {
	if !s.started.SetToIf(false, true) {
		return nil
	}
	p, err := s.open(s.serialConfig())
	if err != nil {
		s.started.UnSet()
		s.announce(failed(err))
		return fmt.Errorf("serial %s: open %s: %w", s.name, s.cfg.Device, err)
	}
	s.setPort(p)
	s.log.Infof("opened %s at %d baud", s.cfg.Device, s.cfg.Baud)

	s.eh.Go(s.readLoop)
	s.eh.Go(func(quit <-chan struct{}) {
		s.queue.run(quit, nil, s.write)
	})
	s.eh.Go(func(quit <-chan struct{}) {
		<-quit
		s.closePort()
	})
	return nil
}

func (s *Serial) StopDecode() {
	s.eh.Exit()
	s.closePort()
	s.started.UnSet()
}

func (s *Serial) SendSentence(n nmea.Sentence) {
	if !s.queue.push(n.Bytes()) {
		s.dropped(s, s.cfg.Device)
	}
}

func (s *Serial) SendSentences(ss []nmea.Sentence) {
	for _, n := range ss {
		s.SendSentence(n)
	}
}

func (s *Serial) setPort(p io.ReadWriteCloser) bool {
	s.portMu.Lock()
	defer s.portMu.Unlock()
	if s.eh.IsExit() {
		p.Close()
		return false
	}
	s.port = p
	s.announce(connected(true, s.cfg.Device))
	return true
}

func (s *Serial) currentPort() io.ReadWriteCloser {
	s.portMu.Lock()
	defer s.portMu.Unlock()
	return s.port
}

func (s *Serial) closePort() {
	s.portMu.Lock()
	defer s.portMu.Unlock()
	if s.port != nil {
		s.port.Close()
		s.port = nil
		s.announce(connected(false, s.cfg.Device))
	}
}

func (s *Serial) write(b []byte) error {
	p := s.currentPort()
	if p == nil {
		// Port is being reopened, the sentence is lost.
		return nil
	}
	if _, err := p.Write(b); err != nil {
		s.log.Debugf("write: %v", err)
	}
	return nil
}

/**
Read the port until StopDecode. When the port fails it is closed and
reopened, at most once per ReopenInterval.
*/
func (s *Serial) readLoop(quit <-chan struct{}) {
	rl := ratelimit.New(1, ratelimit.Per(s.cfg.ReopenInterval))
	rl.Take()
	for {
		if p := s.currentPort(); p != nil {
			err := readLines(p, true, quit, func(line string) {
				s.handleLine(s, line)
			})
			select {
			case <-quit:
				return
			default:
			}
			if err == nil {
				err = errPortClosed
			}
			s.emitError(s, fmt.Sprintf("read %s: %v", s.cfg.Device, err), nmea.IOError)
			s.announce(failed(err))
			s.closePort()
		}

		rl.Take()
		select {
		case <-quit:
			return
		default:
		}
		p, err := s.open(s.serialConfig())
		if err != nil {
			s.log.Debugf("reopen %s: %v", s.cfg.Device, err)
			continue
		}
		if !s.setPort(p) {
			return
		}
		s.log.Infof("reopened %s", s.cfg.Device)
	}
}
