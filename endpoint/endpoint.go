/*
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	endpoint.go: the Endpoint contract and the subscriber bookkeeping shared
	by all transports.
*/

package endpoint

import (
	"strings"
	"sync"

	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	log "github.com/sirupsen/logrus"
)

// Handler receives everything an endpoint decodes. Calls come from the
// endpoint's read goroutines and must not block for long.
type Handler interface {
	OnNewSentence(src Endpoint, s nmea.Sentence)
	OnParserError(src Endpoint, message string, code nmea.ErrorCode)
}

// Endpoint is a bidirectional NMEA-0183 transport.
type Endpoint interface {
	Name() string
	// StartDecode opens the transport and starts reading. Calling it on a
	// running endpoint is a no-op.
	StartDecode() error
	// StopDecode closes the transport and waits for its goroutines. It is
	// safe to call on a stopped endpoint.
	StopDecode()
	// SendSentence queues s for writing. It never blocks; a full queue
	// drops the sentence and raises MessageDropped.
	SendSentence(s nmea.Sentence)
	SendSentences(ss []nmea.Sentence)
	Subscribe(h Handler) (unsubscribe func())
}

// HandlerFuncs adapts plain functions to Handler. Nil members are skipped.
type HandlerFuncs struct {
	Sentence func(src Endpoint, s nmea.Sentence)
	Error    func(src Endpoint, message string, code nmea.ErrorCode)
}

func (h HandlerFuncs) OnNewSentence(src Endpoint, s nmea.Sentence) {
	if h.Sentence != nil {
		h.Sentence(src, s)
	}
}

func (h HandlerFuncs) OnParserError(src Endpoint, message string, code nmea.ErrorCode) {
	if h.Error != nil {
		h.Error(src, message, code)
	}
}

// Option configures the parts common to all transports.
type Option func(*base)

// WithStatus makes the endpoint announce its Status on ch. Announcements
// are dropped when ch is full.
func WithStatus(ch chan<- Status) Option {
	return func(b *base) { b.status = ch }
}

// WithQueueSize sets the per sink send queue length.
func WithQueueSize(n int) Option {
	return func(b *base) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

type base struct {
	name      string
	kind      string
	queueSize int
	status    chan<- Status
	log       *log.Entry

	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
}

func (b *base) init(name, kind string, opts []Option) {
	b.name = name
	b.kind = kind
	b.queueSize = common.SEND_QUEUE_SIZE
	b.handlers = make(map[uint64]Handler)
	for _, o := range opts {
		o(b)
	}
	b.log = common.Logger("endpoint").WithFields(log.Fields{"endpoint": name, "kind": kind})
}

func (b *base) Name() string { return b.name }

func (b *base) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *base) subscribers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		out = append(out, h)
	}
	return out
}

func (b *base) emitSentence(src Endpoint, s nmea.Sentence) {
	for _, h := range b.subscribers() {
		h.OnNewSentence(src, s)
	}
}

func (b *base) emitError(src Endpoint, message string, code nmea.ErrorCode) {
	for _, h := range b.subscribers() {
		h.OnParserError(src, message, code)
	}
}

// handleLine parses one received line and notifies the subscribers. Line
// noise before the first sync byte is skipped.
func (b *base) handleLine(src Endpoint, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if i := strings.IndexAny(line, "$!"); i > 0 {
		line = line[i:]
	}
	s, err := nmea.Parse(line)
	if err != nil {
		b.emitError(src, err.Error(), nmea.CodeOf(err))
		return
	}
	b.emitSentence(src, s)
}

// handleBlock handles a datagram or frame that may carry several lines.
func (b *base) handleBlock(src Endpoint, block string) {
	for _, line := range strings.FieldsFunc(block, isLineBreak) {
		b.handleLine(src, line)
	}
}

func (b *base) announce(st Status) {
	if b.status == nil {
		return
	}
	st.Name = b.name
	st.Kind = b.kind
	st.Content |= CONTENT_KIND
	select {
	case b.status <- st:
	default:
		b.log.Debug("status channel full, dropping announcement")
	}
}

func (b *base) dropped(src Endpoint, sink string) {
	b.emitError(src, "send queue full on "+sink+", sentence dropped", nmea.MessageDropped)
}

func isLineBreak(r rune) bool {
	return r == '\r' || r == '\n'
}
