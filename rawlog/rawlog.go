/*
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	rawlog.go: sqlite log of the sentences matched by "log raw" rules.
*/

package rawlog

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ricochet2200/go-disk-usage/du"
	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/nmea"
	log "github.com/sirupsen/logrus"
	"github.com/tevino/abool/v2"
)

const (
	DefaultTable         = "sentences"
	DefaultQueueSize     = 4096
	DefaultBatchSize     = 256
	DefaultFlushInterval = time.Second
	DefaultMinFreeBytes  = 50 * 1024 * 1024
)

// Config of a Logger. Zero fields take the defaults.
type Config struct {
	Table         string
	Dir           string // directory checked for free space
	MinFreeBytes  uint64
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Entry is one logged sentence.
type Entry struct {
	Time   time.Time
	Source string
	Talker nmea.TalkerID
	ID     nmea.SentenceID
	Line   string
}

// Logger writes sentences to sqlite from a background goroutine. LogRaw
// never blocks: when the queue is full the entry is dropped and counted.
// Writing pauses while the log directory has less than MinFreeBytes left.
type Logger struct {
	db        *sql.DB
	cfg       Config
	queue     chan Entry
	freeSpace func(dir string) uint64
	written   uint64
	dropped   uint64
	paused    *abool.AtomicBool
	eh        *common.ExitHelper
	log       *log.Entry
}

// Open opens (or creates) the sqlite database at path.
func Open(path string, cfg Config) (*Logger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("rawlog: open %s: %w", path, err)
	}
	if cfg.Dir == "" {
		cfg.Dir = filepath.Dir(path)
	}
	l, err := New(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// New uses db and creates the log table if needed.
func New(db *sql.DB, cfg Config) (*Logger, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.MinFreeBytes == 0 {
		cfg.MinFreeBytes = DefaultMinFreeBytes
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	l := &Logger{
		db:        db,
		cfg:       cfg,
		queue:     make(chan Entry, cfg.QueueSize),
		freeSpace: diskFree,
		paused:    abool.New(),
		eh:        common.NewExitHelper(),
		log:       common.Logger("rawlog"),
	}
	if err := l.createSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func diskFree(dir string) uint64 {
	return du.NewDiskUsage(dir).Free()
}

func (l *Logger) createSchema() error {
	q := "CREATE TABLE IF NOT EXISTS " + l.cfg.Table +
		" (id INTEGER PRIMARY KEY AUTOINCREMENT, ts INTEGER NOT NULL, source TEXT NOT NULL," +
		" talker TEXT, sentence_id TEXT, line TEXT NOT NULL)"
	if _, err := l.db.Exec(q); err != nil {
		return fmt.Errorf("rawlog: create table: %w", err)
	}
	return nil
}

// LogRaw queues s for writing.
func (l *Logger) LogRaw(source string, s nmea.Sentence) {
	at := s.Time()
	if at.IsZero() {
		at = time.Now()
	}
	e := Entry{Time: at, Source: source, Talker: s.Talker(), ID: s.ID(), Line: s.Serialize()}
	select {
	case l.queue <- e:
	default:
		atomic.AddUint64(&l.dropped, 1)
	}
}

// Stats returns the number of written and dropped entries.
func (l *Logger) Stats() (written, dropped uint64) {
	return atomic.LoadUint64(&l.written), atomic.LoadUint64(&l.dropped)
}

func (l *Logger) IsPaused() bool {
	return l.paused.IsSet()
}

// Start runs the writer until Close.
func (l *Logger) Start() {
	l.eh.Go(l.run)
}

// Close flushes the queue, stops the writer and closes the database.
func (l *Logger) Close() error {
	l.eh.Exit()
	return l.db.Close()
}

func (l *Logger) run(quit <-chan struct{}) {
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, l.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-quit:
			for {
				select {
				case e := <-l.queue:
					batch = append(batch, e)
					if len(batch) >= l.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case e := <-l.queue:
			batch = append(batch, e)
			if len(batch) >= l.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *Logger) flush(batch []Entry) {
	free := l.freeSpace(l.cfg.Dir)
	if free < l.cfg.MinFreeBytes {
		if l.paused.SetToIf(false, true) {
			l.log.WithField("free", free).Warn("low disk space, raw logging paused")
		}
		atomic.AddUint64(&l.dropped, uint64(len(batch)))
		return
	}
	if l.paused.SetToIf(true, false) {
		l.log.Info("raw logging resumed")
	}

	if err := l.WriteBatch(batch); err != nil {
		l.log.WithError(err).Error("writing raw log failed")
		atomic.AddUint64(&l.dropped, uint64(len(batch)))
		return
	}
	atomic.AddUint64(&l.written, uint64(len(batch)))
}

// WriteBatch inserts entries with a single statement.
func (l *Logger) WriteBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(l.cfg.Table)
	b.WriteString(" (ts, source, talker, sentence_id, line) VALUES ")

	args := make([]interface{}, 0, len(entries)*5)
	for i, e := range entries {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?,?,?,?,?)")
		args = append(args, e.Time.UnixMilli(), e.Source, string(e.Talker), string(e.ID), e.Line)
	}
	_, err := l.db.Exec(b.String(), args...)
	return err
}
