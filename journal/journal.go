// Package journal persists one row per extraction request to SQLite.
//
// Writes are asynchronous: entries go through a buffered channel and are
// flushed in batches by a background goroutine. When the buffer is full the
// entry is dropped rather than blocking the extraction path.
package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/extrait/dbopen"
	"github.com/hazyhaar/extrait/idgen"
)

// Schema for the extractions table. Call Store.Init() or apply manually.
const Schema = `
CREATE TABLE IF NOT EXISTS extractions (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	media_type TEXT,
	status TEXT NOT NULL,
	error_kind TEXT,
	message TEXT,
	content_len INTEGER NOT NULL DEFAULT 0,
	duration_us INTEGER NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extractions_ts ON extractions(timestamp);
CREATE INDEX IF NOT EXISTS idx_extractions_err ON extractions(status) WHERE status != 'ok';
`

// Entry statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

var newID = idgen.Prefixed("ext_", idgen.UUIDv7())

// Entry is one extraction request outcome. ID and Timestamp are filled by
// RecordAsync when left zero.
type Entry struct {
	ID         string
	Source     string // file path, or "bytes:<n>" for in-memory input
	MediaType  string
	Status     string
	ErrorKind  string
	Message    string
	ContentLen int
	DurationUs int64
	Timestamp  int64
}

// Store persists extraction entries to a SQLite table asynchronously.
type Store struct {
	db   *sql.DB
	ch   chan *Entry
	done chan struct{}
	once sync.Once
}

// NewStore creates a journal store backed by the given database connection
// and starts the flush goroutine.
func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:   db,
		ch:   make(chan *Entry, 1024),
		done: make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Init creates the extractions table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// RecordAsync queues an entry for async persistence. Non-blocking; drops the
// entry if the buffer is full so journaling never backpressures extraction.
func (s *Store) RecordAsync(e *Entry) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	select {
	case s.ch <- e:
	default:
	}
}

// Close drains the buffer and stops the flush goroutine.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)

	batch := make([]*Entry, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}

	err := dbopen.RunTx(context.Background(), s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO extractions
			(id, source, media_type, status, error_kind, message, content_len, duration_us, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range batch {
			if _, err := stmt.Exec(e.ID, e.Source, e.MediaType, e.Status, e.ErrorKind,
				e.Message, e.ContentLen, e.DurationUs, e.Timestamp); err != nil {
				slog.Error("journal: insert", "id", e.ID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("journal: flush", "error", err)
	}
}
