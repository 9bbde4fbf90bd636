package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"
)

const (
	RecordBufferSize    = 1024                   // Pending rows before Record starts dropping
	MaxRecordsPerSec    = 240                    // Global rate limit
	RecordBatchSize     = 64                     // Rows per transaction
	RecordFlushInterval = 500 * time.Millisecond // How often to flush
)

// ErrRecorderClosed is returned by operations on a closed recorder.
var ErrRecorderClosed = errors.New("recorder closed")

// TickRecord is one persisted row of tick statistics.
type TickRecord struct {
	Tick          uint64    `json:"tick"`
	RecordedAt    time.Time `json:"recordedAt"`
	Particles     int       `json:"particles"`
	DurationUS    int64     `json:"durationUs"`
	QueryUS       int64     `json:"queryUs"`
	RebuildUS     int64     `json:"rebuildUs"`
	NonEmptyCells int       `json:"nonEmptyCells"`
	MaxInCell     int       `json:"maxInCell"`
	Candidates    int       `json:"candidates"`
	Neighbors     int       `json:"neighbors"`
}

func newTickRecord(s TickStats, at time.Time) TickRecord {
	return TickRecord{
		Tick:          s.Tick,
		RecordedAt:    at,
		Particles:     s.Particles,
		DurationUS:    s.Duration.Microseconds(),
		QueryUS:       s.Query.Microseconds(),
		RebuildUS:     s.Rebuild.Microseconds(),
		NonEmptyCells: s.Grid.NonEmptyCells,
		MaxInCell:     s.Grid.MaxInCell,
		Candidates:    s.Candidates,
		Neighbors:     s.Neighbors,
	}
}

// RecorderStats reports recorder throughput.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
}

// Recorder persists sampled tick statistics to SQLite without blocking the
// simulation: Record only enqueues, a background writer batches rows into
// transactions.
type Recorder struct {
	db      *sql.DB
	every   uint64
	limiter *rate.Limiter

	queue    chan TickRecord
	flushReq chan chan error
	stopChan chan struct{}
	stopOnce sync.Once
	writerWg sync.WaitGroup
	closed   atomic.Bool

	written uint64 // atomic
	dropped uint64 // atomic
}

// OpenRecorder opens (or creates) the database at path and starts the
// writer. Only every Nth tick is recorded.
func OpenRecorder(path string, every int) (*Recorder, error) {
	if path == "" {
		return nil, errors.New("recorder: empty database path")
	}
	if every < 1 {
		every = 1
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	// One connection serialises the writer and readers on the same file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: enable WAL: %w", err)
	}
	if err := migrateRecorder(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: migrate: %w", err)
	}

	r := &Recorder{
		db:       db,
		every:    uint64(every),
		limiter:  rate.NewLimiter(MaxRecordsPerSec, MaxRecordsPerSec/4),
		queue:    make(chan TickRecord, RecordBufferSize),
		flushReq: make(chan chan error),
		stopChan: make(chan struct{}),
	}

	r.writerWg.Add(1)
	go r.writerLoop()

	log.Printf("💾 Recording every %d ticks to %s", every, path)
	return r, nil
}

func migrateRecorder(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tick_stats (
		tick INTEGER PRIMARY KEY,
		recorded_at DATETIME NOT NULL,
		particles INTEGER NOT NULL,
		duration_us INTEGER NOT NULL,
		query_us INTEGER NOT NULL,
		rebuild_us INTEGER NOT NULL,
		non_empty_cells INTEGER NOT NULL,
		max_in_cell INTEGER NOT NULL,
		candidates INTEGER NOT NULL,
		neighbors INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Record enqueues the stats of a tick. It never blocks: unsampled ticks are
// skipped, and rows over the rate limit or beyond the buffer are dropped.
// Safe to call on a nil recorder.
func (r *Recorder) Record(s TickStats) bool {
	if r == nil || r.closed.Load() {
		return false
	}
	if s.Tick%r.every != 0 {
		return false
	}
	if !r.limiter.Allow() {
		atomic.AddUint64(&r.dropped, 1)
		return false
	}

	select {
	case r.queue <- newTickRecord(s, time.Now()):
		return true
	default:
		atomic.AddUint64(&r.dropped, 1)
		return false
	}
}

// Flush blocks until every row enqueued before the call is written.
func (r *Recorder) Flush(ctx context.Context) error {
	if r.closed.Load() {
		return ErrRecorderClosed
	}
	done := make(chan error, 1)
	select {
	case r.flushReq <- done:
	case <-r.stopChan:
		return ErrRecorderClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recent returns up to limit rows, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]TickRecord, error) {
	if r.closed.Load() {
		return nil, ErrRecorderClosed
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT tick, recorded_at, particles, duration_us, query_us, rebuild_us,
		       non_empty_cells, max_in_cell, candidates, neighbors
		FROM tick_stats ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TickRecord, 0, limit)
	for rows.Next() {
		var rec TickRecord
		if err := rows.Scan(&rec.Tick, &rec.RecordedAt, &rec.Particles, &rec.DurationUS, &rec.QueryUS,
			&rec.RebuildUS, &rec.NonEmptyCells, &rec.MaxInCell, &rec.Candidates, &rec.Neighbors); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats returns recorder throughput counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: atomic.LoadUint64(&r.written),
		Dropped: atomic.LoadUint64(&r.dropped),
		Pending: len(r.queue),
	}
}

// Close flushes pending rows, stops the writer and closes the database.
func (r *Recorder) Close() error {
	var err error
	r.stopOnce.Do(func() {
		r.closed.Store(true)
		close(r.stopChan)
		r.writerWg.Wait()
		err = r.db.Close()
	})
	return err
}

// writerLoop batches queued rows and writes them on size, interval, flush
// request or shutdown.
func (r *Recorder) writerLoop() {
	defer r.writerWg.Done()

	ticker := time.NewTicker(RecordFlushInterval)
	defer ticker.Stop()

	batch := make([]TickRecord, 0, RecordBatchSize)
	write := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := r.writeBatch(batch)
		if err != nil {
			log.Printf("⚠️ Recorder write failed (%d rows lost): %v", len(batch), err)
			atomic.AddUint64(&r.dropped, uint64(len(batch)))
		} else {
			atomic.AddUint64(&r.written, uint64(len(batch)))
		}
		batch = batch[:0]
		return err
	}
	drain := func() error {
		var firstErr error
		for {
			select {
			case rec := <-r.queue:
				batch = append(batch, rec)
				if len(batch) == RecordBatchSize {
					if err := write(); err != nil && firstErr == nil {
						firstErr = err
					}
				}
			default:
				if err := write(); err != nil && firstErr == nil {
					firstErr = err
				}
				return firstErr
			}
		}
	}

	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) == RecordBatchSize {
				write()
			}
		case <-ticker.C:
			write()
		case done := <-r.flushReq:
			done <- drain()
		case <-r.stopChan:
			drain()
			return
		}
	}
}

func (r *Recorder) writeBatch(batch []TickRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO tick_stats
		(tick, recorded_at, particles, duration_us, query_us, rebuild_us,
		 non_empty_cells, max_in_cell, candidates, neighbors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range batch {
		if _, err := stmt.Exec(rec.Tick, rec.RecordedAt, rec.Particles, rec.DurationUS, rec.QueryUS,
			rec.RebuildUS, rec.NonEmptyCells, rec.MaxInCell, rec.Candidates, rec.Neighbors); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
