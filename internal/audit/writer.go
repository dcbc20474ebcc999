// Package audit writes one record per advisory turn to Postgres. Writes are
// best-effort and asynchronous: a full queue or a down database costs the
// audit row, never the user's response.
package audit

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/metrics"
)

// JSONB marshals a payload into a Postgres jsonb column.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(src interface{}) error {
	if src == nil {
		*j = JSONB{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source %T", src)
	}
	return json.Unmarshal(b, j)
}

// Record is one audited advisory turn.
type Record struct {
	TraceID   string    `db:"trace_id"`
	UserID    string    `db:"user_id"`
	SessionID string    `db:"session_id"`
	Intent    string    `db:"intent"`
	Mode      string    `db:"mode"`
	Payload   JSONB     `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

const insertQuery = `
	INSERT INTO advisory_audit (trace_id, user_id, session_id, intent, mode, payload, created_at)
	VALUES (:trace_id, :user_id, :session_id, :intent, :mode, :payload, :created_at)`

// Writer queues audit records and flushes them from background workers.
type Writer struct {
	db     *sqlx.DB
	logger *zap.Logger

	queue  chan Record
	stopCh chan struct{}
	wg     sync.WaitGroup
}

const (
	queueDepth   = 1024
	writeWorkers = 2
	writeTimeout = 5 * time.Second
)

// NewWriter connects to Postgres and starts the write workers.
func NewWriter(cfg config.AuditConfig, logger *zap.Logger) (*Writer, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	return newWriterWithDB(db, logger), nil
}

// newWriterWithDB wires the queue around an existing connection; tests use
// it with a mock.
func newWriterWithDB(db *sqlx.DB, logger *zap.Logger) *Writer {
	w := &Writer{
		db:     db,
		logger: logger,
		queue:  make(chan Record, queueDepth),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < writeWorkers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	return w
}

// Enqueue submits a record without blocking. When the queue is full the
// record is dropped and counted; audit never backpressures the pipeline.
func (w *Writer) Enqueue(rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	select {
	case w.queue <- rec:
		metrics.AuditQueueDepth.Set(float64(len(w.queue)))
	default:
		metrics.AuditWrites.WithLabelValues("dropped").Inc()
		w.logger.Warn("audit queue full, dropping record",
			zap.String("trace_id", rec.TraceID))
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()
	for {
		select {
		case rec := <-w.queue:
			w.write(rec)
			metrics.AuditQueueDepth.Set(float64(len(w.queue)))
		case <-w.stopCh:
			// Drain what is already queued, then exit.
			for {
				select {
				case rec := <-w.queue:
					w.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if _, err := w.db.NamedExecContext(ctx, insertQuery, rec); err != nil {
		// Swallowed: audit failures must never surface to the user.
		metrics.AuditWrites.WithLabelValues("error").Inc()
		w.logger.Error("audit write failed",
			zap.String("trace_id", rec.TraceID),
			zap.Error(err))
		return
	}
	metrics.AuditWrites.WithLabelValues("ok").Inc()
}

// Close stops the workers after draining the queue.
func (w *Writer) Close() error {
	close(w.stopCh)
	w.wg.Wait()
	return w.db.Close()
}

// Ping reports database health for the readiness endpoint.
func (w *Writer) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}
