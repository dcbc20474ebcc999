package audit

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newMockWriter(t *testing.T) (*Writer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return newWriterWithDB(sqlx.NewDb(db, "postgres"), zaptest.NewLogger(t)), mock
}

func TestEnqueueWritesRecord(t *testing.T) {
	w, mock := newMockWriter(t)

	mock.ExpectExec("INSERT INTO advisory_audit").
		WithArgs("t-1", "user-1", "s-1", "spending", "final", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	w.Enqueue(Record{
		TraceID:   "t-1",
		UserID:    "user-1",
		SessionID: "s-1",
		Intent:    "spending",
		Mode:      "final",
		Payload:   JSONB{"tool_bundle": []string{"spend-analytics"}},
	})

	require.NoError(t, w.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	w, mock := newMockWriter(t)

	mock.ExpectExec("INSERT INTO advisory_audit").
		WillReturnError(assert.AnError)
	mock.ExpectClose()

	w.Enqueue(Record{TraceID: "t-2", UserID: "user-1"})

	// Close drains the queue; the failed write must not panic or block.
	require.NoError(t, w.Close())
}

func TestEnqueueNeverBlocksWhenQueueFull(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	// sqlmock shares one mock across pooled connections and expects a single
	// Close; cap the pool so the two workers cannot open a second connection.
	db.SetMaxOpenConns(1)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < queueDepth+10; i++ {
		mock.ExpectExec("INSERT INTO advisory_audit").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectClose()

	w := newWriterWithDB(sqlx.NewDb(db, "postgres"), zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueDepth+10; i++ {
			w.Enqueue(Record{TraceID: "t", CreatedAt: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	require.NoError(t, w.Close())
}

func TestJSONBRoundTrip(t *testing.T) {
	in := JSONB{"reason_codes": []interface{}{"clarify:low_confidence"}, "round": 1.0}

	v, err := in.Value()
	require.NoError(t, err)

	var out JSONB
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	var empty JSONB
	require.NoError(t, empty.Scan(nil))
	assert.Empty(t, empty)
}
