package audit

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	require.NoError(t, err)
	return s
}

func appendEvent(t *testing.T, s *Store, e Event) {
	t.Helper()
	require.NoError(t, s.Append(context.Background(), e))
}

func TestNewEventDerivesCategory(t *testing.T) {
	t.Parallel()

	e := NewEvent(LevelSecurity, EventCSRFRejected, RiskMedium, "10.0.0.1", "ua", "", nil)
	assert.Equal(t, CategoryCSRF, e.Category)
	assert.NotEmpty(t, e.ID)
	assert.WithinDuration(t, time.Now().UTC(), e.Timestamp, 5*time.Second)

	e = NewEvent(LevelSecurity, EventLoginFailure, RiskLow, "10.0.0.1", "ua", "a@b.c", nil)
	assert.Equal(t, CategoryAuth, e.Category)
}

func TestStoreQueriesAndFilters(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	base := time.Now().UTC().Add(-time.Minute)
	events := []Event{
		{ID: "e1", Timestamp: base, Level: LevelSecurity, Type: EventLoginFailure,
			Category: CategoryAuth, Risk: RiskLow, IP: "10.0.0.1", Email: "alice@example.com"},
		{ID: "e2", Timestamp: base.Add(time.Second), Level: LevelSecurity, Type: EventCSRFRejected,
			Category: CategoryCSRF, Risk: RiskMedium, IP: "10.0.0.2"},
		{ID: "e3", Timestamp: base.Add(2 * time.Second), Level: LevelSecurity, Type: EventLoginLocked,
			Category: CategoryAuth, Risk: RiskHigh, IP: "10.0.0.1", Email: "alice@example.com",
			Details: map[string]any{"attempts": 5}},
	}
	for _, e := range events {
		appendEvent(t, s, e)
	}

	all, total, err := s.List(context.Background(), 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "e3", all[0].ID)
	assert.Equal(t, "e1", all[2].ID)
	assert.Equal(t, 5, int(all[0].Details["attempts"].(float64)))

	high, total, err := s.HighRisk(context.Background(), 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, high, 1)
	assert.Equal(t, "e3", high[0].ID)

	csrf, _, err := s.ByCategory(context.Background(), CategoryCSRF, 1, 50)
	require.NoError(t, err)
	require.Len(t, csrf, 1)
	assert.Equal(t, "e2", csrf[0].ID)

	byIP, total, err := s.ByIP(context.Background(), "10.0.0.1", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, byIP, 2)

	byEmail, _, err := s.ByEmail(context.Background(), "alice@example.com", 1, 50)
	require.NoError(t, err)
	assert.Len(t, byEmail, 2)

	page, total, err := s.List(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}

func TestStatsSince(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	now := time.Now().UTC()

	appendEvent(t, s, Event{ID: "old", Timestamp: now.Add(-2 * time.Hour),
		Level: LevelSecurity, Type: EventLoginFailure, Category: CategoryAuth,
		Risk: RiskLow, IP: "10.0.0.1"})
	appendEvent(t, s, Event{ID: "new1", Timestamp: now.Add(-time.Minute),
		Level: LevelSecurity, Type: EventLoginFailure, Category: CategoryAuth,
		Risk: RiskLow, IP: "10.0.0.1"})
	appendEvent(t, s, Event{ID: "new2", Timestamp: now.Add(-time.Minute),
		Level: LevelAudit, Type: EventLoginSuccess, Category: CategoryAuth,
		Risk: RiskLow, IP: "10.0.0.1"})

	stats, err := s.StatsSince(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByRisk[RiskLow])
	assert.Equal(t, 1, stats.ByType[EventLoginFailure])
	assert.Equal(t, 1, stats.ByLevel[LevelAudit])
}

type flakySink struct {
	mu       sync.Mutex
	failch   int
	appended []Event
}

func (f *flakySink) Append(_ context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failch > 0 {
		f.failch--
		return errors.New("transient write failure")
	}
	f.appended = append(f.appended, e)
	return nil
}

func (f *flakySink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

func TestRecorderDrainsOnClose(t *testing.T) {
	t.Parallel()

	sink := &flakySink{}
	r := NewRecorder(sink, 16, zap.NewNop())

	for i := 0; i < 10; i++ {
		r.Record(NewEvent(LevelSecurity, EventLoginFailure, RiskLow, "10.0.0.1", "", "", nil))
	}
	r.Close()

	assert.Equal(t, 10, sink.count())
	assert.Zero(t, r.Dropped())
}

func TestRecorderRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	sink := &flakySink{failch: 2}
	r := NewRecorder(sink, 16, zap.NewNop())

	r.Record(NewEvent(LevelSecurity, EventLoginFailure, RiskLow, "10.0.0.1", "", "", nil))
	r.Close()

	assert.Equal(t, 1, sink.count())
	assert.Zero(t, r.Dropped())
}

func TestRecorderCountsLostEvents(t *testing.T) {
	t.Parallel()

	// Fails more times than the worker will retry a single event.
	sink := &flakySink{failch: 100}
	r := NewRecorder(sink, 16, zap.NewNop())

	r.Record(NewEvent(LevelSecurity, EventLoginFailure, RiskLow, "10.0.0.1", "", "", nil))
	r.Close()

	assert.Equal(t, 0, sink.count())
	assert.Equal(t, uint64(1), r.Dropped())
}
