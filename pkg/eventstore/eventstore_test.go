package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

// setupTestDB attempts to connect to a PostgreSQL database for testing.
// It skips the test if the connection cannot be established.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	pgUser := os.Getenv("PGUSER")
	pgPassword := os.Getenv("PGPASSWORD")
	pgHost := os.Getenv("PGHOST")
	pgPort := os.Getenv("PGPORT")
	pgDB := os.Getenv("PGDATABASE")

	if pgUser == "" {
		pgUser = "user"
	}
	if pgPassword == "" {
		pgPassword = "password"
	}
	if pgHost == "" {
		pgHost = "localhost"
	}
	if pgPort == "" {
		pgPort = "5432"
	}
	if pgDB == "" {
		pgDB = "testdb"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort, pgUser, pgPassword, pgDB)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("skipping event store tests: could not connect to postgres: %v", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

type testPayload struct {
	Message string `json:"message"`
}

func newTestEvent(t testing.TB, eventType string, n int) event.Envelope {
	t.Helper()
	e, err := event.New(uuid.Nil, "test_aggregate", eventType, testPayload{Message: fmt.Sprintf("event %d", n)}, uuid.Nil)
	require.NoError(t, err)
	return e
}

func TestAppendAndReadStream(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)

	aggregateID := uuid.New()
	for i := 0; i < 3; i++ {
		err := store.Append(context.Background(), aggregateID, "test_aggregate", i, []event.Envelope{newTestEvent(t, "TestEvent", i)})
		require.NoError(t, err)
	}

	events, err := store.ReadStream(context.Background(), aggregateID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Version)
	}
	// P1: versions form a contiguous 1..N sequence
	assert.Equal(t, 1, events[0].Version)
	assert.Equal(t, 3, events[2].Version)
}

func TestAppendRejectsStaleExpectedVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)

	aggregateID := uuid.New()
	require.NoError(t, store.Append(context.Background(), aggregateID, "test_aggregate", 0, []event.Envelope{newTestEvent(t, "TestEvent", 0)}))

	err := store.Append(context.Background(), aggregateID, "test_aggregate", 0, []event.Envelope{newTestEvent(t, "TestEvent", 1)})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConcurrencyConflict))
}

func TestConcurrentAppendExactlyOneWins(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)

	aggregateID := uuid.New()
	require.NoError(t, store.Append(context.Background(), aggregateID, "test_aggregate", 0, []event.Envelope{newTestEvent(t, "TestEvent", 0)}))

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := store.Append(context.Background(), aggregateID, "test_aggregate", 1, []event.Envelope{newTestEvent(t, "TestEvent", n)})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one concurrent append at the same expectedVersion should succeed")
}

func TestFindLatestByPayloadFieldIgnoresDeletedAggregate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()

	aggregateID := uuid.New()
	created, err := event.New(aggregateID, "test_aggregate", "TestCreated", map[string]string{"isbn": "978-1"}, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, aggregateID, "test_aggregate", 0, []event.Envelope{created}))

	id, err := store.FindLatestByPayloadField(ctx, "TestCreated", "isbn", "978-1")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, aggregateID, *id)

	deleted, err := event.New(aggregateID, "test_aggregate", "TestDeleted", map[string]string{}, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, aggregateID, "test_aggregate", 1, []event.Envelope{deleted}))

	id, err = store.FindLatestByPayloadField(ctx, "TestCreated", "isbn", "978-1")
	require.NoError(t, err)
	assert.Nil(t, id, "a deleted aggregate must not be returned by the secondary-key lookup")
}

func BenchmarkAppend(b *testing.B) {
	db := setupTestDB(b)
	defer db.Close()
	store := NewEventStore(db)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		aggregateID := uuid.New()
		ev := newTestEvent(b, "TestEvent", i)
		b.StartTimer()

		if err := store.Append(context.Background(), aggregateID, "test_aggregate", 0, []event.Envelope{ev}); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

func BenchmarkReadStream(b *testing.B) {
	db := setupTestDB(b)
	defer db.Close()
	store := NewEventStore(db)

	aggregateID := uuid.New()
	for i := 0; i < 10; i++ {
		ev := newTestEvent(b, "TestEvent", i)
		if err := store.Append(context.Background(), aggregateID, "test_aggregate", i, []event.Envelope{ev}); err != nil {
			b.Fatalf("failed to setup events for benchmark: %v", err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := store.ReadStream(context.Background(), aggregateID); err != nil {
			b.Fatalf("ReadStream failed: %v", err)
		}
	}
}
