package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/rabbithole/pkg/storage"
)

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped when no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("rabbithole_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func makeTestRecord(id string, created time.Time) *storage.RequestRecord {
	return &storage.RequestRecord{
		ID:         id,
		RequestID:  "req_" + id,
		Subject:    "alice",
		Model:      "gpt-4o",
		Stream:     true,
		Messages:   2,
		Status:     200,
		DurationMS: 17,
		CreatedAt:  created.UTC().Truncate(time.Microsecond),
	}
}

func TestPendingMigrations_Ordered(t *testing.T) {
	migrations, err := pendingMigrations()
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected embedded migrations, got %d", len(migrations))
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].version >= migrations[i].version {
			t.Errorf("migrations out of order: %v", migrations)
		}
	}
	if migrations[0].version != 1 {
		t.Errorf("first migration version = %d, want 1", migrations[0].version)
	}
}

func TestPostgres_SaveAndList(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Now()
	ts := fmt.Sprintf("%d", base.UnixNano())
	older := makeTestRecord("rlog_old_"+ts, base.Add(-time.Minute))
	newer := makeTestRecord("rlog_new_"+ts, base)
	newer.Status = 502
	newer.Error = "OpenAI API error: Bad Gateway"

	for _, rec := range []*storage.RequestRecord{older, newer} {
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save(%s): %v", rec.ID, err)
		}
	}

	got, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Errorf("order = [%s %s], want newest first", got[0].ID, got[1].ID)
	}
	if got[0].Error != newer.Error || got[0].Status != 502 {
		t.Errorf("error fields = %q/%d", got[0].Error, got[0].Status)
	}
	if got[1].Error != "" {
		t.Errorf("NULL error should scan as empty, got %q", got[1].Error)
	}
	if !got[1].CreatedAt.Equal(older.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got[1].CreatedAt, older.CreatedAt)
	}
}

func TestPostgres_DuplicateSave(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := makeTestRecord(fmt.Sprintf("rlog_dup_%d", time.Now().UnixNano()), time.Now())
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, rec); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestPostgres_TenantIsolation(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ts := fmt.Sprintf("%d", time.Now().UnixNano())
	a := makeTestRecord("rlog_ta_"+ts, time.Now())
	a.Tenant = "tenant-a"
	b := makeTestRecord("rlog_tb_"+ts, time.Now())
	b.Tenant = "tenant-b"
	store.Save(ctx, a)
	store.Save(ctx, b)

	ctxA := storage.SetCaller(ctx, storage.Caller{Subject: "alice", Tenant: "tenant-a"})
	got, err := store.List(ctxA, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, rec := range got {
		if rec.Tenant != "tenant-a" {
			t.Errorf("tenant-a listing returned %s from %q", rec.ID, rec.Tenant)
		}
	}
}

func TestPostgres_MigrateIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	if err := store.migrate(context.Background()); err != nil {
		t.Errorf("second migrate: %v", err)
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
