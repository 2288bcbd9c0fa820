package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"sampleflow/internal/infra/persistence/memory"
	"sampleflow/internal/infra/persistence/postgres/testutil"
	"sampleflow/pkg/domain"
)

func stubStore(t *testing.T) (*Store, *testutil.StubConn, *sql.DB) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restoreOpen := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	restoreMigrate := OverrideMigrations(func(string) error { return nil })
	t.Cleanup(func() {
		restoreOpen()
		restoreMigrate()
	})
	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn, db
}

func TestRunInTransactionPersistsBuckets(t *testing.T) {
	store, conn, _ := stubStore(t)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateSample(domain.Sample{PrimaryKey: "22_47_A1", Date: time.Now().UTC()})
		return err
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(conn.Tables["state"]); got != len(memory.Buckets) {
		t.Fatalf("expected %d bucket rows, got %d", len(memory.Buckets), got)
	}
	if conn.Commits != 1 {
		t.Fatalf("expected one commit, got %d", conn.Commits)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestNewStoreLoadsExistingSnapshot(t *testing.T) {
	db, conn := testutil.NewStubDB()
	encoded, err := memory.EncodeBuckets(memory.Snapshot{
		Samples:   map[string]domain.Sample{"22_47_A1": {ID: 1, PrimaryKey: "22_47_A1", TubePrimaryKey: "22_47_A1"}},
		Sequences: memory.Sequences{Sample: 1},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, bucket := range memory.Buckets {
		conn.Tables["state"] = append(conn.Tables["state"], map[string]any{"bucket": bucket, "payload": encoded[bucket]})
	}
	restoreOpen := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restoreOpen()
	var migrated string
	restoreMigrate := OverrideMigrations(func(dsn string) error { migrated = dsn; return nil })
	defer restoreMigrate()

	store, err := NewStore(context.Background(), "postgres://db/sampleflow", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if migrated != "postgres://db/sampleflow" {
		t.Fatalf("expected migrations to run against dsn, got %q", migrated)
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		if _, ok := v.FindSample("22_47_A1"); !ok {
			t.Fatalf("expected sample hydrated from snapshot")
		}
		return nil
	})
}

func TestNewStoreFailures(t *testing.T) {
	restoreOpen := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("dial") })
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open failure, got %v", err)
	}
	restoreOpen()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restoreOpen = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restoreOpen()
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestNewStoreMigrationFailure(t *testing.T) {
	db, _ := testutil.NewStubDB()
	restoreOpen := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restoreOpen()
	restoreMigrate := OverrideMigrations(func(string) error { return errors.New("dirty") })
	defer restoreMigrate()
	if _, err := NewStore(context.Background(), "", nil); err == nil || err.Error() != "dirty" {
		t.Fatalf("expected migration failure, got %v", err)
	}
}

func TestPersistFailureSurfaces(t *testing.T) {
	store, conn, _ := stubStore(t)
	conn.FailCommit = true
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateSample(domain.Sample{PrimaryKey: "22_47_A1"})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
}

func TestMigrationURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@h:5432/db?sslmode=disable": "pgx5://u:p@h:5432/db?sslmode=disable",
		"postgresql://h/db":                        "pgx5://h/db",
		"pgx5://h/db":                              "pgx5://h/db",
	}
	for in, want := range cases {
		if got := migrationURL(in); got != want {
			t.Fatalf("migrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	var up bool
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			up = true
		}
	}
	if !up {
		t.Fatalf("expected an up migration, got %v", entries)
	}
}
