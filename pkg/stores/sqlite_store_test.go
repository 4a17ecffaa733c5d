package stores

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/madcore/madcore/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	for _, table := range []string{"parameters", "runs"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migration failed: %v", err)
	}
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "madcore.db")

	store, err := OpenSQLiteStore(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	if err := store.SetMany(ctx, "user", map[string]string{"registration": "true"}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLiteStore(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	v, err := reopened.Get(ctx, "user", "registration")
	if err != nil || v != "true" {
		t.Errorf("Get() = %q, %v; want \"true\"", v, err)
	}
}

// TestParameterCRUD tests section-scoped parameter operations
func TestParameterCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	section := "plugin:spark:jobs:deploy"

	if err := store.SetMany(ctx, section, map[string]string{"Region": "us-east-1", "Size": "small"}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	v, err := store.Get(ctx, section, "Region")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "us-east-1" {
		t.Errorf("Get(Region) = %q, want us-east-1", v)
	}

	// Upsert overwrites and keeps the other keys.
	if err := store.SetMany(ctx, section, map[string]string{"Size": "large"}); err != nil {
		t.Fatalf("SetMany update: %v", err)
	}
	got, err := store.GetSection(ctx, section)
	if err != nil {
		t.Fatalf("GetSection: %v", err)
	}
	want := map[string]string{"Region": "us-east-1", "Size": "large"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetSection() = %v, want %v", got, want)
	}

	if err := store.DeleteKeys(ctx, section, []string{"Size", "Absent"}); err != nil {
		t.Fatalf("DeleteKeys: %v", err)
	}
	if _, err := store.Get(ctx, section, "Size"); !errors.Is(err, engine.ErrKeyNotFound) {
		t.Errorf("Get(Size) after delete error = %v, want ErrKeyNotFound", err)
	}

	if err := store.DeleteSection(ctx, section); err != nil {
		t.Fatalf("DeleteSection: %v", err)
	}
	got, err = store.GetSection(ctx, section)
	if err != nil {
		t.Fatalf("GetSection after delete: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("section not deleted: %v", got)
	}
}

func TestGetMissingKeyIsNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.Get(context.Background(), "user", "registration")
	if !engine.IsNotFound(err) {
		t.Errorf("Get() error = %v, want not found", err)
	}
}

func TestSectionsByPrefix(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, s := range []string{"plugin:spark:jobs:deploy", "plugin:kafka:jobs:deploy", "user"} {
		if err := store.SetMany(ctx, s, map[string]string{"k": "v"}); err != nil {
			t.Fatalf("SetMany(%s): %v", s, err)
		}
	}

	got, err := store.Sections(ctx, "plugin:")
	if err != nil {
		t.Fatalf("Sections: %v", err)
	}
	want := []string{"plugin:kafka:jobs:deploy", "plugin:spark:jobs:deploy"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sections() = %v, want %v", got, want)
	}
}

// TestRunCRUD tests Run CRUD operations
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	run, err := store.StartRun(ctx, engine.RunKindJob, "madcore.plugin.spark.deploy")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.ID == "" || run.Status != engine.RunStatusRunning {
		t.Fatalf("unexpected run: %+v", run)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.CompletedAt != nil || got.Error != nil {
		t.Errorf("running run has completion data: %+v", got)
	}
	if !got.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, base)
	}

	store.now = func() time.Time { return base.Add(time.Minute) }
	if err := store.FinishRun(ctx, run.ID, engine.RunStatusFailed, 3, errors.New("build failed")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err = store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != engine.RunStatusFailed || got.Attempts != 3 {
		t.Errorf("run = %+v, want failed with 3 attempts", got)
	}
	if got.Error == nil || *got.Error != "build failed" {
		t.Errorf("Error = %v, want build failed", got.Error)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("CompletedAt = %v", got.CompletedAt)
	}

	if err := store.FinishRun(ctx, "missing", engine.RunStatusSucceeded, 1, nil); err == nil {
		t.Error("expected error finishing unknown run")
	}
	if _, err := store.GetRun(ctx, "missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		store.now = func() time.Time { return at }
		run, err := store.StartRun(ctx, engine.RunKindConfigure, "madcore")
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		ids = append(ids, run.ID)
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("ListRuns(2, 0) returned wrong order")
	}

	runs, err = store.ListRuns(ctx, 10, 2)
	if err != nil {
		t.Fatalf("ListRuns offset: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != ids[0] {
		t.Errorf("ListRuns(10, 2) = %d runs", len(runs))
	}
}
