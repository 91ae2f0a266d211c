package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/replicant/internal/replicant"
	"github.com/roach88/replicant/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"replicants", "history"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestCreate_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "my-bundle", "scoreboard",
		replicant.MustParseValue(`{"score":0}`),
		replicant.MustParseValue(`{"type":"object"}`))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if created.Revision != 0 {
		t.Errorf("new replicant revision = %d, want 0", created.Revision)
	}
	if created.ID == "" {
		t.Error("new replicant has empty ID")
	}

	found, err := s.FindByKey(ctx, "my-bundle", "scoreboard")
	if err != nil {
		t.Fatalf("FindByKey() failed: %v", err)
	}
	if found == nil {
		t.Fatal("FindByKey() returned nil for existing key")
	}
	if !found.Value.Equal(created.Value) {
		t.Errorf("value = %s, want %s", found.Value, created.Value)
	}
	if !found.Schema.Equal(created.Schema) {
		t.Errorf("schema = %s, want %s", found.Schema, created.Schema)
	}
	if !found.DefaultValue.Equal(created.Value) {
		t.Errorf("defaultValue = %s, want %s", found.DefaultValue, created.Value)
	}
	if found.CreatedAt.IsZero() || found.UpdatedAt.IsZero() {
		t.Error("timestamps not persisted")
	}
}

// Timestamps come from the now hook, so a deterministic clock produces a
// reproducible timeline: one tick for the create, one per update shared
// by updated_at and the history row's changed_at.
func TestTimestamps_ComeFromClockOverride(t *testing.T) {
	s := openTestStore(t)
	s.now = testutil.NewClock().Now
	ctx := context.Background()

	created, err := s.Create(ctx, "my-bundle", "counter", replicant.MustParseValue(`0`), nil)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if want := epoch.Add(1 * time.Second); !created.CreatedAt.Equal(want) {
		t.Errorf("createdAt = %v, want %v", created.CreatedAt, want)
	}

	updated, err := s.Update(ctx, created.ID, replicant.MustParseValue(`1`), "ops")
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if want := epoch.Add(2 * time.Second); !updated.UpdatedAt.Equal(want) {
		t.Errorf("updatedAt = %v, want %v", updated.UpdatedAt, want)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("createdAt changed on update: %v != %v", updated.CreatedAt, created.CreatedAt)
	}

	history, err := s.ReadHistory(ctx, "my-bundle", "counter")
	if err != nil {
		t.Fatalf("ReadHistory() failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}
	if want := epoch.Add(2 * time.Second); !history[0].ChangedAt.Equal(want) {
		t.Errorf("history changedAt = %v, want %v", history[0].ChangedAt, want)
	}
}

func TestCreate_DuplicateKeyFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "ns", "dup", replicant.Null, nil); err != nil {
		t.Fatalf("first Create() failed: %v", err)
	}
	_, err := s.Create(ctx, "ns", "dup", replicant.Null, nil)
	if !replicant.IsPersistence(err) {
		t.Errorf("duplicate Create() error = %v, want PersistenceError", err)
	}
}

func TestFindByKey_Missing(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.FindByKey(context.Background(), "ns", "missing")
	if err != nil {
		t.Fatalf("FindByKey() failed: %v", err)
	}
	if rec != nil {
		t.Errorf("FindByKey() = %+v, want nil for missing key", rec)
	}
}

// Mirrors the basic scoreboard flow: create with a default, update once,
// verify revision and that history holds exactly the prior state.
func TestUpdate_AdvancesRevisionAndRecordsHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "my-bundle", "scoreboard",
		replicant.MustParseValue(`{"score":0}`), nil)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	updated, err := s.Update(ctx, created.ID, replicant.MustParseValue(`{"score":1}`), "producer-1")
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if updated.Revision != 1 {
		t.Errorf("revision after update = %d, want 1", updated.Revision)
	}
	if !updated.Value.Equal(replicant.MustParseValue(`{"score":1}`)) {
		t.Errorf("value after update = %s, want {\"score\":1}", updated.Value)
	}

	history, err := s.ReadHistory(ctx, "my-bundle", "scoreboard")
	if err != nil {
		t.Fatalf("ReadHistory() failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}
	entry := history[0]
	if !entry.Value.Equal(replicant.MustParseValue(`{"score":0}`)) {
		t.Errorf("history value = %s, want prior value {\"score\":0}", entry.Value)
	}
	if entry.Revision != 0 {
		t.Errorf("history revision = %d, want prior revision 0", entry.Revision)
	}
	if entry.ChangedBy != "producer-1" {
		t.Errorf("history changedBy = %q, want \"producer-1\"", entry.ChangedBy)
	}
}

func TestUpdate_RevisionsAreStrictlySequential(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "ns", "counter", replicant.MustParseValue(`0`), nil)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	for i := 1; i <= 5; i++ {
		updated, err := s.Update(ctx, created.ID, replicant.MustParseValue(`1`), "")
		if err != nil {
			t.Fatalf("Update() #%d failed: %v", i, err)
		}
		if updated.Revision != uint64(i) {
			t.Errorf("revision after update #%d = %d, want %d", i, updated.Revision, i)
		}
	}

	history, err := s.ReadHistory(ctx, "ns", "counter")
	if err != nil {
		t.Fatalf("ReadHistory() failed: %v", err)
	}
	for i, entry := range history {
		if entry.Revision != uint64(i) {
			t.Errorf("history[%d].Revision = %d, want %d (prior states in order)", i, entry.Revision, i)
		}
	}
}

func TestUpdate_UnknownID(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Update(context.Background(), "no-such-id", replicant.Null, "")
	if !replicant.IsNotFound(err) {
		t.Errorf("Update() on unknown id = %v, want NotFoundError", err)
	}
}

func TestDelete_CascadesHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "ns", "doomed", replicant.MustParseValue(`1`), nil)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := s.Update(ctx, created.ID, replicant.MustParseValue(`2`), ""); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	if err := s.Delete(ctx, "ns", "doomed"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	rec, err := s.FindByKey(ctx, "ns", "doomed")
	if err != nil {
		t.Fatalf("FindByKey() failed: %v", err)
	}
	if rec != nil {
		t.Error("replicant still present after Delete()")
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM history").Scan(&count); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if count != 0 {
		t.Errorf("history rows after cascade delete = %d, want 0", count)
	}
}

func TestDelete_Unknown(t *testing.T) {
	s := openTestStore(t)

	err := s.Delete(context.Background(), "ns", "missing")
	if !replicant.IsNotFound(err) {
		t.Errorf("Delete() on unknown key = %v, want NotFoundError", err)
	}
}

// Retention: five history rows, keep two, the two most recent survive.
func TestPruneHistory_KeepsMostRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "ns", "pruned", replicant.MustParseValue(`0`), nil)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	// Five updates produce five history rows at revisions 0..4.
	for i := 1; i <= 5; i++ {
		if _, err := s.Update(ctx, created.ID, replicant.MustParseValue(`1`), ""); err != nil {
			t.Fatalf("Update() #%d failed: %v", i, err)
		}
	}

	deleted, err := s.PruneHistory(ctx, 2)
	if err != nil {
		t.Fatalf("PruneHistory() failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("PruneHistory() deleted %d rows, want 3", deleted)
	}

	history, err := s.ReadHistory(ctx, "ns", "pruned")
	if err != nil {
		t.Fatalf("ReadHistory() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d entries after prune, want 2", len(history))
	}
	// The surviving rows are the most recent prior states: revisions 3, 4.
	if history[0].Revision != 3 || history[1].Revision != 4 {
		t.Errorf("surviving revisions = %d, %d, want 3, 4", history[0].Revision, history[1].Revision)
	}
}

func TestPruneHistory_PerReplicant(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		created, err := s.Create(ctx, "ns", name, replicant.MustParseValue(`0`), nil)
		if err != nil {
			t.Fatalf("Create(%s) failed: %v", name, err)
		}
		for i := 0; i < 3; i++ {
			if _, err := s.Update(ctx, created.ID, replicant.MustParseValue(`1`), ""); err != nil {
				t.Fatalf("Update(%s) failed: %v", name, err)
			}
		}
	}

	deleted, err := s.PruneHistory(ctx, 1)
	if err != nil {
		t.Fatalf("PruneHistory() failed: %v", err)
	}
	// Each replicant had 3 rows, keeps 1: 2 deleted each.
	if deleted != 4 {
		t.Errorf("PruneHistory() deleted %d rows, want 4", deleted)
	}

	for _, name := range []string{"a", "b"} {
		history, err := s.ReadHistory(ctx, "ns", name)
		if err != nil {
			t.Fatalf("ReadHistory(%s) failed: %v", name, err)
		}
		if len(history) != 1 {
			t.Errorf("history for %s has %d entries, want 1", name, len(history))
		}
	}
}

func TestPruneHistory_NegativeKeepCount(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.PruneHistory(context.Background(), -1); err == nil {
		t.Error("PruneHistory(-1) should fail")
	}
}

func TestListNamespacesAndNames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := []struct{ namespace, name string }{
		{"bundle-b", "x"},
		{"bundle-a", "two"},
		{"bundle-a", "one"},
	}
	for _, row := range seed {
		if _, err := s.Create(ctx, row.namespace, row.name, replicant.Null, nil); err != nil {
			t.Fatalf("Create(%s:%s) failed: %v", row.namespace, row.name, err)
		}
	}

	namespaces, err := s.ListNamespaces(ctx)
	if err != nil {
		t.Fatalf("ListNamespaces() failed: %v", err)
	}
	if len(namespaces) != 2 || namespaces[0] != "bundle-a" || namespaces[1] != "bundle-b" {
		t.Errorf("ListNamespaces() = %v, want [bundle-a bundle-b]", namespaces)
	}

	names, err := s.ListNames(ctx, "bundle-a")
	if err != nil {
		t.Fatalf("ListNames() failed: %v", err)
	}
	if len(names) != 2 || names[0] != "one" || names[1] != "two" {
		t.Errorf("ListNames(bundle-a) = %v, want [one two]", names)
	}

	empty, err := s.ListNames(ctx, "no-such-bundle")
	if err != nil {
		t.Fatalf("ListNames() failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ListNames(no-such-bundle) = %v, want empty", empty)
	}
}

func TestReadHistory_UnknownKey(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ReadHistory(context.Background(), "ns", "missing")
	if !replicant.IsNotFound(err) {
		t.Errorf("ReadHistory() on unknown key = %v, want NotFoundError", err)
	}
}
