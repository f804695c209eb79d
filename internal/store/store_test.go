package store

import (
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateInitialAndCurrent(t *testing.T) {
	s := tempDB(t)

	var logits [NumLogits]float64
	logits[3] = 0.25
	rec, err := s.CreateInitial(logits)
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	if rec.VersionID == "" {
		t.Fatal("expected non-empty version ID")
	}
	if rec.ParentID != "" {
		t.Fatalf("expected empty parent, got %s", rec.ParentID)
	}

	cur, err := s.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.VersionID != rec.VersionID {
		t.Fatalf("expected %s, got %s", rec.VersionID, cur.VersionID)
	}
	if cur.Logits != logits {
		t.Fatalf("logits round trip: got %v", cur.Logits)
	}
}

func TestCurrentOrInitial(t *testing.T) {
	s := tempDB(t)

	first, err := s.CurrentOrInitial()
	if err != nil {
		t.Fatalf("CurrentOrInitial: %v", err)
	}
	second, err := s.CurrentOrInitial()
	if err != nil {
		t.Fatalf("CurrentOrInitial: %v", err)
	}
	if first.VersionID != second.VersionID {
		t.Fatalf("expected the root to be reused, got %s then %s", first.VersionID, second.VersionID)
	}
}

func TestCommitAndRollback(t *testing.T) {
	s := tempDB(t)

	v1, err := s.CreateInitial([NumLogits]float64{})
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}

	v2 := PolicyRecord{
		VersionID:   "v2-test",
		ParentID:    v1.VersionID,
		Logits:      v1.Logits,
		Updates:     50,
		CreatedAt:   v1.CreatedAt.Add(time.Second),
		MetricsJSON: `{"delta_norm":0.1}`,
	}
	v2.Logits[0] = 1.5

	if err := s.Commit(v2); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	cur, err := s.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.VersionID != "v2-test" || cur.Logits[0] != 1.5 || cur.Updates != 50 {
		t.Fatalf("unexpected current: %+v", cur)
	}
	if cur.MetricsJSON != `{"delta_norm":0.1}` {
		t.Fatalf("metrics json: %q", cur.MetricsJSON)
	}

	if err := s.Rollback(v1.VersionID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	cur, _ = s.Current()
	if cur.VersionID != v1.VersionID {
		t.Fatalf("expected rollback to %s, got %s", v1.VersionID, cur.VersionID)
	}
}

func TestRollbackNonExistent(t *testing.T) {
	s := tempDB(t)
	if _, err := s.CreateInitial([NumLogits]float64{}); err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	if err := s.Rollback("missing"); err == nil {
		t.Fatal("expected error rolling back to a missing version")
	}
}

func TestCommitWithoutActivePolicy(t *testing.T) {
	s := tempDB(t)
	err := s.Commit(PolicyRecord{VersionID: "orphan", CreatedAt: time.Now()})
	if err == nil {
		t.Fatal("expected error committing before an initial version exists")
	}
	if _, err := s.Version("orphan"); err == nil {
		t.Fatal("failed commit must not leave a version behind")
	}
}

func TestListVersions(t *testing.T) {
	s := tempDB(t)
	v1, _ := s.CreateInitial([NumLogits]float64{})
	for i, id := range []string{"v2", "v3"} {
		rec := PolicyRecord{
			VersionID: id,
			ParentID:  v1.VersionID,
			CreatedAt: v1.CreatedAt.Add(time.Duration(i+1) * time.Second),
		}
		if err := s.Commit(rec); err != nil {
			t.Fatalf("Commit %s: %v", id, err)
		}
	}

	recs, err := s.ListVersions(2)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].VersionID != "v3" || recs[1].VersionID != "v2" {
		t.Fatalf("expected newest first, got %s, %s", recs[0].VersionID, recs[1].VersionID)
	}
}

func TestListWithCommits(t *testing.T) {
	s := tempDB(t)
	v1, _ := s.CreateInitial([NumLogits]float64{})
	_, err := s.DB().Exec(
		`INSERT INTO commit_log (version_id, trigger_type, decision, reason, created_at)
		 VALUES (?, 'save', 'commit', 'first', ?), (?, 'save', 'rollback', 'second', ?)`,
		v1.VersionID, time.Now().Format(time.RFC3339Nano),
		v1.VersionID, time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		t.Fatalf("seed commit_log: %v", err)
	}

	out, err := s.ListWithCommits(10)
	if err != nil {
		t.Fatalf("ListWithCommits: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	if out[0].Decision != "rollback" || out[0].Reason != "second" {
		t.Fatalf("expected latest commit row, got %+v", out[0])
	}
}

func TestLogitRoundTrip(t *testing.T) {
	var v [NumLogits]float64
	for i := range v {
		v[i] = float64(i)*0.5 - 3
	}
	if got := decodeLogits(encodeLogits(v)); got != v {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestVersionNotFound(t *testing.T) {
	s := tempDB(t)
	if _, err := s.Version("nope"); err == nil {
		t.Fatal("expected error for unknown version")
	}
}

func TestCurrentNoActivePolicy(t *testing.T) {
	s := tempDB(t)
	if _, err := s.Current(); err == nil {
		t.Fatal("expected error with no active policy")
	}
}

func TestNewStoreInvalidPath(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestClosedDB(t *testing.T) {
	s := tempDB(t)
	s.Close()
	if _, err := s.CreateInitial([NumLogits]float64{}); err == nil {
		t.Error("CreateInitial on closed db should fail")
	}
	if err := s.Commit(PolicyRecord{VersionID: "x"}); err == nil {
		t.Error("Commit on closed db should fail")
	}
	if err := s.Rollback("x"); err == nil {
		t.Error("Rollback on closed db should fail")
	}
	if _, err := s.ListVersions(1); err == nil {
		t.Error("ListVersions on closed db should fail")
	}
}
