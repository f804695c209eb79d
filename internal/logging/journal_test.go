package logging

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/experience"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/reward"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.DB()
}

func sampleEntry(id, client string, at time.Time) JournalEntry {
	st := game.DefaultState(game.SceneOverworld)
	st.BadgesEarned = 2
	return JournalEntry{
		ID:                   id,
		CreatedAt:            at,
		ClientID:             client,
		FrameID:              "frame-" + id,
		EpisodeID:            "ep-1",
		Action:               game.ActionUp,
		Reward:               0.4,
		Objectives:           reward.Objectives{Navigation: 1, Battle: 0.1, Story: 0.3},
		Scene:                game.SceneOverworld,
		NextScene:            game.SceneBattle,
		State:                st,
		PredictionConfidence: 0.25,
		Phases:               PhaseDurations{AnalysisUs: 120, TotalUs: 400},
		Metadata:             map[string]any{"macro": "walk_up"},
	}
}

// #endregion helpers

// #region log-commit-tests
func TestLogCommit_Success(t *testing.T) {
	db := setupDB(t)

	err := LogCommit(db, store.CommitEntry{
		VersionID:  "v1",
		Trigger:    "save",
		DetailJSON: `{"delta_norm":0.1}`,
		Decision:   "commit",
		Reason:     "passed gate",
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decision, detail string
	if err := db.QueryRow("SELECT decision, detail_json FROM commit_log").Scan(&decision, &detail); err != nil {
		t.Fatalf("query: %v", err)
	}
	if decision != "commit" || detail != `{"delta_norm":0.1}` {
		t.Errorf("unexpected row: %s %s", decision, detail)
	}
}

func TestLogCommit_EmptyOptionalFieldsAreNull(t *testing.T) {
	db := setupDB(t)

	if err := LogCommit(db, store.CommitEntry{VersionID: "v1", Trigger: "save", Decision: "reject"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var detail, reason sql.NullString
	var created string
	db.QueryRow("SELECT detail_json, reason, created_at FROM commit_log").Scan(&detail, &reason, &created)
	if detail.Valid || reason.Valid {
		t.Error("expected NULL detail and reason")
	}
	if created == "" {
		t.Error("expected created_at to be defaulted")
	}
}

func TestLogCommit_ClosedDB(t *testing.T) {
	db := setupDB(t)
	db.Close()
	if err := LogCommit(db, store.CommitEntry{VersionID: "v1", Trigger: "save", Decision: "commit"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-commit-tests

// #region journal-tests
func TestWriteAndReadEntries(t *testing.T) {
	db := setupDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"e2", "e1", "e3"} {
		client := "c1"
		if id == "e3" {
			client = "c2"
		}
		// e1 is older than e2 even though it is written second.
		at := base.Add(time.Duration(2-i) * time.Second)
		if err := WriteEntry(db, sampleEntry(id, client, at)); err != nil {
			t.Fatalf("WriteEntry %s: %v", id, err)
		}
	}

	all, err := ReadEntries(db, Filter{})
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}

	c1, err := ReadEntries(db, Filter{ClientID: "c1"})
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(c1) != 2 || c1[0].ID != "e1" || c1[1].ID != "e2" {
		t.Fatalf("expected c1 entries oldest first, got %+v", c1)
	}

	got := c1[0]
	if got.Action != game.ActionUp || got.Scene != game.SceneOverworld || got.NextScene != game.SceneBattle {
		t.Errorf("round trip: %+v", got)
	}
	if got.State.BadgesEarned != 2 || got.Objectives.Story != 0.3 || got.Phases.AnalysisUs != 120 {
		t.Errorf("round trip details: %+v", got)
	}
	if got.Metadata["macro"] != "walk_up" {
		t.Errorf("metadata: %v", got.Metadata)
	}

	limited, _ := ReadEntries(db, Filter{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("expected limit 1, got %d", len(limited))
	}

	n, err := CountEntries(db)
	if err != nil || n != 3 {
		t.Fatalf("CountEntries: %d %v", n, err)
	}
}

func TestWriteEntry_DuplicateID(t *testing.T) {
	db := setupDB(t)
	e := sampleEntry("dup", "c1", time.Now())
	if err := WriteEntry(db, e); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteEntry(db, e); err == nil {
		t.Fatal("expected primary key violation")
	}
}

func TestFromExperience(t *testing.T) {
	next := game.DefaultState(game.SceneBattle)
	e := experience.Experience{
		ID:         "x1",
		EpisodeID:  "ep",
		ClientID:   "c1",
		Action:     game.ActionA,
		Prediction: game.Prediction{Confidence: 0.6},
		Reward:     1.2,
		Frame:      &game.Frame{ID: "f1"},
		State:      game.DefaultState(game.SceneOverworld),
		NextState:  &next,
	}

	entry := FromExperience(e, PhaseDurations{TotalUs: 10}, nil)

	if entry.FrameID != "f1" || entry.NextScene != game.SceneBattle || entry.Scene != game.SceneOverworld {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.PredictionConfidence != 0.6 || entry.Phases.TotalUs != 10 {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

// #endregion journal-tests
