package replay

import (
	"testing"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
)

func steps(scenes ...game.Scene) []Step {
	out := make([]Step, len(scenes))
	for i, sc := range scenes {
		out[i] = Step{ID: string(rune('a' + i)), State: game.DefaultState(sc), Action: game.ActionA}
	}
	return out
}

func TestReplayWarmup(t *testing.T) {
	results, final := Replay(store.PolicyRecord{VersionID: "root"}, steps(game.SceneIntro, game.SceneIntro), DefaultConfig())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Action != "warmup" || r.Rewarded {
			t.Fatalf("expected warmup, got %+v", r)
		}
	}
	if final.VersionID != "root" {
		t.Fatalf("policy should be unchanged, got %s", final.VersionID)
	}
}

func TestReplayPendingUntilSave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SaveEvery = 2
	results, final := Replay(store.PolicyRecord{VersionID: "root"},
		steps(game.SceneIntro, game.SceneIntro, game.SceneOverworld, game.SceneOverworld), cfg)

	if results[2].Action != "pending" {
		t.Fatalf("first reward should be pending, got %s", results[2].Action)
	}
	if results[3].Action != "commit" {
		t.Fatalf("second reward should commit, got %s (%s)", results[3].Action, results[3].Reason)
	}
	if final.ParentID != "root" || final.Updates != 2 {
		t.Fatalf("unexpected final policy: parent=%s updates=%d", final.ParentID, final.Updates)
	}
}

func TestReplayGateReject(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gate.MaxDeltaNorm = 1e-6
	results, final := Replay(store.PolicyRecord{VersionID: "root"},
		steps(game.SceneIntro, game.SceneIntro, game.SceneOverworld), cfg)

	r := results[2]
	if r.Action != "gate_reject" || r.GateDecision == nil || !r.GateDecision.Vetoed {
		t.Fatalf("expected gate_reject, got %+v", r)
	}
	if final.VersionID != "root" {
		t.Fatal("rejected update must not advance the policy")
	}
}

func TestReplayEvalRollback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Eval.MaxProbability = 1.0 / store.NumLogits
	results, final := Replay(store.PolicyRecord{VersionID: "root"},
		steps(game.SceneIntro, game.SceneIntro, game.SceneOverworld), cfg)

	if results[2].Action != "eval_rollback" || results[2].EvalResult == nil {
		t.Fatalf("expected eval_rollback, got %+v", results[2])
	}
	if final.VersionID != "root" {
		t.Fatal("rolled back update must not advance the policy")
	}
}

func TestSummarizeAndCompare(t *testing.T) {
	results, final := Replay(store.PolicyRecord{VersionID: "root"},
		steps(game.SceneIntro, game.SceneIntro, game.SceneOverworld, game.SceneOverworld), DefaultConfig())

	s := Summarize(results, final)
	if s.TotalSteps != 4 || s.Rewarded != 2 || s.Commits != 2 {
		t.Fatalf("unexpected summary: %+v", s)
	}

	want := map[string]float64{"b": 0.197, "c": 1}
	mm := CompareRewards(results, want, 1e-9)
	if len(mm) != 1 || mm[0].StepID != "c" {
		t.Fatalf("expected one mismatch on c, got %+v", mm)
	}
}
