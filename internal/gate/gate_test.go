package gate

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/update"
)

func makePolicy(vals map[int]float64) store.PolicyRecord {
	rec := store.PolicyRecord{VersionID: "test-v1"}
	for i, v := range vals {
		rec.Logits[i] = v
	}
	return rec
}

func TestGateCommitOnSmallDelta(t *testing.T) {
	g := NewGate(DefaultConfig())
	old := makePolicy(nil)
	proposed := makePolicy(map[int]float64{0: 0.2})
	metrics := update.Metrics{DeltaNorm: 0.2, ActionsHit: []string{"A"}}

	decision := g.Evaluate(old, proposed, metrics)

	if decision.Action != "commit" {
		t.Fatalf("expected commit, got %s: %s", decision.Action, decision.Reason)
	}
	if decision.Vetoed {
		t.Fatal("should not be vetoed")
	}
	if decision.SoftScore <= 0 || decision.SoftScore > 1 {
		t.Fatalf("soft score out of range: %v", decision.SoftScore)
	}
	if decision.Entropy <= 0 {
		t.Fatalf("expected positive entropy, got %v", decision.Entropy)
	}
}

func TestGateRejectOnNonFinite(t *testing.T) {
	g := NewGate(DefaultConfig())
	proposed := makePolicy(map[int]float64{4: math.NaN()})

	decision := g.Evaluate(makePolicy(nil), proposed, update.Metrics{})

	if decision.Action != "reject" {
		t.Fatalf("expected reject, got %s", decision.Action)
	}
	if decision.VetoSignals[0].Type != VetoNonFinite {
		t.Fatalf("expected VetoNonFinite, got %s", decision.VetoSignals[0].Type)
	}
}

func TestGateRejectOnDeltaNorm(t *testing.T) {
	g := NewGate(DefaultConfig())
	old := makePolicy(nil)
	proposed := makePolicy(map[int]float64{0: 0.8, 1: 0.8})

	decision := g.Evaluate(old, proposed, update.Metrics{DeltaNorm: 1.13})

	if !decision.Vetoed {
		t.Fatal("should be vetoed")
	}
	if decision.VetoSignals[0].Type != VetoDeltaNorm {
		t.Fatalf("expected VetoDeltaNorm, got %s", decision.VetoSignals[0].Type)
	}
}

func TestGateRejectOnLogitCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDeltaNorm = 100
	g := NewGate(cfg)
	old := makePolicy(map[int]float64{2: 4.9})
	proposed := makePolicy(map[int]float64{2: -5.5})

	decision := g.Evaluate(old, proposed, update.Metrics{})

	if len(decision.VetoSignals) != 1 || decision.VetoSignals[0].Type != VetoLogitCap {
		t.Fatalf("expected a single VetoLogitCap, got %+v", decision.VetoSignals)
	}
}

func TestGateCollectsAllVetoes(t *testing.T) {
	g := NewGate(DefaultConfig())
	proposed := makePolicy(map[int]float64{0: 9})

	decision := g.Evaluate(makePolicy(nil), proposed, update.Metrics{})

	if len(decision.VetoSignals) != 2 {
		t.Fatalf("expected delta and cap vetoes, got %+v", decision.VetoSignals)
	}
}

func TestSoftScoreComponents(t *testing.T) {
	// Uniform policy, no delta, nothing touched: every component maxed.
	uniform := update.Entropy(update.Softmax(make([]float64, store.NumLogits)))
	got := computeSoftScore(uniform, update.Metrics{}, 1)
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected 1.0, got %v", got)
	}

	got = computeSoftScore(0, update.Metrics{DeltaNorm: 1, ActionsHit: []string{"A", "B", "UP", "DOWN"}}, 1)
	if got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
