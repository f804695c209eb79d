package gate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/update"
)

// #region gate
// Gate decides whether a proposed policy version may be committed.
type Gate struct {
	config Config
}

// NewGate creates a gate with the given configuration.
func NewGate(config Config) *Gate {
	return &Gate{config: config}
}

// Config returns the active thresholds.
func (g *Gate) Config() Config {
	return g.config
}

// Evaluate checks hard vetoes first, then scores soft signals.
func (g *Gate) Evaluate(old, proposed store.PolicyRecord, metrics update.Metrics) Decision {
	var vetoes []VetoSignal

	for i, l := range proposed.Logits {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoNonFinite,
				Reason: fmt.Sprintf("logit %d is not finite", i),
			})
			break
		}
	}

	delta := make([]float64, store.NumLogits)
	floats.SubTo(delta, proposed.Logits[:], old.Logits[:])
	if deltaNorm := floats.Norm(delta, 2); deltaNorm > g.config.MaxDeltaNorm {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoDeltaNorm,
			Reason: fmt.Sprintf("delta norm %.4f exceeds cap %.4f", deltaNorm, g.config.MaxDeltaNorm),
		})
	}

	if peak := floats.Norm(proposed.Logits[:], math.Inf(1)); peak > g.config.MaxLogit {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoLogitCap,
			Reason: fmt.Sprintf("logit magnitude %.4f exceeds cap %.4f", peak, g.config.MaxLogit),
		})
	}

	if len(vetoes) > 0 {
		return Decision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
		}
	}

	entropy := update.Entropy(update.Softmax(proposed.Logits[:]))
	softScore := computeSoftScore(entropy, metrics, g.config.MaxDeltaNorm)

	return Decision{
		Action:    "commit",
		Reason:    fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		SoftScore: softScore,
		Entropy:   entropy,
	}
}

// #endregion gate

// #region helpers
// computeSoftScore produces a 0-1 composite from normalised entropy, delta
// stability and how many actions the save touched.
func computeSoftScore(entropy float64, metrics update.Metrics, maxDelta float64) float64 {
	var score float64

	// Exploration kept: entropy relative to uniform (weight 0.4)
	score += 0.4 * entropy / math.Log(store.NumLogits)

	// Small deltas are more stable (weight 0.3)
	if maxDelta > 0 && metrics.DeltaNorm < maxDelta {
		score += 0.3 * (1 - metrics.DeltaNorm/maxDelta)
	}

	// Fewer actions touched = more focused (weight 0.3)
	switch n := len(metrics.ActionsHit); {
	case n <= 1:
		score += 0.3
	case n == 2:
		score += 0.2
	case n == 3:
		score += 0.1
	}

	return score
}

// #endregion helpers
