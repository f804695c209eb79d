package update

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
)

// #region nudge
// Step moves logits[idx] by StepSize times the clamped advantage and keeps
// the result inside ±LogitClamp. It reports false for an index outside the
// logit vector or a non-finite advantage.
func Step(logits *[store.NumLogits]float64, idx int, advantage float64, cfg Config) bool {
	if idx < 0 || idx >= store.NumLogits || math.IsNaN(advantage) || math.IsInf(advantage, 0) {
		return false
	}
	adv := clamp(advantage, -cfg.AdvantageClamp, cfg.AdvantageClamp)
	logits[idx] = clamp(logits[idx]+cfg.StepSize*adv, -cfg.LogitClamp, cfg.LogitClamp)
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// #endregion nudge

// #region update-function
// Apply is a pure function that folds nudges into old and returns the
// candidate next version. No nudges, or nudges that leave every logit
// where it was, produce a no_op.
func Apply(old store.PolicyRecord, nudges []Nudge, cfg Config) Result {
	start := time.Now()
	logits := old.Logits

	hit := map[string]bool{}
	skipped := 0
	for _, n := range nudges {
		if !Step(&logits, n.Action.Index(), n.Advantage, cfg) {
			skipped++
			continue
		}
		hit[string(n.Action)] = true
	}

	delta := make([]float64, store.NumLogits)
	floats.SubTo(delta, logits[:], old.Logits[:])
	deltaNorm := floats.Norm(delta, 2)

	actions := make([]string, 0, len(hit))
	for a := range hit {
		actions = append(actions, a)
	}
	sort.Strings(actions)

	newRec := store.PolicyRecord{
		VersionID: uuid.New().String(),
		ParentID:  old.VersionID,
		Logits:    logits,
		Updates:   old.Updates + len(nudges) - skipped,
		CreatedAt: time.Now().UTC(),
	}

	decision := Decision{Action: "no_op", Reason: "no logit change"}
	if deltaNorm > 0 {
		decision = Decision{
			Action: "commit",
			Reason: fmt.Sprintf("actions hit: %v, delta norm: %.6f", actions, deltaNorm),
		}
	}

	return Result{
		NewPolicy: newRec,
		Decision:  decision,
		Metrics: Metrics{
			DeltaNorm:    deltaNorm,
			ActionsHit:   actions,
			Nudges:       len(nudges) - skipped,
			Skipped:      skipped,
			UpdateTimeUs: time.Since(start).Microseconds(),
		},
	}
}

// #endregion update-function

// #region softmax
// Softmax is a numerically stable softmax. Degenerate input yields a
// uniform distribution.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	out := make([]float64, len(logits))
	hi := floats.Max(logits)
	for i, l := range logits {
		out[i] = math.Exp(l - hi)
	}
	sum := floats.Sum(out)
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	floats.Scale(1/sum, out)
	return out
}

// Entropy is the Shannon entropy of probs in nats.
func Entropy(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// #endregion softmax
