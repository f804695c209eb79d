package eval

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/update"
)

// #region eval-harness
// Harness runs lightweight post-commit validation on a policy version.
type Harness struct {
	config Config
}

// NewHarness creates a harness with the given configuration.
func NewHarness(config Config) *Harness {
	return &Harness{config: config}
}

// Config returns the active thresholds.
func (h *Harness) Config() Config {
	return h.config
}

// Run checks that rec still explores: entropy above the floor, no single
// action above the probability ceiling, logits bounded.
func (h *Harness) Run(rec store.PolicyRecord) Result {
	probs := update.Softmax(rec.Logits[:])
	var metrics []Metric
	var failReasons []string

	check := func(name string, value float64, pass bool, why string) {
		metrics = append(metrics, Metric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, why)
		}
	}

	entropy := update.Entropy(probs)
	check("entropy", entropy, entropy >= h.config.MinEntropy,
		fmt.Sprintf("entropy %.4f below %.4f", entropy, h.config.MinEntropy))

	peak := floats.Max(probs)
	check("max_probability", peak, peak <= h.config.MaxProbability,
		fmt.Sprintf("max probability %.4f exceeds %.4f", peak, h.config.MaxProbability))

	norm := floats.Norm(rec.Logits[:], 2)
	check("logit_norm", norm, norm <= h.config.MaxLogitNorm,
		fmt.Sprintf("logit norm %.4f exceeds %.4f", norm, h.config.MaxLogitNorm))

	reason := "all checks passed"
	switch {
	case len(failReasons) == 1:
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	case len(failReasons) > 1:
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return Result{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness
