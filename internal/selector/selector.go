package selector

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/macro"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/situation"
)

// #region types
// Method records which strategy produced a selection.
type Method string

const (
	MethodPolicy   Method = "policy"
	MethodRule     Method = "rule"
	MethodHybrid   Method = "hybrid"
	MethodFallback Method = "fallback"
)

// Strategy names a selector implementation in configuration.
type Strategy string

const (
	StrategyPolicy Strategy = "policy"
	StrategyRule   Strategy = "rule"
	StrategyHybrid Strategy = "hybrid"
)

// Selection is the action chosen for one frame.
type Selection struct {
	Action     game.Action
	Macro      macro.Kind
	Confidence float64
	Reasoning  string
	Method     Method
}

// Selector chooses an action from the rule decision and an optional policy prediction.
type Selector interface {
	Name() string
	Select(sit game.Situation, decision situation.Decision, pred *game.Prediction) Selection
}

// Config holds action selection options.
type Config struct {
	Strategy     Strategy `yaml:"strategy"`
	PolicyWeight float64  `yaml:"policy_weight"`
}

// DefaultConfig selects between policy and rules evenly.
func DefaultConfig() Config {
	return Config{Strategy: StrategyHybrid, PolicyWeight: 0.5}
}

// New builds the selector named by config.
func New(config Config, rng *rand.Rand) (Selector, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	switch config.Strategy {
	case StrategyPolicy:
		return &Policy{rng: rng}, nil
	case StrategyRule:
		return Rule{}, nil
	case StrategyHybrid:
		return NewHybrid(config.PolicyWeight, rng), nil
	}
	return nil, fmt.Errorf("unknown selector strategy %q", config.Strategy)
}

// #endregion types

// #region policy
// Policy samples an action from the prediction's probabilities.
type Policy struct {
	rng *rand.Rand
}

func NewPolicy(rng *rand.Rand) *Policy { return &Policy{rng: rng} }

func (p *Policy) Name() string { return "PolicyBasedActionSelector" }

func (p *Policy) Select(sit game.Situation, _ situation.Decision, pred *game.Prediction) Selection {
	if pred == nil || len(pred.ActionProbabilities) == 0 {
		a, _ := game.ActionFromIndex(p.rng.IntN(game.NumActions))
		return Selection{
			Action:     a,
			Macro:      macro.MapActionToMacro(a, sit),
			Confidence: 0.1,
			Reasoning:  "No policy prediction available, using random action",
			Method:     MethodFallback,
		}
	}
	idx := Sample(pred.ActionProbabilities, p.rng)
	a, _ := game.ActionFromIndex(idx)
	return Selection{
		Action:     a,
		Macro:      macro.MapActionToMacro(a, sit),
		Confidence: pred.ActionProbabilities[idx],
		Reasoning:  "Selected using policy prediction",
		Method:     MethodPolicy,
	}
}

// Sample draws an index from the first NumActions weights. If no weight is
// finite and positive, the draw is uniform; individual bad weights count as 0.
func Sample(probs []float64, rng *rand.Rand) int {
	n := min(len(probs), game.NumActions)
	if n == 0 {
		return rng.IntN(game.NumActions)
	}
	w := make([]float64, n)
	for i, p := range probs[:n] {
		if !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0 {
			w[i] = p
		}
	}
	if floats.Sum(w) <= 0 {
		for i := range w {
			w[i] = 1
		}
	}
	cum := floats.CumSum(make([]float64, n), w)
	x := rng.Float64() * cum[n-1]
	i := sort.SearchFloat64s(cum, x)
	// skip zero-weight slots that share the boundary
	for i < n-1 && (cum[i] <= x || w[i] == 0) {
		i++
	}
	return i
}

// #endregion policy

// #region rule
// Rule passes through the rule engine's decision.
type Rule struct{}

func (Rule) Name() string { return "RuleBasedActionSelector" }

func (Rule) Select(sit game.Situation, d situation.Decision, _ *game.Prediction) Selection {
	return Selection{
		Action:     d.Action,
		Macro:      macro.MapActionToMacro(d.Action, sit),
		Confidence: d.Confidence,
		Reasoning:  "Rule-based: " + d.Reasoning,
		Method:     MethodRule,
	}
}

// #endregion rule

// #region hybrid
// Hybrid defers to the policy with probability PolicyWeight, otherwise to the rules.
type Hybrid struct {
	PolicyWeight float64
	policy       *Policy
	rng          *rand.Rand
}

// NewHybrid clamps weight to [0,1].
func NewHybrid(weight float64, rng *rand.Rand) *Hybrid {
	return &Hybrid{PolicyWeight: min(max(weight, 0), 1), policy: &Policy{rng: rng}, rng: rng}
}

func (h *Hybrid) Name() string { return "HybridActionSelector" }

func (h *Hybrid) Select(sit game.Situation, d situation.Decision, pred *game.Prediction) Selection {
	var s Selection
	var tag string
	if h.rng.Float64() < h.PolicyWeight {
		s, tag = h.policy.Select(sit, d, pred), "policy"
	} else {
		s, tag = Rule{}.Select(sit, d, pred), "rule"
	}
	s.Reasoning = fmt.Sprintf("Hybrid (%s): %s", tag, s.Reasoning)
	s.Method = MethodHybrid
	return s
}

// #endregion hybrid
