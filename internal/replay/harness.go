package replay

import (
	"math"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/eval"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/gate"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/reward"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/update"
)

// #region types
// Step is one recorded frame for replay.
type Step struct {
	ID     string
	State  game.State
	Action game.Action
}

// Config bundles the update, gate and eval configs for a replay run.
type Config struct {
	SaveEvery int
	Update    update.Config
	Gate      gate.Config
	Eval      eval.Config
}

// DefaultConfig saves after every rewarded step so each result carries a
// gate and eval outcome.
func DefaultConfig() Config {
	return Config{
		SaveEvery: 1,
		Update:    update.DefaultConfig(),
		Gate:      gate.DefaultConfig(),
		Eval:      eval.DefaultConfig(),
	}
}

// Result is the outcome of replaying one step.
type Result struct {
	StepID string
	// Action is "warmup" until the reward window is full, "pending" while
	// nudges accumulate, then "commit" | "gate_reject" | "eval_rollback" | "no_op".
	Action string
	Reason string

	Rewarded     bool
	RewardAction game.Action
	Reward       float64
	Objectives   reward.Objectives

	UpdateMetrics update.Metrics
	GateDecision  *gate.Decision
	EvalResult    *eval.Result

	FinalVersionID string
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSteps    int
	Rewarded      int
	TotalReward   float64
	Commits       int
	GateRejects   int
	EvalRollbacks int
	NoOps         int
	FinalPolicy   store.PolicyRecord
}

// #endregion types

// #region replay
// Replay feeds steps through the reward processor and applies each reward
// as a logit nudge: update, gate, eval, then commit or reject. It runs
// entirely in memory. A reward is attributed to the step before the one
// that completed its window, so results lag the input by one step.
func Replay(start store.PolicyRecord, steps []Step, cfg Config) ([]Result, store.PolicyRecord) {
	current := start
	results := make([]Result, 0, len(steps))
	proc := reward.NewProcessor()
	g := gate.NewGate(cfg.Gate)
	h := eval.NewHarness(cfg.Eval)
	var pending []update.Nudge

	for i, s := range steps {
		res, ok := proc.Process("replay", reward.Entry{
			Observation: reward.Observation{State: s.State},
			Action:      s.Action,
		})
		if !ok {
			results = append(results, Result{StepID: s.ID, Action: "warmup", FinalVersionID: current.VersionID})
			continue
		}

		r := Result{
			StepID:       steps[i-1].ID,
			Rewarded:     true,
			RewardAction: res.Action,
			Reward:       res.Scalar,
			Objectives:   res.Objectives,
		}
		pending = append(pending, update.Nudge{Action: res.Action, Advantage: res.Scalar})
		if len(pending) < max(cfg.SaveEvery, 1) {
			r.Action, r.FinalVersionID = "pending", current.VersionID
			results = append(results, r)
			continue
		}

		up := update.Apply(current, pending, cfg.Update)
		pending = nil
		r.UpdateMetrics = up.Metrics

		if up.Decision.Action == "no_op" {
			r.Action, r.Reason, r.FinalVersionID = "no_op", up.Decision.Reason, current.VersionID
			results = append(results, r)
			continue
		}

		decision := g.Evaluate(current, up.NewPolicy, up.Metrics)
		r.GateDecision = &decision
		if decision.Action == "reject" {
			r.Action, r.Reason, r.FinalVersionID = "gate_reject", decision.Reason, current.VersionID
			results = append(results, r)
			continue
		}

		ev := h.Run(up.NewPolicy)
		r.EvalResult = &ev
		if !ev.Passed {
			r.Action, r.Reason, r.FinalVersionID = "eval_rollback", ev.Reason, current.VersionID
			results = append(results, r)
			continue
		}

		current = up.NewPolicy
		r.Action, r.Reason, r.FinalVersionID = "commit", decision.Reason, current.VersionID
		results = append(results, r)
	}

	return results, current
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result, final store.PolicyRecord) Summary {
	s := Summary{TotalSteps: len(results), FinalPolicy: final}
	for _, r := range results {
		if r.Rewarded {
			s.Rewarded++
			s.TotalReward += r.Reward
		}
		switch r.Action {
		case "commit":
			s.Commits++
		case "gate_reject":
			s.GateRejects++
		case "eval_rollback":
			s.EvalRollbacks++
		case "no_op":
			s.NoOps++
		}
	}
	return s
}

// Mismatch is one replayed reward that differs from the recorded one.
type Mismatch struct {
	StepID string
	Want   float64
	Got    float64
}

// CompareRewards checks replayed rewards against recorded ones. Steps
// without a recorded value are ignored.
func CompareRewards(results []Result, want map[string]float64, tol float64) []Mismatch {
	var out []Mismatch
	for _, r := range results {
		if !r.Rewarded {
			continue
		}
		w, ok := want[r.StepID]
		if !ok {
			continue
		}
		if math.Abs(w-r.Reward) > tol {
			out = append(out, Mismatch{StepID: r.StepID, Want: w, Got: r.Reward})
		}
	}
	return out
}

// #endregion replay
