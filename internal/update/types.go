package update

import (
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
)

// #region nudge
// Nudge is one reward signal to apply to the logit of Action.
type Nudge struct {
	Action    game.Action `json:"action"`
	Advantage float64     `json:"advantage"`
}

// #endregion nudge

// #region decision
// Decision records what the update function decided.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// #endregion decision

// #region metrics
// Metrics captures telemetry from an update cycle.
type Metrics struct {
	DeltaNorm    float64  `json:"delta_norm"`
	ActionsHit   []string `json:"actions_hit"`
	Nudges       int      `json:"nudges"`
	Skipped      int      `json:"skipped"`
	UpdateTimeUs int64    `json:"update_time_us"`
}

// #endregion metrics

// #region update-config
// Config holds the step size and clamps of the logit nudge.
type Config struct {
	StepSize       float64 `yaml:"step_size" json:"step_size"`
	AdvantageClamp float64 `yaml:"advantage_clamp" json:"advantage_clamp"`
	LogitClamp     float64 `yaml:"logit_clamp" json:"logit_clamp"`
}

// DefaultConfig returns the online nudge parameters.
func DefaultConfig() Config {
	return Config{
		StepSize:       0.01,
		AdvantageClamp: 1.0,
		LogitClamp:     5.0,
	}
}

// #endregion update-config

// #region update-result
// Result bundles everything returned by Apply.
type Result struct {
	NewPolicy store.PolicyRecord
	Decision  Decision
	Metrics   Metrics
}

// #endregion update-result
