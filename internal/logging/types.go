package logging

import (
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/reward"
)

// #region phase-durations
// PhaseDurations is the per-phase wall time of the frame that produced a
// journal entry, in microseconds.
type PhaseDurations struct {
	AnalysisUs   int64 `json:"analysis_us"`
	InferenceUs  int64 `json:"inference_us"`
	DecisionUs   int64 `json:"decision_us"`
	LearningUs   int64 `json:"learning_us"`
	JournalingUs int64 `json:"journaling_us"`
	TotalUs      int64 `json:"total_us"`
}

// #endregion phase-durations

// #region journal-entry
// JournalEntry is a single row in the experience_journal table.
type JournalEntry struct {
	ID                   string
	CreatedAt            time.Time
	ClientID             string
	FrameID              string
	EpisodeID            string
	Action               game.Action
	Reward               float64
	Objectives           reward.Objectives
	Scene                game.Scene
	NextScene            game.Scene
	State                game.State
	PredictionConfidence float64
	Phases               PhaseDurations
	Metadata             map[string]any
}

// #endregion journal-entry

// #region save-record
// SaveRecord captures the complete inputs and outputs of one policy save.
// Serialized as JSON into commit_log.detail_json for offline inspection.
type SaveRecord struct {
	FromVersion string   `json:"from_version"`
	ToVersion   string   `json:"to_version"`
	Nudges      int      `json:"nudges"`
	DeltaNorm   float64  `json:"delta_norm"`
	ActionsHit  []string `json:"actions_hit"`

	Thresholds SaveThresholds `json:"thresholds"`

	GateAction    string  `json:"gate_action"`
	GateSoftScore float64 `json:"gate_soft_score"`
	GateVetoed    bool    `json:"gate_vetoed"`
	GateReason    string  `json:"gate_reason"`
	Entropy       float64 `json:"entropy"`

	EvalPassed bool   `json:"eval_passed"`
	EvalReason string `json:"eval_reason,omitempty"`
}

// SaveThresholds captures the gate/eval config active at decision time.
type SaveThresholds struct {
	MaxDeltaNorm   float64 `json:"max_delta_norm"`
	MaxLogit       float64 `json:"max_logit"`
	MinEntropy     float64 `json:"min_entropy"`
	MaxProbability float64 `json:"max_probability"`
	MaxLogitNorm   float64 `json:"max_logit_norm"`
}

// #endregion save-record
