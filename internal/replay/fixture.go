package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/eval"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/gate"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/logging"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/update"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string                   `json:"description"`
	StartLogits [store.NumLogits]float64 `json:"start_logits"`
	Config      FixtureConfig            `json:"config"`
	Steps       []FixtureStep            `json:"steps"`
	Expected    []FixtureExpectedResult  `json:"expected_results"`
}

// FixtureStep is one recorded frame: the state it was analysed into and the
// action that was sent. When State is absent a default state for Scene is used.
type FixtureStep struct {
	ID     string      `json:"id"`
	Scene  game.Scene  `json:"scene"`
	State  *game.State `json:"state,omitempty"`
	Action game.Action `json:"action"`
}

// FixtureExpectedResult captures the expected outcome per rewarded step.
type FixtureExpectedResult struct {
	StepID string   `json:"step_id"`
	Action string   `json:"action,omitempty"`
	Reward *float64 `json:"reward,omitempty"`
}

// FixtureConfig bundles all sub-configs for a replay run. Zero sections
// fall back to the defaults.
type FixtureConfig struct {
	SaveEvery int            `json:"save_every"`
	Update    *update.Config `json:"update,omitempty"`
	Gate      *gate.Config   `json:"gate,omitempty"`
	Eval      *eval.Config   `json:"eval,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// StartPolicy converts the fixture logits to a root policy version.
func (f *Fixture) StartPolicy() store.PolicyRecord {
	return store.PolicyRecord{VersionID: "fixture-start", Logits: f.StartLogits}
}

// ToStep converts a FixtureStep to a replay Step.
func (fs *FixtureStep) ToStep() Step {
	st := game.DefaultState(fs.Scene)
	if fs.State != nil {
		st = *fs.State
		if st.Scene == "" {
			st.Scene = fs.Scene
		}
	}
	return Step{ID: fs.ID, State: st, Action: fs.Action}
}

// ToSteps converts every fixture step.
func (f *Fixture) ToSteps() []Step {
	out := make([]Step, len(f.Steps))
	for i := range f.Steps {
		out[i] = f.Steps[i].ToStep()
	}
	return out
}

// ToReplayConfig converts a FixtureConfig to a domain Config.
func (fc *FixtureConfig) ToReplayConfig() Config {
	cfg := DefaultConfig()
	if fc.SaveEvery > 0 {
		cfg.SaveEvery = fc.SaveEvery
	}
	if fc.Update != nil {
		cfg.Update = *fc.Update
	}
	if fc.Gate != nil {
		cfg.Gate = *fc.Gate
	}
	if fc.Eval != nil {
		cfg.Eval = *fc.Eval
	}
	return cfg
}

// #endregion fixture-loader

// #region journal-steps

// StepsFromJournal rebuilds replay steps from journal rows, oldest first.
func StepsFromJournal(entries []logging.JournalEntry) []Step {
	out := make([]Step, len(entries))
	for i, e := range entries {
		st := e.State
		if st.Scene == "" {
			st.Scene = e.Scene
		}
		out[i] = Step{ID: e.ID, State: st, Action: e.Action}
	}
	return out
}

// ExpectedFromJournal turns recorded rewards into expectations for the
// matching replayed steps.
func ExpectedFromJournal(entries []logging.JournalEntry) map[string]float64 {
	out := make(map[string]float64, len(entries))
	for _, e := range entries {
		out[e.ID] = e.Reward
	}
	return out
}

// #endregion journal-steps
