package orchestrator

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/clientstate"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/experience"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/imagechange"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/policy"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/scene"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/selector"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/situation"
)

// #endregion

// #region action-command

// ActionCommand is one action addressed to the client that produced FrameID.
type ActionCommand struct {
	ClientID string
	Action   game.Action
	FrameID  string
}

// #endregion

// #region stuck-config

// StuckConfig holds the loop-detection thresholds fed to the rule engine.
type StuckConfig struct {
	Intro        time.Duration `yaml:"intro"`
	NameCreation time.Duration `yaml:"name_creation"`
	SameAction   int           `yaml:"same_action"`
}

// DefaultStuckConfig flags 30s in intro, 60s naming or 10 identical actions.
func DefaultStuckConfig() StuckConfig {
	return StuckConfig{Intro: 30 * time.Second, NameCreation: 60 * time.Second, SameAction: 10}
}

// #endregion

// #region config

// Config wires the per-frame components of the orchestrator.
type Config struct {
	Scene        scene.Config           `yaml:"scene"`
	ImageChange  imagechange.Config     `yaml:"image_change"`
	ClientState  clientstate.Config     `yaml:"client_state"`
	Rules        situation.EngineConfig `yaml:"rules"`
	Selector     selector.Config        `yaml:"selector"`
	Experience   experience.Config      `yaml:"experience"`
	Stuck        StuckConfig            `yaml:"stuck"`
	ActionBuffer int                    `yaml:"action_buffer"`
	// SampleImage enables the pixel-sampling situation path for unknown scenes.
	SampleImage bool `yaml:"sample_image"`
}

// DefaultConfig composes every component default.
func DefaultConfig() Config {
	return Config{
		Scene:        scene.DefaultConfig(),
		ImageChange:  imagechange.DefaultConfig(),
		ClientState:  clientstate.DefaultConfig(),
		Rules:        situation.DefaultEngineConfig(),
		Selector:     selector.DefaultConfig(),
		Experience:   experience.DefaultConfig(),
		Stuck:        DefaultStuckConfig(),
		ActionBuffer: 100,
		SampleImage:  true,
	}
}

// #endregion

// #region interfaces

// Learner receives the delayed reward of each scored action.
type Learner interface {
	Observe(action game.Action, reward float64) (policy.SaveOutcome, bool, error)
}

// #endregion

// #region metadata-keys

const (
	metaSceneConfidence = "scene_confidence"
	metaPredictionError = "prediction_error"
	metaMacroContinued  = "macro_continued"
	metaMacroStopped    = "macro_stopped"
	metaMacroFinished   = "macro_finished"
	metaReward          = "reward"
	metaExperienceID    = "experience_id"
	metaPolicySave      = "policy_save"
	metaActionDropped   = "action_dropped"
)

// #endregion
