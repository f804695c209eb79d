package config

// #region imports
import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/orchestrator"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/policy"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/selector"
)

// #endregion

// ErrInvalidConfig wraps every validation failure returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

const maxFileSize = 1 << 20

// #region types

// ServiceConfig holds the process-level options of the controller.
type ServiceConfig struct {
	DBPath         string        `yaml:"db_path"`
	PolicyAddr     string        `yaml:"policy_addr"`
	TrainerAddr    string        `yaml:"trainer_addr"`
	FramesDir      string        `yaml:"frames_dir"`
	FrameInterval  time.Duration `yaml:"frame_interval"`
	FrameBuffer    int           `yaml:"frame_buffer"`
	TrainingBuffer int           `yaml:"training_buffer"`
}

// Config is the full configuration surface of the controller.
type Config struct {
	Service      ServiceConfig       `yaml:"service"`
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	Policy       policy.Config       `yaml:"policy"`
}

// Default composes the defaults of every component.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			DBPath:         "pokebot.db",
			FrameInterval:  100 * time.Millisecond,
			FrameBuffer:    64,
			TrainingBuffer: 8,
		},
		Orchestrator: orchestrator.DefaultConfig(),
		Policy:       policy.DefaultConfig(),
	}
}

// #endregion

// #region load

// Load reads a YAML file and overlays it onto Default. Unknown keys are
// rejected. The result is validated before it is returned.
func Load(path string) (Config, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".yaml" && ext != ".yml" {
		return Config{}, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return Config{}, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", clean, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// #endregion

// #region validate

// Validate checks every option and reports all violations at once.
func (c Config) Validate() error {
	var errs []error
	add := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	o := c.Orchestrator
	if err := o.Scene.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scene: %w", err))
	}
	add(o.ImageChange.Threshold >= 0, "image_change.threshold must be >= 0, got %d", o.ImageChange.Threshold)
	add(o.ImageChange.Window >= 1, "image_change.window must be >= 1, got %d", o.ImageChange.Window)
	add(o.ClientState.MaxHistory >= 1, "client_state.max_history must be >= 1, got %d", o.ClientState.MaxHistory)
	add(o.Rules.Epsilon >= 0 && o.Rules.Epsilon <= 1, "rules.epsilon must be in [0,1], got %g", o.Rules.Epsilon)
	switch o.Selector.Strategy {
	case selector.StrategyPolicy, selector.StrategyRule, selector.StrategyHybrid:
	default:
		errs = append(errs, fmt.Errorf("selector.strategy %q is not one of policy, rule, hybrid", o.Selector.Strategy))
	}
	add(o.Selector.PolicyWeight >= 0 && o.Selector.PolicyWeight <= 1,
		"selector.policy_weight must be in [0,1], got %g", o.Selector.PolicyWeight)
	add(o.Experience.BatchSize >= 1, "experience.batch_size must be >= 1, got %d", o.Experience.BatchSize)
	add(o.Experience.MaxSize >= o.Experience.BatchSize,
		"experience.max_size %d is smaller than batch_size %d", o.Experience.MaxSize, o.Experience.BatchSize)
	add(o.Stuck.Intro > 0, "stuck.intro must be positive, got %s", o.Stuck.Intro)
	add(o.Stuck.NameCreation > 0, "stuck.name_creation must be positive, got %s", o.Stuck.NameCreation)
	add(o.Stuck.SameAction >= 2, "stuck.same_action must be >= 2, got %d", o.Stuck.SameAction)
	add(o.ActionBuffer >= 1, "orchestrator.action_buffer must be >= 1, got %d", o.ActionBuffer)

	p := c.Policy
	add(p.UpdateFrequency >= 1, "policy.update_frequency must be >= 1, got %d", p.UpdateFrequency)
	add(p.Update.StepSize > 0, "policy.update.step_size must be positive, got %g", p.Update.StepSize)
	add(p.Update.AdvantageClamp > 0, "policy.update.advantage_clamp must be positive, got %g", p.Update.AdvantageClamp)
	add(p.Update.LogitClamp > 0, "policy.update.logit_clamp must be positive, got %g", p.Update.LogitClamp)
	add(p.Gate.MaxDeltaNorm > 0, "policy.gate.max_delta_norm must be positive, got %g", p.Gate.MaxDeltaNorm)
	add(p.Eval.MaxProbability > 0 && p.Eval.MaxProbability <= 1,
		"policy.eval.max_probability must be in (0,1], got %g", p.Eval.MaxProbability)

	s := c.Service
	add(s.DBPath != "", "service.db_path is required")
	add(s.FrameInterval > 0, "service.frame_interval must be positive, got %s", s.FrameInterval)
	add(s.FrameBuffer >= 1, "service.frame_buffer must be >= 1, got %d", s.FrameBuffer)
	add(s.TrainingBuffer >= 1, "service.training_buffer must be >= 1, got %d", s.TrainingBuffer)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// #endregion
