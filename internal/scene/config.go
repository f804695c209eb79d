package scene

import (
	"errors"
	"fmt"
	"slices"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/signals"
)

// #region config
// SamplingConfig controls how densely regions are sampled.
type SamplingConfig struct {
	SampleStep         int  `yaml:"sample_step"`
	MinRegionSize      int  `yaml:"min_region_size"`
	MaxRegionsPerFrame int  `yaml:"max_regions_per_frame"`
	Adaptive           bool `yaml:"adaptive"`
}

// Config holds scene analysis options.
type Config struct {
	Sensitivity         float64                 `yaml:"sensitivity"`
	ConfidenceThreshold float64                 `yaml:"confidence_threshold"`
	EnabledDetectors    []DetectorType          `yaml:"enabled_detectors"`
	Sampling            SamplingConfig          `yaml:"sampling"`
	Mode                signals.PerformanceMode `yaml:"mode"`
}

// DefaultConfig returns the balanced default configuration.
func DefaultConfig() Config {
	return Config{
		Sensitivity:         0.7,
		ConfidenceThreshold: 0.6,
		EnabledDetectors:    []DetectorType{DetHPBar, DetBattleMenu, DetMainMenu, DetDialogBox, DetTextBlock},
		Sampling:            SamplingConfig{SampleStep: 4, MinRegionSize: 16, MaxRegionsPerFrame: 50, Adaptive: true},
		Mode:                signals.ModeBalanced,
	}
}

// SpeedOptimized trades recall for latency.
func SpeedOptimized() Config {
	return Config{
		Sensitivity:         0.5,
		ConfidenceThreshold: 0.5,
		EnabledDetectors:    []DetectorType{DetMainMenu, DetDialogBox, DetBattleMenu},
		Sampling:            SamplingConfig{SampleStep: 8, MinRegionSize: 32, MaxRegionsPerFrame: 20},
		Mode:                signals.ModeSpeed,
	}
}

// AccuracyOptimized enables every detector family and disables early exit.
func AccuracyOptimized() Config {
	return Config{
		Sensitivity:         0.9,
		ConfidenceThreshold: 0.8,
		EnabledDetectors: []DetectorType{
			DetHPBar, DetBattleMenu, DetMainMenu, DetDialogBox, DetTextBlock, DetMenuCursor,
			DetTallGrass, DetWater, DetIndoor, DetPokemonCenter, DetGym, DetCave,
			DetCity, DetTown, DetRoute, DetBuilding, DetShiny, DetPokemon, DetBagMenu,
		},
		Sampling: SamplingConfig{SampleStep: 2, MinRegionSize: 8, MaxRegionsPerFrame: 100, Adaptive: true},
		Mode:     signals.ModeAccuracy,
	}
}

// PokemonOptimized is tuned for handheld Pokemon titles.
func PokemonOptimized() Config {
	return Config{
		Sensitivity:         0.8,
		ConfidenceThreshold: 0.7,
		EnabledDetectors: []DetectorType{
			DetHPBar, DetBattleMenu, DetMainMenu, DetDialogBox, DetTallGrass,
			DetPokemonCenter, DetGym, DetShiny, DetPokemon, DetBagMenu, DetMenuCursor,
		},
		Sampling: SamplingConfig{SampleStep: 4, MinRegionSize: 16, MaxRegionsPerFrame: 50, Adaptive: true},
		Mode:     signals.ModeBalanced,
	}
}

// #endregion config

// #region validate
// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("sensitivity %.3f outside [0,1]", c.Sensitivity))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence_threshold %.3f outside [0,1]", c.ConfidenceThreshold))
	}
	if len(c.EnabledDetectors) == 0 {
		errs = append(errs, errors.New("at least one detector must be enabled"))
	}
	if c.Sampling.SampleStep <= 0 {
		errs = append(errs, fmt.Errorf("sample_step must be > 0, got %d", c.Sampling.SampleStep))
	}
	switch c.Mode {
	case signals.ModeSpeed, signals.ModeBalanced, signals.ModeAccuracy:
	default:
		errs = append(errs, fmt.Errorf("unknown performance mode %q", c.Mode))
	}
	return errors.Join(errs...)
}

// #endregion validate

// #region builders
// WithSensitivity returns a copy with sensitivity clamped to [0,1].
func (c Config) WithSensitivity(s float64) Config {
	c.Sensitivity = min(max(s, 0), 1)
	return c
}

// WithMode returns a copy using mode.
func (c Config) WithMode(mode signals.PerformanceMode) Config {
	c.Mode = mode
	return c
}

// Enable returns a copy with d added to the enabled set.
func (c Config) Enable(d DetectorType) Config {
	if !slices.Contains(c.EnabledDetectors, d) {
		c.EnabledDetectors = append(slices.Clone(c.EnabledDetectors), d)
	}
	return c
}

// Disable returns a copy with d removed from the enabled set.
func (c Config) Disable(d DetectorType) Config {
	c.EnabledDetectors = slices.DeleteFunc(slices.Clone(c.EnabledDetectors), func(x DetectorType) bool { return x == d })
	return c
}

// #endregion builders

// #region pipeline-build
// BuildPipeline maps the enabled detector families onto visual detectors.
// Families sharing a detector register it once; unsupported families are ignored.
func (c Config) BuildPipeline() *signals.Pipeline {
	p := signals.NewPipeline(signals.PipelineConfigForMode(c.Mode))
	add := func(d signals.Detector) {
		if !p.Has(d.Name()) {
			p.Add(d)
		}
	}
	for _, d := range c.EnabledDetectors {
		switch d {
		case DetHPBar:
			add(signals.NewHPBarDetector())
		case DetBattleMenu, DetMainMenu:
			add(signals.NewMenuDetector())
		case DetTextBlock, DetDialogBox:
			add(signals.NewTextDetector())
		case DetPokemonCenter, DetGym, DetCave, DetCity, DetTown, DetRoute, DetBuilding:
			add(signals.NewLocationDetector())
		case DetTallGrass, DetWater, DetIndoor:
			add(signals.NewEnvironmentDetector())
		}
	}
	return p
}

// #endregion pipeline-build
