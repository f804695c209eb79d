package signals

import "time"

// #region signal-type
// SignalType names a single kind of visual observation.
type SignalType string

const (
	SignalHPBar          SignalType = "hp_bar"
	SignalBattleMenu     SignalType = "battle_menu"
	SignalMainMenu       SignalType = "main_menu"
	SignalDialogBox      SignalType = "dialog_box"
	SignalTextBlock      SignalType = "text_block"
	SignalMenuCursor     SignalType = "menu_cursor"
	SignalTallGrass      SignalType = "tall_grass"
	SignalWater          SignalType = "water"
	SignalIndoor         SignalType = "indoor"
	SignalOutdoor        SignalType = "outdoor"
	SignalPokemonCenter  SignalType = "pokemon_center"
	SignalGym            SignalType = "gym"
	SignalCave           SignalType = "cave"
	SignalCity           SignalType = "city"
	SignalTown           SignalType = "town"
	SignalRoute          SignalType = "route"
	SignalBuilding       SignalType = "building"
	SignalBattleTurn     SignalType = "battle_turn"
	SignalMenuOption     SignalType = "menu_option"
	SignalPlayerPosition SignalType = "player_position"
)

// #endregion signal-type

// #region metadata
// MetadataKind tags which field of Metadata is meaningful.
type MetadataKind string

const (
	MetaNone     MetadataKind = "none"
	MetaPosition MetadataKind = "position"
	MetaCount    MetadataKind = "count"
	MetaColor    MetadataKind = "color"
	MetaText     MetadataKind = "text"
	MetaNumeric  MetadataKind = "numeric"
)

// Metadata carries an optional payload attached to a Signal.
type Metadata struct {
	Kind    MetadataKind
	X, Y    int
	Count   int
	RGB     [3]uint8
	Text    string
	Numeric float64
}

// #endregion metadata

// #region signal
// Signal is one typed observation with a confidence and optional location.
type Signal struct {
	Type       SignalType
	Confidence float64
	Location   *Region
	Metadata   Metadata
}

// #endregion signal

// #region region
// Region is an axis-aligned rectangle in image coordinates.
type Region struct {
	X, Y, Width, Height int
}

// FullImage covers the whole image.
func FullImage(w, h int) Region { return Region{0, 0, w, h} }

// TopQuarter covers the top quarter of the image.
func TopQuarter(w, h int) Region { return Region{0, 0, w, h / 4} }

// BottomQuarter covers the bottom quarter of the image.
func BottomQuarter(w, h int) Region { return Region{0, h * 3 / 4, w, h / 4} }

// CenterHalf covers the central half in both dimensions.
func CenterHalf(w, h int) Region { return Region{w / 4, h / 4, w / 2, h / 2} }

// Contains reports whether (x, y) lies inside r.
func (r Region) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Area returns the number of pixels covered by r.
func (r Region) Area() int { return r.Width * r.Height }

// #endregion region

// #region detection
// Detection is the output of one detector run.
type Detection struct {
	Signals    []Signal
	Confidence float64
	Reasoning  string
	Elapsed    time.Duration
}

// #endregion detection

// #region pipeline-config
// PerformanceMode trades detection depth for latency.
type PerformanceMode string

const (
	ModeSpeed    PerformanceMode = "speed"
	ModeBalanced PerformanceMode = "balanced"
	ModeAccuracy PerformanceMode = "accuracy"
)

// PipelineConfig controls early exit and the per-frame time budget.
type PipelineConfig struct {
	EarlyTermination    bool
	EarlyExitConfidence float64 // an emitted signal above this stops the chain
	MaxProcessingTime   time.Duration
}

// DefaultPipelineConfig returns the balanced configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfigForMode(ModeBalanced)
}

// PipelineConfigForMode returns the preset for a performance mode.
// Unknown modes fall back to balanced.
func PipelineConfigForMode(mode PerformanceMode) PipelineConfig {
	switch mode {
	case ModeSpeed:
		return PipelineConfig{EarlyTermination: true, EarlyExitConfidence: 0.9, MaxProcessingTime: 5 * time.Millisecond}
	case ModeAccuracy:
		return PipelineConfig{EarlyTermination: false, EarlyExitConfidence: 0.9, MaxProcessingTime: 20 * time.Millisecond}
	default:
		return PipelineConfig{EarlyTermination: true, EarlyExitConfidence: 0.9, MaxProcessingTime: 10 * time.Millisecond}
	}
}

// #endregion pipeline-config

// #region result
// Result is the outcome of one pipeline pass.
type Result struct {
	Context         *Context
	Confidence      float64 // max confidence over all signals produced
	Ran             []string
	Skipped         []string
	Trace           []string
	EarlyTerminated bool
	BudgetExceeded  bool
	Elapsed         time.Duration
}

// Stats describes a pipeline's configuration.
type Stats struct {
	TotalDetectors   int
	DetectorNames    []string
	EarlyTermination bool
	MaxProcessingUs  int64
}

// #endregion result
