package scene

import (
	"fmt"
	"image"
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/signals"
)

// #region analyzer
// Analyzer runs the signal pipeline then the scene detectors over a frame.
// It holds no per-frame state and may be shared by one worker.
type Analyzer struct {
	config    Config
	pipeline  *signals.Pipeline
	detectors []Detector
	now       func() time.Time
}

// NewAnalyzer validates config and builds the detection pipeline it describes.
func NewAnalyzer(config Config) (*Analyzer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("scene config: %w", err)
	}
	return &Analyzer{
		config:    config,
		pipeline:  config.BuildPipeline(),
		detectors: DefaultDetectors(),
		now:       time.Now,
	}, nil
}

func (a *Analyzer) Config() Config                { return a.config }
func (a *Analyzer) Pipeline() *signals.Pipeline   { return a.pipeline }
func (a *Analyzer) Detectors() []Detector         { return a.detectors }
func (a *Analyzer) SetClock(now func() time.Time) { a.now = now }

// AnalyzeImage builds a fresh detection context for img and analyzes it.
func (a *Analyzer) AnalyzeImage(img image.Image) Analysis {
	start := a.now()
	dc := signals.NewContext(img)
	res := a.pipeline.Run(dc)
	best, candidates := a.Classify(res.Context)

	analysis := Analysis{
		Scene:      best.Scene,
		Confidence: best.Confidence,
		State:      BuildState(best.Scene, res.Context),
		Context:    res.Context,
		Pipeline:   res,
		Candidates: candidates,
		Elapsed:    a.now().Sub(start),
	}
	monitoring.Logf("[SCENE] %s conf=%.2f signals=%d %s", analysis.Scene, analysis.Confidence,
		len(res.Context.Signals), res.Summary())
	return analysis
}

// AnalyzeFrame analyzes the frame's image. If the frame already carries a
// State, only its scene, location type and tall-grass flag are replaced.
func (a *Analyzer) AnalyzeFrame(f *game.Frame) (Analysis, error) {
	if f == nil || f.Image == nil {
		return Analysis{}, fmt.Errorf("analyze frame: no image")
	}
	analysis := a.AnalyzeImage(f.Image)
	if f.State != nil {
		merged := *f.State
		merged.Scene = analysis.State.Scene
		merged.LocationType = analysis.State.LocationType
		merged.InTallGrass = analysis.State.InTallGrass
		analysis.State = merged
	}
	return analysis, nil
}

// Classify runs every scene detector against dc and keeps the best result.
// A later detector replaces the current best only with strictly greater
// confidence; a best below the configured threshold resolves to Unknown.
func (a *Analyzer) Classify(dc *signals.Context) (Result, []Result) {
	candidates := make([]Result, 0, len(a.detectors))
	best := Result{Scene: game.SceneUnknown, Reasoning: "no detectors"}
	for i, d := range a.detectors {
		r := d.Detect(dc)
		candidates = append(candidates, r)
		if i == 0 || r.Confidence > best.Confidence {
			best = r
		}
	}
	if best.Confidence < a.config.ConfidenceThreshold {
		best.Reasoning = fmt.Sprintf("best %.2f below threshold %.2f (%s)",
			best.Confidence, a.config.ConfidenceThreshold, best.Reasoning)
		best.Scene = game.SceneUnknown
	}
	return best, candidates
}

// #endregion analyzer

// #region state-analyzer
// BuildState maps a scene and the accumulated signals onto a State.
// Fields the signals cannot resolve keep their defaults.
func BuildState(s game.Scene, dc *signals.Context) game.State {
	st := game.DefaultState(s)
	if s == game.SceneOverworld {
		st.LocationType = locationFromSignals(dc)
	}
	st.InTallGrass = dc.HasSignal(signals.SignalTallGrass)
	return st
}

var locationOrder = []struct {
	signal   signals.SignalType
	location game.LocationType
}{
	{signals.SignalPokemonCenter, game.LocationPokemonCenter},
	{signals.SignalGym, game.LocationGym},
	{signals.SignalCave, game.LocationCave},
	{signals.SignalCity, game.LocationCity},
	{signals.SignalTown, game.LocationTown},
	{signals.SignalBuilding, game.LocationBuilding},
	{signals.SignalWater, game.LocationWater},
}

func locationFromSignals(dc *signals.Context) game.LocationType {
	for _, l := range locationOrder {
		if dc.HasSignal(l.signal) {
			return l.location
		}
	}
	return game.LocationRoute
}

// #endregion state-analyzer
