package orchestrator

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/clientstate"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/experience"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/imagechange"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/macro"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/policy"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/reward"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/scene"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/selector"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/situation"
)

// #endregion

// #region deps

// Deps are the optional collaborators of an orchestrator. Nil fields
// disable the matching behaviour.
type Deps struct {
	Predictor policy.Predictor
	Learner   Learner
	Journal   *sql.DB
	Training  chan<- []experience.Experience
	Rand      *rand.Rand
}

// #endregion

// #region orchestrator-struct

// Orchestrator runs every frame of every client through one pipeline.
// Passes are sequential, so a client's frame N+1 never starts before
// frame N has finished.
type Orchestrator struct {
	pipeline *pipeline.Pipeline
	metrics  *pipeline.MetricsCollector
	monitor  *pipeline.PerformanceMonitor
	tracker  *pipeline.DebugTracker
	actions  chan ActionCommand

	clients   *clientstate.Manager
	macros    *macro.Manager
	images    *imagechange.Detector
	rewards   *reward.Processor
	collector *experience.Collector
	rules     *situation.Engine
}

// #endregion

// #region constructor

// New builds the four-stage frame pipeline from cfg.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	scenes, err := scene.NewAnalyzer(cfg.Scene)
	if err != nil {
		return nil, err
	}
	sel, err := selector.New(cfg.Selector, rng)
	if err != nil {
		return nil, err
	}
	if cfg.ActionBuffer <= 0 {
		return nil, fmt.Errorf("action buffer must be positive, got %d", cfg.ActionBuffer)
	}

	o := &Orchestrator{
		monitor:   pipeline.NewPerformanceMonitor(),
		tracker:   pipeline.NewDebugTracker(),
		actions:   make(chan ActionCommand, cfg.ActionBuffer),
		clients:   clientstate.NewManager(cfg.ClientState),
		macros:    macro.NewManager(),
		images:    imagechange.NewDetector(cfg.ImageChange),
		rewards:   reward.NewProcessor(),
		collector: experience.NewCollector(cfg.Experience, deps.Training, rng),
		rules:     situation.NewEngine(cfg.Rules, rng),
	}
	o.metrics = pipeline.NewMetricsCollector(o.monitor, o.tracker)

	situations := situation.NewAnalyzer()
	situations.SampleImage = cfg.SampleImage

	learning := func(fc *pipeline.FrameContext) bool { return fc.ImageChanged }
	o.pipeline = pipeline.New(
		pipeline.NewStage(pipeline.StageAnalysis,
			&SceneAnalysis{scenes: scenes, situations: situations, clients: o.clients},
			&RuleDecision{rules: o.rules, clients: o.clients, stuck: cfg.Stuck},
		),
		pipeline.NewStage(pipeline.StageInference,
			&PolicyInference{predictor: deps.Predictor},
		),
		pipeline.NewStage(pipeline.StageActionSelection,
			&ImageChangeDetection{images: o.images},
			&ActionSelection{selector: sel},
			&MacroExecution{macros: o.macros},
			&ClientStateUpdate{clients: o.clients, images: o.images},
			&ActionSending{out: o.actions, metrics: o.metrics},
		),
		pipeline.NewStage(pipeline.StageLearning,
			pipeline.OnlyWhen(&RewardProcessing{rewards: o.rewards}, "image unchanged", learning),
			pipeline.OnlyWhen(&ExperienceCollection{
				collector: o.collector,
				learner:   deps.Learner,
				journal:   deps.Journal,
				now:       time.Now,
			}, "image unchanged", learning),
		),
	)
	return o, nil
}

// #endregion

// #region accessors

// Actions is the channel actions are offered on.
func (o *Orchestrator) Actions() <-chan ActionCommand { return o.actions }

// Pipeline exposes the stage layout.
func (o *Orchestrator) Pipeline() *pipeline.Pipeline { return o.pipeline }

// Subscribe adds an observer notified after every frame.
func (o *Orchestrator) Subscribe(obs pipeline.Observer) { o.metrics.Subscribe(obs) }

// Performance returns the running performance figures.
func (o *Orchestrator) Performance() pipeline.PerformanceStats { return o.monitor.Stats() }

// Debug returns the recent frame times and bottleneck warnings.
func (o *Orchestrator) Debug() pipeline.DebugInfo { return o.tracker.Info() }

// Experience returns the collector statistics.
func (o *Orchestrator) Experience() experience.Stats { return o.collector.Stats() }

// Clients returns the client state statistics.
func (o *Orchestrator) Clients() clientstate.Stats { return o.clients.Stats() }

// Rewards returns the reward statistics.
func (o *Orchestrator) Rewards() reward.Stats { return o.rewards.Stats() }

// StartNewEpisode closes the current experience episode.
func (o *Orchestrator) StartNewEpisode() string { return o.collector.StartNewEpisode() }

// #endregion

// #region process-frame

// ProcessFrame runs one pipeline pass over f and notifies the observers.
// The returned context carries everything the pass produced, even on error.
func (o *Orchestrator) ProcessFrame(ctx context.Context, f *game.Frame) (*pipeline.FrameContext, error) {
	fc := pipeline.NewFrameContext(f)
	err := o.pipeline.Run(ctx, fc)
	o.metrics.FrameProcessed(fc)
	if err != nil {
		return fc, fmt.Errorf("client %s frame %s: %w", fc.ClientID, frameID(f), err)
	}
	return fc, nil
}

func frameID(f *game.Frame) string {
	if f == nil {
		return ""
	}
	return f.ID
}

// #endregion

// #region run

// Run processes frames until ctx is cancelled or frames is closed. A frame
// that fails is logged and skipped.
func (o *Orchestrator) Run(ctx context.Context, frames <-chan *game.Frame) error {
	monitoring.Logf("[ORCH] worker started, stages=%v", o.pipeline.Stages())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				monitoring.Logf("[ORCH] frame source closed")
				return nil
			}
			if _, err := o.ProcessFrame(ctx, f); err != nil {
				monitoring.Logf("[ORCH] %v", err)
			}
		}
	}
}

// #endregion

// #region clear-client

// ClearClient drops every piece of state keyed by clientID. Call it when a
// client disconnects.
func (o *Orchestrator) ClearClient(clientID string) {
	o.clients.ClearClient(clientID)
	o.macros.ClearClient(clientID)
	o.images.ClearClient(clientID)
	o.rewards.ClearClient(clientID)
	o.rules.ClearClient(clientID)
	monitoring.Logf("[ORCH] cleared client=%s", clientID)
}

// #endregion
