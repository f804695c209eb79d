package orchestrator

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/clientstate"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/experience"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/imagechange"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/logging"
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

// #region scene-analysis

// SceneAnalysis classifies the frame and derives its situation.
// Needs: a frame with an image or an attached state. Sets: State, Situation.
type SceneAnalysis struct {
	scenes     *scene.Analyzer
	situations *situation.Analyzer
	clients    *clientstate.Manager
}

func (s *SceneAnalysis) Name() string            { return "SceneAnalysisStep" }
func (s *SceneAnalysis) Type() pipeline.StepType { return pipeline.StepSceneAnalysis }

func (s *SceneAnalysis) Process(_ context.Context, fc *pipeline.FrameContext) error {
	if err := pipeline.Require(s.Name(), "frame", fc.Frame != nil); err != nil {
		return err
	}
	switch {
	case fc.Frame.Image != nil:
		a, err := s.scenes.AnalyzeFrame(fc.Frame)
		if err != nil {
			return err
		}
		st := a.State
		fc.State = &st
		fc.SetMeta(metaSceneConfidence, a.Confidence)
	case fc.State == nil:
		return pipeline.Require(s.Name(), "frame image or state", false)
	}

	sit := s.situations.Analyze(fc.Frame, fc.State)
	fc.Situation = &sit
	s.clients.TrackScene(fc.ClientID, fc.State.Scene)
	return nil
}

// #endregion

// #region rule-decision

// RuleDecision asks the rule engine for a recommendation, feeding it the
// client's stuck predicates and the outcome of its previous action.
// Needs: Situation. Sets: Decision.
type RuleDecision struct {
	rules   *situation.Engine
	clients *clientstate.Manager
	stuck   StuckConfig
}

func (s *RuleDecision) Name() string            { return "RuleDecisionStep" }
func (s *RuleDecision) Type() pipeline.StepType { return pipeline.StepRuleDecision }

func (s *RuleDecision) Process(_ context.Context, fc *pipeline.FrameContext) error {
	if err := pipeline.Require(s.Name(), "situation", fc.Situation != nil); err != nil {
		return err
	}
	id := fc.ClientID
	if rec, ok := s.clients.Snapshot(id); ok && rec.LastAction != nil && rec.LastSituation != nil {
		s.rules.Record(id, *rec.LastSituation, *rec.LastAction, *fc.Situation)
	}

	stuck := situation.Stuck{
		Intro:        s.clients.IntroStuck(id, s.stuck.Intro),
		NameCreation: s.clients.NameCreationStuck(id, s.stuck.NameCreation),
		Action:       s.clients.ActionStuck(id, s.stuck.SameAction),
	}
	if last, ok := s.clients.LastAction(id); ok {
		stuck.LastAction = &last
	}
	d := s.rules.Decide(id, *fc.Situation, stuck)
	fc.Decision = &d
	return nil
}

// #endregion

// #region policy-inference

// PolicyInference asks the predictor for an action distribution. A failed
// prediction leaves Prediction nil so selection falls back.
// Needs: frame. Sets: Prediction.
type PolicyInference struct {
	predictor policy.Predictor
}

func (s *PolicyInference) Name() string            { return "PolicyInferenceStep" }
func (s *PolicyInference) Type() pipeline.StepType { return pipeline.StepPolicyInference }

func (s *PolicyInference) Process(ctx context.Context, fc *pipeline.FrameContext) error {
	if err := pipeline.Require(s.Name(), "frame", fc.Frame != nil); err != nil {
		return err
	}
	if s.predictor == nil {
		return nil
	}
	p, err := s.predictor.Predict(ctx, fc.Frame)
	if err != nil {
		monitoring.Logf("[ORCH] client=%s predict: %v", fc.ClientID, err)
		fc.SetMeta(metaPredictionError, err.Error())
		return nil
	}
	fc.Prediction = &p
	return nil
}

// #endregion

// #region image-change

// ImageChangeDetection compares the frame against the client's cache.
// Sets: ImageChanged, ImageChecked.
type ImageChangeDetection struct {
	images *imagechange.Detector
}

func (s *ImageChangeDetection) Name() string            { return "ImageChangeDetectionStep" }
func (s *ImageChangeDetection) Type() pipeline.StepType { return pipeline.StepImageChangeDetection }

func (s *ImageChangeDetection) Process(_ context.Context, fc *pipeline.FrameContext) error {
	if err := pipeline.Require(s.Name(), "frame", fc.Frame != nil); err != nil {
		return err
	}
	if fc.Frame.Image != nil {
		fc.ImageChanged = s.images.Detect(fc.ClientID, fc.Frame.Image)
	}
	fc.ImageChecked = true
	return nil
}

// #endregion

// #region action-selection

// ActionSelection combines the rule decision with the prediction.
// Needs: Situation, Decision. Sets: Selection, SelectedAction.
type ActionSelection struct {
	selector selector.Selector
}

func (s *ActionSelection) Name() string            { return "ActionSelectionStep" }
func (s *ActionSelection) Type() pipeline.StepType { return pipeline.StepActionSelection }

func (s *ActionSelection) Process(_ context.Context, fc *pipeline.FrameContext) error {
	if err := pipeline.Require(s.Name(), "situation", fc.Situation != nil); err != nil {
		return err
	}
	if err := pipeline.Require(s.Name(), "decision", fc.Decision != nil); err != nil {
		return err
	}
	sel := s.selector.Select(*fc.Situation, *fc.Decision, fc.Prediction)
	fc.Selection = &sel
	a := sel.Action
	fc.SelectedAction = &a
	return nil
}

// #endregion

// #region macro-execution

// MacroExecution continues or restarts the client's macro.
// Needs: SelectedAction, Situation, image change result. Sets: MacroAction, FinalAction.
type MacroExecution struct {
	macros *macro.Manager
}

func (s *MacroExecution) Name() string            { return "MacroExecutionStep" }
func (s *MacroExecution) Type() pipeline.StepType { return pipeline.StepMacroExecution }

func (s *MacroExecution) Process(ctx context.Context, fc *pipeline.FrameContext) error {
	if err := pipeline.Require(s.Name(), "selected action", fc.SelectedAction != nil); err != nil {
		return err
	}
	if err := pipeline.Require(s.Name(), "situation", fc.Situation != nil); err != nil {
		return err
	}
	if err := pipeline.Require(s.Name(), "image change result", fc.ImageChecked); err != nil {
		return err
	}
	out, err := s.macros.Process(ctx, fc.ClientID, *fc.SelectedAction, *fc.Situation, fc.ImageChanged)
	if err != nil {
		return fmt.Errorf("macro: %w", err)
	}
	a := out.Action
	fc.MacroAction = &a
	final := out.Action
	fc.FinalAction = &final
	fc.SetMeta(metaMacroContinued, out.Continued)
	if out.Stopped != "" {
		fc.SetMeta(metaMacroStopped, string(out.Stopped))
	}
	if out.Finished {
		fc.SetMeta(metaMacroFinished, string(out.Macro))
	}
	return nil
}

// #endregion

// #region client-state

// ClientStateUpdate records the resolved action against the client.
// Needs: a resolved action and Situation.
type ClientStateUpdate struct {
	clients *clientstate.Manager
	images  *imagechange.Detector
}

func (s *ClientStateUpdate) Name() string            { return "ClientStateUpdateStep" }
func (s *ClientStateUpdate) Type() pipeline.StepType { return pipeline.StepClientStateUpdate }

func (s *ClientStateUpdate) Process(_ context.Context, fc *pipeline.FrameContext) error {
	a, ok := fc.Action()
	if err := pipeline.Require(s.Name(), "action", ok); err != nil {
		return err
	}
	if err := pipeline.Require(s.Name(), "situation", fc.Situation != nil); err != nil {
		return err
	}
	small, _ := s.images.CachedImage(fc.ClientID)
	s.clients.Update(fc.ClientID, a, *fc.Situation, small)
	return nil
}

// #endregion

// #region action-sending

// ActionSending offers the resolved action to the action channel without
// blocking. A full channel drops the action.
type ActionSending struct {
	out     chan<- ActionCommand
	metrics *pipeline.MetricsCollector
}

func (s *ActionSending) Name() string            { return "ActionSendingStep" }
func (s *ActionSending) Type() pipeline.StepType { return pipeline.StepActionSending }

func (s *ActionSending) Process(_ context.Context, fc *pipeline.FrameContext) error {
	a, ok := fc.Action()
	if err := pipeline.Require(s.Name(), "action", ok); err != nil {
		return err
	}
	cmd := ActionCommand{ClientID: fc.ClientID, Action: a, FrameID: fc.Frame.ID}
	select {
	case s.out <- cmd:
		s.metrics.ActionSent(fc.ClientID, a)
	default:
		fc.SetMeta(metaActionDropped, true)
		monitoring.Logf("[ORCH] client=%s action channel full, dropped %s", fc.ClientID, a)
	}
	return nil
}

// #endregion

// #region reward-processing

// RewardProcessing pushes the frame into the client's reward window.
// The scored reward, if any, is left in the metadata for collection.
// Needs: State and a resolved action.
type RewardProcessing struct {
	rewards *reward.Processor
}

func (s *RewardProcessing) Name() string            { return "RewardProcessingStep" }
func (s *RewardProcessing) Type() pipeline.StepType { return pipeline.StepRewardProcessing }

func (s *RewardProcessing) Process(_ context.Context, fc *pipeline.FrameContext) error {
	if err := pipeline.Require(s.Name(), "state", fc.State != nil); err != nil {
		return err
	}
	a, ok := fc.Action()
	if err := pipeline.Require(s.Name(), "action", ok); err != nil {
		return err
	}
	e := reward.Entry{
		Observation: reward.Observation{Frame: fc.Frame, State: *fc.State},
		Action:      a,
	}
	if fc.Prediction != nil {
		e.Prediction = *fc.Prediction
	}
	if res, ok := s.rewards.Process(fc.ClientID, e); ok {
		fc.SetMeta(metaReward, res)
	}
	return nil
}

// #endregion

// #region experience-collection

// ExperienceCollection turns a scored reward into an experience, buffers
// it, nudges the policy and journals it. Frames without a scored reward
// pass through.
type ExperienceCollection struct {
	collector *experience.Collector
	learner   Learner
	journal   *sql.DB
	now       func() time.Time
	// lastWrite is the latency of the previous journal insert.
	lastWrite time.Duration
}

func (s *ExperienceCollection) Name() string            { return "ExperienceCollectionStep" }
func (s *ExperienceCollection) Type() pipeline.StepType { return pipeline.StepExperienceCollection }

func (s *ExperienceCollection) Process(_ context.Context, fc *pipeline.FrameContext) error {
	v, ok := fc.Meta(metaReward)
	if !ok {
		return nil
	}
	res, ok := v.(reward.Result)
	if !ok {
		return fmt.Errorf("reward metadata has type %T", v)
	}
	started := s.now()

	e := experience.FromResult(fc.ClientID, s.collector.CurrentEpisode(), res)
	s.collector.Collect(e)
	fc.SetMeta(metaExperienceID, e.ID)

	if s.learner != nil {
		out, saved, err := s.learner.Observe(res.Action, res.Scalar)
		if err != nil {
			return fmt.Errorf("policy update: %w", err)
		}
		if saved {
			fc.SetMeta(metaPolicySave, out.Action)
			monitoring.Logf("[LEARN] client=%s policy save %s %s", fc.ClientID, out.Action, out.VersionID)
		}
	}

	if s.journal == nil {
		return nil
	}
	phases := phaseDurations(fc.Metrics)
	phases.LearningUs = s.now().Sub(started).Microseconds()
	phases.JournalingUs = s.lastWrite.Microseconds()
	phases.TotalUs += phases.LearningUs
	meta := map[string]any{"stall": res.Stall}
	if m, ok := fc.Meta(metaPolicySave); ok {
		meta[metaPolicySave] = m
	}
	entry := logging.FromExperience(e, phases, meta)
	jStart := s.now()
	if err := logging.WriteEntry(s.journal, entry); err != nil {
		monitoring.Logf("[LEARN] client=%s journal: %v", fc.ClientID, err)
	}
	s.lastWrite = s.now().Sub(jStart)
	return nil
}

// phaseDurations reads the stages finished so far on this frame.
func phaseDurations(m pipeline.FrameMetrics) logging.PhaseDurations {
	var p logging.PhaseDurations
	for _, st := range m.Stages {
		us := st.Duration.Microseconds()
		switch st.Stage {
		case pipeline.StageAnalysis:
			p.AnalysisUs = us
		case pipeline.StageInference:
			p.InferenceUs = us
		case pipeline.StageActionSelection:
			p.DecisionUs = us
		}
		p.TotalUs += us
	}
	return p
}

// #endregion
