package pipeline

// #region imports
import (
	"context"
	"fmt"
	"sort"
	"time"
)

// #endregion

// #region types

// StageType groups steps. Stages always run in ascending Priority.
type StageType string

const (
	StageAnalysis        StageType = "analysis"
	StageInference       StageType = "inference"
	StageActionSelection StageType = "action_selection"
	StageLearning        StageType = "learning"
)

// Priority is the fixed run order of the stage.
func (s StageType) Priority() int {
	switch s {
	case StageAnalysis:
		return 1
	case StageInference:
		return 2
	case StageActionSelection:
		return 3
	case StageLearning:
		return 4
	default:
		return 99
	}
}

// StepType names what a step does; metrics are aggregated per type.
type StepType string

const (
	StepSceneAnalysis        StepType = "scene_analysis"
	StepRuleDecision         StepType = "rule_decision"
	StepPolicyInference      StepType = "policy_inference"
	StepImageChangeDetection StepType = "image_change_detection"
	StepActionSelection      StepType = "action_selection"
	StepMacroExecution       StepType = "macro_execution"
	StepClientStateUpdate    StepType = "client_state_update"
	StepRewardProcessing     StepType = "reward_processing"
	StepExperienceCollection StepType = "experience_collection"
	StepActionSending        StepType = "action_sending"
)

// Step is one unit of per-frame work. It reads and writes fc directly.
type Step interface {
	Name() string
	Type() StepType
	Process(ctx context.Context, fc *FrameContext) error
}

// #endregion types

// #region conditional

// Conditional runs Step only when When returns true for the frame.
type Conditional struct {
	Step
	When   func(fc *FrameContext) bool
	Reason string
}

// OnlyWhen wraps step with a predicate.
func OnlyWhen(step Step, reason string, when func(fc *FrameContext) bool) *Conditional {
	return &Conditional{Step: step, When: when, Reason: reason}
}

// ShouldRun reports whether the wrapped step applies to fc.
func (c *Conditional) ShouldRun(fc *FrameContext) bool {
	return c.When == nil || c.When(fc)
}

type guarded interface {
	ShouldRun(fc *FrameContext) bool
}

// #endregion conditional

// #region stage

// StageExecutionMetadata describes one stage run for one frame.
type StageExecutionMetadata struct {
	Stage     StageType
	StartedAt time.Time
	Duration  time.Duration
	SubSteps  []string
	Completed bool
	Err       string
}

// Stage holds steps that run in insertion order.
type Stage struct {
	Type  StageType
	steps []Step
}

// NewStage creates a stage with the given steps.
func NewStage(t StageType, steps ...Step) *Stage {
	return &Stage{Type: t, steps: steps}
}

// Add appends a step.
func (s *Stage) Add(step Step) *Stage {
	s.steps = append(s.steps, step)
	return s
}

// Steps returns the step names in run order.
func (s *Stage) Steps() []string {
	out := make([]string, len(s.steps))
	for i, st := range s.steps {
		out[i] = st.Name()
	}
	return out
}

func (s *Stage) run(ctx context.Context, fc *FrameContext, now func() time.Time) (StageExecutionMetadata, error) {
	meta := StageExecutionMetadata{Stage: s.Type, StartedAt: now()}

	for _, step := range s.steps {
		rec := StepRecord{Step: step.Name(), Type: step.Type(), Stage: s.Type}
		if g, ok := step.(guarded); ok && !g.ShouldRun(fc) {
			rec.Status = StatusSkipped
			fc.record(rec)
			continue
		}

		started := now()
		fc.Log = append(fc.Log, StepRecord{Step: rec.Step, Type: rec.Type, Stage: s.Type, Status: StatusStarted})
		err := step.Process(ctx, fc)
		rec.Duration = now().Sub(started)
		meta.SubSteps = append(meta.SubSteps, rec.Step)

		if err != nil {
			rec.Status = StatusError
			rec.Err = err.Error()
			fc.record(rec)
			meta.Err = rec.Err
			meta.Duration = now().Sub(meta.StartedAt)
			return meta, fmt.Errorf("step %s: %w", rec.Step, err)
		}
		rec.Status = StatusCompleted
		fc.record(rec)
	}
	meta.Completed = true
	meta.Duration = now().Sub(meta.StartedAt)
	return meta, nil
}

// #endregion stage

// #region pipeline

// Pipeline runs its stages in priority order. Equal priorities keep
// insertion order.
type Pipeline struct {
	stages []*Stage
	now    func() time.Time
}

// New builds a pipeline from stages.
func New(stages ...*Stage) *Pipeline {
	p := &Pipeline{now: time.Now}
	for _, s := range stages {
		p.AddStage(s)
	}
	return p
}

// SetClock replaces the time source used for step and stage timings.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// AddStage registers a stage and re-sorts by priority.
func (p *Pipeline) AddStage(s *Stage) {
	p.stages = append(p.stages, s)
	sort.SliceStable(p.stages, func(i, j int) bool {
		return p.stages[i].Type.Priority() < p.stages[j].Type.Priority()
	})
}

// Stages returns stage types in run order.
func (p *Pipeline) Stages() []StageType {
	out := make([]StageType, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Type
	}
	return out
}

// Stage returns the first registered stage of type t.
func (p *Pipeline) Stage(t StageType) (*Stage, bool) {
	for _, s := range p.stages {
		if s.Type == t {
			return s, true
		}
	}
	return nil, false
}

// Run executes every stage against fc. The first failing step aborts the
// pass; the error names the stage and step.
func (p *Pipeline) Run(ctx context.Context, fc *FrameContext) error {
	fc.Metrics.StartedAt = p.now()
	defer func() { fc.Metrics.Total = p.now().Sub(fc.Metrics.StartedAt) }()

	for _, s := range p.stages {
		meta, err := s.run(ctx, fc, p.now)
		fc.Metrics.Stages = append(fc.Metrics.Stages, meta)
		if err != nil {
			return fmt.Errorf("stage %s: %w", s.Type, err)
		}
	}
	return nil
}

// #endregion pipeline
