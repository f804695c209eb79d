package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// #region helpers

type fakeStep struct {
	name string
	typ  StepType
	fn   func(fc *FrameContext) error
}

func (s fakeStep) Name() string   { return s.name }
func (s fakeStep) Type() StepType { return s.typ }
func (s fakeStep) Process(_ context.Context, fc *FrameContext) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(fc)
}

func tracing(name string, trace *[]string) fakeStep {
	return fakeStep{name: name, typ: StepType(name), fn: func(*FrameContext) error {
		*trace = append(*trace, name)
		return nil
	}}
}

// tickClock advances by step on every call.
func tickClock(step time.Duration) func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

// #endregion helpers

func TestPipeline_StagesRunInPriorityOrder(t *testing.T) {
	var trace []string
	p := New(
		NewStage(StageLearning, tracing("learn", &trace)),
		NewStage(StageAnalysis, tracing("scene", &trace), tracing("rules", &trace)),
		NewStage(StageActionSelection, tracing("select", &trace)),
		NewStage(StageInference, tracing("policy", &trace)),
	)

	require.NoError(t, p.Run(context.Background(), NewFrameContext(game.NewFrame("c1", nil))))
	assert.Equal(t, []string{"scene", "rules", "policy", "select", "learn"}, trace)
	assert.Equal(t, []StageType{StageAnalysis, StageInference, StageActionSelection, StageLearning}, p.Stages())
}

func TestPipeline_FailingStepAbortsPass(t *testing.T) {
	var trace []string
	boom := fakeStep{name: "select", typ: StepActionSelection, fn: func(fc *FrameContext) error {
		return Require("select", "situation", fc.Situation != nil)
	}}
	p := New(
		NewStage(StageActionSelection, boom, tracing("macro", &trace)),
		NewStage(StageLearning, tracing("learn", &trace)),
	)
	fc := NewFrameContext(game.NewFrame("c1", nil))

	err := p.Run(context.Background(), fc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingPrecondition))
	assert.Contains(t, err.Error(), "select")
	assert.Contains(t, err.Error(), "situation")
	assert.Empty(t, trace)

	require.Len(t, fc.Metrics.Stages, 1)
	assert.False(t, fc.Metrics.Stages[0].Completed)
	last := fc.Log[len(fc.Log)-1]
	assert.Equal(t, StatusError, last.Status)
}

func TestPipeline_ConditionalSkips(t *testing.T) {
	var trace []string
	learn := OnlyWhen(tracing("learn", &trace), "image unchanged", func(fc *FrameContext) bool {
		return fc.ImageChanged
	})
	p := New(NewStage(StageLearning, learn))

	fc := NewFrameContext(game.NewFrame("c1", nil))
	require.NoError(t, p.Run(context.Background(), fc))
	assert.Empty(t, trace)
	require.Len(t, fc.Log, 1)
	assert.Equal(t, StatusSkipped, fc.Log[0].Status)
	assert.False(t, fc.Completed("learn"))

	fc = NewFrameContext(game.NewFrame("c1", nil))
	fc.ImageChanged = true
	require.NoError(t, p.Run(context.Background(), fc))
	assert.Equal(t, []string{"learn"}, trace)
	assert.True(t, fc.Completed("learn"))
}

func TestPipeline_RecordsTimings(t *testing.T) {
	p := New(NewStage(StageAnalysis,
		fakeStep{name: "a", typ: StepSceneAnalysis},
		fakeStep{name: "b", typ: StepRuleDecision},
	))
	p.SetClock(tickClock(time.Millisecond))
	fc := NewFrameContext(game.NewFrame("c1", nil))

	require.NoError(t, p.Run(context.Background(), fc))
	assert.Equal(t, time.Millisecond, fc.Metrics.Steps[StepSceneAnalysis])
	assert.Equal(t, time.Millisecond, fc.Metrics.Steps[StepRuleDecision])
	require.Len(t, fc.Metrics.Stages, 1)
	meta := fc.Metrics.Stages[0]
	assert.True(t, meta.Completed)
	assert.Equal(t, []string{"a", "b"}, meta.SubSteps)
	assert.Greater(t, fc.Metrics.Total, meta.Duration)
}

func TestFrameContext_CopiesAttachedState(t *testing.T) {
	f := game.NewFrame("c1", nil)
	st := game.DefaultState(game.SceneIntro)
	f.State = &st

	fc := NewFrameContext(f)
	fc.State.Scene = game.SceneBattle
	assert.Equal(t, game.SceneIntro, f.State.Scene)
	assert.Equal(t, "c1", fc.ClientID)
}

func TestFrameContext_ActionPrecedence(t *testing.T) {
	fc := NewFrameContext(game.NewFrame("c1", nil))
	_, ok := fc.Action()
	assert.False(t, ok)

	sel, mac := game.ActionA, game.ActionUp
	fc.SelectedAction = &sel
	a, _ := fc.Action()
	assert.Equal(t, game.ActionA, a)

	fc.MacroAction = &mac
	a, _ = fc.Action()
	assert.Equal(t, game.ActionUp, a)
}

// #region metrics

func TestPerformanceMonitor_EWMAAndMax(t *testing.T) {
	pm := NewPerformanceMonitor()
	pm.OnStep("c1", StepSceneAnalysis, 1000*time.Microsecond)
	pm.OnStep("c1", StepSceneAnalysis, 2000*time.Microsecond)

	s := pm.Stats().Steps[StepSceneAnalysis]
	// 0 -> 100 -> 100*0.9 + 200 = 290
	assert.InDelta(t, 290.0, s.AvgMicros, 1e-9)
	assert.Equal(t, int64(2000), s.MaxMicros)
	assert.Equal(t, 2, s.Count)
}

func TestPerformanceMonitor_FPS(t *testing.T) {
	pm := NewPerformanceMonitor()
	pm.SetClock(tickClock(250 * time.Millisecond))

	for i := 0; i < 4; i++ {
		pm.OnFrameProcessed("c1", FrameMetrics{Total: time.Millisecond})
	}
	st := pm.Stats()
	assert.Equal(t, 4, st.FramesProcessed)
	assert.InDelta(t, 4.0, st.FramesPerSecond, 1e-9)
}

func TestDebugTracker_Bottlenecks(t *testing.T) {
	d := NewDebugTracker()
	for i := 0; i < 12; i++ {
		d.OnFrameProcessed("c1", FrameMetrics{Total: time.Duration(i) * time.Millisecond})
	}
	d.OnStep("c1", StepPolicyInference, 20*time.Millisecond)
	info := d.Info()
	assert.Len(t, info.RecentFrames, 10)
	assert.Equal(t, 2*time.Millisecond, info.RecentFrames[0])
	assert.Empty(t, info.Warnings)

	for i := 0; i < 7; i++ {
		d.OnStep("c1", StepPolicyInference, 21*time.Millisecond)
	}
	d.OnFrameProcessed("c2", FrameMetrics{Total: 51 * time.Millisecond})
	info = d.Info()
	assert.Len(t, info.Warnings, 5)
	assert.Contains(t, info.Warnings[4], "slow frame")
	assert.Equal(t, "c2", info.LastClient)
}

type countingObserver struct {
	frames, actions int
	steps           []StepType
}

func (c *countingObserver) OnFrameProcessed(string, FrameMetrics) { c.frames++ }
func (c *countingObserver) OnActionSent(string, game.Action)      { c.actions++ }
func (c *countingObserver) OnStep(_ string, s StepType, _ time.Duration) {
	c.steps = append(c.steps, s)
}

func TestMetricsCollector_FansOut(t *testing.T) {
	obs := &countingObserver{}
	mc := NewMetricsCollector()
	mc.Subscribe(obs)

	p := New(NewStage(StageAnalysis,
		fakeStep{name: "a", typ: StepSceneAnalysis},
		OnlyWhen(fakeStep{name: "b", typ: StepRewardProcessing}, "never", func(*FrameContext) bool { return false }),
	))
	fc := NewFrameContext(game.NewFrame("c1", nil))
	require.NoError(t, p.Run(context.Background(), fc))

	mc.FrameProcessed(fc)
	mc.ActionSent("c1", game.ActionA)
	if diff := cmp.Diff([]StepType{StepSceneAnalysis}, obs.steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, obs.frames)
	assert.Equal(t, 1, obs.actions)
}

// #endregion metrics
