package pipeline

// #region imports
import (
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/selector"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/situation"
)

// #endregion

// ErrMissingPrecondition is returned by a step that runs before the context
// field it reads has been populated.
var ErrMissingPrecondition = errors.New("missing precondition")

// #region step-log

// StepStatus is the outcome recorded for one step of one frame.
type StepStatus string

const (
	StatusStarted   StepStatus = "started"
	StatusCompleted StepStatus = "completed"
	StatusError     StepStatus = "error"
	StatusSkipped   StepStatus = "skipped"
)

// StepRecord is one entry of the per-frame step log.
type StepRecord struct {
	Step     string
	Type     StepType
	Stage    StageType
	Status   StepStatus
	Duration time.Duration
	Err      string
}

// FrameMetrics holds the timings of one pipeline pass.
type FrameMetrics struct {
	StartedAt time.Time
	Total     time.Duration
	Steps     map[StepType]time.Duration
	Stages    []StageExecutionMetadata
}

// #endregion step-log

// #region frame-context

// FrameContext is the mutable scratch space shared by every step of one
// pipeline pass. Steps attach results to it; the frame itself is read-only.
type FrameContext struct {
	Frame    *game.Frame
	ClientID string

	State     *game.State
	Situation *game.Situation
	Decision  *situation.Decision

	Prediction *game.Prediction
	Selection  *selector.Selection

	SelectedAction *game.Action
	MacroAction    *game.Action
	FinalAction    *game.Action

	ImageChanged bool
	ImageChecked bool

	Metrics  FrameMetrics
	Metadata map[string]any
	Log      []StepRecord
}

// NewFrameContext starts a context for frame. A state already attached to
// the frame is copied in so later steps can merge into it.
func NewFrameContext(frame *game.Frame) *FrameContext {
	fc := &FrameContext{
		Frame:    frame,
		Metadata: make(map[string]any),
		Metrics:  FrameMetrics{Steps: make(map[StepType]time.Duration)},
	}
	if frame != nil {
		fc.ClientID = frame.ClientID
		if frame.State != nil {
			st := *frame.State
			fc.State = &st
		}
	}
	return fc
}

// Require returns ErrMissingPrecondition naming step and field when ok is false.
func Require(step, field string, ok bool) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: step %s needs %s", ErrMissingPrecondition, step, field)
}

// Action returns the action the frame resolved to: the final action when set,
// then the macro action, then the selected one.
func (fc *FrameContext) Action() (game.Action, bool) {
	for _, a := range []*game.Action{fc.FinalAction, fc.MacroAction, fc.SelectedAction} {
		if a != nil {
			return *a, true
		}
	}
	return "", false
}

// SetMeta stores a value under key.
func (fc *FrameContext) SetMeta(key string, v any) {
	fc.Metadata[key] = v
}

// Meta reads a value stored with SetMeta.
func (fc *FrameContext) Meta(key string) (any, bool) {
	v, ok := fc.Metadata[key]
	return v, ok
}

// Completed reports whether step finished without error on this frame.
func (fc *FrameContext) Completed(step StepType) bool {
	for _, r := range fc.Log {
		if r.Type == step && r.Status == StatusCompleted {
			return true
		}
	}
	return false
}

func (fc *FrameContext) record(r StepRecord) {
	fc.Log = append(fc.Log, r)
	if r.Status == StatusCompleted || r.Status == StatusError {
		fc.Metrics.Steps[r.Type] += r.Duration
	}
}

// #endregion frame-context
