package reward

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
)

// #region types
const (
	windowSize   = 3
	stallPenalty = 0.3
	statsWindow  = 1000
)

// Objectives is the per-objective reward breakdown.
type Objectives struct {
	Navigation float64 `json:"navigation"`
	Battle     float64 `json:"battle"`
	Story      float64 `json:"story"`
}

// Weights are the scalarisation weights, in Vector order.
var Weights = []float64{0.2, 0.3, 0.5}

// Vector returns navigation, battle and story in that order.
func (o Objectives) Vector() []float64 {
	return []float64{o.Navigation, o.Battle, o.Story}
}

// Scalar is the weighted sum of the objectives.
func (o Objectives) Scalar() float64 {
	return floats.Dot(o.Vector(), Weights)
}

// Entry is one frame submitted to the processor.
type Entry struct {
	Observation Observation
	Action      game.Action
	Prediction  game.Prediction
}

// Result is the delayed reward for the middle frame of a full window.
type Result struct {
	Current     Observation
	Next        Observation
	Action      game.Action
	Prediction  game.Prediction
	Scalar      float64
	Objectives  Objectives
	Stall       float64
	Oscillation float64
}

// Stats summarises the scalar rewards produced so far.
type Stats struct {
	Count  int
	Mean   float64
	StdDev float64
	Last   float64
}

// #endregion types

// #region processor
// Processor keeps a three-frame window per client and scores the middle
// frame once the third arrives.
type Processor struct {
	mu         sync.Mutex
	navigation Calculator
	battle     Calculator
	story      Calculator
	windows    map[string][]Entry
	recent     []float64
	count      int
}

// NewProcessor returns a processor using the built-in calculators.
func NewProcessor() *Processor {
	return NewProcessorWith(Navigation{}, Battle{}, Story{})
}

// NewProcessorWith returns a processor using the given calculators.
func NewProcessorWith(navigation, battle, story Calculator) *Processor {
	return &Processor{
		navigation: navigation,
		battle:     battle,
		story:      story,
		windows:    make(map[string][]Entry),
	}
}

// Process appends e to the client's window. It returns false until the
// window holds three entries.
func (p *Processor) Process(clientID string, e Entry) (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := append(p.windows[clientID], e)
	if len(w) > windowSize {
		w = w[len(w)-windowSize:]
	}
	p.windows[clientID] = w
	if len(w) < windowSize {
		return Result{}, false
	}

	prev, cur, next := w[0], w[1], w[2]
	nav := p.navigation.Reward(cur.Observation, cur.Action, next.Observation)
	battle := p.battle.Reward(cur.Observation, cur.Action, next.Observation)
	story := p.story.Reward(cur.Observation, cur.Action, next.Observation)

	stall := Stall(prev.Observation.State.Scene, cur.Observation.State.Scene, next.Observation.State.Scene)
	osc := Oscillation(prev.Observation, cur.Observation, next.Observation)

	obj := Objectives{Navigation: nav - stall - osc, Battle: battle, Story: story}
	res := Result{
		Current:     cur.Observation,
		Next:        next.Observation,
		Action:      cur.Action,
		Prediction:  cur.Prediction,
		Scalar:      obj.Scalar(),
		Objectives:  obj,
		Stall:       stall,
		Oscillation: osc,
	}
	p.record(res.Scalar)
	if story > 0 {
		monitoring.Logf("[REWARD] client=%s story %s -> %s +%.1f", clientID,
			cur.Observation.State.StoryProgress, next.Observation.State.StoryProgress, story)
	}
	return res, true
}

// Stall is the penalty for a window whose scene never changed.
func Stall(prev, cur, next game.Scene) float64 {
	if prev == cur && cur == next {
		return stallPenalty
	}
	return 0
}

// Oscillation is reserved for an A-B-A screen penalty and currently returns 0.
func Oscillation(_, _, _ Observation) float64 {
	return 0
}

func (p *Processor) record(scalar float64) {
	p.count++
	p.recent = append(p.recent, scalar)
	if len(p.recent) > statsWindow {
		p.recent = p.recent[len(p.recent)-statsWindow:]
	}
}

// #endregion processor

// #region inspection
// Stats reports the count of rewards produced and the mean and standard
// deviation over the most recent ones.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Count: p.count}
	if len(p.recent) == 0 {
		return s
	}
	s.Last = p.recent[len(p.recent)-1]
	if len(p.recent) == 1 {
		s.Mean = s.Last
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(p.recent, nil)
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	return s
}

// WindowLen returns how many entries the client's window holds.
func (p *Processor) WindowLen(clientID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.windows[clientID])
}

// ClearClient drops the client's window.
func (p *Processor) ClearClient(clientID string) {
	p.mu.Lock()
	delete(p.windows, clientID)
	p.mu.Unlock()
}

// #endregion inspection
