package situation

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
)

// #region types
// Source names which path of the rule engine produced a decision.
type Source string

const (
	SourceRule        Source = "rule"
	SourceLearned     Source = "learned"
	SourceHeuristic   Source = "heuristic"
	SourceExploration Source = "exploration"
	SourceLoopBreak   Source = "loop_break"
)

// Decision is a rule-based action recommendation.
type Decision struct {
	Action          game.Action
	Confidence      float64
	Reasoning       string
	ExpectedOutcome string
	Source          Source
}

// Stuck carries the client's loop-detection predicates into a decision.
type Stuck struct {
	Intro        bool
	NameCreation bool
	Action       bool
	LastAction   *game.Action
}

func (s Stuck) any() bool { return s.Intro || s.NameCreation || s.Action }

// Rule fires Action when Match holds. Lower Priority is tried first.
type Rule struct {
	Match       func(game.Situation) bool
	Action      game.Action
	Priority    int
	Description string
}

type outcome struct {
	situation game.Situation
	action    game.Action
	success   bool
}

// #endregion types

// #region engine
// EngineConfig holds rule engine options.
type EngineConfig struct {
	Epsilon    float64 `yaml:"epsilon"`
	MaxHistory int     `yaml:"max_history"`
}

// DefaultEngineConfig returns an engine config with exploration disabled.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Epsilon: 0, MaxHistory: 1000}
}

// Engine picks actions from per-scene rules, remembered successes and urgency
// heuristics. Outcome history is kept per client; MaxHistory bounds each one.
type Engine struct {
	mu      sync.Mutex
	config  EngineConfig
	rules   map[game.Scene][]Rule
	history map[string][]outcome
	rng     *rand.Rand
}

// NewEngine returns an engine with the built-in scene rules. rng may be nil.
func NewEngine(config EngineConfig, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultEngineConfig().MaxHistory
	}
	e := &Engine{config: config, rules: map[game.Scene][]Rule{}, history: map[string][]outcome{}, rng: rng}
	e.AddRule(game.SceneMainMenu, Rule{
		Match:       func(s game.Situation) bool { return s.HasButtons },
		Action:      game.ActionA,
		Priority:    1,
		Description: "Press A to select menu option",
	})
	e.AddRule(game.SceneMainMenu, Rule{
		Match:       func(s game.Situation) bool { return !s.HasButtons },
		Action:      game.ActionStart,
		Priority:    2,
		Description: "Press Start to begin game",
	})
	e.AddRule(game.SceneIntro, Rule{
		Match:       func(game.Situation) bool { return true },
		Action:      game.ActionA,
		Priority:    1,
		Description: "Press A to advance through intro",
	})
	e.AddRule(game.SceneUnknown, Rule{
		Match:       func(game.Situation) bool { return true },
		Action:      game.ActionA,
		Priority:    1,
		Description: "Press A to advance through unknown screen",
	})
	return e
}

// AddRule registers r for scene s, keeping rules ordered by priority.
func (e *Engine) AddRule(s game.Scene, r Rule) {
	rules := append(e.rules[s], r)
	slices.SortStableFunc(rules, func(a, b Rule) int { return a.Priority - b.Priority })
	e.rules[s] = rules
}

// Decide recommends an action for the client in sit. Loop breaking takes
// precedence over everything else, then exploration, the client's learned
// successes, scene rules and finally urgency heuristics.
func (e *Engine) Decide(clientID string, sit game.Situation, stuck Stuck) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stuck.any() {
		return e.breakLoop(stuck)
	}
	if e.config.Epsilon > 0 && e.rng.Float64() < e.config.Epsilon {
		a, _ := game.ActionFromIndex(e.rng.IntN(game.NumActions))
		return Decision{Action: a, Confidence: 0.1, Reasoning: "Exploring a random action",
			ExpectedOutcome: "Unknown", Source: SourceExploration}
	}
	if d, ok := e.learned(clientID, sit); ok {
		return d
	}
	for _, r := range e.rules[sit.Scene] {
		if r.Match(sit) {
			return Decision{Action: r.Action, Confidence: 0.7, Reasoning: r.Description,
				ExpectedOutcome: "Follow basic game logic", Source: SourceRule}
		}
	}
	return Decision{Action: heuristic(sit), Confidence: 0.3, Reasoning: "Using heuristic fallback",
		ExpectedOutcome: "Unknown outcome", Source: SourceHeuristic}
}

func (e *Engine) breakLoop(stuck Stuck) Decision {
	switch {
	case stuck.Intro:
		return Decision{Action: game.ActionStart, Confidence: 0.5, Reasoning: "Stuck in intro, pressing Start",
			ExpectedOutcome: "Skip intro sequence", Source: SourceLoopBreak}
	case stuck.NameCreation:
		return Decision{Action: game.ActionStart, Confidence: 0.5, Reasoning: "Stuck in name creation, pressing Start",
			ExpectedOutcome: "Confirm name", Source: SourceLoopBreak}
	}
	next := game.ActionA
	if stuck.LastAction != nil && *stuck.LastAction == game.ActionA {
		next = game.ActionB
	}
	reason := "Repeated action with no effect"
	if stuck.LastAction != nil {
		reason = fmt.Sprintf("Repeated %s with no effect, switching to %s", *stuck.LastAction, next)
	}
	return Decision{Action: next, Confidence: 0.5, Reasoning: reason,
		ExpectedOutcome: "Break action loop", Source: SourceLoopBreak}
}

func heuristic(sit game.Situation) game.Action {
	switch sit.Urgency {
	case game.UrgencyCritical, game.UrgencyHigh, game.UrgencyMedium:
		return game.ActionA
	}
	if sit.HasText || sit.InDialog {
		return game.ActionA
	}
	return game.ActionUp
}

// #endregion engine

// #region learning
// Record remembers whether the client's action taken in prev led to progress
// in next.
func (e *Engine) Record(clientID string, prev game.Situation, action game.Action, next game.Situation) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := Progressed(prev, next)
	h := append(e.history[clientID], outcome{situation: prev, action: action, success: ok})
	if over := len(h) - e.config.MaxHistory; over > 0 {
		h = slices.Delete(h, 0, over)
	}
	e.history[clientID] = h
	if prev.Scene != next.Scene {
		monitoring.Logf("[RULES] client=%s %s -> %s after %s", clientID, prev.Scene, next.Scene, action)
	}
	return ok
}

// ClearClient forgets the client's outcome history.
func (e *Engine) ClearClient(clientID string) {
	e.mu.Lock()
	delete(e.history, clientID)
	e.mu.Unlock()
}

func similar(a, b game.Situation) bool {
	if a.Scene != b.Scene || a.HasText != b.HasText || a.HasMenu != b.HasMenu || a.InDialog != b.InDialog {
		return false
	}
	if (a.CursorRow == nil) != (b.CursorRow == nil) {
		return false
	}
	return a.CursorRow == nil || *a.CursorRow == *b.CursorRow
}

// learned returns the most frequent successful action seen in a similar
// situation. Ties go to the lower action index.
func (e *Engine) learned(clientID string, sit game.Situation) (Decision, bool) {
	counts := make([]int, game.NumActions)
	found := false
	for _, o := range e.history[clientID] {
		if o.success && similar(o.situation, sit) {
			if i := o.action.Index(); i >= 0 {
				counts[i]++
				found = true
			}
		}
	}
	if !found {
		return Decision{}, false
	}
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	a, _ := game.ActionFromIndex(best)
	return Decision{Action: a, Confidence: 0.8, Reasoning: "Based on successful past experience",
		ExpectedOutcome: "Should work based on history", Source: SourceLearned}, true
}

// Stats summarises the remembered outcomes across clients.
type Stats struct {
	Clients           int
	TotalActions      int
	SuccessfulActions int
	SuccessRate       float64
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{Clients: len(e.history)}
	for _, h := range e.history {
		s.TotalActions += len(h)
		for _, o := range h {
			if o.success {
				s.SuccessfulActions++
			}
		}
	}
	if s.TotalActions > 0 {
		s.SuccessRate = float64(s.SuccessfulActions) / float64(s.TotalActions)
	}
	return s
}

// #endregion learning
