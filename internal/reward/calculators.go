package reward

import (
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
)

// #region observation
// Observation is one frame together with the state analysed for it.
type Observation struct {
	Frame *game.Frame
	State game.State
}

// Calculator scores the transition from current to next after action.
type Calculator interface {
	Name() string
	Reward(current Observation, action game.Action, next Observation) float64
}

// #endregion observation

// #region navigation
// Navigation rewards leaving the intro screens for the overworld.
type Navigation struct{}

func (Navigation) Name() string { return "navigation" }

func (Navigation) Reward(current Observation, _ game.Action, next Observation) float64 {
	from, to := current.State.Scene, next.State.Scene
	switch {
	case to == game.SceneOverworld &&
		(from == game.SceneIntro || from == game.SceneMainMenu || from == game.SceneNameCreation):
		return 1.0
	case from == game.SceneIntro && (to == game.SceneNameCreation || to == game.SceneMainMenu):
		return 0.5
	case from == to:
		return -0.01
	}
	return 0
}

// #endregion navigation

// #region battle
// Battle rewards entering, sustaining and finishing battles.
type Battle struct{}

func (Battle) Name() string { return "battle" }

func (Battle) Reward(current Observation, _ game.Action, next Observation) float64 {
	in, out := current.State.Scene == game.SceneBattle, next.State.Scene == game.SceneBattle
	switch {
	case in && out:
		return 0.1
	case !in && out:
		return 0.5
	case in && !out:
		return 1.0
	}
	return -0.01
}

// #endregion battle

// #region story
const (
	badgeReward  = 8.0
	seenReward   = 0.5
	caughtReward = 1.0
)

// Story rewards forward story progress and growth in badges and pokedex
// counters. Decreases are treated as resets and earn nothing.
type Story struct{}

func (Story) Name() string { return "story_progress" }

func (Story) Reward(current Observation, _ game.Action, next Observation) float64 {
	c, n := current.State, next.State
	r := StoryStep(c.StoryProgress, n.StoryProgress)
	r += float64(max(n.BadgesEarned-c.BadgesEarned, 0)) * badgeReward
	r += float64(max(n.PokedexSeen-c.PokedexSeen, 0)) * seenReward
	r += float64(max(n.PokedexCaught-c.PokedexCaught, 0)) * caughtReward
	return r
}

// StoryStep is the fixed reward for moving from one story stage to another.
func StoryStep(from, to game.StoryProgress) float64 {
	if from == to {
		return 0
	}
	switch {
	case from == game.StoryGameStart && to == game.StoryStarterObtained:
		return 5
	case from == game.StoryStarterObtained && to == game.StoryFirstGym:
		return 10
	case from.IsGym() && to.IsGym() && to.Rank() == from.Rank()+1:
		return 10
	case from == game.StoryEighthGym && to == game.StoryEliteFour:
		return 15
	case from == game.StoryEliteFour && to == game.StoryChampion:
		return 20
	case from == game.StoryChampion && to == game.StoryPostGame:
		return 15
	case to.Rank() > from.Rank() && from.Rank() >= 0:
		return 5
	}
	return 0
}

// #endregion story
