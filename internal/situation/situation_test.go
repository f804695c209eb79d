package situation

import (
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func seeded() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

// #region analyzer-tests

func TestFromScene_Table(t *testing.T) {
	battle := FromScene(game.SceneBattle)
	assert.True(t, battle.HasText)
	assert.True(t, battle.HasButtons)
	assert.Equal(t, game.UrgencyHigh, battle.Urgency)

	intro := FromScene(game.SceneIntro)
	assert.True(t, intro.InDialog)
	assert.False(t, intro.HasMenu)
	assert.Equal(t, []string{"black", "white"}, intro.DominantColors)

	unknown := FromScene("nonsense")
	assert.Equal(t, []string{"gray"}, unknown.DominantColors)
}

func TestAnalyzer_KnownSceneSkipsSampling(t *testing.T) {
	a := NewAnalyzer()
	st := game.DefaultState(game.SceneMainMenu)
	sit := a.Analyze(game.NewFrame("c", solid(color.RGBA{0, 0, 0, 255})), &st)
	assert.Equal(t, game.SceneMainMenu, sit.Scene)
	assert.True(t, sit.HasMenu)
}

func TestAnalyzer_SamplesUnknownScene(t *testing.T) {
	a := NewAnalyzer()
	st := game.DefaultState(game.SceneUnknown)

	white := a.Analyze(game.NewFrame("c", solid(color.RGBA{230, 230, 230, 255})), &st)
	assert.Equal(t, game.SceneBattle, white.Scene)
	assert.True(t, white.HasText)
	assert.True(t, white.HasMenu)

	dark := a.Analyze(game.NewFrame("c", solid(color.RGBA{10, 10, 10, 255})), &st)
	assert.Equal(t, game.SceneIntro, dark.Scene)
	assert.True(t, dark.InDialog)
	assert.False(t, dark.HasMenu)

	mid := a.Analyze(game.NewFrame("c", solid(color.RGBA{100, 120, 90, 255})), nil)
	assert.Equal(t, game.SceneOverworld, mid.Scene)
	assert.False(t, mid.HasText)
}

func TestAnalyzer_CachesByFrameID(t *testing.T) {
	a := NewAnalyzer()
	f := game.NewFrame("c", solid(color.RGBA{10, 10, 10, 255}))
	first := a.Analyze(f, nil)
	f.Image = solid(color.RGBA{100, 120, 90, 255})
	assert.Equal(t, first, a.Analyze(f, nil))
	a.ClearCache()
	assert.Equal(t, game.SceneOverworld, a.Analyze(f, nil).Scene)
}

func TestAnalyzer_HeuristicOnlyMode(t *testing.T) {
	a := NewAnalyzer()
	a.SampleImage = false
	sit := a.Analyze(game.NewFrame("c", solid(color.RGBA{10, 10, 10, 255})), nil)
	assert.Equal(t, game.SceneOverworld, sit.Scene)
	assert.False(t, sit.HasText)
	assert.False(t, sit.InDialog)
}

func TestProgressed(t *testing.T) {
	base := FromScene(game.SceneOverworld)
	assert.False(t, Progressed(base, base))
	assert.True(t, Progressed(base, FromScene(game.SceneBattle)))

	row1, row2 := 1, 2
	a, b := base, base
	a.CursorRow, b.CursorRow = &row1, &row2
	assert.True(t, Progressed(a, b))
}

// #endregion analyzer-tests

// #region engine-tests

func TestEngine_MainMenuRules(t *testing.T) {
	e := NewEngine(DefaultEngineConfig(), seeded())

	withButtons := FromScene(game.SceneMainMenu)
	d := e.Decide("c1", withButtons, Stuck{})
	assert.Equal(t, game.ActionA, d.Action)
	assert.Equal(t, 0.7, d.Confidence)
	assert.Equal(t, SourceRule, d.Source)

	noButtons := withButtons
	noButtons.HasButtons = false
	assert.Equal(t, game.ActionStart, e.Decide("c1", noButtons, Stuck{}).Action)
}

func TestEngine_IntroAndUnknownPressA(t *testing.T) {
	e := NewEngine(DefaultEngineConfig(), seeded())
	for _, s := range []game.Scene{game.SceneIntro, game.SceneUnknown} {
		d := e.Decide("c1", FromScene(s), Stuck{})
		assert.Equal(t, game.ActionA, d.Action, s)
		assert.Equal(t, 0.7, d.Confidence, s)
	}
}

func TestEngine_Heuristics(t *testing.T) {
	e := NewEngine(DefaultEngineConfig(), seeded())

	d := e.Decide("c1", FromScene(game.SceneOverworld), Stuck{})
	assert.Equal(t, game.ActionUp, d.Action)
	assert.Equal(t, 0.3, d.Confidence)
	assert.Equal(t, SourceHeuristic, d.Source)

	assert.Equal(t, game.ActionA, e.Decide("c1", FromScene(game.SceneBattle), Stuck{}).Action)

	talking := FromScene(game.SceneOverworld)
	talking.HasText = true
	assert.Equal(t, game.ActionA, e.Decide("c1", talking, Stuck{}).Action)
}

func TestEngine_LoopBreaking(t *testing.T) {
	e := NewEngine(DefaultEngineConfig(), seeded())
	intro := FromScene(game.SceneIntro)

	d := e.Decide("c1", intro, Stuck{Intro: true})
	assert.Equal(t, game.ActionStart, d.Action)
	assert.Equal(t, 0.5, d.Confidence)
	assert.Equal(t, SourceLoopBreak, d.Source)

	assert.Equal(t, game.ActionStart, e.Decide("c1", FromScene(game.SceneNameCreation), Stuck{NameCreation: true}).Action)

	last := game.ActionA
	assert.Equal(t, game.ActionB, e.Decide("c1", intro, Stuck{Action: true, LastAction: &last}).Action)
	last = game.ActionB
	assert.Equal(t, game.ActionA, e.Decide("c1", intro, Stuck{Action: true, LastAction: &last}).Action)
}

func TestEngine_ExplorationAlwaysWithEpsilonOne(t *testing.T) {
	e := NewEngine(EngineConfig{Epsilon: 1}, seeded())
	d := e.Decide("c1", FromScene(game.SceneMainMenu), Stuck{})
	assert.Equal(t, SourceExploration, d.Source)
	assert.Equal(t, 0.1, d.Confidence)
	assert.GreaterOrEqual(t, d.Action.Index(), 0)
}

func TestEngine_LearnsSuccessfulActions(t *testing.T) {
	e := NewEngine(DefaultEngineConfig(), seeded())
	over := FromScene(game.SceneOverworld)
	battle := FromScene(game.SceneBattle)

	require.True(t, e.Record("c1", over, game.ActionLeft, battle))
	require.False(t, e.Record("c1", over, game.ActionUp, over))

	d := e.Decide("c1", over, Stuck{})
	assert.Equal(t, game.ActionLeft, d.Action)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, SourceLearned, d.Source)

	stats := e.Stats()
	assert.Equal(t, 2, stats.TotalActions)
	assert.Equal(t, 1, stats.SuccessfulActions)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
}

func TestEngine_HistoryIsPerClient(t *testing.T) {
	e := NewEngine(DefaultEngineConfig(), seeded())
	over := FromScene(game.SceneOverworld)
	battle := FromScene(game.SceneBattle)
	require.True(t, e.Record("c1", over, game.ActionLeft, battle))

	assert.Equal(t, SourceLearned, e.Decide("c1", over, Stuck{}).Source)
	other := e.Decide("c2", over, Stuck{})
	assert.Equal(t, SourceHeuristic, other.Source)
	assert.Equal(t, game.ActionUp, other.Action)

	e.ClearClient("c1")
	assert.Equal(t, SourceHeuristic, e.Decide("c1", over, Stuck{}).Source)
	assert.Zero(t, e.Stats().Clients)
}

func TestEngine_HistoryBounded(t *testing.T) {
	e := NewEngine(EngineConfig{MaxHistory: 3}, seeded())
	over := FromScene(game.SceneOverworld)
	for i := 0; i < 10; i++ {
		e.Record("c1", over, game.ActionUp, over)
	}
	e.Record("c2", over, game.ActionUp, over)
	stats := e.Stats()
	assert.Equal(t, 4, stats.TotalActions)
	assert.Equal(t, 2, stats.Clients)
}

// #endregion engine-tests
