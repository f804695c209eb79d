package macro

import (
	"context"
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

var (
	quiet  = game.Situation{Scene: game.SceneOverworld}
	dialog = game.Situation{Scene: game.SceneIntro, HasText: true, InDialog: true}
	menu   = game.Situation{Scene: game.SceneMainMenu, HasMenu: true, HasButtons: true}
)

func process(t *testing.T, m *Manager, a game.Action, sit game.Situation, changed bool) Outcome {
	t.Helper()
	out, err := m.Process(context.Background(), "c1", a, sit, changed)
	require.NoError(t, err)
	return out
}

func TestMapActionToMacro(t *testing.T) {
	assert.Equal(t, WalkUp, MapActionToMacro(game.ActionUp, quiet))
	assert.Equal(t, WalkRight, MapActionToMacro(game.ActionRight, quiet))
	assert.Equal(t, MenuBack, MapActionToMacro(game.ActionB, quiet))
	assert.Equal(t, PressStart, MapActionToMacro(game.ActionStart, quiet))
	assert.Equal(t, MenuSelect, MapActionToMacro(game.ActionSelect, quiet))
	assert.Equal(t, AdvanceDialog, MapActionToMacro(game.ActionUp, dialog), "dialog overrides the raw action")
}

func TestKindTicksAndActions(t *testing.T) {
	assert.Equal(t, 1, AdvanceDialog.Ticks())
	assert.Equal(t, 1, MenuBack.Ticks())
	assert.Equal(t, 4, PressStart.Ticks())
	assert.Equal(t, 6, WalkLeft.Ticks())
	assert.Equal(t, game.ActionA, AdvanceDialog.Action())
	assert.Equal(t, game.ActionStart, PressStart.Action())
}

func TestWalkRunsForItsTicksThenEnds(t *testing.T) {
	m := NewManager()
	first := process(t, m, game.ActionUp, quiet, false)
	assert.Equal(t, game.ActionUp, first.Action)
	assert.False(t, first.Continued)

	// the selector keeps suggesting something else; the macro overrides it
	var out Outcome
	for i := 1; i < WalkUp.Ticks(); i++ {
		st, ok := m.State("c1")
		require.True(t, ok, "tick %d", i)
		assert.Equal(t, WalkUp.Ticks()-i, st.TicksLeft)

		out = process(t, m, game.ActionA, quiet, false)
		assert.True(t, out.Continued, "tick %d", i)
		assert.Equal(t, game.ActionUp, out.Action)
	}
	assert.True(t, out.Finished)
	_, ok := m.State("c1")
	assert.False(t, ok, "spent macro is removed, not kept at zero ticks")
	assert.Empty(t, m.ActiveMacros())

	next := process(t, m, game.ActionB, quiet, false)
	assert.Empty(t, next.Stopped)
	assert.Equal(t, MenuBack, next.Macro)
	assert.False(t, next.Continued)
}

func TestWalkEndsOnImageChange(t *testing.T) {
	m := NewManager()
	process(t, m, game.ActionLeft, quiet, false)
	process(t, m, game.ActionA, quiet, false)

	out := process(t, m, game.ActionDown, quiet, true)
	assert.Equal(t, WalkLeft, out.Stopped)
	assert.Equal(t, WalkDown, out.Macro)
	st, _ := m.State("c1")
	assert.Equal(t, WalkDown.Ticks()-1, st.TicksLeft)
}

func TestWalkEndsWhenMenuAppears(t *testing.T) {
	m := NewManager()
	process(t, m, game.ActionRight, quiet, false)
	out := process(t, m, game.ActionA, menu, false)
	assert.Equal(t, WalkRight, out.Stopped)
	assert.Equal(t, MenuSelect, out.Macro)
}

func TestPressStartContinuesOnlyWithoutUI(t *testing.T) {
	m := NewManager()
	process(t, m, game.ActionStart, quiet, false)
	for i := 0; i < 3; i++ {
		out := process(t, m, game.ActionA, quiet, false)
		assert.True(t, out.Continued)
		assert.Equal(t, game.ActionStart, out.Action)
		assert.Equal(t, i == 2, out.Finished)
	}
	out := process(t, m, game.ActionA, quiet, false)
	assert.False(t, out.Continued)
	assert.Empty(t, out.Stopped)
}

func TestPressStartCutShortByMenu(t *testing.T) {
	m := NewManager()
	process(t, m, game.ActionStart, quiet, false)
	out := process(t, m, game.ActionA, menu, false)
	assert.Equal(t, PressStart, out.Stopped)
	assert.False(t, out.Finished)
}

func TestSingleTickMacroIsRemovedImmediately(t *testing.T) {
	m := NewManager()
	first := process(t, m, game.ActionA, dialog, false)
	assert.Equal(t, AdvanceDialog, first.Macro)
	assert.Equal(t, game.ActionA, first.Action)
	assert.True(t, first.Finished)
	_, ok := m.State("c1")
	assert.False(t, ok)

	second := process(t, m, game.ActionA, dialog, false)
	assert.False(t, second.Continued)
	assert.Empty(t, second.Stopped)
	assert.Equal(t, AdvanceDialog, second.Macro)
}

func TestForceStopAndClear(t *testing.T) {
	m := NewManager()
	process(t, m, game.ActionUp, quiet, false)
	_, err := m.Process(context.Background(), "c2", game.ActionDown, quiet, false)
	require.NoError(t, err)
	assert.Len(t, m.ActiveMacros(), 2)

	require.NoError(t, m.ForceStop(context.Background(), "c1"))
	_, ok := m.State("c1")
	assert.False(t, ok)
	require.NoError(t, m.ForceStop(context.Background(), "c1"), "stopping an idle client is a no-op")

	out := process(t, m, game.ActionUp, quiet, false)
	assert.Empty(t, out.Stopped)
	assert.False(t, out.Continued)

	m.ClearClient("c2")
	assert.Equal(t, []string{"c1"}, m.Clients())
}
