package clientstate

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(DefaultConfig())
	m.SetClock(clock.now)
	return m, clock
}

func sit(s game.Scene) game.Situation { return game.Situation{Scene: s} }

func TestUpdate_CountsConsecutiveActions(t *testing.T) {
	m, _ := newManager(t)
	small := image.NewRGBA(image.Rect(0, 0, 64, 64))

	m.Update("c1", game.ActionA, sit(game.SceneIntro), small)
	m.Update("c1", game.ActionA, sit(game.SceneIntro), small)
	m.Update("c1", game.ActionA, sit(game.SceneIntro), small)
	assert.True(t, m.ActionStuck("c1", 3))
	assert.False(t, m.ActionStuck("c1", 4))

	m.Update("c1", game.ActionB, sit(game.SceneIntro), small)
	assert.False(t, m.ActionStuck("c1", 2))

	rec, ok := m.Snapshot("c1")
	require.True(t, ok)
	assert.Equal(t, 1, rec.SameActionCount)
	assert.Equal(t, 4, rec.TotalActions)
	assert.Equal(t, game.ActionB, *rec.LastAction)
	assert.Same(t, small, rec.LastImage)
}

func TestUpdate_HistoryBounded(t *testing.T) {
	m, _ := newManager(t)
	for i := 0; i < 15; i++ {
		a, _ := game.ActionFromIndex(i % game.NumActions)
		m.Update("c1", a, sit(game.SceneOverworld), nil)
	}
	rec, _ := m.Snapshot("c1")
	require.Len(t, rec.History, 10)
	last, _ := game.ActionFromIndex(14 % game.NumActions)
	assert.Equal(t, last, rec.History[9])
}

func TestIntroStopwatch(t *testing.T) {
	m, clock := newManager(t)

	m.TrackScene("c1", game.SceneIntro)
	clock.advance(20 * time.Second)
	m.TrackScene("c1", game.SceneIntro)
	assert.False(t, m.IntroStuck("c1", 30*time.Second))

	clock.advance(11 * time.Second)
	assert.True(t, m.IntroStuck("c1", 30*time.Second))
	assert.Equal(t, []string{"c1"}, m.IntroStuckClients(30*time.Second))

	m.TrackScene("c1", game.SceneOverworld)
	assert.False(t, m.IntroStuck("c1", 30*time.Second))

	m.TrackScene("c1", game.SceneIntro)
	clock.advance(5 * time.Second)
	assert.False(t, m.IntroStuck("c1", 30*time.Second), "re-entering restarts the stopwatch")
}

func TestNameCreationStopwatchIndependent(t *testing.T) {
	m, clock := newManager(t)
	m.TrackScene("c1", game.SceneNameCreation)
	clock.advance(61 * time.Second)
	assert.True(t, m.NameCreationStuck("c1", 60*time.Second))
	assert.False(t, m.IntroStuck("c1", 0))

	stats := m.Stats()
	assert.Equal(t, 1, stats.NameTracking)
	assert.Equal(t, 0, stats.IntroTracking)
}

func TestUnknownClientPredicates(t *testing.T) {
	m, _ := newManager(t)
	assert.False(t, m.IntroStuck("ghost", 0))
	assert.False(t, m.NameCreationStuck("ghost", 0))
	assert.False(t, m.ActionStuck("ghost", 1))
	_, ok := m.LastAction("ghost")
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	m, _ := newManager(t)
	m.Update("c1", game.ActionUp, sit(game.SceneOverworld), nil)
	rec, _ := m.Snapshot("c1")
	rec.History[0] = game.ActionDown
	*rec.LastAction = game.ActionDown

	again, _ := m.Snapshot("c1")
	assert.Equal(t, game.ActionUp, again.History[0])
	assert.Equal(t, game.ActionUp, *again.LastAction)
}

func TestClearClient(t *testing.T) {
	m, _ := newManager(t)
	m.Update("c1", game.ActionA, sit(game.SceneIntro), nil)
	m.Update("c2", game.ActionA, sit(game.SceneIntro), nil)
	assert.Equal(t, []string{"c1", "c2"}, m.TrackedClients())

	m.ClearClient("c1")
	assert.Equal(t, []string{"c2"}, m.TrackedClients())
	_, ok := m.Snapshot("c1")
	assert.False(t, ok)
}
