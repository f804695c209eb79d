package experience

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/reward"
)

// #region experience
// Experience is one immutable learning step.
type Experience struct {
	ID         string
	EpisodeID  string
	ClientID   string
	Action     game.Action
	Prediction game.Prediction
	Reward     float64
	Objectives reward.Objectives
	Frame      *game.Frame
	State      game.State
	NextFrame  *game.Frame
	NextState  *game.State
	CreatedAt  time.Time
}

// FromResult builds an experience for the middle frame of a reward window.
func FromResult(clientID, episodeID string, r reward.Result) Experience {
	next := r.Next.State
	return Experience{
		ID:         uuid.New().String(),
		EpisodeID:  episodeID,
		ClientID:   clientID,
		Action:     r.Action,
		Prediction: r.Prediction,
		Reward:     r.Scalar,
		Objectives: r.Objectives,
		Frame:      r.Current.Frame,
		State:      r.Current.State,
		NextFrame:  r.Next.Frame,
		NextState:  &next,
		CreatedAt:  time.Now().UTC(),
	}
}

// #endregion experience

// #region buffer
// Buffer is a bounded FIFO of experiences with an episode index.
// Positions handed out are relative to the current oldest entry.
type Buffer struct {
	maxSize int
	items   []Experience
	// base is the absolute sequence number of items[0].
	base    int
	episode string
	index   map[string][]int
	rng     *rand.Rand
}

// NewBuffer returns a buffer holding at most maxSize experiences.
func NewBuffer(maxSize int, rng *rand.Rand) *Buffer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Buffer{
		maxSize: max(maxSize, 1),
		episode: uuid.New().String(),
		index:   make(map[string][]int),
		rng:     rng,
	}
}

// Add appends e, evicting the oldest entry when full.
func (b *Buffer) Add(e Experience) {
	abs := b.base + len(b.items)
	b.items = append(b.items, e)
	b.index[e.EpisodeID] = append(b.index[e.EpisodeID], abs)
	for len(b.items) > b.maxSize {
		b.evict()
	}
}

func (b *Buffer) evict() {
	old := b.items[0]
	b.items[0] = Experience{}
	b.items = b.items[1:]
	positions := b.index[old.EpisodeID]
	if len(positions) <= 1 {
		delete(b.index, old.EpisodeID)
	} else {
		b.index[old.EpisodeID] = positions[1:]
	}
	b.base++
}

func (b *Buffer) Len() int     { return len(b.items) }
func (b *Buffer) MaxSize() int { return b.maxSize }

// CurrentEpisode returns the id new experiences should carry.
func (b *Buffer) CurrentEpisode() string { return b.episode }

// StartNewEpisode rotates the current episode id and returns it.
func (b *Buffer) StartNewEpisode() string {
	b.episode = uuid.New().String()
	return b.episode
}

// EpisodePositions returns the buffer positions of an episode, oldest first.
func (b *Buffer) EpisodePositions(episodeID string) []int {
	abs := b.index[episodeID]
	out := make([]int, len(abs))
	for i, a := range abs {
		out[i] = a - b.base
	}
	return out
}

// Episode returns the experiences of an episode still in the buffer.
func (b *Buffer) Episode(episodeID string) []Experience {
	pos := b.EpisodePositions(episodeID)
	out := make([]Experience, len(pos))
	for i, p := range pos {
		out[i] = b.items[p]
	}
	return out
}

// Recent returns up to n experiences, newest first.
func (b *Buffer) Recent(n int) []Experience {
	n = min(max(n, 0), len(b.items))
	out := make([]Experience, 0, n)
	for i := len(b.items) - 1; i >= len(b.items)-n; i-- {
		out = append(out, b.items[i])
	}
	return out
}

// TrainingBatch samples up to n experiences uniformly without replacement
// across the whole buffer.
func (b *Buffer) TrainingBatch(n int) []Experience {
	n = min(max(n, 0), len(b.items))
	perm := b.rng.Perm(len(b.items))[:n]
	out := make([]Experience, n)
	for i, p := range perm {
		out[i] = b.items[p]
	}
	return out
}

// AverageReward is the mean scalar reward in the buffer, or 0 when empty.
func (b *Buffer) AverageReward() float64 {
	if len(b.items) == 0 {
		return 0
	}
	rewards := make([]float64, len(b.items))
	for i, e := range b.items {
		rewards[i] = e.Reward
	}
	return stat.Mean(rewards, nil)
}

// #endregion buffer
