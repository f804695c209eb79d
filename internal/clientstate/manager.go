package clientstate

import (
	"image"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
)

// #region types
// Config holds client state tracking options.
type Config struct {
	MaxHistory int `yaml:"max_history"`
}

// DefaultConfig keeps the last 10 actions per client.
func DefaultConfig() Config {
	return Config{MaxHistory: 10}
}

// Record is the tracked state of one client.
type Record struct {
	LastAction        *game.Action
	LastSituation     *game.Situation
	LastImage         image.Image
	SameActionCount   int
	History           []game.Action
	IntroSince        *time.Time
	NameCreationSince *time.Time
	TotalActions      int
	LastUpdate        time.Time
}

func (r *Record) clone() Record {
	cp := *r
	cp.History = slices.Clone(r.History)
	if r.LastAction != nil {
		a := *r.LastAction
		cp.LastAction = &a
	}
	if r.LastSituation != nil {
		s := *r.LastSituation
		s.DominantColors = slices.Clone(s.DominantColors)
		cp.LastSituation = &s
	}
	if r.IntroSince != nil {
		t := *r.IntroSince
		cp.IntroSince = &t
	}
	if r.NameCreationSince != nil {
		t := *r.NameCreationSince
		cp.NameCreationSince = &t
	}
	return cp
}

// Stats summarises tracked clients.
type Stats struct {
	ActiveClients int
	TotalActions  int
	MaxHistory    int
	IntroTracking int
	NameTracking  int
}

// #endregion types

// #region manager
// Manager tracks per-client action history and scene stopwatches.
// The pipeline worker is the only writer; readers get copies.
type Manager struct {
	mu      sync.RWMutex
	config  Config
	clients map[string]*Record
	now     func() time.Time
}

// NewManager returns a manager using the wall clock.
func NewManager(config Config) *Manager {
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultConfig().MaxHistory
	}
	return &Manager{config: config, clients: make(map[string]*Record), now: time.Now}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

func (m *Manager) record(clientID string) *Record {
	r, ok := m.clients[clientID]
	if !ok {
		r = &Record{LastUpdate: m.now()}
		m.clients[clientID] = r
	}
	return r
}

// Update records the action chosen for a frame together with its situation
// and the client's small cached image.
func (m *Manager) Update(clientID string, action game.Action, sit game.Situation, small image.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.record(clientID)
	if r.LastAction != nil && *r.LastAction == action {
		r.SameActionCount++
	} else {
		r.SameActionCount = 1
	}
	r.LastAction = &action
	r.LastSituation = &sit
	r.LastImage = small
	r.History = append(r.History, action)
	if over := len(r.History) - m.config.MaxHistory; over > 0 {
		r.History = slices.Delete(r.History, 0, over)
	}
	r.TotalActions++
	r.LastUpdate = m.now()
}

// TrackScene starts a stopwatch when the client enters Intro or NameCreation
// and clears it the moment the client leaves that scene.
func (m *Manager) TrackScene(clientID string, s game.Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.record(clientID)
	now := m.now()
	r.IntroSince = stopwatch(r.IntroSince, s == game.SceneIntro, now)
	r.NameCreationSince = stopwatch(r.NameCreationSince, s == game.SceneNameCreation, now)
}

func stopwatch(since *time.Time, inScene bool, now time.Time) *time.Time {
	switch {
	case !inScene:
		return nil
	case since == nil:
		return &now
	}
	return since
}

// #endregion manager

// #region predicates
// IntroStuck reports whether the client has been in Intro longer than threshold.
func (m *Manager) IntroStuck(clientID string, threshold time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.clients[clientID]
	return ok && r.IntroSince != nil && m.now().Sub(*r.IntroSince) > threshold
}

// NameCreationStuck reports whether the client has been naming longer than threshold.
func (m *Manager) NameCreationStuck(clientID string, threshold time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.clients[clientID]
	return ok && r.NameCreationSince != nil && m.now().Sub(*r.NameCreationSince) > threshold
}

// ActionStuck reports whether the same action was chosen at least count times in a row.
func (m *Manager) ActionStuck(clientID string, count int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.clients[clientID]
	return ok && r.SameActionCount >= count
}

// LastAction returns the client's previous action.
func (m *Manager) LastAction(clientID string) (game.Action, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.clients[clientID]
	if !ok || r.LastAction == nil {
		return "", false
	}
	return *r.LastAction, true
}

// #endregion predicates

// #region inspection
// Snapshot returns a copy of the client's record.
func (m *Manager) Snapshot(clientID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.clients[clientID]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// ClearClient drops all state for a client.
func (m *Manager) ClearClient(clientID string) {
	m.mu.Lock()
	delete(m.clients, clientID)
	m.mu.Unlock()
}

// TrackedClients returns the tracked client ids in sorted order.
func (m *Manager) TrackedClients() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IntroStuckClients lists clients stuck in Intro beyond threshold.
func (m *Manager) IntroStuckClients(threshold time.Duration) []string {
	var out []string
	for _, id := range m.TrackedClients() {
		if m.IntroStuck(id, threshold) {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{ActiveClients: len(m.clients), MaxHistory: m.config.MaxHistory}
	for _, r := range m.clients {
		s.TotalActions += r.TotalActions
		if r.IntroSince != nil {
			s.IntroTracking++
		}
		if r.NameCreationSince != nil {
			s.NameTracking++
		}
	}
	return s
}

// #endregion inspection
