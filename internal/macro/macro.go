package macro

import (
	"context"
	"sort"
	"sync"

	"github.com/looplab/fsm"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
)

// #region kinds
// Kind is a multi-frame compound action.
type Kind string

const (
	AdvanceDialog Kind = "advance_dialog"
	MenuSelect    Kind = "menu_select"
	MenuBack      Kind = "menu_back"
	PressStart    Kind = "press_start"
	WalkUp        Kind = "walk_up"
	WalkDown      Kind = "walk_down"
	WalkLeft      Kind = "walk_left"
	WalkRight     Kind = "walk_right"
)

// Action returns the button a macro presses on each tick.
func (k Kind) Action() game.Action {
	switch k {
	case AdvanceDialog, MenuSelect:
		return game.ActionA
	case MenuBack:
		return game.ActionB
	case PressStart:
		return game.ActionStart
	case WalkUp:
		return game.ActionUp
	case WalkDown:
		return game.ActionDown
	case WalkLeft:
		return game.ActionLeft
	case WalkRight:
		return game.ActionRight
	}
	return game.ActionA
}

// Ticks is the default lifetime of a macro in frames.
func (k Kind) Ticks() int {
	switch k {
	case PressStart:
		return 4
	case WalkUp, WalkDown, WalkLeft, WalkRight:
		return 6
	}
	return 1
}

// IsDialogOrMenu reports whether the macro continues while text or a menu is visible.
func (k Kind) IsDialogOrMenu() bool {
	return k == AdvanceDialog || k == MenuSelect || k == MenuBack
}

// MapActionToMacro picks the macro for a suggested action. Any visible text
// or dialog turns the suggestion into AdvanceDialog.
func MapActionToMacro(a game.Action, sit game.Situation) Kind {
	if sit.InDialog || sit.HasText {
		return AdvanceDialog
	}
	switch a {
	case game.ActionUp:
		return WalkUp
	case game.ActionDown:
		return WalkDown
	case game.ActionLeft:
		return WalkLeft
	case game.ActionRight:
		return WalkRight
	case game.ActionB:
		return MenuBack
	case game.ActionStart:
		return PressStart
	}
	return MenuSelect
}

// #endregion kinds

// #region state
const (
	stateIdle    = "idle"
	stateRunning = "running"
	eventStart   = "start"
	eventStop    = "stop"
)

// Active is the running macro of a client.
type Active struct {
	Kind      Kind
	TicksLeft int
}

// Outcome describes what Process did for a frame.
type Outcome struct {
	Action    game.Action
	Macro     Kind
	Continued bool
	// Stopped is the macro cut short on this frame, if any.
	Stopped Kind
	// Finished is set when Action used the macro's last tick.
	Finished bool
}

type client struct {
	machine *fsm.FSM
	active  Active
}

func newClient() *client {
	return &client{machine: fsm.NewFSM(stateIdle, fsm.Events{
		{Name: eventStart, Src: []string{stateIdle}, Dst: stateRunning},
		{Name: eventStop, Src: []string{stateRunning}, Dst: stateIdle},
	}, fsm.Callbacks{})}
}

func (c *client) running() bool { return c.machine.Current() == stateRunning }

// #endregion state

// #region manager
// Manager runs one macro state machine per client.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func NewManager() *Manager {
	return &Manager{clients: make(map[string]*client)}
}

// Process continues the client's running macro when its continuation
// condition holds and ticks remain; otherwise it stops it and starts a new
// macro from the suggested action.
func (m *Manager) Process(ctx context.Context, clientID string, suggested game.Action, sit game.Situation, imageChanged bool) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		c = newClient()
		m.clients[clientID] = c
	}

	var out Outcome
	if c.running() {
		if continues(c.active.Kind, sit, imageChanged) && c.active.TicksLeft > 0 {
			c.active.TicksLeft--
			out = Outcome{Action: c.active.Kind.Action(), Macro: c.active.Kind, Continued: true}
			return out, c.finishIfSpent(ctx, &out)
		}
		out.Stopped = c.active.Kind
		if err := c.machine.Event(ctx, eventStop); err != nil {
			return Outcome{}, err
		}
		c.active = Active{}
	}

	kind := MapActionToMacro(suggested, sit)
	if err := c.machine.Event(ctx, eventStart); err != nil {
		return Outcome{}, err
	}
	c.active = Active{Kind: kind, TicksLeft: kind.Ticks() - 1}
	monitoring.Logf("[MACRO] client=%s start %s ticks=%d", clientID, kind, kind.Ticks())

	out.Action, out.Macro = kind.Action(), kind
	return out, c.finishIfSpent(ctx, &out)
}

// finishIfSpent returns the client to Idle once no ticks remain, so a
// running macro always has at least one tick left.
func (c *client) finishIfSpent(ctx context.Context, out *Outcome) error {
	if c.active.TicksLeft > 0 {
		return nil
	}
	c.active = Active{}
	out.Finished = true
	return c.machine.Event(ctx, eventStop)
}

func continues(k Kind, sit game.Situation, imageChanged bool) bool {
	if k.IsDialogOrMenu() {
		return sit.InDialog || sit.HasText || sit.HasMenu
	}
	return !(sit.InDialog || sit.HasMenu || imageChanged)
}

// #endregion manager

// #region inspection
// State returns the client's running macro.
func (m *Manager) State(clientID string) (Active, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[clientID]
	if !ok || !c.running() {
		return Active{}, false
	}
	return c.active, true
}

// ActiveMacros returns a copy of every running macro keyed by client.
func (m *Manager) ActiveMacros() map[string]Active {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Active, len(m.clients))
	for id, c := range m.clients {
		if c.running() {
			out[id] = c.active
		}
	}
	return out
}

// ForceStop ends the client's macro, if any.
func (m *Manager) ForceStop(ctx context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok || !c.running() {
		return nil
	}
	c.active = Active{}
	return c.machine.Event(ctx, eventStop)
}

// ClearClient forgets the client's machine.
func (m *Manager) ClearClient(clientID string) {
	m.mu.Lock()
	delete(m.clients, clientID)
	m.mu.Unlock()
}

// Clients returns the ids with a machine, sorted.
func (m *Manager) Clients() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// #endregion inspection
