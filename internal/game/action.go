package game

// #region action
// Action is a single controller button press.
type Action string

const (
	ActionA      Action = "A"
	ActionB      Action = "B"
	ActionUp     Action = "UP"
	ActionDown   Action = "DOWN"
	ActionLeft   Action = "LEFT"
	ActionRight  Action = "RIGHT"
	ActionStart  Action = "START"
	ActionSelect Action = "SELECT"
	ActionL      Action = "L"
	ActionR      Action = "R"
	ActionX      Action = "X"
)

// actionTable maps policy output indices to actions. The order is fixed.
var actionTable = [...]Action{
	ActionA, ActionB, ActionUp, ActionDown, ActionLeft, ActionRight,
	ActionStart, ActionSelect, ActionL, ActionR, ActionX,
}

// NumActions is the number of actions addressable by a policy prediction.
const NumActions = len(actionTable)

// #endregion action

// #region index-mapping
// ActionFromIndex returns the action at policy index i.
func ActionFromIndex(i int) (Action, bool) {
	if i < 0 || i >= len(actionTable) {
		return "", false
	}
	return actionTable[i], true
}

// Index returns the policy index of a, or -1 if a is not in the table.
func (a Action) Index() int {
	for i, x := range actionTable {
		if x == a {
			return i
		}
	}
	return -1
}

// Actions returns a copy of the action table in index order.
func Actions() []Action {
	out := make([]Action, len(actionTable))
	copy(out, actionTable[:])
	return out
}

// IsDirectional reports whether a is a d-pad direction.
func (a Action) IsDirectional() bool {
	switch a {
	case ActionUp, ActionDown, ActionLeft, ActionRight:
		return true
	}
	return false
}

// #endregion index-mapping
