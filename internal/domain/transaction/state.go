package transaction

// State is the lifecycle position of a transaction handle.
//
//	Active -> Committed
//	Active -> RolledBack -> Disposed
//
// Committed and RolledBack are mutually exclusive; nothing returns to Active.
type State int

const (
	Active State = iota
	Committed
	RolledBack
	Disposed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether a handle in state s may move to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case Active:
		return next == Committed || next == RolledBack || next == Disposed
	case Committed, RolledBack:
		return next == Disposed
	default:
		return false
	}
}
