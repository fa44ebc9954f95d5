package action

// State is a position in the per-invocation lifecycle:
//
//	CREATED -> RUNNING -> (SUCCEEDED | FAILED) -> CLOSED
//
// CLOSED is terminal. SUCCEEDED and FAILED are set at most once.
type State uint8

const (
	StateCreated State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s is an outcome classification or CLOSED.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateClosed
}
