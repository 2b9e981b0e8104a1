package session

// State is a position in the visit lifecycle:
//
//	INIT → CLASSIFYING → {CLOAKED | GATED} → READY → REDIRECTED
//
// NOT_FOUND, FAILED and ABANDONED are terminal side exits.
type State int

const (
	StateInit State = iota
	StateClassifying
	StateCloaked
	StateGated
	StateReady
	StateRedirected
	StateNotFound
	StateFailed
	StateAbandoned
)

var stateNames = [...]string{
	StateInit:        "INIT",
	StateClassifying: "CLASSIFYING",
	StateCloaked:     "CLOAKED",
	StateGated:       "GATED",
	StateReady:       "READY",
	StateRedirected:  "REDIRECTED",
	StateNotFound:    "NOT_FOUND",
	StateFailed:      "FAILED",
	StateAbandoned:   "ABANDONED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateCloaked, StateRedirected, StateNotFound, StateFailed, StateAbandoned:
		return true
	default:
		return false
	}
}
