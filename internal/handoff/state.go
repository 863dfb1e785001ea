package handoff

import "sync"

// State is the hand-off lifecycle position of a case, keyed by origin timestamp.
type State int

const (
	StateOpen State = iota
	StateOffered
	StateProcessing
	StateHandedOff
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOffered:
		return "offered"
	case StateProcessing:
		return "processing"
	case StateHandedOff:
		return "handed_off"
	case StateFailed:
		return "failed"
	default:
		return "open"
	}
}

// stateTable is the in-memory case state machine. Transitions are guarded by
// compare-and-swap under a single lock, which makes claim/release the
// concurrency barrier for duplicate button clicks instead of inspecting the
// displayed message content.
//
// Entries for cases offered before a restart are absent; an unknown case is
// claimable (the offer message still exists on the platform).
type stateTable struct {
	mu sync.Mutex
	m  map[string]State
}

func newStateTable() *stateTable {
	return &stateTable{m: make(map[string]State)}
}

// get returns the recorded state, StateOpen when unknown.
func (t *stateTable) get(ts string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[ts]
}

// claim moves the case to Processing unless it is already being processed or
// has been handed off. Returns false when the claim loses; the caller must
// treat the click as a duplicate and never post to the destination again.
func (t *stateTable) claim(ts string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.m[ts]
	if cur == StateProcessing || cur == StateHandedOff {
		return cur, false
	}
	t.m[ts] = StateProcessing
	return cur, true
}

// set records a state unconditionally (used by the holder of a claim).
func (t *stateTable) set(ts string, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[ts] = s
}
