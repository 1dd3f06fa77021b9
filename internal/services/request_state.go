package services

import "fmt"

// RequestState is the lifecycle of one chat request
type RequestState int

const (
	StateQuoted RequestState = iota
	StateDeducted
	StateGenerating
	StateDelivered
	StateFailed
	StateRefunded
	StateFallbackDelivered
	requestStateCount
)

var requestStateNames = [...]string{
	StateQuoted:            "quoted",
	StateDeducted:          "deducted",
	StateGenerating:        "generating",
	StateDelivered:         "delivered",
	StateFailed:            "failed",
	StateRefunded:          "refunded",
	StateFallbackDelivered: "fallback_delivered",
}

var (
	_ [len(requestStateNames) - int(requestStateCount)]struct{}
	_ [int(requestStateCount) - len(requestStateNames)]struct{}
)

// allowedTransitions is the complete transition table; there is no retry edge
var allowedTransitions = map[RequestState][]RequestState{
	StateQuoted:     {StateDeducted},
	StateDeducted:   {StateGenerating},
	StateGenerating: {StateDelivered, StateFailed},
	StateFailed:     {StateRefunded},
	StateRefunded:   {StateFallbackDelivered},
}

func (s RequestState) String() string {
	if s < 0 || s >= requestStateCount {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return requestStateNames[s]
}

// Terminal reports whether no transition leaves s
func (s RequestState) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// CanTransition reports whether from -> to is a valid edge
func CanTransition(from, to RequestState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RequestLifecycle tracks one request's state. It is owned by a single goroutine.
type RequestLifecycle struct {
	state   RequestState
	history []RequestState
}

// NewRequestLifecycle starts in StateQuoted
func NewRequestLifecycle() *RequestLifecycle {
	return &RequestLifecycle{state: StateQuoted, history: []RequestState{StateQuoted}}
}

// State returns the current state
func (l *RequestLifecycle) State() RequestState {
	return l.state
}

// History returns every state visited, in order
func (l *RequestLifecycle) History() []RequestState {
	return append([]RequestState(nil), l.history...)
}

// Advance moves to next or returns an error for an invalid edge
func (l *RequestLifecycle) Advance(next RequestState) error {
	if !CanTransition(l.state, next) {
		return fmt.Errorf("invalid request transition %s -> %s", l.state, next)
	}
	l.state = next
	l.history = append(l.history, next)
	return nil
}
