package fsm

import (
	"fmt"
	"sync"
)

type State string
type Event string

// Handler is executed after a transition has been applied.
type Handler func(from, to State, event Event) error

type StateMachine struct {
	mu          sync.RWMutex
	current     State
	transitions map[State]map[Event]State
	callbacks   map[State]map[Event]Handler
}

func New(initial State) *StateMachine {
	return &StateMachine{
		current:     initial,
		transitions: make(map[State]map[Event]State),
		callbacks:   make(map[State]map[Event]Handler),
	}
}

func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

func (sm *StateMachine) AddTransition(from, to State, event Event, callback Handler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.transitions[from]; !ok {
		sm.transitions[from] = make(map[Event]State)
		sm.callbacks[from] = make(map[Event]Handler)
	}
	sm.transitions[from][event] = to
	sm.callbacks[from][event] = callback
}

// AddTransitions registers the same event from each of the given states.
func (sm *StateMachine) AddTransitions(froms []State, to State, event Event, callback Handler) {
	for _, from := range froms {
		sm.AddTransition(from, to, event, callback)
	}
}

// Can reports whether event is valid in the current state.
func (sm *StateMachine) Can(event Event) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.transitions[sm.current][event]
	return ok
}

// Fire triggers a state transition. It is thread-safe.
// The new state is committed before the handler runs, and the handler runs
// without the lock held so it may fire follow-up events.
func (sm *StateMachine) Fire(event Event) error {
	sm.mu.Lock()
	from := sm.current
	next, ok := sm.transitions[from][event]
	if !ok {
		sm.mu.Unlock()
		return fmt.Errorf("invalid transition from %s via %s", from, event)
	}
	handler := sm.callbacks[from][event]
	sm.current = next
	sm.mu.Unlock()

	if handler != nil {
		return handler(from, next, event)
	}
	return nil
}

// Personal.AI order the ending
