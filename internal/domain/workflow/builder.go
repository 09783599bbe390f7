package workflow

import (
	"context"
	"fmt"
)

// StateType is satisfied by the typed status strings of the domain
type StateType interface {
	~string
	IsValid() bool
}

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder[S StateType] interface {
	// Configure returns a state configuration for the given state
	Configure(state S) StateConfiguration[S]

	// Build creates a new state machine instance with the given initial state
	Build(initialState S) StateMachine[S]
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration[S StateType] interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState S) StateConfiguration[S]

	// PermitIf allows a trigger to transition to the target state if the guard condition passes
	PermitIf(trigger Trigger, toState S, guard GuardFunc) StateConfiguration[S]
}

type transition[S StateType] struct {
	toState S
	guard   GuardFunc
}

type stateConfig[S StateType] struct {
	fromState   S
	transitions map[Trigger][]transition[S]
}

type stateMachineBuilder[S StateType] struct {
	configurations map[S]*stateConfig[S]
}

type stateMachine[S StateType] struct {
	currentState   S
	configurations map[S]*stateConfig[S]
}

// NewBuilder creates a new state machine builder
func NewBuilder[S StateType]() StateMachineBuilder[S] {
	return &stateMachineBuilder[S]{
		configurations: make(map[S]*stateConfig[S]),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder[S]) Configure(state S) StateConfiguration[S] {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", string(state)))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig[S]{
			fromState:   state,
			transitions: make(map[Trigger][]transition[S]),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial state.
// Configurations are copied so later builder changes never leak into built machines.
func (b *stateMachineBuilder[S]) Build(initialState S) StateMachine[S] {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", string(initialState)))
	}

	configsCopy := make(map[S]*stateConfig[S], len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Trigger][]transition[S], len(config.transitions))
		for trigger, transitions := range config.transitions {
			transitionsCopy[trigger] = append([]transition[S]{}, transitions...)
		}
		configsCopy[state] = &stateConfig[S]{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	return &stateMachine[S]{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig[S]) Permit(trigger Trigger, toState S) StateConfiguration[S] {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard condition passes
func (c *stateConfig[S]) PermitIf(trigger Trigger, toState S, guard GuardFunc) StateConfiguration[S] {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", string(toState)))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition[S]{
		toState: toState,
		guard:   guard,
	})

	return c
}

// State returns the current state
func (m *stateMachine[S]) State() S {
	return m.currentState
}

// CanFire returns true if the trigger is configured in the current state.
// Guards are not evaluated here since they need a context.
func (m *stateMachine[S]) CanFire(trigger Trigger) bool {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return false
	}
	return len(config.transitions[trigger]) > 0
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed
func (m *stateMachine[S]) Fire(ctx context.Context, trigger Trigger) error {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s (no configuration)", ErrInvalidTransition, trigger, string(m.currentState))
	}

	transitions := config.transitions[trigger]
	if len(transitions) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, string(m.currentState))
	}

	// First transition whose guard passes wins
	for _, t := range transitions {
		if t.guard == nil || t.guard(ctx) {
			m.currentState = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, string(m.currentState))
}

// PermittedTriggers returns all triggers configured for the current state
func (m *stateMachine[S]) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}

	return triggers
}
