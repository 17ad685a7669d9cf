package ebookbot

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is a step of the pipeline.
type State string

const (
	StateNotStarted      State = "NotStarted"
	StateStructuring     State = "Structuring"
	StateLayoutAnalyzing State = "LayoutAnalyzing"
	StateImagePlanning   State = "ImagePlanning"
	StateImageGenerating State = "ImageGenerating"
	StateAligning        State = "Aligning"
	StateRendering       State = "Rendering"
	StateVerifying       State = "Verifying"
	StateDone            State = "Done"
	StateFailed          State = "Failed"
)

var transitions = map[State][]State{
	StateNotStarted:      {StateStructuring, StateFailed},
	StateStructuring:     {StateLayoutAnalyzing, StateImagePlanning, StateFailed},
	StateLayoutAnalyzing: {StateImagePlanning, StateFailed},
	StateImagePlanning:   {StateImageGenerating, StateFailed},
	StateImageGenerating: {StateAligning, StateFailed},
	StateAligning:        {StateRendering, StateFailed},
	StateRendering:       {StateVerifying, StateFailed},
	StateVerifying:       {StateDone, StateStructuring, StateFailed},
}

func (s State) String() string { return string(s) }

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether the pipeline may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Observer is told about every state change of a run.
type Observer func(from, to State)

type stateMachine struct {
	mu       sync.Mutex
	state    State
	observer Observer
	logger   *slog.Logger
}

func newStateMachine(observer Observer, logger *slog.Logger) *stateMachine {
	return &stateMachine{state: StateNotStarted, observer: observer, logger: logger}
}

func (m *stateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stateMachine) transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	m.state = to
	m.mu.Unlock()

	m.logger.Info("state transition", "from", from, "to", to)
	if m.observer != nil {
		m.observer(from, to)
	}
	return nil
}
