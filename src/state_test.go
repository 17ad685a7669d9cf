package ebookbot

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateNotStarted, StateStructuring, true},
		{StateStructuring, StateLayoutAnalyzing, true},
		{StateStructuring, StateImagePlanning, true},
		{StateRendering, StateVerifying, true},
		{StateVerifying, StateStructuring, true},
		{StateVerifying, StateDone, true},
		{StateAligning, StateFailed, true},
		{StateNotStarted, StateRendering, false},
		{StateImagePlanning, StateAligning, false},
		{StateDone, StateStructuring, false},
		{StateFailed, StateStructuring, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateMachine(t *testing.T) {
	var seen []State
	m := newStateMachine(func(from, to State) { seen = append(seen, to) }, discardLogger())

	if err := m.transition(StateStructuring); err != nil {
		t.Fatal(err)
	}
	if err := m.transition(StateDone); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Structuring -> Done error = %v, want ErrIllegalTransition", err)
	}
	if m.Current() != StateStructuring {
		t.Errorf("Current() = %s after rejected transition", m.Current())
	}
	if err := m.transition(StateFailed); err != nil {
		t.Fatal(err)
	}
	if !m.Current().Terminal() {
		t.Error("Failed is not terminal")
	}
	if len(seen) != 2 || seen[1] != StateFailed {
		t.Errorf("observer saw %v", seen)
	}
}
