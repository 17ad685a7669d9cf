package generator

import (
	"errors"
	"testing"
	"time"

	ebookbot "github.com/opd-ai/ebookbot/src"
)

func TestProgressObserveAndFinish(t *testing.T) {
	p := NewProgress("run-1")
	history, updates, cancel := p.Subscribe()
	defer cancel()
	if len(history) != 0 {
		t.Fatalf("history = %v, want empty", history)
	}

	p.Observe(ebookbot.StateNotStarted, ebookbot.StateStructuring)
	select {
	case msg := <-updates:
		if msg.Type != "state" || msg.Status != string(ebookbot.StateStructuring) {
			t.Errorf("message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	summary := &ebookbot.RunSummary{RunID: "x", State: ebookbot.StateDone}
	p.Finish(summary, nil)

	var last WSMessage
	for msg := range updates {
		last = msg
	}
	if last.Type != "done" {
		t.Errorf("last message = %+v, want done", last)
	}
	if !p.IsDone() {
		t.Error("IsDone() = false after Finish")
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done() not closed")
	}

	s := p.Snapshot()
	if s.ID != "run-1" || s.State != ebookbot.StateDone || !s.Done || s.Summary != summary || s.Error != "" {
		t.Errorf("Snapshot() = %+v", s)
	}
}

func TestProgressFinishWithError(t *testing.T) {
	p := NewProgress("run-2")
	p.Finish(nil, errors.New("no source"))

	s := p.Snapshot()
	if s.State != ebookbot.StateFailed || s.Error != "no source" {
		t.Errorf("Snapshot() = %+v", s)
	}

	history, updates, _ := p.Subscribe()
	if len(history) != 1 || history[0].Type != "done" {
		t.Errorf("history = %+v", history)
	}
	if _, ok := <-updates; ok {
		t.Error("subscription after Finish should be closed")
	}
}

func TestProgressCancelSubscription(t *testing.T) {
	p := NewProgress("run-3")
	_, updates, cancel := p.Subscribe()
	cancel()
	cancel()
	if _, ok := <-updates; ok {
		t.Error("channel open after cancel")
	}
	// Sending after a subscriber left must not block or panic.
	p.SendUpdate("update", "still running")
	p.Finish(nil, nil)
}
