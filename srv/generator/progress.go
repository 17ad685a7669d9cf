package generator

import (
	"fmt"
	"sync"
	"time"

	ebookbot "github.com/opd-ai/ebookbot/src"
)

type WSMessage struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the JSON view of a run returned by the status endpoint.
type Status struct {
	ID        string               `json:"id"`
	State     ebookbot.State       `json:"state"`
	Done      bool                 `json:"done"`
	Error     string               `json:"error,omitempty"`
	StartTime time.Time            `json:"start_time"`
	Summary   *ebookbot.RunSummary `json:"summary,omitempty"`
}

// Progress tracks one run and fans its messages out to websocket clients.
type Progress struct {
	mu          sync.RWMutex
	RunID       string
	State       ebookbot.State
	Err         error
	Summary     *ebookbot.RunSummary
	StartTime   time.Time
	history     []WSMessage
	subscribers map[chan WSMessage]struct{}
	done        chan struct{}
}

func NewProgress(runID string) *Progress {
	return &Progress{
		RunID:       runID,
		State:       ebookbot.StateNotStarted,
		StartTime:   time.Now(),
		subscribers: make(map[chan WSMessage]struct{}),
		done:        make(chan struct{}),
	}
}

// Observe records a pipeline state transition. It satisfies ebookbot.Observer.
func (p *Progress) Observe(from, to ebookbot.State) {
	p.mu.Lock()
	p.State = to
	p.mu.Unlock()
	p.SendUpdate("state", fmt.Sprintf("%s -> %s", from, to))
}

// SendUpdate stores msg in the history and delivers it to every subscriber.
// Slow subscribers miss messages rather than block the run.
func (p *Progress) SendUpdate(msgType, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := WSMessage{
		Type:      msgType,
		Status:    string(p.State),
		Message:   message,
		Timestamp: time.Now(),
	}
	p.history = append(p.history, msg)
	for ch := range p.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe returns the messages sent so far and a channel for the rest.
// The channel is closed when the run finishes or cancel is called.
func (p *Progress) Subscribe() ([]WSMessage, <-chan WSMessage, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	history := make([]WSMessage, len(p.history))
	copy(history, p.history)
	ch := make(chan WSMessage, 64)
	if p.isDone() {
		close(ch)
		return history, ch, func() {}
	}
	p.subscribers[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.subscribers[ch]; ok {
				delete(p.subscribers, ch)
				close(ch)
			}
		})
	}
	return history, ch, cancel
}

// Finish records the outcome of the run and closes every subscription.
func (p *Progress) Finish(summary *ebookbot.RunSummary, err error) {
	msg := "Ebook generation completed"
	if err != nil {
		msg = fmt.Sprintf("Ebook generation failed: %v", err)
	}

	p.mu.Lock()
	p.Summary = summary
	p.Err = err
	if summary != nil && summary.State != "" {
		p.State = summary.State
	} else if err != nil {
		p.State = ebookbot.StateFailed
	}
	p.mu.Unlock()

	p.SendUpdate("done", msg)

	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subscribers {
		delete(p.subscribers, ch)
		close(ch)
	}
	close(p.done)
}

// Done is closed when the run has finished.
func (p *Progress) Done() <-chan struct{} {
	return p.done
}

func (p *Progress) IsDone() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isDone()
}

func (p *Progress) isDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Progress) Snapshot() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Status{
		ID:        p.RunID,
		State:     p.State,
		Done:      p.isDone(),
		StartTime: p.StartTime,
		Summary:   p.Summary,
	}
	if p.Err != nil {
		s.Error = p.Err.Error()
	}
	return s
}
