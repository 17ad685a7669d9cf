package ebookbot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	permanent := errors.New("permanent")
	transient := fmt.Errorf("%w: flaky", ErrTransient)

	tests := []struct {
		name         string
		attempts     int
		failures     int
		err          error
		wantCalls    int
		wantAttempts int
		wantErr      bool
	}{
		{"succeeds first time", 3, 0, nil, 1, 1, false},
		{"succeeds after transient", 3, 2, transient, 3, 3, false},
		{"ceiling reached", 3, 10, transient, 3, 3, true},
		{"permanent not retried", 3, 10, permanent, 1, 1, true},
		{"zero attempts means one", 0, 10, transient, 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			attempts, err := retry(context.Background(), tt.attempts, time.Millisecond, IsTransient, discardLogger(),
				func(context.Context) error {
					calls++
					if calls <= tt.failures {
						return tt.err
					}
					return nil
				})
			if calls != tt.wantCalls || attempts != tt.wantAttempts {
				t.Errorf("calls = %d, attempts = %d, want %d and %d", calls, attempts, tt.wantCalls, tt.wantAttempts)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry(ctx, 5, time.Hour, always, discardLogger(), func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
