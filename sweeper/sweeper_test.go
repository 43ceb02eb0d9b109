package sweeper_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/escrow/sweeper"
)

type fakeTarget struct {
	calls atomic.Int32
	n     int
	err   error
}

func (f *fakeTarget) SweepMatured(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("scan without deadline")
	}
	return f.n, f.err
}

func quiet() sweeper.Option {
	return sweeper.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"", false},
		{"@every 30s", false},
		{"*/5 * * * *", false},
		{"every minute", true},
		{"61 * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			s, err := sweeper.New(&fakeTarget{}, tt.schedule, quiet())
			if tt.wantErr {
				if !errors.Is(err, sweeper.ErrInvalidSchedule) {
					t.Fatalf("err = %v, want ErrInvalidSchedule", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tt.schedule == "" && s.Schedule() != sweeper.DefaultSchedule {
				t.Errorf("Schedule() = %q, want default", s.Schedule())
			}
		})
	}
}

func TestRunOnce(t *testing.T) {
	target := &fakeTarget{n: 3}
	s, err := sweeper.New(target, "", quiet())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if n, err := s.RunOnce(context.Background()); err != nil || n != 3 {
			t.Fatalf("RunOnce = %d, %v", n, err)
		}
	}
	if runs, matured := s.Stats(); runs != 2 || matured != 6 {
		t.Errorf("Stats() = %d, %d; want 2, 6", runs, matured)
	}
}

func TestRunOncePropagatesError(t *testing.T) {
	boom := errors.New("store down")
	s, _ := sweeper.New(&fakeTarget{err: boom}, "", quiet())
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestStartStop(t *testing.T) {
	target := &fakeTarget{n: 1}
	s, err := sweeper.New(target, "@every 1s", quiet())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	// A second Start is a no-op.
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for target.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()
	s.Stop()

	if target.calls.Load() == 0 {
		t.Fatal("scheduled scan never ran")
	}
	calls := target.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	if got := target.calls.Load(); got != calls {
		t.Errorf("scans continued after Stop: %d -> %d", calls, got)
	}
}
