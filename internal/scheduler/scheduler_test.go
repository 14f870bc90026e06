package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeContext struct {
	symbol string
	value  any
	stop   *Signal

	mu     *sync.Mutex
	closed *[]string
}

func (f *fakeContext) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.closed = append(*f.closed, f.symbol)
	return nil
}

type recorder struct {
	mu       sync.Mutex
	calls    []string
	closed   []string
	builds   int
	observed []string
}

func (r *recorder) factory(ctx context.Context, symbol string, value any, stop *Signal) (*fakeContext, error) {
	r.mu.Lock()
	r.builds++
	r.mu.Unlock()
	return &fakeContext{symbol: symbol, value: value, stop: stop, mu: &r.mu, closed: &r.closed}, nil
}

func (r *recorder) record(c *fakeContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("%s=%v", c.symbol, c.value))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) ObserveState(state string) {
	r.mu.Lock()
	r.observed = append(r.observed, state)
	r.mu.Unlock()
}

func (r *recorder) ObserveTick(time.Duration) {}

func (r *recorder) ObserveCallbackError(symbol string) {
	r.mu.Lock()
	r.observed = append(r.observed, "error:"+symbol)
	r.mu.Unlock()
}

func newTestScheduler(t *testing.T, r *recorder, opts Options) *Scheduler[*fakeContext] {
	t.Helper()
	opts.Observer = r
	s, err := New[*fakeContext](opts, r.factory, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s
}

func TestRun_InvokesSymbolsInOrderUntilDeadline(t *testing.T) {
	r := &recorder{}
	now := time.Now()
	s := newTestScheduler(t, r, Options{Interval: 40 * time.Millisecond, Start: now, End: now.Add(150 * time.Millisecond)})

	signals := Signals{{Symbol: "a", Value: 1}, {Symbol: "b", Value: 2}}
	err := s.Run(context.Background(), signals, func(ctx context.Context, c *fakeContext) error {
		r.record(c)
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	calls := r.snapshot()
	if len(calls) < 2 || len(calls)%2 != 0 {
		t.Fatalf("expected whole ticks, got %v", calls)
	}
	for i := 0; i < len(calls); i += 2 {
		if calls[i] != "a=1" || calls[i+1] != "b=2" {
			t.Fatalf("unexpected order %v", calls)
		}
	}
	if r.builds != 2 {
		t.Fatalf("expected contexts to be reused across ticks, built %d", r.builds)
	}
	if len(r.closed) != 2 || r.closed[0] != "a" || r.closed[1] != "b" {
		t.Fatalf("expected contexts closed in order, got %v", r.closed)
	}
	if s.State() != StateStopped {
		t.Fatalf("unexpected final state %s", s.State())
	}
}

func TestRun_FailFastOnCallbackError(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, Options{Interval: 10 * time.Millisecond, End: time.Now().Add(time.Second)})
	boom := errors.New("boom")

	signals := Signals{{Symbol: "a", Value: 1}, {Symbol: "b", Value: 2}}
	err := s.Run(context.Background(), signals, func(ctx context.Context, c *fakeContext) error {
		r.record(c)
		if c.symbol == "a" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error to propagate, got %v", err)
	}
	if calls := r.snapshot(); len(calls) != 1 || calls[0] != "a=1" {
		t.Fatalf("second symbol must not run, calls=%v", calls)
	}
	if len(r.closed) != 1 {
		t.Fatalf("expected built context to be closed, got %v", r.closed)
	}
	if s.State() != StateStopped {
		t.Fatalf("unexpected final state %s", s.State())
	}

	found := false
	for _, o := range r.observed {
		if o == "error:a" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected callback error observation, got %v", r.observed)
	}
}

func TestRun_EmptySignalsTerminatesAtDeadline(t *testing.T) {
	r := &recorder{}
	started := time.Now()
	s := newTestScheduler(t, r, Options{Interval: 30 * time.Millisecond, End: started.Add(100 * time.Millisecond)})

	err := s.Run(context.Background(), nil, func(ctx context.Context, c *fakeContext) error {
		t.Errorf("callback must not be invoked")
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	elapsed := time.Since(started)
	if elapsed < 90*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("unexpected run duration %s", elapsed)
	}
}

func TestRun_CallbackStopFinishesTick(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, Options{Interval: 10 * time.Millisecond, End: time.Now().Add(5 * time.Second)})

	signals := Signals{{Symbol: "a", Value: 1}, {Symbol: "b", Value: 2}}
	started := time.Now()
	err := s.Run(context.Background(), signals, func(ctx context.Context, c *fakeContext) error {
		r.record(c)
		if c.symbol == "a" {
			c.stop.Set()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if calls := r.snapshot(); len(calls) != 2 || calls[1] != "b=2" {
		t.Fatalf("expected exactly one full tick, got %v", calls)
	}
	if time.Since(started) > time.Second {
		t.Fatalf("run did not stop promptly")
	}
}

func TestRun_ParentContextCancel(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := s.Run(ctx, Signals{{Symbol: "a", Value: 1}}, func(ctx context.Context, c *fakeContext) error {
		r.record(c)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls := r.snapshot(); len(calls) != 1 {
		t.Fatalf("expected one tick before cancel, got %v", calls)
	}
}

func TestRun_StopFromOutside(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, Options{Interval: time.Hour})

	first := make(chan struct{})
	go func() {
		<-first
		s.Stop()
	}()

	var once sync.Once
	err := s.Run(context.Background(), Signals{{Symbol: "a"}}, func(ctx context.Context, c *fakeContext) error {
		once.Do(func() { close(first) })
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRun_WaitsForStart(t *testing.T) {
	r := &recorder{}
	start := time.Now().Add(80 * time.Millisecond)
	s := newTestScheduler(t, r, Options{Interval: time.Hour, Start: start, End: start.Add(50 * time.Millisecond)})

	var firstCall time.Time
	err := s.Run(context.Background(), Signals{{Symbol: "a"}}, func(ctx context.Context, c *fakeContext) error {
		if firstCall.IsZero() {
			firstCall = time.Now()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if firstCall.Before(start) {
		t.Fatalf("callback ran before start: %s < %s", firstCall, start)
	}
}

func TestRun_EndAlreadyPassed(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, Options{Interval: time.Millisecond, End: time.Now().Add(-time.Minute)})

	err := s.Run(context.Background(), Signals{{Symbol: "a"}}, func(ctx context.Context, c *fakeContext) error {
		r.record(c)
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if calls := r.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no ticks after end time, got %v", calls)
	}
}

func TestRun_RejectsDuplicateSymbols(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(t, r, Options{Interval: time.Second})

	err := s.Run(context.Background(), Signals{{Symbol: "AOT"}, {Symbol: "aot"}}, func(ctx context.Context, c *fakeContext) error {
		return nil
	})
	if !errors.Is(err, ErrDuplicateSymbol) {
		t.Fatalf("expected ErrDuplicateSymbol, got %v", err)
	}
	if r.builds != 0 {
		t.Fatalf("no context should be built")
	}
}

func TestNew_Validation(t *testing.T) {
	r := &recorder{}
	if _, err := New[*fakeContext](Options{}, r.factory, nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	now := time.Now()
	if _, err := New[*fakeContext](Options{Interval: time.Second, Start: now, End: now}, r.factory, nil); err == nil {
		t.Fatalf("expected error when end is not after start")
	}
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	if s.IsSet() {
		t.Fatalf("new signal must be unset")
	}
	if s.Wait(10 * time.Millisecond) {
		t.Fatalf("Wait should time out on unset signal")
	}

	s.Set()
	s.Set()
	if !s.IsSet() || !s.Wait(time.Hour) {
		t.Fatalf("signal should be set")
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("Done channel should be closed")
	}
}

func TestSignal_WaitReturnsPromptly(t *testing.T) {
	s := NewSignal()
	time.AfterFunc(20*time.Millisecond, s.Set)

	started := time.Now()
	if !s.Wait(5 * time.Second) {
		t.Fatalf("Wait should observe Set")
	}
	if time.Since(started) > time.Second {
		t.Fatalf("Wait did not return promptly")
	}
}

func TestTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("16:30")
	if err != nil {
		t.Fatalf("ParseTimeOfDay returned error: %v", err)
	}
	if tod.String() != "16:30:00" {
		t.Fatalf("unexpected time of day %s", tod)
	}

	loc := time.FixedZone("ICT", 7*3600)
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, loc)
	at := tod.On(day)
	if at.Hour() != 16 || at.Minute() != 30 || at.Location() != loc || at.Day() != 1 {
		t.Fatalf("unexpected instant %s", at)
	}
	if got := SecondsUntil(day, at); got != 7.5*3600 {
		t.Fatalf("unexpected SecondsUntil %v", got)
	}
	if got := SecondsUntil(at, day); got >= 0 {
		t.Fatalf("past target should be negative, got %v", got)
	}

	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Fatalf("expected error for invalid hour")
	}
}

func TestSleepUntil(t *testing.T) {
	stop := NewSignal()
	now := time.Now()
	if !SleepUntil(stop, now, now.Add(-time.Second)) {
		t.Fatalf("past target should return immediately without interruption")
	}

	time.AfterFunc(10*time.Millisecond, stop.Set)
	if SleepUntil(stop, time.Now(), time.Now().Add(time.Hour)) {
		t.Fatalf("expected interruption by signal")
	}
}
