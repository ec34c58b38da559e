package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/KaraAliOsman/Trabajo-3/internal/metrics"
)

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	step   time.Duration
	ticker *manualTicker
	ready  chan struct{}
}

func newManualClock(start time.Time, step time.Duration) *manualClock {
	return &manualClock{now: start, step: step, ready: make(chan struct{})}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticker = &manualTicker{ch: make(chan time.Time)}
	close(c.ready)
	return c.ticker
}

// tick advances the clock one step and fires the ticker. It blocks until the
// streamer is waiting on it.
func (c *manualClock) tick(t *testing.T) {
	t.Helper()
	<-c.ready
	c.mu.Lock()
	c.now = c.now.Add(c.step)
	now := c.now
	tk := c.ticker
	c.mu.Unlock()
	select {
	case tk.ch <- now:
	case <-time.After(2 * time.Second):
		t.Fatal("streamer never waited on the ticker")
	}
}

type manualTicker struct {
	ch      chan time.Time
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop() { m.stopped = true }

type recordingAppender struct {
	mu      sync.Mutex
	samples []Sample
	failAt  int
}

func (r *recordingAppender) Append(_ context.Context, s Sample) (Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.samples)+1 == r.failAt {
		return Ack{}, errors.New("disk unavailable")
	}
	r.samples = append(r.samples, s)
	return Ack{ID: int64(len(r.samples))}, nil
}

func (r *recordingAppender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func receive(t *testing.T, ch <-chan Sample) Sample {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sample")
	}
	return Sample{}
}

func TestStreamerPersistsThenEmitsInOrder(t *testing.T) {
	clock := newManualClock(epoch, time.Second)
	store := &recordingAppender{}
	s := NewStreamer(NewSeededGenerator(1), store, WithClock(clock), WithLogger(quietLogger()), WithMissionID(3))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Sample, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(sample Sample) error {
			if store.count() == 0 {
				t.Error("sample emitted before it was persisted")
			}
			got <- sample
			return nil
		})
	}()

	var emitted []Sample
	emitted = append(emitted, receive(t, got))
	for i := 0; i < 4; i++ {
		clock.tick(t)
		emitted = append(emitted, receive(t, got))
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !clock.ticker.stopped {
		t.Fatal("ticker was not stopped")
	}
	if store.count() != len(emitted) {
		t.Fatalf("persisted %d samples but emitted %d", store.count(), len(emitted))
	}
	for i, sample := range emitted {
		if sample != store.samples[i] {
			t.Fatalf("sample %d differs between store and stream", i)
		}
		if sample.MissionID != 3 {
			t.Fatalf("unexpected mission id %d", sample.MissionID)
		}
		if i > 0 && !sample.Timestamp.After(emitted[i-1].Timestamp) {
			t.Fatalf("timestamps not increasing at %d", i)
		}
	}
}

func TestStreamerTimestampsIncreaseOnFrozenClock(t *testing.T) {
	clock := newManualClock(epoch, 0)
	store := &recordingAppender{}
	s := NewStreamer(NewSeededGenerator(2), store, WithClock(clock), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Sample, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(sample Sample) error { got <- sample; return nil })
	}()

	prev := receive(t, got)
	for i := 0; i < 3; i++ {
		clock.tick(t)
		next := receive(t, got)
		if !next.Timestamp.After(prev.Timestamp) {
			t.Fatalf("timestamp %v did not advance past %v", next.Timestamp, prev.Timestamp)
		}
		prev = next
	}
	cancel()
	<-done
}

func TestStreamerStopsOnCancelWithoutFurtherWrites(t *testing.T) {
	clock := newManualClock(epoch, time.Second)
	store := &recordingAppender{}
	s := NewStreamer(NewSeededGenerator(3), store, WithClock(clock), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Sample, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(sample Sample) error { got <- sample; return nil })
	}()

	receive(t, got)
	clock.tick(t)
	receive(t, got)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
	if n := store.count(); n != 2 {
		t.Fatalf("expected 2 writes, got %d", n)
	}
}

func TestStreamerStorageErrorEndsStream(t *testing.T) {
	clock := newManualClock(epoch, time.Second)
	store := &recordingAppender{failAt: 3}
	s := NewStreamer(NewSeededGenerator(4), store, WithClock(clock), WithLogger(quietLogger()))

	got := make(chan Sample, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), func(sample Sample) error { got <- sample; return nil })
	}()

	receive(t, got)
	clock.tick(t)
	receive(t, got)
	clock.tick(t)

	err := <-done
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if len(got) != 0 {
		t.Fatal("failed sample must not be emitted")
	}
}

func TestStreamerTransportErrorEndsStream(t *testing.T) {
	store := &recordingAppender{}
	s := NewStreamer(NewSeededGenerator(5), store, WithClock(newManualClock(epoch, time.Second)), WithLogger(quietLogger()))

	sendErr := errors.New("broken pipe")
	err := s.Run(context.Background(), func(Sample) error { return sendErr })

	var te *TransportError
	if !errors.As(err, &te) || !errors.Is(err, sendErr) {
		t.Fatalf("expected TransportError wrapping send error, got %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("expected the sample to be persisted once, got %d", store.count())
	}
}

type countingObserver struct {
	mu   sync.Mutex
	seen int
}

func (o *countingObserver) Observe(context.Context, Sample) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen++
	return errors.New("broker down")
}

func TestStreamerObserverErrorsAreNotFatal(t *testing.T) {
	clock := newManualClock(epoch, time.Second)
	obs := &countingObserver{}
	s := NewStreamer(NewSeededGenerator(6), &recordingAppender{}, WithClock(clock), WithObserver(obs), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Sample, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(sample Sample) error { got <- sample; return nil })
	}()

	receive(t, got)
	clock.tick(t)
	receive(t, got)
	cancel()
	<-done

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.seen != 2 {
		t.Fatalf("observer saw %d samples, want 2", obs.seen)
	}
}

func TestStreamerRunsOnRealClock(t *testing.T) {
	store := &recordingAppender{}
	s := NewStreamer(NewSeededGenerator(7), store, WithCadence(5*time.Millisecond), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	err := s.Run(ctx, func(Sample) error {
		n++
		if n == 3 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if store.count() != 3 {
		t.Fatalf("expected 3 persisted samples, got %d", store.count())
	}
}

// cancellingAppender simulates the subscriber leaving while a write is in
// flight: the driver reports the context error.
type cancellingAppender struct {
	cancel context.CancelFunc
}

func (a cancellingAppender) Append(ctx context.Context, _ Sample) (Ack, error) {
	a.cancel()
	<-ctx.Done()
	return Ack{}, fmt.Errorf("insert telemetry: %w", ctx.Err())
}

func TestStreamerDisconnectDuringAppendIsNotAStorageError(t *testing.T) {
	m := metrics.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewStreamer(NewSeededGenerator(8), cancellingAppender{cancel: cancel},
		WithClock(newManualClock(epoch, time.Second)), WithLogger(quietLogger()), WithMetrics(m))

	err := s.Run(ctx, func(Sample) error {
		t.Error("nothing may be emitted after the subscriber left")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var se *StorageError
	if errors.As(err, &se) {
		t.Fatalf("cancellation reported as storage failure: %v", err)
	}
	if got := testutil.ToFloat64(m.StoreErrors); got != 0 {
		t.Fatalf("store errors = %v, want 0", got)
	}
}
