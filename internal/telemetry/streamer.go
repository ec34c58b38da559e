package telemetry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/KaraAliOsman/Trabajo-3/internal/metrics"
)

// DefaultCadence is the nominal interval between ticks.
const DefaultCadence = time.Second

// DefaultMissionID is the mission simulated when none is configured.
const DefaultMissionID int64 = 1

// Appender persists one sample. Implementations must be safe for concurrent
// use by independent streams.
type Appender interface {
	Append(ctx context.Context, s Sample) (Ack, error)
}

// Ack acknowledges a durable append.
type Ack struct {
	ID int64
}

// Observer is notified of every persisted sample. Errors are logged only.
type Observer interface {
	Observe(ctx context.Context, s Sample) error
}

// EmitFunc pushes one sample to the stream subscriber.
type EmitFunc func(Sample) error

// Streamer drives a Generator for a single subscriber.
type Streamer struct {
	gen       *Generator
	store     Appender
	clock     Clock
	cadence   time.Duration
	missionID int64
	observers []Observer
	logger    *log.Logger
	metrics   *metrics.Collectors
}

type Option func(*Streamer)

func WithClock(c Clock) Option {
	return func(s *Streamer) { s.clock = c }
}

func WithCadence(d time.Duration) Option {
	return func(s *Streamer) {
		if d > 0 {
			s.cadence = d
		}
	}
}

func WithMissionID(id int64) Option {
	return func(s *Streamer) { s.missionID = id }
}

func WithObserver(o Observer) Option {
	return func(s *Streamer) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Streamer) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Streamer) { s.metrics = m }
}

func NewStreamer(gen *Generator, store Appender, opts ...Option) *Streamer {
	s := &Streamer{
		gen:       gen,
		store:     store,
		clock:     RealClock{},
		cadence:   DefaultCadence,
		missionID: DefaultMissionID,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run produces samples until ctx is cancelled or a tick fails. Each tick
// advances the simulation, appends the sample and then emits it. The first
// sample is produced immediately; later ones follow the ticker.
//
// Run returns ctx.Err() on cancellation, a *StorageError when the append
// fails and a *TransportError when emit fails. Nothing is retried.
func (s *Streamer) Run(ctx context.Context, emit EmitFunc) error {
	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	ticker := s.clock.NewTicker(s.cadence)
	defer ticker.Stop()

	state := InitialState(s.missionID)
	var last time.Time
	for ticks := 0; ; ticks++ {
		if err := ctx.Err(); err != nil {
			s.logger.Printf("[telemetry] mission %d stream cancelled after %d samples", s.missionID, ticks)
			return err
		}

		now := s.clock.Now().UTC().Truncate(time.Microsecond)
		if !now.After(last) {
			now = last.Add(time.Microsecond)
		}
		last = now

		var sample Sample
		state, sample = s.gen.Advance(state, now)

		if _, err := s.store.Append(ctx, sample); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.logger.Printf("[telemetry] mission %d stream cancelled during append after %d samples", s.missionID, ticks)
				return ctxErr
			}
			s.metrics.StoreFailed()
			var se *StorageError
			if !errors.As(err, &se) {
				se = &StorageError{Op: "append", Err: err}
			}
			s.logger.Printf("[telemetry] mission %d append failed: %v", s.missionID, se)
			return se
		}
		s.metrics.SampleStored()

		for _, o := range s.observers {
			if err := o.Observe(ctx, sample); err != nil {
				s.logger.Printf("[telemetry] mission %d observer failed: %v", s.missionID, err)
			}
		}

		if err := emit(sample); err != nil {
			s.logger.Printf("[telemetry] mission %d push failed: %v", s.missionID, err)
			return &TransportError{Err: err}
		}

		select {
		case <-ctx.Done():
		case <-ticker.C():
		}
	}
}
