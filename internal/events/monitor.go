package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/streadway/amqp"

	"github.com/KaraAliOsman/Trabajo-3/internal/telemetry"
)

// streamIdle is how long a stream may stay silent before its watch is
// forgotten.
const streamIdle = time.Minute

type watchKey struct {
	mission int64
	stream  string
}

type streamWatch struct {
	status  telemetry.Status
	last    time.Time
	lowFuel bool
	empty   bool
}

// FlightMonitor turns the telemetry feed into mission status updates. Every
// viewer runs its own simulation, so state is kept per stream: a stream's
// first sample and its orbit insertion become KindStatus updates, crossing
// the low fuel level and running dry become KindAlert updates.
type FlightMonitor struct {
	name         string
	lowFuelLevel float64

	mu       sync.Mutex
	streams  map[watchKey]*streamWatch
	reported map[int64]bool
}

func NewFlightMonitor(name string, lowFuelLevel float64) *FlightMonitor {
	return &FlightMonitor{
		name:         name,
		lowFuelLevel: lowFuelLevel,
		streams:      make(map[watchKey]*streamWatch),
		reported:     make(map[int64]bool),
	}
}

// Inspect returns the updates that sample s of stream streamID gives rise to.
func (m *FlightMonitor) Inspect(streamID string, s telemetry.Sample) []StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []StatusUpdate
	update := func(kind, status, msg string) {
		out = append(out, StatusUpdate{
			MissionID: s.MissionID,
			Kind:      kind,
			Status:    status,
			Message:   msg,
			Source:    m.name,
			Time:      s.Timestamp,
		})
	}

	key := watchKey{mission: s.MissionID, stream: streamID}
	w, ok := m.streams[key]
	switch {
	case !ok && !m.reported[s.MissionID]:
		update(KindStatus, s.Status.String(), "Telemetría recibida")
	case !ok:
		update(KindStatus, s.Status.String(), "Nueva secuencia de lanzamiento")
	case w.status != s.Status && s.Status == telemetry.StatusInOrbit:
		update(KindStatus, s.Status.String(), fmt.Sprintf("Inserción orbital a %.0f m", s.Altitude))
	case w.status != s.Status:
		update(KindStatus, s.Status.String(), "Cambio de estado")
	}
	if !ok {
		w = &streamWatch{}
		m.streams[key] = w
		m.reported[s.MissionID] = true
	}
	w.status = s.Status
	w.last = s.Timestamp

	if !w.lowFuel && s.Fuel <= m.lowFuelLevel {
		w.lowFuel = true
		update(KindAlert, "Combustible bajo", fmt.Sprintf("Combustible al %.1f%%", s.Fuel))
	}
	if !w.empty && s.Fuel == 0 {
		w.empty = true
		update(KindAlert, "Sin combustible", "Tanques vacíos")
	}

	for k, other := range m.streams {
		if s.Timestamp.Sub(other.last) > streamIdle {
			delete(m.streams, k)
		}
	}
	return out
}

// watching reports how many streams are tracked.
func (m *FlightMonitor) watching() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// MonitorWorkers consumes the telemetry exchange and publishes status updates.
// Samples are sharded across workers by mission id so each stream is
// inspected in order.
type MonitorWorkers struct {
	ch          Channel
	exchange    string
	statusQueue string
	monitor     *FlightMonitor
	workers     int
	logger      *log.Logger

	pubMu sync.Mutex
}

func NewMonitorWorkers(ch Channel, exchange, statusQueue string, monitor *FlightMonitor, workers int, logger *log.Logger) *MonitorWorkers {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MonitorWorkers{
		ch:          ch,
		exchange:    exchange,
		statusQueue: statusQueue,
		monitor:     monitor,
		workers:     workers,
		logger:      logger,
	}
}

// Run binds an exclusive queue to the exchange and processes deliveries until
// ctx ends or the broker closes the channel.
func (w *MonitorWorkers) Run(ctx context.Context) error {
	q, err := w.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare monitor queue: %w", err)
	}
	if err := w.ch.QueueBind(q.Name, "", w.exchange, false, nil); err != nil {
		return fmt.Errorf("bind monitor queue: %w", err)
	}
	msgs, err := w.ch.Consume(q.Name, w.monitor.name, true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	shards := make([]chan tapped, w.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan tapped, 64)
		wg.Add(1)
		go func(in <-chan tapped) {
			defer wg.Done()
			for t := range in {
				w.handle(t)
			}
		}(shards[i])
	}
	defer func() {
		for _, sh := range shards {
			close(sh)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			t, err := decodeSample(msg)
			if err != nil {
				w.logger.Printf("[%s] dropping delivery: %v", w.monitor.name, err)
				continue
			}
			idx := int(uint64(t.sample.MissionID) % uint64(w.workers))
			select {
			case shards[idx] <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *MonitorWorkers) handle(t tapped) {
	for _, upd := range w.monitor.Inspect(t.stream, t.sample) {
		w.pubMu.Lock()
		err := PublishStatus(w.ch, w.statusQueue, upd)
		w.pubMu.Unlock()
		if err != nil {
			w.logger.Printf("[%s] publish status failed: %v", w.monitor.name, err)
			continue
		}
		w.logger.Printf("[%s] mission %d %s: %s (%s)", w.monitor.name, upd.MissionID, upd.Kind, upd.Status, upd.Message)
	}
}

// decodeSample reads a tapped sample; the message id names its stream.
func decodeSample(msg amqp.Delivery) (tapped, error) {
	t := tapped{stream: msg.MessageId}
	if err := json.Unmarshal(msg.Body, &t.sample); err != nil {
		return t, fmt.Errorf("unmarshal sample: %w", err)
	}
	return t, nil
}
