package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"

	amqp "github.com/streadway/amqp"

	"github.com/KaraAliOsman/Trabajo-3/internal/metrics"
	"github.com/KaraAliOsman/Trabajo-3/internal/telemetry"
)

// DefaultTapQueue is how many samples may wait for the broker before the tap
// starts dropping them.
const DefaultTapQueue = 256

// ErrTapFull is returned when a sample is dropped because the publish queue
// is full.
var ErrTapFull = errors.New("telemetry tap queue full")

type tapped struct {
	stream string
	sample telemetry.Sample
}

// Publisher taps persisted samples onto the telemetry exchange. Streams hand
// samples to a queue and Run publishes them, so a slow broker never holds up
// a stream.
type Publisher struct {
	ch       Channel
	exchange string
	queue    chan tapped
	logger   *log.Logger
	metrics  *metrics.Collectors
}

func NewPublisher(ch Channel, exchange string, queueSize int, logger *log.Logger, m *metrics.Collectors) *Publisher {
	if queueSize < 1 {
		queueSize = DefaultTapQueue
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		queue:    make(chan tapped, queueSize),
		logger:   logger,
		metrics:  m,
	}
}

// ForStream returns the observer for one telemetry stream. Its samples carry
// streamID as the AMQP message id.
func (p *Publisher) ForStream(streamID string) telemetry.Observer {
	return streamTap{p: p, stream: streamID}
}

type streamTap struct {
	p      *Publisher
	stream string
}

func (t streamTap) Observe(_ context.Context, s telemetry.Sample) error {
	select {
	case t.p.queue <- tapped{stream: t.stream, sample: s}:
		return nil
	default:
		t.p.metrics.PublishFailed()
		return ErrTapFull
	}
}

// Run publishes queued samples until ctx ends, then flushes what is left.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case t := <-p.queue:
					p.publish(t)
				default:
					return
				}
			}
		case t := <-p.queue:
			p.publish(t)
		}
	}
}

func (p *Publisher) publish(t tapped) {
	body, err := json.Marshal(t.sample)
	if err != nil {
		p.logger.Printf("[events] marshal sample: %v", err)
		return
	}
	err = p.ch.Publish(p.exchange, strconv.FormatInt(t.sample.MissionID, 10), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   t.stream,
		Timestamp:   t.sample.Timestamp,
		Body:        body,
	})
	if err != nil {
		p.metrics.PublishFailed()
		p.logger.Printf("[events] publish sample of mission %d: %v", t.sample.MissionID, err)
	}
}
