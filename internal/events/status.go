package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/streadway/amqp"

	"github.com/KaraAliOsman/Trabajo-3/internal/metrics"
	"github.com/KaraAliOsman/Trabajo-3/internal/store"
)

// Update kinds.
const (
	KindStatus = "status" // changes the mission status and records it
	KindAlert  = "alert"  // recorded in the history only
)

// StatusUpdate is published by the flight monitor for the console.
type StatusUpdate struct {
	MissionID int64     `json:"mission_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Source    string    `json:"source,omitempty"`
	Time      time.Time `json:"time"`
}

// PublishStatus sends u to queue on the default exchange.
func PublishStatus(ch Channel, queue string, u StatusUpdate) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}
	return ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// StatusSink is where applied updates land.
type StatusSink interface {
	store.MissionStore
	store.HistoryStore
}

// StatusConsumer applies status updates from the flight monitor to missions
// and their history.
type StatusConsumer struct {
	ch      Channel
	queue   string
	sink    StatusSink
	logger  *log.Logger
	metrics *metrics.Collectors
}

func NewStatusConsumer(ch Channel, queue string, sink StatusSink, logger *log.Logger, m *metrics.Collectors) *StatusConsumer {
	if logger == nil {
		logger = log.Default()
	}
	return &StatusConsumer{ch: ch, queue: queue, sink: sink, logger: logger, metrics: m}
}

// Run consumes the status queue until ctx ends or the delivery channel closes.
func (c *StatusConsumer) Run(ctx context.Context) error {
	msgs, err := c.ch.Consume(c.queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer on %s: %w", c.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var upd StatusUpdate
			if err := json.Unmarshal(msg.Body, &upd); err != nil {
				c.logger.Printf("[status] update unmarshal error: %v", err)
				continue
			}
			if err := c.Apply(ctx, upd); err != nil {
				c.logger.Printf("[status] mission %d: %v", upd.MissionID, err)
			}
		}
	}
}

// Apply records one update.
func (c *StatusConsumer) Apply(ctx context.Context, upd StatusUpdate) error {
	switch upd.Kind {
	case KindStatus:
		if err := c.sink.UpdateMissionStatus(ctx, upd.MissionID, upd.Status); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
	case KindAlert:
	default:
		return fmt.Errorf("unknown update kind %q", upd.Kind)
	}
	if err := c.sink.AddEvent(ctx, upd.MissionID, store.StatusEvent{
		Status:  upd.Status,
		Time:    upd.Time,
		Message: upd.Message,
		Source:  upd.Source,
	}); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	c.metrics.StatusUpdateApplied()
	c.logger.Printf("[status] mission %d %s %q by %s", upd.MissionID, upd.Kind, upd.Status, upd.Source)
	return nil
}
