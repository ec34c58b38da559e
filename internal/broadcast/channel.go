package broadcast

import (
	"log"
	"strings"

	"github.com/KaraAliOsman/Trabajo-3/internal/metrics"
)

// Channel is the operator chat room.
type Channel struct {
	registry Registry
	logger   *log.Logger
	metrics  *metrics.Collectors
}

func NewChannel(registry Registry, logger *log.Logger, m *metrics.Collectors) *Channel {
	if logger == nil {
		logger = log.Default()
	}
	return &Channel{registry: registry, logger: logger, metrics: m}
}

// OnConnect sends the system notice to s alone and then registers s, so the
// notice is always the first message s receives. s is registered even when
// the notice fails.
func (c *Channel) OnConnect(s Session) error {
	err := s.Deliver(Message{Username: SystemUsername, Message: ConnectedNotice})
	c.registry.Register(s)
	c.metrics.SessionOpened()
	c.logger.Printf("[broadcast] operator %s connected as %q (sessions: %d)", s.ID(), s.DisplayName(), c.registry.Len())
	return err
}

// OnMessage broadcasts in to every connected session, the sender included.
// A message that is blank after trimming yields ErrEmptyMessage and reaches
// nobody. A missing username falls back to the sender's display name.
func (c *Channel) OnMessage(from Session, in Inbound) (int, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		c.metrics.ChatMessage("dropped")
		return 0, ErrEmptyMessage
	}
	username := in.Username
	if username == "" {
		username = from.DisplayName()
	}
	if username == "" {
		username = DefaultUsername
	}
	n := c.registry.FanOut(Message{Username: username, Message: text})
	c.metrics.ChatMessage("broadcast")
	c.logger.Printf("[broadcast] %s (%s) -> %d sessions", username, from.ID(), n)
	return n, nil
}

// OnDisconnect forgets s. No notice is sent.
func (c *Channel) OnDisconnect(s Session) {
	c.registry.Unregister(s.ID())
	c.metrics.SessionClosed()
	c.logger.Printf("[broadcast] operator %s disconnected (sessions: %d)", s.ID(), c.registry.Len())
}
