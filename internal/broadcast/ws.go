package broadcast

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Realtime protocol event names.
const (
	EventBroadcastMessage = "broadcast_message"
	EventNewMessage       = "new_message"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendQueueSize  = 64
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the console is served from any origin, as the CORS policy allows
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSSession is an operator connected over a websocket.
type WSSession struct {
	id   string
	name string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

var _ Session = (*WSSession)(nil)

func newWSSession(conn *websocket.Conn, name string) *WSSession {
	if name == "" {
		name = DefaultUsername
	}
	return &WSSession{
		id:   uuid.NewString(),
		name: name,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (s *WSSession) ID() string          { return s.id }
func (s *WSSession) DisplayName() string { return s.name }

func (s *WSSession) Deliver(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: EventBroadcastMessage, Data: data})
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSessionBackpressure
	}
}

func (s *WSSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *WSSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request and runs the session until the operator
// disconnects. The display name comes from the "name" query parameter.
func (c *Channel) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := newWSSession(conn, strings.TrimSpace(r.URL.Query().Get("name")))
	go s.writePump()

	defer func() {
		c.OnDisconnect(s)
		s.close()
	}()
	if err := c.OnConnect(s); err != nil {
		c.logger.Printf("[broadcast] connect notice to %s failed: %v", s.ID(), err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Printf("[broadcast] session %s read error: %v", s.ID(), err)
			}
			return nil
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Printf("[broadcast] session %s sent malformed frame: %v", s.ID(), err)
			continue
		}
		if env.Event != EventNewMessage {
			continue
		}
		var in Inbound
		if err := json.Unmarshal(env.Data, &in); err != nil {
			c.logger.Printf("[broadcast] session %s sent malformed message: %v", s.ID(), err)
			continue
		}
		if _, err := c.OnMessage(s, in); err != nil && !errors.Is(err, ErrEmptyMessage) {
			c.logger.Printf("[broadcast] session %s message failed: %v", s.ID(), err)
		}
	}
}
