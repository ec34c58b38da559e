package broadcast

import (
	"log"
	"sync"
)

// Registry tracks connected sessions and fans messages out to them.
type Registry interface {
	Register(s Session)
	Unregister(id string)
	// FanOut delivers m to every registered session and reports how many
	// accepted it.
	FanOut(m Message) int
	Len() int
}

// LocalRegistry is an in-process Registry.
type LocalRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	logger   *log.Logger
}

var _ Registry = (*LocalRegistry)(nil)

func NewLocalRegistry(logger *log.Logger) *LocalRegistry {
	if logger == nil {
		logger = log.Default()
	}
	return &LocalRegistry{
		sessions: make(map[string]Session),
		logger:   logger,
	}
}

func (r *LocalRegistry) Register(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *LocalRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *LocalRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *LocalRegistry) FanOut(m Message) int {
	r.mu.RLock()
	targets := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := s.Deliver(m); err != nil {
			r.logger.Printf("[broadcast] skipping session %s (%s): %v", s.ID(), s.DisplayName(), err)
			continue
		}
		delivered++
	}
	return delivered
}
