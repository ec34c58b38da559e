package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KaraAliOsman/Trabajo-3/internal/telemetry"
)

// MemoryStore keeps everything in process. Reads return copies.
type MemoryStore struct {
	mu        sync.RWMutex
	missions  map[int64]*Mission
	nextID    int64
	telemetry map[int64][]Record // mission_id -> samples in append order
	nextRecID int64
	history   map[int64][]StatusEvent // mission_id -> ordered events
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		missions:  make(map[int64]*Mission),
		telemetry: make(map[int64][]Record),
		history:   make(map[int64][]StatusEvent),
	}
	s.nextID++
	m := defaultMission
	m.ID = s.nextID
	s.missions[m.ID] = &m
	return s
}

func (s *MemoryStore) Append(ctx context.Context, sample telemetry.Sample) (telemetry.Ack, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Ack{}, &telemetry.StorageError{Op: "append", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRecID++
	s.telemetry[sample.MissionID] = append(s.telemetry[sample.MissionID], Record{ID: s.nextRecID, Sample: sample})
	return telemetry.Ack{ID: s.nextRecID}, nil
}

func (s *MemoryStore) At(_ context.Context, missionID int64, ts time.Time) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.telemetry[missionID] {
		if r.Timestamp.Equal(ts) {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *MemoryStore) Range(_ context.Context, missionID int64, from, to time.Time, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0)
	for _, r := range s.telemetry[missionID] {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListMissions(context.Context) ([]Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]Mission, 0, len(s.missions))
	for _, m := range s.missions {
		all = append(all, *m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (s *MemoryStore) GetMission(_ context.Context, id int64) (Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return Mission{}, ErrNotFound
	}
	return *m, nil
}

func (s *MemoryStore) CreateMission(_ context.Context, m Mission) (Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.missions[m.ID] = &m
	return m, nil
}

func (s *MemoryStore) UpdateMissionStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	return nil
}

func (s *MemoryStore) AddEvent(_ context.Context, missionID int64, ev StatusEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[missionID] = append(s.history[missionID], ev)
	return nil
}

func (s *MemoryStore) History(_ context.Context, missionID int64) ([]StatusEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.history[missionID]
	out := make([]StatusEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
