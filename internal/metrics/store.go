package metrics

import (
	"sort"
	"sync"

	"sentinelforge/internal/model"
)

// Store keeps running per-source attempt counts for the API. It is bounded:
// once limit sources are tracked the least recently seen one is evicted.
type Store struct {
	mu       sync.RWMutex
	bySource map[string]*model.SourceStats
	limit    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		bySource: make(map[string]*model.SourceStats),
		limit:    limit,
	}
}

func (s *Store) Observe(ev model.Event) {
	if ev.SourceID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.bySource[ev.SourceID]
	if !ok {
		st = &model.SourceStats{SourceID: ev.SourceID}
		s.bySource[ev.SourceID] = st
	}
	switch ev.Outcome {
	case model.OutcomeFail:
		st.Failures++
	case model.OutcomeSuccess:
		st.Successes++
	}
	if ev.Timestamp.After(st.LastSeen) {
		st.LastSeen = ev.Timestamp
	}
	if len(s.bySource) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(sourceID string) (model.SourceStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.bySource[sourceID]
	if !ok {
		return model.SourceStats{}, false
	}
	return *st, true
}

// All returns every tracked source, most failures first.
func (s *Store) All() []model.SourceStats {
	s.mu.RLock()
	out := make([]model.SourceStats, 0, len(s.bySource))
	for _, st := range s.bySource {
		out = append(out, *st)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

func (s *Store) evictOldest() {
	var oldest *model.SourceStats
	for _, st := range s.bySource {
		if oldest == nil || st.LastSeen.Before(oldest.LastSeen) {
			oldest = st
		}
	}
	if oldest != nil {
		delete(s.bySource, oldest.SourceID)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySource = make(map[string]*model.SourceStats)
}
