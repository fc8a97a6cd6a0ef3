package audit

import (
	"context"
	"sort"
	"sync"
)

// MemorySink keeps records in memory. Err, when set, is returned from every Write.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	Err     error
}

func (s *MemorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of the written records.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Timeline mirrors PostgresSink.Timeline.
func (s *MemorySink) Timeline(_ context.Context, filters TimelineFilters, limit, offset int) ([]Record, error) {
	var out []Record
	for _, rec := range s.Records() {
		if filters.Matches(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
