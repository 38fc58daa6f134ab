package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRecorder keeps entries in process. It backs development mode and
// tests, and implements Searcher and Cleaner like DBRecorder.
type MemoryRecorder struct {
	mu      sync.RWMutex
	entries []*Entry
	nextID  int64
}

// NewMemoryRecorder creates an empty MemoryRecorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(ctx context.Context, entry *Entry) error {
	prepare(ctx, entry)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := *entry
	c.ID = r.nextID
	entry.ID = c.ID
	r.entries = append(r.entries, &c)
	return nil
}

// Entries returns every entry in insertion order
func (r *MemoryRecorder) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	for i, e := range r.entries {
		c := *e
		out[i] = &c
	}
	return out
}

// Search lists entries matching the filter, newest first
func (r *MemoryRecorder) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*Entry, 0)
	for _, e := range r.entries {
		if matchesFilter(e, filter) {
			c := *e
			matches = append(matches, &c)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Timestamp.Equal(matches[j].Timestamp) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matches) {
			return []*Entry{}, nil
		}
		matches = matches[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matches) {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

func matchesFilter(e *Entry, f SearchFilter) bool {
	if f.OrganizationID != nil && (e.OrganizationID == nil || *e.OrganizationID != *f.OrganizationID) {
		return false
	}
	if f.BoardID != nil && (e.BoardID == nil || *e.BoardID != *f.BoardID) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// Cleanup drops entries older than the retention period
func (r *MemoryRecorder) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var deleted int64
	for _, e := range r.entries {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return deleted, nil
}

func (r *MemoryRecorder) Close() error {
	return nil
}
