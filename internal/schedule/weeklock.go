package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"mealweek/internal/shared"
)

// WeekLocks serializes mutations and aggregation reads per (user, week).
// Entries are reference counted so the map stays bounded by the number of
// weeks currently being worked on.
type WeekLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewWeekLocks creates an empty lock table.
func NewWeekLocks() *WeekLocks {
	return &WeekLocks{entries: make(map[string]*lockEntry)}
}

// WeekKey derives the lock key for a user and any date within the week.
func WeekKey(userID int64, date time.Time) string {
	return fmt.Sprintf("%d|%s", userID, shared.FormatDate(shared.WeekStart(date)))
}

// Lock acquires the locks for the given keys (duplicates are collapsed,
// acquisition order is deterministic to avoid deadlock between cross-week
// operations) and returns the release function.
func (l *WeekLocks) Lock(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Strings(uniq)

	entries := make([]*lockEntry, len(uniq))
	l.mu.Lock()
	for i, k := range uniq {
		e, ok := l.entries[k]
		if !ok {
			e = &lockEntry{}
			l.entries[k] = e
		}
		e.refs++
		entries[i] = e
	}
	l.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		l.mu.Lock()
		for i, k := range uniq {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(l.entries, k)
			}
		}
		l.mu.Unlock()
	}
}
