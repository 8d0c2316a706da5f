package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a Registry whose jobs only run when Tick is called. It makes
// polling logic testable without wall-clock sleeps.
type Manual struct {
	mu   sync.Mutex
	jobs map[string]manualJob
	adds map[string]int
}

type manualJob struct {
	interval time.Duration
	job      Job
}

func NewManual() *Manual {
	return &Manual{jobs: make(map[string]manualJob), adds: make(map[string]int)}
}

func (m *Manual) Add(id string, interval time.Duration, job Job) bool {
	if id == "" || job == nil || interval <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; ok {
		return false
	}
	m.jobs[id] = manualJob{interval: interval, job: job}
	m.adds[id]++
	return true
}

func (m *Manual) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return false
	}
	delete(m.jobs, id)
	return true
}

func (m *Manual) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[id]
	return ok
}

// Interval reports the registered interval of id.
func (m *Manual) Interval(id string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j.interval, ok
}

// Registrations counts successful Add calls for id over the fake's lifetime.
func (m *Manual) Registrations(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds[id]
}

// Tick runs job id once, synchronously. It reports false when id is not registered.
func (m *Manual) Tick(ctx context.Context, id string) bool {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	j.job(ctx)
	return true
}

// TickAll runs every registered job once in id order. A job removed by an
// earlier job in the same round is skipped.
func (m *Manual) TickAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	for _, id := range ids {
		m.Tick(ctx, id)
	}
}
