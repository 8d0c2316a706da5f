package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"bracketbot/internal/logger"
)

// Job is one invocation of a recurring task. ctx is the scheduler's run
// context, so removing a job never interrupts an invocation already running.
type Job func(ctx context.Context)

// Registry keys recurring jobs by identity. Add and Remove are idempotent:
// adding an id that is already registered, or removing an unknown one,
// returns false and changes nothing.
type Registry interface {
	Add(id string, interval time.Duration, job Job) bool
	Remove(id string) bool
	Has(id string) bool
}

type entry struct {
	id       string
	interval time.Duration
	job      Job
	stop     chan struct{}
}

// IntervalScheduler runs every registered job on its own ticker goroutine.
// Jobs added before Run start when Run is called; jobs added afterwards start
// immediately.
type IntervalScheduler struct {
	mu      sync.Mutex
	jobs    map[string]*entry
	runCtx  context.Context
	started bool
	wg      sync.WaitGroup
}

func NewIntervalScheduler() *IntervalScheduler {
	return &IntervalScheduler{jobs: make(map[string]*entry)}
}

func (s *IntervalScheduler) Add(id string, interval time.Duration, job Job) bool {
	if id == "" || job == nil {
		logger.Warnf("IntervalScheduler: refusing job with empty id or nil task")
		return false
	}
	if interval <= 0 {
		logger.Warnf("IntervalScheduler[%s]: invalid interval=%s", id, interval)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return false
	}
	e := &entry{id: id, interval: interval, job: job, stop: make(chan struct{})}
	s.jobs[id] = e
	if s.started {
		s.spawn(e)
	}
	logger.Infof("IntervalScheduler[%s]: registered every %s", id, interval)
	return true
}

func (s *IntervalScheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return false
	}
	delete(s.jobs, id)
	close(e.stop)
	logger.Infof("IntervalScheduler[%s]: removed", id)
	return true
}

func (s *IntervalScheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Jobs lists registered ids in lexical order.
func (s *IntervalScheduler) Jobs() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		out = append(out, id)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Run starts all registered jobs and blocks until ctx is done, then stops
// every job and waits for in-flight invocations to return.
func (s *IntervalScheduler) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.started = true
	s.runCtx = ctx
	for _, e := range s.jobs {
		s.spawn(e)
	}
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	for id, e := range s.jobs {
		close(e.stop)
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	logger.Infof("IntervalScheduler: stopped")
	return nil
}

// spawn must be called with s.mu held.
func (s *IntervalScheduler) spawn(e *entry) {
	s.wg.Add(1)
	go s.loop(s.runCtx, e)
}

func (s *IntervalScheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
		}
		select {
		case <-e.stop:
			return
		default:
		}
		invoke(ctx, e.id, e.job)
	}
}

func invoke(ctx context.Context, id string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("IntervalScheduler[%s]: job panic: %v\n%s", id, r, debug.Stack())
		}
	}()
	job(ctx)
}
