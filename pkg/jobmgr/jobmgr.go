// Package jobmgr runs named background jobs that can be cancelled by name.
//
//	jm := jobmgr.NewManager(slog.Default())
//	_ = jm.After("grace:123", 10*time.Second, func() { teardown() })
//
//	// someone came back
//	_ = jm.Stop("grace:123")
//
// A name can only be held by one running job at a time.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

var (
	ErrJobRunning    = errors.New("job is already running")
	ErrJobNotRunning = errors.New("job is not running")
)

type job struct {
	name   string
	cancel context.CancelFunc
}

// Manager is safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job
	log  *slog.Logger
}

// NewManager takes a logger for job lifecycle lines; nil uses slog.Default.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		jobs: make(map[string]*job),
		log:  log,
	}
}

// StartAsync runs runner in its own goroutine. The job is forgotten when
// runner returns or when Stop cancels its context.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{name: name, cancel: cancel}

	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	m.jobs[name] = j
	m.mu.Unlock()

	go func() {
		defer cancel()
		m.log.Debug("Job running", "job", name)

		err := runner(ctx)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.log.Warn("Job failed", "job", name, "error", err)
		default:
			m.log.Debug("Job done", "job", name)
		}

		m.mu.Lock()
		// Stop may already have replaced this slot with a newer job
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return nil
}

// After runs fn once delay has elapsed unless the job is stopped first.
func (m *Manager) After(name string, delay time.Duration, fn func()) error {
	return m.StartAsync(name, func(ctx context.Context) error {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		m.release(ctx, name)
		fn()
		return nil
	})
}

// release frees the name before a delayed job fires so fn may schedule it again.
func (m *Manager) release(ctx context.Context, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[name]; ok && ctx.Err() == nil {
		delete(m.jobs, j.name)
	}
}

func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, name)
	}

	j.cancel()
	delete(m.jobs, name)
	return nil
}

func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns active job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, j := range m.jobs {
		j.cancel()
		delete(m.jobs, name)
	}
}
