// Package scheduler runs one background job on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one run of the scheduled work.
type Job func(ctx context.Context) error

type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	log      *slog.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	runs    int64
	lastRun time.Time
	lastErr string
}

// Status is what /v1/scheduler/status reports.
type Status struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	Interval  string     `json:"interval"`
	Runs      int64      `json:"runs"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

func New(name string, interval time.Duration, job Job) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) WithLogger(l *slog.Logger) *Scheduler {
	s.log = l
	return s
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("scheduler started", "job", s.name, "interval", s.interval.String())

		s.safeRun(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopping", "job", s.name)
				return
			case <-ticker.C:
				s.safeRun(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped", "job", s.name)
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	st := Status{
		Name:      s.name,
		Running:   s.running.Load(),
		Interval:  s.interval.String(),
		Runs:      s.runs,
		LastError: s.lastErr,
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRunAt = &last
	}
	return st
}

func (s *Scheduler) safeRun(ctx context.Context) {
	start := time.Now()
	err := s.run(ctx)

	s.statsMu.Lock()
	s.runs++
	s.lastRun = start.UTC()
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.statsMu.Unlock()

	if err != nil {
		s.log.Error("scheduler job failed", "job", s.name, "err", err)
		return
	}
	s.log.Debug("scheduler job completed", "job", s.name, "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.job(ctx)
}
