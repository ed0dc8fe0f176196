// Package scheduler reruns a job on a fixed interval, once immediately on
// Start and then on every tick.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Job func(ctx context.Context) error

type Config struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
}

type Scheduler struct {
	job Job
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	runs     atomic.Int64
	failures atomic.Int64
}

func New(job Job, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Name == "" {
		cfg.Name = "job"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{job: job, cfg: cfg, log: log.Named("scheduler").With(zap.String("job", cfg.Name))}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(stop)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.run(stop)
			}
		}
	}()

	s.log.Info("started", zap.Duration("interval", s.cfg.Interval))
}

// Stop cancels an in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow triggers the job outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.log.Info("manual run triggered")
	return s.exec(ctx)
}

func (s *Scheduler) Runs() int64 { return s.runs.Load() }
func (s *Scheduler) Failures() int64 { return s.failures.Load() }

func (s *Scheduler) run(stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	if err := s.exec(ctx); err != nil {
		s.log.Error("run failed", zap.Error(err))
	}
}

func (s *Scheduler) exec(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	s.runs.Add(1)
	if err := s.job(ctx); err != nil {
		s.failures.Add(1)
		return err
	}
	s.log.Info("run complete", zap.Duration("took", time.Since(start)))
	return nil
}
