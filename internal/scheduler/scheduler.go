// Package scheduler is the Batch Scheduler of §4.5: it turns a trigger
// (manual or cron-driven) into a CrawlBatch, fans work out across a
// bounded worker pool of per-source pipelines, and tracks per-batch
// cancellation signals.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/policywatch/collector/internal/telemetry"
	"github.com/policywatch/collector/internal/types"
)

// metrics is nil until SetMetrics is called; every recording site below is
// nil-safe so callers/tests that skip telemetry wiring are unaffected.
var metrics *telemetry.Metrics

// SetMetrics wires the process-wide Prometheus instruments. Call once at
// startup, before Trigger is ever invoked concurrently.
func SetMetrics(m *telemetry.Metrics) { metrics = m }

// SourceRunner executes the four-phase pipeline for one source; satisfied
// by *orchestrator.Orchestrator.
type SourceRunner interface {
	RunSource(ctx context.Context, batch types.CrawlBatch, source types.MonitorSource, cancelSignal <-chan struct{}) (types.CrawlTask, *types.Report)
}

// Store is the subset of persistence the scheduler itself needs: source
// listing for the cron tick, and batch/task bookkeeping distinct from
// the orchestrator's own end-of-task Persister.
type Store interface {
	ListActiveSources(ctx context.Context, sourceIDs []string) ([]types.MonitorSource, error)
	LatestBatchTime(ctx context.Context, sourceID string) (*time.Time, error)
	CreateBatch(ctx context.Context, batch types.CrawlBatch) error
	CreateTask(ctx context.Context, task types.CrawlTask) error
	UpdateTaskStatus(ctx context.Context, task types.CrawlTask) error
}

// ProgressEvent is emitted for live UI updates per §4.5.
type ProgressEvent struct {
	BatchID  string
	SourceID string
	Status   types.TaskStatus
}

type Scheduler struct {
	store                Store
	runner               SourceRunner
	rdb                  *redis.Client
	maxConcurrentSources int
	tickInterval         time.Duration
	lockTTL              time.Duration
	log                  *log.Logger
	onProgress           func(ProgressEvent)

	mu      sync.Mutex
	cancels map[string]chan struct{}
	stop    chan struct{}
}

type Options struct {
	MaxConcurrentSources int
	TickInterval         time.Duration
	LockTTL              time.Duration
	Redis                *redis.Client
	Logger               *log.Logger
	OnProgress           func(ProgressEvent)
}

func New(store Store, runner SourceRunner, opts Options) *Scheduler {
	if opts.MaxConcurrentSources <= 0 {
		opts.MaxConcurrentSources = 5
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	return &Scheduler{
		store:                store,
		runner:               runner,
		rdb:                  opts.Redis,
		maxConcurrentSources: opts.MaxConcurrentSources,
		tickInterval:         opts.TickInterval,
		lockTTL:              opts.LockTTL,
		log:                  opts.Logger,
		onProgress:           opts.OnProgress,
		cancels:              map[string]chan struct{}{},
		stop:                 make(chan struct{}),
	}
}

// Start runs the cron due-check loop until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stop)
}

// tick fires a scheduled trigger for every active source whose cron
// expression is due, guarded by a Redis distributed lock so multiple
// scheduler instances never double-fire the same source.
func (s *Scheduler) tick(ctx context.Context) {
	sources, err := s.store.ListActiveSources(ctx, nil)
	if err != nil {
		s.log.Printf("tick: list sources: %v", err)
		return
	}
	for _, src := range sources {
		if src.ScheduleCron == "" {
			continue
		}
		last, _ := s.store.LatestBatchTime(ctx, src.ID)
		if !isDue(src.ScheduleCron, last) {
			continue
		}
		if s.rdb != nil {
			lockKey := "policywatch:sched:lock:" + src.ID
			ok, err := s.rdb.SetNX(ctx, lockKey, "1", s.lockTTL).Result()
			if err != nil || !ok {
				continue
			}
		}
		if _, err := s.Trigger(ctx, []string{src.ID}, types.TriggerScheduled); err != nil {
			s.log.Printf("tick: trigger source %s: %v", src.ID, err)
		}
	}
}

// isDue mirrors the teacher's own cron due-check: "@daily"/"@hourly"
// shorthands, else a standard cron expression evaluated against the
// last run time (never having run is always due).
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		return last == nil || now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return last == nil || now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return last == nil || now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}

// Trigger creates a CrawlBatch and one CrawlTask per resolved source,
// then runs the per-source pipelines through a bounded worker pool,
// per §4.5. It returns once the batch is created and running has begun;
// callers observe completion via ProgressEvent or by polling task state.
func (s *Scheduler) Trigger(ctx context.Context, sourceIDs []string, kind types.TriggerKind) (types.CrawlBatch, error) {
	sources, err := s.store.ListActiveSources(ctx, sourceIDs)
	if err != nil {
		return types.CrawlBatch{}, err
	}

	batch := types.CrawlBatch{ID: uuid.NewString(), Trigger: kind, CreatedAt: time.Now()}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return types.CrawlBatch{}, err
	}
	if metrics != nil {
		metrics.BatchesTriggered.WithLabelValues(string(kind)).Inc()
	}

	cancel := make(chan struct{})
	s.mu.Lock()
	s.cancels[batch.ID] = cancel
	s.mu.Unlock()

	go s.runBatch(context.Background(), batch, sources, cancel)

	return batch, nil
}

// Cancel raises the cancellation signal for a batch, per the Trigger
// API's `POST /tasks/{batch_id}/cancel`.
func (s *Scheduler) Cancel(batchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.cancels[batchID]
	if !ok {
		return false
	}
	select {
	case <-cancel:
	default:
		close(cancel)
	}
	return true
}

func (s *Scheduler) runBatch(ctx context.Context, batch types.CrawlBatch, sources []types.MonitorSource, cancel chan struct{}) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, batch.ID)
		s.mu.Unlock()
	}()

	sem := make(chan struct{}, s.maxConcurrentSources)
	var wg sync.WaitGroup

	for _, src := range sources {
		task := types.CrawlTask{ID: uuid.NewString(), BatchID: batch.ID, SourceID: src.ID, Status: types.TaskPending}
		if err := s.store.CreateTask(ctx, task); err != nil {
			s.log.Printf("create task for source %s: %v", src.ID, err)
			continue
		}
		s.emit(ProgressEvent{BatchID: batch.ID, SourceID: src.ID, Status: types.TaskPending})

		wg.Add(1)
		sem <- struct{}{}
		go func(src types.MonitorSource) {
			defer wg.Done()
			defer func() { <-sem }()

			s.emit(ProgressEvent{BatchID: batch.ID, SourceID: src.ID, Status: types.TaskRunning})
			result, _ := s.runner.RunSource(ctx, batch, src, cancel)
			if err := s.store.UpdateTaskStatus(ctx, result); err != nil {
				s.log.Printf("update task status for source %s: %v", src.ID, err)
			}
			s.emit(ProgressEvent{BatchID: batch.ID, SourceID: src.ID, Status: result.Status})
		}(src)
	}

	wg.Wait()
}

func (s *Scheduler) emit(ev ProgressEvent) {
	if s.onProgress != nil {
		s.onProgress(ev)
	}
}
