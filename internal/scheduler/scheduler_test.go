package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/policywatch/collector/internal/types"
)

func TestIsDueNeverRunIsDue(t *testing.T) {
	if !isDue("@daily", nil) {
		t.Error("expected due when never run")
	}
}

func TestIsDueDailyRespectsElapsed(t *testing.T) {
	recent := time.Now().Add(-1 * time.Hour)
	if isDue("@daily", &recent) {
		t.Error("expected not due after only 1h")
	}
	old := time.Now().Add(-25 * time.Hour)
	if !isDue("@daily", &old) {
		t.Error("expected due after 25h")
	}
}

func TestIsDueCronExpression(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)
	if !isDue("0 * * * *", &old) {
		t.Error("expected hourly cron due after 2h")
	}
}

func TestIsDueInvalidCronFallsBackToDaily(t *testing.T) {
	recent := time.Now().Add(-1 * time.Hour)
	if isDue("not a cron", &recent) {
		t.Error("expected fallback @daily behavior for invalid cron")
	}
}

type fakeStore struct {
	mu      sync.Mutex
	sources []types.MonitorSource
	tasks   []types.CrawlTask
}

func (f *fakeStore) ListActiveSources(ctx context.Context, ids []string) ([]types.MonitorSource, error) {
	if len(ids) == 0 {
		return f.sources, nil
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []types.MonitorSource
	for _, s := range f.sources {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) LatestBatchTime(ctx context.Context, sourceID string) (*time.Time, error) {
	return nil, nil
}

func (f *fakeStore) CreateBatch(ctx context.Context, batch types.CrawlBatch) error { return nil }

func (f *fakeStore) CreateTask(ctx context.Context, task types.CrawlTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeStore) UpdateTaskStatus(ctx context.Context, task types.CrawlTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

type fakeRunner struct {
	block chan struct{}
}

func (r *fakeRunner) RunSource(ctx context.Context, batch types.CrawlBatch, source types.MonitorSource, cancelSignal <-chan struct{}) (types.CrawlTask, *types.Report) {
	if r.block != nil {
		select {
		case <-cancelSignal:
			return types.CrawlTask{BatchID: batch.ID, SourceID: source.ID, Status: types.TaskCancelled}, nil
		case <-r.block:
		}
	}
	return types.CrawlTask{BatchID: batch.ID, SourceID: source.ID, Status: types.TaskCompleted, ItemsFound: 1}, nil
}

func TestTriggerRunsOneTaskPerSource(t *testing.T) {
	store := &fakeStore{sources: []types.MonitorSource{{ID: "a"}, {ID: "b"}}}
	runner := &fakeRunner{}
	sched := New(store, runner, Options{MaxConcurrentSources: 2})

	batch, err := sched.Trigger(context.Background(), nil, types.TriggerManual)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if batch.ID == "" {
		t.Fatal("expected non-empty batch id")
	}

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		completed := 0
		for _, tk := range store.tasks {
			if tk.Status == types.TaskCompleted {
				completed++
			}
		}
		store.mu.Unlock()
		if completed >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for tasks to complete")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCancelRaisesSignalObservedByRunner(t *testing.T) {
	store := &fakeStore{sources: []types.MonitorSource{{ID: "a"}}}
	runner := &fakeRunner{block: make(chan struct{})}
	sched := New(store, runner, Options{})

	batch, err := sched.Trigger(context.Background(), nil, types.TriggerManual)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if !sched.Cancel(batch.ID) {
		t.Fatal("expected cancel to find the running batch")
	}

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		cancelled := false
		for _, tk := range store.tasks {
			if tk.Status == types.TaskCancelled {
				cancelled = true
			}
		}
		store.mu.Unlock()
		if cancelled {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for cancellation to propagate")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
