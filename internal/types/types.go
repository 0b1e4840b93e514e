// Package types holds the data model shared by every component of the
// crawl pipeline: sources, batches, tasks, discovered articles, and the
// rendered report.
package types

import "time"

// ContentKind classifies an ArticleItem.
type ContentKind string

const (
	ContentKindPolicy ContentKind = "policy"
	ContentKindNews   ContentKind = "news"
	ContentKindNotice ContentKind = "notice"
	ContentKindFile   ContentKind = "file"
)

// TriggerKind identifies what caused a CrawlBatch to be created.
type TriggerKind string

const (
	TriggerManual    TriggerKind = "manual"
	TriggerScheduled TriggerKind = "scheduled"
)

// TaskStatus is the CrawlTask lifecycle state. Transitions are one-way:
// pending -> running -> {completed, failed, cancelled}.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// MonitorSource configures one site to crawl. It is owned by a user and is
// read-only to the core pipeline.
type MonitorSource struct {
	ID                string
	DisplayName       string
	RootURL           string
	FocusAreas        []string
	MaxDepth          int
	AllowedKinds      []ContentKind
	TimeWindow        time.Duration
	AllowCrossDomain  bool
	OwnerUserID       string
	ScheduleCron      string
}

// CrawlBatch is one trigger's unit of work.
type CrawlBatch struct {
	ID         string
	Trigger    TriggerKind
	CreatedAt  time.Time
}

// CrawlTask is the work for one source within a batch.
type CrawlTask struct {
	ID          string
	BatchID     string
	SourceID    string
	Status      TaskStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	ItemsFound  int
	ErrorLog    string
}

// CanTransitionTo reports whether moving from t's current status to next is
// a legal one-way transition.
func (t *CrawlTask) CanTransitionTo(next TaskStatus) bool {
	switch t.Status {
	case TaskPending:
		return next == TaskRunning || next == TaskCancelled
	case TaskRunning:
		return next == TaskCompleted || next == TaskFailed || next == TaskCancelled
	default:
		return false
	}
}

// ArticleItem is one discovered article, enriched across Phases 1b-3.
type ArticleItem struct {
	Title          string
	URL            string
	ContentKind    ContentKind
	PublishedDate  *time.Time
	Summary        string
	Tags           []string
	ImportanceRank int
}

// Report is the ordered ArticleItem list plus a narrative header, produced
// at the end of each task (one per source within a batch).
type Report struct {
	BatchID      string
	Title        string
	Overview     string
	HTML         string
	PlainText    string
	GeneratedAt  time.Time
	ItemsBySource map[string][]ArticleItem
}
