// Package store is the Postgres persistence layer: MonitorSource reads,
// CrawlBatch/CrawlTask bookkeeping for internal/scheduler, and the
// end-of-task bulk write of ArticleItems + Report for internal/orchestrator.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/policywatch/collector/internal/types"
)

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// ListActiveSources returns all MonitorSource rows, or only those whose
// id is in sourceIDs when non-empty, per the Trigger API's
// `source_ids | "all"` semantics.
func (s *Store) ListActiveSources(ctx context.Context, sourceIDs []string) ([]types.MonitorSource, error) {
	query := `SELECT id, display_name, root_url, focus_areas, max_depth, allowed_kinds,
		time_window_secs, allow_cross_domain, owner_user_id, schedule_cron FROM monitor_sources`
	args := []any{}
	if len(sourceIDs) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, pq.Array(sourceIDs))
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.MonitorSource
	for rows.Next() {
		var src types.MonitorSource
		var focusAreas, allowedKinds []string
		var timeWindowSecs int64
		if err := rows.Scan(&src.ID, &src.DisplayName, &src.RootURL, pq.Array(&focusAreas), &src.MaxDepth,
			pq.Array(&allowedKinds), &timeWindowSecs, &src.AllowCrossDomain, &src.OwnerUserID, &src.ScheduleCron); err != nil {
			return nil, err
		}
		src.FocusAreas = focusAreas
		src.TimeWindow = time.Duration(timeWindowSecs) * time.Second
		for _, k := range allowedKinds {
			src.AllowedKinds = append(src.AllowedKinds, types.ContentKind(k))
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// LatestBatchTime returns the creation time of the most recent batch
// that ran a task for sourceID, for the scheduler's cron due-check.
func (s *Store) LatestBatchTime(ctx context.Context, sourceID string) (*time.Time, error) {
	var ts *time.Time
	err := s.DB.QueryRowContext(ctx, `
		SELECT MAX(b.created_at) FROM crawl_batches b
		JOIN crawl_tasks t ON t.batch_id = b.id
		WHERE t.source_id = $1`, sourceID).Scan(&ts)
	return ts, err
}

func (s *Store) CreateBatch(ctx context.Context, batch types.CrawlBatch) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO crawl_batches (id, trigger_kind, created_at) VALUES ($1, $2, $3)`,
		batch.ID, string(batch.Trigger), batch.CreatedAt)
	return err
}

func (s *Store) CreateTask(ctx context.Context, task types.CrawlTask) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO crawl_tasks (id, batch_id, source_id, status) VALUES ($1, $2, $3, $4)`,
		task.ID, task.BatchID, task.SourceID, string(task.Status))
	return err
}

func (s *Store) UpdateTaskStatus(ctx context.Context, task types.CrawlTask) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE crawl_tasks SET status=$1, started_at=$2, completed_at=$3, items_found=$4, error_log=$5
		WHERE id=$6`,
		string(task.Status), task.StartedAt, task.CompletedAt, task.ItemsFound, task.ErrorLog, task.ID)
	return err
}

// ExistingURLs returns the canonical URLs already persisted for a
// source, across every prior task, for Phase 1b's cross-batch dedup.
func (s *Store) ExistingURLs(ctx context.Context, sourceID string) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT url FROM article_items WHERE source_id = $1`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		out[url] = true
	}
	return out, rows.Err()
}

// SaveTaskResult performs the end-of-task bulk write named in §5: the
// task's own status row, its ArticleItems, and (when non-nil) its
// Report, inside one transaction so a crash never leaves a task
// "completed" with no items or no report.
func (s *Store) SaveTaskResult(ctx context.Context, task types.CrawlTask, items []types.ArticleItem, rep *types.Report) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE crawl_tasks SET status=$1, started_at=$2, completed_at=$3, items_found=$4, error_log=$5
		WHERE id=$6`,
		string(task.Status), task.StartedAt, task.CompletedAt, task.ItemsFound, task.ErrorLog, task.ID); err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	for _, item := range items {
		var published any
		if item.PublishedDate != nil {
			published = *item.PublishedDate
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO article_items (task_id, source_id, title, url, content_kind, published_date, summary, tags, importance_rank)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			task.ID, task.SourceID, item.Title, item.URL, string(item.ContentKind), published, item.Summary,
			pq.Array(item.Tags), item.ImportanceRank); err != nil {
			return fmt.Errorf("insert article item: %w", err)
		}
	}

	if rep != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reports (batch_id, task_id, title, overview, html, plain_text, generated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			task.BatchID, task.ID, rep.Title, rep.Overview, rep.HTML, rep.PlainText, rep.GeneratedAt); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
	}

	return tx.Commit()
}

// ListTasks returns task states for the Trigger API's `GET /tasks`.
func (s *Store) ListTasks(ctx context.Context, batchID string) ([]types.CrawlTask, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, batch_id, source_id, status, started_at, completed_at, items_found, error_log
		FROM crawl_tasks WHERE batch_id=$1`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.CrawlTask
	for rows.Next() {
		var t types.CrawlTask
		var status string
		if err := rows.Scan(&t.ID, &t.BatchID, &t.SourceID, &status, &t.StartedAt, &t.CompletedAt, &t.ItemsFound, &t.ErrorLog); err != nil {
			return nil, err
		}
		t.Status = types.TaskStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}
