// Command policywatch is the entry point: serve, trigger, and migrate
// subcommands wired the way the teacher's cmd/newser/main.go
// wires serve/migrate/worker around cobra.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/policywatch/collector/internal/browser"
	"github.com/policywatch/collector/internal/config"
	"github.com/policywatch/collector/internal/llmclient"
	"github.com/policywatch/collector/internal/orchestrator"
	"github.com/policywatch/collector/internal/scheduler"
	"github.com/policywatch/collector/internal/server"
	"github.com/policywatch/collector/internal/store"
	"github.com/policywatch/collector/internal/telemetry"
	"github.com/policywatch/collector/internal/types"
)

func main() {
	root := &cobra.Command{Use: "policywatch"}

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP Trigger API and the batch scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	var sourceIDsCSV, triggerKind string
	triggerCmd := &cobra.Command{
		Use:   "trigger",
		Short: "trigger a crawl batch over all (or named) sources and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrigger(sourceIDsCSV, triggerKind)
		},
	}
	triggerCmd.Flags().StringVar(&sourceIDsCSV, "sources", "", "comma-separated source IDs, empty = all active sources")
	triggerCmd.Flags().StringVar(&triggerKind, "kind", "manual", "manual or scheduled")

	var migDir, direction string
	var steps int
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return fmt.Errorf("DATABASE_URL must be set")
			}
			if migDir == "" {
				migDir = "file://migrations"
			}
			return store.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrateCmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrateCmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrateCmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	root.AddCommand(serveCmd, triggerCmd, migrateCmd)
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// wiring holds the components every subcommand assembles the same way:
// config -> store -> browser/llm -> orchestrator -> scheduler.
type wiring struct {
	cfg   *config.Config
	db    *sql.DB
	st    *store.Store
	sched *scheduler.Scheduler
}

func assemble() (*wiring, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Storage.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st := store.New(db)

	logger := log.New(os.Stdout, "[policywatch] ", log.LstdFlags)
	llm := llmclient.New(cfg.LLM)
	br := browser.New(cfg.Browser)
	orch := orchestrator.New(llm, br, st, cfg.Agents, cfg.LLM, logger)
	orch.SetCrawlPolicy(cfg.CrawlPolicy)

	if cfg.Telemetry.Enabled {
		m := telemetry.NewProvider().Metrics
		orchestrator.SetMetrics(m)
		browser.SetMetrics(m)
		llmclient.SetMetrics(m)
		scheduler.SetMetrics(m)
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
	}

	sched := scheduler.New(st, orch, scheduler.Options{
		MaxConcurrentSources: cfg.Scheduler.MaxConcurrentSources,
		TickInterval:         cfg.Scheduler.TickInterval,
		LockTTL:              cfg.Scheduler.LockTTL,
		Redis:                rdb,
		Logger:               logger,
	})

	return &wiring{cfg: cfg, db: db, st: st, sched: sched}, nil
}

func runServe(addr string) error {
	w, err := assemble()
	if err != nil {
		return err
	}
	defer w.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.sched.Start(ctx)
	defer w.sched.Stop()

	if addr == "" {
		addr = os.Getenv("POLICYWATCH_HTTP_ADDR")
	}
	if addr == "" {
		addr = ":8080"
	}
	return server.Run(addr, w.sched, w.st)
}

func runTrigger(sourceIDsCSV, kind string) error {
	w, err := assemble()
	if err != nil {
		return err
	}
	defer w.db.Close()

	var sourceIDs []string
	if sourceIDsCSV != "" {
		sourceIDs = splitCSV(sourceIDsCSV)
	}

	triggerKind := parseTriggerKind(kind)
	batch, err := w.sched.Trigger(context.Background(), sourceIDs, triggerKind)
	if err != nil {
		return fmt.Errorf("trigger batch: %w", err)
	}
	fmt.Println(batch.ID)
	return nil
}

func parseTriggerKind(kind string) types.TriggerKind {
	if kind == string(types.TriggerScheduled) {
		return types.TriggerScheduled
	}
	return types.TriggerManual
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
