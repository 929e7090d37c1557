// genflow CLI - operational entry points for the statistics pipeline and
// the generation orchestrator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/uptrace/bun"

	"github.com/pixforge/genflow/internal/application/jobengine"
	"github.com/pixforge/genflow/internal/application/progress"
	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/infrastructure/cache"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
	"github.com/pixforge/genflow/internal/infrastructure/storage"
	"github.com/pixforge/genflow/pkg/apierr"
	"github.com/pixforge/genflow/pkg/models"
)

// Exit codes per : 0 on success, 2 on bad input, 1 on runtime failure.
const (
	exitOK       = 0
	exitBadInput = 2
	exitRuntime  = 1
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: genflow-cli <refresh-tag-stats|refresh-gen-source-stats|submit-job|cancel-job> [flags]")
		os.Exit(exitBadInput)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(exitRuntime)
	}

	appLogger := logger.New(cfg.Logging)

	db, err := storage.NewDB(&storage.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		Debug:           cfg.Database.Debug,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(exitRuntime)
	}
	defer storage.Close(db)

	ctx := context.Background()

	var exitCode int
	switch cmd {
	case "refresh-tag-stats":
		exitCode = runRefreshTagStats(ctx, db, cfg)
	case "refresh-gen-source-stats":
		exitCode = runRefreshGenSourceStats(ctx, db, cfg)
	case "submit-job":
		exitCode = runSubmitJob(ctx, args, db, cfg, appLogger)
	case "cancel-job":
		exitCode = runCancelJob(ctx, args, db, cfg, appLogger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		exitCode = exitBadInput
	}

	os.Exit(exitCode)
}

func runRefreshTagStats(ctx context.Context, db *bun.DB, cfg *config.Config) int {
	repo := storage.NewStatsRepository(db, cfg.Planner)
	n, err := repo.RefreshTagCardinality(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "refresh-tag-stats failed: %v\n", err)
		return exitRuntime
	}
	fmt.Printf("refreshed tag cardinality for %d rows\n", n)
	return exitOK
}

func runRefreshGenSourceStats(ctx context.Context, db *bun.DB, cfg *config.Config) int {
	repo := storage.NewStatsRepository(db, cfg.Planner)
	n, err := repo.RefreshGenSourceStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "refresh-gen-source-stats failed: %v\n", err)
		return exitRuntime
	}
	fmt.Printf("refreshed gen-source stats for %d rows\n", n)
	return exitOK
}

func newJobManager(ctx context.Context, db *bun.DB, cfg *config.Config, log *logger.Logger, consumerName string) (*jobengine.Manager, func(), error) {
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	jobRepo := storage.NewJobRepository(db)
	progressBroker := progress.New(redisCache.Client(), log)

	queue, err := jobengine.NewQueue(ctx, redisCache.Client(), consumerName)
	if err != nil {
		redisCache.Close()
		return nil, nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	manager := jobengine.NewManager(jobRepo, queue, progressBroker, cfg.Orchestrator.DefaultCheckpointName, log)
	return manager, func() { redisCache.Close() }, nil
}

func runSubmitJob(ctx context.Context, args []string, db *bun.DB, cfg *config.Config, log *logger.Logger) int {
	fs := flag.NewFlagSet("submit-job", flag.ContinueOnError)
	file := fs.String("file", "", "path to a JSON file with a job spec")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "submit-job: --file is required")
		return exitBadInput
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit-job: failed to read %s: %v\n", *file, err)
		return exitBadInput
	}

	var spec models.JobSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		fmt.Fprintf(os.Stderr, "submit-job: invalid job spec: %v\n", err)
		return exitBadInput
	}

	manager, closeFn, err := newJobManager(ctx, db, cfg, log, "genflow-cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit-job: %v\n", err)
		return exitRuntime
	}
	defer closeFn()

	id, err := manager.Submit(ctx, spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit-job failed: %v\n", err)
		if ae, ok := apierr.As(err); ok && ae.Kind == apierr.KindValidation {
			return exitBadInput
		}
		return exitRuntime
	}

	fmt.Printf("submitted job %d\n", id)
	return exitOK
}

func runCancelJob(ctx context.Context, args []string, db *bun.DB, cfg *config.Config, log *logger.Logger) int {
	fs := flag.NewFlagSet("cancel-job", flag.ContinueOnError)
	id := fs.Int64("id", 0, "job id to cancel")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "cancel-job: --id is required")
		return exitBadInput
	}

	manager, closeFn, err := newJobManager(ctx, db, cfg, log, "genflow-cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cancel-job: %v\n", err)
		return exitRuntime
	}
	defer closeFn()

	state, err := manager.Cancel(ctx, *id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cancel-job failed: %v\n", err)
		return exitRuntime
	}

	fmt.Printf("job %d is now %s\n", *id, state)
	return exitOK
}
