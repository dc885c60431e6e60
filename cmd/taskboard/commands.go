package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/taskboard-labs/taskboard/internal/boardconfig"
	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/platform/apivalidate"
	"github.com/taskboard-labs/taskboard/internal/platform/cache"
	"github.com/taskboard-labs/taskboard/internal/platform/env"
	"github.com/taskboard-labs/taskboard/internal/platform/httpserver"
	platformstore "github.com/taskboard-labs/taskboard/internal/platform/objectstore"
	"github.com/taskboard-labs/taskboard/internal/platform/postgres"
	"github.com/taskboard-labs/taskboard/internal/platform/requestid"
	"github.com/taskboard-labs/taskboard/internal/repo"
	pgrepo "github.com/taskboard-labs/taskboard/internal/repo/postgres"
	"github.com/taskboard-labs/taskboard/internal/service/board"
)

func serveCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), logger)
		},
	}
}

func runServe(ctx context.Context, logger *slog.Logger) error {
	cfg, err := serverConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid env: %w", err)
	}
	boardCfg, err := boardconfig.Load(cfg.BoardConfigPath)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, logger, true)
	if err != nil {
		return err
	}
	defer b.Close()

	svcs, err := buildServices(b, serviceOptions{
		BoardConfig:    boardCfg,
		UploadMaxBytes: cfg.UploadMaxBytes,
		PresignTTL:     cfg.PresignTTL,
		MeetingURL:     cfg.MeetingURL,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	validator, err := apivalidate.New()
	if err != nil {
		return fmt.Errorf("openapi document: %w", err)
	}
	pages, err := newWebUI(svcs.board, svcs.projects, svcs.dashboard, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("GET /readyz", httpserver.ReadyzWithChecks(serviceName, readinessChecks(b)...))
	mux.Handle("GET /metrics", promhttp.Handler())

	api := &taskboardAPI{
		logger:    logger,
		board:     svcs.board,
		projects:  svcs.projects,
		tickets:   svcs.tickets,
		meetings:  svcs.meetings,
		dashboard: svcs.dashboard,
		now:       time.Now,
	}
	if svcs.attachments != nil {
		api.attachments = svcs.attachments
	}
	api.register(mux)
	pages.register(mux)

	handler := httpserver.Wrap(logger, serviceName, validator.Middleware(mux))
	return httpserver.Run(ctx, logger, httpserver.Config{
		Service:         serviceName,
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, handler)
}

func readinessChecks(b *backends) []httpserver.ReadinessCheck {
	const timeout = 750 * time.Millisecond
	return []httpserver.ReadinessCheck{
		{Name: "postgres", Timeout: timeout, Check: b.db.PingContext},
		{Name: "minio", Timeout: timeout, Check: func(ctx context.Context) error {
			return platformstore.CheckBucket(ctx, b.minio, b.storeCfg)
		}},
		{Name: "redis", Timeout: timeout, Check: func(ctx context.Context) error {
			return cache.Ping(ctx, b.redis)
		}},
	}
}

func migrateCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			applied, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "count", len(applied), "versions", applied)
			return nil
		},
	}
}

func normalizeCmd(logger *slog.Logger) *cobra.Command {
	var (
		projectID string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Rewrite task positions of every column into dense order",
		Long: `Rewrite task positions of every column into dense 0..n-1 order.

Use after batch reorders that left gaps or duplicates, or after importing
legacy data. Without --project every project is repaired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			boardCfg, err := boardconfig.Load(env.String("TASKBOARD_BOARD_CONFIG", ""))
			if err != nil {
				return err
			}
			b, err := openBackends(cmd.Context(), logger, false)
			if err != nil {
				return err
			}
			defer b.Close()

			svcs, err := buildServices(b, serviceOptions{BoardConfig: boardCfg, Logger: logger})
			if err != nil {
				return err
			}
			ids := []string{projectID}
			if projectID == "" {
				if ids, err = projectIDs(cmd.Context(), pgrepo.NewProjectStore(b.db)); err != nil {
					return err
				}
			}
			return runNormalize(cmd.Context(), cmd.OutOrStdout(), svcs.board, ids, dryRun)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id to repair (default: all projects)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the repairs without writing them")
	return cmd
}

type projectLister interface {
	List(ctx context.Context, filter repo.ProjectFilter) ([]domain.Project, error)
}

func projectIDs(ctx context.Context, projects projectLister) ([]string, error) {
	list, err := projects.List(ctx, repo.ProjectFilter{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(list))
	for i, p := range list {
		ids[i] = p.ID
	}
	return ids, nil
}

type normalizer interface {
	Normalize(ctx context.Context, projectID string, dryRun bool, rc board.RequestContext) (board.NormalizeResult, error)
}

func runNormalize(ctx context.Context, out io.Writer, svc normalizer, ids []string, dryRun bool) error {
	total := 0
	for _, id := range ids {
		res, err := svc.Normalize(ctx, id, dryRun, board.RequestContext{RequestID: requestid.New()})
		if err != nil {
			return fmt.Errorf("normalize %s: %w", id, err)
		}
		for _, c := range res.Columns {
			if c.Rows > 0 {
				fmt.Fprintf(out, "%s\t%s\t%d/%d rows\n", id, c.Column, c.Rows, c.Tasks)
			}
		}
		total += res.Rows
	}
	mode := "repaired"
	if dryRun {
		mode = "would be repaired (dry run)"
	}
	fmt.Fprintf(out, "%d projects checked, %d rows %s\n", len(ids), total, mode)
	return nil
}
