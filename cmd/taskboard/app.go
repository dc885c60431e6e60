package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"github.com/taskboard-labs/taskboard/internal/boardconfig"
	"github.com/taskboard-labs/taskboard/internal/platform/cache"
	platformstore "github.com/taskboard-labs/taskboard/internal/platform/objectstore"
	"github.com/taskboard-labs/taskboard/internal/platform/postgres"
	pgrepo "github.com/taskboard-labs/taskboard/internal/repo/postgres"
	"github.com/taskboard-labs/taskboard/internal/service/attachments"
	"github.com/taskboard-labs/taskboard/internal/service/board"
	"github.com/taskboard-labs/taskboard/internal/service/dashboard"
	"github.com/taskboard-labs/taskboard/internal/service/meetings"
	"github.com/taskboard-labs/taskboard/internal/service/projects"
	"github.com/taskboard-labs/taskboard/internal/service/tickets"
	"github.com/taskboard-labs/taskboard/internal/storage/boardcache"
	"github.com/taskboard-labs/taskboard/internal/storage/objectstore"
)

// backends are the external systems a command talks to.
type backends struct {
	db       *sql.DB
	redis    *redis.Client
	cacheCfg cache.Config
	minio    *minio.Client
	storeCfg platformstore.Config
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

func openDatabase(ctx context.Context) (*sql.DB, error) {
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, logger *slog.Logger) (*redis.Client, cache.Config, error) {
	cacheCfg, err := cache.ConfigFromEnv()
	if err != nil {
		return nil, cache.Config{}, fmt.Errorf("redis config: %w", err)
	}
	client, err := cache.NewClient(cacheCfg)
	if err != nil {
		return nil, cache.Config{}, fmt.Errorf("redis client: %w", err)
	}
	if client == nil {
		logger.Info("redis disabled; board cache and reorder de-duplication are off")
		return nil, cacheCfg, nil
	}
	if err := cache.Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, cache.Config{}, fmt.Errorf("redis unavailable: %w", err)
	}
	return client, cacheCfg, nil
}

// openBackends connects to postgres, redis and, when withBlobs is set, minio.
func openBackends(ctx context.Context, logger *slog.Logger, withBlobs bool) (*backends, error) {
	db, err := openDatabase(ctx)
	if err != nil {
		return nil, err
	}
	b := &backends{db: db}

	b.redis, b.cacheCfg, err = openRedis(ctx, logger)
	if err != nil {
		b.Close()
		return nil, err
	}

	if !withBlobs {
		return b, nil
	}
	b.storeCfg, err = platformstore.ConfigFromEnv()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("minio config: %w", err)
	}
	b.minio, err = platformstore.NewMinIOClient(b.storeCfg)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if err := platformstore.EnsureBucket(ctx, b.minio, b.storeCfg); err != nil {
		b.Close()
		return nil, fmt.Errorf("minio bucket: %w", err)
	}
	return b, nil
}

// services is the application layer shared by the HTTP surface and the CLI.
type services struct {
	boardCfg    boardconfig.Config
	board       *board.Service
	projects    *projects.Service
	tickets     *tickets.Service
	meetings    *meetings.Service
	attachments *attachments.Service
	dashboard   *dashboard.Service
}

type serviceOptions struct {
	BoardConfig    boardconfig.Config
	UploadMaxBytes int64
	PresignTTL     time.Duration
	MeetingURL     string
	Logger         *slog.Logger
}

func buildServices(b *backends, opts serviceOptions) (*services, error) {
	projectStore := pgrepo.NewProjectStore(b.db)
	taskStore := pgrepo.NewTaskStore(b.db)
	ticketStore := pgrepo.NewTicketStore(b.db)
	boardCache := boardcache.New(b.redis, b.cacheCfg.BoardTTL)

	out := &services{boardCfg: opts.BoardConfig}

	var blobs board.BlobRemover
	if b.minio != nil {
		store, err := objectstore.NewMinioStoreWithClient(b.minio)
		if err != nil {
			return nil, err
		}
		out.attachments, err = attachments.NewService(attachments.Deps{
			Repo:  pgrepo.NewAttachmentStore(b.db),
			Blobs: store,
			Owners: attachments.RepoOwners{
				Projects: projectStore,
				Tasks:    taskStore,
				Tickets:  ticketStore,
			},
			Bucket:   b.storeCfg.BucketAttachments,
			MaxBytes: opts.UploadMaxBytes,
			URLTTL:   opts.PresignTTL,
			Logger:   opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("attachments service: %w", err)
		}
		blobs = out.attachments
	}

	var err error
	out.board, err = board.NewService(board.Deps{
		Store:    pgrepo.NewBoardStore(b.db),
		Tasks:    taskStore,
		Projects: projectStore,
		Config:   opts.BoardConfig,
		Cache:    boardCache,
		Deduper:  boardcache.NewDeduper(b.redis, b.cacheCfg.DedupeTTL),
		Blobs:    blobs,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("board service: %w", err)
	}

	projectDeps := projects.Deps{
		Repo:       projectStore,
		Tasks:      taskStore,
		Cache:      boardCache,
		DoneColumn: opts.BoardConfig.DoneColumn,
		Logger:     opts.Logger,
	}
	ticketDeps := tickets.Deps{
		Repo:     ticketStore,
		Projects: projectStore,
		Logger:   opts.Logger,
	}
	if out.attachments != nil {
		projectDeps.Attachments = out.attachments
		ticketDeps.Attachments = out.attachments
	}
	if out.projects, err = projects.NewService(projectDeps); err != nil {
		return nil, fmt.Errorf("project service: %w", err)
	}
	if out.tickets, err = tickets.NewService(ticketDeps); err != nil {
		return nil, fmt.Errorf("ticket service: %w", err)
	}
	if out.meetings, err = meetings.NewService(meetings.Deps{
		Repo:              pgrepo.NewMeetingStore(b.db),
		Projects:          projectStore,
		DefaultBookingURL: opts.MeetingURL,
		Logger:            opts.Logger,
	}); err != nil {
		return nil, fmt.Errorf("meeting service: %w", err)
	}
	if out.dashboard, err = dashboard.NewService(pgrepo.NewDashboardStore(b.db), projectStore, opts.BoardConfig); err != nil {
		return nil, fmt.Errorf("dashboard service: %w", err)
	}
	return out, nil
}
