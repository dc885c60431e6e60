package projects

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Attachments is the part of the attachment service a project delete needs.
type Attachments interface {
	ForProject(ctx context.Context, projectID string) ([]domain.Attachment, error)
	Purge(ctx context.Context, attachments []domain.Attachment) error
}

type BoardEvicter interface {
	Evict(ctx context.Context, projectIDs ...string) error
}

type Deps struct {
	Repo        repo.ProjectRepository
	Tasks       repo.TaskReader
	Attachments Attachments
	Cache       BoardEvicter
	DoneColumn  string
	Logger      *slog.Logger
}

type Service struct {
	repo        repo.ProjectRepository
	tasks       repo.TaskReader
	attachments Attachments
	cache       BoardEvicter
	doneColumn  string
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(deps Deps) (*Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("project repository is required")
	}
	if deps.Tasks == nil {
		return nil, errors.New("task reader is required")
	}
	if strings.TrimSpace(deps.DoneColumn) == "" {
		return nil, errors.New("done column is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		tasks:       deps.Tasks,
		attachments: deps.Attachments,
		cache:       deps.Cache,
		doneColumn:  deps.DoneColumn,
		logger:      logger,
		now:         time.Now,
	}, nil
}

type Input struct {
	Name        string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
	Status      domain.ProjectStatus
}

func (in Input) apply(p domain.Project) domain.Project {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)
	p.StartDate = in.StartDate
	p.EndDate = in.EndDate
	if in.Status != "" {
		p.Status = in.Status
	}
	return p
}

func (s *Service) Create(ctx context.Context, in Input) (domain.Project, error) {
	now := s.now().UTC()
	p := in.apply(domain.Project{
		ID:        uuid.NewString(),
		Status:    domain.ProjectStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err := p.Validate(); err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// Detail is a project with its task and ticket counters.
type Detail struct {
	Project domain.Project
	Stats   domain.ProjectStats
}

func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	stats, err := s.repo.Stats(ctx, p.ID, s.doneColumn)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Project: p, Stats: stats}, nil
}

// List returns projects newest first.
func (s *Service) List(ctx context.Context, status domain.ProjectStatus, limit int) ([]domain.Project, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Invalidf("invalid project status %q", status)
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return s.repo.List(ctx, repo.ProjectFilter{Status: status, Limit: limit})
}

func (s *Service) Update(ctx context.Context, id string, in Input) (domain.Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	p = in.apply(p)
	p.UpdatedAt = s.now().UTC()
	if err := p.Validate(); err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// Delete removes a project; tasks and tickets cascade in the database. The
// attachments of the project and its children are purged afterwards.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	var attached []domain.Attachment
	if s.attachments != nil {
		list, err := s.attachments.ForProject(ctx, id)
		if err != nil {
			return err
		}
		attached = list
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if len(attached) > 0 {
		if err := s.attachments.Purge(ctx, attached); err != nil {
			s.logger.Warn("project attachment cleanup failed", "project_id", id, "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Evict(ctx, id); err != nil {
			s.logger.Warn("board cache eviction failed", "project_id", id, "error", err)
		}
	}
	return nil
}

// TasksData lists a project's tasks ordered by column and position.
func (s *Service) TasksData(ctx context.Context, id string) ([]domain.Task, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.tasks.ListProjectTasks(ctx, p.ID)
}

// Gantt lists the tasks that have both dates, by start date.
func (s *Service) Gantt(ctx context.Context, id string) ([]domain.Task, error) {
	tasks, err := s.TasksData(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.StartDate != nil && t.DueDate != nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDate.Before(*out[j].StartDate)
	})
	return out, nil
}
