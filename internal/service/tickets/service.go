package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type ProjectGetter interface {
	Get(ctx context.Context, id string) (domain.Project, error)
}

// Attachments lists and purges the attachments of a deleted ticket.
type Attachments interface {
	List(ctx context.Context, ownerType domain.OwnerType, ownerID string, limit int) ([]domain.Attachment, error)
	Purge(ctx context.Context, attachments []domain.Attachment) error
}

type Deps struct {
	Repo        repo.TicketRepository
	Projects    ProjectGetter
	Attachments Attachments
	Logger      *slog.Logger
}

type Service struct {
	repo        repo.TicketRepository
	projects    ProjectGetter
	attachments Attachments
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(deps Deps) (*Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("ticket repository is required")
	}
	if deps.Projects == nil {
		return nil, errors.New("project repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		projects:    deps.Projects,
		attachments: deps.Attachments,
		logger:      logger,
		now:         time.Now,
	}, nil
}

type Input struct {
	ProjectID   string
	Title       string
	Description string
	Priority    domain.TicketPriority
	Status      domain.TicketStatus
}

func (s *Service) Create(ctx context.Context, in Input) (domain.Ticket, error) {
	now := s.now().UTC()
	t := domain.Ticket{
		ID:          uuid.NewString(),
		ProjectID:   strings.TrimSpace(in.ProjectID),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Priority:    in.Priority,
		Status:      in.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Priority == "" {
		t.Priority = domain.TicketPriorityMedium
	}
	if t.Status == "" {
		t.Status = domain.TicketStatusOpen
	}
	if err := t.Validate(); err != nil {
		return domain.Ticket{}, err
	}
	if err := s.checkProject(ctx, t.ProjectID); err != nil {
		return domain.Ticket{}, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return domain.Ticket{}, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Ticket, error) {
	return s.repo.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, filter repo.TicketFilter) ([]domain.Ticket, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.Invalidf("invalid status %q", filter.Status)
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, domain.Invalidf("invalid priority %q", filter.Priority)
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	return s.repo.List(ctx, filter)
}

// Update replaces the editable fields. An empty status keeps the current one.
func (s *Service) Update(ctx context.Context, id string, in Input) (domain.Ticket, error) {
	t, err := s.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Ticket{}, err
	}
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID != "" && projectID != t.ProjectID {
		if err := s.checkProject(ctx, projectID); err != nil {
			return domain.Ticket{}, err
		}
		t.ProjectID = projectID
	}
	t.Title = strings.TrimSpace(in.Title)
	t.Description = strings.TrimSpace(in.Description)
	if in.Priority != "" {
		t.Priority = in.Priority
	}
	if in.Status != "" {
		t.Status = in.Status
	}
	t.UpdatedAt = s.now().UTC()
	if err := t.Validate(); err != nil {
		return domain.Ticket{}, err
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return domain.Ticket{}, err
	}
	return t, nil
}

func (s *Service) ChangeStatus(ctx context.Context, id string, status domain.TicketStatus) (domain.Ticket, error) {
	if !status.Valid() {
		return domain.Ticket{}, domain.Invalidf("invalid status %q", status)
	}
	id = strings.TrimSpace(id)
	if err := s.repo.UpdateStatus(ctx, id, status, s.now().UTC()); err != nil {
		return domain.Ticket{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a ticket and then purges its attachments.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	var attached []domain.Attachment
	if s.attachments != nil {
		list, err := s.attachments.List(ctx, domain.OwnerTicket, id, 0)
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
			s.logger.Warn("ticket attachment cleanup failed", "ticket_id", id, "error", err)
		}
	}
	return nil
}

func (s *Service) checkProject(ctx context.Context, projectID string) error {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return fmt.Errorf("project %s: %w", projectID, err)
	}
	return nil
}
