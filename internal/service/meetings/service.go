// Package meetings schedules calls, optionally attached to a project.
package meetings

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

type Deps struct {
	Repo     repo.MeetingRepository
	Projects ProjectGetter
	// DefaultBookingURL fills in meetings created without a booking link.
	DefaultBookingURL string
	Logger            *slog.Logger
}

type Service struct {
	repo       repo.MeetingRepository
	projects   ProjectGetter
	bookingURL string
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(deps Deps) (*Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("meeting repository is required")
	}
	if deps.Projects == nil {
		return nil, errors.New("project repository is required")
	}
	if err := domain.ValidateBookingURL(deps.DefaultBookingURL); err != nil {
		return nil, fmt.Errorf("default booking url: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       deps.Repo,
		projects:   deps.Projects,
		bookingURL: strings.TrimSpace(deps.DefaultBookingURL),
		logger:     logger,
		now:        time.Now,
	}, nil
}

type Input struct {
	ProjectID   string
	Title       string
	Description string
	ScheduledAt time.Time
	BookingURL  string
	Status      domain.MeetingStatus
}

// Create schedules a meeting. It must start in the future.
func (s *Service) Create(ctx context.Context, in Input) (domain.Meeting, error) {
	now := s.now().UTC()
	m := domain.Meeting{
		ID:          uuid.NewString(),
		ProjectID:   strings.TrimSpace(in.ProjectID),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		ScheduledAt: in.ScheduledAt.UTC(),
		BookingURL:  strings.TrimSpace(in.BookingURL),
		Status:      in.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if m.Status == "" {
		m.Status = domain.MeetingStatusScheduled
	}
	if m.BookingURL == "" {
		m.BookingURL = s.bookingURL
	}
	if err := m.Validate(); err != nil {
		return domain.Meeting{}, err
	}
	if !m.ScheduledAt.After(now) {
		return domain.Meeting{}, domain.Invalidf("scheduled_at must be in the future")
	}
	if err := s.checkProject(ctx, m.ProjectID); err != nil {
		return domain.Meeting{}, err
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return domain.Meeting{}, err
	}
	s.logger.Info("meeting scheduled", "meeting_id", m.ID, "project_id", m.ProjectID, "scheduled_at", m.ScheduledAt)
	return m, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Meeting, error) {
	return s.repo.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, filter repo.MeetingFilter) ([]domain.Meeting, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.Invalidf("invalid status %q", filter.Status)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, domain.Invalidf("to must be on or after from")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	return s.repo.List(ctx, filter)
}

// Update replaces the editable fields. Past times are allowed so a meeting
// can be corrected after the fact. An empty booking URL keeps the current
// one, an empty status keeps the current status.
func (s *Service) Update(ctx context.Context, id string, in Input) (domain.Meeting, error) {
	m, err := s.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Meeting{}, err
	}
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID != m.ProjectID {
		if err := s.checkProject(ctx, projectID); err != nil {
			return domain.Meeting{}, err
		}
		m.ProjectID = projectID
	}
	m.Title = strings.TrimSpace(in.Title)
	m.Description = strings.TrimSpace(in.Description)
	m.ScheduledAt = in.ScheduledAt.UTC()
	if v := strings.TrimSpace(in.BookingURL); v != "" {
		m.BookingURL = v
	} else if m.BookingURL == "" {
		m.BookingURL = s.bookingURL
	}
	if in.Status != "" {
		m.Status = in.Status
	}
	m.UpdatedAt = s.now().UTC()
	if err := m.Validate(); err != nil {
		return domain.Meeting{}, err
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return domain.Meeting{}, err
	}
	return m, nil
}

func (s *Service) ChangeStatus(ctx context.Context, id string, status domain.MeetingStatus) (domain.Meeting, error) {
	if !status.Valid() {
		return domain.Meeting{}, domain.Invalidf("invalid status %q", status)
	}
	id = strings.TrimSpace(id)
	if err := s.repo.UpdateStatus(ctx, id, status, s.now().UTC()); err != nil {
		return domain.Meeting{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, strings.TrimSpace(id))
}

// checkProject accepts an empty id: meetings need not belong to a project.
func (s *Service) checkProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return nil
	}
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return fmt.Errorf("project %s: %w", projectID, err)
	}
	return nil
}
