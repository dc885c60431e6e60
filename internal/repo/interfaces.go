package repo

import (
	"context"
	"errors"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/kanban"
	"github.com/taskboard-labs/taskboard/internal/platform/activitylog"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a write that lost a race or broke a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

type ProjectFilter struct {
	Status domain.ProjectStatus
	Limit  int
}

type TicketFilter struct {
	ProjectID string
	Status    domain.TicketStatus
	Priority  domain.TicketPriority
	Search    string
	Sort      string
	Order     string
	Limit     int
}

// MeetingFilter narrows meeting listings. From and To bound scheduled_at
// inclusively when set.
type MeetingFilter struct {
	ProjectID string
	Status    domain.MeetingStatus
	From      *time.Time
	To        *time.Time
	Search    string
	Sort      string
	Order     string
	Limit     int
}

// ProjectRepository manages projects.
type ProjectRepository interface {
	Create(ctx context.Context, project domain.Project) error
	Get(ctx context.Context, id string) (domain.Project, error)
	List(ctx context.Context, filter ProjectFilter) ([]domain.Project, error)
	Update(ctx context.Context, project domain.Project) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, id, doneColumn string) (domain.ProjectStats, error)
}

// TaskReader serves the read-only task views.
type TaskReader interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
	// ListProjectTasks returns a project's tasks ordered by column and position.
	ListProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error)
}

// TicketRepository manages tickets.
type TicketRepository interface {
	Create(ctx context.Context, ticket domain.Ticket) error
	Get(ctx context.Context, id string) (domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Update(ctx context.Context, ticket domain.Ticket) error
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// MeetingRepository manages meetings.
type MeetingRepository interface {
	Create(ctx context.Context, meeting domain.Meeting) error
	Get(ctx context.Context, id string) (domain.Meeting, error)
	List(ctx context.Context, filter MeetingFilter) ([]domain.Meeting, error)
	Update(ctx context.Context, meeting domain.Meeting) error
	UpdateStatus(ctx context.Context, id string, status domain.MeetingStatus, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// AttachmentRepository manages attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment domain.Attachment) error
	Get(ctx context.Context, id string) (domain.Attachment, error)
	ListByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string, limit int) ([]domain.Attachment, error)
	// ListForProject returns attachments of the project and of its tasks and tickets.
	ListForProject(ctx context.Context, projectID string) ([]domain.Attachment, error)
	Delete(ctx context.Context, id string) error
}

// DashboardRepository serves the cross-project summary.
type DashboardRepository interface {
	// Stats counts scheduled meetings in (meetingsFrom, meetingsTo] as upcoming.
	Stats(ctx context.Context, doneColumn string, meetingsFrom, meetingsTo time.Time) (domain.DashboardStats, error)
	UpcomingTasks(ctx context.Context, from, to time.Time, doneColumn string, limit int) ([]domain.Task, error)
	CriticalTickets(ctx context.Context, limit int) ([]domain.Ticket, error)
	UpcomingMeetings(ctx context.Context, from, to time.Time, limit int) ([]domain.Meeting, error)
	RecentActivity(ctx context.Context, limit int) ([]activitylog.Record, error)
}

// BoardStore runs position changes in one transaction.
type BoardStore interface {
	InTx(ctx context.Context, fn func(tx BoardTx) error) error
}

// BoardTx is the transactional view used by the position manager. Every
// method runs on the same transaction; returning an error from the InTx
// callback rolls everything back.
type BoardTx interface {
	// LockPartitions blocks until the caller holds every partition key.
	// Keys must be passed in sorted order.
	LockPartitions(ctx context.Context, keys []string) error
	GetTask(ctx context.Context, id string) (domain.Task, error)
	// GetTasks returns the tasks found among ids, keyed by id.
	GetTasks(ctx context.Context, ids []string) (map[string]domain.Task, error)
	ListPartition(ctx context.Context, projectID, column string) (kanban.Partition, error)
	// ListColumns returns the distinct columns holding tasks of a project.
	ListColumns(ctx context.Context, projectID string) ([]string, error)
	// ApplyPositions writes every assignment or none; an unknown task id
	// yields ErrNotFound.
	ApplyPositions(ctx context.Context, assignments []kanban.Assignment, at time.Time) error
	InsertTask(ctx context.Context, task domain.Task) error
	// UpdateTaskFields writes everything except column and position.
	UpdateTaskFields(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	DeleteAttachmentsByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]domain.Attachment, error)
	AppendActivity(ctx context.Context, event activitylog.Event) error
}
