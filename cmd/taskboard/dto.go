package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/platform/activitylog"
	"github.com/taskboard-labs/taskboard/internal/service/board"
	"github.com/taskboard-labs/taskboard/internal/service/dashboard"
	"github.com/taskboard-labs/taskboard/internal/service/meetings"
	"github.com/taskboard-labs/taskboard/internal/service/projects"
	"github.com/taskboard-labs/taskboard/internal/service/tickets"
)

type projectDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   *string   `json:"start_date"`
	EndDate     *string   `json:"end_date"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type projectStatsDTO struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	PendingTasks   int     `json:"pending_tasks"`
	TotalTickets   int     `json:"total_tickets"`
	OpenTickets    int     `json:"open_tickets"`
	Progress       float64 `json:"progress"`
}

type projectDetailDTO struct {
	projectDTO
	Stats projectStatsDTO `json:"stats"`
}

type taskDTO struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	StartDate     *string   `json:"start_date"`
	DueDate       *string   `json:"due_date"`
	Priority      string    `json:"priority"`
	KanbanColumn  string    `json:"kanban_column"`
	Position      int       `json:"position"`
	IsOverdue     bool      `json:"is_overdue"`
	DaysRemaining *int      `json:"days_remaining"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type columnDTO struct {
	Name  string    `json:"name"`
	Tasks []taskDTO `json:"tasks"`
}

type boardDTO struct {
	ProjectID string      `json:"project_id"`
	Columns   []columnDTO `json:"columns"`
}

type ticketDTO struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	StatusLabel string    `json:"status_label"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type meetingDTO struct {
	ID          string    `json:"id"`
	ProjectID   *string   `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ScheduledAt time.Time `json:"scheduled_at"`
	BookingURL  string    `json:"booking_url"`
	Status      string    `json:"status"`
	StatusLabel string    `json:"status_label"`
	IsUpcoming  bool      `json:"is_upcoming"`
	IsPast      bool      `json:"is_past"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type attachmentDTO struct {
	ID          string    `json:"id"`
	OwnerType   string    `json:"owner_type"`
	OwnerID     string    `json:"owner_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	HumanSize   string    `json:"human_size"`
	CreatedAt   time.Time `json:"created_at"`
	URL         string    `json:"url,omitempty"`
}

type normalizeDTO struct {
	ProjectID string            `json:"project_id"`
	DryRun    bool              `json:"dry_run"`
	Rows      int               `json:"rows"`
	Columns   []columnRepairDTO `json:"columns"`
}

type columnRepairDTO struct {
	Column string `json:"kanban_column"`
	Tasks  int    `json:"tasks"`
	Rows   int    `json:"rows"`
}

type dashboardStatsDTO struct {
	TotalProjects    int `json:"total_projects"`
	ActiveProjects   int `json:"active_projects"`
	TotalTasks       int `json:"total_tasks"`
	PendingTasks     int `json:"pending_tasks"`
	TotalTickets     int `json:"total_tickets"`
	OpenTickets      int `json:"open_tickets"`
	UpcomingMeetings int `json:"upcoming_meetings"`
}

type dashboardDTO struct {
	Stats            dashboardStatsDTO    `json:"stats"`
	RecentProjects   []projectDTO         `json:"recent_projects"`
	UpcomingTasks    []taskDTO            `json:"upcoming_tasks"`
	CriticalTickets  []ticketDTO          `json:"critical_tickets"`
	UpcomingMeetings []meetingDTO         `json:"upcoming_meetings"`
	RecentActivity   []activitylog.Record `json:"recent_activity"`
	GeneratedAt      time.Time            `json:"generated_at"`
}

func dateValue(d *time.Time) *string {
	if d == nil {
		return nil
	}
	s := domain.FormatDate(d)
	return &s
}

func newProjectDTO(p domain.Project) projectDTO {
	return projectDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		StartDate:   dateValue(p.StartDate),
		EndDate:     dateValue(p.EndDate),
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func newProjectDTOs(list []domain.Project) []projectDTO {
	out := make([]projectDTO, len(list))
	for i, p := range list {
		out[i] = newProjectDTO(p)
	}
	return out
}

func newProjectDetailDTO(d projects.Detail) projectDetailDTO {
	return projectDetailDTO{
		projectDTO: newProjectDTO(d.Project),
		Stats: projectStatsDTO{
			TotalTasks:     d.Stats.TotalTasks,
			CompletedTasks: d.Stats.CompletedTasks,
			PendingTasks:   d.Stats.PendingTasks,
			TotalTickets:   d.Stats.TotalTickets,
			OpenTickets:    d.Stats.OpenTickets,
			Progress:       d.Stats.Progress,
		},
	}
}

func newTaskDTO(t domain.Task, now time.Time, doneColumn string) taskDTO {
	dto := taskDTO{
		ID:           t.ID,
		ProjectID:    t.ProjectID,
		Name:         t.Name,
		Description:  t.Description,
		StartDate:    dateValue(t.StartDate),
		DueDate:      dateValue(t.DueDate),
		Priority:     string(t.Priority),
		KanbanColumn: t.Column,
		Position:     t.Position,
		IsOverdue:    t.IsOverdue(now, doneColumn),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if days, ok := t.DaysRemaining(now); ok {
		dto.DaysRemaining = &days
	}
	return dto
}

func newTaskDTOs(list []domain.Task, now time.Time, doneColumn string) []taskDTO {
	out := make([]taskDTO, len(list))
	for i, t := range list {
		out[i] = newTaskDTO(t, now, doneColumn)
	}
	return out
}

func newBoardDTO(b domain.Board, now time.Time, doneColumn string) boardDTO {
	out := boardDTO{ProjectID: b.ProjectID, Columns: make([]columnDTO, len(b.Columns))}
	for i, c := range b.Columns {
		out.Columns[i] = columnDTO{Name: c.Name, Tasks: newTaskDTOs(c.Tasks, now, doneColumn)}
	}
	return out
}

func newTicketDTO(t domain.Ticket) ticketDTO {
	return ticketDTO{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		StatusLabel: t.Status.Label(),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func newTicketDTOs(list []domain.Ticket) []ticketDTO {
	out := make([]ticketDTO, len(list))
	for i, t := range list {
		out[i] = newTicketDTO(t)
	}
	return out
}

func newMeetingDTO(m domain.Meeting, now time.Time) meetingDTO {
	dto := meetingDTO{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		ScheduledAt: m.ScheduledAt,
		BookingURL:  m.BookingURL,
		Status:      string(m.Status),
		StatusLabel: m.Status.Label(),
		IsUpcoming:  m.Upcoming(now),
		IsPast:      m.ScheduledAt.Before(now),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ProjectID != "" {
		id := m.ProjectID
		dto.ProjectID = &id
	}
	return dto
}

func newMeetingDTOs(list []domain.Meeting, now time.Time) []meetingDTO {
	out := make([]meetingDTO, len(list))
	for i, m := range list {
		out[i] = newMeetingDTO(m, now)
	}
	return out
}

func newAttachmentDTO(a domain.Attachment) attachmentDTO {
	return attachmentDTO{
		ID:          a.ID,
		OwnerType:   string(a.OwnerType),
		OwnerID:     a.OwnerID,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		HumanSize:   domain.HumanSize(a.SizeBytes),
		CreatedAt:   a.CreatedAt,
	}
}

func newNormalizeDTO(res board.NormalizeResult) normalizeDTO {
	out := normalizeDTO{ProjectID: res.ProjectID, DryRun: res.DryRun, Rows: res.Rows, Columns: make([]columnRepairDTO, len(res.Columns))}
	for i, c := range res.Columns {
		out.Columns[i] = columnRepairDTO{Column: c.Column, Tasks: c.Tasks, Rows: c.Rows}
	}
	return out
}

func newDashboardDTO(s dashboard.Summary, doneColumn string) dashboardDTO {
	activity := s.RecentActivity
	if activity == nil {
		activity = []activitylog.Record{}
	}
	return dashboardDTO{
		Stats: dashboardStatsDTO{
			TotalProjects:    s.Stats.TotalProjects,
			ActiveProjects:   s.Stats.ActiveProjects,
			TotalTasks:       s.Stats.TotalTasks,
			PendingTasks:     s.Stats.PendingTasks,
			TotalTickets:     s.Stats.TotalTickets,
			OpenTickets:      s.Stats.OpenTickets,
			UpcomingMeetings: s.Stats.UpcomingMeetings,
		},
		RecentProjects:   newProjectDTOs(s.RecentProjects),
		UpcomingTasks:    newTaskDTOs(s.UpcomingTasks, s.GeneratedAt, doneColumn),
		CriticalTickets:  newTicketDTOs(s.CriticalTickets),
		UpcomingMeetings: newMeetingDTOs(s.UpcomingMeetings, s.GeneratedAt),
		RecentActivity:   activity,
		GeneratedAt:      s.GeneratedAt,
	}
}

// Request bodies. Nullable fields are pointers so an explicit null and an
// absent field both clear the value.

type projectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	Status      string  `json:"status"`
}

func (req projectRequest) input() (projects.Input, error) {
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		return projects.Input{}, err
	}
	end, err := parseDateField("end_date", req.EndDate)
	if err != nil {
		return projects.Input{}, err
	}
	return projects.Input{
		Name:        req.Name,
		Description: deref(req.Description),
		StartDate:   start,
		EndDate:     end,
		Status:      domain.ProjectStatus(strings.TrimSpace(req.Status)),
	}, nil
}

type taskRequest struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	StartDate    *string `json:"start_date"`
	DueDate      *string `json:"due_date"`
	Priority     string  `json:"priority"`
	KanbanColumn string  `json:"kanban_column"`
}

func (req taskRequest) input() (board.TaskInput, error) {
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		return board.TaskInput{}, err
	}
	due, err := parseDateField("due_date", req.DueDate)
	if err != nil {
		return board.TaskInput{}, err
	}
	return board.TaskInput{
		Name:        req.Name,
		Description: deref(req.Description),
		StartDate:   start,
		DueDate:     due,
		Priority:    domain.Priority(strings.TrimSpace(req.Priority)),
		Column:      req.KanbanColumn,
	}, nil
}

type ticketRequest struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
}

func (req ticketRequest) input() tickets.Input {
	return tickets.Input{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.TicketPriority(strings.TrimSpace(req.Priority)),
		Status:      domain.TicketStatus(strings.TrimSpace(req.Status)),
	}
}

type meetingRequest struct {
	ProjectID   *string `json:"project_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	ScheduledAt string  `json:"scheduled_at"`
	BookingURL  *string `json:"booking_url"`
	Status      string  `json:"status"`
}

func (req meetingRequest) input() (meetings.Input, error) {
	at, err := parseTimestamp("scheduled_at", req.ScheduledAt)
	if err != nil {
		return meetings.Input{}, err
	}
	if at == nil {
		return meetings.Input{}, domain.Invalidf("scheduled_at is required")
	}
	return meetings.Input{
		ProjectID:   deref(req.ProjectID),
		Title:       req.Title,
		Description: deref(req.Description),
		ScheduledAt: *at,
		BookingURL:  deref(req.BookingURL),
		Status:      domain.MeetingStatus(strings.TrimSpace(req.Status)),
	}, nil
}

type moveRequest struct {
	KanbanColumn string `json:"kanban_column"`
	Position     *int   `json:"position"`
}

type positionRequest struct {
	Position *int `json:"position"`
}

type reorderItem struct {
	ID           string `json:"id"`
	KanbanColumn string `json:"kanban_column"`
	Position     *int   `json:"position"`
}

type reorderRequest struct {
	Tasks []reorderItem `json:"tasks"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func parseDateField(field string, raw *string) (*time.Time, error) {
	d, err := domain.ParseDate(deref(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// parseTimestamp reads an RFC 3339 value. Empty input yields nil.
func parseTimestamp(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, domain.Invalidf("%s: invalid timestamp %q", field, raw)
	}
	return &t, nil
}

func requirePosition(field string, p *int) (int, error) {
	if p == nil {
		return 0, domain.Invalidf("%s is required", field)
	}
	return *p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
