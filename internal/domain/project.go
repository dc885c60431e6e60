package domain

import (
	"time"
)

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCancelled ProjectStatus = "cancelled"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusCompleted, ProjectStatusOnHold, ProjectStatusCancelled:
		return true
	default:
		return false
	}
}

// Project owns tasks, tickets and attachments.
type Project struct {
	ID          string
	Name        string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
	Status      ProjectStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Project) Validate() error {
	if err := validateName("name", p.Name); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return Invalidf("invalid project status %q", p.Status)
	}
	return validateRange("start_date", p.StartDate, "end_date", p.EndDate)
}

// ProjectStats summarizes a project's tasks and tickets.
type ProjectStats struct {
	TotalTasks     int
	CompletedTasks int
	PendingTasks   int
	TotalTickets   int
	OpenTickets    int
	Progress       float64
}

// NewProjectStats derives pending tasks and progress from the raw counts.
func NewProjectStats(totalTasks, completedTasks, totalTickets, openTickets int) ProjectStats {
	return ProjectStats{
		TotalTasks:     totalTasks,
		CompletedTasks: completedTasks,
		PendingTasks:   totalTasks - completedTasks,
		TotalTickets:   totalTickets,
		OpenTickets:    openTickets,
		Progress:       Progress(completedTasks, totalTasks),
	}
}

// DashboardStats are the global counters shown on the dashboard.
type DashboardStats struct {
	TotalProjects    int
	ActiveProjects   int
	TotalTasks       int
	PendingTasks     int
	TotalTickets     int
	OpenTickets      int
	UpcomingMeetings int
}
