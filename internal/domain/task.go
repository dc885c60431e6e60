package domain

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Task is a kanban card. Column and Position place it inside its
// (ProjectID, Column) partition.
type Task struct {
	ID          string
	ProjectID   string
	Name        string
	Description string
	StartDate   *time.Time
	DueDate     *time.Time
	Priority    Priority
	Column      string
	Position    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ProjectID) == "" {
		return Invalidf("project_id is required")
	}
	if err := validateName("name", t.Name); err != nil {
		return err
	}
	if !t.Priority.Valid() {
		return Invalidf("invalid priority %q", t.Priority)
	}
	if strings.TrimSpace(t.Column) == "" {
		return Invalidf("kanban_column is required")
	}
	if t.Position < 0 {
		return Invalidf("position must be >= 0")
	}
	return validateRange("start_date", t.StartDate, "due_date", t.DueDate)
}

// IsOverdue reports a due date before today on a task outside the done column.
func (t Task) IsOverdue(now time.Time, doneColumn string) bool {
	if t.DueDate == nil || t.Column == doneColumn {
		return false
	}
	return Day(*t.DueDate).Before(Day(now))
}

// DaysRemaining is the signed number of days until the due date.
func (t Task) DaysRemaining(now time.Time) (int, bool) {
	if t.DueDate == nil {
		return 0, false
	}
	return int(Day(*t.DueDate).Sub(Day(now)).Hours() / 24), true
}

// Column is one kanban column with its tasks in position order.
type Column struct {
	Name  string
	Tasks []Task
}

// Board is a project's kanban view.
type Board struct {
	ProjectID string
	Columns   []Column
}
