package domain

import (
	"strings"
	"time"
)

type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	default:
		return false
	}
}

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	default:
		return false
	}
}

func (s TicketStatus) Label() string {
	switch s {
	case TicketStatusOpen:
		return "Open"
	case TicketStatusInProgress:
		return "In Progress"
	case TicketStatusResolved:
		return "Resolved"
	case TicketStatusClosed:
		return "Closed"
	default:
		return string(s)
	}
}

type Ticket struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Priority    TicketPriority
	Status      TicketStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t Ticket) Validate() error {
	if strings.TrimSpace(t.ProjectID) == "" {
		return Invalidf("project_id is required")
	}
	if err := validateName("title", t.Title); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return Invalidf("description is required")
	}
	if !t.Priority.Valid() {
		return Invalidf("invalid priority %q", t.Priority)
	}
	if !t.Status.Valid() {
		return Invalidf("invalid status %q", t.Status)
	}
	return nil
}
