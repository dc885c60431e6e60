package domain

import (
	"net/url"
	"strings"
	"time"
)

// UpcomingMeetingWindow is how far ahead a scheduled meeting counts as upcoming.
const UpcomingMeetingWindow = 24 * time.Hour

type MeetingStatus string

const (
	MeetingStatusScheduled  MeetingStatus = "scheduled"
	MeetingStatusInProgress MeetingStatus = "in_progress"
	MeetingStatusCompleted  MeetingStatus = "completed"
	MeetingStatusCancelled  MeetingStatus = "cancelled"
)

func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingStatusScheduled, MeetingStatusInProgress, MeetingStatusCompleted, MeetingStatusCancelled:
		return true
	default:
		return false
	}
}

func (s MeetingStatus) Label() string {
	switch s {
	case MeetingStatusScheduled:
		return "Scheduled"
	case MeetingStatusInProgress:
		return "In Progress"
	case MeetingStatusCompleted:
		return "Completed"
	case MeetingStatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// Meeting is a scheduled call, optionally tied to a project. ProjectID is
// empty for meetings without one.
type Meeting struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	ScheduledAt time.Time
	BookingURL  string
	Status      MeetingStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (m Meeting) Validate() error {
	if err := validateName("title", m.Title); err != nil {
		return err
	}
	if m.ScheduledAt.IsZero() {
		return Invalidf("scheduled_at is required")
	}
	if !m.Status.Valid() {
		return Invalidf("invalid status %q", m.Status)
	}
	return ValidateBookingURL(m.BookingURL)
}

// Upcoming reports whether m is still scheduled within the window after now.
func (m Meeting) Upcoming(now time.Time) bool {
	return m.Status == MeetingStatusScheduled &&
		m.ScheduledAt.After(now) &&
		!m.ScheduledAt.After(now.Add(UpcomingMeetingWindow))
}

// ValidateBookingURL accepts an empty value or an absolute http(s) URL.
func ValidateBookingURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Invalidf("booking_url must be an http(s) URL")
	}
	return nil
}
