package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func date(t *testing.T, raw string) *time.Time {
	t.Helper()
	d, err := ParseDate(raw)
	if err != nil {
		t.Fatalf("ParseDate(%q) err=%v", raw, err)
	}
	return d
}

func TestParseDate(t *testing.T) {
	if d, err := ParseDate(" "); err != nil || d != nil {
		t.Fatalf("ParseDate(empty)=%v,%v want nil,nil", d, err)
	}
	d := date(t, "2024-03-05")
	if FormatDate(d) != "2024-03-05" {
		t.Fatalf("FormatDate()=%q", FormatDate(d))
	}
	if _, err := ParseDate("05/03/2024"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if FormatDate(nil) != "" {
		t.Fatalf("FormatDate(nil) should be empty")
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		done, total int
		want        float64
	}{
		{done: 0, total: 0, want: 0},
		{done: 1, total: 3, want: 33.33},
		{done: 2, total: 3, want: 66.67},
		{done: 4, total: 4, want: 100},
	}
	for _, tc := range tests {
		if got := Progress(tc.done, tc.total); got != tc.want {
			t.Fatalf("Progress(%d,%d)=%v, want %v", tc.done, tc.total, got, tc.want)
		}
	}
}

func TestNewProjectStats(t *testing.T) {
	s := NewProjectStats(5, 2, 3, 1)
	if s.PendingTasks != 3 || s.Progress != 40 || s.OpenTickets != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestProjectValidate(t *testing.T) {
	valid := Project{Name: "Launch", Status: ProjectStatusActive}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	tests := []struct {
		name string
		p    Project
	}{
		{name: "missing name", p: Project{Status: ProjectStatusActive}},
		{name: "long name", p: Project{Name: strings.Repeat("x", 256), Status: ProjectStatusActive}},
		{name: "bad status", p: Project{Name: "x", Status: "archived"}},
		{name: "end before start", p: Project{Name: "x", Status: ProjectStatusActive, StartDate: date(t, "2024-02-01"), EndDate: date(t, "2024-01-01")}},
	}
	for _, tc := range tests {
		if err := tc.p.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestTaskValidate(t *testing.T) {
	base := Task{ProjectID: "p", Name: "Write docs", Priority: PriorityMedium, Column: "To Do"}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	mutations := map[string]func(*Task){
		"project":  func(t *Task) { t.ProjectID = "" },
		"name":     func(t *Task) { t.Name = "  " },
		"priority": func(t *Task) { t.Priority = "urgent" },
		"column":   func(t *Task) { t.Column = "" },
		"position": func(t *Task) { t.Position = -1 },
		"dates": func(tk *Task) {
			tk.StartDate = date(t, "2024-05-02")
			tk.DueDate = date(t, "2024-05-01")
		},
	}
	for name, mutate := range mutations {
		task := base
		mutate(&task)
		if err := task.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestTaskOverdueAndDaysRemaining(t *testing.T) {
	now := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

	task := Task{Column: "In Progress", DueDate: date(t, "2024-06-09")}
	if !task.IsOverdue(now, "Done") {
		t.Fatalf("expected overdue")
	}
	if days, ok := task.DaysRemaining(now); !ok || days != -1 {
		t.Fatalf("DaysRemaining()=%d,%v want -1,true", days, ok)
	}

	task.Column = "Done"
	if task.IsOverdue(now, "Done") {
		t.Fatalf("done tasks are never overdue")
	}

	today := Task{Column: "To Do", DueDate: date(t, "2024-06-10")}
	if today.IsOverdue(now, "Done") {
		t.Fatalf("due today is not overdue")
	}

	future := Task{Column: "To Do", DueDate: date(t, "2024-06-17")}
	if days, _ := future.DaysRemaining(now); days != 7 {
		t.Fatalf("DaysRemaining()=%d, want 7", days)
	}

	if _, ok := (Task{}).DaysRemaining(now); ok {
		t.Fatalf("expected no due date")
	}
}

func TestTicketValidate(t *testing.T) {
	ticket := Ticket{ProjectID: "p", Title: "Bug", Description: "it breaks", Priority: TicketPriorityCritical, Status: TicketStatusOpen}
	if err := ticket.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	ticket.Status = "reopened"
	if err := ticket.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	ticket.Status = TicketStatusClosed
	ticket.Description = ""
	if err := ticket.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if TicketStatusInProgress.Label() != "In Progress" {
		t.Fatalf("Label()=%q", TicketStatusInProgress.Label())
	}
}

func TestMeetingValidateAndUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m := Meeting{Title: "Review", ScheduledAt: now.Add(2 * time.Hour), Status: MeetingStatusScheduled, BookingURL: "https://calendly.com/x"}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	if !m.Upcoming(now) {
		t.Fatalf("meeting in two hours should be upcoming")
	}

	tests := []struct {
		name string
		at   time.Duration
		st   MeetingStatus
		want bool
	}{
		{name: "at window end", at: UpcomingMeetingWindow, st: MeetingStatusScheduled, want: true},
		{name: "past window", at: UpcomingMeetingWindow + time.Minute, st: MeetingStatusScheduled, want: false},
		{name: "already started", at: 0, st: MeetingStatusScheduled, want: false},
		{name: "cancelled", at: time.Hour, st: MeetingStatusCancelled, want: false},
	}
	for _, tc := range tests {
		mm := Meeting{ScheduledAt: now.Add(tc.at), Status: tc.st}
		if got := mm.Upcoming(now); got != tc.want {
			t.Fatalf("%s: Upcoming()=%v, want %v", tc.name, got, tc.want)
		}
	}

	m.BookingURL = "javascript:alert(1)"
	if err := m.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for booking url, got %v", err)
	}
	m.BookingURL = ""
	m.ScheduledAt = time.Time{}
	if err := m.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing time, got %v", err)
	}
	if MeetingStatusCancelled.Label() != "Cancelled" {
		t.Fatalf("Label()=%q", MeetingStatusCancelled.Label())
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{in: 0, want: "0 B"},
		{in: 512, want: "512 B"},
		{in: 1536, want: "1.50 KB"},
		{in: 10 * 1024 * 1024, want: "10.00 MB"},
	}
	for _, tc := range tests {
		if got := HumanSize(tc.in); got != tc.want {
			t.Fatalf("HumanSize(%d)=%q, want %q", tc.in, got, tc.want)
		}
	}
	if !OwnerTicket.Valid() || OwnerType("meeting").Valid() {
		t.Fatalf("unexpected owner type validity")
	}
}
