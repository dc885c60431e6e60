package meetings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

type fakeRepo struct {
	meetings map[string]domain.Meeting
	filter   repo.MeetingFilter
}

func (r *fakeRepo) Create(ctx context.Context, m domain.Meeting) error {
	r.meetings[m.ID] = m
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id string) (domain.Meeting, error) {
	m, ok := r.meetings[id]
	if !ok {
		return domain.Meeting{}, repo.ErrNotFound
	}
	return m, nil
}

func (r *fakeRepo) List(ctx context.Context, filter repo.MeetingFilter) ([]domain.Meeting, error) {
	r.filter = filter
	return nil, nil
}

func (r *fakeRepo) Update(ctx context.Context, m domain.Meeting) error {
	r.meetings[m.ID] = m
	return nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, id string, status domain.MeetingStatus, at time.Time) error {
	m, ok := r.meetings[id]
	if !ok {
		return repo.ErrNotFound
	}
	m.Status = status
	m.UpdatedAt = at
	r.meetings[id] = m
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.meetings[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.meetings, id)
	return nil
}

type fakeProjects map[string]bool

func (p fakeProjects) Get(ctx context.Context, id string) (domain.Project, error) {
	if !p[id] {
		return domain.Project{}, repo.ErrNotFound
	}
	return domain.Project{ID: id}, nil
}

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	r := &fakeRepo{meetings: map[string]domain.Meeting{}}
	svc, err := NewService(Deps{
		Repo:              r,
		Projects:          fakeProjects{"p-1": true},
		DefaultBookingURL: "https://calendly.com/team/30min",
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewService() err=%v", err)
	}
	svc.now = func() time.Time { return fixedNow }
	return svc, r
}

func TestNewService_RejectsBadDefaultURL(t *testing.T) {
	_, err := NewService(Deps{Repo: &fakeRepo{}, Projects: fakeProjects{}, DefaultBookingURL: "ftp://x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewService() err=%v, want validation", err)
	}
}

func TestCreate_DefaultsAndValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	at := fixedNow.Add(3 * time.Hour)

	m, err := svc.Create(ctx, Input{ProjectID: "p-1", Title: " Sprint review ", ScheduledAt: at})
	if err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	if m.Title != "Sprint review" || m.Status != domain.MeetingStatusScheduled || m.BookingURL != "https://calendly.com/team/30min" {
		t.Fatalf("meeting=%+v", m)
	}

	standalone, err := svc.Create(ctx, Input{Title: "Vendor call", ScheduledAt: at, BookingURL: "https://meet.example.com/abc"})
	if err != nil {
		t.Fatalf("Create(no project) err=%v", err)
	}
	if standalone.ProjectID != "" || standalone.BookingURL != "https://meet.example.com/abc" {
		t.Fatalf("standalone=%+v", standalone)
	}

	tests := []struct {
		name string
		in   Input
		want error
	}{
		{name: "past", in: Input{Title: "x", ScheduledAt: fixedNow.Add(-time.Minute)}, want: domain.ErrValidation},
		{name: "no time", in: Input{Title: "x"}, want: domain.ErrValidation},
		{name: "no title", in: Input{ScheduledAt: at}, want: domain.ErrValidation},
		{name: "bad url", in: Input{Title: "x", ScheduledAt: at, BookingURL: "not a url"}, want: domain.ErrValidation},
		{name: "bad status", in: Input{Title: "x", ScheduledAt: at, Status: "postponed"}, want: domain.ErrValidation},
		{name: "unknown project", in: Input{ProjectID: "p-9", Title: "x", ScheduledAt: at}, want: repo.ErrNotFound},
	}
	for _, tc := range tests {
		if _, err := svc.Create(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: Create() err=%v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestUpdate_AllowsPastAndKeepsURL(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	m, err := svc.Create(ctx, Input{ProjectID: "p-1", Title: "Retro", ScheduledAt: fixedNow.Add(time.Hour), BookingURL: "https://meet.example.com/retro"})
	if err != nil {
		t.Fatalf("Create() err=%v", err)
	}

	past := fixedNow.Add(-2 * time.Hour)
	updated, err := svc.Update(ctx, m.ID, Input{Title: "Retro (held)", ScheduledAt: past, Status: domain.MeetingStatusCompleted})
	if err != nil {
		t.Fatalf("Update() err=%v", err)
	}
	if updated.ProjectID != "" || !updated.ScheduledAt.Equal(past) || updated.BookingURL != "https://meet.example.com/retro" || updated.Status != domain.MeetingStatusCompleted {
		t.Fatalf("updated=%+v", updated)
	}
	if _, err := svc.Update(ctx, m.ID, Input{ProjectID: "p-9", Title: "x", ScheduledAt: past}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown project err=%v", err)
	}
	if _, err := svc.Update(ctx, "missing", Input{Title: "x", ScheduledAt: past}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing meeting err=%v", err)
	}
}

func TestChangeStatusAndDelete(t *testing.T) {
	svc, r := newTestService(t)
	ctx := context.Background()
	m, err := svc.Create(ctx, Input{Title: "Kickoff", ScheduledAt: fixedNow.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Create() err=%v", err)
	}

	done, err := svc.ChangeStatus(ctx, m.ID, domain.MeetingStatusCompleted)
	if err != nil {
		t.Fatalf("ChangeStatus() err=%v", err)
	}
	if done.Status != domain.MeetingStatusCompleted || !done.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("meeting=%+v", done)
	}
	if _, err := svc.ChangeStatus(ctx, m.ID, "postponed"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad status err=%v", err)
	}

	if err := svc.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Delete() err=%v", err)
	}
	if _, ok := r.meetings[m.ID]; ok {
		t.Fatalf("meeting not deleted")
	}
	if err := svc.Delete(ctx, m.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second Delete() err=%v", err)
	}
}

func TestList_ValidatesFilter(t *testing.T) {
	svc, r := newTestService(t)
	ctx := context.Background()

	if _, err := svc.List(ctx, repo.MeetingFilter{ProjectID: "p-1", Limit: 10000}); err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if r.filter.Limit != maxListLimit || r.filter.ProjectID != "p-1" {
		t.Fatalf("filter=%+v", r.filter)
	}
	if _, err := svc.List(ctx, repo.MeetingFilter{Status: "postponed"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad status err=%v", err)
	}
	from, to := fixedNow, fixedNow.Add(-time.Hour)
	if _, err := svc.List(ctx, repo.MeetingFilter{From: &from, To: &to}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("inverted range err=%v", err)
	}
}
