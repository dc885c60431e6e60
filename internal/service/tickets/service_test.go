package tickets

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
	tickets map[string]domain.Ticket
	filter  repo.TicketFilter
}

func (r *fakeRepo) Create(ctx context.Context, t domain.Ticket) error {
	r.tickets[t.ID] = t
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id string) (domain.Ticket, error) {
	t, ok := r.tickets[id]
	if !ok {
		return domain.Ticket{}, repo.ErrNotFound
	}
	return t, nil
}

func (r *fakeRepo) List(ctx context.Context, filter repo.TicketFilter) ([]domain.Ticket, error) {
	r.filter = filter
	return nil, nil
}

func (r *fakeRepo) Update(ctx context.Context, t domain.Ticket) error {
	r.tickets[t.ID] = t
	return nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, at time.Time) error {
	t, ok := r.tickets[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = at
	r.tickets[id] = t
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.tickets[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.tickets, id)
	return nil
}

type fakeProjects map[string]bool

func (p fakeProjects) Get(ctx context.Context, id string) (domain.Project, error) {
	if !p[id] {
		return domain.Project{}, repo.ErrNotFound
	}
	return domain.Project{ID: id}, nil
}

type fakeAttachments struct {
	owned  map[string][]domain.Attachment
	purged []domain.Attachment
}

func (a *fakeAttachments) List(ctx context.Context, ownerType domain.OwnerType, ownerID string, limit int) ([]domain.Attachment, error) {
	if ownerType != domain.OwnerTicket {
		return nil, errors.New("unexpected owner type")
	}
	return a.owned[ownerID], nil
}

func (a *fakeAttachments) Purge(ctx context.Context, list []domain.Attachment) error {
	a.purged = append(a.purged, list...)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeAttachments) {
	t.Helper()
	r := &fakeRepo{tickets: map[string]domain.Ticket{}}
	att := &fakeAttachments{owned: map[string][]domain.Attachment{}}
	svc, err := NewService(Deps{
		Repo:        r,
		Projects:    fakeProjects{"p-1": true, "p-2": true},
		Attachments: att,
		Logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewService() err=%v", err)
	}
	fixed := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc, r, att
}

func TestCreate_Defaults(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, Input{ProjectID: "p-1", Title: " Crash on save ", Description: "stack trace attached"})
	if err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	if tk.Title != "Crash on save" || tk.Priority != domain.TicketPriorityMedium || tk.Status != domain.TicketStatusOpen {
		t.Fatalf("ticket=%+v", tk)
	}

	if _, err := svc.Create(ctx, Input{ProjectID: "p-9", Title: "x", Description: "y"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown project err=%v", err)
	}
	if _, err := svc.Create(ctx, Input{ProjectID: "p-1", Title: "x"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing description err=%v", err)
	}
	if _, err := svc.Create(ctx, Input{ProjectID: "p-1", Title: "x", Description: "y", Priority: "urgent"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad priority err=%v", err)
	}
}

func TestUpdateAndChangeStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tk, err := svc.Create(ctx, Input{ProjectID: "p-1", Title: "Bug", Description: "d", Priority: domain.TicketPriorityCritical})
	if err != nil {
		t.Fatalf("Create() err=%v", err)
	}

	updated, err := svc.Update(ctx, tk.ID, Input{ProjectID: "p-2", Title: "Bug (triaged)", Description: "d2"})
	if err != nil {
		t.Fatalf("Update() err=%v", err)
	}
	if updated.ProjectID != "p-2" || updated.Priority != domain.TicketPriorityCritical || updated.Status != domain.TicketStatusOpen {
		t.Fatalf("updated=%+v", updated)
	}
	if _, err := svc.Update(ctx, tk.ID, Input{ProjectID: "p-9", Title: "x", Description: "y"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("move to unknown project err=%v", err)
	}

	changed, err := svc.ChangeStatus(ctx, tk.ID, domain.TicketStatusResolved)
	if err != nil {
		t.Fatalf("ChangeStatus() err=%v", err)
	}
	if changed.Status != domain.TicketStatusResolved {
		t.Fatalf("status=%q", changed.Status)
	}
	if _, err := svc.ChangeStatus(ctx, tk.ID, "reopened"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad status err=%v", err)
	}
	if _, err := svc.ChangeStatus(ctx, "missing", domain.TicketStatusClosed); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing ticket err=%v", err)
	}
}

func TestList_ValidatesFilter(t *testing.T) {
	svc, r, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.List(ctx, repo.TicketFilter{ProjectID: "p-1", Status: domain.TicketStatusOpen}); err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if r.filter.Limit != defaultListLimit || r.filter.ProjectID != "p-1" {
		t.Fatalf("filter=%+v", r.filter)
	}
	if _, err := svc.List(ctx, repo.TicketFilter{Status: "stale"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad status err=%v", err)
	}
	if _, err := svc.List(ctx, repo.TicketFilter{Priority: "urgent"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad priority err=%v", err)
	}
}

func TestDelete_PurgesAttachments(t *testing.T) {
	svc, r, att := newTestService(t)
	ctx := context.Background()
	tk, err := svc.Create(ctx, Input{ProjectID: "p-1", Title: "Bug", Description: "d"})
	if err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	att.owned[tk.ID] = []domain.Attachment{{ID: "m1", ObjectKey: "media/tickets/m1.png"}}

	if err := svc.Delete(ctx, tk.ID); err != nil {
		t.Fatalf("Delete() err=%v", err)
	}
	if _, ok := r.tickets[tk.ID]; ok {
		t.Fatalf("ticket not deleted")
	}
	if len(att.purged) != 1 || att.purged[0].ID != "m1" {
		t.Fatalf("purged=%v", att.purged)
	}
	if err := svc.Delete(ctx, tk.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second Delete() err=%v", err)
	}
}
