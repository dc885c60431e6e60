package attachments

import (
	"context"
	"fmt"

	"github.com/taskboard-labs/taskboard/internal/domain"
)

type projectGetter interface {
	Get(ctx context.Context, id string) (domain.Project, error)
}

type taskGetter interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
}

type ticketGetter interface {
	Get(ctx context.Context, id string) (domain.Ticket, error)
}

// RepoOwners resolves attachment owners through the entity stores.
type RepoOwners struct {
	Projects projectGetter
	Tasks    taskGetter
	Tickets  ticketGetter
}

func (o RepoOwners) Exists(ctx context.Context, ownerType domain.OwnerType, ownerID string) error {
	var err error
	switch ownerType {
	case domain.OwnerProject:
		_, err = o.Projects.Get(ctx, ownerID)
	case domain.OwnerTask:
		_, err = o.Tasks.GetTask(ctx, ownerID)
	case domain.OwnerTicket:
		_, err = o.Tickets.Get(ctx, ownerID)
	default:
		return domain.Invalidf("invalid owner_type %q", ownerType)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", ownerType, ownerID, err)
	}
	return nil
}
