package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

const ticketColumns = `ticket_id, project_id, title, description, priority, status, created_at, updated_at`

// ticketSortColumns whitelists the sortable columns.
var ticketSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"priority":   "priority",
	"status":     "status",
	"title":      "title",
}

type TicketStore struct {
	db DB
}

func NewTicketStore(db DB) *TicketStore {
	if db == nil {
		return nil
	}
	return &TicketStore{db: db}
}

func (s *TicketStore) Create(ctx context.Context, ticket domain.Ticket) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("ticket store not initialized")
	}
	if strings.TrimSpace(ticket.ID) == "" {
		return fmt.Errorf("ticket id is required")
	}
	if err := ticket.Validate(); err != nil {
		return err
	}
	createdAt := normalizeTime(ticket.CreatedAt)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tickets (`+ticketColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ticket.ID,
		strings.TrimSpace(ticket.ProjectID),
		strings.TrimSpace(ticket.Title),
		strings.TrimSpace(ticket.Description),
		string(ticket.Priority),
		string(ticket.Status),
		createdAt,
		createdAt,
	)
	return classifyWrite("insert ticket", err)
}

func (s *TicketStore) Get(ctx context.Context, id string) (domain.Ticket, error) {
	if s == nil || s.db == nil {
		return domain.Ticket{}, fmt.Errorf("ticket store not initialized")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, strings.TrimSpace(id))
	t, err := scanTicket(row)
	if err != nil {
		return domain.Ticket{}, handleNotFound(err)
	}
	return t, nil
}

func (s *TicketStore) List(ctx context.Context, filter repo.TicketFilter) ([]domain.Ticket, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("ticket store not initialized")
	}
	query, args, err := buildTicketListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return out, nil
}

func buildTicketListQuery(filter repo.TicketFilter) (string, []any, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if v := strings.TrimSpace(filter.ProjectID); v != "" {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return "", nil, domain.Invalidf("invalid status %q", filter.Status)
		}
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != "" {
		if !filter.Priority.Valid() {
			return "", nil, domain.Invalidf("invalid priority %q", filter.Priority)
		}
		args = append(args, string(filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority = $%d", len(args)))
	}
	if v := strings.TrimSpace(filter.Search); v != "" {
		args = append(args, "%"+escapeLike(v)+"%")
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	sortBy := "created_at"
	if filter.Sort != "" {
		col, ok := ticketSortColumns[filter.Sort]
		if !ok {
			return "", nil, domain.Invalidf("invalid sort %q", filter.Sort)
		}
		sortBy = col
	}
	order := "DESC"
	switch strings.ToLower(filter.Order) {
	case "", "desc":
	case "asc":
		order = "ASC"
	default:
		return "", nil, domain.Invalidf("invalid order %q", filter.Order)
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s, ticket_id", sortBy, order)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}

func (s *TicketStore) Update(ctx context.Context, ticket domain.Ticket) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("ticket store not initialized")
	}
	if err := ticket.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tickets
		 SET project_id = $2, title = $3, description = $4, priority = $5, status = $6, updated_at = $7
		 WHERE ticket_id = $1`,
		ticket.ID,
		strings.TrimSpace(ticket.ProjectID),
		strings.TrimSpace(ticket.Title),
		strings.TrimSpace(ticket.Description),
		string(ticket.Priority),
		string(ticket.Status),
		normalizeTime(ticket.UpdatedAt),
	)
	if err != nil {
		return classifyWrite("update ticket", err)
	}
	return expectRows(res, 1)
}

func (s *TicketStore) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("ticket store not initialized")
	}
	if !status.Valid() {
		return domain.Invalidf("invalid status %q", status)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tickets SET status = $2, updated_at = $3 WHERE ticket_id = $1`,
		strings.TrimSpace(id),
		string(status),
		normalizeTime(at),
	)
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	return expectRows(res, 1)
}

func (s *TicketStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("ticket store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE ticket_id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return expectRows(res, 1)
}

func scanTicket(row scanner) (domain.Ticket, error) {
	var (
		t                domain.Ticket
		priority, status string
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &priority, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Ticket{}, err
	}
	t.Priority = domain.TicketPriority(priority)
	t.Status = domain.TicketStatus(status)
	return t, nil
}
