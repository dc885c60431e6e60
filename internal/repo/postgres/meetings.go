package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

const meetingColumns = `meeting_id, project_id, title, description, scheduled_at, booking_url, status, created_at, updated_at`

var meetingSortColumns = map[string]string{
	"scheduled_at": "scheduled_at",
	"created_at":   "created_at",
	"title":        "title",
	"status":       "status",
}

type MeetingStore struct {
	db DB
}

func NewMeetingStore(db DB) *MeetingStore {
	if db == nil {
		return nil
	}
	return &MeetingStore{db: db}
}

func (s *MeetingStore) Create(ctx context.Context, m domain.Meeting) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("meeting store not initialized")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("meeting id is required")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	createdAt := normalizeTime(m.CreatedAt)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO meetings (`+meetingColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID,
		nullString(m.ProjectID),
		strings.TrimSpace(m.Title),
		strings.TrimSpace(m.Description),
		m.ScheduledAt.UTC(),
		strings.TrimSpace(m.BookingURL),
		string(m.Status),
		createdAt,
		createdAt,
	)
	return classifyWrite("insert meeting", err)
}

func (s *MeetingStore) Get(ctx context.Context, id string) (domain.Meeting, error) {
	if s == nil || s.db == nil {
		return domain.Meeting{}, fmt.Errorf("meeting store not initialized")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE meeting_id = $1`, strings.TrimSpace(id))
	m, err := scanMeeting(row)
	if err != nil {
		return domain.Meeting{}, handleNotFound(err)
	}
	return m, nil
}

func (s *MeetingStore) List(ctx context.Context, filter repo.MeetingFilter) ([]domain.Meeting, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("meeting store not initialized")
	}
	query, args, err := buildMeetingListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return collectMeetings(rows)
}

// buildMeetingListQuery orders by scheduled_at ascending unless told otherwise.
func buildMeetingListQuery(filter repo.MeetingFilter) (string, []any, error) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 6)

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
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		clauses = append(clauses, fmt.Sprintf("scheduled_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		clauses = append(clauses, fmt.Sprintf("scheduled_at <= $%d", len(args)))
	}
	if v := strings.TrimSpace(filter.Search); v != "" {
		args = append(args, "%"+escapeLike(v)+"%")
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	sortBy := "scheduled_at"
	if filter.Sort != "" {
		col, ok := meetingSortColumns[filter.Sort]
		if !ok {
			return "", nil, domain.Invalidf("invalid sort %q", filter.Sort)
		}
		sortBy = col
	}
	order := "ASC"
	switch strings.ToLower(filter.Order) {
	case "", "asc":
	case "desc":
		order = "DESC"
	default:
		return "", nil, domain.Invalidf("invalid order %q", filter.Order)
	}

	query := `SELECT ` + meetingColumns + ` FROM meetings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s, meeting_id", sortBy, order)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

func (s *MeetingStore) Update(ctx context.Context, m domain.Meeting) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("meeting store not initialized")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE meetings
		 SET project_id = $2, title = $3, description = $4, scheduled_at = $5, booking_url = $6, status = $7, updated_at = $8
		 WHERE meeting_id = $1`,
		m.ID,
		nullString(m.ProjectID),
		strings.TrimSpace(m.Title),
		strings.TrimSpace(m.Description),
		m.ScheduledAt.UTC(),
		strings.TrimSpace(m.BookingURL),
		string(m.Status),
		normalizeTime(m.UpdatedAt),
	)
	if err != nil {
		return classifyWrite("update meeting", err)
	}
	return expectRows(res, 1)
}

func (s *MeetingStore) UpdateStatus(ctx context.Context, id string, status domain.MeetingStatus, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("meeting store not initialized")
	}
	if !status.Valid() {
		return domain.Invalidf("invalid status %q", status)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE meetings SET status = $2, updated_at = $3 WHERE meeting_id = $1`,
		strings.TrimSpace(id),
		string(status),
		normalizeTime(at),
	)
	if err != nil {
		return fmt.Errorf("update meeting status: %w", err)
	}
	return expectRows(res, 1)
}

func (s *MeetingStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("meeting store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE meeting_id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	return expectRows(res, 1)
}

func collectMeetings(rows *sql.Rows) ([]domain.Meeting, error) {
	defer rows.Close()
	out := make([]domain.Meeting, 0)
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return out, nil
}

func scanMeeting(row scanner) (domain.Meeting, error) {
	var (
		m       domain.Meeting
		project sql.NullString
		status  string
	)
	if err := row.Scan(&m.ID, &project, &m.Title, &m.Description, &m.ScheduledAt, &m.BookingURL, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return domain.Meeting{}, err
	}
	m.ProjectID = project.String
	m.Status = domain.MeetingStatus(status)
	return m, nil
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}
