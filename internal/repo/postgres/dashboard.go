package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/platform/activitylog"
)

type DashboardStore struct {
	db DB
}

func NewDashboardStore(db DB) *DashboardStore {
	if db == nil {
		return nil
	}
	return &DashboardStore{db: db}
}

func (s *DashboardStore) Stats(ctx context.Context, doneColumn string, meetingsFrom, meetingsTo time.Time) (domain.DashboardStats, error) {
	if s == nil || s.db == nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard store not initialized")
	}
	var st domain.DashboardStats
	err := s.db.QueryRowContext(
		ctx,
		`SELECT
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM projects WHERE status = 'active'),
			(SELECT COUNT(*) FROM tasks),
			(SELECT COUNT(*) FROM tasks WHERE kanban_column <> $1),
			(SELECT COUNT(*) FROM tickets),
			(SELECT COUNT(*) FROM tickets WHERE status = 'open'),
			(SELECT COUNT(*) FROM meetings
			  WHERE status = 'scheduled' AND scheduled_at > $2 AND scheduled_at <= $3)`,
		doneColumn,
		meetingsFrom.UTC(),
		meetingsTo.UTC(),
	).Scan(&st.TotalProjects, &st.ActiveProjects, &st.TotalTasks, &st.PendingTasks, &st.TotalTickets, &st.OpenTickets, &st.UpcomingMeetings)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return st, nil
}

// UpcomingTasks lists tasks due in [from, to] outside the done column,
// soonest first.
func (s *DashboardStore) UpcomingTasks(ctx context.Context, from, to time.Time, doneColumn string, limit int) ([]domain.Task, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("dashboard store not initialized")
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE due_date BETWEEN $1 AND $2 AND kanban_column <> $3
		 ORDER BY due_date, task_id
		 LIMIT $4`,
		domain.Day(from),
		domain.Day(to),
		doneColumn,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("upcoming tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *DashboardStore) CriticalTickets(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("dashboard store not initialized")
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE priority = 'critical' AND status <> 'closed'
		 ORDER BY created_at DESC, ticket_id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("critical tickets: %w", err)
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
		return nil, fmt.Errorf("critical tickets: %w", err)
	}
	return out, nil
}

// UpcomingMeetings lists scheduled meetings in (from, to], soonest first.
func (s *DashboardStore) UpcomingMeetings(ctx context.Context, from, to time.Time, limit int) ([]domain.Meeting, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("dashboard store not initialized")
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+meetingColumns+` FROM meetings
		 WHERE status = 'scheduled' AND scheduled_at > $1 AND scheduled_at <= $2
		 ORDER BY scheduled_at, meeting_id
		 LIMIT $3`,
		from.UTC(),
		to.UTC(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("upcoming meetings: %w", err)
	}
	return collectMeetings(rows)
}

func (s *DashboardStore) RecentActivity(ctx context.Context, limit int) ([]activitylog.Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("dashboard store not initialized")
	}
	return activitylog.Recent(ctx, s.db, "", limit)
}
