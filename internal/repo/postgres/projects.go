package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

const projectColumns = `project_id, name, description, start_date, end_date, status, created_at, updated_at`

type ProjectStore struct {
	db DB
}

func NewProjectStore(db DB) *ProjectStore {
	if db == nil {
		return nil
	}
	return &ProjectStore{db: db}
}

func (s *ProjectStore) Create(ctx context.Context, project domain.Project) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("project store not initialized")
	}
	if strings.TrimSpace(project.ID) == "" {
		return fmt.Errorf("project id is required")
	}
	if err := project.Validate(); err != nil {
		return err
	}
	createdAt := normalizeTime(project.CreatedAt)
	updatedAt := createdAt
	if !project.UpdatedAt.IsZero() {
		updatedAt = project.UpdatedAt.UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		strings.TrimSpace(project.ID),
		strings.TrimSpace(project.Name),
		strings.TrimSpace(project.Description),
		nullDate(project.StartDate),
		nullDate(project.EndDate),
		string(project.Status),
		createdAt,
		updatedAt,
	)
	return classifyWrite("insert project", err)
}

func (s *ProjectStore) Get(ctx context.Context, id string) (domain.Project, error) {
	if s == nil || s.db == nil {
		return domain.Project{}, fmt.Errorf("project store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Project{}, fmt.Errorf("project id is required")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id = $1`, id)
	project, err := scanProject(row)
	if err != nil {
		return domain.Project{}, handleNotFound(err)
	}
	return project, nil
}

func (s *ProjectStore) List(ctx context.Context, filter repo.ProjectFilter) ([]domain.Project, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("project store not initialized")
	}
	query, args := buildProjectListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func buildProjectListQuery(filter repo.ProjectFilter) (string, []any) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	args := make([]any, 0, 2)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, project_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *ProjectStore) Update(ctx context.Context, project domain.Project) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("project store not initialized")
	}
	if err := project.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE projects
		 SET name = $2, description = $3, start_date = $4, end_date = $5, status = $6, updated_at = $7
		 WHERE project_id = $1`,
		strings.TrimSpace(project.ID),
		strings.TrimSpace(project.Name),
		strings.TrimSpace(project.Description),
		nullDate(project.StartDate),
		nullDate(project.EndDate),
		string(project.Status),
		normalizeTime(project.UpdatedAt),
	)
	if err != nil {
		return classifyWrite("update project", err)
	}
	return expectRows(res, 1)
}

// Delete removes the project; tasks and tickets cascade.
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("project store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE project_id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return expectRows(res, 1)
}

func (s *ProjectStore) Stats(ctx context.Context, id, doneColumn string) (domain.ProjectStats, error) {
	if s == nil || s.db == nil {
		return domain.ProjectStats{}, fmt.Errorf("project store not initialized")
	}
	var totalTasks, completedTasks, totalTickets, openTickets int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT
			(SELECT COUNT(*) FROM tasks WHERE project_id = $1),
			(SELECT COUNT(*) FROM tasks WHERE project_id = $1 AND kanban_column = $2),
			(SELECT COUNT(*) FROM tickets WHERE project_id = $1),
			(SELECT COUNT(*) FROM tickets WHERE project_id = $1 AND status = 'open')`,
		strings.TrimSpace(id),
		doneColumn,
	).Scan(&totalTasks, &completedTasks, &totalTickets, &openTickets)
	if err != nil {
		return domain.ProjectStats{}, fmt.Errorf("project stats: %w", err)
	}
	return domain.NewProjectStats(totalTasks, completedTasks, totalTickets, openTickets), nil
}

func scanProject(row scanner) (domain.Project, error) {
	var (
		p          domain.Project
		start, end sql.NullTime
		status     string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &start, &end, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Project{}, err
	}
	p.StartDate = datePtr(start)
	p.EndDate = datePtr(end)
	p.Status = domain.ProjectStatus(status)
	return p, nil
}
