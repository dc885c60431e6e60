package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/kanban"
	"github.com/taskboard-labs/taskboard/internal/platform/activitylog"
	dbplatform "github.com/taskboard-labs/taskboard/internal/platform/postgres"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

const taskColumns = `task_id, project_id, name, description, start_date, due_date, priority, kanban_column, position, created_at, updated_at`

// applyPositionsQuery rewrites many rows in one statement from three
// parallel arrays.
const applyPositionsQuery = `UPDATE tasks AS t
	SET kanban_column = u.kanban_column, position = u.position, updated_at = $4
	FROM unnest($1::text[], $2::text[], $3::bigint[]) AS u(task_id, kanban_column, position)
	WHERE t.task_id = u.task_id`

const lockPartitionQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

// TaskStore serves task reads outside a board transaction.
type TaskStore struct {
	db DB
}

func NewTaskStore(db DB) *TaskStore {
	if db == nil {
		return nil
	}
	return &TaskStore{db: db}
}

func (s *TaskStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	if s == nil || s.db == nil {
		return domain.Task{}, fmt.Errorf("task store not initialized")
	}
	return getTask(ctx, s.db, id)
}

func (s *TaskStore) ListProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("task store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 ORDER BY kanban_column, position, task_id`,
		strings.TrimSpace(projectID),
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// BoardStore opens board transactions on a *sql.DB.
type BoardStore struct {
	db *sql.DB
}

func NewBoardStore(db *sql.DB) *BoardStore {
	if db == nil {
		return nil
	}
	return &BoardStore{db: db}
}

func (s *BoardStore) InTx(ctx context.Context, fn func(tx repo.BoardTx) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("board store not initialized")
	}
	return dbplatform.InTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&boardTx{tx: tx})
	})
}

type boardTx struct {
	tx DB
}

func (b *boardTx) LockPartitions(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, err := b.tx.ExecContext(ctx, lockPartitionQuery, key); err != nil {
			return fmt.Errorf("lock partition %q: %w", key, err)
		}
	}
	return nil
}

func (b *boardTx) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTask(ctx, b.tx, id)
}

func (b *boardTx) GetTasks(ctx context.Context, ids []string) (map[string]domain.Task, error) {
	out := make(map[string]domain.Task, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := b.tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out, nil
}

func (b *boardTx) ListPartition(ctx context.Context, projectID, column string) (kanban.Partition, error) {
	rows, err := b.tx.QueryContext(
		ctx,
		`SELECT task_id, position FROM tasks
		 WHERE project_id = $1 AND kanban_column = $2
		 ORDER BY position, task_id`,
		projectID,
		column,
	)
	if err != nil {
		return kanban.Partition{}, fmt.Errorf("list partition: %w", err)
	}
	defer rows.Close()

	p := kanban.Partition{Column: column}
	for rows.Next() {
		var slot kanban.Slot
		if err := rows.Scan(&slot.TaskID, &slot.Position); err != nil {
			return kanban.Partition{}, fmt.Errorf("scan partition: %w", err)
		}
		p.Tasks = append(p.Tasks, slot)
	}
	if err := rows.Err(); err != nil {
		return kanban.Partition{}, fmt.Errorf("list partition: %w", err)
	}
	return p, nil
}

func (b *boardTx) ListColumns(ctx context.Context, projectID string) ([]string, error) {
	rows, err := b.tx.QueryContext(
		ctx,
		`SELECT DISTINCT kanban_column FROM tasks WHERE project_id = $1 ORDER BY kanban_column`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return out, nil
}

func (b *boardTx) ApplyPositions(ctx context.Context, assignments []kanban.Assignment, at time.Time) error {
	if len(assignments) == 0 {
		return nil
	}
	ids, columns, positions := positionArrays(assignments)
	res, err := b.tx.ExecContext(ctx, applyPositionsQuery, ids, columns, positions, normalizeTime(at))
	if err != nil {
		return fmt.Errorf("apply positions: %w", err)
	}
	return expectRows(res, int64(len(assignments)))
}

func positionArrays(assignments []kanban.Assignment) ([]string, []string, []int64) {
	ids := make([]string, len(assignments))
	columns := make([]string, len(assignments))
	positions := make([]int64, len(assignments))
	for i, a := range assignments {
		ids[i] = a.TaskID
		columns[i] = a.Column
		positions[i] = int64(a.Position)
	}
	return ids, columns, positions
}

func (b *boardTx) InsertTask(ctx context.Context, task domain.Task) error {
	if strings.TrimSpace(task.ID) == "" {
		return fmt.Errorf("task id is required")
	}
	if err := task.Validate(); err != nil {
		return err
	}
	createdAt := normalizeTime(task.CreatedAt)
	_, err := b.tx.ExecContext(
		ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		task.ID,
		task.ProjectID,
		strings.TrimSpace(task.Name),
		strings.TrimSpace(task.Description),
		nullDate(task.StartDate),
		nullDate(task.DueDate),
		string(task.Priority),
		task.Column,
		task.Position,
		createdAt,
		createdAt,
	)
	return classifyWrite("insert task", err)
}

func (b *boardTx) UpdateTaskFields(ctx context.Context, task domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	res, err := b.tx.ExecContext(
		ctx,
		`UPDATE tasks
		 SET name = $2, description = $3, start_date = $4, due_date = $5, priority = $6, updated_at = $7
		 WHERE task_id = $1`,
		task.ID,
		strings.TrimSpace(task.Name),
		strings.TrimSpace(task.Description),
		nullDate(task.StartDate),
		nullDate(task.DueDate),
		string(task.Priority),
		normalizeTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectRows(res, 1)
}

func (b *boardTx) DeleteTask(ctx context.Context, id string) error {
	res, err := b.tx.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectRows(res, 1)
}

func (b *boardTx) DeleteAttachmentsByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]domain.Attachment, error) {
	rows, err := b.tx.QueryContext(
		ctx,
		`DELETE FROM media WHERE owner_type = $1 AND owner_id = $2 RETURNING `+mediaColumns,
		string(ownerType),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("delete attachments: %w", err)
	}
	return collectAttachments(rows)
}

func (b *boardTx) AppendActivity(ctx context.Context, event activitylog.Event) error {
	_, err := activitylog.Insert(ctx, b.tx, event)
	return err
}

func getTask(ctx context.Context, db DB, id string) (domain.Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Task{}, fmt.Errorf("task id is required")
	}
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		return domain.Task{}, handleNotFound(err)
	}
	return task, nil
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	defer rows.Close()
	out := make([]domain.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

func scanTask(row scanner) (domain.Task, error) {
	var (
		t          domain.Task
		start, due sql.NullTime
		priority   string
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &start, &due, &priority, &t.Column, &t.Position, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	t.StartDate = datePtr(start)
	t.DueDate = datePtr(due)
	t.Priority = domain.Priority(priority)
	return t, nil
}
