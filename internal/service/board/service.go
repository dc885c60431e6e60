// Package board is the position manager: every change to a task's column or
// position goes through it, inside one transaction holding the locks of the
// partitions it touches.
package board

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard-labs/taskboard/internal/boardconfig"
	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/kanban"
	"github.com/taskboard-labs/taskboard/internal/platform/activitylog"
	"github.com/taskboard-labs/taskboard/internal/platform/metrics"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

const reorderScope = "reorder"

// RequestContext carries request identity into the activity log.
type RequestContext struct {
	RequestID string
}

// Cache holds board snapshots. Evict bumps the project version; Store must
// drop a snapshot whose version is no longer current.
type Cache interface {
	Load(ctx context.Context, projectID string) (domain.Board, bool)
	Version(ctx context.Context, projectID string) (int64, bool)
	Store(ctx context.Context, board domain.Board, version int64)
	Evict(ctx context.Context, projectIDs ...string) error
}

// Deduper remembers processed idempotency keys together with the digest of
// the payload each key was first used with.
type Deduper interface {
	Add(ctx context.Context, scope, key, digest string) (prior string, added bool, err error)
	Remove(ctx context.Context, scope, key string) error
}

// BlobRemover deletes the stored bytes of removed attachments.
type BlobRemover interface {
	RemoveBlobs(ctx context.Context, attachments []domain.Attachment) error
}

type ProjectGetter interface {
	Get(ctx context.Context, id string) (domain.Project, error)
}

type Deps struct {
	Store    repo.BoardStore
	Tasks    repo.TaskReader
	Projects ProjectGetter
	Config   boardconfig.Config
	Cache    Cache
	Deduper  Deduper
	Blobs    BlobRemover
	Logger   *slog.Logger
}

type Service struct {
	store    repo.BoardStore
	tasks    repo.TaskReader
	projects ProjectGetter
	cfg      boardconfig.Config
	cache    Cache
	deduper  Deduper
	blobs    BlobRemover
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("board store is required")
	}
	if deps.Tasks == nil {
		return nil, errors.New("task reader is required")
	}
	if deps.Projects == nil {
		return nil, errors.New("project repository is required")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, fmt.Errorf("board config: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    deps.Store,
		tasks:    deps.Tasks,
		projects: deps.Projects,
		cfg:      deps.Config,
		cache:    deps.Cache,
		deduper:  deps.Deduper,
		blobs:    deps.Blobs,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Config returns the board layout in use.
func (s *Service) Config() boardconfig.Config {
	return s.cfg
}

// MoveResult describes a finished move.
type MoveResult struct {
	Task    domain.Task
	Shifted int
}

// MoveTask places a task at position in column, shifting its siblings so
// both partitions stay dense. position is clamped to the end of the column.
func (s *Service) MoveTask(ctx context.Context, taskID, column string, position int, rc RequestContext) (MoveResult, error) {
	column = strings.TrimSpace(column)
	if !s.cfg.HasColumn(column) {
		return MoveResult{}, domain.Invalidf("unknown kanban_column %q", column)
	}
	return s.move(ctx, "move", taskID, &column, position, rc)
}

// UpdatePosition reorders a task inside its current column.
func (s *Service) UpdatePosition(ctx context.Context, taskID string, position int, rc RequestContext) (MoveResult, error) {
	return s.move(ctx, "position", taskID, nil, position, rc)
}

func (s *Service) move(ctx context.Context, op, taskID string, column *string, position int, rc RequestContext) (MoveResult, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return MoveResult{}, domain.Invalidf("task id is required")
	}
	if position < 0 {
		return MoveResult{}, domain.Invalidf("position must be >= 0")
	}

	var result MoveResult
	err := s.store.InTx(ctx, func(tx repo.BoardTx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		target := task.Column
		if column != nil {
			target = *column
		}

		fresh, source, dest, err := lockForMove(ctx, tx, task, target)
		if err != nil {
			return err
		}
		plan, err := kanban.PlanMove(source, dest, fresh.ID, position)
		if err != nil {
			return planError(err)
		}
		at := s.now().UTC()
		if err := tx.ApplyPositions(ctx, plan.Assignments, at); err != nil {
			return err
		}

		moved := fresh
		moved.Column = target
		for _, slot := range plan.Target.Tasks {
			if slot.TaskID == fresh.ID {
				moved.Position = slot.Position
			}
		}
		if len(plan.Assignments) > 0 {
			moved.UpdatedAt = at
			if err := tx.AppendActivity(ctx, activitylog.Event{
				OccurredAt:   at,
				Action:       activitylog.ActionTaskMoved,
				ResourceType: "task",
				ResourceID:   fresh.ID,
				ProjectID:    fresh.ProjectID,
				Title:        fresh.Name,
				RequestID:    rc.RequestID,
				Payload: map[string]any{
					"from_column":   fresh.Column,
					"from_position": fresh.Position,
					"to_column":     moved.Column,
					"to_position":   moved.Position,
					"rows":          len(plan.Assignments),
				},
			}); err != nil {
				return err
			}
		}
		result = MoveResult{Task: moved, Shifted: len(plan.Assignments)}
		return nil
	})
	metrics.ObservePosition(op, result.Shifted, err)
	if err != nil {
		return MoveResult{}, err
	}
	if result.Shifted > 0 {
		s.evict(ctx, result.Task.ProjectID)
	}
	return result, nil
}

// lockForMove locks the partitions of a move and re-reads the task under the
// locks. A task that left the locked partitions in between is a conflict.
func lockForMove(ctx context.Context, tx repo.BoardTx, task domain.Task, target string) (domain.Task, kanban.Partition, kanban.Partition, error) {
	none := kanban.Partition{}
	if err := tx.LockPartitions(ctx, kanban.Keys(task.ProjectID, task.Column, target)); err != nil {
		return domain.Task{}, none, none, err
	}
	fresh, err := tx.GetTask(ctx, task.ID)
	if err != nil {
		return domain.Task{}, none, none, err
	}
	if fresh.ProjectID != task.ProjectID || (fresh.Column != task.Column && fresh.Column != target) {
		return domain.Task{}, none, none, fmt.Errorf("task %s moved concurrently: %w", task.ID, repo.ErrConflict)
	}

	source, err := tx.ListPartition(ctx, fresh.ProjectID, fresh.Column)
	if err != nil {
		return domain.Task{}, none, none, err
	}
	dest := source
	if target != fresh.Column {
		if dest, err = tx.ListPartition(ctx, fresh.ProjectID, target); err != nil {
			return domain.Task{}, none, none, err
		}
	}
	return fresh, source, dest, nil
}

func planError(err error) error {
	if errors.Is(err, kanban.ErrNotInPartition) || errors.Is(err, kanban.ErrDuplicateTask) {
		return fmt.Errorf("%v: %w", err, repo.ErrConflict)
	}
	return err
}

// ReorderResult describes a finished batch reorder.
type ReorderResult struct {
	Updated   int
	Duplicate bool
}

// ReorderBatch writes caller supplied placements as given. The batch is all
// or nothing: one unknown task id aborts it. A non-empty idempotencyKey that
// was already processed with the same batch returns Duplicate without
// writing; reusing it for a different batch is a conflict.
func (s *Service) ReorderBatch(ctx context.Context, idempotencyKey string, entries []kanban.Assignment, rc RequestContext) (ReorderResult, error) {
	planned, err := kanban.PlanReorder(entries)
	if err != nil {
		return ReorderResult{}, err
	}
	for i, a := range planned {
		if !s.cfg.HasColumn(a.Column) {
			return ReorderResult{}, domain.Invalidf("tasks[%d]: unknown kanban_column %q", i, a.Column)
		}
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" && s.deduper != nil {
		digest := batchDigest(planned)
		prior, added, err := s.deduper.Add(ctx, reorderScope, idempotencyKey, digest)
		switch {
		case err != nil:
			s.logger.Warn("reorder dedupe unavailable", "error", err, "request_id", rc.RequestID)
		case !added && prior != digest:
			return ReorderResult{}, fmt.Errorf("idempotency key %q was used for a different batch: %w", idempotencyKey, repo.ErrConflict)
		case !added:
			return ReorderResult{Duplicate: true}, nil
		}
	}

	var projects []string
	err = s.store.InTx(ctx, func(tx repo.BoardTx) error {
		ids := make([]string, len(planned))
		for i, a := range planned {
			ids[i] = a.TaskID
		}
		found, err := tx.GetTasks(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				return fmt.Errorf("task %s: %w", id, repo.ErrNotFound)
			}
		}

		keys, byProject := reorderKeys(planned, found)
		if err := tx.LockPartitions(ctx, keys); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := tx.ApplyPositions(ctx, planned, at); err != nil {
			return err
		}

		for _, projectID := range sortedKeys(byProject) {
			if err := tx.AppendActivity(ctx, activitylog.Event{
				OccurredAt:   at,
				Action:       activitylog.ActionTasksReorder,
				ResourceType: "project",
				ResourceID:   projectID,
				ProjectID:    projectID,
				RequestID:    rc.RequestID,
				Payload:      map[string]any{"tasks": byProject[projectID]},
			}); err != nil {
				return err
			}
			projects = append(projects, projectID)
		}
		return nil
	})
	metrics.ObservePosition(reorderScope, len(planned), err)
	if err != nil {
		if idempotencyKey != "" && s.deduper != nil {
			if rmErr := s.deduper.Remove(ctx, reorderScope, idempotencyKey); rmErr != nil {
				s.logger.Warn("reorder dedupe release failed", "error", rmErr, "request_id", rc.RequestID)
			}
		}
		return ReorderResult{}, err
	}
	s.evict(ctx, projects...)
	return ReorderResult{Updated: len(planned)}, nil
}

// batchDigest fingerprints a planned batch in request order.
func batchDigest(planned []kanban.Assignment) string {
	h := sha256.New()
	for _, a := range planned {
		fmt.Fprintf(h, "%s\x00%s\x00%d\n", a.TaskID, a.Column, a.Position)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// reorderKeys returns the sorted partition keys a batch touches, old and new
// placements alike, and the task ids per project.
func reorderKeys(planned []kanban.Assignment, found map[string]domain.Task) ([]string, map[string][]string) {
	seen := map[string]struct{}{}
	byProject := map[string][]string{}
	for _, a := range planned {
		task := found[a.TaskID]
		seen[kanban.Key(task.ProjectID, task.Column)] = struct{}{}
		seen[kanban.Key(task.ProjectID, a.Column)] = struct{}{}
		byProject[task.ProjectID] = append(byProject[task.ProjectID], a.TaskID)
	}
	return sortedKeys(seen), byProject
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TaskInput carries the editable task fields.
type TaskInput struct {
	Name        string
	Description string
	StartDate   *time.Time
	DueDate     *time.Time
	Priority    domain.Priority
	Column      string
}

func (s *Service) normalizeInput(in TaskInput) (TaskInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Column = strings.TrimSpace(in.Column)
	if in.Column == "" {
		in.Column = s.cfg.DefaultColumn
	}
	if !s.cfg.HasColumn(in.Column) {
		return TaskInput{}, domain.Invalidf("unknown kanban_column %q", in.Column)
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	return in, nil
}

// CreateTask appends a new task at the end of its column.
func (s *Service) CreateTask(ctx context.Context, projectID string, input TaskInput, rc RequestContext) (domain.Task, error) {
	projectID = strings.TrimSpace(projectID)
	in, err := s.normalizeInput(input)
	if err != nil {
		return domain.Task{}, err
	}
	now := s.now().UTC()
	task := domain.Task{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Name:        in.Name,
		Description: in.Description,
		StartDate:   in.StartDate,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Column:      in.Column,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := task.Validate(); err != nil {
		return domain.Task{}, err
	}

	err = s.store.InTx(ctx, func(tx repo.BoardTx) error {
		if err := tx.LockPartitions(ctx, kanban.Keys(projectID, task.Column)); err != nil {
			return err
		}
		partition, err := tx.ListPartition(ctx, projectID, task.Column)
		if err != nil {
			return err
		}
		task.Position = kanban.NextPosition(partition)
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, activitylog.Event{
			OccurredAt:   now,
			Action:       activitylog.ActionTaskCreated,
			ResourceType: "task",
			ResourceID:   task.ID,
			ProjectID:    projectID,
			Title:        task.Name,
			RequestID:    rc.RequestID,
			Payload:      map[string]any{"kanban_column": task.Column, "position": task.Position},
		})
	})
	metrics.ObservePosition("create", 1, err)
	if err != nil {
		return domain.Task{}, err
	}
	s.evict(ctx, projectID)
	return task, nil
}

// UpdateTask edits a task. A column change moves the task to the end of
// the new column and closes the gap it leaves.
func (s *Service) UpdateTask(ctx context.Context, projectID, taskID string, input TaskInput, rc RequestContext) (domain.Task, error) {
	in, err := s.normalizeInput(input)
	if err != nil {
		return domain.Task{}, err
	}

	var (
		updated domain.Task
		shifted int
	)
	err = s.store.InTx(ctx, func(tx repo.BoardTx) error {
		task, err := getProjectTask(ctx, tx, projectID, taskID)
		if err != nil {
			return err
		}
		at := s.now().UTC()

		if task.Column != in.Column {
			fresh, source, dest, err := lockForMove(ctx, tx, task, in.Column)
			if err != nil {
				return err
			}
			plan, err := kanban.PlanMove(source, dest, fresh.ID, dest.Len())
			if err != nil {
				return planError(err)
			}
			if err := tx.ApplyPositions(ctx, plan.Assignments, at); err != nil {
				return err
			}
			shifted = len(plan.Assignments)
			task = fresh
			task.Column = in.Column
			for _, slot := range plan.Target.Tasks {
				if slot.TaskID == task.ID {
					task.Position = slot.Position
				}
			}
		}

		task.Name = in.Name
		task.Description = in.Description
		task.StartDate = in.StartDate
		task.DueDate = in.DueDate
		task.Priority = in.Priority
		task.UpdatedAt = at
		if err := tx.UpdateTaskFields(ctx, task); err != nil {
			return err
		}
		updated = task
		return tx.AppendActivity(ctx, activitylog.Event{
			OccurredAt:   at,
			Action:       activitylog.ActionTaskUpdated,
			ResourceType: "task",
			ResourceID:   task.ID,
			ProjectID:    task.ProjectID,
			Title:        task.Name,
			RequestID:    rc.RequestID,
			Payload:      map[string]any{"kanban_column": task.Column, "position": task.Position, "rows": shifted},
		})
	})
	if shifted > 0 || err != nil {
		metrics.ObservePosition("update", shifted, err)
	}
	if err != nil {
		return domain.Task{}, err
	}
	s.evict(ctx, updated.ProjectID)
	return updated, nil
}

// DeleteTask removes a task, closes its gap and drops its attachments.
func (s *Service) DeleteTask(ctx context.Context, projectID, taskID string, rc RequestContext) error {
	var (
		removed []domain.Attachment
		shifted int
	)
	err := s.store.InTx(ctx, func(tx repo.BoardTx) error {
		task, err := getProjectTask(ctx, tx, projectID, taskID)
		if err != nil {
			return err
		}
		if err := tx.LockPartitions(ctx, kanban.Keys(task.ProjectID, task.Column)); err != nil {
			return err
		}
		fresh, err := tx.GetTask(ctx, task.ID)
		if err != nil {
			return err
		}
		if fresh.Column != task.Column {
			return fmt.Errorf("task %s moved concurrently: %w", task.ID, repo.ErrConflict)
		}
		partition, err := tx.ListPartition(ctx, task.ProjectID, task.Column)
		if err != nil {
			return err
		}
		_, assignments, err := kanban.Remove(partition, task.ID)
		if err != nil {
			return planError(err)
		}
		if err := tx.DeleteTask(ctx, task.ID); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := tx.ApplyPositions(ctx, assignments, at); err != nil {
			return err
		}
		shifted = len(assignments)
		if removed, err = tx.DeleteAttachmentsByOwner(ctx, domain.OwnerTask, task.ID); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, activitylog.Event{
			OccurredAt:   at,
			Action:       activitylog.ActionTaskDeleted,
			ResourceType: "task",
			ResourceID:   task.ID,
			ProjectID:    task.ProjectID,
			Title:        task.Name,
			RequestID:    rc.RequestID,
			Payload:      map[string]any{"kanban_column": task.Column, "position": fresh.Position, "rows": shifted},
		})
	})
	metrics.ObservePosition("delete", shifted, err)
	if err != nil {
		return err
	}
	if len(removed) > 0 && s.blobs != nil {
		if err := s.blobs.RemoveBlobs(ctx, removed); err != nil {
			s.logger.Warn("task attachment cleanup failed", "task_id", taskID, "error", err)
		}
	}
	s.evict(ctx, strings.TrimSpace(projectID))
	return nil
}

// GetTask returns a task of projectID.
func (s *Service) GetTask(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	return getProjectTask(ctx, s.tasks, projectID, taskID)
}

type taskGetter interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
}

func getProjectTask(ctx context.Context, tx taskGetter, projectID, taskID string) (domain.Task, error) {
	task, err := tx.GetTask(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return domain.Task{}, err
	}
	if task.ProjectID != strings.TrimSpace(projectID) {
		return domain.Task{}, fmt.Errorf("task %s in project %s: %w", taskID, projectID, repo.ErrNotFound)
	}
	return task, nil
}

// ColumnRepair reports the normalization of one partition.
type ColumnRepair struct {
	Column string
	Tasks  int
	Rows   int
}

type NormalizeResult struct {
	ProjectID string
	Columns   []ColumnRepair
	Rows      int
	DryRun    bool
}

// Normalize rewrites every partition of a project into dense order. With
// dryRun nothing is written.
func (s *Service) Normalize(ctx context.Context, projectID string, dryRun bool, rc RequestContext) (NormalizeResult, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return NormalizeResult{}, domain.Invalidf("project id is required")
	}
	result := NormalizeResult{ProjectID: projectID, DryRun: dryRun}
	err := s.store.InTx(ctx, func(tx repo.BoardTx) error {
		columns, err := tx.ListColumns(ctx, projectID)
		if err != nil {
			return err
		}
		if err := tx.LockPartitions(ctx, kanban.Keys(projectID, columns...)); err != nil {
			return err
		}

		var all []kanban.Assignment
		for _, column := range columns {
			partition, err := tx.ListPartition(ctx, projectID, column)
			if err != nil {
				return err
			}
			_, assignments, err := kanban.Normalize(partition)
			if err != nil {
				return err
			}
			result.Columns = append(result.Columns, ColumnRepair{Column: column, Tasks: partition.Len(), Rows: len(assignments)})
			all = append(all, assignments...)
		}
		result.Rows = len(all)
		if dryRun || len(all) == 0 {
			return nil
		}

		at := s.now().UTC()
		if err := tx.ApplyPositions(ctx, all, at); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, activitylog.Event{
			OccurredAt:   at,
			Action:       activitylog.ActionBoardNormalize,
			ResourceType: "project",
			ResourceID:   projectID,
			ProjectID:    projectID,
			RequestID:    rc.RequestID,
			Payload:      map[string]any{"rows": len(all)},
		})
	})
	if !dryRun {
		metrics.ObservePosition("normalize", result.Rows, err)
	}
	if err != nil {
		return NormalizeResult{}, err
	}
	if !dryRun && result.Rows > 0 {
		s.evict(ctx, projectID)
	}
	return result, nil
}

// Board returns the kanban view of a project: configured columns first,
// then any column that only exists in stored tasks.
func (s *Service) Board(ctx context.Context, projectID string) (domain.Board, error) {
	projectID = strings.TrimSpace(projectID)
	if s.cache != nil {
		if b, ok := s.cache.Load(ctx, projectID); ok {
			return b, nil
		}
	}
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return domain.Board{}, err
	}
	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		version, cacheable = s.cache.Version(ctx, projectID)
	}
	tasks, err := s.tasks.ListProjectTasks(ctx, projectID)
	if err != nil {
		return domain.Board{}, err
	}
	b := BuildBoard(projectID, s.cfg.Columns, tasks)
	if cacheable {
		s.cache.Store(ctx, b, version)
	}
	return b, nil
}

// BuildBoard groups tasks by column, each column ordered by position.
func BuildBoard(projectID string, columns []string, tasks []domain.Task) domain.Board {
	byColumn := map[string][]domain.Task{}
	for _, t := range tasks {
		byColumn[t.Column] = append(byColumn[t.Column], t)
	}
	b := domain.Board{ProjectID: projectID}
	known := map[string]struct{}{}
	for _, c := range columns {
		known[c] = struct{}{}
		b.Columns = append(b.Columns, buildColumn(c, byColumn[c]))
	}
	for _, c := range sortedKeys(byColumn) {
		if _, ok := known[c]; ok {
			continue
		}
		b.Columns = append(b.Columns, buildColumn(c, byColumn[c]))
	}
	return b
}

func buildColumn(name string, tasks []domain.Task) domain.Column {
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return domain.Column{Name: name, Tasks: out}
}

func (s *Service) evict(ctx context.Context, projectIDs ...string) {
	if s.cache == nil || len(projectIDs) == 0 {
		return
	}
	if err := s.cache.Evict(ctx, projectIDs...); err != nil {
		s.logger.Warn("board cache eviction failed", "projects", projectIDs, "error", err)
	}
}
