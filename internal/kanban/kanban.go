// Package kanban plans position changes inside kanban partitions.
//
// A partition is the ordered set of tasks sharing a project and a column.
// Positions inside a partition are dense: 0..n-1 with no gaps or duplicates.
// The planner is pure. It takes the stored state of the partitions an
// operation touches and returns the minimal set of rows whose column or
// position must be rewritten, so callers can apply them in one statement.
package kanban

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/taskboard-labs/taskboard/internal/domain"
)

var (
	// ErrNotInPartition is returned when the moved task is not part of the
	// source partition handed to the planner.
	ErrNotInPartition = errors.New("task not in partition")
	// ErrDuplicateTask is returned when a partition lists a task twice.
	ErrDuplicateTask = errors.New("duplicate task in partition")
)

// Slot is a task's stored position.
type Slot struct {
	TaskID   string
	Position int
}

// Partition is one column of one project.
type Partition struct {
	Column string
	Tasks  []Slot
}

// Assignment is a row update: TaskID goes to Column at Position.
type Assignment struct {
	TaskID   string
	Column   string
	Position int
}

// Plan is the result of a move.
type Plan struct {
	Assignments []Assignment
	Source      Partition
	Target      Partition
}

// Key identifies a partition for locking and cache invalidation.
func Key(projectID, column string) string {
	return projectID + "/" + column
}

// Keys returns the distinct partition keys of columns in sorted order.
// Locks must be taken in this order.
func Keys(projectID string, columns ...string) []string {
	seen := make(map[string]struct{}, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		k := Key(projectID, c)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Ordered returns the task ids of p sorted by stored position, ties broken by id.
func (p Partition) Ordered() []string {
	slots := make([]Slot, len(p.Tasks))
	copy(slots, p.Tasks)
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Position != slots[j].Position {
			return slots[i].Position < slots[j].Position
		}
		return slots[i].TaskID < slots[j].TaskID
	})
	ids := make([]string, len(slots))
	for i, s := range slots {
		ids[i] = s.TaskID
	}
	return ids
}

// Len is the number of tasks in p.
func (p Partition) Len() int { return len(p.Tasks) }

func (p Partition) positions() map[string]int {
	out := make(map[string]int, len(p.Tasks))
	for _, s := range p.Tasks {
		out[s.TaskID] = s.Position
	}
	return out
}

func (p Partition) validate() error {
	seen := make(map[string]struct{}, len(p.Tasks))
	for _, s := range p.Tasks {
		if _, ok := seen[s.TaskID]; ok {
			return fmt.Errorf("%w: %s in %q", ErrDuplicateTask, s.TaskID, p.Column)
		}
		seen[s.TaskID] = struct{}{}
	}
	return nil
}

// Gaps reports whether p violates the dense ordering.
func Gaps(p Partition) bool {
	if len(p.Tasks) == 0 {
		return false
	}
	pos := make([]int, len(p.Tasks))
	for i, s := range p.Tasks {
		pos[i] = s.Position
	}
	sort.Ints(pos)
	for i, v := range pos {
		if v != i {
			return true
		}
	}
	return false
}

// NextPosition is the slot after the last task: max+1, or 0 when empty.
func NextPosition(p Partition) int {
	next := 0
	for _, s := range p.Tasks {
		if s.Position+1 > next {
			next = s.Position + 1
		}
	}
	return next
}

// PlanMove moves taskID from source to index in target. source and target
// may name the same column. The index is clamped to the end of the target;
// a negative index is rejected. Both resulting partitions are dense even if
// the stored state was not.
func PlanMove(source, target Partition, taskID string, index int) (Plan, error) {
	if strings.TrimSpace(taskID) == "" {
		return Plan{}, domain.Invalidf("task id is required")
	}
	if strings.TrimSpace(target.Column) == "" {
		return Plan{}, domain.Invalidf("kanban_column is required")
	}
	if index < 0 {
		return Plan{}, domain.Invalidf("position must be >= 0")
	}
	if err := source.validate(); err != nil {
		return Plan{}, err
	}
	if err := target.validate(); err != nil {
		return Plan{}, err
	}

	before := source.positions()
	if _, ok := before[taskID]; !ok {
		return Plan{}, fmt.Errorf("%w: %s in %q", ErrNotInPartition, taskID, source.Column)
	}

	if source.Column == target.Column {
		order := without(source.Ordered(), taskID)
		order = insertAt(order, clamp(index, len(order)), taskID)
		result := dense(source.Column, order)
		return Plan{
			Assignments: diff(before, result),
			Source:      result,
			Target:      result,
		}, nil
	}

	targetBefore := target.positions()
	if _, ok := targetBefore[taskID]; ok {
		return Plan{}, fmt.Errorf("%w: %s in %q", ErrDuplicateTask, taskID, target.Column)
	}

	srcResult := dense(source.Column, without(source.Ordered(), taskID))
	tgtOrder := target.Ordered()
	tgtResult := dense(target.Column, insertAt(tgtOrder, clamp(index, len(tgtOrder)), taskID))

	out := diff(before, srcResult)
	// the moved task is absent from targetBefore, so it is always assigned
	out = append(out, diff(targetBefore, tgtResult)...)
	return Plan{Assignments: out, Source: srcResult, Target: tgtResult}, nil
}

// Remove closes the gap left by deleting taskID from p.
func Remove(p Partition, taskID string) (Partition, []Assignment, error) {
	if err := p.validate(); err != nil {
		return Partition{}, nil, err
	}
	before := p.positions()
	if _, ok := before[taskID]; !ok {
		return Partition{}, nil, fmt.Errorf("%w: %s in %q", ErrNotInPartition, taskID, p.Column)
	}
	delete(before, taskID)
	result := dense(p.Column, without(p.Ordered(), taskID))
	return result, diff(before, result), nil
}

// Normalize rewrites p into dense order, keeping the stored relative order.
func Normalize(p Partition) (Partition, []Assignment, error) {
	if err := p.validate(); err != nil {
		return Partition{}, nil, err
	}
	result := dense(p.Column, p.Ordered())
	return result, diff(p.positions(), result), nil
}

// PlanReorder checks a caller supplied batch of placements. Repeated task
// ids collapse into one assignment carrying the last value given. The batch
// is applied as is: no gap reconciliation happens.
func PlanReorder(entries []Assignment) ([]Assignment, error) {
	if len(entries) == 0 {
		return nil, domain.Invalidf("tasks is required")
	}
	index := make(map[string]int, len(entries))
	out := make([]Assignment, 0, len(entries))
	for i, e := range entries {
		e.TaskID = strings.TrimSpace(e.TaskID)
		if e.TaskID == "" {
			return nil, domain.Invalidf("tasks[%d].id is required", i)
		}
		if strings.TrimSpace(e.Column) == "" {
			return nil, domain.Invalidf("tasks[%d].kanban_column is required", i)
		}
		if e.Position < 0 {
			return nil, domain.Invalidf("tasks[%d].position must be >= 0", i)
		}
		if at, ok := index[e.TaskID]; ok {
			out[at] = e
			continue
		}
		index[e.TaskID] = len(out)
		out = append(out, e)
	}
	return out, nil
}

// Columns returns the distinct columns named by assignments in sorted order.
func Columns(assignments []Assignment) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, a := range assignments {
		if _, ok := seen[a.Column]; ok {
			continue
		}
		seen[a.Column] = struct{}{}
		out = append(out, a.Column)
	}
	sort.Strings(out)
	return out
}

// diff lists the rows of result whose stored placement in before differs.
func diff(before map[string]int, result Partition) []Assignment {
	var out []Assignment
	for _, s := range result.Tasks {
		if pos, ok := before[s.TaskID]; ok && pos == s.Position {
			continue
		}
		out = append(out, Assignment{TaskID: s.TaskID, Column: result.Column, Position: s.Position})
	}
	return out
}

func dense(column string, ids []string) Partition {
	slots := make([]Slot, len(ids))
	for i, id := range ids {
		slots[i] = Slot{TaskID: id, Position: i}
	}
	return Partition{Column: column, Tasks: slots}
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func insertAt(ids []string, index int, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:index]...)
	out = append(out, id)
	return append(out, ids[index:]...)
}

func clamp(index, n int) int {
	if index > n {
		return n
	}
	return index
}
