package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/kanban"
	"github.com/taskboard-labs/taskboard/internal/platform/activitylog"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

// fakeStore is an in-memory BoardStore. A failing InTx callback restores the
// state captured when the transaction began.
type fakeStore struct {
	mu       sync.Mutex
	projects map[string]bool
	tasks    map[string]domain.Task
	media    map[string]domain.Attachment
	events   []activitylog.Event
	locks    [][]string
	txCount  int

	onLock    func(s *fakeStore, keys []string)
	failApply error
}

func newFakeStore(projects ...string) *fakeStore {
	s := &fakeStore{
		projects: map[string]bool{},
		tasks:    map[string]domain.Task{},
		media:    map[string]domain.Attachment{},
	}
	for _, p := range projects {
		s.projects[p] = true
	}
	return s
}

type fakeSnapshot struct {
	tasks  map[string]domain.Task
	media  map[string]domain.Attachment
	events []activitylog.Event
}

func (s *fakeStore) snapshot() fakeSnapshot {
	snap := fakeSnapshot{
		tasks:  make(map[string]domain.Task, len(s.tasks)),
		media:  make(map[string]domain.Attachment, len(s.media)),
		events: append([]activitylog.Event(nil), s.events...),
	}
	for k, v := range s.tasks {
		snap.tasks[k] = v
	}
	for k, v := range s.media {
		snap.media[k] = v
	}
	return snap
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx repo.BoardTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	snap := s.snapshot()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.tasks, s.media, s.events = snap.tasks, snap.media, snap.events
		return err
	}
	return nil
}

// seed places ids at positions 0..n-1 of a column.
func (s *fakeStore) seed(projectID, column string, ids ...string) {
	for i, id := range ids {
		s.tasks[id] = domain.Task{
			ID:        id,
			ProjectID: projectID,
			Name:      "task " + id,
			Priority:  domain.PriorityMedium,
			Column:    column,
			Position:  i,
		}
	}
}

// column returns the ids of a partition in position order.
func (s *fakeStore) column(projectID, column string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := (&fakeTx{s: s}).partition(projectID, column)
	return p.Ordered()
}

func (s *fakeStore) positions(projectID, column string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := (&fakeTx{s: s}).partition(projectID, column)
	out := make([]int, 0, len(p.Tasks))
	for _, slot := range p.Tasks {
		out = append(out, slot.Position)
	}
	sort.Ints(out)
	return out
}

type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) LockPartitions(ctx context.Context, keys []string) error {
	t.s.locks = append(t.s.locks, append([]string(nil), keys...))
	if t.s.onLock != nil {
		hook := t.s.onLock
		t.s.onLock = nil
		hook(t.s, keys)
	}
	return nil
}

func (t *fakeTx) GetTask(ctx context.Context, id string) (domain.Task, error) {
	task, ok := t.s.tasks[id]
	if !ok {
		return domain.Task{}, repo.ErrNotFound
	}
	return task, nil
}

func (t *fakeTx) GetTasks(ctx context.Context, ids []string) (map[string]domain.Task, error) {
	out := map[string]domain.Task{}
	for _, id := range ids {
		if task, ok := t.s.tasks[id]; ok {
			out[id] = task
		}
	}
	return out, nil
}

func (t *fakeTx) partition(projectID, column string) kanban.Partition {
	p := kanban.Partition{Column: column}
	for _, task := range t.s.tasks {
		if task.ProjectID == projectID && task.Column == column {
			p.Tasks = append(p.Tasks, kanban.Slot{TaskID: task.ID, Position: task.Position})
		}
	}
	sort.Slice(p.Tasks, func(i, j int) bool {
		if p.Tasks[i].Position != p.Tasks[j].Position {
			return p.Tasks[i].Position < p.Tasks[j].Position
		}
		return p.Tasks[i].TaskID < p.Tasks[j].TaskID
	})
	return p
}

func (t *fakeTx) ListPartition(ctx context.Context, projectID, column string) (kanban.Partition, error) {
	return t.partition(projectID, column), nil
}

func (t *fakeTx) ListColumns(ctx context.Context, projectID string) ([]string, error) {
	seen := map[string]struct{}{}
	for _, task := range t.s.tasks {
		if task.ProjectID == projectID {
			seen[task.Column] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (t *fakeTx) ApplyPositions(ctx context.Context, assignments []kanban.Assignment, at time.Time) error {
	if t.s.failApply != nil && len(assignments) > 0 {
		return t.s.failApply
	}
	for _, a := range assignments {
		task, ok := t.s.tasks[a.TaskID]
		if !ok {
			return repo.ErrNotFound
		}
		task.Column = a.Column
		task.Position = a.Position
		task.UpdatedAt = at
		t.s.tasks[a.TaskID] = task
	}
	return nil
}

func (t *fakeTx) InsertTask(ctx context.Context, task domain.Task) error {
	if !t.s.projects[task.ProjectID] {
		return fmt.Errorf("insert task: %w", repo.ErrNotFound)
	}
	if _, ok := t.s.tasks[task.ID]; ok {
		return repo.ErrConflict
	}
	t.s.tasks[task.ID] = task
	return nil
}

func (t *fakeTx) UpdateTaskFields(ctx context.Context, task domain.Task) error {
	cur, ok := t.s.tasks[task.ID]
	if !ok {
		return repo.ErrNotFound
	}
	cur.Name = task.Name
	cur.Description = task.Description
	cur.StartDate = task.StartDate
	cur.DueDate = task.DueDate
	cur.Priority = task.Priority
	cur.UpdatedAt = task.UpdatedAt
	t.s.tasks[task.ID] = cur
	return nil
}

func (t *fakeTx) DeleteTask(ctx context.Context, id string) error {
	if _, ok := t.s.tasks[id]; !ok {
		return repo.ErrNotFound
	}
	delete(t.s.tasks, id)
	return nil
}

func (t *fakeTx) DeleteAttachmentsByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	for id, a := range t.s.media {
		if a.OwnerType == ownerType && a.OwnerID == ownerID {
			out = append(out, a)
			delete(t.s.media, id)
		}
	}
	return out, nil
}

func (t *fakeTx) AppendActivity(ctx context.Context, event activitylog.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	t.s.events = append(t.s.events, event)
	return nil
}

// fakeReader serves TaskReader and ProjectGetter from the fake store.
// onList runs once, after the next ListProjectTasks has read the store.
type fakeReader struct {
	s      *fakeStore
	calls  int
	onList func()
}

func (r *fakeReader) GetTask(ctx context.Context, id string) (domain.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return (&fakeTx{s: r.s}).GetTask(ctx, id)
}

func (r *fakeReader) ListProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	r.s.mu.Lock()
	r.calls++
	var out []domain.Task
	for _, task := range r.s.tasks {
		if task.ProjectID == projectID {
			out = append(out, task)
		}
	}
	r.s.mu.Unlock()
	if hook := r.onList; hook != nil {
		r.onList = nil
		hook()
	}
	return out, nil
}

func (r *fakeReader) Get(ctx context.Context, id string) (domain.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.s.projects[id] {
		return domain.Project{}, repo.ErrNotFound
	}
	return domain.Project{ID: id, Name: id, Status: domain.ProjectStatusActive}, nil
}

type fakeCache struct {
	boards   map[string]domain.Board
	versions map[string]int64
	evicted  []string
	stale    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{boards: map[string]domain.Board{}, versions: map[string]int64{}}
}

func (c *fakeCache) Load(ctx context.Context, projectID string) (domain.Board, bool) {
	b, ok := c.boards[projectID]
	return b, ok
}

func (c *fakeCache) Version(ctx context.Context, projectID string) (int64, bool) {
	return c.versions[projectID], true
}

func (c *fakeCache) Store(ctx context.Context, b domain.Board, version int64) {
	if c.versions[b.ProjectID] != version {
		c.stale++
		return
	}
	c.boards[b.ProjectID] = b
}

func (c *fakeCache) Evict(ctx context.Context, projectIDs ...string) error {
	for _, id := range projectIDs {
		delete(c.boards, id)
		c.versions[id]++
		c.evicted = append(c.evicted, id)
	}
	return nil
}

type fakeDeduper struct {
	keys    map[string]string
	removed []string
	err     error
}

func (d *fakeDeduper) Add(ctx context.Context, scope, key, digest string) (string, bool, error) {
	if d.err != nil {
		return "", false, d.err
	}
	k := scope + ":" + key
	if prior, ok := d.keys[k]; ok {
		return prior, false, nil
	}
	d.keys[k] = digest
	return "", true, nil
}

func (d *fakeDeduper) Remove(ctx context.Context, scope, key string) error {
	delete(d.keys, scope+":"+key)
	d.removed = append(d.removed, key)
	return nil
}

type fakeBlobs struct {
	removed []string
	err     error
}

func (b *fakeBlobs) RemoveBlobs(ctx context.Context, attachments []domain.Attachment) error {
	for _, a := range attachments {
		b.removed = append(b.removed, a.ObjectKey)
	}
	return b.err
}

var errBoom = errors.New("boom")
