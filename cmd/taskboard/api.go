package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/taskboard-labs/taskboard/internal/boardconfig"
	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/kanban"
	"github.com/taskboard-labs/taskboard/internal/platform/httpserver"
	"github.com/taskboard-labs/taskboard/internal/repo"
	"github.com/taskboard-labs/taskboard/internal/service/attachments"
	"github.com/taskboard-labs/taskboard/internal/service/board"
	"github.com/taskboard-labs/taskboard/internal/service/dashboard"
	"github.com/taskboard-labs/taskboard/internal/service/meetings"
	"github.com/taskboard-labs/taskboard/internal/service/projects"
	"github.com/taskboard-labs/taskboard/internal/service/tickets"
	"github.com/taskboard-labs/taskboard/internal/storage/objectstore"
)

const idempotencyKeyHeader = "Idempotency-Key"

type boardService interface {
	Config() boardconfig.Config
	Board(ctx context.Context, projectID string) (domain.Board, error)
	GetTask(ctx context.Context, projectID, taskID string) (domain.Task, error)
	CreateTask(ctx context.Context, projectID string, input board.TaskInput, rc board.RequestContext) (domain.Task, error)
	UpdateTask(ctx context.Context, projectID, taskID string, input board.TaskInput, rc board.RequestContext) (domain.Task, error)
	DeleteTask(ctx context.Context, projectID, taskID string, rc board.RequestContext) error
	MoveTask(ctx context.Context, taskID, column string, position int, rc board.RequestContext) (board.MoveResult, error)
	UpdatePosition(ctx context.Context, taskID string, position int, rc board.RequestContext) (board.MoveResult, error)
	ReorderBatch(ctx context.Context, idempotencyKey string, entries []kanban.Assignment, rc board.RequestContext) (board.ReorderResult, error)
	Normalize(ctx context.Context, projectID string, dryRun bool, rc board.RequestContext) (board.NormalizeResult, error)
}

type projectService interface {
	Create(ctx context.Context, in projects.Input) (domain.Project, error)
	Get(ctx context.Context, id string) (projects.Detail, error)
	List(ctx context.Context, status domain.ProjectStatus, limit int) ([]domain.Project, error)
	Update(ctx context.Context, id string, in projects.Input) (domain.Project, error)
	Delete(ctx context.Context, id string) error
	TasksData(ctx context.Context, id string) ([]domain.Task, error)
	Gantt(ctx context.Context, id string) ([]domain.Task, error)
}

type ticketService interface {
	Create(ctx context.Context, in tickets.Input) (domain.Ticket, error)
	Get(ctx context.Context, id string) (domain.Ticket, error)
	List(ctx context.Context, filter repo.TicketFilter) ([]domain.Ticket, error)
	Update(ctx context.Context, id string, in tickets.Input) (domain.Ticket, error)
	ChangeStatus(ctx context.Context, id string, status domain.TicketStatus) (domain.Ticket, error)
	Delete(ctx context.Context, id string) error
}

type meetingService interface {
	Create(ctx context.Context, in meetings.Input) (domain.Meeting, error)
	Get(ctx context.Context, id string) (domain.Meeting, error)
	List(ctx context.Context, filter repo.MeetingFilter) ([]domain.Meeting, error)
	Update(ctx context.Context, id string, in meetings.Input) (domain.Meeting, error)
	ChangeStatus(ctx context.Context, id string, status domain.MeetingStatus) (domain.Meeting, error)
	Delete(ctx context.Context, id string) error
}

type attachmentService interface {
	MaxBytes() int64
	Upload(ctx context.Context, in attachments.UploadInput) (domain.Attachment, error)
	List(ctx context.Context, ownerType domain.OwnerType, ownerID string, limit int) ([]domain.Attachment, error)
	Link(ctx context.Context, id string) (domain.Attachment, string, error)
	Open(ctx context.Context, id string) (domain.Attachment, io.ReadCloser, error)
	Delete(ctx context.Context, id string) (domain.Attachment, error)
}

type dashboardService interface {
	Summary(ctx context.Context) (dashboard.Summary, error)
}

type taskboardAPI struct {
	logger      *slog.Logger
	board       boardService
	projects    projectService
	tickets     ticketService
	meetings    meetingService
	attachments attachmentService
	dashboard   dashboardService
	now         func() time.Time
}

func (api *taskboardAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dashboard", api.handleDashboard)

	mux.HandleFunc("GET /api/projects", api.handleListProjects)
	mux.HandleFunc("POST /api/projects", api.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", api.handleGetProject)
	mux.HandleFunc("PUT /api/projects/{id}", api.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", api.handleDeleteProject)
	mux.HandleFunc("GET /api/projects/{id}/board", api.handleBoard)
	mux.HandleFunc("GET /api/projects/{id}/tasks-data", api.handleTasksData)
	mux.HandleFunc("GET /api/projects/{id}/gantt", api.handleGantt)
	mux.HandleFunc("POST /api/projects/{id}/normalize", api.handleNormalize)

	mux.HandleFunc("GET /api/projects/{id}/tasks", api.handleTasksData)
	mux.HandleFunc("POST /api/projects/{id}/tasks", api.handleCreateTask)
	mux.HandleFunc("GET /api/projects/{id}/tasks/{task_id}", api.handleGetTask)
	mux.HandleFunc("PUT /api/projects/{id}/tasks/{task_id}", api.handleUpdateTask)
	mux.HandleFunc("DELETE /api/projects/{id}/tasks/{task_id}", api.handleDeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/update-column", api.handleMoveTask)
	mux.HandleFunc("POST /api/tasks/{id}/update-position", api.handleUpdatePosition)
	mux.HandleFunc("POST /api/tasks/reorder", api.handleReorder)

	mux.HandleFunc("GET /api/tickets", api.handleListTickets)
	mux.HandleFunc("POST /api/tickets", api.handleCreateTicket)
	mux.HandleFunc("GET /api/tickets/{id}", api.handleGetTicket)
	mux.HandleFunc("PUT /api/tickets/{id}", api.handleUpdateTicket)
	mux.HandleFunc("DELETE /api/tickets/{id}", api.handleDeleteTicket)
	mux.HandleFunc("POST /api/tickets/{id}/change-status", api.handleChangeTicketStatus)

	mux.HandleFunc("GET /api/meetings", api.handleListMeetings)
	mux.HandleFunc("POST /api/meetings", api.handleCreateMeeting)
	mux.HandleFunc("GET /api/meetings/{id}", api.handleGetMeeting)
	mux.HandleFunc("PUT /api/meetings/{id}", api.handleUpdateMeeting)
	mux.HandleFunc("DELETE /api/meetings/{id}", api.handleDeleteMeeting)
	mux.HandleFunc("POST /api/meetings/{id}/change-status", api.handleChangeMeetingStatus)
	mux.HandleFunc("POST /api/meetings/{id}/complete", api.handleCompleteMeeting)

	if api.attachments != nil {
		mux.HandleFunc("GET /api/media", api.handleListMedia)
		mux.HandleFunc("POST /api/media", api.handleUploadMedia)
		mux.HandleFunc("GET /api/media/{id}", api.handleGetMedia)
		mux.HandleFunc("GET /api/media/{id}/download", api.handleDownloadMedia)
		mux.HandleFunc("DELETE /api/media/{id}", api.handleDeleteMedia)
	}
}

func (api *taskboardAPI) requestContext(r *http.Request) board.RequestContext {
	id, _ := httpserver.RequestIDFromContext(r.Context())
	return board.RequestContext{RequestID: id}
}

func (api *taskboardAPI) doneColumn() string {
	return api.board.Config().DoneColumn
}

// writeServiceError maps service errors onto the failure envelope.
func (api *taskboardAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		httpserver.WriteFailure(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, attachments.ErrTooLarge):
		httpserver.WriteFailure(w, r, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, repo.ErrNotFound):
		httpserver.WriteFailure(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, repo.ErrConflict):
		httpserver.WriteFailure(w, r, http.StatusConflict, err.Error())
	default:
		requestID, _ := httpserver.RequestIDFromContext(r.Context())
		api.logger.Error("request failed", "request_id", requestID, "method", r.Method, "path", r.URL.Path, "error", err)
		httpserver.WriteFailure(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Invalidf("invalid JSON body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return domain.Invalidf("invalid JSON body: multiple JSON values")
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Invalidf("limit must be a non-negative integer")
	}
	return n, nil
}

func (api *taskboardAPI) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := api.dashboard.Summary(r.Context())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"dashboard": newDashboardDTO(summary, api.doneColumn()),
	})
}

func (api *taskboardAPI) handleListProjects(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	status := domain.ProjectStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	list, err := api.projects.List(r.Context(), status, limit)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{"projects": newProjectDTOs(list)})
}

func (api *taskboardAPI) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	p, err := api.projects.Create(r.Context(), in)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusCreated, "Project created", map[string]any{"project": newProjectDTO(p)})
}

func (api *taskboardAPI) handleGetProject(w http.ResponseWriter, r *http.Request) {
	detail, err := api.projects.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{"project": newProjectDetailDTO(detail)})
}

func (api *taskboardAPI) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	p, err := api.projects.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Project updated", map[string]any{"project": newProjectDTO(p)})
}

func (api *taskboardAPI) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := api.projects.Delete(r.Context(), r.PathValue("id")); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Project deleted", nil)
}

func (api *taskboardAPI) handleBoard(w http.ResponseWriter, r *http.Request) {
	b, err := api.board.Board(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"board": newBoardDTO(b, api.now(), api.doneColumn()),
	})
}

func (api *taskboardAPI) handleTasksData(w http.ResponseWriter, r *http.Request) {
	list, err := api.projects.TasksData(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"tasks": newTaskDTOs(list, api.now(), api.doneColumn()),
	})
}

func (api *taskboardAPI) handleGantt(w http.ResponseWriter, r *http.Request) {
	list, err := api.projects.Gantt(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"tasks": newTaskDTOs(list, api.now(), api.doneColumn()),
	})
}

func (api *taskboardAPI) handleNormalize(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if raw := strings.TrimSpace(r.URL.Query().Get("dry_run")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			api.writeServiceError(w, r, domain.Invalidf("dry_run must be a boolean"))
			return
		}
		dryRun = v
	}
	res, err := api.board.Normalize(r.Context(), r.PathValue("id"), dryRun, api.requestContext(r))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Board normalized", map[string]any{"result": newNormalizeDTO(res)})
}

func (api *taskboardAPI) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	task, err := api.board.CreateTask(r.Context(), r.PathValue("id"), in, api.requestContext(r))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusCreated, "Task created", map[string]any{
		"task": newTaskDTO(task, api.now(), api.doneColumn()),
	})
}

func (api *taskboardAPI) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := api.board.GetTask(r.Context(), r.PathValue("id"), r.PathValue("task_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"task": newTaskDTO(task, api.now(), api.doneColumn()),
	})
}

func (api *taskboardAPI) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	task, err := api.board.UpdateTask(r.Context(), r.PathValue("id"), r.PathValue("task_id"), in, api.requestContext(r))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Task updated", map[string]any{
		"task": newTaskDTO(task, api.now(), api.doneColumn()),
	})
}

func (api *taskboardAPI) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := api.board.DeleteTask(r.Context(), r.PathValue("id"), r.PathValue("task_id"), api.requestContext(r)); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Task deleted", nil)
}

func (api *taskboardAPI) handleMoveTask(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	position, err := requirePosition("position", req.Position)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	res, err := api.board.MoveTask(r.Context(), r.PathValue("id"), req.KanbanColumn, position, api.requestContext(r))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeMoveResult(w, res)
}

func (api *taskboardAPI) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	position, err := requirePosition("position", req.Position)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	res, err := api.board.UpdatePosition(r.Context(), r.PathValue("id"), position, api.requestContext(r))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeMoveResult(w, res)
}

func (api *taskboardAPI) writeMoveResult(w http.ResponseWriter, res board.MoveResult) {
	message := "Task moved"
	if res.Shifted == 0 {
		message = "Task already in place"
	}
	httpserver.WriteSuccess(w, http.StatusOK, message, map[string]any{
		"task":    newTaskDTO(res.Task, api.now(), api.doneColumn()),
		"shifted": res.Shifted,
	})
}

func (api *taskboardAPI) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	entries := make([]kanban.Assignment, len(req.Tasks))
	for i, item := range req.Tasks {
		position, err := requirePosition("tasks["+strconv.Itoa(i)+"].position", item.Position)
		if err != nil {
			api.writeServiceError(w, r, err)
			return
		}
		entries[i] = kanban.Assignment{TaskID: item.ID, Column: item.KanbanColumn, Position: position}
	}
	res, err := api.board.ReorderBatch(r.Context(), r.Header.Get(idempotencyKeyHeader), entries, api.requestContext(r))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	message := "Tasks reordered"
	if res.Duplicate {
		message = "Reorder already applied"
	}
	httpserver.WriteSuccess(w, http.StatusOK, message, map[string]any{
		"updated":   res.Updated,
		"duplicate": res.Duplicate,
	})
}

func (api *taskboardAPI) handleListTickets(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := api.tickets.List(r.Context(), repo.TicketFilter{
		ProjectID: strings.TrimSpace(q.Get("project_id")),
		Status:    domain.TicketStatus(strings.TrimSpace(q.Get("status"))),
		Priority:  domain.TicketPriority(strings.TrimSpace(q.Get("priority"))),
		Search:    strings.TrimSpace(q.Get("search")),
		Sort:      strings.TrimSpace(q.Get("sort")),
		Order:     strings.TrimSpace(q.Get("order")),
		Limit:     limit,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{"tickets": newTicketDTOs(list)})
}

func (api *taskboardAPI) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	t, err := api.tickets.Create(r.Context(), req.input())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusCreated, "Ticket created", map[string]any{"ticket": newTicketDTO(t)})
}

func (api *taskboardAPI) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := api.tickets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{"ticket": newTicketDTO(t)})
}

func (api *taskboardAPI) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	t, err := api.tickets.Update(r.Context(), r.PathValue("id"), req.input())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Ticket updated", map[string]any{"ticket": newTicketDTO(t)})
}

func (api *taskboardAPI) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := api.tickets.Delete(r.Context(), r.PathValue("id")); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Ticket deleted", nil)
}

func (api *taskboardAPI) handleChangeTicketStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	t, err := api.tickets.ChangeStatus(r.Context(), r.PathValue("id"), domain.TicketStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Status updated to "+t.Status.Label(), map[string]any{"ticket": newTicketDTO(t)})
}

// handleListMeetings filters on whole days: from covers its day onward, to
// covers its day up to midnight.
func (api *taskboardAPI) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	from, err := domain.ParseDate(q.Get("from"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	to, err := domain.ParseDate(q.Get("to"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	if to != nil {
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		to = &end
	}
	list, err := api.meetings.List(r.Context(), repo.MeetingFilter{
		ProjectID: strings.TrimSpace(q.Get("project_id")),
		Status:    domain.MeetingStatus(strings.TrimSpace(q.Get("status"))),
		From:      from,
		To:        to,
		Search:    strings.TrimSpace(q.Get("search")),
		Sort:      strings.TrimSpace(q.Get("sort")),
		Order:     strings.TrimSpace(q.Get("order")),
		Limit:     limit,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{"meetings": newMeetingDTOs(list, api.now())})
}

func (api *taskboardAPI) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req meetingRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	m, err := api.meetings.Create(r.Context(), in)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusCreated, "Meeting created", map[string]any{"meeting": newMeetingDTO(m, api.now())})
}

func (api *taskboardAPI) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := api.meetings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{"meeting": newMeetingDTO(m, api.now())})
}

func (api *taskboardAPI) handleUpdateMeeting(w http.ResponseWriter, r *http.Request) {
	var req meetingRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	m, err := api.meetings.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Meeting updated", map[string]any{"meeting": newMeetingDTO(m, api.now())})
}

func (api *taskboardAPI) handleDeleteMeeting(w http.ResponseWriter, r *http.Request) {
	if err := api.meetings.Delete(r.Context(), r.PathValue("id")); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Meeting deleted", nil)
}

func (api *taskboardAPI) handleChangeMeetingStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.changeMeetingStatus(w, r, domain.MeetingStatus(strings.TrimSpace(req.Status)))
}

func (api *taskboardAPI) handleCompleteMeeting(w http.ResponseWriter, r *http.Request) {
	api.changeMeetingStatus(w, r, domain.MeetingStatusCompleted)
}

func (api *taskboardAPI) changeMeetingStatus(w http.ResponseWriter, r *http.Request, status domain.MeetingStatus) {
	m, err := api.meetings.ChangeStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "Status updated to "+m.Status.Label(), map[string]any{"meeting": newMeetingDTO(m, api.now())})
}

func (api *taskboardAPI) handleListMedia(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := api.attachments.List(r.Context(), domain.OwnerType(strings.TrimSpace(q.Get("owner_type"))), q.Get("owner_id"), limit)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	out := make([]attachmentDTO, len(list))
	for i, a := range list {
		out[i] = newAttachmentDTO(a)
	}
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{"media": out})
}

// handleUploadMedia accepts multipart/form-data with the fields file,
// owner_type and owner_id.
func (api *taskboardAPI) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	maxBytes := api.attachments.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.writeServiceError(w, r, attachments.ErrTooLarge)
			return
		}
		api.writeServiceError(w, r, domain.Invalidf("invalid multipart body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.writeServiceError(w, r, domain.Invalidf("file is required"))
		return
	}
	defer func() { _ = file.Close() }()

	a, err := api.attachments.Upload(r.Context(), attachments.UploadInput{
		OwnerType: domain.OwnerType(strings.TrimSpace(r.FormValue("owner_type"))),
		OwnerID:   r.FormValue("owner_id"),
		FileName:  header.Filename,
		Body:      file,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusCreated, "File uploaded", map[string]any{"media": newAttachmentDTO(a)})
}

func (api *taskboardAPI) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	a, url, err := api.attachments.Link(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	dto := newAttachmentDTO(a)
	dto.URL = url
	httpserver.WriteSuccess(w, http.StatusOK, "", map[string]any{"media": dto})
}

func (api *taskboardAPI) handleDownloadMedia(w http.ResponseWriter, r *http.Request) {
	a, body, err := api.attachments.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", objectstore.ContentDisposition(a.FileName))
	w.Header().Set("Content-Length", strconv.FormatInt(a.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		api.logger.Warn("media download interrupted", "media_id", a.ID, "error", err)
	}
}

func (api *taskboardAPI) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	if _, err := api.attachments.Delete(r.Context(), r.PathValue("id")); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, "File deleted", nil)
}
