package main

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taskboard-labs/taskboard/internal/boardconfig"
	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/platform/httpserver"
	"github.com/taskboard-labs/taskboard/internal/repo"
	"github.com/taskboard-labs/taskboard/internal/service/board"
	"github.com/taskboard-labs/taskboard/internal/service/projects"
)

const (
	flashCookie = "taskboard_flash"
	flashTTL    = time.Minute
)

//go:embed templates/*.html
var templateFS embed.FS

type pageBoard interface {
	Config() boardconfig.Config
	Board(ctx context.Context, projectID string) (domain.Board, error)
	CreateTask(ctx context.Context, projectID string, input board.TaskInput, rc board.RequestContext) (domain.Task, error)
	DeleteTask(ctx context.Context, projectID, taskID string, rc board.RequestContext) error
}

type pageProjects interface {
	Get(ctx context.Context, id string) (projects.Detail, error)
}

type webUI struct {
	board      pageBoard
	projects   pageProjects
	dashboard  dashboardService
	doneColumn string
	columns    []string
	templates  *template.Template
	logger     *slog.Logger
	now        func() time.Time
}

type flash struct {
	Level   string
	Message string
}

func newWebUI(b pageBoard, p pageProjects, d dashboardService, logger *slog.Logger) (*webUI, error) {
	if b == nil || p == nil || d == nil {
		return nil, errors.New("board, projects and dashboard services are required")
	}
	tmpl, err := template.New("pages").Funcs(template.FuncMap{
		"date":    formatDateValue,
		"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v) },
		"dict":    dict,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	cfg := b.Config()
	return &webUI{
		board:      b,
		projects:   p,
		dashboard:  d,
		doneColumn: cfg.DoneColumn,
		columns:    cfg.Columns,
		templates:  tmpl,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (ui *webUI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", ui.handleDashboard)
	mux.HandleFunc("GET /projects/{id}/kanban", ui.handleKanban)
	mux.HandleFunc("POST /projects/{id}/tasks", ui.handleCreateTask)
	mux.HandleFunc("POST /projects/{id}/tasks/{task_id}/delete", ui.handleDeleteTask)
}

func (ui *webUI) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := ui.dashboard.Summary(r.Context())
	if err != nil {
		ui.fail(w, r, err)
		return
	}
	ui.render(w, r, "dashboard.html", map[string]any{
		"Flash":     readFlash(w, r),
		"Dashboard": newDashboardDTO(summary, ui.doneColumn),
	})
}

func (ui *webUI) handleKanban(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	detail, err := ui.projects.Get(r.Context(), projectID)
	if err != nil {
		ui.fail(w, r, err)
		return
	}
	b, err := ui.board.Board(r.Context(), projectID)
	if err != nil {
		ui.fail(w, r, err)
		return
	}
	ui.render(w, r, "kanban.html", map[string]any{
		"Flash":      readFlash(w, r),
		"Project":    newProjectDetailDTO(detail),
		"Board":      newBoardDTO(b, ui.now(), ui.doneColumn),
		"Columns":    ui.columns,
		"Priorities": []domain.Priority{domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh},
	})
}

func (ui *webUI) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	target := kanbanPath(projectID)
	if err := r.ParseForm(); err != nil {
		setFlash(w, "error", "Invalid form submission")
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	in, err := taskFormInput(r.PostForm)
	if err == nil {
		_, err = ui.board.CreateTask(r.Context(), projectID, in, pageRequestContext(r))
	}
	if err != nil {
		if !ui.flashError(w, r, err) {
			return
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	setFlash(w, "success", "Task created successfully")
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (ui *webUI) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	target := kanbanPath(projectID)
	if err := ui.board.DeleteTask(r.Context(), projectID, r.PathValue("task_id"), pageRequestContext(r)); err != nil {
		if !ui.flashError(w, r, err) {
			return
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	setFlash(w, "success", "Task deleted successfully")
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// flashError stores a user-facing error in the flash cookie. It reports false
// when the error was not user-facing and a failure page was written instead.
func (ui *webUI) flashError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, repo.ErrNotFound):
		setFlash(w, "error", err.Error())
	case errors.Is(err, repo.ErrConflict):
		setFlash(w, "error", "The board changed while saving, please retry")
	default:
		ui.fail(w, r, err)
		return false
	}
	return true
}

func (ui *webUI) render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	var buf bytes.Buffer
	if err := ui.templates.ExecuteTemplate(&buf, name, data); err != nil {
		ui.fail(w, r, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (ui *webUI) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Something went wrong"
	switch {
	case errors.Is(err, repo.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrValidation):
		status, message = http.StatusUnprocessableEntity, err.Error()
	default:
		requestID, _ := httpserver.RequestIDFromContext(r.Context())
		ui.logger.Error("page failed", "request_id", requestID, "path", r.URL.Path, "error", err)
	}
	http.Error(w, message, status)
}

func taskFormInput(form url.Values) (board.TaskInput, error) {
	in := board.TaskInput{
		Name:        form.Get("name"),
		Description: form.Get("description"),
		Priority:    domain.Priority(strings.TrimSpace(form.Get("priority"))),
		Column:      strings.TrimSpace(form.Get("kanban_column")),
	}
	var err error
	if in.StartDate, err = domain.ParseDate(form.Get("start_date")); err != nil {
		return board.TaskInput{}, err
	}
	if in.DueDate, err = domain.ParseDate(form.Get("due_date")); err != nil {
		return board.TaskInput{}, err
	}
	return in, nil
}

func pageRequestContext(r *http.Request) board.RequestContext {
	id, _ := httpserver.RequestIDFromContext(r.Context())
	return board.RequestContext{RequestID: id}
}

func kanbanPath(projectID string) string {
	return "/projects/" + url.PathEscape(projectID) + "/kanban"
}

func formatDateValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// dict builds a map from alternating keys and values for nested templates.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("dict needs key/value pairs")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

func setFlash(w http.ResponseWriter, level, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(level + "|" + message),
		Path:     "/",
		MaxAge:   int(flashTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// readFlash returns the pending flash message, if any, and clears it.
func readFlash(w http.ResponseWriter, r *http.Request) *flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	raw, err := url.QueryUnescape(c.Value)
	if err != nil {
		return nil
	}
	level, message, ok := strings.Cut(raw, "|")
	if !ok || message == "" {
		return nil
	}
	return &flash{Level: level, Message: message}
}
