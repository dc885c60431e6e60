// Package activitylog appends and reads the board activity trail.
package activitylog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ActionTaskCreated    = "task.created"
	ActionTaskUpdated    = "task.updated"
	ActionTaskMoved      = "task.moved"
	ActionTaskDeleted    = "task.deleted"
	ActionTasksReorder   = "tasks.reordered"
	ActionBoardNormalize = "board.normalized"
)

type Event struct {
	OccurredAt   time.Time
	Action       string
	ResourceType string
	ResourceID   string
	ProjectID    string
	Title        string
	RequestID    string
	Payload      any
}

// Record is a stored event as returned by Recent.
type Record struct {
	EventID      int64           `json:"event_id"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	ProjectID    string          `json:"project_id,omitempty"`
	Title        string          `json:"title"`
	Payload      json.RawMessage `json:"payload"`
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("Action is required")
	}
	if strings.TrimSpace(e.ResourceType) == "" {
		return errors.New("ResourceType is required")
	}
	if strings.TrimSpace(e.ResourceID) == "" {
		return errors.New("ResourceID is required")
	}
	return nil
}

func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	payloadJSON, err := marshalPayload(event.Payload)
	if err != nil {
		return 0, err
	}
	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO activity_events (
			occurred_at,
			action,
			resource_type,
			resource_id,
			project_id,
			title,
			request_id,
			payload,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING event_id`,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.ResourceType),
		strings.TrimSpace(event.ResourceID),
		nullString(event.ProjectID),
		strings.TrimSpace(event.Title),
		nullString(event.RequestID),
		payloadJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert activity event: %w", err)
	}
	return id, nil
}

// Recent lists the newest events, optionally restricted to one project.
func Recent(ctx context.Context, q Queryer, projectID string, limit int) ([]Record, error) {
	if q == nil {
		return nil, errors.New("queryer is required")
	}
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT event_id, occurred_at, action, resource_type, resource_id, project_id, title, payload
		FROM activity_events`
	args := []any{}
	if projectID = strings.TrimSpace(projectID); projectID != "" {
		args = append(args, projectID)
		query += fmt.Sprintf(" WHERE project_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, event_id DESC LIMIT $%d", len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec     Record
			project sql.NullString
			payload []byte
		)
		if err := rows.Scan(&rec.EventID, &rec.OccurredAt, &rec.Action, &rec.ResourceType, &rec.ResourceID, &project, &rec.Title, &payload); err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		rec.ProjectID = project.String
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity events: %w", err)
	}
	return out, nil
}

func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt   time.Time       `json:"occurred_at"`
		Action       string          `json:"action"`
		ResourceType string          `json:"resource_type"`
		ResourceID   string          `json:"resource_id"`
		ProjectID    string          `json:"project_id,omitempty"`
		Title        string          `json:"title,omitempty"`
		RequestID    string          `json:"request_id,omitempty"`
		Payload      json.RawMessage `json:"payload"`
	}

	in := integrityInput{
		OccurredAt:   event.OccurredAt.UTC(),
		Action:       strings.TrimSpace(event.Action),
		ResourceType: strings.TrimSpace(event.ResourceType),
		ResourceID:   strings.TrimSpace(event.ResourceID),
		ProjectID:    strings.TrimSpace(event.ProjectID),
		Title:        strings.TrimSpace(event.Title),
		RequestID:    strings.TrimSpace(event.RequestID),
		Payload:      payloadJSON,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

func marshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return out, nil
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
