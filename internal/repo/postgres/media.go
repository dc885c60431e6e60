package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/taskboard-labs/taskboard/internal/domain"
)

const mediaColumns = `media_id, owner_type, owner_id, object_key, file_name, content_type, size_bytes, created_at`

type AttachmentStore struct {
	db DB
}

func NewAttachmentStore(db DB) *AttachmentStore {
	if db == nil {
		return nil
	}
	return &AttachmentStore{db: db}
}

func (s *AttachmentStore) Create(ctx context.Context, a domain.Attachment) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("attachment store not initialized")
	}
	if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.ObjectKey) == "" {
		return fmt.Errorf("attachment id and object key are required")
	}
	if !a.OwnerType.Valid() {
		return domain.Invalidf("invalid owner_type %q", a.OwnerType)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO media (`+mediaColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID,
		string(a.OwnerType),
		a.OwnerID,
		a.ObjectKey,
		a.FileName,
		a.ContentType,
		a.SizeBytes,
		normalizeTime(a.CreatedAt),
	)
	return classifyWrite("insert attachment", err)
}

func (s *AttachmentStore) Get(ctx context.Context, id string) (domain.Attachment, error) {
	if s == nil || s.db == nil {
		return domain.Attachment{}, fmt.Errorf("attachment store not initialized")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE media_id = $1`, strings.TrimSpace(id))
	a, err := scanAttachment(row)
	if err != nil {
		return domain.Attachment{}, handleNotFound(err)
	}
	return a, nil
}

func (s *AttachmentStore) ListByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string, limit int) ([]domain.Attachment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("attachment store not initialized")
	}
	query := `SELECT ` + mediaColumns + ` FROM media WHERE owner_type = $1 AND owner_id = $2 ORDER BY created_at DESC, media_id`
	args := []any{string(ownerType), strings.TrimSpace(ownerID)}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return collectAttachments(rows)
}

func (s *AttachmentStore) ListForProject(ctx context.Context, projectID string) ([]domain.Attachment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("attachment store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+mediaColumns+` FROM media
		 WHERE (owner_type = 'project' AND owner_id = $1)
		    OR (owner_type = 'task' AND owner_id IN (SELECT task_id FROM tasks WHERE project_id = $1))
		    OR (owner_type = 'ticket' AND owner_id IN (SELECT ticket_id FROM tickets WHERE project_id = $1))
		 ORDER BY created_at DESC, media_id`,
		strings.TrimSpace(projectID),
	)
	if err != nil {
		return nil, fmt.Errorf("list project attachments: %w", err)
	}
	return collectAttachments(rows)
}

func (s *AttachmentStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("attachment store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE media_id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return expectRows(res, 1)
}

func collectAttachments(rows *sql.Rows) ([]domain.Attachment, error) {
	defer rows.Close()
	out := make([]domain.Attachment, 0)
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return out, nil
}

func scanAttachment(row scanner) (domain.Attachment, error) {
	var (
		a         domain.Attachment
		ownerType string
	)
	if err := row.Scan(&a.ID, &ownerType, &a.OwnerID, &a.ObjectKey, &a.FileName, &a.ContentType, &a.SizeBytes, &a.CreatedAt); err != nil {
		return domain.Attachment{}, err
	}
	a.OwnerType = domain.OwnerType(ownerType)
	return a, nil
}
