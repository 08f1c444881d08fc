package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/tender/internal/repository"
)

// ProjectRepo implements repository.ProjectRepository
type ProjectRepo struct {
	db *DB
}

// NewProjectRepo creates a new project repository
func NewProjectRepo(db *DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

const projectColumns = `id, project_id, tender_number, tender_date, submission_deadline, status, value,
	created_by, updated_by, created_at, updated_at`

// GetByExternalID retrieves a project by its caller-facing number
func (r *ProjectRepo) GetByExternalID(ctx context.Context, externalID int64) (*repository.Project, error) {
	var p repository.Project
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM tender_projects WHERE project_id = $1`, externalID,
	).Scan(
		&p.ID, &p.ExternalID, &p.TenderNumber, &p.TenderDate, &p.SubmissionDeadline,
		&p.Status, &p.Value, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// Delete deletes a project together with its files and chunks
func (r *ProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM tender_projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// upsertProject creates the project or, when its external id already
// exists, overwrites the tender fields. The unique constraint resolves
// concurrent ingestions of the same project; the row stays locked until the
// surrounding transaction ends.
func upsertProject(ctx context.Context, q querier, p *repository.Project) (uuid.UUID, error) {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var stored uuid.UUID
	err := q.QueryRow(ctx, `
		INSERT INTO tender_projects (id, project_id, tender_number, tender_date, submission_deadline,
			status, value, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (project_id) DO UPDATE SET
			tender_number       = EXCLUDED.tender_number,
			tender_date         = EXCLUDED.tender_date,
			submission_deadline = EXCLUDED.submission_deadline,
			status              = EXCLUDED.status,
			value               = EXCLUDED.value,
			updated_by          = EXCLUDED.updated_by,
			updated_at          = NOW()
		RETURNING id
	`, id, p.ExternalID, p.TenderNumber, p.TenderDate, p.SubmissionDeadline,
		p.Status, p.Value, p.CreatedBy, p.UpdatedBy,
	).Scan(&stored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert project: %w", err)
	}
	return stored, nil
}

// Ensure ProjectRepo implements the interface
var _ repository.ProjectRepository = (*ProjectRepo)(nil)
