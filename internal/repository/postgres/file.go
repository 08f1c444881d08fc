package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/tender/internal/repository"
)

// FileRepo implements repository.FileRepository
type FileRepo struct {
	db *DB
}

// NewFileRepo creates a new file repository
func NewFileRepo(db *DB) *FileRepo {
	return &FileRepo{db: db}
}

const fileColumns = `id, tender_id, file_name, file_path, file_type, version, is_active,
	summary, simple_summary, corpus_stats, created_by, created_at, updated_at`

// GetByID retrieves a file by ID
func (r *FileRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.TenderFile, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+fileColumns+` FROM tender_files WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, repository.ErrNotFound
	}
	return files[0], nil
}

// ListByProject retrieves every version of a project's files, newest first
func (r *FileRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*repository.TenderFile, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+fileColumns+` FROM tender_files WHERE tender_id = $1 ORDER BY version DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return scanFiles(rows)
}

// UpdateSummary stores a generated summary at the given level
func (r *FileRepo) UpdateSummary(ctx context.Context, id uuid.UUID, level repository.SummaryLevel, summary string) error {
	column := "summary"
	if level == repository.SummarySimple {
		column = "simple_summary"
	}
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE tender_files SET `+column+` = $2, updated_at = NOW() WHERE id = $1`, id, summary)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes a file and, by cascade, its chunks
func (r *FileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM tender_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanFiles(rows pgx.Rows) ([]*repository.TenderFile, error) {
	defer rows.Close()

	var files []*repository.TenderFile
	for rows.Next() {
		var f repository.TenderFile
		var corpusJSON []byte
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.FileName, &f.FilePath, &f.FileType,
			&f.Version, &f.IsActive, &f.Summary, &f.SimpleSummary, &corpusJSON,
			&f.CreatedBy, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		if len(corpusJSON) > 0 {
			f.Corpus = &repository.CorpusStats{}
			if err := json.Unmarshal(corpusJSON, f.Corpus); err != nil {
				return nil, fmt.Errorf("failed to unmarshal corpus stats: %w", err)
			}
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read files: %w", err)
	}
	return files, nil
}

// insertFile writes the next version of a project's file and retires the
// previous active one. It returns the assigned version.
func insertFile(ctx context.Context, q querier, projectID uuid.UUID, f *repository.TenderFile) (int, error) {
	var corpusJSON []byte
	if f.Corpus != nil {
		var err error
		if corpusJSON, err = json.Marshal(f.Corpus); err != nil {
			return 0, fmt.Errorf("failed to marshal corpus stats: %w", err)
		}
	}

	var version int
	if err := q.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM tender_files WHERE tender_id = $1`, projectID,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to determine file version: %w", err)
	}

	if _, err := q.Exec(ctx,
		`UPDATE tender_files SET is_active = FALSE, updated_at = NOW() WHERE tender_id = $1 AND is_active`,
		projectID); err != nil {
		return 0, fmt.Errorf("failed to retire previous file: %w", err)
	}

	fileType := f.FileType
	if fileType == "" {
		fileType = "pdf"
	}
	_, err := q.Exec(ctx, `
		INSERT INTO tender_files (id, tender_id, file_name, file_path, file_type, version, is_active,
			summary, simple_summary, corpus_stats, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8, $9, $10, NOW(), NOW())
	`, f.ID, projectID, f.FileName, f.FilePath, fileType, version,
		f.Summary, f.SimpleSummary, corpusJSON, f.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	return version, nil
}

// Ensure FileRepo implements the interface
var _ repository.FileRepository = (*FileRepo)(nil)
