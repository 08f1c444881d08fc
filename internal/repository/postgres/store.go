package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/tender/internal/repository"
)

// Store implements repository.IngestionStore
type Store struct {
	db *DB
}

// NewStore creates a new ingestion store
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Persist writes the project, the next file version and all chunks in one
// transaction. Nothing is written if any step fails.
func (s *Store) Persist(ctx context.Context, rec *repository.IngestionRecord) (*repository.PersistResult, error) {
	res := &repository.PersistResult{
		ExternalID: rec.Project.ExternalID,
		FileID:     rec.File.ID,
		ChunkCount: len(rec.Chunks),
	}

	err := pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		projectID, err := upsertProject(ctx, tx, &rec.Project)
		if err != nil {
			return err
		}
		res.ProjectID = projectID

		if res.Version, err = insertFile(ctx, tx, projectID, &rec.File); err != nil {
			return err
		}
		return insertChunks(ctx, tx, rec.File.ID, rec.Chunks)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Ensure Store implements the interface
var _ repository.IngestionStore = (*Store)(nil)
