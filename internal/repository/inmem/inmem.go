// Package inmem is a process-local implementation of the repository
// interfaces with the same semantics as the postgres package.
package inmem

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/tender/internal/repository"
	"github.com/knoguchi/tender/internal/search"
)

// Store keeps projects, files and chunks in memory. A single mutex makes
// every Persist atomic.
type Store struct {
	mu         sync.RWMutex
	projects   map[uuid.UUID]*repository.Project
	byExternal map[int64]uuid.UUID
	files      map[uuid.UUID]*repository.TenderFile
	chunks     map[uuid.UUID][]repository.Chunk // by file id, in index order
	now        func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		projects:   make(map[uuid.UUID]*repository.Project),
		byExternal: make(map[int64]uuid.UUID),
		files:      make(map[uuid.UUID]*repository.TenderFile),
		chunks:     make(map[uuid.UUID][]repository.Chunk),
		now:        time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// ============================================================================
// Ingestion
// ============================================================================

// Persist upserts the project by external id, adds the next file version
// and stores its chunks.
func (s *Store) Persist(_ context.Context, rec *repository.IngestionRecord) (*repository.PersistResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	project, ok := s.projectByExternal(rec.Project.ExternalID)
	if ok {
		project.TenderNumber = rec.Project.TenderNumber
		project.TenderDate = rec.Project.TenderDate
		project.SubmissionDeadline = rec.Project.SubmissionDeadline
		project.Status = rec.Project.Status
		project.Value = rec.Project.Value
		project.UpdatedBy = rec.Project.UpdatedBy
		project.UpdatedAt = now
	} else {
		p := rec.Project
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt, p.UpdatedAt = now, now
		project = &p
		s.projects[p.ID] = project
		s.byExternal[p.ExternalID] = p.ID
	}

	version := 1
	for _, f := range s.files {
		if f.ProjectID != project.ID {
			continue
		}
		version = max(version, f.Version+1)
		if f.IsActive {
			f.IsActive = false
			f.UpdatedAt = now
		}
	}

	file := rec.File
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.FileType == "" {
		file.FileType = "pdf"
	}
	file.ProjectID = project.ID
	file.Version = version
	file.IsActive = true
	file.CreatedAt, file.UpdatedAt = now, now
	s.files[file.ID] = &file

	chunks := make([]repository.Chunk, len(rec.Chunks))
	for i, c := range rec.Chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.FileID = file.ID
		c.CreatedAt = now
		chunks[i] = c
	}
	slices.SortStableFunc(chunks, func(a, b repository.Chunk) int { return a.Index - b.Index })
	s.chunks[file.ID] = chunks

	return &repository.PersistResult{
		ProjectID:  project.ID,
		ExternalID: project.ExternalID,
		FileID:     file.ID,
		Version:    version,
		ChunkCount: len(chunks),
	}, nil
}

func (s *Store) projectByExternal(externalID int64) (*repository.Project, bool) {
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, false
	}
	return s.projects[id], true
}

// ============================================================================
// Projects
// ============================================================================

// Projects returns the project repository view of the store.
func (s *Store) Projects() repository.ProjectRepository { return projectRepo{s} }

type projectRepo struct{ s *Store }

func (r projectRepo) GetByExternalID(_ context.Context, externalID int64) (*repository.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.projectByExternal(externalID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r projectRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.projects[id]
	if !ok {
		return repository.ErrNotFound
	}
	for fileID, f := range r.s.files {
		if f.ProjectID == id {
			r.s.deleteFile(fileID)
		}
	}
	delete(r.s.byExternal, p.ExternalID)
	delete(r.s.projects, id)
	return nil
}

// ============================================================================
// Files
// ============================================================================

// Files returns the file repository view of the store.
func (s *Store) Files() repository.FileRepository { return fileRepo{s} }

type fileRepo struct{ s *Store }

func (r fileRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.TenderFile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	f, ok := r.s.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyFile(f), nil
}

func (r fileRepo) ListByProject(_ context.Context, projectID uuid.UUID) ([]*repository.TenderFile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*repository.TenderFile
	for _, f := range r.s.files {
		if f.ProjectID == projectID {
			out = append(out, copyFile(f))
		}
	}
	slices.SortFunc(out, func(a, b *repository.TenderFile) int { return b.Version - a.Version })
	return out, nil
}

func (r fileRepo) UpdateSummary(_ context.Context, id uuid.UUID, level repository.SummaryLevel, summary string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.files[id]
	if !ok {
		return repository.ErrNotFound
	}
	if level == repository.SummarySimple {
		f.SimpleSummary = summary
	} else {
		f.Summary = summary
	}
	f.UpdatedAt = r.s.now()
	return nil
}

func (r fileRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.files[id]; !ok {
		return repository.ErrNotFound
	}
	r.s.deleteFile(id)
	return nil
}

func (s *Store) deleteFile(id uuid.UUID) {
	delete(s.chunks, id)
	delete(s.files, id)
}

func copyFile(f *repository.TenderFile) *repository.TenderFile {
	cp := *f
	if f.Corpus != nil {
		corpus := *f.Corpus
		corpus.DocLens = slices.Clone(f.Corpus.DocLens)
		cp.Corpus = &corpus
	}
	return &cp
}

// ============================================================================
// Chunks
// ============================================================================

// Chunks returns the chunk repository view of the store.
func (s *Store) Chunks() *ChunkRepo { return &ChunkRepo{s} }

// ChunkRepo implements repository.ChunkRepository and repository.ChunkSearcher.
type ChunkRepo struct{ s *Store }

func (r *ChunkRepo) GetByFile(_ context.Context, fileID uuid.UUID) ([]*repository.Chunk, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored := r.s.chunks[fileID]
	out := make([]*repository.Chunk, len(stored))
	for i := range stored {
		c := stored[i]
		out[i] = &c
	}
	return out, nil
}

func (r *ChunkRepo) CountByFile(_ context.Context, fileID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.chunks[fileID]), nil
}

// HybridSearch ranks the file's chunks with search.Fuse. Chunks without a
// usable vector score 0 on the dense side.
func (r *ChunkRepo) HybridSearch(_ context.Context, q repository.HybridQuery) ([]repository.SearchResult, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored := r.s.chunks[q.FileID]
	if len(stored) == 0 {
		return []repository.SearchResult{}, nil
	}

	var avgLen float64
	if f, ok := r.s.files[q.FileID]; ok && f.Corpus != nil {
		avgLen = f.Corpus.AvgDocLen
	} else {
		docs := make([][]string, len(stored))
		for i, c := range stored {
			docs[i] = c.Tokens
		}
		avgLen = search.AverageLength(docs)
	}

	cands := make([]search.Candidate, len(stored))
	for i, c := range stored {
		cands[i] = search.Candidate{Index: i}
		if dense, ok := search.Cosine(q.Vector, c.Dense); ok {
			cands[i].Dense = &dense
		}
		lexical := search.LexicalRank(q.Tokens, c.Tokens, avgLen)
		cands[i].Lexical = &lexical
	}

	ranked := search.Fuse(cands, q.Alpha, q.TopK)
	out := make([]repository.SearchResult, len(ranked))
	for i, rk := range ranked {
		out[i] = repository.SearchResult{
			Chunk:        stored[rk.Index],
			Score:        rk.Score,
			DenseScore:   rk.Dense,
			LexicalScore: rk.Lexical,
			Rank:         rk.Rank,
		}
	}
	return out, nil
}

var (
	_ repository.IngestionStore    = (*Store)(nil)
	_ repository.ProjectRepository = projectRepo{}
	_ repository.FileRepository    = fileRepo{}
	_ repository.ChunkRepository   = (*ChunkRepo)(nil)
	_ repository.ChunkSearcher     = (*ChunkRepo)(nil)
)
