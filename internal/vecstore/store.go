// Package vecstore implements the persistent vector index for composed
// knowledge documents, backed by PostgreSQL + pgvector.
//
// A "collection" is the set of rows sharing one collection key, which lets a
// single database serve rebuilds without dropping the table. Embeddings are
// produced by a Genkit ai.Embedder; the store treats the embedding provider
// as a replaceable black box.
//
// Reads (Search, Count) are safe for concurrent use. Mutations (Create, Add,
// Reset) are administrative and serialized by an internal mutex; they are
// expected to run at startup or during maintenance, not under query traffic.
package vecstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/openclinic/cliniq/internal/intent"
	"github.com/openclinic/cliniq/internal/log"
)

// ErrNotInitialized signals a query against a store that has not completed a
// successful Create or Load. The engine converts this into its "not ready"
// answer; it must never reach the HTTP caller as a raw error.
var ErrNotInitialized = errors.New("vector index not initialized")

// DB is the subset of pgxpool.Pool the store depends on.
// Defined by the consumer (this package) so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Candidate is one retrieval result: a stored document and its cosine
// distance to the query (0 = identical, 2 = opposite). Candidates are
// ephemeral, produced per query.
type Candidate struct {
	Document intent.Document
	Distance float64
}

// DuplicatePreview describes one group of documents sharing identical content.
type DuplicatePreview struct {
	ContentPreview string `json:"content_preview"`
	Count          int    `json:"count"`
}

// DuplicateReport summarizes content-level duplication in the collection.
type DuplicateReport struct {
	TotalDocuments  int                `json:"total_documents"`
	UniqueDocuments int                `json:"unique_documents"`
	DuplicateGroups int                `json:"duplicate_groups"`
	Duplicates      []DuplicatePreview `json:"duplicates"`
}

// Store manages one collection of embedded documents.
type Store struct {
	db         DB
	embedder   ai.Embedder
	collection string
	logger     log.Logger

	mu    sync.Mutex  // serializes Create/Add/Reset
	ready atomic.Bool // set after a successful Create or Load
}

// New creates a Store for the named collection. The store answers queries
// only after a successful Create or Load.
func New(db DB, embedder ai.Embedder, collection string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		db:         db,
		embedder:   embedder,
		collection: collection,
		logger:     logger,
	}
}

// Create rebuilds the collection from scratch: any existing rows for this
// collection are deleted first, so repeated rebuilds never accumulate
// duplicates across restarts. Empty input is a no-op with a warning.
//
// After inserting, the stored count is verified against the input count.
// A mismatch (embedding providers may silently dedupe) is logged as a
// data-integrity warning, not a hard failure.
func (s *Store) Create(ctx context.Context, docs []intent.Document) error {
	if len(docs) == 0 {
		s.logger.Warn("no documents provided, skipping index creation")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(ctx, `DELETE FROM faq_documents WHERE collection = $1`, s.collection); err != nil {
		return fmt.Errorf("deleting collection %q: %w", s.collection, err)
	}

	s.logger.Info("creating vector index", "collection", s.collection, "documents", len(docs))

	vectors, err := s.embedDocuments(ctx, docs)
	if err != nil {
		return err
	}

	if err := s.insert(ctx, docs, vectors); err != nil {
		return err
	}

	s.ready.Store(true)

	stored, err := s.rawCount(ctx)
	if err != nil {
		s.logger.Warn("could not verify stored document count", "error", err)
		return nil
	}
	if stored != len(docs) {
		s.logger.Warn("document count mismatch after index creation",
			"expected", len(docs),
			"stored", stored,
			"hint", "provider-level deduplication may have occurred")
	} else {
		s.logger.Info("vector index created", "collection", s.collection, "documents", stored)
	}
	return nil
}

// Load attaches to existing persisted state without re-embedding.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.rawCount(ctx)
	if err != nil {
		return fmt.Errorf("loading collection %q: %w", s.collection, err)
	}

	s.ready.Store(true)
	s.logger.Info("vector index loaded", "collection", s.collection, "documents", n)
	return nil
}

// Add inserts documents into an existing index incrementally.
// Rows are upserted by ID, so re-adding a document replaces it rather than
// duplicating it.
func (s *Store) Add(ctx context.Context, docs []intent.Document) error {
	if !s.ready.Load() {
		return ErrNotInitialized
	}
	if len(docs) == 0 {
		s.logger.Warn("no documents provided to add")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vectors, err := s.embedDocuments(ctx, docs)
	if err != nil {
		return err
	}
	if err := s.insert(ctx, docs, vectors); err != nil {
		return err
	}

	s.logger.Info("documents added", "collection", s.collection, "count", len(docs))
	return nil
}

// Search returns up to k candidates ordered by ascending cosine distance
// (most similar first).
func (s *Store) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	if !s.ready.Load() {
		return nil, ErrNotInitialized
	}

	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM faq_documents
		WHERE collection = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vec, s.collection, k)
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", s.collection, err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var (
			id, content  string
			metadataJSON []byte
			distance     float64
		)
		if err := rows.Scan(&id, &content, &metadataJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}

		metadata := map[string]string{}
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			s.logger.Warn("failed to parse document metadata", "id", id, "error", err)
			metadata = map[string]string{}
		}

		candidates = append(candidates, Candidate{
			Document: intent.Document{ID: id, Content: content, Metadata: metadata},
			Distance: distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}
	return candidates, nil
}

// Count returns the number of documents in the collection. It returns 0 for
// an uninitialized store and never fails: provider errors are logged and
// reported as 0 so health surfaces stay usable.
func (s *Store) Count(ctx context.Context) int {
	if !s.ready.Load() {
		return 0
	}
	n, err := s.rawCount(ctx)
	if err != nil {
		s.logger.Warn("counting documents failed", "collection", s.collection, "error", err)
		return 0
	}
	return n
}

// HasPersisted reports whether persisted state exists for this collection.
// Startup uses it to choose between a full rebuild and reusing prior state;
// it works on an uninitialized store by design.
func (s *Store) HasPersisted(ctx context.Context) (bool, error) {
	n, err := s.rawCount(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CheckDuplicates scans all stored documents and groups them by exact
// content equality. A maintenance diagnostic, not a query-path operation.
func (s *Store) CheckDuplicates(ctx context.Context) (DuplicateReport, error) {
	rows, err := s.db.Query(ctx,
		`SELECT content FROM faq_documents WHERE collection = $1 ORDER BY id`, s.collection)
	if err != nil {
		return DuplicateReport{}, fmt.Errorf("scanning collection %q: %w", s.collection, err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return DuplicateReport{}, fmt.Errorf("scanning document content: %w", err)
		}
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return DuplicateReport{}, fmt.Errorf("reading documents: %w", err)
	}

	return groupDuplicates(contents), nil
}

// Reset hard-deletes the collection's persisted state. The store returns to
// the uninitialized state and must be rebuilt via Create before queries.
// Distinct from Create's soft delete-and-rebuild.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(ctx, `DELETE FROM faq_documents WHERE collection = $1`, s.collection); err != nil {
		return fmt.Errorf("resetting collection %q: %w", s.collection, err)
	}

	s.ready.Store(false)
	s.logger.Info("vector index reset", "collection", s.collection)
	return nil
}

// embedDocuments embeds all document contents in one provider request.
func (s *Store) embedDocuments(ctx context.Context, docs []intent.Document) ([]pgvector.Vector, error) {
	input := make([]*ai.Document, len(docs))
	for i, doc := range docs {
		input[i] = ai.DocumentFromText(doc.Content, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("embedding %d documents: %w", len(docs), err)
	}
	if len(resp.Embeddings) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d documents", len(resp.Embeddings), len(docs))
	}

	vectors := make([]pgvector.Vector, len(docs))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding returned for document %q", docs[i].ID)
		}
		vectors[i] = pgvector.NewVector(emb.Embedding)
	}
	return vectors, nil
}

// embedQuery embeds a single query string.
func (s *Store) embedQuery(ctx context.Context, query string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("empty embedding returned for query")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// insert upserts documents with their vectors, keyed by (collection, id).
func (s *Store) insert(ctx context.Context, docs []intent.Document, vectors []pgvector.Vector) error {
	for i, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
		}
		_, err = s.db.Exec(ctx, `
			INSERT INTO faq_documents (collection, id, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (collection, id) DO UPDATE
			SET content = EXCLUDED.content,
			    metadata = EXCLUDED.metadata,
			    embedding = EXCLUDED.embedding`,
			s.collection, doc.ID, doc.Content, metadataJSON, vectors[i])
		if err != nil {
			return fmt.Errorf("inserting document %q: %w", doc.ID, err)
		}
	}
	return nil
}

// rawCount counts collection rows regardless of the ready flag.
func (s *Store) rawCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM faq_documents WHERE collection = $1`, s.collection).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// duplicatePreviewLimit caps the number of example groups in a report.
const duplicatePreviewLimit = 5

// groupDuplicates builds a duplication report from raw contents.
func groupDuplicates(contents []string) DuplicateReport {
	report := DuplicateReport{TotalDocuments: len(contents)}
	if len(contents) == 0 {
		return report
	}

	counts := map[string]int{}
	var order []string
	for _, content := range contents {
		if counts[content] == 0 {
			order = append(order, content)
		}
		counts[content]++
	}

	for _, content := range order {
		if counts[content] == 1 {
			report.UniqueDocuments++
			continue
		}
		report.DuplicateGroups++
		if len(report.Duplicates) < duplicatePreviewLimit {
			report.Duplicates = append(report.Duplicates, DuplicatePreview{
				ContentPreview: previewContent(content),
				Count:          counts[content],
			})
		}
	}
	return report
}

// previewContent truncates content to 100 characters for diagnostics.
func previewContent(content string) string {
	const limit = 100
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
