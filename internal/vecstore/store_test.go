package vecstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/cliniq/internal/intent"
	"github.com/openclinic/cliniq/internal/log"
)

// stubEmbedder returns one fixed vector per input document.
type stubEmbedder struct {
	err    error
	calls  int
	inputs []string
}

func (e *stubEmbedder) Name() string { return "stub-embedder" }

func (e *stubEmbedder) Register(r api.Registry) {}

func (e *stubEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		e.inputs = append(e.inputs, doc.Content[0].Text)
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: []float32{0.1, 0.2, 0.3}})
	}
	return resp, nil
}

// fakeDB records writes and serves canned query results.
type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	execErr  error

	queryRows *fakeRows
	queryErr  error
	queryArgs []any

	count    int
	countErr error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queryArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryRows, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{n: f.count, err: f.countErr}
}

type fakeRow struct {
	n   int
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int)) = r.n
	return nil
}

// fakeRows implements pgx.Rows over in-memory values.
type fakeRows struct {
	rows   [][]any
	idx    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *[]byte:
			*v = row[i].([]byte)
		case *float64:
			*v = row[i].(float64)
		default:
			return fmt.Errorf("unsupported scan destination %T", d)
		}
	}
	return nil
}

func TestSearch_NotInitialized(t *testing.T) {
	s := New(nil, nil, "faq", nil)

	_, err := s.Search(context.Background(), "what are your hours", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestAdd_NotInitialized(t *testing.T) {
	s := New(nil, nil, "faq", nil)

	err := s.Add(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestAdd_EmptyInput(t *testing.T) {
	s := New(nil, nil, "faq", nil)
	s.ready.Store(true)

	// Empty input short-circuits before any provider or database call.
	err := s.Add(context.Background(), nil)
	assert.NoError(t, err)
}

func TestCreate_EmptyInput(t *testing.T) {
	s := New(nil, nil, "faq", nil)

	err := s.Create(context.Background(), nil)
	assert.NoError(t, err)
	assert.False(t, s.ready.Load(), "empty create must not mark the store ready")
}

func TestCount_NotInitialized(t *testing.T) {
	s := New(nil, nil, "faq", nil)

	assert.Equal(t, 0, s.Count(context.Background()))
}

func TestCreate_RebuildsCollection(t *testing.T) {
	db := &fakeDB{count: 2}
	emb := &stubEmbedder{}
	s := New(db, emb, "faq", nil)

	docs := []intent.Document{
		{ID: "hours_0", Content: "Q: hours", Metadata: map[string]string{"tag": "hours_0"}},
		{ID: "location_0", Content: "Q: location", Metadata: map[string]string{"tag": "location_0"}},
	}
	require.NoError(t, s.Create(context.Background(), docs))

	// Delete-first rebuild, then one upsert per document.
	require.Len(t, db.execSQL, 3)
	assert.Contains(t, db.execSQL[0], "DELETE FROM faq_documents")
	assert.Contains(t, db.execSQL[1], "INSERT INTO faq_documents")
	assert.Contains(t, db.execSQL[2], "ON CONFLICT (collection, id) DO UPDATE")
	assert.Equal(t, "hours_0", db.execArgs[1][1])
	assert.Equal(t, "location_0", db.execArgs[2][1])

	// All documents embedded in a single provider round trip.
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, []string{"Q: hours", "Q: location"}, emb.inputs)

	assert.True(t, s.ready.Load())
	assert.Equal(t, 2, s.Count(context.Background()))
}

func TestCreate_CountMismatchWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, log.Config{})

	// Two documents in, one row stored: provider-level dedupe.
	db := &fakeDB{count: 1}
	s := New(db, &stubEmbedder{}, "faq", logger)

	docs := []intent.Document{
		{ID: "a", Content: "same"},
		{ID: "b", Content: "same"},
	}
	require.NoError(t, s.Create(context.Background(), docs))

	assert.True(t, s.ready.Load(), "mismatch is a warning, not a failure")
	assert.Contains(t, buf.String(), "document count mismatch")
}

func TestCreate_EmbedderError(t *testing.T) {
	db := &fakeDB{}
	s := New(db, &stubEmbedder{err: errors.New("quota exceeded")}, "faq", nil)

	err := s.Create(context.Background(), []intent.Document{{ID: "a", Content: "x"}})
	require.Error(t, err)
	assert.False(t, s.ready.Load())

	// The delete ran but no inserts followed.
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "DELETE FROM faq_documents")
}

func TestAdd_UpsertsDocuments(t *testing.T) {
	db := &fakeDB{}
	s := New(db, &stubEmbedder{}, "faq", nil)
	s.ready.Store(true)

	err := s.Add(context.Background(), []intent.Document{{ID: "new_0", Content: "extra"}})
	require.NoError(t, err)

	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "INSERT INTO faq_documents")
	assert.Equal(t, "new_0", db.execArgs[0][1])
}

func TestSearch_ScansCandidates(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{"hours_0", "Q: hours", []byte(`{"tag":"hours_0","category":"clinic_details"}`), 0.12},
		{"location_0", "Q: location", []byte(`not json`), 0.34},
	}}
	db := &fakeDB{queryRows: rows}
	s := New(db, &stubEmbedder{}, "faq", nil)
	s.ready.Store(true)

	got, err := s.Search(context.Background(), "when are you open", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "hours_0", got[0].Document.ID)
	assert.Equal(t, map[string]string{"tag": "hours_0", "category": "clinic_details"}, got[0].Document.Metadata)
	assert.Equal(t, 0.12, got[0].Distance)

	// Malformed metadata degrades to empty, never fails the search.
	assert.Equal(t, "location_0", got[1].Document.ID)
	assert.Equal(t, map[string]string{}, got[1].Document.Metadata)
	assert.Equal(t, 0.34, got[1].Distance)

	// The query carries the embedded vector, the collection, and the limit.
	require.Len(t, db.queryArgs, 3)
	assert.Equal(t, pgvector.NewVector([]float32{0.1, 0.2, 0.3}), db.queryArgs[0])
	assert.Equal(t, "faq", db.queryArgs[1])
	assert.Equal(t, 5, db.queryArgs[2])

	assert.True(t, rows.closed)
}

func TestLoad_MarksReady(t *testing.T) {
	db := &fakeDB{count: 3}
	s := New(db, &stubEmbedder{}, "faq", nil)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 3, s.Count(context.Background()))
}

func TestReset_ClearsReady(t *testing.T) {
	db := &fakeDB{count: 3}
	s := New(db, &stubEmbedder{}, "faq", nil)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.Reset(context.Background()))
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "DELETE FROM faq_documents")

	_, err := s.Search(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestCheckDuplicates_ScansContents(t *testing.T) {
	rows := &fakeRows{rows: [][]any{{"a"}, {"b"}, {"a"}}}
	db := &fakeDB{queryRows: rows}
	s := New(db, &stubEmbedder{}, "faq", nil)

	report, err := s.CheckDuplicates(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalDocuments)
	assert.Equal(t, 1, report.UniqueDocuments)
	assert.Equal(t, 1, report.DuplicateGroups)
}

func TestGroupDuplicates_Empty(t *testing.T) {
	report := groupDuplicates(nil)

	assert.Equal(t, 0, report.TotalDocuments)
	assert.Equal(t, 0, report.UniqueDocuments)
	assert.Equal(t, 0, report.DuplicateGroups)
	assert.Empty(t, report.Duplicates)
}

func TestGroupDuplicates_AllUnique(t *testing.T) {
	report := groupDuplicates([]string{"a", "b", "c"})

	assert.Equal(t, 3, report.TotalDocuments)
	assert.Equal(t, 3, report.UniqueDocuments)
	assert.Equal(t, 0, report.DuplicateGroups)
	assert.Empty(t, report.Duplicates)
}

func TestGroupDuplicates_Groups(t *testing.T) {
	report := groupDuplicates([]string{"a", "b", "a", "c", "a", "b"})

	assert.Equal(t, 6, report.TotalDocuments)
	assert.Equal(t, 1, report.UniqueDocuments) // only "c"
	assert.Equal(t, 2, report.DuplicateGroups)

	require.Len(t, report.Duplicates, 2)
	assert.Equal(t, "a", report.Duplicates[0].ContentPreview)
	assert.Equal(t, 3, report.Duplicates[0].Count)
	assert.Equal(t, "b", report.Duplicates[1].ContentPreview)
	assert.Equal(t, 2, report.Duplicates[1].Count)
}

func TestGroupDuplicates_PreviewLimit(t *testing.T) {
	var contents []string
	for _, c := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		contents = append(contents, c, c)
	}

	report := groupDuplicates(contents)

	assert.Equal(t, 7, report.DuplicateGroups)
	assert.Len(t, report.Duplicates, duplicatePreviewLimit)
}

func TestPreviewContent_Truncation(t *testing.T) {
	long := strings.Repeat("x", 150)

	got := previewContent(long)
	assert.Equal(t, strings.Repeat("x", 100)+"...", got)

	short := "short content"
	assert.Equal(t, short, previewContent(short))
}
