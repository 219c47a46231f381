package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobrag/internal/model"
	"github.com/amishk599/jobrag/internal/projection"
)

// --- Fakes ---

// FakeEmbedder returns a fixed-size vector per text and counts calls.
type FakeEmbedder struct {
	Calls int
	Texts []string
	Err   error
	Short bool // drop the last embedding to break alignment
}

func (f *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.Calls++
	f.Texts = append(f.Texts, texts...)
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	if f.Short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// RecordingStore keeps every upserted batch.
type RecordingStore struct {
	Batches     []model.Batch
	Collections []string
	Err         error
}

func (s *RecordingStore) Upsert(_ context.Context, collection string, b model.Batch) error {
	if s.Err != nil {
		return s.Err
	}
	s.Collections = append(s.Collections, collection)
	s.Batches = append(s.Batches, b)
	return nil
}

func (s *RecordingStore) Query(context.Context, string, []float32, int) ([]model.SearchResult, error) {
	return nil, nil
}

// RecordingNotifier records which reports were sent to Notify.
type RecordingNotifier struct {
	Reports []model.IngestReport
	Err     error
}

func (n *RecordingNotifier) Notify(r model.IngestReport) error {
	n.Reports = append(n.Reports, r)
	return n.Err
}

// CountingCache counts generation bumps.
type CountingCache struct {
	Bumps map[string]int
}

func (c *CountingCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (c *CountingCache) Set(context.Context, string, []byte) error         { return nil }
func (c *CountingCache) Generation(_ context.Context, col string) (int64, error) {
	return int64(c.Bumps[col]), nil
}
func (c *CountingCache) Bump(_ context.Context, col string) error {
	if c.Bumps == nil {
		c.Bumps = make(map[string]int)
	}
	c.Bumps[col]++
	return nil
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var asOf = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

const listings = "Position Title,Company,Job Type,Salary,Date Posted,Closing Date,Description\n" +
	"Data Analyst,Acme,Remote Full-time,\"$60,000 per year\",2024-01-01,,Build dashboards\n" +
	"Barista,Bean Co,Part-time on-site,$18/hr,,2023-12-01,Pull shots\n" +
	"Nurse,General,Full-time,$45 per hour,,not a date,Care\n" +
	"Platform Engineer,Initech,Hybrid,\"$150,000/yr\",,2024-06-30,Run clusters\n"

func newTestPipeline(e model.Embedder, s model.VectorStore, opts ...Option) *Pipeline {
	opts = append([]Option{WithBatchIDs(func() string { return "b1" })}, opts...)
	proj := projection.NewProjector([]model.Field{model.FieldTitle, model.FieldJobRoles}, projection.ModePlain)
	return NewPipeline("jobs", proj, e, s, discardLogger(), opts...)
}

// --- Tests ---

func TestIngest_EndToEnd(t *testing.T) {
	emb := &FakeEmbedder{}
	store := &RecordingStore{}
	notifier := &RecordingNotifier{}
	cache := &CountingCache{}
	p := newTestPipeline(emb, store, WithNotifier(notifier), WithCache(cache))

	report, err := p.IngestAsOf(context.Background(), Upload{Filename: "jobs.csv", Content: []byte(listings), Source: "test"}, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Rows != 4 || report.Active != 2 || report.Ingested != 2 {
		t.Errorf("report rows/active/ingested = %d/%d/%d, want 4/2/2", report.Rows, report.Active, report.Ingested)
	}
	if report.Format != "csv-alternate" {
		t.Errorf("format = %q", report.Format)
	}
	if emb.Calls != 1 {
		t.Errorf("embed calls = %d, want 1", emb.Calls)
	}
	if len(store.Batches) != 1 || store.Collections[0] != "jobs" {
		t.Fatalf("upserts = %d, want 1 into jobs", len(store.Batches))
	}

	b := store.Batches[0]
	if b.Len() != 2 || len(b.Documents) != 2 || len(b.Metadatas) != 2 || len(b.Embeddings) != 2 {
		t.Fatalf("misaligned batch: %+v", b)
	}
	if b.IDs[0] != "b1-0" || b.IDs[1] != "b1-1" {
		t.Errorf("ids = %v", b.IDs)
	}
	if b.Documents[0] != "Data Analyst Build dashboards" {
		t.Errorf("Documents[0] = %q", b.Documents[0])
	}
	for i, doc := range b.Documents {
		if b.Embeddings[i][0] != float32(len(doc)) {
			t.Errorf("embedding %d does not belong to document %q", i, doc)
		}
	}

	analyst := b.Metadatas[0]
	if analyst["Location Type"] != "Remote" || analyst["Salary Type"] != "Yearly" {
		t.Errorf("inference missing: %v", analyst)
	}
	if analyst["Expires"] != "2024-03-31" {
		t.Errorf("Expires = %q, want 2024-03-31", analyst["Expires"])
	}
	if b.Metadatas[1]["Title"] != "Platform Engineer" || b.Metadatas[1]["Location Type"] != "Hybrid" {
		t.Errorf("Metadatas[1] = %v", b.Metadatas[1])
	}

	if len(notifier.Reports) != 1 || notifier.Reports[0].Ingested != 2 {
		t.Errorf("notifier reports = %+v", notifier.Reports)
	}
	if cache.Bumps["jobs"] != 1 {
		t.Errorf("cache bumps = %d, want 1", cache.Bumps["jobs"])
	}
}

func TestIngest_MalformedInputFailsAtNormalize(t *testing.T) {
	emb := &FakeEmbedder{}
	store := &RecordingStore{}
	p := newTestPipeline(emb, store)

	_, err := p.IngestAsOf(context.Background(), Upload{Filename: "jobs.json", Content: []byte("{not json")}, asOf)

	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageNormalized {
		t.Fatalf("err = %v, want StageError at normalized", err)
	}
	var me *model.MalformedInputError
	if !errors.As(err, &me) {
		t.Errorf("err = %v, want MalformedInputError in chain", err)
	}
	if emb.Calls != 0 || len(store.Batches) != 0 {
		t.Error("collaborators must not be called for malformed input")
	}
}

func TestIngest_EmbedderFailureAbortsBatch(t *testing.T) {
	emb := &FakeEmbedder{Err: errors.New("connection refused")}
	store := &RecordingStore{}
	notifier := &RecordingNotifier{}
	p := newTestPipeline(emb, store, WithNotifier(notifier))

	_, err := p.IngestAsOf(context.Background(), Upload{Filename: "jobs.csv", Content: []byte(listings)}, asOf)

	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageEmbedded {
		t.Fatalf("err = %v, want StageError at embedded", err)
	}
	var ce *model.CollaboratorError
	if !errors.As(err, &ce) || ce.Collaborator != "embedder" {
		t.Errorf("err = %v, want embedder CollaboratorError", err)
	}
	if len(store.Batches) != 0 {
		t.Error("nothing may be upserted after an embed failure")
	}
	if len(notifier.Reports) != 0 {
		t.Error("failed batches are not reported")
	}
}

func TestIngest_MisalignedEmbeddingsRejected(t *testing.T) {
	store := &RecordingStore{}
	p := newTestPipeline(&FakeEmbedder{Short: true}, store)

	_, err := p.IngestAsOf(context.Background(), Upload{Filename: "jobs.csv", Content: []byte(listings)}, asOf)
	if err == nil || !strings.Contains(err.Error(), "embeddings for") {
		t.Fatalf("err = %v, want alignment error", err)
	}
	if len(store.Batches) != 0 {
		t.Error("misaligned batch must not be upserted")
	}
}

func TestIngest_StoreFailure(t *testing.T) {
	p := newTestPipeline(&FakeEmbedder{}, &RecordingStore{Err: errors.New("disk full")})

	_, err := p.IngestAsOf(context.Background(), Upload{Filename: "jobs.csv", Content: []byte(listings)}, asOf)

	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageUpserted {
		t.Fatalf("err = %v, want StageError at upserted", err)
	}
}

func TestIngest_AllExpiredSkipsCollaborators(t *testing.T) {
	emb := &FakeEmbedder{}
	store := &RecordingStore{}
	p := newTestPipeline(emb, store)

	report, err := p.IngestAsOf(context.Background(), Upload{Filename: "jobs.csv", Content: []byte(listings)}, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Ingested != 0 || report.Rows != 4 {
		t.Errorf("report = %+v", report)
	}
	if emb.Calls != 0 || len(store.Batches) != 0 {
		t.Error("collaborators must not be called for an empty batch")
	}
}

func TestIngest_NotifierErrorDoesNotFailCommittedBatch(t *testing.T) {
	store := &RecordingStore{}
	p := newTestPipeline(&FakeEmbedder{}, store, WithNotifier(&RecordingNotifier{Err: errors.New("webhook down")}))

	report, err := p.IngestAsOf(context.Background(), Upload{Filename: "jobs.csv", Content: []byte(listings)}, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Ingested != 2 || len(store.Batches) != 1 {
		t.Errorf("report = %+v, upserts = %d", report, len(store.Batches))
	}
}

func TestIngest_UsesClock(t *testing.T) {
	store := &RecordingStore{}
	p := newTestPipeline(&FakeEmbedder{}, store, WithClock(func() time.Time { return asOf }))

	report, err := p.Ingest(context.Background(), Upload{Filename: "jobs.csv", Content: []byte(listings)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.AsOf.Equal(asOf) || report.Ingested != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestStage_String(t *testing.T) {
	if StageEmbedded.String() != "embedded" {
		t.Errorf("StageEmbedded = %q", StageEmbedded.String())
	}
	if Stage(42).String() != "stage(42)" {
		t.Errorf("Stage(42) = %q", Stage(42).String())
	}
}
