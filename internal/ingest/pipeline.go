// Package ingest runs uploaded job listings through normalization, filtering,
// inference and projection, then embeds and stores the surviving records.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobrag/internal/filter"
	"github.com/amishk599/jobrag/internal/format"
	"github.com/amishk599/jobrag/internal/infer"
	"github.com/amishk599/jobrag/internal/model"
	"github.com/amishk599/jobrag/internal/projection"
)

// Upload is one batch handed to the pipeline.
type Upload struct {
	Filename string
	Content  []byte
	Format   string // descriptor name; empty means detect
	Source   string // where the upload came from, e.g. "http" or "watch"
}

// Pipeline owns the ingestion flow for a single collection:
// normalize → filter → infer → project → embed → upsert.
type Pipeline struct {
	collection string
	projector  *projection.Projector
	embedder   model.Embedder
	store      model.VectorStore
	cache      model.Cache
	notifier   model.Notifier
	now        func() time.Time
	newBatchID func() string
	logger     *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithCache bumps the collection's cache generation after every commit.
func WithCache(c model.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithNotifier reports every committed batch.
func WithNotifier(n model.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithClock overrides the clock used for the expiry cutoff.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithBatchIDs overrides batch id generation.
func WithBatchIDs(next func() string) Option {
	return func(p *Pipeline) { p.newBatchID = next }
}

// NewPipeline creates a pipeline wired with its collaborators.
func NewPipeline(
	collection string,
	projector *projection.Projector,
	embedder model.Embedder,
	store model.VectorStore,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		collection: collection,
		projector:  projector,
		embedder:   embedder,
		store:      store,
		now:        time.Now,
		newBatchID: uuid.NewString,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Collection returns the collection this pipeline writes to.
func (p *Pipeline) Collection() string { return p.collection }

// Ingest runs one upload through the pipeline, expiring listings as of now.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (model.IngestReport, error) {
	return p.IngestAsOf(ctx, up, p.now())
}

// IngestAsOf runs one upload through the pipeline using asOf as the expiry
// cutoff. The batch either commits as a whole with one embed call and one
// upsert call, or fails with a *StageError and writes nothing.
func (p *Pipeline) IngestAsOf(ctx context.Context, up Upload, asOf time.Time) (model.IngestReport, error) {
	report := model.IngestReport{
		BatchID:    p.newBatchID(),
		Source:     up.Source,
		Collection: p.collection,
		AsOf:       asOf,
	}
	log := p.logger.With("batch_id", report.BatchID, "collection", p.collection)
	fail := func(s Stage, err error) (model.IngestReport, error) {
		log.Error("ingest failed", "stage", s.String(), "error", err)
		return report, &StageError{BatchID: report.BatchID, Stage: s, Err: err}
	}
	log.Debug("batch received", "stage", StageReceived.String(), "filename", up.Filename, "bytes", len(up.Content))

	d, records, rows, err := format.Parse(up.Filename, up.Content, up.Format)
	if d != nil {
		report.Format = d.Name
	}
	report.Rows = rows
	if err != nil {
		return fail(StageNormalized, err)
	}
	log.Debug("batch normalized", "stage", StageNormalized.String(), "format", report.Format, "rows", rows, "records", len(records))

	records = filter.FilterActive(records, asOf)
	report.Active = len(records)
	log.Debug("batch filtered", "stage", StageFiltered.String(), "active", report.Active)

	records = infer.All(records)

	ids := make([]string, len(records))
	for i := range records {
		ids[i] = report.BatchID + "-" + strconv.Itoa(i)
	}
	batch, err := p.projector.Project(records, ids)
	if err != nil {
		return fail(StageProjected, err)
	}

	if batch.Len() == 0 {
		log.Info("nothing to ingest", "format", report.Format, "rows", rows, "active", 0)
		return report, nil
	}

	if err := ctx.Err(); err != nil {
		return fail(StageEmbedded, err)
	}
	embeddings, err := p.embedder.Embed(ctx, batch.Documents)
	if err != nil {
		return fail(StageEmbedded, &model.CollaboratorError{Collaborator: "embedder", Op: "embed", Err: err})
	}
	if err := checkAligned(embeddings, batch.Len()); err != nil {
		return fail(StageEmbedded, &model.CollaboratorError{Collaborator: "embedder", Op: "embed", Err: err})
	}
	batch.Embeddings = embeddings

	if err := p.store.Upsert(ctx, p.collection, batch); err != nil {
		return fail(StageUpserted, &model.CollaboratorError{Collaborator: "vector store", Op: "upsert", Err: err})
	}

	report.Ingested = batch.Len()
	report.IDs = batch.IDs
	log.Info("batch ingested",
		"format", report.Format,
		"rows", report.Rows,
		"active", report.Active,
		"ingested", report.Ingested,
	)

	p.afterCommit(ctx, report, log)
	return report, nil
}

// afterCommit runs side effects that must not fail an already stored batch.
func (p *Pipeline) afterCommit(ctx context.Context, report model.IngestReport, log *slog.Logger) {
	if p.cache != nil {
		if err := p.cache.Bump(ctx, p.collection); err != nil {
			log.Warn("cache invalidation failed", "error", err)
		}
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(report); err != nil {
			log.Warn("ingest notification failed", "error", err)
		}
	}
}

func checkAligned(embeddings [][]float32, want int) error {
	if len(embeddings) != want {
		return fmt.Errorf("got %d embeddings for %d texts", len(embeddings), want)
	}
	dim := -1
	for i, e := range embeddings {
		if len(e) == 0 {
			return fmt.Errorf("embedding %d is empty", i)
		}
		if dim >= 0 && len(e) != dim {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(e), dim)
		}
		dim = len(e)
	}
	return nil
}
