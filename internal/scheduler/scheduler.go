// Package scheduler ingests files dropped into a watched directory on a cron
// schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amishk599/jobrag/internal/ingest"
	"github.com/amishk599/jobrag/internal/model"
	"github.com/amishk599/jobrag/internal/store"
)

// Subdirectories of the watched directory that receive handled files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

var supported = map[string]bool{".csv": true, ".json": true, ".xlsx": true, ".xlsm": true}

// Ingester runs an upload through the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, up ingest.Upload) (model.IngestReport, error)
	Collection() string
}

// Scheduler owns the drop-folder loop: on every tick it ingests the supported
// files found in dir and moves each one aside.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	dir      string
	ingester Ingester
	pruner   store.Pruner
	now      func() time.Time
	rename   func(oldpath, newpath string) error
	logger   *slog.Logger

	mu sync.Mutex
	// unarchived holds files whose batch committed but which could not be
	// moved to processed/. They are never ingested again while unchanged.
	unarchived map[string]committedFile
}

type committedFile struct {
	batchID string
	modTime time.Time
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithPruner deletes expired documents from the collection after every scan.
func WithPruner(p store.Pruner) Option {
	return func(s *Scheduler) { s.pruner = p }
}

// WithClock overrides the clock used for pruning and archive names.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler that scans dir every interval.
func New(dir string, interval time.Duration, ingester Ingester, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		schedule:   fmt.Sprintf("@every %s", interval),
		dir:        dir,
		ingester:   ingester,
		now:        time.Now,
		rename:     os.Rename,
		logger:     logger,
		unarchived: make(map[string]committedFile),
	}
	cl := cronLogger{logger: logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run registers the scan job, runs one scan immediately, and blocks until ctx
// is cancelled. It waits for a running scan to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.scanAndLog(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.logger.Info("starting scheduler", "dir", s.dir, "schedule", s.schedule)

	s.scanAndLog(ctx)
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) scanAndLog(ctx context.Context) {
	res, err := s.Scan(ctx)
	if err != nil {
		s.logger.Error("scan failed", "dir", s.dir, "error", err)
		return
	}
	if res.Files() > 0 || res.Pruned > 0 {
		s.logger.Info("scan complete",
			"ingested", len(res.Ingested),
			"failed", len(res.Failed),
			"deferred", len(res.Deferred),
			"unarchived", len(res.Unarchived),
			"pruned", res.Pruned,
		)
	}
}

// ScanResult lists what a single scan did with each file it saw. Unarchived
// names committed files still sitting in the watched directory because moving
// them to processed/ failed; they are skipped rather than ingested again.
type ScanResult struct {
	Ingested   []string
	Failed     []string
	Deferred   []string
	Unarchived []string
	Pruned     int64
}

// Files counts the files the scan handled.
func (r ScanResult) Files() int {
	return len(r.Ingested) + len(r.Failed) + len(r.Deferred) + len(r.Unarchived)
}

// Scan ingests every supported file in the watched directory once, in name
// order. Files that ingest are moved to processed/, files the pipeline rejects
// as malformed or invalid are moved to failed/, and files that hit a
// collaborator failure stay put for the next tick.
func (s *Scheduler) Scan(ctx context.Context) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ScanResult
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return res, fmt.Errorf("read watch dir: %w", err)
	}
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
			return res, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !supported[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.logger.Warn("stat file", "file", name, "error", err)
			res.Deferred = append(res.Deferred, name)
			continue
		}
		if s.retryArchive(name, info.ModTime()) {
			res.Unarchived = append(res.Unarchived, name)
			continue
		}
		switch s.ingestFile(ctx, name, info.ModTime()) {
		case outcomeIngested:
			res.Ingested = append(res.Ingested, name)
		case outcomeUnarchived:
			res.Ingested = append(res.Ingested, name)
			res.Unarchived = append(res.Unarchived, name)
		case outcomeFailed:
			res.Failed = append(res.Failed, name)
		case outcomeDeferred:
			res.Deferred = append(res.Deferred, name)
		}
	}

	if s.pruner != nil && ctx.Err() == nil {
		n, err := s.pruner.PruneExpired(ctx, s.ingester.Collection(), s.now())
		if err != nil {
			s.logger.Warn("prune failed", "error", err)
		} else {
			res.Pruned = n
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeIngested outcome = iota
	outcomeFailed
	outcomeDeferred
	outcomeUnarchived
)

// retryArchive handles a file whose batch already committed. It reports true
// when the file is still stuck in the watched directory. A file that changed
// since it was ingested is forgotten and ingested as new content.
func (s *Scheduler) retryArchive(name string, modTime time.Time) bool {
	c, ok := s.unarchived[name]
	if !ok {
		return false
	}
	if !c.modTime.Equal(modTime) {
		delete(s.unarchived, name)
		return false
	}
	if err := s.archive(name, ProcessedDir); err != nil {
		s.logger.Error("committed file still not archived, skipping it",
			"file", name, "batch_id", c.batchID, "error", err)
		return true
	}
	delete(s.unarchived, name)
	s.logger.Info("archived previously committed file", "file", name, "batch_id", c.batchID)
	return false
}

func (s *Scheduler) ingestFile(ctx context.Context, name string, modTime time.Time) outcome {
	path := filepath.Join(s.dir, name)
	log := s.logger.With("file", name)

	content, err := os.ReadFile(path)
	if err != nil {
		log.Error("read file", "error", err)
		return outcomeDeferred
	}

	report, err := s.ingester.Ingest(ctx, ingest.Upload{Filename: name, Content: content, Source: "watch"})
	if err != nil {
		if !rejected(err) {
			log.Warn("ingest deferred", "error", err)
			return outcomeDeferred
		}
		log.Error("ingest rejected", "error", err)
		if err := s.archive(name, FailedDir); err != nil {
			log.Error("move file", "to", FailedDir, "error", err)
		}
		return outcomeFailed
	}

	log.Info("file ingested", "batch_id", report.BatchID, "ingested", report.Ingested)
	if err := s.archive(name, ProcessedDir); err != nil {
		s.unarchived[name] = committedFile{batchID: report.BatchID, modTime: modTime}
		log.Error("committed file could not be archived; it will not be ingested again until it changes",
			"batch_id", report.BatchID, "to", ProcessedDir, "error", err)
		return outcomeUnarchived
	}
	return outcomeIngested
}

// rejected reports whether err is a problem with the file itself, which no
// amount of retrying will fix.
func rejected(err error) bool {
	var (
		malformed *model.MalformedInputError
		invalid   *model.InvalidRequestError
	)
	return errors.As(err, &malformed) || errors.As(err, &invalid)
}

// archive moves name into sub, prefixing it with a timestamp so repeated
// drops of the same filename do not collide.
func (s *Scheduler) archive(name, sub string) error {
	dst := filepath.Join(s.dir, sub, s.now().UTC().Format("20060102T150405")+"-"+name)
	if err := s.rename(filepath.Join(s.dir, name), dst); err != nil {
		return fmt.Errorf("move %s to %s: %w", name, sub, err)
	}
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
