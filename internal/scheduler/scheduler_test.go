package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobrag/internal/ingest"
	"github.com/amishk599/jobrag/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedIngester fails uploads whose content contains a marker.
type scriptedIngester struct {
	mu    sync.Mutex
	seen  []string
	calls chan string
}

func (f *scriptedIngester) Collection() string { return "jobs" }

func (f *scriptedIngester) Ingest(_ context.Context, up ingest.Upload) (model.IngestReport, error) {
	f.mu.Lock()
	f.seen = append(f.seen, up.Filename)
	f.mu.Unlock()
	if f.calls != nil {
		select {
		case f.calls <- up.Filename:
		default:
		}
	}
	content := string(up.Content)
	switch {
	case strings.Contains(content, "MALFORMED"):
		return model.IngestReport{}, &ingest.StageError{Stage: ingest.StageNormalized, Err: &model.MalformedInputError{Format: "csv-canonical", Err: errors.New("bad")}}
	case strings.Contains(content, "DOWN"):
		return model.IngestReport{}, &ingest.StageError{Stage: ingest.StageEmbedded, Err: &model.CollaboratorError{Collaborator: "embedder", Op: "embed", Err: errors.New("503")}}
	}
	return model.IngestReport{BatchID: "b", Ingested: 1}, nil
}

type countingPruner struct {
	collection string
	asOf       time.Time
}

func (p *countingPruner) PruneExpired(_ context.Context, collection string, asOf time.Time) (int64, error) {
	p.collection, p.asOf = collection, asOf
	return 3, nil
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

var fixedNow = time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)

func TestScan_MovesFilesByOutcome(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.csv":       "Title\nSRE\n",
		"b.json":      "MALFORMED",
		"c.xlsx":      "DOWN",
		"notes.txt":   "ignored",
		".hidden.csv": "ignored",
	})

	ing := &scriptedIngester{}
	s := New(dir, time.Minute, ing, discardLogger(), WithClock(func() time.Time { return fixedNow }))

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Ingested) != 1 || res.Ingested[0] != "a.csv" {
		t.Errorf("Ingested = %v", res.Ingested)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "b.json" {
		t.Errorf("Failed = %v", res.Failed)
	}
	if len(res.Deferred) != 1 || res.Deferred[0] != "c.xlsx" {
		t.Errorf("Deferred = %v", res.Deferred)
	}
	if got := strings.Join(ing.seen, ","); got != "a.csv,b.json,c.xlsx" {
		t.Errorf("ingest order = %s", got)
	}

	if got := listDir(t, filepath.Join(dir, ProcessedDir)); len(got) != 1 || got[0] != "20240201T093000-a.csv" {
		t.Errorf("processed = %v", got)
	}
	if got := listDir(t, filepath.Join(dir, FailedDir)); len(got) != 1 || got[0] != "20240201T093000-b.json" {
		t.Errorf("failed = %v", got)
	}
	remaining := listDir(t, dir)
	want := []string{".hidden.csv", "c.xlsx", "notes.txt"}
	if strings.Join(remaining, ",") != strings.Join(want, ",") {
		t.Errorf("remaining = %v, want %v", remaining, want)
	}
}

func TestScan_DeferredFileRetriedNextScan(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"jobs.csv": "DOWN"})

	ing := &scriptedIngester{}
	s := New(dir, time.Minute, ing, discardLogger())
	s.Scan(context.Background())

	writeFiles(t, dir, map[string]string{"jobs.csv": "Title\nSRE\n"})
	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Ingested) != 1 {
		t.Errorf("second scan ingested %v", res.Ingested)
	}
	if len(ing.seen) != 2 {
		t.Errorf("ingest calls = %d, want 2", len(ing.seen))
	}
}

func TestScan_CommittedFileThatCannotBeMovedIsNotIngestedAgain(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"jobs.csv": "Title\nSRE\n"})

	ing := &scriptedIngester{}
	s := New(dir, time.Minute, ing, discardLogger(), WithClock(func() time.Time { return fixedNow }))
	s.rename = func(string, string) error { return errors.New("read-only filesystem") }

	for i := 0; i < 2; i++ {
		res, err := s.Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan %d: %v", i, err)
		}
		if len(res.Unarchived) != 1 || res.Unarchived[0] != "jobs.csv" {
			t.Errorf("scan %d: Unarchived = %v", i, res.Unarchived)
		}
	}
	if len(ing.seen) != 1 {
		t.Fatalf("ingest calls = %d, want 1", len(ing.seen))
	}

	s.rename = os.Rename
	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Unarchived) != 0 || len(res.Ingested) != 0 {
		t.Errorf("after recovery: %+v", res)
	}
	if len(ing.seen) != 1 {
		t.Errorf("ingest calls = %d, want 1", len(ing.seen))
	}
	if got := listDir(t, filepath.Join(dir, ProcessedDir)); len(got) != 1 || got[0] != "20240201T093000-jobs.csv" {
		t.Errorf("processed = %v", got)
	}
}

func TestScan_ChangedFileIsIngestedDespiteEarlierArchiveFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.csv")
	writeFiles(t, dir, map[string]string{"jobs.csv": "Title\nSRE\n"})

	ing := &scriptedIngester{}
	s := New(dir, time.Minute, ing, discardLogger())
	s.rename = func(string, string) error { return errors.New("permission denied") }
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeFiles(t, dir, map[string]string{"jobs.csv": "Title\nDBA\n"})
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	s.rename = os.Rename
	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Ingested) != 1 || len(ing.seen) != 2 {
		t.Errorf("Ingested = %v, ingest calls = %d; want the new content ingested", res.Ingested, len(ing.seen))
	}
}

func TestScan_Prunes(t *testing.T) {
	dir := t.TempDir()
	p := &countingPruner{}
	s := New(dir, time.Minute, &scriptedIngester{}, discardLogger(),
		WithPruner(p), WithClock(func() time.Time { return fixedNow }))

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Pruned != 3 {
		t.Errorf("Pruned = %d", res.Pruned)
	}
	if p.collection != "jobs" || !p.asOf.Equal(fixedNow) {
		t.Errorf("pruner got %q at %s", p.collection, p.asOf)
	}
}

func TestScan_MissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"), time.Minute, &scriptedIngester{}, discardLogger())
	if _, err := s.Scan(context.Background()); err == nil {
		t.Fatal("expected error for a missing directory")
	}
}

func TestRun_ScansImmediatelyAndStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"jobs.csv": "Title\nSRE\n"})

	ing := &scriptedIngester{calls: make(chan string, 1)}
	s := New(dir, time.Hour, ing, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case name := <-ing.calls:
		if name != "jobs.csv" {
			t.Errorf("first ingest = %q", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no immediate scan")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := listDir(t, filepath.Join(dir, ProcessedDir)); len(got) != 1 {
		t.Errorf("processed = %v", got)
	}
}
