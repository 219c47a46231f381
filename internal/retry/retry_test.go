package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobrag/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockEmbedder calls a function on each invocation, tracking call count.
type mockEmbedder struct {
	calls int
	fn    func(attempt int) ([][]float32, error)
}

func (m *mockEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	m.calls++
	return m.fn(m.calls)
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := &mockEmbedder{fn: func(_ int) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}}

	re := NewEmbedder(mock, 2, 10*time.Millisecond, discardLogger())
	got, err := re.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unexpected embeddings: %v", got)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetry_RetriesOn5xx_SucceedsOnSecondAttempt(t *testing.T) {
	mock := &mockEmbedder{fn: func(attempt int) ([][]float32, error) {
		if attempt == 1 {
			return nil, &model.HTTPError{StatusCode: 503, Err: errors.New("service unavailable")}
		}
		return [][]float32{{1}}, nil
	}}

	re := NewEmbedder(mock, 2, 10*time.Millisecond, discardLogger())
	if _, err := re.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryOn4xx(t *testing.T) {
	mock := &mockEmbedder{fn: func(_ int) ([][]float32, error) {
		return nil, &model.HTTPError{StatusCode: 400, Err: errors.New("bad input")}
	}}

	re := NewEmbedder(mock, 2, 10*time.Millisecond, discardLogger())
	_, err := re.Embed(context.Background(), []string{"x"})
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 400 {
		t.Fatalf("expected HTTPError with status 400, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestRetry_ZeroMaxRetriesMeansSingleAttempt(t *testing.T) {
	mock := &mockEmbedder{fn: func(_ int) ([][]float32, error) {
		return nil, &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}}

	re := NewEmbedder(mock, 0, 10*time.Millisecond, discardLogger())
	if _, err := re.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error, got nil")
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockEmbedder{fn: func(_ int) ([][]float32, error) {
		return nil, &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}}

	re := NewEmbedder(mock, 2, 10*time.Millisecond, discardLogger())
	if _, err := re.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error after max retries, got nil")
	}
	// 1 initial + 2 retries = 3
	if mock.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", mock.calls)
	}
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	mock := &mockEmbedder{fn: func(_ int) ([][]float32, error) {
		return nil, &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	re := NewEmbedder(mock, 2, time.Second, discardLogger())
	_, err := re.Embed(ctx, []string{"x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", mock.calls)
	}
}

type flakyGenerator struct{ calls int }

func (g *flakyGenerator) Generate(context.Context, string, model.GenerateParams) (string, error) {
	g.calls++
	if g.calls == 1 {
		return "", &model.HTTPError{StatusCode: 429, RetryAfter: time.Millisecond}
	}
	return "ok", nil
}

func TestGenerator_HonoursRetryAfter(t *testing.T) {
	inner := &flakyGenerator{}
	got, err := NewGenerator(inner, 1, time.Hour, discardLogger()).Generate(context.Background(), "p", model.GenerateParams{})
	if err != nil || got != "ok" {
		t.Fatalf("Generate = %q, %v", got, err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", inner.calls)
	}
}
