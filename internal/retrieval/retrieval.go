// Package retrieval answers free-text job searches against a collection,
// optionally asking a generator to rank and explain the matches.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/amishk599/jobrag/internal/cache"
	"github.com/amishk599/jobrag/internal/model"
)

// DefaultResults is how many matches a query returns when n_results is unset.
const DefaultResults = 15

// Request is one search.
type Request struct {
	Query    string `json:"query"`
	NResults int    `json:"n_results"`
	UseAI    bool   `json:"use_ai"`
}

// Response carries ranked matches and, when requested, the generated ranking.
type Response struct {
	Status     string               `json:"status"`
	Query      string               `json:"query"`
	Collection string               `json:"collection"`
	Results    []model.SearchResult `json:"results"`
	AIResponse string               `json:"ai_response,omitempty"`
	Cached     bool                 `json:"cached"`
}

const (
	StatusOK        = "ok"
	StatusNoResults = "no_results"
)

// Explainer turns results into generated text.
type Explainer interface {
	Explain(ctx context.Context, query string, results []model.SearchResult) (string, error)
}

// Service runs searches for one collection.
type Service struct {
	collection string
	embedder   model.Embedder
	store      model.VectorStore
	explainer  Explainer
	cache      model.Cache
	defaultN   int
	maxN       int
	logger     *slog.Logger
}

// NewService creates a search service. explainer may be nil, in which case
// use_ai requests are rejected. cache may be nil.
func NewService(
	collection string,
	embedder model.Embedder,
	store model.VectorStore,
	explainer Explainer,
	cache model.Cache,
	defaultN, maxN int,
	logger *slog.Logger,
) *Service {
	if defaultN <= 0 {
		defaultN = DefaultResults
	}
	if maxN < defaultN {
		maxN = defaultN
	}
	return &Service{
		collection: collection,
		embedder:   embedder,
		store:      store,
		explainer:  explainer,
		cache:      cache,
		defaultN:   defaultN,
		maxN:       maxN,
		logger:     logger,
	}
}

func (s *Service) validate(req Request) (Request, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, &model.InvalidRequestError{Field: "query", Reason: "is required"}
	}
	switch {
	case req.NResults < 0:
		return req, &model.InvalidRequestError{Field: "n_results", Reason: "must not be negative"}
	case req.NResults == 0:
		req.NResults = s.defaultN
	case req.NResults > s.maxN:
		req.NResults = s.maxN
	}
	if req.UseAI && s.explainer == nil {
		return req, &model.InvalidRequestError{Field: "use_ai", Reason: "generation is not configured"}
	}
	return req, nil
}

// Query runs a search. A search that matches nothing returns a response with
// StatusNoResults together with model.ErrNoResults.
func (s *Service) Query(ctx context.Context, req Request) (Response, error) {
	req, err := s.validate(req)
	if err != nil {
		return Response{}, err
	}
	log := s.logger.With("collection", s.collection, "n_results", req.NResults, "use_ai", req.UseAI)

	key, cacheable := s.cacheKey(ctx, req, log)
	if cacheable {
		if resp, ok := s.lookup(ctx, key, log); ok {
			log.Debug("query served from cache")
			return resp, nil
		}
	}

	vecs, err := s.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return Response{}, &model.CollaboratorError{Collaborator: "embedder", Op: "embed query", Err: err}
	}
	if len(vecs) != 1 {
		return Response{}, &model.CollaboratorError{Collaborator: "embedder", Op: "embed query",
			Err: fmt.Errorf("got %d embeddings for 1 text", len(vecs))}
	}

	results, err := s.store.Query(ctx, s.collection, vecs[0], req.NResults)
	if err != nil {
		return Response{}, &model.CollaboratorError{Collaborator: "vector store", Op: "query", Err: err}
	}

	resp := Response{Status: StatusOK, Query: req.Query, Collection: s.collection, Results: results}
	if len(results) == 0 {
		resp.Status = StatusNoResults
		resp.Results = []model.SearchResult{}
		log.Info("query matched nothing")
		return resp, model.ErrNoResults
	}

	if req.UseAI {
		text, err := s.explainer.Explain(ctx, req.Query, results)
		if err != nil {
			return Response{}, &model.CollaboratorError{Collaborator: "generator", Op: "explain", Err: err}
		}
		resp.AIResponse = text
	}

	log.Info("query answered", "results", len(results))
	if cacheable {
		s.remember(ctx, key, resp, log)
	}
	return resp, nil
}

func (s *Service) cacheKey(ctx context.Context, req Request, log *slog.Logger) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	gen, err := s.cache.Generation(ctx, s.collection)
	if err != nil {
		log.Warn("cache unavailable", "error", err)
		return "", false
	}
	return cache.Key(s.collection, gen, strings.ToLower(req.Query), strconv.Itoa(req.NResults), strconv.FormatBool(req.UseAI)), true
}

func (s *Service) lookup(ctx context.Context, key string, log *slog.Logger) (Response, bool) {
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn("cache read failed", "error", err)
		return Response{}, false
	}
	if !ok {
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal(b, &resp); err != nil {
		log.Warn("discarding unreadable cache entry", "error", err)
		return Response{}, false
	}
	resp.Cached = true
	return resp, true
}

func (s *Service) remember(ctx context.Context, key string, resp Response, log *slog.Logger) {
	b, err := json.Marshal(resp)
	if err == nil {
		err = s.cache.Set(ctx, key, b)
	}
	if err != nil {
		log.Warn("cache write failed", "error", err)
	}
}

// IsNoResults reports whether err is the soft no-results outcome.
func IsNoResults(err error) bool {
	return errors.Is(err, model.ErrNoResults)
}
