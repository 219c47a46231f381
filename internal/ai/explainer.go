package ai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/amishk599/jobrag/internal/model"
)

// Explainer asks a generator to rank and explain a query's search results.
type Explainer struct {
	generator model.Generator
	tmpl      *template.Template
	params    model.GenerateParams
	logger    *slog.Logger
}

// NewExplainer creates an explainer. A nil tmpl uses RankResultsTemplate.
func NewExplainer(generator model.Generator, tmpl *template.Template, params model.GenerateParams, logger *slog.Logger) *Explainer {
	if tmpl == nil {
		tmpl = RankResultsTemplate
	}
	return &Explainer{
		generator: generator,
		tmpl:      tmpl,
		params:    params,
		logger:    logger,
	}
}

// RenderPrompt renders the ranking prompt for query and results.
func (e *Explainer) RenderPrompt(query string, results []model.SearchResult) (string, error) {
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, struct {
		Query   string
		Results []model.SearchResult
	}{Query: query, Results: results}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// Explain returns the generator's ranking of results for query.
func (e *Explainer) Explain(ctx context.Context, query string, results []model.SearchResult) (string, error) {
	prompt, err := e.RenderPrompt(query, results)
	if err != nil {
		return "", err
	}

	text, err := e.generator.Generate(ctx, prompt, e.params)
	if err != nil {
		return "", fmt.Errorf("generate explanation: %w", err)
	}
	e.logger.Debug("generated explanation", "results", len(results), "chars", len(text))
	return strings.TrimSpace(text), nil
}
