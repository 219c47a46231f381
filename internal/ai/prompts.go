package ai

import (
	_ "embed"
	"text/template"

	"github.com/amishk599/jobrag/internal/model"
)

//go:embed prompts/rank_results.md
var rankResultsPromptRaw string

var promptFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"field": func(r model.SearchResult, name string) string {
		return r.Metadata[name]
	},
}

// RankResultsTemplate is the parsed prompt template for ranking and explaining
// search results. Parsed once at package init.
var RankResultsTemplate = template.Must(template.New("rank_results").Funcs(promptFuncs).Parse(rankResultsPromptRaw))
