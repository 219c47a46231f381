// Package projection builds the text that gets embedded for each job record,
// along with the metadata stored next to its vector.
package projection

import (
	"fmt"
	"strings"

	"github.com/amishk599/jobrag/internal/model"
)

// Mode controls how projected field values are joined.
type Mode string

const (
	// ModePlain joins values with a single space.
	ModePlain Mode = "plain"
	// ModeSentence joins values with ". " and ends with a period.
	ModeSentence Mode = "sentence"
)

// ParseMode validates a configured mode. Empty means plain.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeSentence:
		return ModeSentence, nil
	default:
		return "", fmt.Errorf("unknown projection mode %q (want %q or %q)", s, ModePlain, ModeSentence)
	}
}

// DefaultFields embeds on title and responsibilities.
var DefaultFields = []model.Field{model.FieldTitle, model.FieldJobRoles}

// ParseFields resolves configured field names against the canonical set.
func ParseFields(names []string) ([]model.Field, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("projection needs at least one field")
	}
	fields := make([]model.Field, 0, len(names))
	for _, n := range names {
		f, ok := lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown projection field %q", n)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func lookup(name string) (model.Field, bool) {
	name = strings.TrimSpace(name)
	for _, f := range model.CanonicalFields {
		if strings.EqualFold(string(f), name) {
			return f, true
		}
	}
	return "", false
}

// ProjectText renders the named fields of rec in order. Plain mode joins every
// listed value with a single space, empty ones included. Sentence mode skips
// empty values.
func ProjectText(rec model.Record, fields []model.Field, mode Mode) string {
	if mode != ModeSentence {
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = rec.Value(f)
		}
		return strings.Join(parts, " ")
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.TrimRight(strings.TrimSpace(rec.Value(f)), ". "); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}

// Projector turns records into an index-aligned batch ready for embedding.
type Projector struct {
	fields []model.Field
	mode   Mode
}

// NewProjector returns a Projector for the given field list and mode.
func NewProjector(fields []model.Field, mode Mode) *Projector {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	if mode == "" {
		mode = ModePlain
	}
	return &Projector{fields: fields, mode: mode}
}

// Fields returns the configured projection fields.
func (p *Projector) Fields() []model.Field { return p.fields }

// Project builds documents and metadata for records. ids must be the same
// length as records; Embeddings is left empty for the embedder to fill.
func (p *Projector) Project(records []model.Record, ids []string) (model.Batch, error) {
	if len(ids) != len(records) {
		return model.Batch{}, fmt.Errorf("project: %d ids for %d records", len(ids), len(records))
	}
	b := model.Batch{
		IDs:       append([]string(nil), ids...),
		Documents: make([]string, len(records)),
		Metadatas: make([]map[string]string, len(records)),
	}
	for i, rec := range records {
		b.Documents[i] = ProjectText(rec, p.fields, p.mode)
		b.Metadatas[i] = rec.Metadata()
	}
	return b, nil
}
