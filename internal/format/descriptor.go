package format

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/amishk599/jobrag/internal/model"
)

// Names of the recognized source layouts.
const (
	XLSXHyperlinks = "xlsx-hyperlinks"
	CSVCanonical   = "csv-canonical"
	CSVAlternate   = "csv-alternate"
	JSONListings   = "json"
)

// Reader parses raw upload bytes into a Table.
type Reader func(content []byte) (Table, error)

// Enricher derives canonical fields from parts of a row that are not plain
// column values.
type Enricher interface {
	Enrich(row Row, rec *model.Record)
}

// HyperlinkURL fills URL from the hyperlink attached to Column's cell.
type HyperlinkURL struct {
	Column string
}

// Enrich sets rec.URL when the row carries a hyperlink on the configured column.
func (h HyperlinkURL) Enrich(row Row, rec *model.Record) {
	for col, target := range row.Links {
		if headerKey(col) == headerKey(h.Column) && strings.TrimSpace(target) != "" {
			rec.URL = strings.TrimSpace(target)
			return
		}
	}
}

// Descriptor describes one source layout: how to read it, how its headers map
// onto canonical fields, and any extra extraction steps.
type Descriptor struct {
	Name       string
	Extensions []string
	Read       Reader
	Renames    map[string]model.Field
	Enrichers  []Enricher

	index map[string]model.Field
}

// Field resolves a source header to its canonical field. Matching ignores case
// and surrounding or repeated whitespace.
func (d *Descriptor) Field(header string) (model.Field, bool) {
	f, ok := d.index[headerKey(header)]
	return f, ok
}

func headerKey(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

func newDescriptor(d Descriptor) *Descriptor {
	d.index = make(map[string]model.Field, len(d.Renames))
	for src, f := range d.Renames {
		d.index[headerKey(src)] = f
	}
	return &d
}

// canonicalRenames maps every canonical header (and the posting date) to itself.
func canonicalRenames(extra map[string]model.Field) map[string]model.Field {
	m := make(map[string]model.Field, len(model.CanonicalFields)+1+len(extra))
	for _, f := range model.CanonicalFields {
		m[string(f)] = f
	}
	m[string(model.FieldDate)] = model.FieldDate
	for k, v := range extra {
		m[k] = v
	}
	return m
}

var (
	xlsxDescriptor = newDescriptor(Descriptor{
		Name:       XLSXHyperlinks,
		Extensions: []string{".xlsx", ".xlsm"},
		Read:       ReadXLSX,
		Renames:    canonicalRenames(nil),
		Enrichers:  []Enricher{HyperlinkURL{Column: string(model.FieldTitle)}},
	})

	csvCanonicalDescriptor = newDescriptor(Descriptor{
		Name:       CSVCanonical,
		Extensions: []string{".csv"},
		Read:       ReadCSV,
		Renames:    canonicalRenames(nil),
	})

	csvAlternateDescriptor = newDescriptor(Descriptor{
		Name:       CSVAlternate,
		Extensions: []string{".csv"},
		Read:       ReadCSV,
		Renames: map[string]model.Field{
			"Position Title":   model.FieldTitle,
			"Job Title":        model.FieldTitle,
			"Position":         model.FieldTitle,
			"Job Type":         model.FieldEmploymentType,
			"Employment":       model.FieldEmploymentType,
			"Company":          model.FieldEmployer,
			"Company Name":     model.FieldEmployer,
			"Organization":     model.FieldEmployer,
			"Salary":           model.FieldJobSalary,
			"Pay":              model.FieldJobSalary,
			"Compensation":     model.FieldJobSalary,
			"Pay Period":       model.FieldSalaryType,
			"Salary Period":    model.FieldSalaryType,
			"Location":         model.FieldJobLocation,
			"City":             model.FieldJobLocation,
			"Work Setting":     model.FieldLocationType,
			"Workplace Type":   model.FieldLocationType,
			"Remote Status":    model.FieldLocationType,
			"Description":      model.FieldJobRoles,
			"Job Description":  model.FieldJobRoles,
			"Responsibilities": model.FieldJobRoles,
			"Apply URL":        model.FieldURL,
			"Application Link": model.FieldURL,
			"Job URL":          model.FieldURL,
			"Link":             model.FieldURL,
			"Date Posted":      model.FieldDate,
			"Posting Date":     model.FieldDate,
			"Posted":           model.FieldDate,
			"Date":             model.FieldDate,
			"Closing Date":     model.FieldExpires,
			"Deadline":         model.FieldExpires,
			"Expiration Date":  model.FieldExpires,
			"Valid Through":    model.FieldExpires,
		},
	})

	jsonDescriptor = newDescriptor(Descriptor{
		Name:       JSONListings,
		Extensions: []string{".json"},
		Read:       ReadJSON,
		Renames: canonicalRenames(map[string]model.Field{
			"title":           model.FieldTitle,
			"employment_type": model.FieldEmploymentType,
			"employer":        model.FieldEmployer,
			"company":         model.FieldEmployer,
			"job_salary":      model.FieldJobSalary,
			"salary":          model.FieldJobSalary,
			"salary_type":     model.FieldSalaryType,
			"job_location":    model.FieldJobLocation,
			"location":        model.FieldJobLocation,
			"location_type":   model.FieldLocationType,
			"job_roles":       model.FieldJobRoles,
			"url":             model.FieldURL,
			"expires":         model.FieldExpires,
			"date":            model.FieldDate,
			"date_posted":     model.FieldDate,
		}),
	})
)

// Descriptors returns the closed set of supported source layouts.
func Descriptors() []*Descriptor {
	return []*Descriptor{xlsxDescriptor, csvCanonicalDescriptor, csvAlternateDescriptor, jsonDescriptor}
}

// Lookup returns the descriptor with the given name.
func Lookup(name string) (*Descriptor, bool) {
	for _, d := range Descriptors() {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Names lists the supported descriptor names.
func Names() []string {
	ds := Descriptors()
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

var zipMagic = []byte("PK\x03\x04")

// Detect picks a descriptor for an upload. An explicit hint wins; otherwise the
// file extension decides, falling back to sniffing the content. CSV files are
// told apart by which header vocabulary they use.
func Detect(filename string, content []byte, hint string) (*Descriptor, error) {
	if hint != "" {
		d, ok := Lookup(hint)
		if !ok {
			return nil, &model.InvalidRequestError{
				Field:  "format",
				Reason: fmt.Sprintf("must be one of %s, got %q", strings.Join(Names(), ", "), hint),
			}
		}
		return d, nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return xlsxDescriptor, nil
	case ".json":
		return jsonDescriptor, nil
	case ".csv":
		return sniffCSV(content), nil
	}

	trimmed := bytes.TrimLeft(content, " \t\r\n\ufeff")
	switch {
	case bytes.HasPrefix(content, zipMagic):
		return xlsxDescriptor, nil
	case bytes.HasPrefix(trimmed, []byte("[")):
		return jsonDescriptor, nil
	default:
		return sniffCSV(content), nil
	}
}

// sniffCSV chooses between the canonical and alternate CSV layouts by counting
// header hits in each rename table.
func sniffCSV(content []byte) *Descriptor {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, []byte("\ufeff"))))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return csvCanonicalDescriptor
	}
	canonical, alternate := 0, 0
	for _, h := range header {
		if _, ok := csvCanonicalDescriptor.Field(h); ok {
			canonical++
		}
		if _, ok := csvAlternateDescriptor.Field(h); ok {
			alternate++
		}
	}
	if alternate > canonical {
		return csvAlternateDescriptor
	}
	return csvCanonicalDescriptor
}
