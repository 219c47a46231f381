package model

import (
	"strings"
	"time"
)

// Field names a column of the canonical job record.
type Field string

const (
	FieldTitle          Field = "Title"
	FieldEmploymentType Field = "Employment Type"
	FieldEmployer       Field = "Employer"
	FieldJobSalary      Field = "Job Salary"
	FieldSalaryType     Field = "Salary Type"
	FieldJobLocation    Field = "Job Location"
	FieldLocationType   Field = "Location Type"
	FieldJobRoles       Field = "Job Roles"
	FieldURL            Field = "URL"
	FieldExpires        Field = "Expires"

	// FieldDate is the posting date some sources report instead of Expires.
	// It is consumed by the expiry filter and never emitted as metadata.
	FieldDate Field = "Date"
)

// CanonicalFields is the closed field set of a Record, in canonical order.
var CanonicalFields = []Field{
	FieldTitle,
	FieldEmploymentType,
	FieldEmployer,
	FieldJobSalary,
	FieldSalaryType,
	FieldJobLocation,
	FieldLocationType,
	FieldJobRoles,
	FieldURL,
	FieldExpires,
}

// IsCanonical reports whether f belongs to the canonical field set.
func IsCanonical(f Field) bool {
	for _, c := range CanonicalFields {
		if c == f {
			return true
		}
	}
	return false
}

// LocationType is the work-arrangement vocabulary. The zero value is null.
type LocationType string

const (
	LocationRemote LocationType = "Remote"
	LocationHybrid LocationType = "Hybrid"
	LocationOnsite LocationType = "Onsite"
)

// ParseLocationType maps free text onto the closed vocabulary. Anything it does
// not recognize maps to the null value rather than a guess.
func ParseLocationType(s string) LocationType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote":
		return LocationRemote
	case "hybrid":
		return LocationHybrid
	case "onsite", "on-site", "on site", "in office", "in-office", "in person", "in-person":
		return LocationOnsite
	default:
		return ""
	}
}

// SalaryType is the pay-period vocabulary. The zero value is null.
type SalaryType string

const (
	SalaryYearly SalaryType = "Yearly"
	SalaryHourly SalaryType = "Hourly"
)

// ParseSalaryType maps free text onto the closed vocabulary.
func ParseSalaryType(s string) SalaryType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yearly", "year", "annual", "annually", "per year", "salary":
		return SalaryYearly
	case "hourly", "hour", "per hour":
		return SalaryHourly
	default:
		return ""
	}
}

// DateLayout is how Expires is rendered in metadata.
const DateLayout = "2006-01-02"

// Record is the canonical job listing every source format converges to.
type Record struct {
	Title          string
	EmploymentType string
	Employer       string
	JobSalary      string
	SalaryType     SalaryType   // "" when unknown
	JobLocation    string
	LocationType   LocationType // "" when unknown
	JobRoles       string
	URL            string    // "" when the source has no application link
	Expires        time.Time // zero until resolved by the expiry filter

	// Raw source text for the dates, resolved by the expiry filter.
	ExpiresText string
	PostedText  string
}

// Value returns the string form of a canonical field. Null values render as "".
func (r Record) Value(f Field) string {
	switch f {
	case FieldTitle:
		return r.Title
	case FieldEmploymentType:
		return r.EmploymentType
	case FieldEmployer:
		return r.Employer
	case FieldJobSalary:
		return r.JobSalary
	case FieldSalaryType:
		return string(r.SalaryType)
	case FieldJobLocation:
		return r.JobLocation
	case FieldLocationType:
		return string(r.LocationType)
	case FieldJobRoles:
		return r.JobRoles
	case FieldURL:
		return r.URL
	case FieldExpires:
		if r.Expires.IsZero() {
			return r.ExpiresText
		}
		return r.Expires.Format(DateLayout)
	case FieldDate:
		return r.PostedText
	default:
		return ""
	}
}

// Set assigns a raw source value to field f. Enum fields go through their
// parsers, so values outside the vocabulary stay null.
func (r *Record) Set(f Field, value string) {
	value = strings.TrimSpace(value)
	switch f {
	case FieldTitle:
		r.Title = value
	case FieldEmploymentType:
		r.EmploymentType = value
	case FieldEmployer:
		r.Employer = value
	case FieldJobSalary:
		r.JobSalary = value
	case FieldSalaryType:
		r.SalaryType = ParseSalaryType(value)
	case FieldJobLocation:
		r.JobLocation = value
	case FieldLocationType:
		r.LocationType = ParseLocationType(value)
	case FieldJobRoles:
		r.JobRoles = value
	case FieldURL:
		r.URL = value
	case FieldExpires:
		r.ExpiresText = value
	case FieldDate:
		r.PostedText = value
	}
}

// Metadata returns the canonical field set as strings, the shape handed to the
// vector store alongside each embedding.
func (r Record) Metadata() map[string]string {
	m := make(map[string]string, len(CanonicalFields))
	for _, f := range CanonicalFields {
		m[string(f)] = r.Value(f)
	}
	return m
}

// Batch is the index-aligned payload of one ingestion: position i across all
// slices refers to the same source record.
type Batch struct {
	IDs        []string
	Documents  []string
	Metadatas  []map[string]string
	Embeddings [][]float32
}

// Len returns the number of records in the batch.
func (b Batch) Len() int { return len(b.IDs) }

// SearchResult is one ranked match returned by a vector store query.
type SearchResult struct {
	ID       string            `json:"id"`
	Document string            `json:"document"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

// IngestReport summarizes a completed ingestion batch.
type IngestReport struct {
	BatchID    string    `json:"batch_id"`
	Source     string    `json:"source"`
	Format     string    `json:"format"`
	Collection string    `json:"collection"`
	Rows       int       `json:"rows"`
	Active     int       `json:"active"`
	Ingested   int       `json:"ingested"`
	IDs        []string  `json:"ids,omitempty"`
	AsOf       time.Time `json:"as_of"`
}
