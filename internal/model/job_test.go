package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseLocationType(t *testing.T) {
	tests := []struct {
		in   string
		want LocationType
	}{
		{"Remote", LocationRemote},
		{" hybrid ", LocationHybrid},
		{"On-site", LocationOnsite},
		{"on site", LocationOnsite},
		{"ONSITE", LocationOnsite},
		{"anywhere", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseLocationType(tt.in); got != tt.want {
			t.Errorf("ParseLocationType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSalaryType(t *testing.T) {
	tests := []struct {
		in   string
		want SalaryType
	}{
		{"Yearly", SalaryYearly},
		{"annual", SalaryYearly},
		{"Hourly", SalaryHourly},
		{"weekly", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseSalaryType(tt.in); got != tt.want {
			t.Errorf("ParseSalaryType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordSet_EnumOutsideVocabularyStaysNull(t *testing.T) {
	var r Record
	r.Set(FieldLocationType, "Mars")
	r.Set(FieldSalaryType, "per fortnight")
	if r.LocationType != "" {
		t.Errorf("LocationType = %q, want null", r.LocationType)
	}
	if r.SalaryType != "" {
		t.Errorf("SalaryType = %q, want null", r.SalaryType)
	}
}

func TestRecordMetadata_ClosedFieldSet(t *testing.T) {
	r := Record{
		Title:       "Data Analyst",
		Employer:    "Acme",
		SalaryType:  SalaryYearly,
		Expires:     time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
		ExpiresText: "01/02/2030",
		PostedText:  "2029-12-01",
	}
	md := r.Metadata()
	if len(md) != len(CanonicalFields) {
		t.Fatalf("metadata has %d keys, want %d", len(md), len(CanonicalFields))
	}
	for _, f := range CanonicalFields {
		if _, ok := md[string(f)]; !ok {
			t.Errorf("metadata missing key %q", f)
		}
	}
	if _, ok := md[string(FieldDate)]; ok {
		t.Error("metadata must not carry the posting date")
	}
	if md["Expires"] != "2030-01-02" {
		t.Errorf("Expires = %q, want 2030-01-02", md["Expires"])
	}
	if md["Salary Type"] != "Yearly" {
		t.Errorf("Salary Type = %q, want Yearly", md["Salary Type"])
	}
	if md["URL"] != "" {
		t.Errorf("URL = %q, want empty", md["URL"])
	}
}

func TestCollaboratorError_Unwraps(t *testing.T) {
	inner := &HTTPError{StatusCode: 503}
	err := fmt.Errorf("ingest: %w", &CollaboratorError{Collaborator: "embedder", Op: "embed", Err: inner})

	var ce *CollaboratorError
	if !errors.As(err, &ce) {
		t.Fatal("expected CollaboratorError in chain")
	}
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != 503 {
		t.Fatalf("expected HTTPError 503 in chain, got %v", err)
	}
}
