// Package infer fills derived job fields from neighbouring free text.
package infer

import (
	"strings"

	"github.com/amishk599/jobrag/internal/model"
)

type rule[T any] struct {
	value    T
	keywords []string
}

// Rules are checked in order and the first keyword hit wins.
var (
	locationRules = []rule[model.LocationType]{
		{model.LocationRemote, []string{"remote"}},
		{model.LocationHybrid, []string{"hybrid"}},
		{model.LocationOnsite, []string{"onsite", "on-site", "on site"}},
	}
	salaryRules = []rule[model.SalaryType]{
		{model.SalaryYearly, []string{"/yr", "per year", "year", "annum"}},
		{model.SalaryHourly, []string{"/hr", "per hour", "hour"}},
	}
)

func match[T any](text string, rules []rule[T]) (T, bool) {
	text = strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.value, true
			}
		}
	}
	var zero T
	return zero, false
}

// InferLocationType reads a work arrangement out of an employment type such as
// "Remote Full-time". It returns the null value when nothing matches.
func InferLocationType(employmentType string) model.LocationType {
	lt, _ := match(employmentType, locationRules)
	return lt
}

// InferSalaryType reads a pay period out of a salary string such as
// "$60,000 per year".
func InferSalaryType(salary string) model.SalaryType {
	st, _ := match(salary, salaryRules)
	return st
}

// InferMissing fills Location Type and Salary Type when they are null.
// Values already present are never touched.
func InferMissing(rec model.Record) model.Record {
	if rec.LocationType == "" {
		rec.LocationType = InferLocationType(rec.EmploymentType)
	}
	if rec.SalaryType == "" {
		rec.SalaryType = InferSalaryType(rec.JobSalary)
	}
	return rec
}

// All applies InferMissing to every record, returning a new slice.
func All(records []model.Record) []model.Record {
	out := make([]model.Record, len(records))
	for i, r := range records {
		out[i] = InferMissing(r)
	}
	return out
}
