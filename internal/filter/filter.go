// Package filter drops job records that have expired.
package filter

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobrag/internal/model"
)

// PostingLifetimeDays is how long a listing stays open when the source only
// reports when it was posted.
const PostingLifetimeDays = 90

// layouts are tried in order. Month-first wins over day-first for ambiguous
// slash dates.
var layouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"20060102",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-06",
	"1-2-06",
	"01-02-2006",
	"02.01.2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"Mon, 02 Jan 2006",
	"Monday, January 2, 2006",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006 15:04:05",
}

// Excel stores dates as days since this epoch (with its 1900 leap-year quirk
// already folded in for serials after February 1900).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const maxExcelSerial = 2958465 // 9999-12-31

// ParseDate parses s with any of the accepted layouts, or as an Excel serial
// day number. The result is a UTC calendar date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), true
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && n >= 1 && n <= maxExcelSerial {
		return excelEpoch.AddDate(0, 0, int(math.Floor(n))), true
	}
	return time.Time{}, false
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ResolveExpiry fills rec.Expires from its raw date text. A record with no
// explicit expiry but a posting date expires PostingLifetimeDays after posting.
func ResolveExpiry(rec model.Record) (model.Record, bool) {
	if !rec.Expires.IsZero() {
		rec.Expires = day(rec.Expires)
		return rec, true
	}
	if strings.TrimSpace(rec.ExpiresText) == "" {
		posted, ok := ParseDate(rec.PostedText)
		if !ok {
			return rec, false
		}
		rec.Expires = posted.AddDate(0, 0, PostingLifetimeDays)
		return rec, true
	}
	exp, ok := ParseDate(rec.ExpiresText)
	if !ok {
		return rec, false
	}
	rec.Expires = exp
	return rec, true
}

// FilterActive returns the records that are still open at asOf, in input
// order. Expires is midnight UTC of the expiry day, so a listing is dropped
// once asOf passes the start of that day. Records whose dates cannot be
// parsed are dropped.
func FilterActive(records []model.Record, asOf time.Time) []model.Record {
	active := make([]model.Record, 0, len(records))
	for _, rec := range records {
		rec, ok := ResolveExpiry(rec)
		if !ok || rec.Expires.Before(asOf) {
			continue
		}
		active = append(active, rec)
	}
	return active
}
