package format

import (
	"errors"
	"strings"

	"github.com/amishk599/jobrag/internal/model"
)

// Normalize maps each table row onto a canonical record using d's rename table.
// Columns d does not know are ignored. When several source columns feed the
// same field, the first non-empty one in header order wins. Fully blank rows
// are skipped.
func Normalize(t Table, d *Descriptor) ([]model.Record, error) {
	if len(t.Rows) > 0 && !recognizesAny(t.Header, d) {
		return nil, &model.MalformedInputError{
			Format: d.Name,
			Err:    errors.New("no column matches a known header: " + strings.Join(t.Header, ", ")),
		}
	}

	records := make([]model.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		if row.blank() {
			continue
		}
		var rec model.Record
		for _, col := range t.Header {
			f, ok := d.Field(col)
			if !ok {
				continue
			}
			v := strings.TrimSpace(row.Values[col])
			if v == "" || rec.Value(f) != "" {
				continue
			}
			rec.Set(f, v)
		}
		for _, e := range d.Enrichers {
			e.Enrich(row, &rec)
		}
		records = append(records, rec)
	}
	return records, nil
}

func recognizesAny(header []string, d *Descriptor) bool {
	for _, h := range header {
		if _, ok := d.Field(h); ok {
			return true
		}
	}
	return false
}

// Load detects the layout of an upload and reads it into a Table.
func Load(filename string, content []byte, hint string) (*Descriptor, Table, error) {
	d, err := Detect(filename, content, hint)
	if err != nil {
		return nil, Table{}, err
	}
	t, err := d.Read(content)
	if err != nil {
		return d, Table{}, err
	}
	return d, t, nil
}

// Parse loads and normalizes an upload in one step. rows counts the data rows
// read from the source before blank rows were dropped.
func Parse(filename string, content []byte, hint string) (d *Descriptor, records []model.Record, rows int, err error) {
	d, t, err := Load(filename, content, hint)
	if err != nil {
		return d, nil, 0, err
	}
	records, err = Normalize(t, d)
	if err != nil {
		return d, nil, len(t.Rows), err
	}
	return d, records, len(t.Rows), nil
}
