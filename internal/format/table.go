// Package format reads uploaded job listings and maps each known source layout
// onto the canonical record.
package format

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/amishk599/jobrag/internal/model"
)

// Row is one source row: cell text keyed by header, plus any hyperlink targets
// attached to cells out of band.
type Row struct {
	Values map[string]string
	Links  map[string]string
}

// Table is a row-oriented view of an upload with its header in source order.
type Table struct {
	Header []string
	Rows   []Row
}

// ReadCSV parses content as a header-first CSV file.
func ReadCSV(content []byte) (Table, error) {
	if bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content) {
		return Table{}, &model.MalformedInputError{Format: "csv", Err: errors.New("content is not text")}
	}
	content = bytes.TrimPrefix(content, []byte("\ufeff"))

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Table{}, &model.MalformedInputError{Format: "csv", Err: err}
	}
	if len(records) == 0 {
		return Table{}, &model.MalformedInputError{Format: "csv", Err: errors.New("missing header row")}
	}
	return fromGrid(records, nil), nil
}

// ReadXLSX parses the active sheet of a workbook. Hyperlinks on data cells are
// captured in Row.Links under the cell's header.
func ReadXLSX(content []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return Table{}, &model.MalformedInputError{Format: "xlsx", Err: err}
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Table{}, &model.MalformedInputError{Format: "xlsx", Err: errors.New("workbook has no sheets")}
		}
		sheet = sheets[0]
	}

	grid, err := f.GetRows(sheet)
	if err != nil {
		return Table{}, &model.MalformedInputError{Format: "xlsx", Err: fmt.Errorf("read sheet %q: %w", sheet, err)}
	}
	if len(grid) == 0 {
		return Table{}, &model.MalformedInputError{Format: "xlsx", Err: errors.New("missing header row")}
	}

	link := func(col, row int) string {
		cell, err := excelize.CoordinatesToCellName(col+1, row+1)
		if err != nil {
			return ""
		}
		ok, target, err := f.GetCellHyperLink(sheet, cell)
		if err != nil || !ok {
			return ""
		}
		return target
	}
	return fromGrid(grid, link), nil
}

// ReadJSON parses an array of flat job objects. Scalar values are stringified;
// nested values are kept as their JSON text.
func ReadJSON(content []byte) (Table, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return Table{}, &model.MalformedInputError{Format: "json", Err: fmt.Errorf("expected an array of job objects: %w", err)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Table{}, &model.MalformedInputError{Format: "json", Err: errors.New("trailing data after array")}
	}

	seen := make(map[string]bool)
	var header []string
	rows := make([]Row, 0, len(items))
	for i, item := range items {
		if item == nil {
			return Table{}, &model.MalformedInputError{Format: "json", Err: fmt.Errorf("item %d is not an object", i)}
		}
		values := make(map[string]string, len(item))
		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
			values[k] = stringify(item[k])
		}
		rows = append(rows, Row{Values: values})
	}
	return Table{Header: header, Rows: rows}, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// fromGrid turns a header-first grid into a Table. link, when set, looks up a
// hyperlink target by zero-based column and row.
func fromGrid(grid [][]string, link func(col, row int) string) Table {
	header := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(grid)-1)
	for r := 1; r < len(grid); r++ {
		cells := grid[r]
		row := Row{Values: make(map[string]string, len(header))}
		for c, name := range header {
			if name == "" {
				continue
			}
			if c < len(cells) {
				row.Values[name] = cells[c]
			}
			if link != nil {
				if target := link(c, r); target != "" {
					if row.Links == nil {
						row.Links = make(map[string]string)
					}
					row.Links[name] = target
				}
			}
		}
		rows = append(rows, row)
	}
	return Table{Header: header, Rows: rows}
}

func (r Row) blank() bool {
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return len(r.Links) == 0
}
