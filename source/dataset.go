// Package source retrieves marketplace order exports and parses them into a Dataset,
// a header plus string records, for platform detection and normalization.
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrEmptyFile is returned when the source contains no bytes or no header row.
	ErrEmptyFile = errors.New("csv source is empty")

	// ErrNoDataRows is returned when the source has a header but no data rows.
	ErrNoDataRows = errors.New("csv source contains no data rows")
)

// utf8BOM is stripped from the start of exports produced by spreadsheet tools.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Dataset is a parsed tabular export. Records are in source order and each record
// has been padded or truncated to the header width.
type Dataset struct {
	Header  []string
	Records [][]string
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Column returns the index of the named column. An exact match is preferred, otherwise
// the first case-insensitive match is used.
func (d *Dataset) Column(name string) (int, bool) {
	for i, h := range d.Header {
		if h == name {
			return i, true
		}
	}
	for i, h := range d.Header {
		if strings.EqualFold(h, name) {
			return i, true
		}
	}
	return -1, false
}

// Value returns the value at row, col or "" if either is out of range.
func (d *Dataset) Value(row, col int) string {
	if row < 0 || row >= len(d.Records) || col < 0 {
		return ""
	}
	record := d.Records[row]
	if col >= len(record) {
		return ""
	}
	return record[col]
}

// RecordMap returns the row as a header to value map, used for failed row audit.
func (d *Dataset) RecordMap(row int) map[string]string {
	m := make(map[string]string, len(d.Header))
	for i, h := range d.Header {
		m[h] = d.Value(row, i)
	}
	return m
}

// Parse reads a CSV stream into a Dataset. A leading UTF-8 byte order mark is removed,
// header names and values are trimmed and rows with no non-empty value are skipped.
func Parse(r io.Reader) (*Dataset, error) {
	br := bufio.NewReader(r)
	if peek, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(peek, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		records = append(records, record)
	}
	return build(header, records)
}

// build makes a Dataset from a header and raw records, trimming values, skipping blank
// records and fitting each record to the header width.
func build(header []string, records [][]string) (*Dataset, error) {
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	ds := &Dataset{Header: header}
	for _, record := range records {
		if blank(record) {
			continue
		}
		row := make([]string, len(header))
		for i := range row {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
		}
		ds.Records = append(ds.Records, row)
	}

	if len(ds.Records) == 0 {
		return nil, ErrNoDataRows
	}
	return ds, nil
}

// blank reports whether every field of a record is empty.
func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
