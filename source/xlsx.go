package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// zipMagic starts every xlsx workbook.
var zipMagic = []byte("PK\x03\x04")

// ParseXLSX reads the first worksheet of an xlsx workbook into a Dataset. The first
// row is the header.
func ParseXLSX(r io.Reader) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 || blank(rows[0]) {
		return nil, ErrEmptyFile
	}
	return build(rows[0], rows[1:])
}

// ParseAny parses an xlsx workbook or, failing its signature, a CSV stream.
func ParseAny(r io.Reader) (*Dataset, error) {
	br := bufio.NewReader(r)
	if peek, err := br.Peek(len(zipMagic)); err == nil && bytes.Equal(peek, zipMagic) {
		return ParseXLSX(br)
	}
	return Parse(br)
}
