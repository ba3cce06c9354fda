// Package tabular turns uploaded spreadsheet files into header-labeled rows.
package tabular

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
)

// Table is a header row plus data rows keyed by header.
type Table struct {
	Headers []string
	Rows    []map[string]string
}

// Reader reads a whole file into a Table. Malformed input yields an
// apperr.CodeParse error.
type Reader interface {
	Read(ctx context.Context, r io.Reader) (*Table, error)
}

// ForFile picks a reader by the file's extension.
func ForFile(fileName string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return CSVReader{}, nil
	case ".xlsx":
		return XLSXReader{}, nil
	case ".xls":
		return nil, apperr.New(apperr.CodeParse, "tabular", "legacy .xls workbooks are not supported, save the file as .xlsx or .csv")
	}
	return nil, apperr.Newf(apperr.CodeUnsupportedFileType, "tabular", "no reader for %q", fileName)
}

// newTable builds a table from raw records, first record being the header.
// Blank lines are skipped and short rows are padded with empty values.
func newTable(records [][]string) *Table {
	t := &Table{}
	if len(records) == 0 {
		return t
	}

	t.Headers = make([]string, len(records[0]))
	for i, h := range records[0] {
		t.Headers[i] = strings.TrimSpace(h)
	}

	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if h == "" {
				continue
			}
			if _, dup := row[h]; dup {
				continue
			}
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
