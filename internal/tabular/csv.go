package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
)

// CSVReader reads comma separated files. A UTF-8 or UTF-16 byte order mark
// is honored and stripped; files without one are read as UTF-8.
type CSVReader struct{}

func (CSVReader) Read(ctx context.Context, r io.Reader) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeParse, "csv", "malformed CSV", err)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, apperr.New(apperr.CodeParse, "csv", "CSV file contains no data")
	}
	return newTable(records), nil
}
