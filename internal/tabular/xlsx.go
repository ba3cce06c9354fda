package tabular

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
)

// XLSXReader reads the first sheet of an Office Open XML workbook.
type XLSXReader struct{}

func (XLSXReader) Read(ctx context.Context, r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeParse, "xlsx", "failed to open workbook", err)
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, apperr.New(apperr.CodeParse, "xlsx", "workbook has no sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeParse, "xlsx", "failed to read rows", err)
	}
	if len(rows) == 0 {
		return nil, apperr.New(apperr.CodeParse, "xlsx", "workbook contains no data")
	}
	return newTable(rows), nil
}
