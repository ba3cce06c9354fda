package tabular

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
)

func TestCSVReader_HeadersAndRows(t *testing.T) {
	t.Parallel()

	in := "\ufeff Name , Phone Number\nAnn Lee,+92 300 1234567\n\n,\nBob\n"
	tbl, err := CSVReader{}.Read(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	if len(tbl.Headers) != 2 || tbl.Headers[0] != "Name" || tbl.Headers[1] != "Phone Number" {
		t.Fatalf("unexpected headers %q", tbl.Headers)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 rows (blank lines skipped), got %d: %+v", len(tbl.Rows), tbl.Rows)
	}
	if tbl.Rows[0]["Name"] != "Ann Lee" || tbl.Rows[0]["Phone Number"] != "+92 300 1234567" {
		t.Fatalf("unexpected first row %+v", tbl.Rows[0])
	}
	if tbl.Rows[1]["Name"] != "Bob" || tbl.Rows[1]["Phone Number"] != "" {
		t.Fatalf("expected short row to be padded, got %+v", tbl.Rows[1])
	}
}

func TestCSVReader_EmptyInput(t *testing.T) {
	t.Parallel()

	_, err := CSVReader{}.Read(context.Background(), strings.NewReader(""))
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCSVReader_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (CSVReader{}).Read(ctx, strings.NewReader("name,phone\na,1\n")); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}

func TestXLSXReader_FirstSheet(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	cells := map[string]string{
		"A1": "Full Name", "B1": "Contact",
		"A2": "Ann Lee", "B2": "0300-1234567",
		"A3": "Omar", "B3": "0301 7654321",
	}
	for cell, v := range cells {
		if err := f.SetCellValue("Sheet1", cell, v); err != nil {
			t.Fatalf("SetCellValue(%s) error: %v", cell, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error: %v", err)
	}
	_ = f.Close()

	tbl, err := XLSXReader{}.Read(context.Background(), bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(tbl.Headers) != 2 || tbl.Headers[0] != "Full Name" {
		t.Fatalf("unexpected headers %q", tbl.Headers)
	}
	if len(tbl.Rows) != 2 || tbl.Rows[1]["Contact"] != "0301 7654321" {
		t.Fatalf("unexpected rows %+v", tbl.Rows)
	}
}

func TestXLSXReader_Garbage(t *testing.T) {
	t.Parallel()

	_, err := XLSXReader{}.Read(context.Background(), strings.NewReader("not a zip archive"))
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestForFile(t *testing.T) {
	t.Parallel()

	if r, err := ForFile("contacts.CSV"); err != nil {
		t.Fatalf("ForFile(csv) error: %v", err)
	} else if _, ok := r.(CSVReader); !ok {
		t.Fatalf("expected CSVReader, got %T", r)
	}
	if r, err := ForFile("contacts.xlsx"); err != nil {
		t.Fatalf("ForFile(xlsx) error: %v", err)
	} else if _, ok := r.(XLSXReader); !ok {
		t.Fatalf("expected XLSXReader, got %T", r)
	}
	if _, err := ForFile("legacy.xls"); !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("expected parse error for .xls, got %v", err)
	}
	if _, err := ForFile("notes.txt"); !errors.Is(err, apperr.ErrUnsupportedFileType) {
		t.Fatalf("expected unsupported type, got %v", err)
	}
}
