package importer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("failed to address row: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to save workbook: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close workbook: %v", err)
	}
}

func TestExcelSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.xlsx")
	writeWorkbook(t, path, [][]any{
		{"Name", "ID", "WO"},
		{"Alice", "101", "WO1"},
		{"Bob", "102", "WO2"},
	})

	src := NewExcelSource()
	if err := src.Open(path); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if active, err := src.NormalizeNative(); err != nil || active != path {
		t.Fatalf("expected native file to pass through, got %q, %v", active, err)
	}

	count, err := src.ActiveRowCount()
	if err != nil {
		t.Fatalf("row count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 data rows, got %d", count)
	}

	got, err := src.Cell(1, 2)
	if err != nil || got != "101" {
		t.Fatalf("expected cell B2 = 101, got %q, %v", got, err)
	}

	if err := src.SetHeading(12, "Status"); err != nil {
		t.Fatalf("set heading failed: %v", err)
	}
	if err := src.SetCell(2, 12, "Error"); err != nil {
		t.Fatalf("set cell failed: %v", err)
	}
	if err := src.Flag(2, 2); err != nil {
		t.Fatalf("flag failed: %v", err)
	}
	if err := src.Close(true); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// The persisted workbook carries the annotations.
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if got, _ := f.GetCellValue(sheet, "L1"); got != "Status" {
		t.Fatalf("expected status heading persisted, got %q", got)
	}
	if got, _ := f.GetCellValue(sheet, "L3"); got != "Error" {
		t.Fatalf("expected row 3 status persisted, got %q", got)
	}
}

func TestExcelSourceDiscardsEditsWithoutSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.xlsx")
	writeWorkbook(t, path, [][]any{
		{"Name", "ID"},
		{"Alice", "101"},
	})

	src := NewExcelSource()
	if err := src.Open(path); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := src.SetCell(1, 12, "Error"); err != nil {
		t.Fatalf("set cell failed: %v", err)
	}
	if err := src.Close(false); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = f.Close() }()

	if got, _ := f.GetCellValue(f.GetSheetName(0), "L2"); got != "" {
		t.Fatalf("expected edits discarded, found %q", got)
	}
}

func TestExcelSourceNormalizesCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.csv")
	csv := "Name,ID,WO\nAlice,101,WO1\n"
	if err := os.WriteFile(path, append([]byte{0xEF, 0xBB, 0xBF}, []byte(csv)...), 0o644); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}

	src := NewExcelSource()
	if err := src.Open(path); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	active, err := src.NormalizeNative()
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	want := filepath.Join(dir, "sheet.xlsx")
	if active != want {
		t.Fatalf("expected %q, got %q", want, active)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected converted workbook on disk: %v", err)
	}

	count, err := src.ActiveRowCount()
	if err != nil || count != 1 {
		t.Fatalf("expected 1 data row, got %d, %v", count, err)
	}
	// The BOM must not leak into the first header cell's data rows.
	if got, _ := src.Cell(1, 1); got != "Alice" {
		t.Fatalf("expected A2 = Alice, got %q", got)
	}
	if err := src.Close(false); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestExcelSourceRejectsUnknownFormat(t *testing.T) {
	src := NewExcelSource()
	err := src.Open("timesheets.txt")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
