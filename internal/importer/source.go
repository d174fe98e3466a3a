package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned when a source file is not a recognized
// spreadsheet format.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// TabularSource is the pipeline's view of a spreadsheet file. Data rows are
// 1-based and start below the header row.
type TabularSource interface {
	Open(path string) error
	// NormalizeNative converts a legacy CSV source into a native workbook,
	// returning the path of the active file. Native sources pass through.
	NormalizeNative() (string, error)
	ActiveRowCount() (int, error)
	Cell(row int, col Column) (string, error)
	SetCell(row int, col Column, value string) error
	SetHeading(col Column, label string) error
	// Flag marks a cell with the error fill so a reviewer can spot it.
	Flag(row int, col Column) error
	// Close releases the workbook, persisting edits first when asked.
	Close(persistEdits bool) error
	Path() string
}

// ExcelSource implements TabularSource on top of excelize. CSV files are
// materialized into a workbook on open and saved as xlsx by NormalizeNative.
type ExcelSource struct {
	file     *excelize.File
	sheet    string
	path     string
	fromCSV  bool
	errStyle int
}

// NewExcelSource returns an unopened source.
func NewExcelSource() *ExcelSource {
	return &ExcelSource{}
}

func (s *ExcelSource) Open(path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return fmt.Errorf("failed to open workbook %s: %w", filepath.Base(path), err)
		}
		s.file = f
	case ".csv":
		f, err := workbookFromCSV(path)
		if err != nil {
			return err
		}
		s.file = f
		s.fromCSV = true
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	sheets := s.file.GetSheetList()
	if len(sheets) == 0 {
		_ = s.file.Close()
		s.file = nil
		return fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
	}

	s.sheet = sheets[0]
	s.path = path
	return nil
}

func workbookFromCSV(path string) (*excelize.File, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv %s: %w", filepath.Base(path), err)
	}

	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, peekErr := reader.Peek(len(byteOrderMark)); peekErr == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv %s: %w", filepath.Base(path), err)
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, record := range records {
		cell, cellErr := excelize.CoordinatesToCellName(1, i+1)
		if cellErr != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to address row %d: %w", i+1, cellErr)
		}
		if setErr := f.SetSheetRow(sheet, cell, &record); setErr != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, setErr)
		}
	}

	return f, nil
}

func (s *ExcelSource) NormalizeNative() (string, error) {
	if !s.fromCSV {
		return s.path, nil
	}

	native := strings.TrimSuffix(s.path, filepath.Ext(s.path)) + ".xlsx"
	if err := s.file.SaveAs(native); err != nil {
		return "", fmt.Errorf("failed to save %s as workbook: %w", filepath.Base(s.path), err)
	}

	s.path = native
	s.fromCSV = false
	return native, nil
}

// ActiveRowCount returns the number of data rows up to the last populated
// row, excluding the header.
func (s *ExcelSource) ActiveRowCount() (int, error) {
	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read rows: %w", err)
	}

	last := 0
	for i, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				last = i + 1
				break
			}
		}
	}

	if last <= 1 {
		return 0, nil
	}
	return last - 1, nil
}

func (s *ExcelSource) Cell(row int, col Column) (string, error) {
	name, err := excelize.CoordinatesToCellName(int(col), row+1)
	if err != nil {
		return "", fmt.Errorf("failed to address cell: %w", err)
	}
	value, err := s.file.GetCellValue(s.sheet, name)
	if err != nil {
		return "", fmt.Errorf("failed to read cell %s: %w", name, err)
	}
	return value, nil
}

func (s *ExcelSource) SetCell(row int, col Column, value string) error {
	name, err := excelize.CoordinatesToCellName(int(col), row+1)
	if err != nil {
		return fmt.Errorf("failed to address cell: %w", err)
	}
	if err := s.file.SetCellValue(s.sheet, name, value); err != nil {
		return fmt.Errorf("failed to write cell %s: %w", name, err)
	}
	return nil
}

func (s *ExcelSource) SetHeading(col Column, label string) error {
	name, err := excelize.CoordinatesToCellName(int(col), 1)
	if err != nil {
		return fmt.Errorf("failed to address heading: %w", err)
	}
	if err := s.file.SetCellValue(s.sheet, name, label); err != nil {
		return fmt.Errorf("failed to write heading %s: %w", name, err)
	}
	return nil
}

func (s *ExcelSource) Flag(row int, col Column) error {
	if s.errStyle == 0 {
		style, err := s.file.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("failed to create error style: %w", err)
		}
		s.errStyle = style
	}

	name, err := excelize.CoordinatesToCellName(int(col), row+1)
	if err != nil {
		return fmt.Errorf("failed to address cell: %w", err)
	}
	if err := s.file.SetCellStyle(s.sheet, name, name, s.errStyle); err != nil {
		return fmt.Errorf("failed to flag cell %s: %w", name, err)
	}
	return nil
}

func (s *ExcelSource) Close(persistEdits bool) error {
	if s.file == nil {
		return nil
	}
	defer func() {
		_ = s.file.Close()
		s.file = nil
	}()

	if persistEdits {
		if err := s.file.Save(); err != nil {
			return fmt.Errorf("failed to save workbook: %w", err)
		}
	}
	return nil
}

func (s *ExcelSource) Path() string {
	return s.path
}
