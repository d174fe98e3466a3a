package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poldata/tsimport/internal/domain"
	"github.com/poldata/tsimport/internal/repository"
)

// Config carries the import pipeline settings.
type Config struct {
	ArchiveFolder string
	ErrorFolder   string
	WeekEndingDay time.Weekday
}

// Summary reports the outcome of one import run.
type Summary struct {
	SourceFile        string   `json:"sourceFile"`
	TotalRows         int      `json:"totalRows"`
	ValidRows         int      `json:"validRows"`
	InvalidRows       int      `json:"invalidRows"`
	SkippedRows       int      `json:"skippedRows"`
	AllValid          bool     `json:"allValid"`
	AggregatesTouched []string `json:"aggregatesTouched"`
	ArchivedTo        string   `json:"archivedTo,omitempty"`
}

// Service runs the timesheet import pipeline over one spreadsheet file at a
// time. Rows are processed strictly in input order.
type Service struct {
	cfg        Config
	refs       repository.ReferenceRepository
	timesheets repository.TimesheetRepository
	logs       repository.ImportLogRepository
	validator  *RowValidator
	layout     Layout
	log        *logrus.Logger

	newSource func() TabularSource
	now       func() time.Time
}

// NewService builds the pipeline. The column layout is validated once here so
// row processing can index cells without further checks.
func NewService(
	cfg Config,
	refs repository.ReferenceRepository,
	timesheets repository.TimesheetRepository,
	logs repository.ImportLogRepository,
	logger *logrus.Logger,
) (*Service, error) {
	layout := DefaultLayout()
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid column layout: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		cfg:        cfg,
		refs:       refs,
		timesheets: timesheets,
		logs:       logs,
		validator:  NewRowValidator(refs, layout),
		layout:     layout,
		log:        logger,
		newSource:  func() TabularSource { return NewExcelSource() },
		now:        time.Now,
	}, nil
}

// Run imports every row of the file at path, annotates failures in the
// source, recomputes totals for the aggregates touched in this run, and
// archives the file. A per-row failure never aborts the batch; failures
// before row processing starts are terminal.
func (s *Service) Run(ctx context.Context, path string) (Summary, error) {
	summary := Summary{SourceFile: filepath.Base(path), AggregatesTouched: []string{}}

	src := s.newSource()
	if err := src.Open(path); err != nil {
		s.logRunError(ctx, summary.SourceFile, err)
		return summary, fmt.Errorf("could not open source file: %w", err)
	}
	s.log.Infof("Opened source file %q", summary.SourceFile)

	activePath, err := src.NormalizeNative()
	if err != nil {
		_ = src.Close(false)
		s.logRunError(ctx, summary.SourceFile, err)
		return summary, fmt.Errorf("could not save source as native workbook: %w", err)
	}
	if activePath != path {
		summary.SourceFile = filepath.Base(activePath)
		s.log.Infof("Saved CSV source as %q", summary.SourceFile)
	}

	rowCount, err := src.ActiveRowCount()
	if err != nil {
		_ = src.Close(false)
		s.logRunError(ctx, summary.SourceFile, err)
		return summary, fmt.Errorf("could not identify active rows: %w", err)
	}
	s.log.Infof("Identified %d active timesheet rows", rowCount)

	if err := src.SetHeading(s.layout.Status, "Status"); err != nil {
		s.log.WithError(err).Warn("could not write status heading")
	}
	if err := src.SetHeading(s.layout.Message, "Message"); err != nil {
		s.log.WithError(err).Warn("could not write message heading")
	}

	allValid := true
	touched := make(map[string]struct{})

	for i := 1; i <= rowCount; i++ {
		row, readErr := s.readRow(src, i)
		if readErr != nil {
			s.failRow(ctx, src, summary.SourceFile, i, readErr.Error(), []Column{s.layout.EmployeeName})
			summary.TotalRows++
			summary.InvalidRows++
			allValid = false
			continue
		}
		if row.Empty() {
			summary.SkippedRows++
			continue
		}
		summary.TotalRows++

		entry, rowErr := s.validator.Validate(ctx, row)
		if rowErr != nil {
			s.failRow(ctx, src, summary.SourceFile, i, rowErr.Message, rowErr.Columns)
			summary.InvalidRows++
			allValid = false
			continue
		}

		aggregateID, aggErr := s.getOrCreateAggregate(ctx, entry)
		if aggErr != nil {
			s.failRow(ctx, src, summary.SourceFile, i, aggErr.Error(), []Column{s.layout.EmployeeName})
			summary.InvalidRows++
			allValid = false
			continue
		}

		_, weekEnd := domain.WeekBounds(entry.Start, s.cfg.WeekEndingDay)
		detail := domain.NewDetailEntry(aggregateID, entry, weekEnd)
		if insErr := s.timesheets.InsertDetail(ctx, detail); insErr != nil {
			s.failRow(ctx, src, summary.SourceFile, i, insErr.Error(), []Column{s.layout.EmployeeName})
			summary.InvalidRows++
			allValid = false
			continue
		}

		if _, seen := touched[aggregateID]; !seen {
			touched[aggregateID] = struct{}{}
			summary.AggregatesTouched = append(summary.AggregatesTouched, aggregateID)
		}
		summary.ValidRows++
	}
	summary.AllValid = allValid

	var recomputeErr error
	if len(summary.AggregatesTouched) > 0 {
		recomputeErr = s.timesheets.RecomputeTotals(ctx, summary.AggregatesTouched)
		if recomputeErr != nil {
			// Inserted details stay committed; there is no batch rollback.
			s.log.WithError(recomputeErr).Error("could not recompute timesheet totals")
			s.logRunError(ctx, summary.SourceFile, recomputeErr)
		} else {
			s.log.Infof("Timesheets imported and totals updated for %d aggregates", len(summary.AggregatesTouched))
		}
	}

	// Edits are persisted only when a row failed, so the annotations survive
	// for review; a clean run closes without saving.
	if err := src.Close(!allValid); err != nil {
		s.log.WithError(err).Error("could not close source file")
	}

	destPath, moveErr := s.archive(activePath, allValid)
	if moveErr != nil {
		s.logRunError(ctx, summary.SourceFile, moveErr)
		return summary, fmt.Errorf("could not archive source file: %w", moveErr)
	}
	summary.ArchivedTo = destPath

	if allValid {
		s.log.Infof("Import completed without errors. Moved %q to %q", summary.SourceFile, destPath)
	} else {
		s.log.Warnf("Import completed with errors. Moved %q to %q", summary.SourceFile, destPath)
	}

	if recomputeErr != nil {
		return summary, fmt.Errorf("could not recompute timesheet totals: %w", recomputeErr)
	}
	return summary, nil
}

// getOrCreateAggregate resolves the weekly timesheet for the employee week,
// creating it with zero totals on first miss. Looking up before creating
// keeps repeated rows for the same employee week on one aggregate.
func (s *Service) getOrCreateAggregate(ctx context.Context, entry domain.RowEntry) (string, error) {
	weekStart, weekEnd := domain.WeekBounds(entry.Start, s.cfg.WeekEndingDay)

	id, err := s.timesheets.FindAggregate(ctx, entry.EmployeeID, weekStart, weekEnd)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	month := domain.MonthCode(entry.Start)
	issued, err := s.timesheets.ListIssuedIDs(ctx, month)
	if err != nil {
		return "", err
	}

	id, err = domain.NewTimesheetID(month, issued)
	if err != nil {
		return "", err
	}

	crewID, crewName, err := s.refs.GetCrew(ctx, entry.EmployeeID)
	if err != nil {
		return "", err
	}

	agg, err := domain.NewWeeklyAggregate(id, entry.EmployeeID, weekStart, weekEnd, crewID, crewName)
	if err != nil {
		return "", err
	}
	if err := s.timesheets.InsertAggregate(ctx, agg); err != nil {
		return "", err
	}

	s.log.Infof("Created weekly timesheet %s for employee %d week %s - %s",
		id, entry.EmployeeID, weekStart.Format("2006-01-02"), weekEnd.Format("2006-01-02"))
	return id, nil
}

func (s *Service) readRow(src TabularSource, row int) (domain.TimesheetRow, error) {
	read := func(col Column) (string, error) {
		value, err := src.Cell(row, col)
		return strings.TrimSpace(value), err
	}

	var (
		result = domain.TimesheetRow{SheetRow: row + 1}
		err    error
	)
	fields := []struct {
		col  Column
		dest *string
	}{
		{s.layout.EmployeeName, &result.EmployeeName},
		{s.layout.EmployeeID, &result.EmployeeID},
		{s.layout.WorkOrder, &result.WorkOrder},
		{s.layout.CustomerName, &result.CustomerName},
		{s.layout.JobNumber, &result.JobNumber},
		{s.layout.StartTime, &result.StartTime},
		{s.layout.StopTime, &result.StopTime},
		{s.layout.TotalHours, &result.TotalHours},
		{s.layout.RegularHours, &result.RegularHours},
		{s.layout.OvertimeHours, &result.OvertimeHours},
		{s.layout.DoubleOvertimeHours, &result.DoubleOvertimeHours},
	}
	for _, f := range fields {
		if *f.dest, err = read(f.col); err != nil {
			return result, fmt.Errorf("could not read row %d: %w", row, err)
		}
	}
	return result, nil
}

// failRow annotates the offending cells and the status/message columns,
// logs the failure, and records it durably. Processing always continues with
// the next row.
func (s *Service) failRow(ctx context.Context, src TabularSource, fileName string, row int, message string, cols []Column) {
	s.log.Errorf("Row %d: %s", row+1, message)

	for _, col := range cols {
		if err := src.Flag(row, col); err != nil {
			s.log.WithError(err).Warnf("could not flag cell in row %d", row+1)
		}
	}

	if err := src.SetCell(row, s.layout.Status, "Error"); err != nil {
		s.log.WithError(err).Warnf("could not set status in row %d", row+1)
	}

	existing, err := src.Cell(row, s.layout.Message)
	if err != nil {
		s.log.WithError(err).Warnf("could not read message in row %d", row+1)
	}
	if existing = strings.TrimSpace(existing); existing != "" {
		message = existing + "\n" + message
	}
	if err := src.SetCell(row, s.layout.Message, message); err != nil {
		s.log.WithError(err).Warnf("could not set message in row %d", row+1)
	}

	if s.logs != nil {
		sheetRow := row + 1
		entry := domain.ImportLogEntry{
			FileName:     fileName,
			RowNumber:    &sheetRow,
			ErrorMessage: message,
		}
		if err := s.logs.Record(ctx, entry); err != nil {
			s.log.WithError(err).Warn("could not record import log entry")
		}
	}
}

func (s *Service) logRunError(ctx context.Context, fileName string, runErr error) {
	s.log.WithError(runErr).Errorf("Import of %q failed", fileName)
	if s.logs == nil {
		return
	}
	entry := domain.ImportLogEntry{
		FileName:     fileName,
		ErrorMessage: runErr.Error(),
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		s.log.WithError(err).Warn("could not record import log entry")
	}
}

// archive moves the processed file into the archive folder on a clean run or
// the errors folder otherwise, with a timestamp in the name to avoid
// collisions. On failure the file stays where it is.
func (s *Service) archive(path string, allValid bool) (string, error) {
	dest := s.cfg.ErrorFolder
	if allValid {
		dest = s.cfg.ArchiveFolder
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	name := stem + s.now().Format("_2006-01-02_15-04-05") + ext
	destPath := filepath.Join(dest, name)

	if err := os.Rename(path, destPath); err != nil {
		return "", fmt.Errorf("failed to move %q to %q: %w", filepath.Base(path), destPath, err)
	}
	return destPath, nil
}
