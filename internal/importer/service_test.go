package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poldata/tsimport/internal/domain"
	"github.com/poldata/tsimport/internal/repository"
)

type cellRef struct {
	row int
	col Column
}

// fakeSource is an in-memory TabularSource. Data rows are stored widest
// first as raw strings; cells outside a row read as empty.
type fakeSource struct {
	path         string
	rows         [][]string
	headings     map[Column]string
	flagged      map[cellRef]bool
	openErr      error
	closed       bool
	savedOnClose bool
}

func newFakeSource(rows [][]string) *fakeSource {
	return &fakeSource{
		rows:     rows,
		headings: make(map[Column]string),
		flagged:  make(map[cellRef]bool),
	}
}

func (f *fakeSource) Open(path string) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.path = path
	return nil
}

func (f *fakeSource) NormalizeNative() (string, error) { return f.path, nil }

func (f *fakeSource) ActiveRowCount() (int, error) { return len(f.rows), nil }

func (f *fakeSource) Cell(row int, col Column) (string, error) {
	r := f.rows[row-1]
	if int(col) > len(r) {
		return "", nil
	}
	return r[col-1], nil
}

func (f *fakeSource) SetCell(row int, col Column, value string) error {
	r := f.rows[row-1]
	for len(r) < int(col) {
		r = append(r, "")
	}
	r[col-1] = value
	f.rows[row-1] = r
	return nil
}

func (f *fakeSource) SetHeading(col Column, label string) error {
	f.headings[col] = label
	return nil
}

func (f *fakeSource) Flag(row int, col Column) error {
	f.flagged[cellRef{row, col}] = true
	return nil
}

func (f *fakeSource) Close(persistEdits bool) error {
	f.closed = true
	f.savedOnClose = persistEdits
	return nil
}

func (f *fakeSource) Path() string { return f.path }

var _ TabularSource = (*fakeSource)(nil)

type fakeTimesheetRepo struct {
	aggregates map[string]domain.WeeklyAggregate
	byWeek     map[string]string
	details    []domain.DetailEntry
	recomputed [][]string

	insertDetailErr error
	recomputeErr    error
}

func newFakeTimesheetRepo() *fakeTimesheetRepo {
	return &fakeTimesheetRepo{
		aggregates: make(map[string]domain.WeeklyAggregate),
		byWeek:     make(map[string]string),
	}
}

func weekKey(employeeID int, start, end time.Time) string {
	return fmt.Sprintf("%d|%s|%s", employeeID, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func (f *fakeTimesheetRepo) FindAggregate(ctx context.Context, employeeID int, weekStart, weekEnd time.Time) (string, error) {
	return f.byWeek[weekKey(employeeID, weekStart, weekEnd)], nil
}

func (f *fakeTimesheetRepo) ListIssuedIDs(ctx context.Context, monthCode string) (map[string]struct{}, error) {
	issued := make(map[string]struct{})
	for id := range f.aggregates {
		if strings.HasPrefix(id, monthCode) {
			issued[id] = struct{}{}
		}
	}
	return issued, nil
}

func (f *fakeTimesheetRepo) InsertAggregate(ctx context.Context, agg domain.WeeklyAggregate) error {
	f.aggregates[agg.ID] = agg
	f.byWeek[weekKey(agg.EmployeeID, agg.WeekStart, agg.WeekEnd)] = agg.ID
	return nil
}

func (f *fakeTimesheetRepo) InsertDetail(ctx context.Context, detail domain.DetailEntry) error {
	if f.insertDetailErr != nil {
		return f.insertDetailErr
	}
	f.details = append(f.details, detail)
	return nil
}

func (f *fakeTimesheetRepo) RecomputeTotals(ctx context.Context, ids []string) error {
	if f.recomputeErr != nil {
		return f.recomputeErr
	}
	f.recomputed = append(f.recomputed, ids)
	for _, id := range ids {
		agg, ok := f.aggregates[id]
		if !ok {
			continue
		}
		total := 0.0
		for _, d := range f.details {
			if d.TimesheetID == id {
				total += d.HoursWorked
			}
		}
		agg.TotalHours = total
		agg.RegHours, agg.OTHours = domain.SplitWeeklyHours(total)
		f.aggregates[id] = agg
	}
	return nil
}

var _ repository.TimesheetRepository = (*fakeTimesheetRepo)(nil)

type fakeLogRepo struct {
	entries []domain.ImportLogEntry
}

func (f *fakeLogRepo) Record(ctx context.Context, entry domain.ImportLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogRepo) List(ctx context.Context, fileName string, limit, offset int) ([]domain.ImportLogEntry, error) {
	return f.entries, nil
}

var _ repository.ImportLogRepository = (*fakeLogRepo)(nil)

func dataRow(empID, workOrder, jobNo, start, stop, reg, ot, dot string) []string {
	return []string{"Alice Smith", empID, workOrder, "Acme", jobNo, start, stop, "", reg, ot, dot}
}

type testHarness struct {
	service *Service
	source  *fakeSource
	repo    *fakeTimesheetRepo
	logs    *fakeLogRepo
	srcPath string
	archive string
	errors  string
}

func newHarness(t *testing.T, rows [][]string) *testHarness {
	t.Helper()

	srcDir := t.TempDir()
	archiveDir := t.TempDir()
	errorDir := t.TempDir()

	srcPath := filepath.Join(srcDir, "timesheets.xlsx")
	if err := os.WriteFile(srcPath, []byte("workbook"), 0o644); err != nil {
		t.Fatalf("failed to create source file: %v", err)
	}

	refs := &stubRefs{
		jobs:       map[int]bool{500: true},
		workOrders: map[string]bool{"500-WO1": true},
		crews:      map[int]stubCrew{101: {id: 7, name: "North Crew"}},
	}
	repo := newFakeTimesheetRepo()
	logs := &fakeLogRepo{}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)

	cfg := Config{
		ArchiveFolder: archiveDir,
		ErrorFolder:   errorDir,
		WeekEndingDay: time.Wednesday,
	}
	service, err := NewService(cfg, refs, repo, logs, logger)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	source := newFakeSource(rows)
	service.newSource = func() TabularSource { return source }
	service.now = func() time.Time { return time.Date(2025, 9, 1, 10, 30, 0, 0, time.UTC) }

	return &testHarness{
		service: service,
		source:  source,
		repo:    repo,
		logs:    logs,
		srcPath: srcPath,
		archive: archiveDir,
		errors:  errorDir,
	}
}

func TestRunMixedBatchRoutesToErrors(t *testing.T) {
	rows := [][]string{
		dataRow("101", "WO1", "500", "2025-08-25 07:00", "2025-08-25 15:00", "8", "0", "0"),
		dataRow("101", "WO1", "500", "2025-08-26 07:00", "2025-08-26 15:00", "8", "x", "0"),
		dataRow("102", "WO1", "500", "2025-08-26 07:00", "2025-08-26 15:00", "8", "0", "0"),
	}
	h := newHarness(t, rows)

	summary, err := h.service.Run(context.Background(), h.srcPath)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if summary.TotalRows != 3 || summary.ValidRows != 2 || summary.InvalidRows != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.AllValid {
		t.Fatalf("expected batch marked invalid")
	}
	if len(h.repo.details) != 2 {
		t.Fatalf("expected 2 detail inserts, got %d", len(h.repo.details))
	}
	// Two employees, two aggregates.
	if len(summary.AggregatesTouched) != 2 {
		t.Fatalf("expected 2 aggregates touched, got %v", summary.AggregatesTouched)
	}
	if len(h.repo.recomputed) != 1 || len(h.repo.recomputed[0]) != 2 {
		t.Fatalf("expected recompute of exactly the touched aggregates, got %v", h.repo.recomputed)
	}

	// Row 2 is annotated and only its overtime cell flagged.
	if got, _ := h.source.Cell(2, DefaultLayout().Status); got != "Error" {
		t.Fatalf("expected row 2 status Error, got %q", got)
	}
	if got, _ := h.source.Cell(2, DefaultLayout().Message); got != MsgBadHours {
		t.Fatalf("expected row 2 message %q, got %q", MsgBadHours, got)
	}
	if !h.source.flagged[cellRef{2, DefaultLayout().OvertimeHours}] {
		t.Fatalf("expected overtime cell flagged on row 2")
	}
	if len(h.source.flagged) != 1 {
		t.Fatalf("expected exactly one flagged cell, got %v", h.source.flagged)
	}

	// Edits persisted because a row failed; file routed to the errors folder.
	if !h.source.savedOnClose {
		t.Fatalf("expected workbook saved on close")
	}
	wantDest := filepath.Join(h.errors, "timesheets_2025-09-01_10-30-00.xlsx")
	if summary.ArchivedTo != wantDest {
		t.Fatalf("expected archive at %q, got %q", wantDest, summary.ArchivedTo)
	}
	if _, err := os.Stat(wantDest); err != nil {
		t.Fatalf("expected moved file at %q: %v", wantDest, err)
	}
	if _, err := os.Stat(h.srcPath); !os.IsNotExist(err) {
		t.Fatalf("expected source file moved away")
	}

	// The failure is durably logged with its sheet row number.
	if len(h.logs.entries) != 1 {
		t.Fatalf("expected 1 import log entry, got %d", len(h.logs.entries))
	}
	if h.logs.entries[0].RowNumber == nil || *h.logs.entries[0].RowNumber != 3 {
		t.Fatalf("expected log entry for sheet row 3, got %+v", h.logs.entries[0])
	}
}

func TestRunSameEmployeeWeekSharesAggregate(t *testing.T) {
	rows := [][]string{
		dataRow("101", "WO1", "500", "2025-08-25 07:00", "2025-08-25 19:00", "30", "0", "0"),
		dataRow("101", "WO1", "500", "2025-08-26 07:00", "2025-08-26 15:00", "15", "0", "0"),
	}
	h := newHarness(t, rows)

	summary, err := h.service.Run(context.Background(), h.srcPath)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if !summary.AllValid || summary.ValidRows != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(h.repo.aggregates) != 1 {
		t.Fatalf("expected one aggregate, got %d", len(h.repo.aggregates))
	}
	if len(h.repo.details) != 2 {
		t.Fatalf("expected two details, got %d", len(h.repo.details))
	}
	if len(summary.AggregatesTouched) != 1 {
		t.Fatalf("expected one touched aggregate, got %v", summary.AggregatesTouched)
	}

	id := summary.AggregatesTouched[0]
	if !strings.HasPrefix(id, "2508") || len(id) != domain.TimesheetIDLength {
		t.Fatalf("unexpected aggregate id %q", id)
	}

	agg := h.repo.aggregates[id]
	if agg.TotalHours != 45 || agg.RegHours != 40 || agg.OTHours != 5 {
		t.Fatalf("unexpected recomputed totals: %+v", agg)
	}
	if agg.CrewName != "North Crew" {
		t.Fatalf("expected crew captured at creation, got %+v", agg)
	}

	// A clean run closes without persisting edits and archives cleanly.
	if h.source.savedOnClose {
		t.Fatalf("expected workbook closed without saving")
	}
	wantDest := filepath.Join(h.archive, "timesheets_2025-09-01_10-30-00.xlsx")
	if summary.ArchivedTo != wantDest {
		t.Fatalf("expected archive at %q, got %q", wantDest, summary.ArchivedTo)
	}
}

func TestRunReusesExistingAggregate(t *testing.T) {
	rows := [][]string{
		dataRow("101", "WO1", "500", "2025-08-25 07:00", "2025-08-25 15:00", "8", "0", "0"),
	}
	h := newHarness(t, rows)

	// The aggregate for this employee week already exists in the store.
	start := time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 27, 0, 0, 0, 0, time.UTC)
	existing, err := domain.NewWeeklyAggregate("2508QRST", 101, start, end, 7, "North Crew")
	if err != nil {
		t.Fatalf("failed to build aggregate: %v", err)
	}
	if err := h.repo.InsertAggregate(context.Background(), existing); err != nil {
		t.Fatalf("failed to seed aggregate: %v", err)
	}

	summary, err := h.service.Run(context.Background(), h.srcPath)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if len(h.repo.aggregates) != 1 {
		t.Fatalf("expected no new aggregate, store has %d", len(h.repo.aggregates))
	}
	if len(h.repo.details) != 1 || h.repo.details[0].TimesheetID != "2508QRST" {
		t.Fatalf("expected detail against existing aggregate, got %+v", h.repo.details)
	}
	if len(summary.AggregatesTouched) != 1 || summary.AggregatesTouched[0] != "2508QRST" {
		t.Fatalf("unexpected touched set %v", summary.AggregatesTouched)
	}
}

func TestRunSkipsBlankRows(t *testing.T) {
	rows := [][]string{
		dataRow("101", "WO1", "500", "2025-08-25 07:00", "2025-08-25 15:00", "8", "0", "0"),
		{"", "", "", "", "", "", "", "", "", "", ""},
		dataRow("101", "WO1", "500", "2025-08-26 07:00", "2025-08-26 15:00", "8", "0", "0"),
	}
	h := newHarness(t, rows)

	summary, err := h.service.Run(context.Background(), h.srcPath)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if summary.TotalRows != 2 || summary.SkippedRows != 1 || !summary.AllValid {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunDetailInsertFailureMarksRow(t *testing.T) {
	rows := [][]string{
		dataRow("101", "WO1", "500", "2025-08-25 07:00", "2025-08-25 15:00", "8", "0", "0"),
	}
	h := newHarness(t, rows)
	h.repo.insertDetailErr = errors.New("insert rejected")

	summary, err := h.service.Run(context.Background(), h.srcPath)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if summary.AllValid || summary.InvalidRows != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got, _ := h.source.Cell(1, DefaultLayout().Status); got != "Error" {
		t.Fatalf("expected row 1 status Error, got %q", got)
	}
	if len(summary.AggregatesTouched) != 0 {
		t.Fatalf("expected no touched aggregates, got %v", summary.AggregatesTouched)
	}
	if summary.ArchivedTo != filepath.Join(h.errors, "timesheets_2025-09-01_10-30-00.xlsx") {
		t.Fatalf("expected file routed to errors folder, got %q", summary.ArchivedTo)
	}
}

func TestRunRecomputeFailureKeepsDetails(t *testing.T) {
	rows := [][]string{
		dataRow("101", "WO1", "500", "2025-08-25 07:00", "2025-08-25 15:00", "8", "0", "0"),
	}
	h := newHarness(t, rows)
	h.repo.recomputeErr = errors.New("deadlock detected")

	summary, err := h.service.Run(context.Background(), h.srcPath)
	if err == nil {
		t.Fatalf("expected recompute failure surfaced")
	}

	// Details stay committed and the file is still archived.
	if len(h.repo.details) != 1 {
		t.Fatalf("expected detail to remain, got %d", len(h.repo.details))
	}
	if summary.ArchivedTo == "" {
		t.Fatalf("expected file archived despite recompute failure")
	}
}

func TestRunOpenFailureIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	h.source.openErr = errors.New("file locked")

	_, err := h.service.Run(context.Background(), h.srcPath)
	if err == nil {
		t.Fatalf("expected terminal error")
	}
	if len(h.repo.details) != 0 || len(h.repo.aggregates) != 0 {
		t.Fatalf("expected no rows touched")
	}
	if _, statErr := os.Stat(h.srcPath); statErr != nil {
		t.Fatalf("expected source file left in place: %v", statErr)
	}
	if len(h.logs.entries) != 1 {
		t.Fatalf("expected the failure durably logged, got %d entries", len(h.logs.entries))
	}
}
