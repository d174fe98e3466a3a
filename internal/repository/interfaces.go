package repository

import (
	"context"
	"time"

	"github.com/poldata/tsimport/internal/domain"
)

// ReferenceRepository answers existence and lookup questions against the
// reference tables (jobs, work orders, crews).
type ReferenceRepository interface {
	JobExists(ctx context.Context, jobID int) (bool, error)
	WorkOrderExists(ctx context.Context, jobID int, workOrder string) (bool, error)
	// GetCrew resolves the employee's current crew. An employee with no crew
	// membership yields zero values, not an error.
	GetCrew(ctx context.Context, employeeID int) (int, string, error)
}

// TimesheetRepository persists weekly aggregates and their detail entries.
type TimesheetRepository interface {
	// FindAggregate returns the aggregate ID for the employee week, or the
	// empty string when none exists.
	FindAggregate(ctx context.Context, employeeID int, weekStart, weekEnd time.Time) (string, error)
	// ListIssuedIDs returns every timesheet ID already issued for the yyMM
	// month code.
	ListIssuedIDs(ctx context.Context, monthCode string) (map[string]struct{}, error)
	InsertAggregate(ctx context.Context, agg domain.WeeklyAggregate) error
	InsertDetail(ctx context.Context, detail domain.DetailEntry) error
	// RecomputeTotals rewrites total/regular/overtime hours from the detail
	// sums for the supplied aggregate IDs only. Aggregates outside the set
	// are never touched.
	RecomputeTotals(ctx context.Context, ids []string) error
}

// ImportLogRepository stores import failures for observability.
type ImportLogRepository interface {
	Record(ctx context.Context, entry domain.ImportLogEntry) error
	List(ctx context.Context, fileName string, limit int, offset int) ([]domain.ImportLogEntry, error)
}
