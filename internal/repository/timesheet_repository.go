package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poldata/tsimport/internal/domain"
)

type timesheetRepository struct {
	pool *pgxpool.Pool
}

// NewTimesheetRepository wires a timesheet repository backed by pgxpool.
func NewTimesheetRepository(pool *pgxpool.Pool) TimesheetRepository {
	return &timesheetRepository{pool: pool}
}

func (r *timesheetRepository) FindAggregate(ctx context.Context, employeeID int, weekStart, weekEnd time.Time) (string, error) {
	var id string
	err := r.pool.QueryRow(
		ctx,
		`SELECT id FROM weekly_timesheets
		 WHERE employee_id = $1 AND week_start = $2 AND week_end = $3`,
		employeeID,
		weekStart,
		weekEnd,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find timesheet for employee %d week %s: %w",
			employeeID, weekStart.Format("2006-01-02"), err)
	}
	return id, nil
}

func (r *timesheetRepository) ListIssuedIDs(ctx context.Context, monthCode string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id FROM weekly_timesheets WHERE id LIKE $1 || '%'`,
		monthCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list timesheet ids for %q: %w", monthCode, err)
	}
	defer rows.Close()

	issued := make(map[string]struct{})
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("failed to scan timesheet id: %w", scanErr)
		}
		issued[id] = struct{}{}
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate timesheet ids: %w", rowsErr)
	}

	return issued, nil
}

func (r *timesheetRepository) InsertAggregate(ctx context.Context, agg domain.WeeklyAggregate) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO weekly_timesheets
		 (id, employee_id, week_start, week_end, total_hours, reg_hours, ot_hours, crew_id, crew_name)
		 VALUES ($1, $2, $3, $4, 0, 0, 0, $5, $6)`,
		agg.ID,
		agg.EmployeeID,
		agg.WeekStart,
		agg.WeekEnd,
		agg.CrewID,
		agg.CrewName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert weekly timesheet %s for employee %d: %w", agg.ID, agg.EmployeeID, err)
	}
	return nil
}

func (r *timesheetRepository) InsertDetail(ctx context.Context, detail domain.DetailEntry) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO timesheet_entries
		 (timesheet_id, job_id, hours_worked, estimate_id, work_date, week_ending)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		detail.TimesheetID,
		detail.JobID,
		detail.HoursWorked,
		detail.EstimateID,
		detail.WorkDate,
		detail.WeekEnding,
	)
	if err != nil {
		return fmt.Errorf("failed to insert detail for timesheet %s: %w", detail.TimesheetID, err)
	}
	return nil
}

func (r *timesheetRepository) RecomputeTotals(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	// The inner sum and the outer update are both restricted to the supplied
	// IDs so an import run can never rewrite aggregates it did not touch.
	_, err := r.pool.Exec(
		ctx,
		`UPDATE weekly_timesheets ts
		 SET total_hours = tse.hours,
		     reg_hours = LEAST(tse.hours, 40),
		     ot_hours = GREATEST(tse.hours - 40, 0)
		 FROM (
		     SELECT timesheet_id, SUM(hours_worked) AS hours
		     FROM timesheet_entries
		     WHERE timesheet_id = ANY($1)
		     GROUP BY timesheet_id
		 ) tse
		 WHERE ts.id = tse.timesheet_id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("failed to recompute totals for %d timesheets: %w", len(ids), err)
	}
	return nil
}
