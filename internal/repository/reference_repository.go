package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type referenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository wires a reference repository backed by pgxpool.
func NewReferenceRepository(pool *pgxpool.Pool) ReferenceRepository {
	return &referenceRepository{pool: pool}
}

func (r *referenceRepository) JobExists(ctx context.Context, jobID int) (bool, error) {
	var count int
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(job_id) FROM jobs WHERE job_id = $1`,
		jobID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to validate job %d: %w", jobID, err)
	}
	return count > 0, nil
}

func (r *referenceRepository) WorkOrderExists(ctx context.Context, jobID int, workOrder string) (bool, error) {
	var count int
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM work_orders WHERE job_id = $1 AND work_order = $2`,
		jobID,
		workOrder,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to validate work order %q for job %d: %w", workOrder, jobID, err)
	}
	return count > 0, nil
}

func (r *referenceRepository) GetCrew(ctx context.Context, employeeID int) (int, string, error) {
	var (
		crewID   int
		crewName string
	)
	err := r.pool.QueryRow(
		ctx,
		`SELECT c.crew_id, c.crew_name
		 FROM crew_members cm
		 JOIN crews c ON c.crew_id = cm.crew_id
		 WHERE cm.employee_id = $1`,
		employeeID,
	).Scan(&crewID, &crewName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No crew membership; the aggregate is created without one.
			return 0, "", nil
		}
		return 0, "", fmt.Errorf("failed to get crew for employee %d: %w", employeeID, err)
	}
	return crewID, crewName, nil
}
