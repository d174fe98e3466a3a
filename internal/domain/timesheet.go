package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimesheetRow holds the raw cell text of one source row. Values are kept as
// strings until the validator parses them; a row lives only for the duration
// of one pipeline iteration.
type TimesheetRow struct {
	SheetRow            int
	EmployeeName        string
	EmployeeID          string
	WorkOrder           string
	CustomerName        string
	JobNumber           string
	StartTime           string
	StopTime            string
	TotalHours          string
	RegularHours        string
	OvertimeHours       string
	DoubleOvertimeHours string
}

// Empty reports whether every input cell of the row is blank.
func (r TimesheetRow) Empty() bool {
	return r.EmployeeName == "" && r.EmployeeID == "" && r.WorkOrder == "" &&
		r.CustomerName == "" && r.JobNumber == "" && r.StartTime == "" &&
		r.StopTime == "" && r.TotalHours == "" && r.RegularHours == "" &&
		r.OvertimeHours == "" && r.DoubleOvertimeHours == ""
}

// RowEntry is the parsed payload of a row that passed validation.
type RowEntry struct {
	EmployeeID          int
	JobID               int
	WorkOrder           string
	Start               time.Time
	Stop                time.Time
	RegularHours        float64
	OvertimeHours       float64
	DoubleOvertimeHours float64
}

// WeeklyAggregate is the per employee, per week timesheet record. Totals are
// zero at creation and are only mutated by the batch-end recompute. Crew info
// is captured once at creation and never re-synced.
type WeeklyAggregate struct {
	ID         string
	EmployeeID int
	WeekStart  time.Time
	WeekEnd    time.Time
	TotalHours float64
	RegHours   float64
	OTHours    float64
	CrewID     int
	CrewName   string
}

// NewWeeklyAggregate builds a zero-totals aggregate for an employee week.
func NewWeeklyAggregate(id string, employeeID int, weekStart, weekEnd time.Time, crewID int, crewName string) (WeeklyAggregate, error) {
	if len(id) != TimesheetIDLength {
		return WeeklyAggregate{}, fmt.Errorf("timesheet id %q must be %d characters", id, TimesheetIDLength)
	}
	if !weekEnd.Equal(weekStart.AddDate(0, 0, 6)) {
		return WeeklyAggregate{}, fmt.Errorf("week %s - %s does not span seven days",
			weekStart.Format("2006-01-02"), weekEnd.Format("2006-01-02"))
	}
	return WeeklyAggregate{
		ID:         id,
		EmployeeID: employeeID,
		WeekStart:  weekStart,
		WeekEnd:    weekEnd,
		CrewID:     crewID,
		CrewName:   crewName,
	}, nil
}

// DetailEntry is one immutable line of work against a weekly aggregate.
type DetailEntry struct {
	TimesheetID string
	JobID       int
	HoursWorked float64
	EstimateID  string
	WorkDate    time.Time
	WeekEnding  time.Time
}

// NewDetailEntry derives the combined hours and the composite estimate
// identifier from a validated row. Double overtime is folded into the
// combined hours here; it is not split back out at the aggregate level.
func NewDetailEntry(timesheetID string, entry RowEntry, weekEnding time.Time) DetailEntry {
	workDate := entry.Start
	workDate = time.Date(workDate.Year(), workDate.Month(), workDate.Day(), 0, 0, 0, 0, workDate.Location())
	return DetailEntry{
		TimesheetID: timesheetID,
		JobID:       entry.JobID,
		HoursWorked: entry.RegularHours + entry.OvertimeHours + entry.DoubleOvertimeHours,
		EstimateID:  fmt.Sprintf("%d-%s", entry.JobID, entry.WorkOrder),
		WorkDate:    workDate,
		WeekEnding:  weekEnding,
	}
}

// SplitWeeklyHours divides a weekly total into regular and overtime portions:
// regular is capped at 40, everything above 40 is overtime. The repository's
// recompute SQL applies the same rule.
func SplitWeeklyHours(total float64) (regular, overtime float64) {
	if total <= 40 {
		return total, 0
	}
	return 40, total - 40
}

// ImportLogEntry captures one failure that occurred during an import run.
type ImportLogEntry struct {
	ID           uuid.UUID `json:"id"`
	FileName     string    `json:"file_name"`
	RowNumber    *int      `json:"row_number,omitempty"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
