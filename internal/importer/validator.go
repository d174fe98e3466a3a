package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poldata/tsimport/internal/domain"
	"github.com/poldata/tsimport/internal/repository"
)

// Row status messages written back to the source spreadsheet.
const (
	MsgBadEmployeeID    = "Bad employee ID"
	MsgBadDates         = "Bad date(s) or dates don't agree"
	MsgInvalidJob       = "Invalid job number"
	MsgInvalidWorkOrder = "Invalid work order"
	MsgBadHours         = "Bad hours"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006 3:04 PM",
	"01/02/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04 PM",
	"1/2/2006",
	"1/2/06 15:04",
	"1/2/06",
}

// RowError describes why a row failed and which cells are responsible.
type RowError struct {
	Message string
	Columns []Column
}

// RowValidator applies the ordered validation chain to one row.
type RowValidator struct {
	refs   repository.ReferenceRepository
	layout Layout
}

// NewRowValidator builds a validator for the given reference store and
// column layout.
func NewRowValidator(refs repository.ReferenceRepository, layout Layout) *RowValidator {
	return &RowValidator{refs: refs, layout: layout}
}

// Validate runs the rule chain, short-circuiting at the first failure. The
// returned RowError is nil for a valid row. Reference store failures resolve
// to a row failure rather than an error so one bad lookup cannot abort the
// batch.
func (v *RowValidator) Validate(ctx context.Context, row domain.TimesheetRow) (domain.RowEntry, *RowError) {
	var entry domain.RowEntry

	// 1. Employee ID must be numeric.
	employeeID, err := strconv.Atoi(strings.TrimSpace(row.EmployeeID))
	if err != nil {
		return entry, &RowError{Message: MsgBadEmployeeID, Columns: []Column{v.layout.EmployeeID}}
	}

	// 2. Start and stop must parse and fall on the same calendar date; a
	// shift never crosses midnight.
	start, validStart := parseTimestamp(row.StartTime)
	stop, validStop := parseTimestamp(row.StopTime)
	sameDay := true
	if validStart && validStop {
		sameDay = start.Year() == stop.Year() && start.YearDay() == stop.YearDay()
	}
	if !validStart || !validStop || !sameDay {
		var cols []Column
		if !validStart {
			cols = append(cols, v.layout.StartTime)
		}
		if !validStop {
			cols = append(cols, v.layout.StopTime)
		}
		if validStart && validStop && !sameDay {
			cols = append(cols, v.layout.StartTime, v.layout.StopTime)
		}
		return entry, &RowError{Message: MsgBadDates, Columns: cols}
	}

	// 3. Job number must be numeric and known.
	jobID, err := strconv.Atoi(strings.TrimSpace(row.JobNumber))
	if err != nil {
		return entry, &RowError{Message: MsgInvalidJob, Columns: []Column{v.layout.JobNumber}}
	}
	jobOK, err := v.refs.JobExists(ctx, jobID)
	if err != nil {
		return entry, &RowError{
			Message: fmt.Sprintf("job lookup failed: %v", err),
			Columns: []Column{v.layout.JobNumber},
		}
	}
	if !jobOK {
		return entry, &RowError{Message: MsgInvalidJob, Columns: []Column{v.layout.JobNumber}}
	}

	// 4. Work order must belong to the job.
	workOrder := strings.TrimSpace(row.WorkOrder)
	woOK, err := v.refs.WorkOrderExists(ctx, jobID, workOrder)
	if err != nil {
		return entry, &RowError{
			Message: fmt.Sprintf("work order lookup failed: %v", err),
			Columns: []Column{v.layout.WorkOrder},
		}
	}
	if !woOK {
		return entry, &RowError{Message: MsgInvalidWorkOrder, Columns: []Column{v.layout.WorkOrder}}
	}

	// 5. The three component hour fields must be non-negative numbers. The
	// total hours column is ignored: it includes an unpaid lunch deduction
	// that the components do not.
	regular, validReg := parseHours(row.RegularHours)
	overtime, validOT := parseHours(row.OvertimeHours)
	doubleOT, validDOT := parseHours(row.DoubleOvertimeHours)
	if !validReg || !validOT || !validDOT {
		var cols []Column
		if !validReg {
			cols = append(cols, v.layout.RegularHours)
		}
		if !validOT {
			cols = append(cols, v.layout.OvertimeHours)
		}
		if !validDOT {
			cols = append(cols, v.layout.DoubleOvertimeHours)
		}
		return entry, &RowError{Message: MsgBadHours, Columns: cols}
	}

	entry = domain.RowEntry{
		EmployeeID:          employeeID,
		JobID:               jobID,
		WorkOrder:           workOrder,
		Start:               start,
		Stop:                stop,
		RegularHours:        regular,
		OvertimeHours:       overtime,
		DoubleOvertimeHours: doubleOT,
	}
	return entry, nil
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseHours(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}
