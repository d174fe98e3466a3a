package importer

import "fmt"

// Column is a 1-based spreadsheet column index.
type Column int

// Layout maps the semantic fields of a timesheet row to their column
// positions in the source spreadsheet.
type Layout struct {
	EmployeeName        Column
	EmployeeID          Column
	WorkOrder           Column
	CustomerName        Column
	JobNumber           Column
	StartTime           Column
	StopTime            Column
	TotalHours          Column // read but ignored; includes unpaid lunch
	RegularHours        Column
	OvertimeHours       Column
	DoubleOvertimeHours Column
	Status              Column // written
	Message             Column // written
}

// DefaultLayout is the fixed column arrangement produced by the field
// timesheet template.
func DefaultLayout() Layout {
	return Layout{
		EmployeeName:        1,
		EmployeeID:          2,
		WorkOrder:           3,
		CustomerName:        4,
		JobNumber:           5,
		StartTime:           6,
		StopTime:            7,
		TotalHours:          8,
		RegularHours:        9,
		OvertimeHours:       10,
		DoubleOvertimeHours: 11,
		Status:              12,
		Message:             13,
	}
}

func (l Layout) columns() []Column {
	return []Column{
		l.EmployeeName, l.EmployeeID, l.WorkOrder, l.CustomerName, l.JobNumber,
		l.StartTime, l.StopTime, l.TotalHours, l.RegularHours, l.OvertimeHours,
		l.DoubleOvertimeHours, l.Status, l.Message,
	}
}

// Validate checks the layout once at startup so the pipeline never has to
// guard individual cell accesses.
func (l Layout) Validate() error {
	seen := make(map[Column]struct{})
	for _, col := range l.columns() {
		if col < 1 {
			return fmt.Errorf("column index %d is not 1-based", col)
		}
		if _, dup := seen[col]; dup {
			return fmt.Errorf("column index %d assigned to more than one field", col)
		}
		seen[col] = struct{}{}
	}
	return nil
}
