package domain

import "time"

// WeekBounds returns the start and end dates of the payroll week containing
// workDate. The end date is the next occurrence of weekEnding on or after
// workDate; if workDate already falls on weekEnding, that date is the end.
// The start date is always six days before the end. Both dates are normalized
// to midnight in workDate's location.
func WeekBounds(workDate time.Time, weekEnding time.Weekday) (time.Time, time.Time) {
	day := time.Date(workDate.Year(), workDate.Month(), workDate.Day(), 0, 0, 0, 0, workDate.Location())
	daysToEnd := (int(weekEnding) - int(day.Weekday()) + 7) % 7
	end := day.AddDate(0, 0, daysToEnd)
	start := end.AddDate(0, 0, -6)
	return start, end
}

// MonthCode derives the four character yyMM namespace used to scope
// timesheet identifiers to a calendar month.
func MonthCode(d time.Time) string {
	return d.Format("0601")
}
