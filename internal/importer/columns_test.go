package importer

import "testing"

func TestDefaultLayoutIsValid(t *testing.T) {
	if err := DefaultLayout().Validate(); err != nil {
		t.Fatalf("default layout invalid: %v", err)
	}
}

func TestLayoutRejectsDuplicateColumns(t *testing.T) {
	layout := DefaultLayout()
	layout.Message = layout.Status
	if err := layout.Validate(); err == nil {
		t.Fatalf("expected duplicate column rejected")
	}
}

func TestLayoutRejectsZeroColumn(t *testing.T) {
	layout := DefaultLayout()
	layout.EmployeeName = 0
	if err := layout.Validate(); err == nil {
		t.Fatalf("expected zero column rejected")
	}
}
