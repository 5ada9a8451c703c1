package core

import (
	"time"

	"github.com/JonMunkholm/visitaudit/internal/imaging"
)

// tabularOutcome is what the tabular pass hands to the Result Aggregator.
type tabularOutcome struct {
	Sheet      string
	Errors     []ValidationError
	TotalRows  int
	Flagged    int
	Structural *StructuralError
	Incomplete bool
}

// buildResult merges the tabular outcome and the image report into one
// ValidationResult.
func buildResult(task string, tab tabularOutcome, images *imaging.Report, elapsed time.Duration) *ValidationResult {
	errs := tab.Errors
	if tab.Structural != nil {
		if tab.Structural.Sheet == "" {
			tab.Structural.Sheet = tab.Sheet
		}
		errs = append(errs, tab.Structural.asValidationError())
	}
	if errs == nil {
		errs = []ValidationError{}
	}

	valid := tab.TotalRows - tab.Flagged
	if valid < 0 {
		valid = 0
	}

	return &ValidationResult{
		Task:       task,
		Sheet:      tab.Sheet,
		IsValid:    len(errs) == 0 && tab.Structural == nil && !tab.Incomplete,
		Incomplete: tab.Incomplete,
		Errors:     errs,
		Summary: Summary{
			TotalRows:  tab.TotalRows,
			ValidRows:  valid,
			ErrorCount: len(errs),
		},
		ImageValidation: images,
		Duration:        elapsed,
	}
}
