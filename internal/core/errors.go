package core

// errors.go defines the closed set of validation error kinds.
//
// Each ValidationError carries a Detail variant specific to its kind. The
// Detail interface is sealed (unexported marker method), so the set of
// variants is fixed to this file and the errorType reported to consumers
// is always derived from the variant rather than set independently.

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorType is the errorType vocabulary surfaced to consumers.
type ErrorType string

const (
	ErrorRequired            ErrorType = "required"
	ErrorFormat              ErrorType = "format"
	ErrorEnum                ErrorType = "enum"
	ErrorRange               ErrorType = "range"
	ErrorMinValue            ErrorType = "minValue"
	ErrorUnique              ErrorType = "unique"
	ErrorFrequency           ErrorType = "frequency"
	ErrorDateInterval        ErrorType = "dateInterval"
	ErrorSixMonthsInterval   ErrorType = "sixMonthsInterval"
	ErrorTimeRange           ErrorType = "timeRange"
	ErrorDuration            ErrorType = "duration"
	ErrorDateFormat          ErrorType = "dateFormat"
	ErrorMedicalLevel        ErrorType = "medicalLevel"
	ErrorProhibitedContent   ErrorType = "prohibitedContent"
	ErrorMaterialRequirement ErrorType = "materialRequirement"
	ErrorCrossTask           ErrorType = "crossTaskValidation"
	ErrorStructure           ErrorType = "structure"
)

// Detail is the kind-specific payload of a ValidationError.
type Detail interface {
	Type() ErrorType
	sealed()
}

type RequiredDetail struct {
	MissingColumn bool `json:"missingColumn,omitempty"`
}

type FormatDetail struct {
	Expected string `json:"expected"`
}

type EnumDetail struct {
	Allowed []string `json:"allowed"`
}

type RangeDetail struct {
	Max    float64 `json:"max"`
	Actual float64 `json:"actual"`
}

type MinValueDetail struct {
	Min    float64 `json:"min"`
	Actual float64 `json:"actual"`
}

type DateFormatDetail struct {
	Expected     string `json:"expected"`
	MissingClock bool   `json:"missingClock,omitempty"`
}

type UniqueDetail struct {
	Key      string `json:"key"`
	FirstRow int    `json:"firstRow"`
}

type FrequencyDetail struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	Limit int    `json:"limit"`
}

// IntervalDetail serves both dateInterval and sixMonthsInterval.
type IntervalDetail struct {
	Kind        ErrorType `json:"-"`
	Entity      string    `json:"entity"`
	PreviousRow int       `json:"previousRow"`
	GapDays     int       `json:"gapDays"`
	MinDays     int       `json:"minDays"`
}

type TimeRangeDetail struct {
	Bound    string `json:"bound"` // "start" or "end"
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}

type DurationDetail struct {
	Minutes    int `json:"minutes"`
	MinMinutes int `json:"minMinutes"`
}

type MedicalLevelDetail struct {
	Allowed []string `json:"allowed"`
}

type ContentDetail struct {
	Word string `json:"word"`
}

type MaterialDetail struct {
	Missing []string `json:"missing"`
}

type CrossTaskDetail struct {
	Key       string `json:"key"`
	OtherTask string `json:"otherTask"`
}

type StructureDetail struct {
	Cause string `json:"cause"`
}

func (RequiredDetail) Type() ErrorType      { return ErrorRequired }
func (FormatDetail) Type() ErrorType        { return ErrorFormat }
func (EnumDetail) Type() ErrorType          { return ErrorEnum }
func (RangeDetail) Type() ErrorType         { return ErrorRange }
func (MinValueDetail) Type() ErrorType      { return ErrorMinValue }
func (DateFormatDetail) Type() ErrorType    { return ErrorDateFormat }
func (UniqueDetail) Type() ErrorType        { return ErrorUnique }
func (FrequencyDetail) Type() ErrorType     { return ErrorFrequency }
func (TimeRangeDetail) Type() ErrorType     { return ErrorTimeRange }
func (DurationDetail) Type() ErrorType      { return ErrorDuration }
func (MedicalLevelDetail) Type() ErrorType  { return ErrorMedicalLevel }
func (ContentDetail) Type() ErrorType       { return ErrorProhibitedContent }
func (MaterialDetail) Type() ErrorType      { return ErrorMaterialRequirement }
func (CrossTaskDetail) Type() ErrorType     { return ErrorCrossTask }
func (StructureDetail) Type() ErrorType     { return ErrorStructure }

func (d IntervalDetail) Type() ErrorType {
	if d.Kind == ErrorSixMonthsInterval {
		return ErrorSixMonthsInterval
	}
	return ErrorDateInterval
}

func (RequiredDetail) sealed()     {}
func (FormatDetail) sealed()       {}
func (EnumDetail) sealed()         {}
func (RangeDetail) sealed()        {}
func (MinValueDetail) sealed()     {}
func (DateFormatDetail) sealed()   {}
func (UniqueDetail) sealed()       {}
func (FrequencyDetail) sealed()    {}
func (IntervalDetail) sealed()     {}
func (TimeRangeDetail) sealed()    {}
func (DurationDetail) sealed()     {}
func (MedicalLevelDetail) sealed() {}
func (ContentDetail) sealed()      {}
func (MaterialDetail) sealed()     {}
func (CrossTaskDetail) sealed()    {}
func (StructureDetail) sealed()    {}

// ValidationError is one positioned finding. Row is the physical 1-based
// sheet row and Column a column letter; sheet-level structural errors use
// row 0 and column "-".
type ValidationError struct {
	Sheet   string
	Row     int
	Column  string
	Field   string // Column header of the offending field
	Message string
	Value   string
	Detail  Detail
}

// Type returns the errorType of the finding.
func (e ValidationError) Type() ErrorType {
	if e.Detail == nil {
		return ErrorStructure
	}
	return e.Detail.Type()
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s!%s%d %s: %s", e.Sheet, e.Column, e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("%s!%s%d: %s", e.Sheet, e.Column, e.Row, e.Message)
}

// MarshalJSON flattens the finding with its errorType and detail payload.
func (e ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Sheet     string    `json:"sheet"`
		Row       int       `json:"row"`
		Column    string    `json:"column"`
		Field     string    `json:"field"`
		ErrorType ErrorType `json:"errorType"`
		Message   string    `json:"message"`
		Value     string    `json:"value"`
		Detail    Detail    `json:"detail,omitempty"`
	}{
		Sheet:     e.Sheet,
		Row:       e.Row,
		Column:    e.Column,
		Field:     e.Field,
		ErrorType: e.Type(),
		Message:   e.Message,
		Value:     e.Value,
		Detail:    e.Detail,
	})
}

// describe renders the default message for a detail.
func describe(d Detail) string {
	switch v := d.(type) {
	case RequiredDetail:
		if v.MissingColumn {
			return "required column is missing from the sheet"
		}
		return "required field is empty"
	case FormatDetail:
		return fmt.Sprintf("invalid format (expected %s)", v.Expected)
	case EnumDetail:
		return fmt.Sprintf("value must be one of: %s", strings.Join(v.Allowed, ", "))
	case RangeDetail:
		return fmt.Sprintf("value %g exceeds maximum %g", v.Actual, v.Max)
	case MinValueDetail:
		return fmt.Sprintf("value %g is below minimum %g", v.Actual, v.Min)
	case DateFormatDetail:
		if v.MissingClock {
			return fmt.Sprintf("missing time of day, expected a %s", v.Expected)
		}
		return fmt.Sprintf("invalid %s format", v.Expected)
	case UniqueDetail:
		return fmt.Sprintf("duplicate value, first seen on row %d", v.FirstRow)
	case FrequencyDetail:
		return fmt.Sprintf("%d records for %s exceeds the daily limit of %d", v.Count, v.Key, v.Limit)
	case IntervalDetail:
		return fmt.Sprintf("only %d days after the visit on row %d (minimum %d days)", v.GapDays, v.PreviousRow, v.MinDays)
	case TimeRangeDetail:
		return fmt.Sprintf("%s time must be between %s and %s", v.Bound, v.Earliest, v.Latest)
	case DurationDetail:
		return fmt.Sprintf("duration %d minutes is shorter than %d minutes", v.Minutes, v.MinMinutes)
	case MedicalLevelDetail:
		return fmt.Sprintf("medical level must be one of: %s", strings.Join(v.Allowed, ", "))
	case ContentDetail:
		return fmt.Sprintf("contains prohibited content %q", v.Word)
	case MaterialDetail:
		return fmt.Sprintf("missing required material: %s", strings.Join(v.Missing, ", "))
	case CrossTaskDetail:
		return fmt.Sprintf("%s also recorded under task %s", v.Key, v.OtherTask)
	case StructureDetail:
		return v.Cause
	default:
		return "invalid value"
	}
}

// ErrSheetNotFound is matched (via errors.Is) by every *SheetNotFoundError.
var ErrSheetNotFound = errors.New("sheet not found")

// SheetNotFoundError is the one fatal condition surfaced to callers as an
// error so the host can prompt for a different sheet.
type SheetNotFoundError struct {
	Sheet     string
	Available []string
}

func (e *SheetNotFoundError) Error() string {
	return fmt.Sprintf("sheet not found: %q (available: %s)", e.Sheet, strings.Join(e.Available, ", "))
}

func (e *SheetNotFoundError) Is(target error) bool {
	return target == ErrSheetNotFound
}

// StructuralError reports a sheet the engine cannot proceed past: no
// header row, no data rows, or an unreadable container.
type StructuralError struct {
	Sheet  string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structure error in sheet %q: %s", e.Sheet, e.Reason)
}

// asValidationError converts a structural failure into the single
// sheet-level error reported in a result.
func (e *StructuralError) asValidationError() ValidationError {
	d := StructureDetail{Cause: e.Reason}
	return ValidationError{
		Sheet:   e.Sheet,
		Row:     0,
		Column:  "-",
		Message: describe(d),
		Detail:  d,
	}
}
