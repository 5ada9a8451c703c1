package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/visitaudit/internal/imaging"
)

// FieldType represents the expected data type for a spreadsheet field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldTime
	FieldDateTime
	FieldNumeric
)

var fieldTypeNames = map[FieldType]string{
	FieldText:     "text",
	FieldEnum:     "enum",
	FieldDate:     "date",
	FieldTime:     "time",
	FieldDateTime: "datetime",
	FieldNumeric:  "number",
}

// String returns the template spelling of the field type.
func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "value"
}

// ParseFieldType converts a template spelling ("date", "number", ...) to a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FieldText, nil
	}
	for t, name := range fieldTypeNames {
		if name == s {
			return t, nil
		}
	}
	return FieldText, fmt.Errorf("unknown field type %q", s)
}

// isTemporal reports whether values of this type are parsed as dates or clock times.
func (t FieldType) isTemporal() bool {
	return t == FieldDate || t == FieldTime || t == FieldDateTime
}

// FieldSpec defines validation rules for a single spreadsheet column.
type FieldSpec struct {
	Header     string    // Column header text (must match the sheet exactly)
	Key        string    // Internal field key used by rules
	Type       FieldType // Expected data type
	Required   bool      // Cell must be non-empty
	EnumValues []string  // Valid values for FieldEnum
	Pattern    string    // Optional regular expression the value must match
	Min        *float64  // Optional lower bound for FieldNumeric
	Max        *float64  // Optional upper bound for FieldNumeric
}

// TaskTemplate is the declarative description of one task type: which
// columns it expects and which generic rules apply with which thresholds.
// A template is immutable for the duration of a validation pass.
type TaskTemplate struct {
	Name   string // Task name, e.g. "药店拜访"
	Group  string // Display grouping
	Label  string // Display name
	Fields []FieldSpec
	Rules  RuleSet
}

// Field returns the spec for a field key.
func (t *TaskTemplate) Field(key string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Headers returns the expected column headers in template order.
func (t *TaskTemplate) Headers() []string {
	out := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Header
	}
	return out
}

// RuleSet lists the generic rule instances a template enables. The engine
// contains no task-name conditionals; everything task-specific lives here.
type RuleSet struct {
	Unique              []UniqueRule
	Frequency           []FrequencyRule
	Interval            []IntervalRule
	TimeRange           []TimeRangeRule
	Duration            []DurationRule
	MedicalLevel        []MedicalLevelRule
	ProhibitedContent   []ContentRule
	MaterialRequirement []MaterialRule
	CrossTask           []CrossTaskRule
}

// UniqueRule requires the combination of Fields to be unique across the sheet.
type UniqueRule struct {
	Fields []string
}

// FrequencyRule caps the number of rows per implementer per day.
type FrequencyRule struct {
	ImplementerField string
	DateField        string
	MaxPerDay        int
}

// IntervalRule requires a minimum number of days between visits to the
// same entity. When LevelField is set, the threshold is looked up in
// LevelDays by the row's level value instead of using MinDays.
type IntervalRule struct {
	Kind         ErrorType // ErrDateInterval or ErrSixMonthsInterval
	EntityFields []string
	DateField    string
	MinDays      int
	LevelField   string
	LevelDays    map[string]int
}

// TimeRangeRule bounds time-of-day fields to [Earliest, Latest] inclusive.
// Bounds are written "HH:MM".
type TimeRangeRule struct {
	StartField string
	EndField   string
	Earliest   string
	Latest     string
}

// DurationRule requires at least MinMinutes elapsed, taken from Field when
// set, otherwise from EndField minus StartField.
type DurationRule struct {
	Field      string
	StartField string
	EndField   string
	MinMinutes int
}

// MedicalLevelRule restricts Field to a fixed set of institution levels.
type MedicalLevelRule struct {
	Field   string
	Allowed []string
}

// ContentRule rejects Field values containing any of Words.
type ContentRule struct {
	Field string
	Words []string
}

// MaterialRule requires Field to mention the listed materials. With
// RequireAll every keyword must appear, otherwise any one is enough.
type MaterialRule struct {
	Field      string
	Keywords   []string
	RequireAll bool
}

// CrossTaskRule flags entity+month keys that appear both in this task's
// rows and in a secondary row set from OtherTask. Other* field keys
// default to the primary keys when empty.
type CrossTaskRule struct {
	OtherTask        string
	EntityField      string
	DateField        string
	OtherEntityField string
	OtherDateField   string
}

// Value is one typed cell value.
type Value struct {
	Raw    string    // Cleaned cell text (raw serial for numeric cells)
	Num    float64   // Parsed number (FieldNumeric)
	Time   time.Time // Parsed date/time (temporal types; clock-only values use year 0)
	Parsed bool      // True when Raw is non-empty and parsed as the field's type

	DateOnly bool // Datetime value written without a time of day
}

// Empty reports whether the cell had no content.
func (v Value) Empty() bool {
	return v.Raw == ""
}

// Row is one data record extracted from a sheet. Rows are read-only once built.
type Row struct {
	Number int               // Physical 1-based sheet row
	Sheet  string            // Sheet name
	Values map[string]Value  // Field key -> typed value (absent when the header was not found)
	Cells  map[string]string // Field key -> column letter
}

// Column returns the column letter of a field, or "-" when the field's
// header was not present.
func (r Row) Column(key string) string {
	if col, ok := r.Cells[key]; ok {
		return col
	}
	return "-"
}

// Summary holds the row and error counts of a validation result.
type Summary struct {
	TotalRows  int `json:"totalRows"`
	ValidRows  int `json:"validRows"`
	ErrorCount int `json:"errorCount"`
}

// ValidationResult is the outcome of one validation pass.
type ValidationResult struct {
	RunID           string            `json:"runId,omitempty"`
	Task            string            `json:"task"`
	Sheet           string            `json:"sheet"`
	IsValid         bool              `json:"isValid"`
	Incomplete      bool              `json:"incomplete,omitempty"`
	Errors          []ValidationError `json:"errors"`
	Summary         Summary           `json:"summary"`
	ImageValidation *imaging.Report   `json:"imageValidation,omitempty"`
	Duration        time.Duration     `json:"-"`
}

// RunPhase indicates the current stage of an asynchronous validation run.
type RunPhase string

const (
	PhaseStarting   RunPhase = "starting"
	PhaseReading    RunPhase = "reading"
	PhaseValidating RunPhase = "validating"
	PhaseComplete   RunPhase = "complete"
	PhaseFailed     RunPhase = "failed"
	PhaseCancelled  RunPhase = "cancelled"
)

// RunProgress represents the current state of a validation run.
type RunProgress struct {
	RunID         string   `json:"runId"`
	Task          string   `json:"task"`
	Phase         RunPhase `json:"phase"`
	FileName      string   `json:"fileName,omitempty"`
	RowsProcessed int      `json:"rowsProcessed"`
	ErrorsFound   int      `json:"errorsFound"`
	Error         string   `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
}
