package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/JonMunkholm/visitaudit/internal/core"
)

// ValidationError represents a single template problem with location context.
type ValidationError struct {
	Phase   string `json:"phase"` // structural, semantic, domain
	Path    string `json:"path"`  // location, e.g. "rules/frequency/0/date"
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// InvalidError reports every problem found in one template source.
type InvalidError struct {
	Source string
	Errors []*ValidationError
}

func (e *InvalidError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("invalid template %s: %s", e.Source, strings.Join(msgs, "; "))
}

// ValidateFile runs the three validation phases on a template file:
// strict decode, JSON Schema, then domain rules.
func ValidateFile(name string) (*TemplateFile, []*ValidationError) {
	tf, err := LoadFile(name)
	if err != nil {
		return nil, []*ValidationError{{Phase: "structural", Message: err.Error()}}
	}
	if errs := Validate(tf); len(errs) > 0 {
		return tf, errs
	}
	return tf, nil
}

// Validate checks a decoded template against the JSON Schema and the
// domain rules. Domain rules only run when the schema phase passes.
func Validate(tf *TemplateFile) []*ValidationError {
	if errs := validateSemantic(tf); len(errs) > 0 {
		return errs
	}
	return ValidateDomain(tf)
}

var (
	compileOnce    sync.Once
	compiledSchema *sjsonschema.Schema
	compileErr     error
)

func templateSchema() (*sjsonschema.Schema, error) {
	compileOnce.Do(func() {
		schemaJSON, err := GenerateJSONSchema()
		if err != nil {
			compileErr = fmt.Errorf("generate schema: %w", err)
			return
		}

		var schemaDoc interface{}
		if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
			compileErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}

		c := sjsonschema.NewCompiler()
		if err := c.AddResource("task-template-v1.json", schemaDoc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		compiledSchema, compileErr = c.Compile("task-template-v1.json")
	})
	return compiledSchema, compileErr
}

// validateSemantic validates the template against the JSON Schema.
func validateSemantic(tf *TemplateFile) []*ValidationError {
	sch, err := templateSchema()
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: err.Error()}}
	}

	data, err := json.Marshal(tf)
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("marshal for schema validation: %v", err)}}
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("unmarshal document: %v", err)}}
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []*ValidationError{{Phase: "semantic", Message: err.Error()}}
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:   "semantic",
				Path:    strings.Join(cause.InstanceLocation, "/"),
				Message: fmt.Sprintf("%v", cause.ErrorKind),
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain checks what the JSON Schema cannot express: unique field
// keys and headers, rule references to declared fields, and rule settings
// the engine would reject.
func ValidateDomain(tf *TemplateFile) []*ValidationError {
	var errs []*ValidationError
	add := func(p, format string, args ...any) {
		errs = append(errs, &ValidationError{Phase: "domain", Path: p, Message: fmt.Sprintf(format, args...)})
	}

	keys := make(map[string]FieldDef, len(tf.Fields))
	headers := make(map[string]bool, len(tf.Fields))
	for i, f := range tf.Fields {
		if _, dup := keys[f.Key]; dup {
			add(fmt.Sprintf("fields/%d/key", i), "duplicate field key %q", f.Key)
		}
		keys[f.Key] = f
		if headers[f.Header] {
			add(fmt.Sprintf("fields/%d/header", i), "duplicate column header %q", f.Header)
		}
		headers[f.Header] = true
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			add(fmt.Sprintf("fields/%d", i), "min %v is greater than max %v", *f.Min, *f.Max)
		}
		if (f.Min != nil || f.Max != nil) && f.Type != "number" {
			add(fmt.Sprintf("fields/%d", i), "min and max require type number")
		}
	}

	ref := func(p, key string) {
		if key == "" {
			return
		}
		if _, ok := keys[key]; !ok {
			add(p, "unknown field key %q", key)
		}
	}

	rules := tf.Rules
	if rules == nil {
		return errs
	}

	for i, r := range rules.Unique {
		for j, k := range r.Fields {
			ref(fmt.Sprintf("rules/unique/%d/fields/%d", i, j), k)
		}
	}
	for i, r := range rules.Frequency {
		ref(fmt.Sprintf("rules/frequency/%d/implementer", i), r.Implementer)
		ref(fmt.Sprintf("rules/frequency/%d/date", i), r.Date)
	}
	for i, r := range rules.Interval {
		p := fmt.Sprintf("rules/interval/%d", i)
		for j, k := range r.Entity {
			ref(fmt.Sprintf("%s/entity/%d", p, j), k)
		}
		ref(p+"/date", r.Date)
		ref(p+"/levelField", r.LevelField)
		if r.LevelField != "" && len(r.LevelDays) == 0 {
			add(p, "levelField requires levelDays")
		}
		if r.LevelField == "" && r.MinDays == 0 {
			add(p, "minDays must be set when levelField is empty")
		}
	}
	for i, r := range rules.TimeRange {
		p := fmt.Sprintf("rules/timeRange/%d", i)
		if r.Start == "" && r.End == "" {
			add(p, "start or end must be set")
		}
		ref(p+"/start", r.Start)
		ref(p+"/end", r.End)
		lo, okLo := core.ParseClockBound(r.Earliest)
		hi, okHi := core.ParseClockBound(r.Latest)
		if !okLo {
			add(p+"/earliest", "invalid clock time %q", r.Earliest)
		}
		if !okHi {
			add(p+"/latest", "invalid clock time %q", r.Latest)
		}
		if okLo && okHi && lo > hi {
			add(p, "earliest %s is after latest %s", r.Earliest, r.Latest)
		}
	}
	for i, r := range rules.Duration {
		p := fmt.Sprintf("rules/duration/%d", i)
		if r.Field == "" && (r.Start == "" || r.End == "") {
			add(p, "field or both start and end must be set")
		}
		ref(p+"/field", r.Field)
		ref(p+"/start", r.Start)
		ref(p+"/end", r.End)
	}
	for i, r := range rules.MedicalLevel {
		ref(fmt.Sprintf("rules/medicalLevel/%d/field", i), r.Field)
	}
	for i, r := range rules.ProhibitedContent {
		ref(fmt.Sprintf("rules/prohibitedContent/%d/field", i), r.Field)
	}
	for i, r := range rules.MaterialRequirement {
		ref(fmt.Sprintf("rules/materialRequirement/%d/field", i), r.Field)
	}
	for i, r := range rules.CrossTask {
		p := fmt.Sprintf("rules/crossTask/%d", i)
		if r.OtherTask == tf.Name {
			add(p+"/otherTask", "cross-task rule must name a different task")
		}
		ref(p+"/entity", r.Entity)
		ref(p+"/date", r.Date)
	}

	return errs
}
