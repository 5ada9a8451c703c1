package core

// validation.go provides the per-row validators.
//
// Per-row validators are pure functions of a single Row plus the template;
// they never read aggregation state. A template is compiled once into an
// ordered list of checks:
//  1. Field checks in template field order: required, dateFormat/format,
//     missing time of day, enum, pattern format, minValue and range
//  2. Rule checks: timeRange, duration, medicalLevel, prohibitedContent,
//     materialRequirement
//
// Each violated check emits exactly one error for the row, except timeRange,
// which checks the start and end fields independently.

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// rowCheck is one compiled per-row validator.
type rowCheck struct {
	field string // field key used to position recovered panics
	run   func(row Row, emit func(ValidationError))
}

// newFieldError builds a positioned error for a field of row.
func newFieldError(row Row, key, header string, d Detail) ValidationError {
	return ValidationError{
		Sheet:   row.Sheet,
		Row:     row.Number,
		Column:  row.Column(key),
		Field:   header,
		Message: describe(d),
		Value:   row.Values[key].Raw,
		Detail:  d,
	}
}

// compileRowChecks builds the per-row validators for a template.
func compileRowChecks(tmpl *TaskTemplate) ([]rowCheck, error) {
	var checks []rowCheck

	// Fields read as clock times must carry one.
	clockFields := make(map[string]bool)
	for _, rule := range tmpl.Rules.TimeRange {
		clockFields[rule.StartField] = true
		clockFields[rule.EndField] = true
	}
	for _, rule := range tmpl.Rules.Duration {
		clockFields[rule.StartField] = true
		clockFields[rule.EndField] = true
	}

	for _, spec := range tmpl.Fields {
		check, err := fieldCheck(spec, clockFields[spec.Key])
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}

	header := func(key string) string {
		if spec, ok := tmpl.Field(key); ok {
			return spec.Header
		}
		return key
	}

	for _, rule := range tmpl.Rules.TimeRange {
		check, err := timeRangeCheck(rule, header)
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	for _, rule := range tmpl.Rules.Duration {
		checks = append(checks, durationCheck(rule, header))
	}
	for _, rule := range tmpl.Rules.MedicalLevel {
		checks = append(checks, medicalLevelCheck(rule, header(rule.Field)))
	}
	for _, rule := range tmpl.Rules.ProhibitedContent {
		checks = append(checks, contentCheck(rule, header(rule.Field)))
	}
	for _, rule := range tmpl.Rules.MaterialRequirement {
		checks = append(checks, materialCheck(rule, header(rule.Field)))
	}

	return checks, nil
}

func fieldCheck(spec FieldSpec, needsClock bool) (rowCheck, error) {
	var pattern *regexp.Regexp
	if spec.Pattern != "" {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return rowCheck{}, fmt.Errorf("field %q: invalid pattern: %w", spec.Key, err)
		}
		pattern = re
	}

	return rowCheck{field: spec.Key, run: func(row Row, emit func(ValidationError)) {
		v, mapped := row.Values[spec.Key]
		if !mapped || v.Empty() {
			if spec.Required {
				emit(newFieldError(row, spec.Key, spec.Header, RequiredDetail{MissingColumn: !mapped}))
			}
			return
		}

		if !v.Parsed {
			if spec.Type.isTemporal() {
				emit(newFieldError(row, spec.Key, spec.Header, DateFormatDetail{Expected: spec.Type.String()}))
			} else {
				emit(newFieldError(row, spec.Key, spec.Header, FormatDetail{Expected: spec.Type.String()}))
			}
			return
		}

		if needsClock && v.DateOnly {
			emit(newFieldError(row, spec.Key, spec.Header, DateFormatDetail{Expected: spec.Type.String(), MissingClock: true}))
			return
		}

		if len(spec.EnumValues) > 0 && !matchesAny(v.Raw, spec.EnumValues) {
			emit(newFieldError(row, spec.Key, spec.Header, EnumDetail{Allowed: spec.EnumValues}))
			return
		}

		if pattern != nil && !pattern.MatchString(v.Raw) {
			emit(newFieldError(row, spec.Key, spec.Header, FormatDetail{Expected: spec.Pattern}))
			return
		}

		if spec.Type == FieldNumeric {
			if spec.Min != nil && v.Num < *spec.Min {
				emit(newFieldError(row, spec.Key, spec.Header, MinValueDetail{Min: *spec.Min, Actual: v.Num}))
				return
			}
			if spec.Max != nil && v.Num > *spec.Max {
				emit(newFieldError(row, spec.Key, spec.Header, RangeDetail{Max: *spec.Max, Actual: v.Num}))
			}
		}
	}}, nil
}

func timeRangeCheck(rule TimeRangeRule, header func(string) string) (rowCheck, error) {
	earliest, ok := ParseClockBound(rule.Earliest)
	if !ok {
		return rowCheck{}, fmt.Errorf("time range: invalid earliest bound %q", rule.Earliest)
	}
	latest, ok := ParseClockBound(rule.Latest)
	if !ok {
		return rowCheck{}, fmt.Errorf("time range: invalid latest bound %q", rule.Latest)
	}

	bounds := []struct {
		key   string
		bound string
	}{
		{rule.StartField, "start"},
		{rule.EndField, "end"},
	}

	return rowCheck{field: rule.StartField, run: func(row Row, emit func(ValidationError)) {
		for _, b := range bounds {
			if b.key == "" {
				continue
			}
			v, ok := row.Values[b.key]
			if !ok || !v.Parsed || v.Empty() || v.DateOnly {
				continue
			}
			t := ClockMinutes(v.Time)
			if t < earliest || t > latest {
				emit(newFieldError(row, b.key, header(b.key), TimeRangeDetail{
					Bound:    b.bound,
					Earliest: FormatClock(earliest),
					Latest:   FormatClock(latest),
				}))
			}
		}
	}}, nil
}

func durationCheck(rule DurationRule, header func(string) string) rowCheck {
	key := rule.Field
	if key == "" {
		key = rule.EndField
	}

	return rowCheck{field: key, run: func(row Row, emit func(ValidationError)) {
		minutes, ok := elapsedMinutes(row, rule)
		if !ok {
			return
		}
		if minutes < rule.MinMinutes {
			emit(newFieldError(row, key, header(key), DurationDetail{
				Minutes:    minutes,
				MinMinutes: rule.MinMinutes,
			}))
		}
	}}
}

// elapsedMinutes reads an explicit duration field or computes end - start.
func elapsedMinutes(row Row, rule DurationRule) (int, bool) {
	if rule.Field != "" {
		v, ok := row.Values[rule.Field]
		if !ok || !v.Parsed || v.Empty() {
			return 0, false
		}
		return int(math.Round(v.Num)), true
	}

	start, ok1 := row.Values[rule.StartField]
	end, ok2 := row.Values[rule.EndField]
	if !ok1 || !ok2 || !start.Parsed || !end.Parsed || start.Empty() || end.Empty() {
		return 0, false
	}
	if start.DateOnly || end.DateOnly {
		return 0, false
	}
	if start.Time.Year() > 0 && end.Time.Year() > 0 {
		return int(math.Round(end.Time.Sub(start.Time).Minutes())), true
	}
	return ClockMinutes(end.Time) - ClockMinutes(start.Time), true
}

func medicalLevelCheck(rule MedicalLevelRule, header string) rowCheck {
	return rowCheck{field: rule.Field, run: func(row Row, emit func(ValidationError)) {
		v := row.Values[rule.Field]
		if v.Empty() || !matchesAny(v.Raw, rule.Allowed) {
			emit(newFieldError(row, rule.Field, header, MedicalLevelDetail{Allowed: rule.Allowed}))
		}
	}}
}

func contentCheck(rule ContentRule, header string) rowCheck {
	return rowCheck{field: rule.Field, run: func(row Row, emit func(ValidationError)) {
		v := row.Values[rule.Field]
		if v.Empty() {
			return
		}
		text := strings.ToLower(v.Raw)
		for _, word := range rule.Words {
			if word != "" && strings.Contains(text, strings.ToLower(word)) {
				emit(newFieldError(row, rule.Field, header, ContentDetail{Word: word}))
				return
			}
		}
	}}
}

func materialCheck(rule MaterialRule, header string) rowCheck {
	return rowCheck{field: rule.Field, run: func(row Row, emit func(ValidationError)) {
		text := strings.ToLower(row.Values[rule.Field].Raw)

		var missing []string
		for _, kw := range rule.Keywords {
			if !strings.Contains(text, strings.ToLower(kw)) {
				missing = append(missing, kw)
			}
		}

		if len(missing) == 0 {
			return
		}
		if rule.RequireAll || len(missing) == len(rule.Keywords) {
			emit(newFieldError(row, rule.Field, header, MaterialDetail{Missing: missing}))
		}
	}}
}

func matchesAny(value string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return true
		}
	}
	return false
}
