package core

// aggregate.go provides the cross-row aggregators.
//
// Each aggregator owns its own aggregation map, keyed by a grouping key
// built from field values, and lives for exactly one pass. Aggregators
// observe rows in physical order across all batches; unique and
// frequency detect violations as rows arrive, while the interval and
// cross-task aggregators need the whole group and resolve in finish.
//
// The earliest row of a group is the canonical original and is never
// flagged. Every later violating row gets its own error entry.

import (
	"sort"
	"strings"
	"time"
)

// errorSink collects cross-row errors. Secondary holds errors attached to
// rows of the externally supplied cross-task row set.
type errorSink struct {
	primary   []ValidationError
	secondary []ValidationError
}

type aggregator interface {
	observe(row Row, sink *errorSink)
	finish(sink *errorSink)
}

// groupKey joins the raw values of keys. It returns "" when any part is empty.
func groupKey(row Row, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := row.Values[k].Raw
		if v == "" {
			return ""
		}
		parts[i] = v
	}
	return strings.Join(parts, "|")
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

// ---------------------------------------------------------------------------
// unique
// ---------------------------------------------------------------------------

type uniqueAggregator struct {
	rule   UniqueRule
	header string
	seen   map[string]int // key -> first row
}

func newUniqueAggregator(rule UniqueRule, header string) *uniqueAggregator {
	return &uniqueAggregator{rule: rule, header: header, seen: make(map[string]int)}
}

func (a *uniqueAggregator) observe(row Row, sink *errorSink) {
	if len(a.rule.Fields) == 0 {
		return
	}
	key := groupKey(row, a.rule.Fields)
	if key == "" {
		return
	}
	first, dup := a.seen[key]
	if !dup {
		a.seen[key] = row.Number
		return
	}
	sink.primary = append(sink.primary, newFieldError(row, a.rule.Fields[0], a.header, UniqueDetail{
		Key:      key,
		FirstRow: first,
	}))
}

func (a *uniqueAggregator) finish(*errorSink) {}

// ---------------------------------------------------------------------------
// frequency
// ---------------------------------------------------------------------------

type frequencyAggregator struct {
	rule   FrequencyRule
	header string
	counts map[string]int // implementer|date -> rows seen
}

func newFrequencyAggregator(rule FrequencyRule, header string) *frequencyAggregator {
	return &frequencyAggregator{rule: rule, header: header, counts: make(map[string]int)}
}

func (a *frequencyAggregator) observe(row Row, sink *errorSink) {
	implementer := row.Values[a.rule.ImplementerField]
	date := row.Values[a.rule.DateField]
	if implementer.Empty() || !date.Parsed || date.Empty() {
		return
	}

	key := implementer.Raw + "|" + dayKey(date.Time)
	a.counts[key]++
	if count := a.counts[key]; count > a.rule.MaxPerDay {
		sink.primary = append(sink.primary, newFieldError(row, a.rule.ImplementerField, a.header, FrequencyDetail{
			Key:   key,
			Count: count,
			Limit: a.rule.MaxPerDay,
		}))
	}
}

func (a *frequencyAggregator) finish(*errorSink) {}

// ---------------------------------------------------------------------------
// dateInterval / sixMonthsInterval / medical-level dependent intervals
// ---------------------------------------------------------------------------

// visit is the slice of a row an interval group needs to keep.
type visit struct {
	sheet  string
	row    int
	column string
	value  string
	date   time.Time
	level  string
}

type intervalAggregator struct {
	rule   IntervalRule
	header string
	order  []string // entity keys in first-appearance order
	groups map[string][]visit
}

func newIntervalAggregator(rule IntervalRule, header string) *intervalAggregator {
	return &intervalAggregator{rule: rule, header: header, groups: make(map[string][]visit)}
}

func (a *intervalAggregator) observe(row Row, _ *errorSink) {
	entity := groupKey(row, a.rule.EntityFields)
	date := row.Values[a.rule.DateField]
	if entity == "" || !date.Parsed || date.Empty() {
		return
	}

	if _, ok := a.groups[entity]; !ok {
		a.order = append(a.order, entity)
	}
	a.groups[entity] = append(a.groups[entity], visit{
		sheet:  row.Sheet,
		row:    row.Number,
		column: row.Column(a.rule.DateField),
		value:  date.Raw,
		date:   truncateDay(date.Time),
		level:  strings.TrimSpace(row.Values[a.rule.LevelField].Raw),
	})
}

func (a *intervalAggregator) finish(sink *errorSink) {
	for _, entity := range a.order {
		visits := a.groups[entity]
		// Rows were appended in physical order, so a stable sort breaks date
		// ties by original row order.
		sort.SliceStable(visits, func(i, j int) bool {
			return visits[i].date.Before(visits[j].date)
		})

		for i := 1; i < len(visits); i++ {
			prev, cur := visits[i-1], visits[i]
			minDays, ok := a.threshold(cur)
			if !ok {
				continue
			}
			gap := daysBetween(prev.date, cur.date)
			if gap >= minDays {
				continue
			}
			d := IntervalDetail{
				Kind:        a.rule.Kind,
				Entity:      entity,
				PreviousRow: prev.row,
				GapDays:     gap,
				MinDays:     minDays,
			}
			sink.primary = append(sink.primary, ValidationError{
				Sheet:   cur.sheet,
				Row:     cur.row,
				Column:  cur.column,
				Field:   a.header,
				Message: describe(d),
				Value:   cur.value,
				Detail:  d,
			})
		}
	}
}

// threshold returns the minimum gap for a visit. Level-dependent rules
// skip visits whose level has no configured threshold.
func (a *intervalAggregator) threshold(v visit) (int, bool) {
	if a.rule.LevelField == "" {
		return a.rule.MinDays, true
	}
	days, ok := a.rule.LevelDays[v.level]
	return days, ok
}

// ---------------------------------------------------------------------------
// crossTaskValidation
// ---------------------------------------------------------------------------

type crossTaskAggregator struct {
	rule      CrossTaskRule
	header    string
	primary   map[string][]Row
	order     []string
	secondary []Row
	otherTmpl *TaskTemplate
}

func newCrossTaskAggregator(rule CrossTaskRule, header string, otherTmpl *TaskTemplate, secondary []Row) *crossTaskAggregator {
	return &crossTaskAggregator{
		rule:      rule,
		header:    header,
		primary:   make(map[string][]Row),
		secondary: secondary,
		otherTmpl: otherTmpl,
	}
}

func crossTaskKey(row Row, entityField, dateField string) string {
	entity := row.Values[entityField]
	date := row.Values[dateField]
	if entity.Empty() || !date.Parsed || date.Empty() {
		return ""
	}
	return entity.Raw + "|" + monthKey(date.Time)
}

func (a *crossTaskAggregator) observe(row Row, _ *errorSink) {
	key := crossTaskKey(row, a.rule.EntityField, a.rule.DateField)
	if key == "" {
		return
	}
	if _, ok := a.primary[key]; !ok {
		a.order = append(a.order, key)
	}
	a.primary[key] = append(a.primary[key], row)
}

func (a *crossTaskAggregator) finish(sink *errorSink) {
	if len(a.secondary) == 0 || len(a.primary) == 0 {
		return
	}

	otherEntity := firstNonEmpty(a.rule.OtherEntityField, a.rule.EntityField)
	otherDate := firstNonEmpty(a.rule.OtherDateField, a.rule.DateField)
	otherHeader := otherEntity
	if a.otherTmpl != nil {
		if spec, ok := a.otherTmpl.Field(otherEntity); ok {
			otherHeader = spec.Header
		}
	}
	otherTask := a.rule.OtherTask
	if otherTask == "" && a.otherTmpl != nil {
		otherTask = a.otherTmpl.Name
	}

	matched := make(map[string]bool)
	for _, row := range a.secondary {
		key := crossTaskKey(row, otherEntity, otherDate)
		if key == "" {
			continue
		}
		if _, ok := a.primary[key]; !ok {
			continue
		}
		matched[key] = true
		sink.secondary = append(sink.secondary, newFieldError(row, otherEntity, otherHeader, CrossTaskDetail{
			Key:       key,
			OtherTask: otherTask,
		}))
	}

	for _, key := range a.order {
		if !matched[key] {
			continue
		}
		for _, row := range a.primary[key] {
			sink.primary = append(sink.primary, newFieldError(row, a.rule.EntityField, a.header, CrossTaskDetail{
				Key:       key,
				OtherTask: otherTask,
			}))
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
