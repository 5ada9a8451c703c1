package schema

import (
	"fmt"

	"github.com/JonMunkholm/visitaudit/internal/core"
)

// ToTemplate converts a validated template file to the engine's task template.
func (tf *TemplateFile) ToTemplate() (*core.TaskTemplate, error) {
	tmpl := &core.TaskTemplate{
		Name:  tf.Name,
		Group: tf.Group,
		Label: tf.Label,
	}
	if tmpl.Label == "" {
		tmpl.Label = tf.Name
	}

	for _, f := range tf.Fields {
		ft, err := core.ParseFieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		if ft == core.FieldText && len(f.Enum) > 0 {
			ft = core.FieldEnum
		}
		tmpl.Fields = append(tmpl.Fields, core.FieldSpec{
			Header:     f.Header,
			Key:        f.Key,
			Type:       ft,
			Required:   f.Required,
			EnumValues: f.Enum,
			Pattern:    f.Pattern,
			Min:        f.Min,
			Max:        f.Max,
		})
	}

	if tf.Rules == nil {
		return tmpl, nil
	}

	rs := &tmpl.Rules
	for _, r := range tf.Rules.Unique {
		rs.Unique = append(rs.Unique, core.UniqueRule{Fields: r.Fields})
	}
	for _, r := range tf.Rules.Frequency {
		rs.Frequency = append(rs.Frequency, core.FrequencyRule{
			ImplementerField: r.Implementer,
			DateField:        r.Date,
			MaxPerDay:        r.MaxPerDay,
		})
	}
	for _, r := range tf.Rules.Interval {
		kind, err := intervalKind(r.Kind)
		if err != nil {
			return nil, err
		}
		rs.Interval = append(rs.Interval, core.IntervalRule{
			Kind:         kind,
			EntityFields: r.Entity,
			DateField:    r.Date,
			MinDays:      r.MinDays,
			LevelField:   r.LevelField,
			LevelDays:    r.LevelDays,
		})
	}
	for _, r := range tf.Rules.TimeRange {
		rs.TimeRange = append(rs.TimeRange, core.TimeRangeRule{
			StartField: r.Start,
			EndField:   r.End,
			Earliest:   r.Earliest,
			Latest:     r.Latest,
		})
	}
	for _, r := range tf.Rules.Duration {
		rs.Duration = append(rs.Duration, core.DurationRule{
			Field:      r.Field,
			StartField: r.Start,
			EndField:   r.End,
			MinMinutes: r.MinMinutes,
		})
	}
	for _, r := range tf.Rules.MedicalLevel {
		rs.MedicalLevel = append(rs.MedicalLevel, core.MedicalLevelRule{Field: r.Field, Allowed: r.Allowed})
	}
	for _, r := range tf.Rules.ProhibitedContent {
		rs.ProhibitedContent = append(rs.ProhibitedContent, core.ContentRule{Field: r.Field, Words: r.Words})
	}
	for _, r := range tf.Rules.MaterialRequirement {
		rs.MaterialRequirement = append(rs.MaterialRequirement, core.MaterialRule{
			Field:      r.Field,
			Keywords:   r.Keywords,
			RequireAll: r.RequireAll,
		})
	}
	for _, r := range tf.Rules.CrossTask {
		rs.CrossTask = append(rs.CrossTask, core.CrossTaskRule{
			OtherTask:        r.OtherTask,
			EntityField:      r.Entity,
			DateField:        r.Date,
			OtherEntityField: r.OtherEntity,
			OtherDateField:   r.OtherDate,
		})
	}

	return tmpl, nil
}

func intervalKind(s string) (core.ErrorType, error) {
	switch core.ErrorType(s) {
	case "", core.ErrorDateInterval:
		return core.ErrorDateInterval, nil
	case core.ErrorSixMonthsInterval:
		return core.ErrorSixMonthsInterval, nil
	default:
		return "", fmt.Errorf("unknown interval kind %q", s)
	}
}

// Templates converts loaded sources to task templates in source order.
func Templates(sources []Source) ([]*core.TaskTemplate, error) {
	out := make([]*core.TaskTemplate, 0, len(sources))
	for _, src := range sources {
		tmpl, err := src.Template.ToTemplate()
		if err != nil {
			return nil, fmt.Errorf("invalid template %s: %w", src.Path, err)
		}
		out = append(out, tmpl)
	}
	return out, nil
}
