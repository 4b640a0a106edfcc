// Package validation evaluates a value snapshot against a category's field
// definitions. It is pure: no I/O, no clock, no shared state.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"collecta/internal/catalog"
	id "collecta/pkg/domain"
)

const minPhoneDigits = 7

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-]{7,20}$`)
)

// Validate checks values against every field of cat.
//
// Every field gets its own required and type checks. A dependency only adds
// a required check while its condition holds on the parent's raw value and
// the parent's own dependency, if any, holds too. Each field yields at most
// one error and a required error wins over any type error.
func Validate(cat *catalog.Category, values map[id.FieldID]string) Result {
	triggered := triggeredDependencies(cat, values)
	var res Result
	for _, f := range cat.Fields {
		raw := values[f.ID]
		if isEmpty(raw) {
			if f.Required || (f.DependsOn != nil && f.DependsOn.Required && triggered[f.ID]) {
				res.Errors = append(res.Errors, newIssue(f, SeverityError, "is required"))
			}
			continue
		}
		if msg := checkKind(f.Kind, strings.TrimSpace(raw)); msg != "" {
			res.Errors = append(res.Errors, newIssue(f, SeverityError, msg))
			continue
		}
		if msg := warnKind(f.Kind, strings.TrimSpace(raw)); msg != "" {
			res.Warnings = append(res.Warnings, newIssue(f, SeverityWarning, msg))
		}
	}
	return res
}

// triggeredDependencies resolves dependency conditions in topological order
// so a parent's state is known before its dependents. Fields without a
// dependency count as triggered so chains can start from them.
func triggeredDependencies(cat *catalog.Category, values map[id.FieldID]string) map[id.FieldID]bool {
	triggered := make(map[id.FieldID]bool, len(cat.Fields))
	for _, f := range cat.EvaluationOrder() {
		dep := f.DependsOn
		if dep == nil {
			triggered[f.ID] = true
			continue
		}
		triggered[f.ID] = triggered[dep.FieldID] && conditionHolds(dep, values[dep.FieldID])
	}
	return triggered
}

func isEmpty(raw string) bool {
	return strings.TrimSpace(raw) == ""
}

// conditionHolds compares the parent's raw value. Ordering conditions compare
// numerically and are false when the parent is not a number.
func conditionHolds(dep *catalog.Dependency, parentRaw string) bool {
	parent := strings.TrimSpace(parentRaw)
	switch dep.Condition {
	case catalog.ConditionEquals:
		return parent == dep.Value
	case catalog.ConditionNotEquals:
		return parent != dep.Value
	case catalog.ConditionGreaterThan, catalog.ConditionLessThan:
		pv, ok := parseNumber(parent)
		if !ok {
			return false
		}
		cv, ok := parseNumber(dep.Value)
		if !ok {
			return false
		}
		if dep.Condition == catalog.ConditionGreaterThan {
			return pv > cv
		}
		return pv < cv
	}
	return false
}

func checkKind(kind catalog.Kind, v string) string {
	switch k := kind.(type) {
	case catalog.TextKind:
		n := utf8.RuneCountInString(v)
		if k.MinLength != nil && n < *k.MinLength {
			return fmt.Sprintf("must be at least %d characters", *k.MinLength)
		}
		if k.MaxLength != nil && n > *k.MaxLength {
			return fmt.Sprintf("must be at most %d characters", *k.MaxLength)
		}
		if k.Pattern != nil && !k.Pattern.MatchString(v) {
			return "has an invalid format"
		}
	case catalog.NumberKind:
		n, ok := parseNumber(v)
		if !ok {
			return "must be a number"
		}
		if k.Integer && n != math.Trunc(n) {
			return "must be a whole number"
		}
		if k.Min != nil && n < *k.Min {
			return "must be at least " + formatNumber(*k.Min)
		}
		if k.Max != nil && n > *k.Max {
			return "must be at most " + formatNumber(*k.Max)
		}
	case catalog.DateKind:
		d, err := time.Parse(catalog.DateLayout, v)
		if err != nil {
			return "must be a date in YYYY-MM-DD format"
		}
		if k.MinDate != nil && d.Before(*k.MinDate) {
			return "must be on or after " + k.MinDate.Format(catalog.DateLayout)
		}
		if k.MaxDate != nil && d.After(*k.MaxDate) {
			return "must be on or before " + k.MaxDate.Format(catalog.DateLayout)
		}
	case catalog.SelectKind:
		if !slices.Contains(k.Options, v) {
			return "must be one of: " + strings.Join(k.Options, ", ")
		}
	case catalog.EmailKind:
		if !emailPattern.MatchString(v) {
			return "must be a valid email address"
		}
	case catalog.PhoneKind:
		if !phonePattern.MatchString(v) || countDigits(v) < minPhoneDigits {
			return "must be a valid phone number"
		}
	default:
		return fmt.Sprintf("has unsupported type %T", kind)
	}
	return ""
}

func warnKind(kind catalog.Kind, v string) string {
	k, ok := kind.(catalog.NumberKind)
	if !ok || k.Warning == nil {
		return ""
	}
	n, ok := parseNumber(v)
	if !ok || !k.Warning.Contains(n) {
		return ""
	}
	if k.Warning.Message != "" {
		return k.Warning.Message
	}
	return "value is unusual, please double-check"
}

func parseNumber(v string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func countDigits(v string) int {
	n := 0
	for _, r := range v {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
