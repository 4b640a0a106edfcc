package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	id "collecta/pkg/domain"
)

// DateLayout is the wire format for date fields and date-only deadlines.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidCatalog marks a catalog file that decodes but breaks a structural rule.
	ErrInvalidCatalog = errors.New("catalog: invalid definition")
	// ErrDependencyCycle marks a dependsOn chain that loops back on itself.
	ErrDependencyCycle = errors.New("catalog: dependency cycle")
)

type fileDoc struct {
	Categories []categoryDoc `yaml:"categories"`
}

type categoryDoc struct {
	ID       string     `yaml:"id"`
	Name     string     `yaml:"name"`
	Scope    string     `yaml:"scope"`
	Deadline string     `yaml:"deadline"`
	Active   *bool      `yaml:"active"`
	Fields   []fieldDoc `yaml:"fields"`
}

type fieldDoc struct {
	ID        string         `yaml:"id"`
	Label     string         `yaml:"label"`
	Type      string         `yaml:"type"`
	Required  bool           `yaml:"required"`
	Order     *int           `yaml:"order"`
	Options   []string       `yaml:"options"`
	Rules     *rulesDoc      `yaml:"rules"`
	DependsOn *dependencyDoc `yaml:"depends_on"`
}

type rulesDoc struct {
	MinLength *int        `yaml:"min_length"`
	MaxLength *int        `yaml:"max_length"`
	Pattern   string      `yaml:"pattern"`
	MinValue  *float64    `yaml:"min_value"`
	MaxValue  *float64    `yaml:"max_value"`
	Integer   bool        `yaml:"integer"`
	MinDate   string      `yaml:"min_date"`
	MaxDate   string      `yaml:"max_date"`
	Warning   *warningDoc `yaml:"warning"`
}

type warningDoc struct {
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
	Message string   `yaml:"message"`
}

type dependencyDoc struct {
	Field     string `yaml:"field"`
	Condition string `yaml:"condition"`
	Value     string `yaml:"value"`
	Required  bool   `yaml:"required"`
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidCatalog)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc fileDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	categories := make([]Category, 0, len(doc.Categories))
	seen := make(map[id.CategoryID]struct{}, len(doc.Categories))
	for i, cd := range doc.Categories {
		cat, err := cd.build()
		if err != nil {
			return nil, fmt.Errorf("categories[%d]: %w", i, err)
		}
		if _, dup := seen[cat.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidCatalog, cat.ID)
		}
		seen[cat.ID] = struct{}{}
		categories = append(categories, cat)
	}
	return New(categories...)
}

// Load reads a catalog document from r.
func Load(r io.Reader) (*Catalog, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("catalog: read: %w", err)
	}
	return Parse(content)
}

// LoadFile reads a catalog document from path.
func LoadFile(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	cat, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return cat, nil
}

func (cd categoryDoc) build() (Category, error) {
	catID, err := id.ParseCategoryID(cd.ID)
	if err != nil {
		return Category{}, err
	}
	scope := AssignmentScope(cd.Scope)
	if cd.Scope == "" {
		scope = ScopeAll
	}
	if !scope.IsValid() {
		return Category{}, fmt.Errorf("%w: category %q has unknown scope %q", ErrInvalidCatalog, catID, cd.Scope)
	}
	cat := Category{
		ID:     catID,
		Name:   strings.TrimSpace(cd.Name),
		Scope:  scope,
		Active: cd.Active == nil || *cd.Active,
	}
	if cat.Name == "" {
		cat.Name = string(catID)
	}
	if cd.Deadline != "" {
		deadline, err := parseDeadline(cd.Deadline)
		if err != nil {
			return Category{}, fmt.Errorf("%w: category %q deadline: %v", ErrInvalidCatalog, catID, err)
		}
		cat.Deadline = &deadline
	}
	for i, fd := range cd.Fields {
		f, err := fd.build(catID)
		if err != nil {
			return Category{}, fmt.Errorf("fields[%d]: %w", i, err)
		}
		if f.Order == 0 {
			f.Order = i + 1
		}
		cat.Fields = append(cat.Fields, f)
	}
	return cat, nil
}

// parseDeadline accepts RFC 3339 timestamps or a bare date meaning the end of that day in UTC.
func parseDeadline(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or %s, got %q", DateLayout, raw)
	}
	return day.Add(24*time.Hour - time.Second), nil
}

func (fd fieldDoc) build(catID id.CategoryID) (Field, error) {
	fieldID, err := id.ParseFieldID(fd.ID)
	if err != nil {
		return Field{}, err
	}
	kind, err := buildKind(FieldType(fd.Type), fd.Options, fd.Rules)
	if err != nil {
		return Field{}, fmt.Errorf("%w: field %q: %v", ErrInvalidCatalog, fieldID, err)
	}
	f := Field{
		ID:         fieldID,
		CategoryID: catID,
		Label:      strings.TrimSpace(fd.Label),
		Kind:       kind,
		Required:   fd.Required,
	}
	if f.Label == "" {
		f.Label = string(fieldID)
	}
	if fd.Order != nil {
		f.Order = *fd.Order
	}
	if fd.DependsOn != nil {
		dep, err := fd.DependsOn.build()
		if err != nil {
			return Field{}, fmt.Errorf("%w: field %q: %v", ErrInvalidCatalog, fieldID, err)
		}
		f.DependsOn = &dep
	}
	return f, nil
}

func (dd dependencyDoc) build() (Dependency, error) {
	parent, err := id.ParseFieldID(dd.Field)
	if err != nil {
		return Dependency{}, fmt.Errorf("depends_on: %w", err)
	}
	cond := ConditionType(dd.Condition)
	if !cond.IsValid() {
		return Dependency{}, fmt.Errorf("depends_on: unknown condition %q", dd.Condition)
	}
	if cond == ConditionGreaterThan || cond == ConditionLessThan {
		if _, err := strconv.ParseFloat(strings.TrimSpace(dd.Value), 64); err != nil {
			return Dependency{}, fmt.Errorf("depends_on: condition %s needs a numeric value, got %q", cond, dd.Value)
		}
	}
	return Dependency{FieldID: parent, Condition: cond, Value: dd.Value, Required: dd.Required}, nil
}

func buildKind(t FieldType, options []string, r *rulesDoc) (Kind, error) {
	if r == nil {
		r = &rulesDoc{}
	}
	if t != FieldTypeSelect && len(options) > 0 {
		return nil, fmt.Errorf("options are only allowed on select fields")
	}
	switch t {
	case FieldTypeText:
		if err := r.only("min_length", "max_length", "pattern"); err != nil {
			return nil, err
		}
		k := TextKind{MinLength: r.MinLength, MaxLength: r.MaxLength}
		if k.MinLength != nil && *k.MinLength < 0 || k.MaxLength != nil && *k.MaxLength < 0 {
			return nil, fmt.Errorf("length bounds must be non-negative")
		}
		if k.MinLength != nil && k.MaxLength != nil && *k.MinLength > *k.MaxLength {
			return nil, fmt.Errorf("min_length %d exceeds max_length %d", *k.MinLength, *k.MaxLength)
		}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("pattern: %v", err)
			}
			k.Pattern = re
		}
		return k, nil
	case FieldTypeNumber:
		if err := r.only("min_value", "max_value", "integer", "warning"); err != nil {
			return nil, err
		}
		k := NumberKind{Min: r.MinValue, Max: r.MaxValue, Integer: r.Integer}
		if k.Min != nil && k.Max != nil && *k.Min > *k.Max {
			return nil, fmt.Errorf("min_value %v exceeds max_value %v", *k.Min, *k.Max)
		}
		if w := r.Warning; w != nil {
			if w.Min == nil && w.Max == nil {
				return nil, fmt.Errorf("warning band needs min or max")
			}
			if w.Min != nil && w.Max != nil && *w.Min > *w.Max {
				return nil, fmt.Errorf("warning min %v exceeds max %v", *w.Min, *w.Max)
			}
			k.Warning = &WarningBand{Min: w.Min, Max: w.Max, Message: w.Message}
		}
		return k, nil
	case FieldTypeDate:
		if err := r.only("min_date", "max_date"); err != nil {
			return nil, err
		}
		var k DateKind
		if r.MinDate != "" {
			d, err := time.Parse(DateLayout, r.MinDate)
			if err != nil {
				return nil, fmt.Errorf("min_date: %v", err)
			}
			k.MinDate = &d
		}
		if r.MaxDate != "" {
			d, err := time.Parse(DateLayout, r.MaxDate)
			if err != nil {
				return nil, fmt.Errorf("max_date: %v", err)
			}
			k.MaxDate = &d
		}
		if k.MinDate != nil && k.MaxDate != nil && k.MinDate.After(*k.MaxDate) {
			return nil, fmt.Errorf("min_date %s is after max_date %s", r.MinDate, r.MaxDate)
		}
		return k, nil
	case FieldTypeSelect:
		if err := r.only(); err != nil {
			return nil, err
		}
		if len(options) == 0 {
			return nil, fmt.Errorf("select fields need at least one option")
		}
		seen := make(map[string]struct{}, len(options))
		for _, o := range options {
			if _, dup := seen[o]; dup {
				return nil, fmt.Errorf("duplicate option %q", o)
			}
			seen[o] = struct{}{}
		}
		return SelectKind{Options: append([]string(nil), options...)}, nil
	case FieldTypeEmail:
		if err := r.only(); err != nil {
			return nil, err
		}
		return EmailKind{}, nil
	case FieldTypePhone:
		if err := r.only(); err != nil {
			return nil, err
		}
		return PhoneKind{}, nil
	case "":
		return nil, fmt.Errorf("type is required")
	default:
		return nil, fmt.Errorf("unknown type %q", t)
	}
}

// only fails when a rule outside allowed is set.
func (r *rulesDoc) only(allowed ...string) error {
	set := map[string]bool{
		"min_length": r.MinLength != nil,
		"max_length": r.MaxLength != nil,
		"pattern":    r.Pattern != "",
		"min_value":  r.MinValue != nil,
		"max_value":  r.MaxValue != nil,
		"integer":    r.Integer,
		"min_date":   r.MinDate != "",
		"max_date":   r.MaxDate != "",
		"warning":    r.Warning != nil,
	}
	for _, a := range allowed {
		delete(set, a)
	}
	var bad []string
	for name, isSet := range set {
		if isSet {
			bad = append(bad, name)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return fmt.Errorf("rules not supported for this type: %s", strings.Join(bad, ", "))
}
