package httptransport

import (
	"time"

	"collecta/internal/catalog"
	"collecta/internal/entry/models"
	"collecta/internal/sweeper"
	"collecta/internal/validation"
	id "collecta/pkg/domain"
)

type valuesRequest struct {
	Values map[id.FieldID]string `json:"values"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type groupResponse struct {
	UnitID          id.UnitID             `json:"unit_id"`
	CategoryID      id.CategoryID         `json:"category_id"`
	Status          models.Status         `json:"status"`
	Values          map[id.FieldID]string `json:"values"`
	UpdatedAt       *time.Time            `json:"updated_at,omitempty"`
	SubmittedAt     *time.Time            `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time            `json:"approved_at,omitempty"`
	ApprovedBy      *id.ActorID           `json:"approved_by,omitempty"`
	RejectedAt      *time.Time            `json:"rejected_at,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	Warnings        []validation.Issue    `json:"warnings,omitempty"`
}

func toGroupResponse(g *models.Group) groupResponse {
	resp := groupResponse{
		UnitID:          g.Key.UnitID,
		CategoryID:      g.Key.CategoryID,
		Status:          g.Status,
		Values:          g.Values(),
		UpdatedAt:       g.Timestamp(func(r models.Record) *time.Time { return &r.UpdatedAt }),
		SubmittedAt:     g.Timestamp(func(r models.Record) *time.Time { return r.SubmittedAt }),
		ApprovedAt:      g.Timestamp(func(r models.Record) *time.Time { return r.ApprovedAt }),
		RejectedAt:      g.Timestamp(func(r models.Record) *time.Time { return r.RejectedAt }),
		RejectionReason: g.RejectionReason(),
	}
	for _, r := range g.Records {
		if r.ApprovedBy != nil {
			actor := *r.ApprovedBy
			resp.ApprovedBy = &actor
			break
		}
	}
	return resp
}

type dependencyResponse struct {
	FieldID   id.FieldID            `json:"field_id"`
	Condition catalog.ConditionType `json:"condition"`
	Value     string                `json:"value"`
	Required  bool                  `json:"required"`
}

type rulesResponse struct {
	Min       *float64 `json:"min_value,omitempty"`
	Max       *float64 `json:"max_value,omitempty"`
	Integer   bool     `json:"integer,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	MinDate   string   `json:"min_date,omitempty"`
	MaxDate   string   `json:"max_date,omitempty"`
	Options   []string `json:"options,omitempty"`
}

type fieldResponse struct {
	ID        id.FieldID          `json:"id"`
	Label     string              `json:"label,omitempty"`
	Type      catalog.FieldType   `json:"type"`
	Required  bool                `json:"required"`
	Order     int                 `json:"order"`
	Rules     rulesResponse       `json:"rules"`
	DependsOn *dependencyResponse `json:"depends_on,omitempty"`
}

type categoryResponse struct {
	ID       id.CategoryID           `json:"id"`
	Name     string                  `json:"name"`
	Scope    catalog.AssignmentScope `json:"scope"`
	Deadline *time.Time              `json:"deadline,omitempty"`
	Active   bool                    `json:"active"`
	Fields   []fieldResponse         `json:"fields"`
}

func toCategoryResponse(c *catalog.Category) categoryResponse {
	resp := categoryResponse{
		ID:       c.ID,
		Name:     c.Name,
		Scope:    c.Scope,
		Deadline: c.Deadline,
		Active:   c.Active,
		Fields:   make([]fieldResponse, 0, len(c.Fields)),
	}
	for _, f := range c.Fields {
		fr := fieldResponse{
			ID:       f.ID,
			Label:    f.Label,
			Type:     f.Kind.Type(),
			Required: f.Required,
			Order:    f.Order,
			Rules:    rulesOf(f.Kind),
		}
		if dep := f.DependsOn; dep != nil {
			fr.DependsOn = &dependencyResponse{
				FieldID: dep.FieldID, Condition: dep.Condition, Value: dep.Value, Required: dep.Required,
			}
		}
		resp.Fields = append(resp.Fields, fr)
	}
	return resp
}

func rulesOf(kind catalog.Kind) rulesResponse {
	var rules rulesResponse
	switch k := kind.(type) {
	case catalog.NumberKind:
		rules.Min, rules.Max, rules.Integer = k.Min, k.Max, k.Integer
	case catalog.TextKind:
		rules.MinLength, rules.MaxLength = k.MinLength, k.MaxLength
		if k.Pattern != nil {
			rules.Pattern = k.Pattern.String()
		}
	case catalog.DateKind:
		if k.MinDate != nil {
			rules.MinDate = k.MinDate.Format(catalog.DateLayout)
		}
		if k.MaxDate != nil {
			rules.MaxDate = k.MaxDate.Format(catalog.DateLayout)
		}
	case catalog.SelectKind:
		rules.Options = k.Options
	}
	return rules
}

type sweepResponse struct {
	StartedAt     time.Time `json:"started_at"`
	Categories    int       `json:"categories"`
	Warnings      int       `json:"warnings"`
	Expirations   int       `json:"expirations"`
	ForceApproved int       `json:"force_approved"`
	Deduplicated  int       `json:"deduplicated"`
	Failed        int       `json:"failed"`
	Errors        []string  `json:"errors,omitempty"`
}

func toSweepResponse(r sweeper.Report, err error) sweepResponse {
	resp := sweepResponse{
		StartedAt:     r.StartedAt,
		Categories:    r.Categories,
		Warnings:      r.Warnings,
		Expirations:   r.Expirations,
		ForceApproved: r.ForceApproved,
		Deduplicated:  r.Deduplicated,
		Failed:        r.Failed,
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			resp.Errors = append(resp.Errors, e.Error())
		}
	} else if err != nil {
		resp.Errors = []string{err.Error()}
	}
	return resp
}
