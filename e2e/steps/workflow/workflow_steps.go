package workflow

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	UnitID() string
	GET(path string) error
	POST(path string, body any) error
	PUT(path string, body any) error
	ResponseField(path string) (any, error)
}

// RegisterSteps registers entry workflow steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &workflowSteps{tc: tc}

	ctx.Step(`^I save the "([^"]*)" draft with:$`, steps.saveDraft)
	ctx.Step(`^I validate "([^"]*)" values:$`, steps.validate)
	ctx.Step(`^I open the "([^"]*)" group$`, steps.open)
	ctx.Step(`^I submit the "([^"]*)" group$`, steps.submit)
	ctx.Step(`^I approve the "([^"]*)" group$`, steps.approve)
	ctx.Step(`^I reject the "([^"]*)" group because "([^"]*)"$`, steps.reject)

	ctx.Step(`^the response should list (\d+) (issues|errors|warnings)$`, steps.shouldList)
}

type workflowSteps struct {
	tc TestContext
}

func (s *workflowSteps) groupPath(category string) string {
	return "/units/" + s.tc.UnitID() + "/categories/" + category
}

// values reads a two-column field | value table.
func values(table *godog.Table) (map[string]string, error) {
	out := make(map[string]string, len(table.Rows))
	for i, row := range table.Rows {
		if len(row.Cells) != 2 {
			return nil, fmt.Errorf("row %d: expected field and value columns", i+1)
		}
		out[row.Cells[0].Value] = row.Cells[1].Value
	}
	return out, nil
}

func (s *workflowSteps) saveDraft(ctx context.Context, category string, table *godog.Table) error {
	vals, err := values(table)
	if err != nil {
		return err
	}
	return s.tc.PUT(s.groupPath(category), map[string]any{"values": vals})
}

func (s *workflowSteps) validate(ctx context.Context, category string, table *godog.Table) error {
	vals, err := values(table)
	if err != nil {
		return err
	}
	return s.tc.POST(s.groupPath(category)+"/validate", map[string]any{"values": vals})
}

func (s *workflowSteps) open(ctx context.Context, category string) error {
	return s.tc.GET(s.groupPath(category))
}

func (s *workflowSteps) submit(ctx context.Context, category string) error {
	return s.tc.POST(s.groupPath(category)+"/submit", nil)
}

func (s *workflowSteps) approve(ctx context.Context, category string) error {
	return s.tc.POST(s.groupPath(category)+"/approve", nil)
}

func (s *workflowSteps) reject(ctx context.Context, category, reason string) error {
	return s.tc.POST(s.groupPath(category)+"/reject", map[string]string{"reason": reason})
}

func (s *workflowSteps) shouldList(ctx context.Context, n int, list string) error {
	v, err := s.tc.ResponseField(list)
	if err != nil {
		return err
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("%s is not a list: %v", list, v)
	}
	if len(items) != n {
		return fmt.Errorf("expected %d %s, got %d: %v", n, list, len(items), items)
	}
	return nil
}
