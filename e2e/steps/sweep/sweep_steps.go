package sweep

import (
	"context"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	AdminPOST(path string, withToken bool) error
}

// RegisterSteps registers operator sweep steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &sweepSteps{tc: tc}

	ctx.Step(`^an operator runs a sweep$`, steps.runSweep)
	ctx.Step(`^an operator runs a sweep without the admin token$`, steps.runSweepWithoutToken)
}

type sweepSteps struct {
	tc TestContext
}

func (s *sweepSteps) runSweep(ctx context.Context) error {
	return s.tc.AdminPOST("/admin/sweeps", true)
}

func (s *sweepSteps) runSweepWithoutToken(ctx context.Context) error {
	return s.tc.AdminPOST("/admin/sweeps", false)
}
