package e2e

import (
	"github.com/cucumber/godog"

	"collecta/e2e/steps/common"
	"collecta/e2e/steps/sweep"
	"collecta/e2e/steps/workflow"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (identity, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register entry workflow steps
	workflow.RegisterSteps(ctx, tc)

	// Register operator sweep steps
	sweep.RegisterSteps(ctx, tc)
}
