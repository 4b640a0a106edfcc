package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the scenarios under features/ against a live deployment
// started from the example config with an in-memory store. The suite mutates
// groups irreversibly, so each run needs a freshly started server.
func TestFeatures(t *testing.T) {
	if os.Getenv("COLLECTA_BASE_URL") == "" {
		t.Skip("COLLECTA_BASE_URL not set")
	}
	tc := NewTestContextFromEnv()
	suite := godog.TestSuite{
		Name: "collecta",
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature scenarios failed")
	}
}
