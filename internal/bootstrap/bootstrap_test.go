package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collecta/internal/entry/models"
	"collecta/internal/platform/config"
	"collecta/internal/platform/logger"
	id "collecta/pkg/domain"
	dErrors "collecta/pkg/domain-errors"
	"collecta/pkg/requestcontext"
)

const catalogYAML = `
categories:
  - id: staff
    deadline: 2026-11-01
    fields:
      - id: teachers
        type: number
        required: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func memoryConfig(t *testing.T) *config.Config {
	return &config.Config{
		Catalog: config.CatalogConfig{Path: writeFile(t, "catalog.yaml", catalogYAML)},
		Sweeper: config.SweeperConfig{Interval: time.Hour, Concurrency: 1, LedgerTTL: 48 * time.Hour},
	}
}

func TestBuildInMemory(t *testing.T) {
	ctx := context.Background()
	owner := id.ActorID(uuid.New())
	unit := id.UnitID(uuid.New())

	cfg := memoryConfig(t)
	cfg.Membership.SeedPath = writeFile(t, "memberships.yaml", `
memberships:
  - actor: `+owner.String()+`
    unit: `+unit.String()+`
    role: owner
`)

	app, err := Build(ctx, cfg, logger.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close()

	assert.Empty(t, app.HealthChecks())
	assert.Nil(t, app.RateLimiter)
	require.Len(t, app.Catalog.Categories(), 1)

	key := models.GroupKey{UnitID: unit, CategoryID: "staff"}
	group, err := app.Workflow.SaveDraft(requestcontext.WithActor(ctx, owner), key, map[id.FieldID]string{"teachers": "12"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, group.Status)

	report, err := app.Sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Categories)
}

func TestBuildRateLimiter(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 10, Window: time.Minute}

	app, err := Build(context.Background(), cfg, logger.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.RateLimiter)
}

func TestBuildFailsOnMissingCatalog(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg, logger.Discard(), prometheus.NewRegistry())
	require.Error(t, err)
}

type recordingTx struct {
	deadline bool
}

func (r *recordingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	_, r.deadline = ctx.Deadline()
	return fn(ctx)
}

func TestTimeoutTx(t *testing.T) {
	t.Run("adds a deadline when the caller has none", func(t *testing.T) {
		next := &recordingTx{}
		err := newTimeoutTx(next).RunInTx(context.Background(), func(context.Context) error { return nil })
		require.NoError(t, err)
		assert.True(t, next.deadline)
	})

	t.Run("refuses an already cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false
		err := newTimeoutTx(&recordingTx{}).RunInTx(ctx, func(context.Context) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeTimeout, dErrors.CodeOf(err))
		assert.False(t, called)
	})
}
