package container

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/garyjia/approval-flow/internal/infrastructure/metrics"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "approval.db")
	cfg.Database.MigrationsDir = migrationsDir(t)
	cfg.Report.OutputDir = t.TempDir()
	cfg.Escalation.Schedule = "@every 1h"
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewContainer(nil, logger)
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Database.Driver = "oracle"
	_, err = NewContainer(cfg, logger)
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	m := metrics.NewMetrics(prometheus.NewRegistry())
	c, err := NewContainer(cfg, zaptest.NewLogger(t), WithMetrics(m))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx), "second start must fail")

	assert.NotNil(t, c.WorkflowEngine())
	assert.NotNil(t, c.Services().Requests)
	assert.NotNil(t, c.Services().Templates)
	assert.NotNil(t, c.Report())
	assert.NotNil(t, c.FileStorage())
	assert.Equal(t, []string{"EscalationWorker"}, c.Workers().Names())

	health := c.Health()
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.True(t, health.Components["redis"].Healthy)
	assert.Contains(t, health.Components, "escalation")

	// Redis going away degrades delivery without failing overall health
	mr.Close()
	health = c.Health()
	assert.False(t, health.Components["redis"].Healthy)
	assert.True(t, health.Overall)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx))
}

func TestContainer_OptionalComponentsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Escalation.Enabled = false
	cfg.Report.OutputDir = ""

	c, err := NewContainer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.FileStorage())
	assert.Empty(t, c.Workers().Names())

	health := c.Health()
	assert.True(t, health.Overall)
	assert.NotContains(t, health.Components, "redis")
	assert.NotContains(t, health.Components, "escalation")
}

func TestReliableConfig_Overrides(t *testing.T) {
	out := reliableConfig(&NotificationConfig{RetryAttempts: 7, Burst: 1})

	assert.EqualValues(t, 7, out.RetryAttempts)
	assert.Equal(t, 1, out.Burst)
	// untouched fields keep their defaults
	assert.Equal(t, 200*time.Millisecond, out.RetryDelay)
	assert.EqualValues(t, 5, out.BreakerFailures)
}
