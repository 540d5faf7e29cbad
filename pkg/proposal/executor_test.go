package proposal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
)

func runOne(t *testing.T, exec *AllowlistExecutor, action models.Action) models.ActionResult {
	t.Helper()
	results, err := exec.Execute(context.Background(), []models.Action{action})
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestExecuteRefusesUnlistedAction(t *testing.T) {
	exec := NewAllowlistExecutor(config.ExecutorConfig{AllowedActions: []string{"rotate_logs"}})

	res := runOne(t, exec, models.Action{Name: "restart_service"})
	assert.False(t, res.OK)
	assert.Equal(t, "action not in allow-list", res.Detail)
}

func TestExecuteRefusesActionWithoutHandler(t *testing.T) {
	exec := NewAllowlistExecutor(config.ExecutorConfig{AllowedActions: []string{"reboot_host"}})

	res := runOne(t, exec, models.Action{Name: "reboot_host"})
	assert.False(t, res.OK)
	assert.Equal(t, "no handler bound for action", res.Detail)
}

func TestExecuteReturnsOneResultPerAction(t *testing.T) {
	exec := NewAllowlistExecutor(config.Default().Executor)

	results, err := exec.Execute(context.Background(), []models.Action{
		{Name: "rotate_logs"},
		{Name: "reboot_host"}, // not on the allow-list
		{Name: "resync_time"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.True(t, results[2].OK)
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	exec := NewAllowlistExecutor(config.Default().Executor)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := exec.Execute(ctx, []models.Action{{Name: "rotate_logs"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestSignalActionsSucceed(t *testing.T) {
	exec := NewAllowlistExecutor(config.Default().Executor)

	tests := []struct {
		action string
		detail string
	}{
		{"rotate_logs", "log rotation signalled"},
		{"vacuum_store", "store vacuum requested"},
		{"resync_time", "clock resync requested"},
	}
	for _, tt := range tests {
		res := runOne(t, exec, models.Action{Name: tt.action})
		assert.True(t, res.OK, tt.action)
		assert.Equal(t, tt.detail, res.Detail)
	}
}

func TestRestartServiceRequiresParam(t *testing.T) {
	exec := NewAllowlistExecutor(config.Default().Executor)

	res := runOne(t, exec, models.Action{Name: "restart_service"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Detail, "service param")

	res = runOne(t, exec, models.Action{
		Name:   "restart_service",
		Params: map[string]string{"service": "ascent"},
	})
	assert.True(t, res.OK)
	assert.Equal(t, "restart requested for ascent", res.Detail)
}

func TestClearTmpEmptiesScratchDir(t *testing.T) {
	scratch := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "a.tmp"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "b.tmp"), []byte("y"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "nested", "deep"), 0o755))

	exec := NewAllowlistExecutor(config.Default().Executor, WithScratchDir(scratch))
	res := runOne(t, exec, models.Action{Name: "clear_tmp"})

	assert.True(t, res.OK)
	assert.Equal(t, "3 scratch entries removed", res.Detail)
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClearTmpHandlesAbsentDir(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "never-created")
	exec := NewAllowlistExecutor(config.Default().Executor, WithScratchDir(scratch))

	res := runOne(t, exec, models.Action{Name: "clear_tmp"})
	assert.True(t, res.OK)
	assert.Contains(t, res.Detail, "nothing to clear")
}

func TestWithHandlerOverridesBuiltin(t *testing.T) {
	var called bool
	exec := NewAllowlistExecutor(config.Default().Executor,
		WithHandler("vacuum_store", func(context.Context, models.Action) (string, error) {
			called = true
			return "vacuumed 12 dead tuples", nil
		}))

	res := runOne(t, exec, models.Action{Name: "vacuum_store"})
	assert.True(t, res.OK)
	assert.True(t, called)
	assert.Equal(t, "vacuumed 12 dead tuples", res.Detail)
}

func TestHandlerErrorBecomesFailedResult(t *testing.T) {
	exec := NewAllowlistExecutor(config.Default().Executor,
		WithHandler("rotate_logs", func(context.Context, models.Action) (string, error) {
			return "", os.ErrPermission
		}))

	res := runOne(t, exec, models.Action{Name: "rotate_logs"})
	assert.False(t, res.OK)
	assert.Equal(t, os.ErrPermission.Error(), res.Detail)
}
