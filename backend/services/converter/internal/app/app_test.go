package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nemsql/backend/services/converter/internal/config"
	"nemsql/backend/services/converter/internal/repository"
)

const input = `100,NEM12,200506081149,UNITEDDP,NEMMCO
200,NMI001,E1E2,1,E1,N1,01009,kWh,30,20050610
300,20240101,10,0,5
200,NMI002,E1E2,1,E1,N1,01009,kWh,60,20050610
300,20240101,1,2,3
900
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o600))

	cfg := config.Default()
	cfg.Input.Path = path
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Pipeline.Workers = 2
	return cfg
}

func TestRunRecordsSummary(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()

	ctx := context.Background()
	application, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer application.Close()

	res, err := application.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Readings)
	assert.Equal(t, 3, res.Blocks)
	require.NotEmpty(t, res.Outputs)
	for _, out := range res.Outputs {
		assert.FileExists(t, out)
	}

	fingerprint, err := repository.Fingerprint(cfg.Input.Path)
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), DisableIndentity: true})
	defer client.Close()

	summary, err := repository.NewRunRegistry(client, 0).Last(ctx, fingerprint)
	require.NoError(t, err)
	assert.Equal(t, cfg.Input.Path, summary.Input)
	assert.Equal(t, 2, summary.Workers)
	assert.Equal(t, 5, summary.Readings)
	assert.Equal(t, res.Outputs, summary.Outputs)
	assert.False(t, summary.Loaded)
}

type fakeLoader struct {
	mu      sync.Mutex
	applied []string
}

func (f *fakeLoader) EnsureSchema(context.Context) error { return nil }

func (f *fakeLoader) ApplyFile(_ context.Context, path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, path)
	return 1, nil
}

func (f *fakeLoader) appliedFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

func newLoadingApp(t *testing.T, cfg *config.Config) (*App, *fakeLoader) {
	t.Helper()
	application, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(application.Close)

	loader := &fakeLoader{}
	application.readings = loader
	return application, loader
}

func TestRunLoadsOncePerInput(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	ctx := context.Background()

	first, loader := newLoadingApp(t, cfg)
	res, err := first.Run(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, res.Outputs, loader.appliedFiles())

	fingerprint, err := repository.Fingerprint(cfg.Input.Path)
	require.NoError(t, err)
	summary, err := first.runs.Last(ctx, fingerprint)
	require.NoError(t, err)
	assert.True(t, summary.Loaded)

	second, again := newLoadingApp(t, cfg)
	_, err = second.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.appliedFiles())

	summary, err = second.runs.Last(ctx, fingerprint)
	require.NoError(t, err)
	assert.True(t, summary.Loaded)
}

func TestRunLoadsWhenPreviousRunDidNotLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	ctx := context.Background()

	convertOnly, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer convertOnly.Close()
	_, err = convertOnly.Run(ctx)
	require.NoError(t, err)

	application, loader := newLoadingApp(t, cfg)
	res, err := application.Run(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, res.Outputs, loader.appliedFiles())
}

func TestRunLoadsEveryTimeWithoutRegistry(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	application, loader := newLoadingApp(t, cfg)
	_, err := application.Run(ctx)
	require.NoError(t, err)
	res, err := application.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, loader.appliedFiles(), 2*len(res.Outputs))
}

func TestRunWithoutOptionalStores(t *testing.T) {
	cfg := testConfig(t)

	ctx := context.Background()
	application, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer application.Close()

	res, err := application.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Readings)
}

func TestRunMissingInput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.Path = filepath.Join(t.TempDir(), "missing.csv")

	application, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer application.Close()

	_, err = application.Run(context.Background())
	assert.Error(t, err)
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Redis.Addr = addr

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "open redis")
}
