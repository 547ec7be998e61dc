package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoTool/internal/config"
	"GeoTool/internal/domain"
	"GeoTool/internal/logging"
	"GeoTool/internal/usecase"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.History.Path = ":memory:"
	return cfg
}

func TestIntegrationRequiresCredentials(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Integration()
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "platform.feishu.appId", cfgErr.Field)

	_, err = a.Pipeline(true)
	assert.Error(t, err, "tracking needs a backend")

	p, err := a.Pipeline(false)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestUsePlatformBeforeAndAfterBuild(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Platform.Notion.APIKey = "secret_notion"
	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.UsePlatform(domain.PlatformNotion))
	m, err := a.Integration()
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformNotion, m.CurrentPlatform())

	err = a.UsePlatform(domain.PlatformFeishu)
	assert.Error(t, err, "feishu has no credentials")
	assert.Equal(t, domain.PlatformNotion, m.CurrentPlatform())
}

func TestPressureTesterMarksEnginesWithoutKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Engines[0].APIKey = "sk-test"
	cfg.Engines[1].APIKey = ""
	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	tester, err := a.PressureTester(false)
	require.NoError(t, err)
	assert.NotNil(t, tester)
	assert.NotNil(t, a.History())

	assert.NotNil(t, a.Monitor(tester, usecase.PressureRequest{ClientName: "c"}, 0))
}

func TestHistoryDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.History.Path = ""
	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, a.History())
	assert.NoError(t, a.Close())
}
