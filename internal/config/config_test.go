package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoTool/internal/domain"
)

const sampleYAML = `
platform:
  default: notion
  notion:
    apiKey: secret_file
    databases:
      projects: db-projects
      stageRecords: db-stages
      pressureTests: db-tests
llm:
  model: deepseek-reasoner
  timeout: 90s
retry:
  llm:
    maxAttempts: 5
engines:
  - name: local
    baseUrl: http://localhost:8080/v1
    model: qwen
output:
  dir: /tmp/geo
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geotool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(platformEnv, "")
	t.Setenv(notionAPIKeyEnv, "")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "notion", cfg.Platform.Default)
	assert.Equal(t, "secret_file", cfg.Platform.Notion.APIKey)
	assert.Equal(t, "db-stages", cfg.Platform.Notion.Databases.StageRecords)
	assert.Equal(t, "2022-06-28", cfg.Platform.Notion.Version, "defaults survive partial sections")
	assert.Equal(t, "deepseek-reasoner", cfg.LLM.Model)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5, cfg.Retry.LLM.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.LLM.MinWait)
	assert.Equal(t, "/tmp/geo", cfg.Output.Dir)
	assert.Equal(t, 10, cfg.Output.ExtractLimit)

	require.Len(t, cfg.Engines, 1)
	engine, ok := cfg.Engine("local")
	require.True(t, ok)
	assert.Equal(t, "local", engine.Label())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(platformEnv, "notion")
	t.Setenv(feishuAppIDEnv, "cli_a1")
	t.Setenv(feishuAppSecretEnv, "s3cr3t")
	t.Setenv(notionAPIKeyEnv, "secret_env")
	t.Setenv(deepseekAPIKeyEnv, "sk-env")
	t.Setenv(logLevelEnv, "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "notion", cfg.Platform.Default)
	assert.Equal(t, "cli_a1", cfg.Platform.Feishu.AppID)
	assert.Equal(t, "s3cr3t", cfg.Platform.Feishu.AppSecret)
	assert.Equal(t, "secret_env", cfg.Platform.Notion.APIKey)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)

	deepseek, ok := cfg.Engine("deepseek")
	require.True(t, ok)
	assert.Equal(t, "sk-env", deepseek.APIKey)
}

func TestLoadReadsPathFromEnv(t *testing.T) {
	t.Setenv(platformEnv, "")
	t.Setenv(configPathEnv, writeConfig(t, "llm:\n  model: from-env-file\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env-file", cfg.LLM.Model)
}

func TestLoadRejectsUnknownPlatform(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(platformEnv, "dingtalk")

	_, err := Load("")
	require.Error(t, err)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "platform.default", cfgErr.Field)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.LLM.Model = ""
	cfg.Retry.Command.MaxAttempts = 0
	cfg.Engines = append(cfg.Engines, EngineConfig{Name: "deepseek"}, EngineConfig{})
	cfg.Hooks.AfterRun = [][]string{{"git", "add", "."}, {}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.model")
	assert.Contains(t, err.Error(), "retry.command.maxAttempts")
	assert.Contains(t, err.Error(), "duplicate engine deepseek")
	assert.Contains(t, err.Error(), "engines[3].name")
	assert.Contains(t, err.Error(), "hooks.afterRun[1]")
	assert.NotContains(t, err.Error(), "hooks.afterRun[0]")
}

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	p, err := ParsePlatform(" Feishu ")
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformFeishu, p)

	_, err = ParsePlatform("")
	assert.Error(t, err)
}

func TestBackoffPolicy(t *testing.T) {
	t.Parallel()

	cfg := Default()

	llm := cfg.Retry.LLM.Policy()
	assert.Equal(t, 3, llm.MaxAttempts)
	assert.Equal(t, 4*time.Second, llm.Backoff.Delay(2))

	cmd := cfg.Retry.Command.Policy()
	assert.Equal(t, 2*time.Second, cmd.Backoff.Delay(5))
}
