package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoTool/internal/usecase"
)

func executeCommand(args ...string) (string, error) {
	configPath, platformName, logLevel, outputFormat = "", "", "", "text"

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sub := range []string{"run", "extract", "project", "pressure", "compare", "history"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help to list %q, got: %s", sub, out)
		}
	}
}

func TestProjectSubcommands(t *testing.T) {
	out, err := executeCommand("project", "--help")
	require.NoError(t, err)
	for _, sub := range []string{"create", "list", "show", "status", "complete"} {
		assert.Contains(t, out, sub)
	}
}

func TestUnknownPlatformRejected(t *testing.T) {
	_, err := executeCommand("history", "--platform", "slack")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack")
}

func TestExtractCommand(t *testing.T) {
	dir := t.TempDir()
	matrix := filepath.Join(dir, "matrix.md")
	require.NoError(t, os.WriteFile(matrix, []byte(`| 板块 | 内容 |
|------|------|
| **1. 硬核实体词** | 1. 械字号III类<br>2. 聚左旋乳酸 (专利) |
| **4. 预测 AI 热门提问** | 1. 重组胶原蛋白填充安全吗？<br>2. 胶原蛋白和玻尿酸哪个效果更持久？ |
`), 0o644))

	out, err := executeCommand("extract", matrix, "--limit", "1", "--client", "品牌", "--output", dir)
	require.NoError(t, err)

	saved, err := usecase.ReadExtraction(filepath.Join(dir, usecase.ExtractionFileName("品牌")))
	require.NoError(t, err)
	assert.Equal(t, []string{"械字号III类"}, saved.Keywords)
	assert.Equal(t, []string{"重组胶原蛋白填充安全吗？"}, saved.Questions)
	assert.Contains(t, out, `"keywords"`)
	assert.Contains(t, out, "saved ")
}

func TestExtractNeedsFile(t *testing.T) {
	_, err := executeCommand("extract")
	assert.Error(t, err)
}

func TestCompareCommandWritesReport(t *testing.T) {
	dir := t.TempDir()
	before := filepath.Join(dir, "before.json")
	after := filepath.Join(dir, "after.json")
	require.NoError(t, os.WriteFile(before, []byte(`[
  {"question": "q1", "answer": "无", "any_mention": false, "position": "未提及", "score": 0},
  {"question": "q2", "answer": "品牌", "any_mention": true, "position": "首段", "score": 100}
]`), 0o644))
	require.NoError(t, os.WriteFile(after, []byte(`[
  {"question": "q1", "answer": "品牌", "any_mention": true, "position": "首段", "score": 100},
  {"question": "q2", "answer": "品牌", "any_mention": true, "position": "首段", "score": 100}
]`), 0o644))

	out, err := executeCommand("compare", before, after, "--client", "品牌", "--output", dir)
	require.NoError(t, err)
	assert.Contains(t, out, comparisonFileName)

	raw, err := os.ReadFile(filepath.Join(dir, comparisonFileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# GEO 效果对比报告")
	assert.Contains(t, string(raw), "**客户**：品牌")
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "geotool.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("history:\n  path: "+filepath.Join(dir, "history.db")+"\n"), 0o644))

	out, err := executeCommand("history", "--config", cfg, "--client", "品牌")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")

	out, err = executeCommand("history", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	var runs []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &runs))
	assert.Empty(t, runs)
}
