package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"GeoTool/internal/domain"
)

const sampleCard = `{
  "客户名称": "悦白之几",
  "行业": "医美",
  "核心产品": ["重组胶原蛋白", "若境"],
  "资质": [{"类型": "械字号", "等级": "III"}],
  "备注": null
}`

func TestParseCardKeepsOrder(t *testing.T) {
	t.Parallel()

	card, err := ParseCard([]byte(sampleCard))
	if err != nil {
		t.Fatalf("ParseCard returned error: %v", err)
	}

	want := []Field{
		{Key: "客户名称", Value: "悦白之几"},
		{Key: "行业", Value: "医美"},
		{Key: "核心产品", Value: "重组胶原蛋白, 若境"},
		{Key: "资质", Value: "{类型: 械字号, 等级: III}"},
		{Key: "备注", Value: ""},
	}
	if diff := cmp.Diff(want, card.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}

	if !strings.HasPrefix(card.Format(), "- 客户名称: 悦白之几\n- 行业: 医美\n") {
		t.Fatalf("unexpected format:\n%s", card.Format())
	}
	if got := card.Lookup("品牌", "客户名称"); got != "悦白之几" {
		t.Fatalf("unexpected lookup: %q", got)
	}
}

func TestParseCardAcceptsYAML(t *testing.T) {
	t.Parallel()

	card, err := ParseCard([]byte("行业: 医美\n客户名称: 若境\n"))
	if err != nil {
		t.Fatalf("ParseCard returned error: %v", err)
	}
	if card.Fields[0].Key != "行业" {
		t.Fatalf("expected source order, got %+v", card.Fields)
	}

	out, err := card.JSON()
	if err != nil {
		t.Fatalf("JSON returned error: %v", err)
	}
	if !strings.Contains(string(out), `"客户名称": "若境"`) {
		t.Fatalf("unexpected json: %s", out)
	}
}

func TestParseCardRejectsNonMapping(t *testing.T) {
	t.Parallel()

	if _, err := ParseCard([]byte(`["a", "b"]`)); err == nil {
		t.Fatalf("expected error for sequence card")
	}
}

func TestRenderAllStages(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer("", "")
	if err != nil {
		t.Fatalf("NewRenderer returned error: %v", err)
	}
	card, err := ParseCard([]byte(sampleCard))
	if err != nil {
		t.Fatalf("ParseCard returned error: %v", err)
	}

	for _, stage := range domain.Stages {
		text, err := r.Render(stage.Tag, card)
		if err != nil {
			t.Fatalf("render %s: %v", stage.Tag, err)
		}
		if !strings.Contains(text, "- 核心产品: 重组胶原蛋白, 若境") {
			t.Fatalf("stage %s missing client input:\n%s", stage.Tag, text)
		}
	}

	msgs, err := r.Messages(domain.StageD, card)
	if err != nil {
		t.Fatalf("Messages returned error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[0].Content != DefaultSystemPrompt {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if !strings.Contains(msgs[1].Content, "硬核实体词") {
		t.Fatalf("D prompt should ask for entity words")
	}
}

func TestRenderUnknownStage(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer("", "system")
	if err != nil {
		t.Fatalf("NewRenderer returned error: %v", err)
	}
	if _, err := r.Render("X", Card{}); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}

func TestTemplateOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "B.md"), []byte("custom {{.ClientInput}}"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	r, err := NewRenderer(dir, "")
	if err != nil {
		t.Fatalf("NewRenderer returned error: %v", err)
	}
	card := Card{Fields: []Field{{Key: "k", Value: "v"}}}

	got, err := r.Render(domain.StageB, card)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "custom - k: v" {
		t.Fatalf("unexpected override output: %q", got)
	}

	d, err := r.Render(domain.StageD, card)
	if err != nil {
		t.Fatalf("render D: %v", err)
	}
	if !strings.Contains(d, "语义矩阵") {
		t.Fatalf("D should fall back to built-in template")
	}
}
