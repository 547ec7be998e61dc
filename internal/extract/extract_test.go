package extract

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"GeoTool/internal/domain"
)

const singleCellMatrix = `## 语义矩阵

| 板块 | 内容 |
|------|------|
| **1. 硬核实体词** | 1. 械字号III类<br>2. 透明质酸钠交联技术 (专利)<br>3. 聚左旋乳酸 [PLLA]<br>4. 临床数据（多中心）<br>5. X |
| **2. 对比/评价短语** | 1. 胶原蛋白 vs 玻尿酸<br>2. 动物源 vs 重组 |
| **4. 预测 AI 热门提问** | 1. “重组胶原蛋白填充安全吗？”<br>2. 胶原蛋白和玻尿酸哪个效果更持久？<br>3. 太短了？ |
`

const multiRowMatrix = `
## 一、关键词/实体词

| **1. 硬核实体词** | 1 | **械字号 III 类** | 假设产品为最高级别医疗器械。 |
| | 2 | **核心成分 [化学名/专利名]** | 如"聚左旋乳酸"、"透明质酸钠交联技术"。 |
| | 3 | **临床数据** | 强调循证医学依据。 |

**2. 次级关键词**

| **4. 预测 AI 热门提问** | 1 | **重组胶原蛋白注射后多久见效？** | 用户真实问法 |
| | 2 | **械字号胶原蛋白怎么查真伪？** | 用户真实问法 |

**5. 标准断言**
`

func TestSplitNumberedStripsAnnotations(t *testing.T) {
	t.Parallel()

	got := SplitNumbered("1. 透明质酸钠交联技术 (专利) | 2. 聚左旋乳酸", CleanKeyword, 2)
	want := []string{"透明质酸钠交联技术", "聚左旋乳酸"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
}

func TestExtractSingleCell(t *testing.T) {
	t.Parallel()

	res := Extract(singleCellMatrix)
	if res.Degraded() {
		t.Fatalf("unexpected degraded result: %v", res.Warnings)
	}

	wantKeywords := []string{"械字号III类", "透明质酸钠交联技术", "聚左旋乳酸", "临床数据"}
	if diff := cmp.Diff(wantKeywords, res.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}

	wantQuestions := []string{"重组胶原蛋白填充安全吗？", "胶原蛋白和玻尿酸哪个效果更持久？"}
	if diff := cmp.Diff(wantQuestions, res.Questions); diff != "" {
		t.Fatalf("questions mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractMultiRow(t *testing.T) {
	t.Parallel()

	res := Extract(multiRowMatrix)
	if res.Degraded() {
		t.Fatalf("unexpected degraded result: %v", res.Warnings)
	}

	wantKeywords := []string{"械字号 III 类", "核心成分", "临床数据"}
	if diff := cmp.Diff(wantKeywords, res.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}

	wantQuestions := []string{"重组胶原蛋白注射后多久见效？", "械字号胶原蛋白怎么查真伪？"}
	if diff := cmp.Diff(wantQuestions, res.Questions); diff != "" {
		t.Fatalf("questions mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractSkipsLabelsQuotedInProse(t *testing.T) {
	t.Parallel()

	text := "下表中 **1. 硬核实体词** 与 **4. 预测 AI 热门提问** 两个板块最重要。\n\n" + singleCellMatrix
	res := Extract(text)
	if res.Degraded() {
		t.Fatalf("unexpected degraded result: %v", res.Warnings)
	}
	if diff := cmp.Diff([]string{"械字号III类", "透明质酸钠交联技术", "聚左旋乳酸", "临床数据"}, res.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	if len(res.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %v", res.Questions)
	}

	res = Extract("先看 **1. 硬核实体词** 板块。\n" + multiRowMatrix)
	if diff := cmp.Diff([]string{"械字号 III 类", "核心成分", "临床数据"}, res.Keywords); diff != "" {
		t.Fatalf("multi-row keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractMultiRowKeepsDecimalItems(t *testing.T) {
	t.Parallel()

	text := `| **1. 硬核实体词** | 1 | **械字号 III 类** | 最高级别医疗器械 |
| | 2 | **0.9%生理盐水** | 稀释液 |
| | 3 | **2.5mm 针头** | 注射规格 |
| **4. 预测 AI 热门提问** | 1 | **重组胶原蛋白注射后多久见效？** | 用户真实问法 |
`
	res := Extract(text)
	if diff := cmp.Diff([]string{"械字号 III 类", "0.9%生理盐水", "2.5mm 针头"}, res.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"重组胶原蛋白注射后多久见效？"}, res.Questions); diff != "" {
		t.Fatalf("questions mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	res := Extract("# 提案\n\n没有任何表格。")
	if !res.KeywordsDegraded || !res.QuestionsDegraded {
		t.Fatalf("expected both lists degraded, got %+v", res)
	}
	if diff := cmp.Diff([]string{"产品名称", "核心技术", "临床数据"}, res.Keywords); diff != "" {
		t.Fatalf("default keywords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultQuestions, res.Questions); diff != "" {
		t.Fatalf("default questions mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(res.Err(), domain.ErrExtractionDegraded) {
		t.Fatalf("expected ErrExtractionDegraded, got %v", res.Err())
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", res.Warnings)
	}
}

func TestExtractPartialDegradation(t *testing.T) {
	t.Parallel()

	res := Extract("| **1. 硬核实体词** | 1. 胶原蛋白<br>2. 注册证号 |\n")
	if res.KeywordsDegraded {
		t.Fatalf("keywords should be recovered")
	}
	if !res.QuestionsDegraded {
		t.Fatalf("questions should be degraded")
	}
	if res.Err() == nil {
		t.Fatalf("expected degraded error")
	}
}

func TestExtractDefaultsAreNotShared(t *testing.T) {
	t.Parallel()

	res := Extract("")
	res.Keywords[0] = "mutated"
	if DefaultKeywords[0] != "产品名称" {
		t.Fatalf("defaults were mutated through result")
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	t.Parallel()

	first := Extract(multiRowMatrix)
	second := Extract(multiRowMatrix)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("results differ (-first +second):\n%s", diff)
	}
}

func TestLimit(t *testing.T) {
	t.Parallel()

	items := []string{"a", "b", "c"}
	if got := Limit(items, 2); len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got := Limit(items, 10); len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
}
