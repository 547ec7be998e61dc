// Package report renders pressure-test results as markdown.
package report

import (
	"fmt"
	"strings"
	"time"

	"GeoTool/internal/domain"
)

const (
	timeLayout     = "2006-01-02 15:04"
	previewRunes   = 300
	questionRunes  = 30
	lowMentionRate = 30
	midMentionRate = 60
)

// Pressure renders the multi-engine report of one pressure test.
func Pressure(res domain.PressureResult) string {
	var b strings.Builder
	stamp := res.TestedAt.Format(timeLayout)

	names := make([]string, 0, len(res.Engines))
	for _, e := range res.Engines {
		names = append(names, e.Name)
	}

	fmt.Fprintf(&b, "# GEO 多引擎压力测试报告\n\n")
	fmt.Fprintf(&b, "**客户**：%s\n", res.ClientName)
	fmt.Fprintf(&b, "**测试时间**：%s\n", stamp)
	fmt.Fprintf(&b, "**测试引擎**：%s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "**品牌关键词**：%s\n\n---\n\n", strings.Join(res.Keywords, ", "))

	b.WriteString("## 📊 跨引擎对比摘要\n\n")
	b.WriteString("| 引擎 | 问题数 | 提及次数 | 提及率 | 首段占位 | 平均得分 |\n")
	b.WriteString("|------|--------|----------|--------|----------|----------|\n")
	for _, e := range res.Engines {
		if e.Error != "" {
			fmt.Fprintf(&b, "| %s | - | - | 错误 | - | - |\n", e.Name)
			continue
		}
		m := domain.Measure(e.Answers)
		fmt.Fprintf(&b, "| %s | %d | %d | %.0f%% | %.0f%% | %.1f |\n", e.Name, m.Total, m.Mentioned, m.MentionRate, m.FirstRate, m.AvgScore)
	}

	fmt.Fprintf(&b, "\n**综合得分**：%.1f　**综合提及率**：%.0f%%　**趋势**：%s", res.Overall.AvgScore, res.Overall.MentionRate, res.Trend.Label())
	if res.Previous != nil {
		fmt.Fprintf(&b, "（上次 %.1f）", *res.Previous)
	}
	b.WriteString("\n\n---\n\n")

	for _, e := range res.Engines {
		if e.Error != "" {
			fmt.Fprintf(&b, "## %s — 错误\n\n%s\n\n---\n\n", e.Name, e.Error)
			continue
		}
		fmt.Fprintf(&b, "## %s 详细结果\n\n", e.Name)
		for i, a := range e.Answers {
			fmt.Fprintf(&b, "### Q%d: %s\n", i+1, clip(a.Question, questionRunes))
			if a.Error != "" {
				fmt.Fprintf(&b, "❌ 错误: %s\n\n", a.Error)
				continue
			}
			status := "❌ 未提及"
			if a.AnyMention {
				status = "✅ 已提及"
			}
			fmt.Fprintf(&b, "**状态**: %s | **位置**: %s | **得分**: %.0f\n\n", status, a.Position, a.Score)
			fmt.Fprintf(&b, "%s\n\n", quote(clip(a.Answer, previewRunes)))
		}
		b.WriteString("---\n\n")
	}

	b.WriteString("## 🎯 改进建议\n\n")
	if rate, ok := averageEngineRate(res.Engines); ok {
		switch {
		case rate < lowMentionRate:
			b.WriteString("- ⚠️ 跨引擎平均提及率较低（<30%），建议加强语义资产投放\n")
		case rate < midMentionRate:
			b.WriteString("- 📈 跨引擎平均提及率中等（30-60%），继续优化核心问题的语义覆盖\n")
		default:
			b.WriteString("- ✅ 跨引擎平均提及率良好（>60%），保持当前策略\n")
		}
	}
	fmt.Fprintf(&b, "\n---\n\n*报告生成时间: %s*\n", stamp)

	return b.String()
}

// averageEngineRate is the mean of per-engine mention rates over engines that
// produced answers.
func averageEngineRate(engines []domain.EngineResult) (float64, bool) {
	var sum float64
	var n int
	for _, e := range engines {
		if e.Error != "" || len(e.Answers) == 0 {
			continue
		}
		sum += domain.Measure(e.Answers).MentionRate
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func quote(s string) string {
	return "> " + strings.ReplaceAll(s, "\n", "\n> ")
}

func dateLabel(t time.Time, fallback string) string {
	if t.IsZero() {
		return fallback
	}
	return t.Format("2006-01-02")
}
