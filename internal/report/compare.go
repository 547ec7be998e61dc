package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"GeoTool/internal/domain"
)

// Snapshot is one side of a before/after comparison.
type Snapshot struct {
	Label   string
	Answers []domain.EngineAnswer
}

// Comparison is the input of Compare.
type Comparison struct {
	ClientName  string
	Before      Snapshot
	After       Snapshot
	GeneratedAt time.Time
}

// rawAnswer accepts timestamps that are not RFC 3339, as written by older
// result files.
type rawAnswer struct {
	Question   string          `json:"question"`
	Answer     string          `json:"answer"`
	Mentions   map[string]bool `json:"mentions"`
	AnyMention bool            `json:"any_mention"`
	Position   string          `json:"position"`
	Score      float64         `json:"score"`
	Error      string          `json:"error"`
	Timestamp  string          `json:"timestamp"`
}

// LoadSnapshot reads a pressure-test result file. Three shapes are accepted:
// a full result with an "engines" list, a bare answer list, and an object
// mapping engine keys to answer lists. Answers of every engine are
// concatenated in engine order.
func LoadSnapshot(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read results: %w", err)
	}
	snap, err := ParseSnapshot(raw)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse results %s: %w", path, err)
	}
	return snap, nil
}

// ParseSnapshot decodes result data; see LoadSnapshot.
func ParseSnapshot(raw []byte) (Snapshot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Snapshot{}, errors.New("empty result file")
	}

	if raw[0] == '[' {
		var list []rawAnswer
		if err := json.Unmarshal(raw, &list); err != nil {
			return Snapshot{}, err
		}
		answers := convertAnswers(list)
		return Snapshot{Label: labelFromAnswers(answers), Answers: answers}, nil
	}

	var shape struct {
		Engines json.RawMessage `json:"engines"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return Snapshot{}, err
	}
	if len(shape.Engines) > 0 {
		var res domain.PressureResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return Snapshot{}, err
		}
		answers := res.Answers()
		return Snapshot{Label: dateLabel(res.TestedAt, labelFromAnswers(answers)), Answers: answers}, nil
	}

	var byEngine map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byEngine); err != nil {
		return Snapshot{}, err
	}
	keys := make([]string, 0, len(byEngine))
	for key := range byEngine {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var answers []domain.EngineAnswer
	for _, key := range keys {
		var list []rawAnswer
		if err := json.Unmarshal(byEngine[key], &list); err != nil {
			// engines that failed to initialise carry an error object
			continue
		}
		answers = append(answers, convertAnswers(list)...)
	}
	return Snapshot{Label: labelFromAnswers(answers), Answers: answers}, nil
}

func convertAnswers(list []rawAnswer) []domain.EngineAnswer {
	out := make([]domain.EngineAnswer, 0, len(list))
	for _, r := range list {
		a := domain.EngineAnswer{
			Question:   r.Question,
			Answer:     r.Answer,
			Mentions:   r.Mentions,
			AnyMention: r.AnyMention,
			Position:   domain.Position(r.Position),
			Score:      r.Score,
			Error:      r.Error,
			Timestamp:  parseTimestamp(r.Timestamp),
		}
		if a.Error == "" && a.Position == "" {
			a.Position = domain.PositionMissing
		}
		if a.Score == 0 {
			a.Score = a.Position.Score()
		}
		out = append(out, a)
	}
	return out
}

func parseTimestamp(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func labelFromAnswers(answers []domain.EngineAnswer) string {
	if len(answers) == 0 {
		return ""
	}
	return dateLabel(answers[0].Timestamp, "")
}

// Compare renders the before/after report.
func Compare(c Comparison) string {
	before := domain.Measure(c.Before.Answers)
	after := domain.Measure(c.After.Answers)
	beforeLabel := orDefault(c.Before.Label, "GEO执行前")
	afterLabel := orDefault(c.After.Label, "GEO执行后")
	if beforeLabel == afterLabel {
		beforeLabel, afterLabel = beforeLabel+" (前)", afterLabel+" (后)"
	}

	rateChange := after.MentionRate - before.MentionRate
	firstChange := after.FirstRate - before.FirstRate

	trendIcon := "➡️"
	switch {
	case rateChange > 0:
		trendIcon = "📈"
	case rateChange < 0:
		trendIcon = "📉"
	}

	var b strings.Builder
	stamp := c.GeneratedAt.Format(timeLayout)

	b.WriteString("# GEO 效果对比报告\n\n")
	fmt.Fprintf(&b, "**客户**：%s\n**报告生成时间**：%s\n\n---\n\n", c.ClientName, stamp)

	b.WriteString("## 📊 核心指标对比\n\n")
	fmt.Fprintf(&b, "| 指标 | %s | %s | 变化 |\n", beforeLabel, afterLabel)
	b.WriteString("|------|------|------|------|\n")
	fmt.Fprintf(&b, "| **提及率** | %.0f%% | %.0f%% | %s %+.0f%% |\n", before.MentionRate, after.MentionRate, trendIcon, rateChange)
	fmt.Fprintf(&b, "| **首段占位率** | %.0f%% | %.0f%% | %+.0f%% |\n", before.FirstRate, after.FirstRate, firstChange)
	fmt.Fprintf(&b, "| 平均得分 | %.1f | %.1f | %+.1f |\n", before.AvgScore, after.AvgScore, after.AvgScore-before.AvgScore)
	fmt.Fprintf(&b, "| 测试问题数 | %d | %d | - |\n", before.Total, after.Total)
	fmt.Fprintf(&b, "| 被提及次数 | %d | %d | %+d |\n\n---\n\n", before.Mentioned, after.Mentioned, after.Mentioned-before.Mentioned)

	b.WriteString("## 📈 变化趋势分析\n\n")
	switch {
	case rateChange > 20:
		fmt.Fprintf(&b, "### ✅ 提及率显著提升 (+%.0f%%)\n\nGEO 策略执行效果明显，AI 对品牌的认知和引用意愿大幅增强。\n\n", rateChange)
	case rateChange > 5:
		fmt.Fprintf(&b, "### 📈 提及率稳步提升 (+%.0f%%)\n\nGEO 策略初见成效，建议继续加强语义资产投放。\n\n", rateChange)
	case rateChange > -5:
		fmt.Fprintf(&b, "### ➡️ 提及率基本持平 (%+.0f%%)\n\n需要检查内容投放质量和平台覆盖度。\n\n", rateChange)
	default:
		fmt.Fprintf(&b, "### ⚠️ 提及率下降 (%.0f%%)\n\n需要分析原因：竞品活动增加？内容覆盖不足？建议复盘调整策略。\n\n", rateChange)
	}
	switch {
	case firstChange > 10:
		fmt.Fprintf(&b, "### ✅ 首段占位率提升 (+%.0f%%)\n\n品牌在 AI 答案中的“黄金位置”出现更频繁，决策影响力增强。\n\n", firstChange)
	case firstChange > 0:
		fmt.Fprintf(&b, "### 📈 首段占位略有提升 (+%.0f%%)\n\n建议继续优化核心问题的语义锚点，争取更多首段曝光。\n\n", firstChange)
	}

	b.WriteString("---\n\n## 📝 逐题对比详情\n\n")
	b.WriteString("| 序号 | 问题 | 执行前 | 执行后 | 变化 |\n")
	b.WriteString("|------|------|--------|--------|------|\n")
	for i, row := range QuestionChanges(c.Before.Answers, c.After.Answers) {
		fmt.Fprintf(&b, "| Q%d | %s | %s | %s | %s |\n", i+1, clip(row.Question, questionRunes), row.Before, row.After, row.Change)
	}

	b.WriteString("\n---\n\n## 🎯 下一步行动建议\n\n")
	switch {
	case rateChange > 10:
		b.WriteString("1. ✅ 当前策略有效，继续执行\n2. 扩大问题集覆盖范围，测试更多长尾问题\n3. 将成功案例整理成客户交付报告\n")
	case rateChange > 0:
		b.WriteString("1. 继续投放高权重平台内容\n2. 针对未提及的问题，补充对应的语义资产\n3. 增加内容的“硬核锚点”密度\n")
	default:
		b.WriteString("1. ⚠️ 复盘内容投放策略\n2. 检查竞品近期的 GEO 动作\n3. 考虑增加投放频率和平台覆盖\n")
	}
	fmt.Fprintf(&b, "\n---\n\n*报告生成时间: %s*\n", stamp)

	return b.String()
}

// Change classifies how one question moved between runs.
type Change string

const (
	ChangeNone    Change = "-"
	ChangeGained  Change = "🆕 新增提及"
	ChangeLost    Change = "⚠️ 失去提及"
	ChangeToFirst Change = "📈 进入首段"
)

// QuestionRow is one line of the per-question table.
type QuestionRow struct {
	Question string
	Before   string
	After    string
	Change   Change
}

// QuestionChanges pairs answers by index.
func QuestionChanges(before, after []domain.EngineAnswer) []QuestionRow {
	n := max(len(before), len(after))
	rows := make([]QuestionRow, 0, n)
	for i := range n {
		var b, a *domain.EngineAnswer
		if i < len(before) {
			b = &before[i]
		}
		if i < len(after) {
			a = &after[i]
		}

		row := QuestionRow{Before: cell(b), After: cell(a), Change: ChangeNone}
		if b != nil {
			row.Question = b.Question
		} else {
			row.Question = a.Question
		}

		if b != nil && a != nil {
			switch {
			case !b.AnyMention && a.AnyMention:
				row.Change = ChangeGained
			case b.AnyMention && !a.AnyMention:
				row.Change = ChangeLost
			case b.Position != a.Position && a.Position == domain.PositionFirst:
				row.Change = ChangeToFirst
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func cell(a *domain.EngineAnswer) string {
	if a == nil {
		return "❌ (-)"
	}
	mark := "❌"
	if a.AnyMention {
		mark = "✅"
	}
	pos := string(a.Position)
	if pos == "" {
		pos = "-"
	}
	return fmt.Sprintf("%s (%s)", mark, pos)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
