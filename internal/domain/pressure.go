package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Position locates the first brand mention inside an answer.
type Position string

const (
	PositionFirst   Position = "首段"
	PositionMiddle  Position = "中间"
	PositionEnd     Position = "末尾"
	PositionMissing Position = "未提及"
)

// Score weights a mention by how early it appears.
func (p Position) Score() float64 {
	switch p {
	case PositionFirst:
		return 100
	case PositionMiddle:
		return 60
	case PositionEnd:
		return 30
	default:
		return 0
	}
}

// LocateMention finds the earliest keyword, in keyword order, and classifies
// its offset as a share of the answer length. Matching ignores case.
func LocateMention(answer string, keywords []string) Position {
	total := utf8.RuneCountInString(answer)
	if total == 0 {
		return PositionMissing
	}
	lower := strings.ToLower(answer)
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		idx := strings.Index(lower, keyword)
		if idx < 0 {
			continue
		}
		ratio := float64(utf8.RuneCountInString(lower[:idx])) / float64(total)
		switch {
		case ratio < 0.25:
			return PositionFirst
		case ratio < 0.75:
			return PositionMiddle
		default:
			return PositionEnd
		}
	}
	return PositionMissing
}

// Mentions reports, per keyword, whether the answer contains it.
func Mentions(answer string, keywords []string) map[string]bool {
	lower := strings.ToLower(answer)
	out := make(map[string]bool, len(keywords))
	for _, keyword := range keywords {
		trimmed := strings.ToLower(strings.TrimSpace(keyword))
		out[keyword] = trimmed != "" && strings.Contains(lower, trimmed)
	}
	return out
}

// EngineAnswer is one question asked to one engine.
type EngineAnswer struct {
	Question   string          `json:"question"`
	Answer     string          `json:"answer,omitempty"`
	Mentions   map[string]bool `json:"mentions,omitempty"`
	AnyMention bool            `json:"any_mention"`
	Position   Position        `json:"position,omitempty"`
	Score      float64         `json:"score"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// EngineResult collects the answers of one engine. Error is set when the
// engine could not be used at all.
type EngineResult struct {
	Engine  string         `json:"engine"`
	Name    string         `json:"name"`
	Answers []EngineAnswer `json:"answers,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Metrics summarises a list of answers.
type Metrics struct {
	Total       int     `json:"total"`
	Mentioned   int     `json:"mentioned"`
	FirstPlaced int     `json:"first_placed"`
	MentionRate float64 `json:"mention_rate"`
	FirstRate   float64 `json:"first_rate"`
	AvgScore    float64 `json:"avg_score"`
}

// Measure computes metrics over answers; errored answers count towards the
// total and score zero.
func Measure(answers []EngineAnswer) Metrics {
	m := Metrics{Total: len(answers)}
	if m.Total == 0 {
		return m
	}
	var score float64
	for _, a := range answers {
		if a.AnyMention {
			m.Mentioned++
		}
		if a.Position == PositionFirst {
			m.FirstPlaced++
		}
		score += a.Score
	}
	m.MentionRate = float64(m.Mentioned) / float64(m.Total) * 100
	m.FirstRate = float64(m.FirstPlaced) / float64(m.Total) * 100
	m.AvgScore = score / float64(m.Total)
	return m
}

// PressureResult is the full outcome of one pressure test.
type PressureResult struct {
	ClientName string         `json:"client_name"`
	Keywords   []string       `json:"keywords"`
	Questions  []string       `json:"questions"`
	TestedAt   time.Time      `json:"tested_at"`
	Engines    []EngineResult `json:"engines"`
	Overall    Metrics        `json:"overall"`
	Trend      Trend          `json:"trend"`
	Previous   *float64       `json:"previous_avg_score,omitempty"`
}

// Answers flattens the answers of every usable engine in engine order.
func (r PressureResult) Answers() []EngineAnswer {
	var out []EngineAnswer
	for _, e := range r.Engines {
		out = append(out, e.Answers...)
	}
	return out
}

// TrendBetween compares two average scores with a five point dead band.
func TrendBetween(previous, current float64) Trend {
	switch diff := current - previous; {
	case diff > 5:
		return TrendUp
	case diff < -5:
		return TrendDown
	default:
		return TrendFlat
	}
}
