// Package extract recovers keyword and question lists from the markdown
// matrix produced by the D stage.
//
// Two table layouts are understood. In the single-cell layout the section
// label occupies one cell and every item sits in the neighbouring cell,
// numbered and separated by <br>:
//
//	| **1. 硬核实体词** | 1. 械字号III类<br>2. 聚左旋乳酸 (专利) |
//
// In the multi-row layout each item is a row of its own:
//
//	| **1. 硬核实体词** | 1 | **械字号 III 类** | 说明 |
//	| | 2 | **聚左旋乳酸** | 说明 |
//
// When neither layout yields anything the built-in defaults are returned and
// the result is marked degraded.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"GeoTool/internal/domain"
)

// DefaultKeywords is returned when no keyword could be recovered.
var DefaultKeywords = []string{"产品名称", "核心技术", "临床数据"}

// DefaultQuestions is returned when no question could be recovered.
var DefaultQuestions = []string{
	"这个产品安全吗？有什么副作用？",
	"这个产品的效果能维持多久？",
	"这个产品和同类产品相比有什么优势？",
}

// Result is the outcome of one extraction.
type Result struct {
	Keywords          []string
	Questions         []string
	KeywordsDegraded  bool
	QuestionsDegraded bool
	Warnings          []string
}

// Degraded reports whether any list fell back to defaults.
func (r Result) Degraded() bool {
	return r.KeywordsDegraded || r.QuestionsDegraded
}

// Err returns domain.ErrExtractionDegraded for degraded results.
func (r Result) Err() error {
	if !r.Degraded() {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrExtractionDegraded, strings.Join(r.Warnings, "; "))
}

type section struct {
	name     string
	label    *regexp.Regexp
	minRunes int
	clean    func(string) string
	defaults []string
}

var (
	keywordSection = section{
		name:     "keywords",
		label:    regexp.MustCompile(`\*\*\s*(?:\d+\s*[.、．]\s*)?硬核实体词\s*\*\*`),
		minRunes: 2,
		clean:    cleanKeyword,
		defaults: DefaultKeywords,
	}
	questionSection = section{
		name:     "questions",
		label:    regexp.MustCompile(`\*\*\s*(?:\d+\s*[.、．]\s*)?预测\s*AI\s*热门提问\s*\*\*`),
		minRunes: 6,
		clean:    cleanQuestion,
		defaults: DefaultQuestions,
	}

	nextLabelExpr  = regexp.MustCompile(`(?m)^\s*(?:\|\s*)?\*\*\s*\d+\s*[.、．]`)
	separatorExpr  = regexp.MustCompile(`(?i)<br\s*/?>|\||\n`)
	numberedExpr   = regexp.MustCompile(`^\s*\d+\s*[.、．]\s*(.+)$`)
	tableRowExpr   = regexp.MustCompile(`^\s*\|(?:[^|\n]*\|)?\s*\d+\s*\|\s*\*\*(.+?)\*\*`)
	roundExpr      = regexp.MustCompile(`\s*\([^)]*\)`)
	squareExpr     = regexp.MustCompile(`\s*\[[^\]]*\]`)
	fullRoundExpr  = regexp.MustCompile(`\s*（[^）]*）`)
	fullSquareExpr = regexp.MustCompile(`\s*【[^】]*】`)
)

// Extract parses a D-stage artifact into keywords and questions.
func Extract(text string) Result {
	var res Result

	res.Keywords = extractSection(text, keywordSection)
	if len(res.Keywords) == 0 {
		res.Keywords = append([]string(nil), keywordSection.defaults...)
		res.KeywordsDegraded = true
		res.Warnings = append(res.Warnings, "no hard-core entity words found, using default keywords")
	}

	res.Questions = extractSection(text, questionSection)
	if len(res.Questions) == 0 {
		res.Questions = append([]string(nil), questionSection.defaults...)
		res.QuestionsDegraded = true
		res.Warnings = append(res.Warnings, "no predicted AI questions found, using default questions")
	}

	return res
}

// Limit truncates items to at most n entries.
func Limit(items []string, n int) []string {
	if n < 0 || len(items) <= n {
		return items
	}
	return items[:n]
}

func extractSection(text string, sec section) []string {
	if items := singleCell(text, sec); len(items) > 0 {
		return items
	}
	return multiRow(text, sec)
}

// singleCell reads the remainder of the label's row and keeps numbered pieces.
// Every occurrence of the label is tried, so a label quoted in prose before
// the table does not hide it.
func singleCell(text string, sec section) []string {
	for _, loc := range sec.label.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		if end := strings.IndexByte(rest, '\n'); end >= 0 {
			rest = rest[:end]
		}
		if items := SplitNumbered(rest, sec.clean, sec.minRunes); len(items) > 0 {
			return items
		}
	}
	return nil
}

// SplitNumbered splits a cell on <br>, pipes and newlines, keeping only pieces
// that start with a list number. Pieces are cleaned and filtered by length.
func SplitNumbered(cell string, clean func(string) string, minRunes int) []string {
	var items []string
	for _, piece := range separatorExpr.Split(cell, -1) {
		m := numberedExpr.FindStringSubmatch(piece)
		if m == nil {
			continue
		}
		item := clean(m[1])
		if utf8.RuneCountInString(item) < minRunes {
			continue
		}
		items = append(items, item)
	}
	return items
}

// multiRow scans table rows between the label and the next line that opens
// with a numbered label. Every occurrence of the label is tried.
func multiRow(text string, sec section) []string {
	for _, loc := range sec.label.FindAllStringIndex(text, -1) {
		if items := rowsAfter(text, loc, sec); len(items) > 0 {
			return items
		}
	}
	return nil
}

func rowsAfter(text string, loc []int, sec section) []string {
	lineStart := strings.LastIndexByte(text[:loc[0]], '\n') + 1
	span := text[lineStart:]
	if lineEnd := strings.IndexByte(text[loc[1]:], '\n'); lineEnd >= 0 {
		from := loc[1] + lineEnd + 1
		if next := nextLabelExpr.FindStringIndex(text[from:]); next != nil {
			span = text[lineStart : from+next[0]]
		}
	}

	var items []string
	for _, line := range strings.Split(span, "\n") {
		m := tableRowExpr.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(m[1])
		if sec.label.MatchString("**" + raw + "**") {
			continue
		}
		item := sec.clean(raw)
		if utf8.RuneCountInString(item) < sec.minRunes {
			continue
		}
		items = append(items, item)
	}
	return items
}

// CleanKeyword strips bracketed annotations and emphasis from a keyword.
func CleanKeyword(s string) string { return cleanKeyword(s) }

func cleanKeyword(s string) string {
	s = stripAnnotations(s)
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(s)
}

func cleanQuestion(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"“”「」『』'")
	return strings.TrimSpace(s)
}

func stripAnnotations(s string) string {
	s = roundExpr.ReplaceAllString(s, "")
	s = squareExpr.ReplaceAllString(s, "")
	s = fullRoundExpr.ReplaceAllString(s, "")
	s = fullSquareExpr.ReplaceAllString(s, "")
	return s
}
