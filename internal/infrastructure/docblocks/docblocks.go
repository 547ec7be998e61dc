// Package docblocks turns markdown artifacts into backend-neutral document
// blocks that the Feishu and Notion document generators translate further.
package docblocks

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Kind enumerates supported block shapes.
type Kind int

const (
	Heading Kind = iota + 1
	Paragraph
	Bullet
	Ordered
	Quote
	Code
	Divider
)

// Block is one renderable unit. Level is only set for headings (1-3).
type Block struct {
	Kind  Kind
	Level int
	Text  string
}

// H builds a heading block.
func H(level int, text string) Block {
	return Block{Kind: Heading, Level: clampLevel(level), Text: text}
}

// P builds a paragraph block.
func P(text string) Block {
	return Block{Kind: Paragraph, Text: text}
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

// FromMarkdown renders src with goldmark and walks the resulting HTML.
func FromMarkdown(src []byte) ([]Block, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}

	var blocks []Block
	doc.Find("body").Children().Each(func(_ int, s *goquery.Selection) {
		blocks = append(blocks, fromNode(s)...)
	})
	return blocks, nil
}

// Limit keeps at most n blocks.
func Limit(blocks []Block, n int) []Block {
	if n < 0 || len(blocks) <= n {
		return blocks
	}
	return blocks[:n]
}

func fromNode(s *goquery.Selection) []Block {
	switch tag := goquery.NodeName(s); tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return nonEmpty(Block{Kind: Heading, Level: clampLevel(int(tag[1] - '0')), Text: text(s)})
	case "ul", "ol":
		kind := Bullet
		if tag == "ol" {
			kind = Ordered
		}
		var items []Block
		s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			own := li.Clone()
			own.Find("ul, ol").Remove()
			items = append(items, nonEmpty(Block{Kind: kind, Text: text(own)})...)
		})
		return items
	case "table":
		var rows []Block
		s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, text(cell))
			})
			rows = append(rows, nonEmpty(P(strings.Join(cells, " | ")))...)
		})
		return rows
	case "blockquote":
		return nonEmpty(Block{Kind: Quote, Text: text(s)})
	case "pre":
		return nonEmpty(Block{Kind: Code, Text: strings.TrimRight(s.Text(), "\n")})
	case "hr":
		return []Block{{Kind: Divider}}
	default:
		return nonEmpty(P(text(s)))
	}
}

func nonEmpty(b Block) []Block {
	if strings.TrimSpace(b.Text) == "" {
		return nil
	}
	return []Block{b}
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func clampLevel(level int) int {
	switch {
	case level < 1:
		return 1
	case level > 3:
		return 3
	default:
		return level
	}
}
