package notion

import (
	"strings"
	"time"
	"unicode/utf8"
)

// maxTextRunes is the content limit of one rich text object.
const maxTextRunes = 2000

// Properties is the property payload of a page.
type Properties map[string]any

// Title sets the title property.
func (p Properties) Title(name, value string) Properties {
	p[name] = map[string]any{"title": richText(value)}
	return p
}

// Text sets a rich_text property; empty values are omitted.
func (p Properties) Text(name, value string) Properties {
	if strings.TrimSpace(value) != "" {
		p[name] = map[string]any{"rich_text": richText(value)}
	}
	return p
}

// Select sets a select option; empty values are omitted.
func (p Properties) Select(name, value string) Properties {
	if value != "" {
		p[name] = map[string]any{"select": map[string]string{"name": value}}
	}
	return p
}

// MultiSelect sets a multi_select property, always present even when empty.
func (p Properties) MultiSelect(name string, values []string) Properties {
	options := make([]map[string]string, 0, len(values))
	for _, v := range values {
		options = append(options, map[string]string{"name": v})
	}
	p[name] = map[string]any{"multi_select": options}
	return p
}

// Number sets a number property.
func (p Properties) Number(name string, value float64) Properties {
	p[name] = map[string]any{"number": value}
	return p
}

// Date sets a date property; zero times are omitted.
func (p Properties) Date(name string, value time.Time) Properties {
	if !value.IsZero() {
		p[name] = map[string]any{"date": map[string]string{"start": value.Format(time.RFC3339)}}
	}
	return p
}

// Relation links to pages by id; empty ids are dropped.
func (p Properties) Relation(name string, ids ...string) Properties {
	refs := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			refs = append(refs, map[string]string{"id": id})
		}
	}
	if len(refs) > 0 {
		p[name] = map[string]any{"relation": refs}
	}
	return p
}

// richText splits value into objects that respect the per-object limit.
func richText(value string) []map[string]any {
	var parts []map[string]any
	for value != "" {
		chunk := value
		if utf8.RuneCountInString(chunk) > maxTextRunes {
			chunk = string([]rune(chunk)[:maxTextRunes])
		}
		parts = append(parts, map[string]any{"type": "text", "text": map[string]string{"content": chunk}})
		value = value[len(chunk):]
	}
	if parts == nil {
		parts = []map[string]any{}
	}
	return parts
}

type page struct {
	ID          string              `json:"id"`
	URL         string              `json:"url"`
	CreatedTime time.Time           `json:"created_time"`
	Archived    bool                `json:"archived"`
	Properties  map[string]property `json:"properties"`
}

type textObject struct {
	PlainText string `json:"plain_text"`
	Text      struct {
		Content string `json:"content"`
	} `json:"text"`
}

type option struct {
	Name string `json:"name"`
}

type property struct {
	Type        string       `json:"type"`
	Title       []textObject `json:"title"`
	RichText    []textObject `json:"rich_text"`
	Select      *option      `json:"select"`
	MultiSelect []option     `json:"multi_select"`
	Number      *float64     `json:"number"`
	Date        *struct {
		Start string `json:"start"`
	} `json:"date"`
	Relation []struct {
		ID string `json:"id"`
	} `json:"relation"`
}

// String flattens a property to display text.
func (p property) String() string {
	switch p.Type {
	case "title":
		return joinText(p.Title)
	case "rich_text":
		return joinText(p.RichText)
	case "select":
		if p.Select != nil {
			return p.Select.Name
		}
	case "multi_select":
		names := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			names = append(names, o.Name)
		}
		return strings.Join(names, ", ")
	case "date":
		if p.Date != nil {
			return p.Date.Start
		}
	case "relation":
		if len(p.Relation) > 0 {
			return p.Relation[0].ID
		}
	}
	return ""
}

// Time parses a date property, accepting both date and date-time values.
func (p property) Time() time.Time {
	if p.Date == nil {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, p.Date.Start); err == nil {
			return t
		}
	}
	return time.Time{}
}

func joinText(parts []textObject) string {
	var sb strings.Builder
	for _, part := range parts {
		if part.PlainText != "" {
			sb.WriteString(part.PlainText)
			continue
		}
		sb.WriteString(part.Text.Content)
	}
	return sb.String()
}
