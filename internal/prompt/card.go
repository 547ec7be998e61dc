package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field is one top-level entry of a client input card.
type Field struct {
	Key   string
	Value string
}

// Card is a client input card. Fields keep the order of the source document.
type Card struct {
	Fields []Field
	raw    []byte
}

// ParseCard reads a JSON or YAML mapping.
func ParseCard(raw []byte) (Card, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return Card{}, fmt.Errorf("parse client card: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return Card{}, errors.New("parse client card: top level must be a mapping")
	}

	mapping := root.Content[0]
	fields := make([]Field, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		fields = append(fields, Field{
			Key:   mapping.Content[i].Value,
			Value: flatten(mapping.Content[i+1]),
		})
	}

	return Card{Fields: fields, raw: raw}, nil
}

// Format renders the card as "- key: value" lines; lists are comma joined.
func (c Card) Format() string {
	lines := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		lines = append(lines, fmt.Sprintf("- %s: %s", f.Key, f.Value))
	}
	return strings.Join(lines, "\n")
}

// Lookup returns the first non-empty value among keys.
func (c Card) Lookup(keys ...string) string {
	for _, key := range keys {
		for _, f := range c.Fields {
			if f.Key == key && strings.TrimSpace(f.Value) != "" {
				return f.Value
			}
		}
	}
	return ""
}

// JSON returns an indented JSON copy of the card. JSON sources keep their
// key order; YAML sources are re-encoded.
func (c Card) JSON() ([]byte, error) {
	if json.Valid(c.raw) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, c.raw, "", "  "); err != nil {
			return nil, fmt.Errorf("indent client card: %w", err)
		}
		return buf.Bytes(), nil
	}

	var data map[string]any
	if err := yaml.Unmarshal(c.raw, &data); err != nil {
		return nil, fmt.Errorf("decode client card: %w", err)
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode client card: %w", err)
	}
	return out, nil
}

func flatten(node *yaml.Node) string {
	switch node.Kind {
	case yaml.AliasNode:
		return flatten(node.Alias)
	case yaml.SequenceNode:
		items := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			items = append(items, flatten(child))
		}
		return strings.Join(items, ", ")
	case yaml.MappingNode:
		pairs := make([]string, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			pairs = append(pairs, node.Content[i].Value+": "+flatten(node.Content[i+1]))
		}
		return "{" + strings.Join(pairs, ", ") + "}"
	default:
		if node.Tag == "!!null" {
			return ""
		}
		return node.Value
	}
}
