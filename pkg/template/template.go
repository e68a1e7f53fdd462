package template

import (
	"fmt"
	"strings"
	"sync"
)

const (
	openTag  = "{{"
	closeTag = "}}"
	ifPrefix = "{{#if "
	endIf    = "{{/if}}"
)

// Render substitutes placeholders in body using data as context.
func Render(body string, data map[string]any) string {
	var sb strings.Builder
	sb.Grow(len(body))
	renderInto(&sb, body, data)
	return sb.String()
}

func renderInto(sb *strings.Builder, body string, data map[string]any) {
	for {
		start := strings.Index(body, openTag)
		if start < 0 {
			sb.WriteString(body)
			return
		}
		sb.WriteString(body[:start])
		rest := body[start:]

		if strings.HasPrefix(rest, ifPrefix) {
			name, inner, remainder, ok := parseIfBlock(rest)
			if !ok {
				// Unterminated block: emit verbatim rather than fail.
				sb.WriteString(rest)
				return
			}
			if truthy(data[name]) {
				renderInto(sb, inner, data)
			}
			body = remainder
			continue
		}

		end := strings.Index(rest, closeTag)
		if end < 0 {
			sb.WriteString(rest)
			return
		}
		name := strings.TrimSpace(rest[len(openTag):end])
		sb.WriteString(stringify(data[name]))
		body = rest[end+len(closeTag):]
	}
}

// parseIfBlock splits "{{#if name}}inner{{/if}}remainder", matching the
// closing tag of the same nesting depth.
func parseIfBlock(s string) (name, inner, remainder string, ok bool) {
	headEnd := strings.Index(s, closeTag)
	if headEnd < 0 {
		return "", "", "", false
	}
	name = strings.TrimSpace(s[len(ifPrefix):headEnd])
	rest := s[headEnd+len(closeTag):]

	depth := 1
	pos := 0
	for depth > 0 {
		nextIf := strings.Index(rest[pos:], ifPrefix)
		nextEnd := strings.Index(rest[pos:], endIf)
		if nextEnd < 0 {
			return "", "", "", false
		}
		if nextIf >= 0 && nextIf < nextEnd {
			depth++
			pos += nextIf + len(ifPrefix)
			continue
		}
		depth--
		if depth == 0 {
			return name, rest[:pos+nextEnd], rest[pos+nextEnd+len(endIf):], true
		}
		pos += nextEnd + len(endIf)
	}
	return "", "", "", false
}

// truthy follows the conventions callers expect from conditional blocks:
// missing keys, nil, false, empty strings and zero numbers are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Definition is a named notification template: a subject line, a plain-text
// body and an optional HTML body, all sharing one placeholder context.
type Definition struct {
	Subject string
	Body    string
	HTML    string
}

// RenderedContent is the materialized output of a Definition.
type RenderedContent struct {
	Subject string
	Body    string
	HTML    string
}

// Render materializes the definition against the given context.
func (d Definition) Render(data map[string]any) RenderedContent {
	return RenderedContent{
		Subject: Render(d.Subject, data),
		Body:    Render(d.Body, data),
		HTML:    Render(d.HTML, data),
	}
}

// Registry is a concurrency-safe template catalog keyed by template ID.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates a registry preloaded with the given definitions.
func NewRegistry(defs map[string]Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for id, def := range defs {
		r.defs[id] = def
	}
	return r
}

// Register adds or replaces a template definition.
func (r *Registry) Register(id string, def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[id] = def
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}
