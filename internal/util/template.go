package util

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var instructionFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	},
}

// parsed instruction templates keyed by their source text.
var instructionCache sync.Map

// RenderTemplate renders an agent instruction with text/template. The agent
// loop supplies agent, description, input, run_id and session_id; per-run
// state is merged on top and may shadow them. Text without "{{" is returned
// unchanged.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := instructionTemplate(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", fmt.Errorf("render instruction: %w", err)
	}

	return buf.String(), nil
}

func instructionTemplate(text string) (*template.Template, error) {
	if t, ok := instructionCache.Load(text); ok {
		return t.(*template.Template), nil
	}

	t, err := template.New("instruction").Funcs(instructionFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse instruction: %w", err)
	}

	instructionCache.Store(text, t)

	return t, nil
}
