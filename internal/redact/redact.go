// Package redact scrubs known credential values from text before it is
// returned to an MCP client, logged, or stored.
package redact

import (
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Filter replaces registered secret values with [REDACTED:NAME]
// placeholders. The zero value is not usable; call New.
type Filter struct {
	mu           sync.RWMutex
	replacements map[string]string // secret value -> placeholder
}

// New creates a Filter seeded with name -> value pairs. Empty values are
// ignored.
func New(secrets map[string]string) *Filter {
	f := &Filter{replacements: make(map[string]string)}
	for name, value := range secrets {
		f.Add(name, value)
	}
	return f
}

// Add registers a secret. Both the raw value and its URL-escaped forms are
// scrubbed, since tokens also appear embedded in remote URLs.
func (f *Filter) Add(name, value string) {
	if value == "" {
		return
	}
	if len(value) < 4 {
		slog.Warn("short secret value; redaction may hit unrelated text", "name", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.replacements[value] = "[REDACTED:" + name + "]"
	for _, encoded := range []string{url.QueryEscape(value), url.PathEscape(value)} {
		if encoded != value {
			f.replacements[encoded] = "[REDACTED:" + name + ":urlencoded]"
		}
	}
}

// Redact returns input with every registered value replaced. Longer
// values are replaced first so a secret that contains another is not
// partially exposed.
func (f *Filter) Redact(input string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.replacements) == 0 || input == "" {
		return input
	}
	values := make([]string, 0, len(f.replacements))
	for v := range f.replacements {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })

	result := input
	for _, v := range values {
		result = strings.ReplaceAll(result, v, f.replacements[v])
	}
	return result
}

// Len reports how many distinct values are registered.
func (f *Filter) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.replacements)
}
