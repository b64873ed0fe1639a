// Package credentials resolves secrets (API keys, push tokens) from an
// ordered chain of sources. The first source holding a non-empty value
// wins, so the process environment overrides a dotenv file.
package credentials

import (
	"fmt"
	"os"
	"strings"
)

// Source is one place a credential may live.
type Source interface {
	// Name describes the source for error messages, e.g. "environment".
	Name() string
	// Lookup returns the value for key and whether it was found non-empty.
	Lookup(key string) (string, bool)
}

// Resolver looks up credentials by exact key name.
type Resolver interface {
	Lookup(key string) (string, bool)
	// Describe lists the channels consulted, in precedence order.
	Describe() []string
}

// Chain is a Resolver consulting its sources in order.
type Chain []Source

// Lookup returns the first non-empty value for key.
func (c Chain) Lookup(key string) (string, bool) {
	for _, s := range c {
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Describe implements Resolver.
func (c Chain) Describe() []string {
	names := make([]string, 0, len(c))
	for _, s := range c {
		names = append(names, s.Name())
	}
	return names
}

// MissingError reports a required credential that no source provided.
// It never carries a value.
type MissingError struct {
	Key     string
	Checked []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s is not set (checked: %s). Export it in the server environment, add it to the MCP client config 'env' section, or put it in the dotenv file",
		e.Key, strings.Join(e.Checked, ", "))
}

// Require returns the value for key or a *MissingError.
func Require(r Resolver, key string) (string, error) {
	if v, ok := r.Lookup(key); ok {
		return v, nil
	}
	return "", &MissingError{Key: key, Checked: r.Describe()}
}

// Env reads the process environment.
type Env struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

func (Env) Name() string { return "environment" }

func (e Env) Lookup(key string) (string, bool) {
	lookup := e.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Static serves values from a map. Tests use it to inject credentials
// without touching the real environment.
type Static map[string]string

func (Static) Name() string { return "static" }

func (s Static) Lookup(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
