package config

import (
	"reflect"
	"sort"
	"strings"
)

// KeyPath addresses a value in the raw YAML document, e.g. "llm.providers.gemini.apiKey".
type KeyPath []string

// Sections lists the top-level keys of the config file.
func Sections() []string {
	t := reflect.TypeOf(Config{})
	out := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name != "" && name != "-" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ParseKeyPath splits a dotted key. The first segment must name a config section
// so typos are caught before they land in the file.
func ParseKeyPath(raw string) (KeyPath, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Path: raw, Message: "empty key segment"}
		}
	}
	sections := Sections()
	if i := sort.SearchStrings(sections, parts[0]); i == len(sections) || sections[i] != parts[0] {
		return nil, &ConfigError{
			Path:    raw,
			Message: "unknown section " + parts[0] + " (known: " + strings.Join(sections, ", ") + ")",
		}
	}
	return KeyPath(parts), nil
}

func (k KeyPath) String() string { return strings.Join(k, ".") }

// Get walks root along the path.
func (k KeyPath) Get(root map[string]any) (any, bool) {
	var cur any = root
	for _, key := range k {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at the path. Missing or scalar intermediates are replaced by maps.
func (k KeyPath) Set(root map[string]any, value any) {
	parent := root
	for _, key := range k[:len(k)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			parent[key] = child
		}
		parent = child
	}
	parent[k[len(k)-1]] = value
}

// Unset deletes the value at the path and reports whether it was there.
func (k KeyPath) Unset(root map[string]any) bool {
	if len(k) == 0 {
		return false
	}
	v, ok := k[:len(k)-1].Get(root)
	if !ok {
		return false
	}
	parent, ok := v.(map[string]any)
	if !ok {
		return false
	}
	last := k[len(k)-1]
	if _, ok := parent[last]; !ok {
		return false
	}
	delete(parent, last)
	return true
}
