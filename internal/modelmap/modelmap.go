// Package modelmap implements the Model Resolver: mapping a client-supplied
// model name to an upstream model name via a configured table, falling back
// to a case-folded exact match, an unambiguous prefix match, or a default.
package modelmap

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Table is the normalized model map: normalized client name -> upstream name.
type Table struct {
	entries map[string]string
	// originalKeys preserves the pre-normalization key per normalized key,
	// useful only for diagnostics.
	originalKeys map[string]string
}

// Parse accepts the MODEL_MAP_JSON configuration value, which may be either
// a flat {name: name} object or wrapped as {"models": {...}}. Mixing both
// forms (top-level "models" key alongside sibling keys) is rejected.
func Parse(raw []byte) (*Table, error) {
	if len(raw) == 0 {
		return &Table{entries: map[string]string{}, originalKeys: map[string]string{}}, nil
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("modelmap: invalid JSON: %w", err)
	}

	var flat map[string]string
	if modelsRaw, ok := generic["models"]; ok {
		if len(generic) != 1 {
			return nil, fmt.Errorf("modelmap: %q must be the only top-level key when present", "models")
		}
		if err := json.Unmarshal(modelsRaw, &flat); err != nil {
			return nil, fmt.Errorf("modelmap: invalid \"models\" object: %w", err)
		}
	} else {
		flat = map[string]string{}
		for k, v := range generic {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("modelmap: value for key %q must be a non-empty string", k)
			}
			flat[k] = s
		}
	}

	entries := make(map[string]string, len(flat))
	originalKeys := make(map[string]string, len(flat))
	for k, v := range flat {
		if v == "" {
			return nil, fmt.Errorf("modelmap: value for key %q must be a non-empty string", k)
		}
		nk := normalize(k)
		if _, dup := entries[nk]; dup {
			return nil, fmt.Errorf("modelmap: keys %q and %q collide after normalization", originalKeys[nk], k)
		}
		entries[nk] = v
		originalKeys[nk] = k
	}

	return &Table{entries: entries, originalKeys: originalKeys}, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve maps a client-supplied model name to an upstream model name.
// Lookup order: exact normalized match, then unique prefix match (a key is
// considered a prefix match when it is a prefix of the normalized input OR
// the normalized input is a prefix of it — this symmetric test is what
// makes two sibling keys like "foo-a"/"foo-b" both match input "foo" and
// therefore resolve as ambiguous, matching the ambiguous-prefix property),
// then the default.
func (t *Table) Resolve(input, def string) string {
	normalized := normalize(input)
	if normalized == "" {
		return def
	}

	if t != nil {
		if upstream, ok := t.entries[normalized]; ok {
			return upstream
		}

		var matches []string
		for key := range t.entries {
			if sharesPrefix(normalized, key) {
				matches = append(matches, key)
			}
		}
		if len(matches) == 1 {
			return t.entries[matches[0]]
		}
	}

	return def
}

// sharesPrefix reports whether the shorter of a, b is a prefix of the
// longer one.
func sharesPrefix(a, b string) bool {
	if len(a) <= len(b) {
		return strings.HasPrefix(b, a)
	}
	return strings.HasPrefix(a, b)
}
