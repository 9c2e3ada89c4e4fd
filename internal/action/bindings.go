package action

import (
	"fmt"
	"sort"
	"strings"
)

// modifierOrder fixes the position of modifiers in a normalized combo.
var modifierOrder = map[string]int{
	"ctrl":  0,
	"alt":   1,
	"shift": 2,
	"super": 3,
}

// modifierAliases maps alternative spellings onto canonical modifier names.
var modifierAliases = map[string]string{
	"control": "ctrl",
	"cmd":     "super",
	"meta":    "super",
	"win":     "super",
	"option":  "alt",
}

// Bindings maps normalized key combinations to actions.
type Bindings map[string]Action

// DefaultBindings returns the bindings used when the settings file has none.
func DefaultBindings() Bindings {
	return Bindings{
		"ctrl+alt+s": Start,
		"ctrl+alt+x": Stop,
		"ctrl+alt+p": Pause,
		"ctrl+alt+g": Generate,
		"ctrl+alt+o": ToggleOverlay,
	}
}

// ParseBindings builds Bindings from raw combo → action strings, as read
// from the settings file. Two combos that normalize to the same key are
// an error.
func ParseBindings(raw map[string]string) (Bindings, error) {
	b := make(Bindings, len(raw))
	for combo, name := range raw {
		key, err := NormalizeCombo(combo)
		if err != nil {
			return nil, err
		}
		a, err := Parse(name)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", combo, err)
		}
		if existing, dup := b[key]; dup && existing != a {
			return nil, fmt.Errorf("%w: %q bound to both %s and %s", ErrInvalidCombo, key, existing, a)
		}
		b[key] = a
	}
	return b, nil
}

// Resolve returns the action bound to combo.
func (b Bindings) Resolve(combo string) (Action, bool) {
	key, err := NormalizeCombo(combo)
	if err != nil {
		return "", false
	}
	a, ok := b[key]
	return a, ok
}

// NormalizeCombo lowercases combo and orders its modifiers, so
// "Shift+Ctrl+S" and "ctrl+shift+s" compare equal. Exactly one
// non-modifier key is required.
func NormalizeCombo(combo string) (string, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")

	var mods []string
	var key string
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidCombo, combo)
		}
		if alias, ok := modifierAliases[p]; ok {
			p = alias
		}
		if _, isMod := modifierOrder[p]; isMod {
			if !seen[p] {
				mods = append(mods, p)
				seen[p] = true
			}
			continue
		}
		if key != "" {
			return "", fmt.Errorf("%w: %q has more than one key", ErrInvalidCombo, combo)
		}
		key = p
	}
	if key == "" {
		return "", fmt.Errorf("%w: %q has no key", ErrInvalidCombo, combo)
	}

	sort.Slice(mods, func(i, j int) bool {
		return modifierOrder[mods[i]] < modifierOrder[mods[j]]
	})
	return strings.Join(append(mods, key), "+"), nil
}
