package hotkey

import (
	"fmt"
	"strings"
)

type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModShift
	ModAlt
	ModSuper
)

// Accelerator is a parsed shortcut such as "Ctrl+Shift+R".
type Accelerator struct {
	Mods Modifier
	// Key is the canonical key name: "A".."Z", "0".."9", "F1".."F12",
	// "Space", "Enter", "Tab" or "Escape".
	Key string
}

func (a Accelerator) String() string {
	var parts []string
	for _, m := range []struct {
		mod  Modifier
		name string
	}{{ModCtrl, "Ctrl"}, {ModAlt, "Alt"}, {ModShift, "Shift"}, {ModSuper, "Super"}} {
		if a.Mods&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(append(parts, a.Key), "+")
}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"option":  ModAlt,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"meta":    ModSuper,
}

var namedKeys = map[string]string{
	"space":  "Space",
	"enter":  "Enter",
	"return": "Enter",
	"tab":    "Tab",
	"esc":    "Escape",
	"escape": "Escape",
}

// ParseAccelerator parses "Mod+Mod+Key". Names are case-insensitive and
// exactly one non-modifier key is required.
func ParseAccelerator(s string) (Accelerator, error) {
	var acc Accelerator
	if strings.TrimSpace(s) == "" {
		return acc, fmt.Errorf("hotkey: empty accelerator")
	}

	for _, raw := range strings.Split(s, "+") {
		part := strings.ToLower(strings.TrimSpace(raw))
		if part == "" {
			return acc, fmt.Errorf("hotkey: malformed accelerator %q", s)
		}
		if mod, ok := modifierNames[part]; ok {
			if acc.Mods&mod != 0 {
				return acc, fmt.Errorf("hotkey: modifier %q repeated in %q", raw, s)
			}
			acc.Mods |= mod
			continue
		}
		if acc.Key != "" {
			return acc, fmt.Errorf("hotkey: more than one key in %q", s)
		}
		key, err := canonicalKey(part)
		if err != nil {
			return acc, fmt.Errorf("hotkey: %w in %q", err, s)
		}
		acc.Key = key
	}

	if acc.Key == "" {
		return acc, fmt.Errorf("hotkey: no key in %q", s)
	}
	return acc, nil
}

func canonicalKey(part string) (string, error) {
	if name, ok := namedKeys[part]; ok {
		return name, nil
	}
	if len(part) == 1 && (part[0] >= 'a' && part[0] <= 'z' || part[0] >= '0' && part[0] <= '9') {
		return strings.ToUpper(part), nil
	}
	var n int
	if _, err := fmt.Sscanf(part, "f%d", &n); err == nil && n >= 1 && n <= 12 && part == fmt.Sprintf("f%d", n) {
		return fmt.Sprintf("F%d", n), nil
	}
	return "", fmt.Errorf("unknown key %q", part)
}
