package profile

import (
	"strings"
	"unicode/utf8"
)

const (
	maxNameLength        = 60
	maxDescriptionLength = 160
)

// Descriptor is the backend-ready payload for one profile. Only fields that
// parsed cleanly are present; the backend's own defaults apply to the rest.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Samples     int            `json:"samples"`
	Settings    map[string]any `json:"settings"`
	Options     map[string]any `json:"options"`
}

// ToDescriptor projects a form onto the backend payload.
func ToDescriptor(f Form) Descriptor {
	name := truncate(strings.TrimSpace(f.Name), maxNameLength)
	if name == "" {
		name = "profile"
	}
	d := Descriptor{
		Name:        name,
		Description: truncate(strings.TrimSpace(f.Description), maxDescriptionLength),
		Samples:     clampSamples(f.Samples),
		Settings:    parseNamespace(f.Settings),
		Options:     parseNamespace(f.Options),
	}
	d.Settings[SpeculativeSettingKey] = f.Speculative
	return d
}

// BuildPatch extracts the backend settings of a form as a partial
// configuration patch. Unset, empty or unparseable fields are left out.
func BuildPatch(f Form) map[string]any {
	patch := parseNamespace(f.Settings)
	patch[SpeculativeSettingKey] = f.Speculative
	return patch
}

// ParseValue converts a raw text value to the field's type. ok is false when
// the value is empty or does not parse.
func ParseValue(f Field, raw string) (any, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}
	switch f.Kind() {
	case KindInt:
		n, ok := parseInt(s)
		if !ok {
			return nil, false
		}
		return n, true
	case KindFloat:
		v, ok := parseFloat(s)
		if !ok {
			return nil, false
		}
		return v, true
	case KindBool:
		b, err := ParseBool(s)
		if err != nil {
			return nil, false
		}
		return b, true
	default:
		return s, true
	}
}

func parseNamespace(values map[Field]string) map[string]any {
	out := make(map[string]any, len(values))
	for f, raw := range values {
		if v, ok := ParseValue(f, raw); ok {
			out[string(f)] = v
		}
	}
	return out
}

func clampSamples(n int) int {
	if n < MinSamples {
		return MinSamples
	}
	if n > MaxSamples {
		return MaxSamples
	}
	return n
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
