package variation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
)

// Axis is one tunable parameter with its declared candidate values.
type Axis struct {
	Key    profile.Field
	Label  string
	Values []string
}

// SyntaxError reports a malformed line of variation text.
type SyntaxError struct {
	Line   int
	Text   string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Parse compiles variation text, one "key=v1,v2,..." axis per line. Blank
// lines and lines starting with '#' are ignored. Axis order follows the
// text.
func Parse(text string) ([]Axis, error) {
	var axes []Axis
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		axis, err := parseLine(line)
		if err != nil {
			var syntax *SyntaxError
			if errors.As(err, &syntax) {
				syntax.Line = i + 1
				return nil, syntax
			}
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		axes = append(axes, axis)
	}
	return axes, nil
}

// NewAxis builds an axis from a raw key and raw values, applying the same
// normalization as Parse. Values equal after normalization are kept once.
func NewAxis(key string, values []string) (Axis, error) {
	field, err := profile.ParseField(key)
	if err != nil {
		return Axis{}, err
	}
	cleaned := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		// first spelling wins: 0.5,0.50 and on,yes each collapse to one value
		key := profile.NormalizeValue(field, v)
		if seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, v)
	}
	if len(cleaned) == 0 {
		return Axis{}, &SyntaxError{Text: key, Reason: "no values"}
	}
	return Axis{Key: field, Label: string(field), Values: cleaned}, nil
}

func parseLine(line string) (Axis, error) {
	key, rhs, found := strings.Cut(line, "=")
	if !found {
		return Axis{}, &SyntaxError{Text: line, Reason: "missing '='"}
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return Axis{}, &SyntaxError{Text: line, Reason: "missing parameter name"}
	}
	axis, err := NewAxis(key, strings.Split(rhs, ","))
	var syntax *SyntaxError
	if errors.As(err, &syntax) {
		syntax.Text = line
	}
	return axis, err
}
