package profile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/profile-autotune/pkg/utils"
)

const (
	MinSamples = 1
	MaxSamples = 5
)

// Form is the editable description of one candidate configuration.
// Option and setting values are kept as text and parsed when a descriptor
// is built.
type Form struct {
	ID          string
	Name        string
	Description string
	Samples     int
	Speculative bool
	Options     map[Field]string
	Settings    map[Field]string
}

// NewForm returns an empty form with a fresh identity and one sample.
func NewForm(name string) Form {
	return Form{
		ID:       utils.GenerateID(),
		Name:     name,
		Samples:  MinSamples,
		Options:  make(map[Field]string),
		Settings: make(map[Field]string),
	}
}

// Clone returns a deep copy sharing no maps with f.
func (f Form) Clone() Form {
	out := f
	out.Options = make(map[Field]string, len(f.Options))
	for k, v := range f.Options {
		out.Options[k] = v
	}
	out.Settings = make(map[Field]string, len(f.Settings))
	for k, v := range f.Settings {
		out.Settings[k] = v
	}
	return out
}

// Value returns the current text value of a field and whether it is set.
func (f Form) Value(field Field) (string, bool) {
	switch field {
	case FieldSpeculative:
		return strconv.FormatBool(f.Speculative), true
	case FieldSamples:
		return strconv.Itoa(f.Samples), true
	}
	var v string
	var ok bool
	if field.Namespace() == NamespaceOption {
		v, ok = f.Options[field]
	} else {
		v, ok = f.Settings[field]
	}
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Override is a single typed assignment applied on top of a base form.
type Override struct {
	Field Field
	Value string
}

// OverridesFromMap converts loosely typed key/value pairs, sorted by key.
func OverridesFromMap(values map[string]string) ([]Override, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Override, 0, len(keys))
	for _, k := range keys {
		f, err := ParseField(k)
		if err != nil {
			return nil, err
		}
		out = append(out, Override{Field: f, Value: values[k]})
	}
	return out, nil
}

// ApplyOverrides copies base, optionally suffixes its name, and applies
// every override. base is never modified.
func ApplyOverrides(base Form, overrides []Override, labelSuffix string) (Form, error) {
	out := base.Clone()
	if suffix := strings.TrimSpace(labelSuffix); suffix != "" {
		out.Name = strings.TrimSpace(out.Name + " " + suffix)
	}

	for _, o := range overrides {
		if _, ok := fieldTable[o.Field]; !ok {
			return Form{}, &UnknownFieldError{Key: string(o.Field)}
		}
		value := strings.TrimSpace(o.Value)
		switch o.Field {
		case FieldSpeculative:
			b, err := ParseBool(value)
			if err != nil {
				return Form{}, fmt.Errorf("speculative: %w", err)
			}
			out.Speculative = b
		case FieldSamples:
			n, ok := parseInt(value)
			if !ok {
				return Form{}, fmt.Errorf("samples: invalid integer %q", o.Value)
			}
			out.Samples = utils.Clamp(n, MinSamples, MaxSamples)
		default:
			if o.Field.Namespace() == NamespaceOption {
				out.Options[o.Field] = value
			} else {
				out.Settings[o.Field] = value
			}
		}
	}
	return out, nil
}

// Snapshot returns every set parameter with its value normalized the same
// way deduplication keys are built.
func Snapshot(f Form) map[string]string {
	out := map[string]string{
		string(FieldSpeculative): strconv.FormatBool(f.Speculative),
		string(FieldSamples):     strconv.Itoa(f.Samples),
	}
	for _, values := range []map[Field]string{f.Options, f.Settings} {
		for k, v := range values {
			if strings.TrimSpace(v) != "" {
				out[string(k)] = NormalizeValue(k, v)
			}
		}
	}
	return out
}

// FromSnapshot rebuilds a form from a snapshot, as found in exported
// reports.
func FromSnapshot(name string, snapshot map[string]string) (Form, error) {
	overrides, err := OverridesFromMap(snapshot)
	if err != nil {
		return Form{}, err
	}
	return ApplyOverrides(NewForm(name), overrides, "")
}

// NormalizeValue builds the comparison key for a value of field f. Numeric
// fields use their shortest decimal form ("0.50" and "0.5" collide), boolean
// fields collapse synonyms to true or false, and text is only trimmed since
// paths and prompts are case-sensitive.
func NormalizeValue(f Field, raw string) string {
	s := strings.TrimSpace(raw)
	switch f.Kind() {
	case KindInt, KindFloat:
		if v, ok := parseFloat(s); ok {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
	case KindBool:
		if b, err := ParseBool(s); err == nil {
			return strconv.FormatBool(b)
		}
	}
	return s
}

// ParseNumber parses a finite float from text.
func ParseNumber(raw string) (float64, bool) {
	return parseFloat(strings.TrimSpace(raw))
}

// FormatNumber renders v for field f: integers for int fields, up to six
// decimals otherwise.
func FormatNumber(f Field, v float64) string {
	if f.Kind() == KindInt {
		return strconv.Itoa(int(utils.Round(v, 0)))
	}
	return strconv.FormatFloat(utils.Round(v, 6), 'f', -1, 64)
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !utils.IsFinite(v) {
		return 0, false
	}
	return v, true
}

func parseInt(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	v, ok := parseFloat(s)
	if !ok || v != float64(int64(v)) {
		return 0, false
	}
	return int(v), true
}
