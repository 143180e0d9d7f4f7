package profile

import (
	"sort"
	"strings"
)

// Field is one recognized tuning key. The set is closed: ParseField is the
// only way to obtain a Field from text.
type Field string

const (
	FieldTemperature   Field = "temperature"
	FieldTopP          Field = "top_p"
	FieldTopK          Field = "top_k"
	FieldRepeatPenalty Field = "repeat_penalty"
	FieldMaxTokens     Field = "max_tokens"

	FieldModelPath          Field = "llm_model_path"
	FieldDraftModelPath     Field = "llm_speculative_model_path"
	FieldContextTokens      Field = "llm_context_tokens"
	FieldGPULayers          Field = "llm_n_gpu_layers"
	FieldDraftContextTokens Field = "llm_speculative_context_tokens"
	FieldDraftGPULayers     Field = "llm_speculative_n_gpu_layers"
	FieldSystemPrompt       Field = "chat_system_prompt"

	FieldSpeculative Field = "speculative"
	FieldSamples     Field = "samples"
)

// SpeculativeSettingKey is the backend settings key carrying the speculative toggle
const SpeculativeSettingKey = "llm_speculative_enabled"

// Namespace says where a field's value travels in the backend request.
type Namespace int

const (
	NamespaceOption Namespace = iota
	NamespaceSetting
	NamespacePseudo
)

func (n Namespace) String() string {
	switch n {
	case NamespaceOption:
		return "option"
	case NamespaceSetting:
		return "setting"
	default:
		return "pseudo"
	}
}

// Kind is the value type a field parses to.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

type fieldInfo struct {
	namespace Namespace
	kind      Kind
	min, max  float64
	bounded   bool
}

var fieldTable = map[Field]fieldInfo{
	FieldTemperature:   {namespace: NamespaceOption, kind: KindFloat, min: 0, max: 2, bounded: true},
	FieldTopP:          {namespace: NamespaceOption, kind: KindFloat, min: 0, max: 1, bounded: true},
	FieldTopK:          {namespace: NamespaceOption, kind: KindInt, min: 1, max: 1000, bounded: true},
	FieldRepeatPenalty: {namespace: NamespaceOption, kind: KindFloat, min: 0, max: 4, bounded: true},
	FieldMaxTokens:     {namespace: NamespaceOption, kind: KindInt, min: 1, max: 1 << 20, bounded: true},

	FieldModelPath:          {namespace: NamespaceSetting, kind: KindString},
	FieldDraftModelPath:     {namespace: NamespaceSetting, kind: KindString},
	FieldContextTokens:      {namespace: NamespaceSetting, kind: KindInt, min: 1, max: 1 << 22, bounded: true},
	FieldGPULayers:          {namespace: NamespaceSetting, kind: KindInt, min: -1, max: 1 << 12, bounded: true},
	FieldDraftContextTokens: {namespace: NamespaceSetting, kind: KindInt, min: 1, max: 1 << 22, bounded: true},
	FieldDraftGPULayers:     {namespace: NamespaceSetting, kind: KindInt, min: -1, max: 1 << 12, bounded: true},
	FieldSystemPrompt:       {namespace: NamespaceSetting, kind: KindString},

	FieldSpeculative: {namespace: NamespacePseudo, kind: KindBool},
	FieldSamples:     {namespace: NamespacePseudo, kind: KindInt, min: MinSamples, max: MaxSamples, bounded: true},
}

// ParseField normalizes key (trim, lower-case) and resolves it against the
// recognized set.
func ParseField(key string) (Field, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	f := Field(normalized)
	if _, ok := fieldTable[f]; !ok {
		return "", &UnknownFieldError{Key: key}
	}
	return f, nil
}

// Fields lists every recognized field in a stable order.
func Fields() []Field {
	out := make([]Field, 0, len(fieldTable))
	for f := range fieldTable {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f Field) String() string { return string(f) }

// Namespace returns where the field is routed.
func (f Field) Namespace() Namespace { return fieldTable[f].namespace }

// Kind returns the value type of the field.
func (f Field) Kind() Kind { return fieldTable[f].kind }

// Numeric reports whether the field takes int or float values.
func (f Field) Numeric() bool {
	k := f.Kind()
	return k == KindInt || k == KindFloat
}

// InDomain reports whether v is an acceptable value for a numeric field.
func (f Field) InDomain(v float64) bool {
	info, ok := fieldTable[f]
	if !ok || !info.bounded {
		return true
	}
	return v >= info.min && v <= info.max
}

// UnknownFieldError is returned for keys outside the recognized set.
type UnknownFieldError struct {
	Key string
}

func (e *UnknownFieldError) Error() string {
	return "unknown parameter: " + strings.TrimSpace(e.Key)
}
