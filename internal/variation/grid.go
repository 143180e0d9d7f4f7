package variation

import (
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
)

// MaxGridCombinations caps how many candidates a grid run may submit.
const MaxGridCombinations = 24

// Assignment sets one field to one raw value.
type Assignment struct {
	Field profile.Field
	Value string
}

// Combination is an ordered set of assignments, one per axis.
type Combination []Assignment

// Overrides converts the combination into profile overrides.
func (c Combination) Overrides() []profile.Override {
	out := make([]profile.Override, len(c))
	for i, a := range c {
		out[i] = profile.Override{Field: a.Field, Value: a.Value}
	}
	return out
}

// Map returns the combination keyed by field name.
func (c Combination) Map() map[string]string {
	out := make(map[string]string, len(c))
	for _, a := range c {
		out[string(a.Field)] = a.Value
	}
	return out
}

// Label renders the combination as "key=value, key=value".
func (c Combination) Label() string {
	parts := make([]string, len(c))
	for i, a := range c {
		parts[i] = string(a.Field) + "=" + a.Value
	}
	return strings.Join(parts, ", ")
}

// CartesianProduct expands axes in declaration order. No axes yields a
// single empty combination.
func CartesianProduct(axes []Axis) []Combination {
	combos := []Combination{{}}
	for _, axis := range axes {
		next := make([]Combination, 0, len(combos)*len(axis.Values))
		for _, combo := range combos {
			for _, v := range axis.Values {
				c := make(Combination, len(combo), len(combo)+1)
				copy(c, combo)
				next = append(next, append(c, Assignment{Field: axis.Key, Value: v}))
			}
		}
		combos = next
	}
	return combos
}

// Count returns the size of the cartesian product without expanding it.
func Count(axes []Axis) int {
	n := 1
	for _, axis := range axes {
		n *= len(axis.Values)
		if n > MaxGridCombinations*MaxGridCombinations {
			return n
		}
	}
	return n
}

// GridTooLargeError is returned when an expansion exceeds MaxGridCombinations.
type GridTooLargeError struct {
	Count int
}

func (e *GridTooLargeError) Error() string {
	return fmt.Sprintf("too many combinations: %d (maximum %d)", e.Count, MaxGridCombinations)
}

// Expand returns the cartesian product, refusing grids over the ceiling.
func Expand(axes []Axis) ([]Combination, error) {
	if n := Count(axes); n > MaxGridCombinations {
		return nil, &GridTooLargeError{Count: n}
	}
	return CartesianProduct(axes), nil
}
