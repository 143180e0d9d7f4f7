package profile

import "strings"

var boolWords = map[string]bool{
	"true": true, "1": true, "yes": true, "y": true, "on": true,
	"oui": true, "o": true, "vrai": true, "enabled": true, "actif": true,
	"false": false, "0": false, "no": false, "n": false, "off": false,
	"non": false, "faux": false, "disabled": false, "inactif": false,
}

// ParseBool accepts the usual English and French truthy/falsy words.
func ParseBool(raw string) (bool, error) {
	v, ok := boolWords[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return false, &InvalidBoolError{Value: raw}
	}
	return v, nil
}

// InvalidBoolError is returned when a speculative value is not a boolean word.
type InvalidBoolError struct {
	Value string
}

func (e *InvalidBoolError) Error() string {
	return "invalid boolean value: " + e.Value
}
