package model

import "strings"

// NormalizeKey produces the identity key for an entity value: Unicode
// lower-cased with all whitespace runs collapsed to single spaces. The key
// is always computed here, never trusted from the extractor.
func NormalizeKey(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}
