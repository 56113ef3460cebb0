package ir

import "golang.org/x/text/unicode/norm"

// NormalizeValue returns the NFC form of an entity value.
//
// Two values that differ only in Unicode composition intern to the same
// entity. Every lookup and insert path normalizes before touching a table.
func NormalizeValue(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}
