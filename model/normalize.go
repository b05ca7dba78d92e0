package model

import "strings"

// NormalizeName canonicalizes an entidad name for identity comparison:
// lowercased, surrounding whitespace trimmed and inner whitespace runs
// collapsed to a single space. Accents are kept, trigram similarity absorbs
// accent variation during candidate search.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
