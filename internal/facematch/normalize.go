package facematch

import (
	"strings"
	"unicode"

	"github.com/kozaktomas/face-id/internal/database"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NameAttribute is the metadata key holding an identity's display name.
const NameAttribute = "name"

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// FilterByName returns the entries whose name attribute or identity id contains query,
// compared after normalization so "jan-novak" finds "Jan Novák".
func FilterByName(entries []database.Entry, query string) []database.Entry {
	q := NormalizePersonName(query)
	if q == "" {
		return entries
	}

	var out []database.Entry
	for _, e := range entries {
		name, _ := e.Metadata[NameAttribute].Str()
		if strings.Contains(NormalizePersonName(name), q) || strings.Contains(NormalizePersonName(e.IdentityID), q) {
			out = append(out, e)
		}
	}
	return out
}
