package extract

import (
	"unicode"
	"unicode/utf8"
)

// SelectPhrase builds the candidate sentence for entities[i]:
// "<label>: <description with its first letter lower-cased>".
// It makes no model call and depends only on the entity record.
func SelectPhrase(entities []Entity, i int) string {
	e := entities[i]
	return e.Label + ": " + lowerFirst(e.Description)
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
