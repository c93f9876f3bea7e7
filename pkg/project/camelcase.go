package project

import (
	"strings"
	"unicode"
)

// CamelCase turns a package name into a JavaScript identifier: "@scope/my-pkg" becomes "scopeMyPkg".
// Words are split on non-alphanumeric characters, lower-to-upper transitions, acronym ends
// ("XMLHttp" is "XML" + "Http") and letter/digit changes.
func CamelCase(name string) string {
	var sb strings.Builder
	for i, word := range splitWords(name) {
		runes := []rune(strings.ToLower(word))
		if i > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		sb.WriteString(string(runes))
	}

	return sb.String()
}

func splitWords(value string) []string {
	words := make([]string, 0)
	current := make([]rune, 0)
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	runes := []rune(value)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}

		if len(current) > 0 {
			prev := current[len(current)-1]
			switch {
			case unicode.IsDigit(prev) != unicode.IsDigit(r):
				flush()
			case unicode.IsLower(prev) && unicode.IsUpper(r):
				flush()
			case unicode.IsUpper(prev) && unicode.IsUpper(r) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush()
			}
		}

		current = append(current, r)
	}
	flush()

	return words
}
