package rules

import (
	"regexp"
	"strings"
)

// CompileGlob translates the simplified wildcard syntax used by
// login-success URL patterns into an anchored regular expression.
// `**` and `*` both match any run of characters, `?` matches exactly one,
// and everything else matches literally.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*':
			// ** collapses into a single wildcard.
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
			}
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
