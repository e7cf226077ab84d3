package querygen

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/criteria/internal/value"
)

// Formatting controls how filter values are prepared for binding.
type Formatting struct {
	// Strict disables the %...% wrapping of text values.
	Strict bool

	// CaseSensitive disables lowercasing of text values.
	CaseSensitive bool

	// Escape is the effective LIKE escape character.
	Escape string

	// BackslashLiteral reports that the backend reads backslashes in
	// patterns literally, so they need no doubling.
	BackslashLiteral bool
}

// FormatBindValue converts a filter value to the Go native value that is
// bound for it.
//
// Text goes through three steps in order: backslashes are doubled when the
// escape character is a backslash the backend does not read literally; the
// value is wrapped in % on each edge that does not already carry one unless
// Strict; the value is lowercased unless CaseSensitive. Wrapping is
// idempotent. Everything else, lists included, binds as is.
func FormatBindValue(v value.Value, f Formatting) any {
	if s, ok := v.(value.String); ok {
		return f.text(string(s))
	}
	return value.Native(v)
}

func (f Formatting) text(s string) string {
	if f.Escape == `\` && !f.BackslashLiteral {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	if !f.Strict {
		s = WrapWildcards(s)
	}
	if !f.CaseSensitive {
		// a Caser is stateful, so one is made per call
		s = cases.Lower(language.Und).String(s)
	}
	return s
}

// WrapWildcards adds a leading and trailing % where missing.
func WrapWildcards(s string) string {
	if !strings.HasPrefix(s, "%") {
		s = "%" + s
	}
	if !strings.HasSuffix(s, "%") {
		s += "%"
	}
	return s
}
