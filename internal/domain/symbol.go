package domain

import "regexp"

// MaxSymbolLength is the longest symbol MetaTrader accepts.
const MaxSymbolLength = 11

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9_.#&'~-]+$`)

// IsValidSymbol reports whether s is a valid instrument symbol. Symbols must not contain spaces.
func IsValidSymbol(s string) bool {
	return len(s) > 0 && len(s) <= MaxSymbolLength && symbolPattern.MatchString(s)
}
