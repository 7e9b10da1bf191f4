package grammar

import "unicode"

// IsTerminalName reports whether `name` names a terminal. Terminal names contain at least one cased
// letter and no lowercase letters, so `$END` and `OP_1` are terminals while `expr_1` is not.
func IsTerminalName(name string) bool {
	cased := false
	for _, c := range name {
		if unicode.IsLower(c) {
			return false
		}
		if unicode.IsUpper(c) || unicode.IsTitle(c) {
			cased = true
		}
	}
	return cased
}
