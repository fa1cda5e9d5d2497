package assets

import (
	"regexp"
	"strings"
)

// cssURLPattern matches url(...) with a bare, single-quoted, or double-quoted
// argument, case-insensitively.
var cssURLPattern = regexp.MustCompile(`(?i)url\(([^)]*)\)`)

// References returns the inner value of every url(...) occurrence in css,
// trimmed of quotes and surrounding whitespace. data: URIs are excluded.
func References(css string) []string {
	var refs []string
	for _, m := range cssURLPattern.FindAllStringSubmatch(css, -1) {
		inner := cssInner(m[1])
		if inner == "" || isDataURI(inner) {
			continue
		}
		refs = append(refs, inner)
	}
	return refs
}

// RewriteCSS replaces every url(...) whose inner value maps through replace
// with url(<replacement>), unquoted. Matches where replace reports false are
// left untouched, as are data: URIs.
func RewriteCSS(css string, replace func(inner string) (string, bool)) string {
	return cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		sub := cssURLPattern.FindStringSubmatch(match)
		inner := cssInner(sub[1])
		if inner == "" || isDataURI(inner) {
			return match
		}
		repl, ok := replace(inner)
		if !ok {
			return match
		}
		return "url(" + repl + ")"
	})
}

func cssInner(arg string) string {
	s := strings.TrimSpace(arg)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

func isDataURI(s string) bool {
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}
