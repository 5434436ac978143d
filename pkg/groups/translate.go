// Package groups maps raw bugbug test group identifiers to the names used
// when scheduling tasks.
package groups

import "strings"

// Rule rewrites a group that starts with Prefix.
type Rule struct {
	Prefix      string
	Replacement string
}

// Table is an ordered list of rules. The first matching rule wins.
type Table []Rule

// DefaultTable is the translation table applied to every bugbug response.
//
// Web-platform-tests groups are reported by path in the source tree, while
// the harness knows them by their URL path.
var DefaultTable = Table{
	{Prefix: "testing/web-platform/tests", Replacement: ""},
	{Prefix: "testing/web-platform/mozilla/tests", Replacement: "/_mozilla"},
}

// Translate returns group rewritten by the first rule whose prefix matches.
// Groups that match no rule are returned unchanged.
//
// The rewrite replaces the first occurrence of the prefix substring. Since a
// rule only applies when the group starts with its prefix, that occurrence is
// always the leading one.
func (t Table) Translate(group string) string {
	for _, rule := range t {
		if strings.HasPrefix(group, rule.Prefix) {
			return strings.Replace(group, rule.Prefix, rule.Replacement, 1)
		}
	}
	return group
}

// TranslateKeys returns a copy of m with every key translated. Values are
// kept as is. If two keys translate to the same name the later one in
// iteration order wins.
func TranslateKeys[V any](t Table, m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[t.Translate(k)] = v
	}
	return out
}

// Translate applies DefaultTable.
func Translate(group string) string {
	return DefaultTable.Translate(group)
}
