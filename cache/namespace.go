package cache

import (
	"reflect"
	"strings"
	"unicode"
)

// Namespacer lets a model choose the namespace its cache keys live under.
type Namespacer interface {
	CacheNamespace() string
}

// Namespace returns the key namespace for a model value or type sample.
// Models implementing Namespacer win; otherwise the snake_case type name is used,
// with pointers and slices unwrapped so *T, []T and []*T share the namespace of T.
func Namespace(model any) string {
	if model == nil {
		return ""
	}

	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}

	// a fresh *T satisfies Namespacer for both value and pointer receivers
	if n, ok := reflect.New(t).Interface().(Namespacer); ok {
		if ns := n.CacheNamespace(); ns != "" {
			return ns
		}
	}

	return toSnake(t.Name())
}

// NamespacePrefix returns the prefix shared by every key under namespace.
func NamespacePrefix(namespace string) string {
	return namespace + KeySeparator
}

// toSnake converts the provided string to snake_case using ASCII-aware rules.
// Punctuation from reflected type names (generic suffixes, package dots) is folded
// into single underscores so namespaces stay valid for prefix scans and Redis keys.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false
	writeSep := func() {
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					writeSep()
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r):
			b.WriteRune(r)
			lastUnderscore = false

		case unicode.IsDigit(r):
			if i > 0 && !unicode.IsDigit(runes[i-1]) {
				writeSep()
			}
			b.WriteRune(r)
			lastUnderscore = false

		default:
			writeSep()
		}
	}

	return strings.Trim(b.String(), "_")
}
