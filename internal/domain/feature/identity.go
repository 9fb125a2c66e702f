package feature

import (
	"strings"
	"unicode"
)

// Identity derives document identity keys from image URLs.
type Identity struct {
	imagePrefix string
	idPrefix    string
}

// NewIdentity creates an identity mapper. URLs starting with imagePrefix have
// that prefix replaced by idPrefix; other URLs map to themselves.
func NewIdentity(imagePrefix, idPrefix string) Identity {
	return Identity{imagePrefix: imagePrefix, idPrefix: idPrefix}
}

// Key returns the identity key for an image URL. Query string and fragment
// are not part of the identity.
func (i Identity) Key(imageURL string) string {
	u := imageURL
	if idx := strings.IndexAny(u, "?#"); idx >= 0 {
		u = u[:idx]
	}
	if i.imagePrefix != "" && strings.HasPrefix(u, i.imagePrefix) {
		return i.idPrefix + strings.TrimPrefix(u, i.imagePrefix)
	}
	return u
}

// Keys returns the literal key followed by its case-inverted counterpart.
func (i Identity) Keys(imageURL string) [2]string {
	key := i.Key(imageURL)
	return [2]string{key, InvertFilenameCase(key)}
}

// InvertFilenameCase swaps the case of every letter in the last path segment
// of key, leaving the directory part untouched: "a/IMG_001.jpg" -> "a/img_001.JPG".
func InvertFilenameCase(key string) string {
	dir, file := "", key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		dir, file = key[:idx+1], key[idx+1:]
	}

	var b strings.Builder
	b.Grow(len(key))
	b.WriteString(dir)
	for _, r := range file {
		switch {
		case unicode.IsUpper(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLower(r):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LookupExpression builds the document search query matching any of keys:
// id:"<key>" OR id:"<case-inverted key>".
func LookupExpression(keys ...string) string {
	parts := make([]string, len(keys))
	for n, k := range keys {
		parts[n] = `id:"` + escapeQuoted(k) + `"`
	}
	return strings.Join(parts, " OR ")
}

func escapeQuoted(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
