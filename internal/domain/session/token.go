// Package session carries the user's backend session token.
package session

import (
	"context"
	"net/url"
	"strings"
)

// tokenSegment is the query-string segment image URLs embed their access token in.
const tokenSegment = "&token="

type tokenKey struct{}

// WithToken attaches the session token forwarded on backend requests.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// Token returns the session token attached by WithToken.
func Token(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// NormalizeURL replaces a token embedded in imageURL with the current
// session's token, so a shared link never acts with its author's session.
// Everything after an embedded token is dropped. Without a current token the
// embedded one is stripped. URLs with no token segment, or with more than
// one, are returned unchanged.
func NormalizeURL(imageURL, token string) string {
	parts := strings.Split(imageURL, tokenSegment)
	if len(parts) != 2 {
		return imageURL
	}
	if token == "" {
		return parts[0]
	}
	return parts[0] + tokenSegment + url.QueryEscape(token)
}
