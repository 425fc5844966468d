// Package i18n renders user-facing text in the caller's language. Catalogs
// are registered with golang.org/x/text/message at init; the request
// language travels in the context.
package i18n

import (
	"context"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Supported lists the catalog languages, default first.
var Supported = []language.Tag{language.Russian, language.English}

var matcher = language.NewMatcher(Supported)

type ctxKey struct{}

// Parse returns the supported tag matching a configured locale string,
// falling back to the default language.
func Parse(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return Supported[0]
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Supported[0]
	}
	return Supported[idx]
}

// Resolve picks the supported language for an Accept-Language header,
// returning fallback when the header is empty or matches nothing.
func Resolve(acceptLanguage string, fallback language.Tag) language.Tag {
	if acceptLanguage == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return fallback
	}
	return Supported[idx]
}

// WithLanguage returns a context carrying tag.
func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, ctxKey{}, tag)
}

// Language returns the context's language, or the default.
func Language(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(ctxKey{}).(language.Tag); ok {
		return tag
	}
	return Supported[0]
}

// Text renders the catalog entry key in the context's language.
func Text(ctx context.Context, key string, args ...any) string {
	return message.NewPrinter(Language(ctx)).Sprintf(key, args...)
}
