package i18n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		header string
		want   language.Tag
	}{
		{"", language.Russian},
		{"en-US,en;q=0.9", language.English},
		{"ru-RU,ru;q=0.9,en;q=0.8", language.Russian},
		{"de-DE", language.Russian},
		{"not a header;;;", language.Russian},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Resolve(tc.header, language.Russian), "header %q", tc.header)
	}
	assert.Equal(t, language.English, Resolve("", language.English))
}

func TestParse(t *testing.T) {
	assert.Equal(t, language.English, Parse("en"))
	assert.Equal(t, language.Russian, Parse("ru"))
	assert.Equal(t, language.Russian, Parse("???"))
}

func TestTextUsesContextLanguage(t *testing.T) {
	ru := WithLanguage(context.Background(), language.Russian)
	en := WithLanguage(context.Background(), language.English)

	assert.Equal(t, "Пользователь не найден", Text(ru, KeyUserNotFound))
	assert.Equal(t, "User not found", Text(en, KeyUserNotFound))
	assert.Equal(t, "Tarot history deleted, 3 records removed", Text(en, KeyTarotHistoryWiped, 3))
	assert.Contains(t, Text(context.Background(), KeyRateLimited), "Слишком много запросов")
}
