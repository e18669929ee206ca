package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalEmoji(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "通常", input: "pizza", expected: "pizza"},
		{name: "肌の色", input: "thumbsup::skin-tone-2", expected: "thumbsup"},
		{name: "コロン付き", input: ":pizza:", expected: "pizza"},
		{name: "空", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalEmoji(tt.input))
		})
	}
}

func TestExtractEmojis(t *testing.T) {
	text := "hoy :pizza: o :sushi::skin-tone-3: o :pizza: :skin-tone-2: sin :emoji"
	assert.Equal(t, []string{"pizza", "sushi"}, ExtractEmojis(text))
	assert.Empty(t, ExtractEmojis("nada"))
}
