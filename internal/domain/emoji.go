package domain

import (
	"regexp"
	"strings"
)

// emojiPattern はテキスト中の :name: 形式の絵文字を表す
var emojiPattern = regexp.MustCompile(`:([^\s:]+):`)

// CanonicalEmoji は絵文字名を正規化する
// "thumbsup::skin-tone-2" のような修飾子付きの名前は "thumbsup" になる
func CanonicalEmoji(name string) string {
	name = strings.Trim(name, ":")
	if i := strings.Index(name, "::"); i >= 0 {
		name = name[:i]
	}
	return name
}

// IsSkinTone は肌の色の修飾子かどうかを返す
func IsSkinTone(name string) bool {
	return strings.HasPrefix(name, "skin-tone-")
}

// ExtractEmojis はテキストに書かれた絵文字名を出現順に返す（重複と肌の色は除く）
func ExtractEmojis(text string) []string {
	matches := emojiPattern.FindAllStringSubmatch(text, -1)
	names := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		name := CanonicalEmoji(m[1])
		if name == "" || IsSkinTone(name) || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
