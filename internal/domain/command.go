package domain

import (
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`<@([^>|\s]+)[^>]*>`)

// CountCommand はスレッドの返信に書かれた人数指定コマンドを表す
// 例: ":tacos: <@U1> <@U2> juan" → tacos に U1, U2, _juan_ を追加
type CountCommand struct {
	Name  string
	Users []string
}

// ParseCount はテキストからコマンドを抽出する
// 先頭の単語が絵文字でない場合や参加者が一人もいない場合は false を返す
func ParseCount(text string) (*CountCommand, bool) {
	words := strings.Fields(text)
	if len(words) < 2 {
		return nil, false
	}
	m := emojiPattern.FindStringSubmatch(words[0])
	if m == nil {
		return nil, false
	}
	name := CanonicalEmoji(m[1])
	if name == "" {
		return nil, false
	}

	users := make([]string, 0, len(words)-1)
	for _, w := range words[1:] {
		if mention := mentionPattern.FindStringSubmatch(w); mention != nil {
			users = append(users, mention[1])
			continue
		}
		users = append(users, Label(w))
	}
	return &CountCommand{Name: name, Users: users}, true
}

// Label は自由記述の名前を参加者IDとして扱える形に包む
func Label(name string) string {
	return "_" + name + "_"
}

// IsLabel は参加者IDが自由記述の名前かどうかを返す
func IsLabel(id string) bool {
	return len(id) >= 2 && strings.HasPrefix(id, "_") && strings.HasSuffix(id, "_")
}

// CountDelta は編集前後のテキストから追加・削除される参加者を計算する
// 同じ絵文字に対するコマンドであれば差分のみを返す
func CountDelta(oldText, newText string) (added, removed *CountCommand) {
	oldCmd, hasOld := ParseCount(oldText)
	newCmd, hasNew := ParseCount(newText)

	switch {
	case hasOld && hasNew && oldCmd.Name == newCmd.Name:
		add := Subtract(newCmd.Users, oldCmd.Users)
		del := Subtract(oldCmd.Users, newCmd.Users)
		if len(add) > 0 {
			added = &CountCommand{Name: newCmd.Name, Users: add}
		}
		if len(del) > 0 {
			removed = &CountCommand{Name: oldCmd.Name, Users: del}
		}
	default:
		if hasNew {
			added = newCmd
		}
		if hasOld {
			removed = oldCmd
		}
	}
	return added, removed
}
