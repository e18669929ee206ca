package domain

// Reaction はSlackのリアクション（絵文字）を表すドメインモデル
type Reaction struct {
	Name  string   // 絵文字名（例: "pizza", "thumbsup::skin-tone-2"）
	Count int      // リアクション数
	Users []string // リアクションしたユーザーID
}

// ReactedUsers は絵文字名ごとに参加者を並べた対応表
type ReactedUsers map[string][]string

// Add は正規化した絵文字名に参加者を連結する
func (r ReactedUsers) Add(name string, users ...string) {
	name = CanonicalEmoji(name)
	r[name] = append(r[name], users...)
}
