package domain

// ReactionEvent は reaction_added / reaction_removed イベントを表す
type ReactionEvent struct {
	Channel   string // リアクションされたメッセージのチャンネル
	Timestamp string // リアクションされたメッセージのタイムスタンプ
	User      string // リアクションしたユーザー
	Reaction  string
}

// Key はイベント対象のロスターのキーを返す
func (e ReactionEvent) Key() RosterKey {
	return NewRosterKey(e.Channel, e.Timestamp)
}

// MessageKind はスレッド内メッセージの変化の種類
type MessageKind int

const (
	MessageAdded MessageKind = iota
	MessageChanged
	MessageDeleted
)

func (k MessageKind) String() string {
	switch k {
	case MessageAdded:
		return "added"
	case MessageChanged:
		return "changed"
	case MessageDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// MessageEvent はスレッド内のメッセージの追加・編集・削除を表す
// 追加では OldText が、削除では NewText が空になる
type MessageEvent struct {
	Channel  string
	ThreadTS string
	Kind     MessageKind
	OldText  string
	NewText  string
}

// Key はイベント対象のロスターのキーを返す
func (e MessageEvent) Key() RosterKey {
	return NewRosterKey(e.Channel, e.ThreadTS)
}
