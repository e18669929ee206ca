package domain

import (
	"context"
	"errors"
)

var (
	// ErrTransport はプラットフォームへの呼び出しが失敗したことを表す
	ErrTransport = errors.New("transport error")
	// ErrNotFound は対象のメッセージが見つからないことを表す
	ErrNotFound = errors.New("not found")
)

// MessageRepository はメッセージを取得するリポジトリインターフェース
type MessageRepository interface {
	FindByTimestamp(ctx context.Context, channelID, ts string) (*Message, error)
	FindThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]*Message, error)
}

// MessagePublisher はまとめメッセージを投稿・更新・削除するインターフェース
type MessagePublisher interface {
	Post(ctx context.Context, channelID, text string) (string, error)
	Update(ctx context.Context, channelID, ts, text string) error
	Delete(ctx context.Context, channelID, ts string) error
}

// TypingIndicator は入力中表示を送るインターフェース
type TypingIndicator interface {
	StartTyping(channelID string)
}

// SnapshotRepository はロスター全体を永続化するリポジトリインターフェース
type SnapshotRepository interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
}

// EventHandler はプラットフォームから受け取ったイベントを処理するインターフェース
type EventHandler interface {
	HandleReactionAdded(ctx context.Context, ev ReactionEvent)
	HandleReactionRemoved(ctx context.Context, ev ReactionEvent)
	HandleMessage(ctx context.Context, ev MessageEvent)
}
