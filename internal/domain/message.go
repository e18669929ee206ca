package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message はSlackメッセージを表すドメインモデル
type Message struct {
	ID        string
	Text      string
	UserID    string
	ChannelID string
	Timestamp time.Time
	Reactions []Reaction
	IsBot     bool
	ThreadTS  string // スレッドのタイムスタンプ（空文字列の場合は通常メッセージ）
}

// HasReactions はメッセージにリアクションがあるかどうかを返す
func (m *Message) HasReactions() bool {
	return len(m.Reactions) > 0
}

// IsThreadReply はこのメッセージがスレッドの返信かどうかを返す
func (m *Message) IsThreadReply() bool {
	return m.ThreadTS != "" && m.ThreadTS != m.ID
}

// ParseSlackTimestamp はSlackのタイムスタンプ文字列（"1504840306.000009"）をtime.Timeに変換する
func ParseSlackTimestamp(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("無効なタイムスタンプ %q: %w", ts, err)
	}
	var usec int64
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		if usec, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return time.Time{}, fmt.Errorf("無効なタイムスタンプ %q: %w", ts, err)
		}
	}
	return time.Unix(s, usec*int64(time.Microsecond)), nil
}
