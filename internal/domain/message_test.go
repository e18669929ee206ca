package domain

import (
	"testing"
	"time"
)

func TestMessage_HasReactions(t *testing.T) {
	tests := []struct {
		name     string
		message  *Message
		expected bool
	}{
		{
			name: "リアクションあり",
			message: &Message{
				Reactions: []Reaction{
					{Name: "pizza", Count: 2, Users: []string{"U2", "U3"}},
				},
			},
			expected: true,
		},
		{
			name: "リアクションなし",
			message: &Message{
				Reactions: []Reaction{},
			},
			expected: false,
		},
		{
			name: "リアクションがnil",
			message: &Message{
				Reactions: nil,
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.message.HasReactions(); got != tt.expected {
				t.Errorf("HasReactions() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMessage_IsThreadReply(t *testing.T) {
	now := time.Now()
	timestamp := now.Format("1504840306.000009")
	threadTS := "1234567890.123456"

	tests := []struct {
		name     string
		message  *Message
		expected bool
	}{
		{
			name: "スレッドの返信",
			message: &Message{
				ID:       timestamp,
				ThreadTS: threadTS,
			},
			expected: true,
		},
		{
			name: "通常のメッセージ",
			message: &Message{
				ID:       timestamp,
				ThreadTS: "",
			},
			expected: false,
		},
		{
			name: "スレッドの親メッセージ",
			message: &Message{
				ID:       timestamp,
				ThreadTS: timestamp,
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.message.IsThreadReply(); got != tt.expected {
				t.Errorf("IsThreadReply() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseSlackTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		ts       string
		expected time.Time
		wantErr  bool
	}{
		{
			name:     "マイクロ秒付き",
			ts:       "1504840306.000009",
			expected: time.Unix(1504840306, 9000),
		},
		{
			name:     "秒のみ",
			ts:       "1504840306",
			expected: time.Unix(1504840306, 0),
		},
		{
			name:     "桁の少ない小数部",
			ts:       "1504840306.5",
			expected: time.Unix(1504840306, 500000000),
		},
		{
			name:    "数値でない",
			ts:      "abc.123",
			wantErr: true,
		},
		{
			name:    "空文字列",
			ts:      "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSlackTimestamp(tt.ts)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseSlackTimestamp(%q) error = nil, want error", tt.ts)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSlackTimestamp(%q) error = %v", tt.ts, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("ParseSlackTimestamp(%q) = %v, want %v", tt.ts, got, tt.expected)
			}
		})
	}
}
