package service

import (
	"fmt"
	"strings"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// SummaryHeader はまとめメッセージの見出し
const SummaryHeader = "Today's eaters"

// RenderSummary はロスターのまとめメッセージを作成する
// エントリごとの確定者の一覧の後に、離脱や待ちがあるエントリの詳細を続ける
func RenderSummary(r *domain.Roster, withChanges bool) string {
	entries := r.Entries()

	var sb strings.Builder
	sb.WriteString(SummaryHeader)
	for _, e := range entries {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, ":%s: -> %d", e.Name, e.Count)
		if len(e.Final) > 0 {
			sb.WriteString(" ")
			sb.WriteString(joinParticipants(e.Final))
		}
		if free := e.FreeSeats(); free > 0 {
			fmt.Fprintf(&sb, " + %d free", free)
		}
	}

	if !withChanges {
		return sb.String()
	}
	for _, e := range entries {
		if !e.HasChanges() {
			continue
		}
		sb.WriteString("\n")
		fmt.Fprintf(&sb, ":%s: - dropped: %s - %s: %s",
			e.Name, joinParticipants(e.Down),
			plural(len(e.Up), "waits", "wait"), joinParticipants(e.Up))
	}
	return sb.String()
}

// Participant は参加者IDを表示用の文字列に変換する
func Participant(id string) string {
	if domain.IsLabel(id) {
		return id
	}
	return "<@" + id + ">"
}

func joinParticipants(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = Participant(id)
	}
	return strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n > 1 {
		return many
	}
	return one
}
