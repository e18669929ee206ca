package domain

// Partition は参加者リストを確定・待ち・離脱に分けた結果
type Partition struct {
	Count int
	Final []string
	Up    []string
	Down  []string
}

// Deduplicate は最初に出現した順序を保ったまま重複を取り除く
func Deduplicate(ids []string) []string {
	result := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}

// Reconcile は以前に数えた参加者リストと再取得した参加者リストを多重集合としてマージする
//
// previous の各要素は updated の同じIDの出現を一つずつ打ち消す。打ち消す相手が
// 見つからない要素はそのまま残るため、取得漏れで参加者が消えることはなく、
// 取得で確認できた参加者が二重に数えられることもない。結果は previous の順序の後に
// updated にしかない要素が続く。
func Reconcile(previous, updated []string) []string {
	remaining := make(map[string]int, len(updated))
	for _, id := range updated {
		remaining[id]++
	}

	result := make([]string, 0, len(previous)+len(updated))
	for _, id := range previous {
		if remaining[id] > 0 {
			remaining[id]--
		}
		result = append(result, id)
	}

	// 打ち消されずに残った分だけ updated の先頭側から追加する
	for _, id := range updated {
		if remaining[id] > 0 {
			remaining[id]--
			result = append(result, id)
		}
	}
	return result
}

// PartitionEntry は original（基準）と current（現在）から表示用の集計を計算する
//
// 集計中モードでは current の重複を除いたものがそのまま確定になる。通常モードでは
// original の人数を枠とし、current にいる基準の参加者を確定、基準にいない参加者を
// 待ちとする。current にいない基準の参加者は離脱になる。抜けた参加者の枠を新しい
// 参加者が自動的に埋めることはない。
// 空いた枠は空いたまま残り、新しい参加者は up に残り続ける。
func PartitionEntry(original, current []string, isCounting bool) Partition {
	if isCounting {
		deduped := Deduplicate(current)
		return Partition{
			Count: len(deduped),
			Final: deduped,
			Up:    []string{},
			Down:  []string{},
		}
	}

	dedupedOriginal := Deduplicate(original)
	baseline := make(map[string]bool, len(dedupedOriginal))
	for _, id := range dedupedOriginal {
		baseline[id] = true
	}

	final := []string{}
	up := []string{}
	inFinal := make(map[string]bool, len(dedupedOriginal))
	for _, id := range Deduplicate(current) {
		if baseline[id] {
			final = append(final, id)
			inFinal[id] = true
		} else {
			up = append(up, id)
		}
	}

	down := []string{}
	for _, id := range dedupedOriginal {
		if !inFinal[id] {
			down = append(down, id)
		}
	}

	return Partition{Count: len(dedupedOriginal), Final: final, Up: up, Down: down}
}

// Subtract は a から b の要素を多重集合として取り除いた結果を a の順序で返す
func Subtract(a, b []string) []string {
	cancel := make(map[string]int, len(b))
	for _, id := range b {
		cancel[id]++
	}
	result := make([]string, 0, len(a))
	for _, id := range a {
		if cancel[id] > 0 {
			cancel[id]--
			continue
		}
		result = append(result, id)
	}
	return result
}

// removeLast は ids から最後に出現した id を一つ取り除く
func removeLast(ids []string, id string) ([]string, bool) {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == id {
			return append(ids[:i], ids[i+1:]...), true
		}
	}
	return ids, false
}
