package domain

import (
	"sort"
	"time"
)

// RosterKey はロスターを一意に識別するキー（"<channel>-<ts>"）
type RosterKey string

// NewRosterKey はチャンネルと元メッセージのタイムスタンプからキーを作成する
func NewRosterKey(channel, ts string) RosterKey {
	return RosterKey(channel + "-" + ts)
}

// Triggers はロスターを開く絵文字の設定
type Triggers struct {
	Main  string
	Count string
}

// IsTrigger は絵文字がトリガーかどうかを返す
func (t Triggers) IsTrigger(name string) bool {
	return name != "" && (name == t.Main || name == t.Count)
}

// RosterEntry はロスター内の絵文字ごとの参加者を表すドメインモデル
type RosterEntry struct {
	Name     string   `json:"name"`
	Count    int      `json:"count"`
	Original []string `json:"original"`
	Current  []string `json:"current"`
	Final    []string `json:"final"`
	Up       []string `json:"up"`
	Down     []string `json:"down"`
}

// NewRosterEntry は取得した参加者を基準とする新しいエントリを作成する
func NewRosterEntry(name string, users []string) *RosterEntry {
	e := &RosterEntry{
		Name:     name,
		Original: append([]string{}, users...),
		Current:  append([]string{}, users...),
	}
	e.apply(PartitionEntry(e.Original, e.Current, false))
	return e
}

// Join は参加者を current の末尾に追加する
func (e *RosterEntry) Join(users ...string) {
	e.Current = append(e.Current, users...)
}

// Leave は current から参加者の最後の出現を一つ取り除く
func (e *RosterEntry) Leave(user string) bool {
	var ok bool
	e.Current, ok = removeLast(e.Current, user)
	return ok
}

func (e *RosterEntry) apply(p Partition) {
	e.Count = p.Count
	e.Final = p.Final
	e.Up = p.Up
	e.Down = p.Down
}

// FreeSeats は確定していない枠の数を返す
func (e *RosterEntry) FreeSeats() int {
	if n := e.Count - len(e.Final); n > 0 {
		return n
	}
	return 0
}

// HasChanges は離脱または待ちがいるかどうかを返す
func (e *RosterEntry) HasChanges() bool {
	return len(e.Up) > 0 || len(e.Down) > 0
}

func (e *RosterEntry) clone() *RosterEntry {
	return &RosterEntry{
		Name:     e.Name,
		Count:    e.Count,
		Original: append([]string{}, e.Original...),
		Current:  append([]string{}, e.Current...),
		Final:    append([]string{}, e.Final...),
		Up:       append([]string{}, e.Up...),
		Down:     append([]string{}, e.Down...),
	}
}

// Roster はメッセージに紐づく「誰が食べるか」の集計を表すドメインモデル
type Roster struct {
	Channel         string                  `json:"channel"`
	User            string                  `json:"user"`
	OriginalMessage string                  `json:"originalMessage"`
	Triggers        []string                `json:"triggers,omitempty"`
	IsCounting      bool                    `json:"isCounting"`
	Reactions       map[string]*RosterEntry `json:"reactions"`
	Order           []string                `json:"order,omitempty"`
	TS              string                  `json:"ts,omitempty"`
}

// NewRoster は新しいロスターを作成する
func NewRoster(channel, user, originalTS, trigger string, triggers Triggers) *Roster {
	r := &Roster{
		Channel:         channel,
		User:            user,
		OriginalMessage: originalTS,
		Triggers:        []string{trigger},
		Reactions:       make(map[string]*RosterEntry),
	}
	r.UpdateMode(triggers)
	return r
}

// Key はロスターのキーを返す
func (r *Roster) Key() RosterKey {
	return NewRosterKey(r.Channel, r.OriginalMessage)
}

// AddEntry はエントリを追加する。同じ正規名のエントリが既にあれば何もしない
func (r *Roster) AddEntry(e *RosterEntry) bool {
	name := CanonicalEmoji(e.Name)
	if _, exists := r.Reactions[name]; exists {
		return false
	}
	if r.Reactions == nil {
		r.Reactions = make(map[string]*RosterEntry)
	}
	e.Name = name
	r.Reactions[name] = e
	r.Order = append(r.Order, name)
	return true
}

// Entry は絵文字名に対応するエントリを返す
func (r *Roster) Entry(name string) (*RosterEntry, bool) {
	e, ok := r.Reactions[CanonicalEmoji(name)]
	return e, ok
}

// Entries は表示順にエントリを返す
// 順序が保存されていない古いレコードでは名前順になる
func (r *Roster) Entries() []*RosterEntry {
	entries := make([]*RosterEntry, 0, len(r.Reactions))
	seen := make(map[string]bool, len(r.Reactions))
	for _, name := range r.Order {
		if e, ok := r.Reactions[name]; ok && !seen[name] {
			seen[name] = true
			entries = append(entries, e)
		}
	}
	rest := make([]string, 0)
	for name := range r.Reactions {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		entries = append(entries, r.Reactions[name])
	}
	return entries
}

// AddTrigger はトリガーを追加してモードを更新する
func (r *Roster) AddTrigger(name string, triggers Triggers) {
	r.Triggers = append(r.Triggers, name)
	r.UpdateMode(triggers)
}

// RemoveTrigger はトリガーを一つ取り除いてモードを更新する
// 最後のトリガーは取り除けない（ロスター自体を削除する必要がある）
func (r *Roster) RemoveTrigger(name string, triggers Triggers) bool {
	if len(r.Triggers) <= 1 {
		return false
	}
	var ok bool
	r.Triggers, ok = removeLast(r.Triggers, name)
	if ok {
		r.UpdateMode(triggers)
	}
	return ok
}

// IsLastTrigger は name を取り除くとトリガーが空になるかどうかを返す
func (r *Roster) IsLastTrigger(name string) bool {
	return len(r.Triggers) == 1 && r.Triggers[0] == name
}

// UpdateMode はトリガーから集計中モードかどうかを再計算する
func (r *Roster) UpdateMode(triggers Triggers) {
	var main, count bool
	for _, t := range r.Triggers {
		if t == triggers.Main {
			main = true
		}
		if triggers.Count != "" && t == triggers.Count {
			count = true
		}
	}
	r.IsCounting = !main && count
}

// Migrate はトリガー一覧を持たない古いレコードを現在の形式に変換する
func (r *Roster) Migrate(triggers Triggers) bool {
	if len(r.Triggers) > 0 {
		return false
	}
	r.Triggers = []string{triggers.Main}
	r.IsCounting = false
	if r.Reactions == nil {
		r.Reactions = make(map[string]*RosterEntry)
	}
	return true
}

// Recompute はすべてのエントリの集計を再計算する
// 集計中モードでは確定した参加者を新しい基準として固定する
func (r *Roster) Recompute() {
	for _, e := range r.Reactions {
		e.apply(PartitionEntry(e.Original, e.Current, r.IsCounting))
		if r.IsCounting {
			e.Original = append([]string{}, e.Final...)
		}
	}
}

// IsExpired は元メッセージの投稿時刻から timeout を過ぎているかどうかを返す
func (r *Roster) IsExpired(now time.Time, timeout time.Duration) bool {
	posted, err := ParseSlackTimestamp(r.OriginalMessage)
	if err != nil {
		return false
	}
	return now.After(posted.Add(timeout))
}

// Clone はロスターのディープコピーを返す
func (r *Roster) Clone() *Roster {
	c := *r
	c.Triggers = append([]string{}, r.Triggers...)
	c.Order = append([]string{}, r.Order...)
	c.Reactions = make(map[string]*RosterEntry, len(r.Reactions))
	for name, e := range r.Reactions {
		c.Reactions[name] = e.clone()
	}
	return &c
}

// Snapshot は永続化されるロスター全体
type Snapshot struct {
	Messages map[RosterKey]*Roster `json:"messages"`
}

// NewSnapshot は空のSnapshotを作成する
func NewSnapshot() *Snapshot {
	return &Snapshot{Messages: map[RosterKey]*Roster{}}
}
