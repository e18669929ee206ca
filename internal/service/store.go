package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// RosterStore は開いているロスターをメモリ上で管理する
// すべての変更はこの型のメソッドを通して行い、呼び出し元には複製を返す
type RosterStore struct {
	mu       sync.Mutex
	rosters  map[domain.RosterKey]*domain.Roster
	deleting map[domain.RosterKey]bool
	repo     domain.SnapshotRepository
}

// NewRosterStore は新しいRosterStoreを作成する
func NewRosterStore(repo domain.SnapshotRepository) *RosterStore {
	return &RosterStore{
		rosters:  make(map[domain.RosterKey]*domain.Roster),
		deleting: make(map[domain.RosterKey]bool),
		repo:     repo,
	}
}

// Load は永続化されたロスターを読み込み、メモリ上の状態を置き換える
func (s *RosterStore) Load(ctx context.Context) error {
	snapshot, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("ロスター読み込みエラー: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters = make(map[domain.RosterKey]*domain.Roster)
	if snapshot == nil {
		return nil
	}
	for key, r := range snapshot.Messages {
		if r == nil {
			continue
		}
		s.rosters[key] = r
	}
	openRosters.Set(float64(len(s.rosters)))
	return nil
}

// Persist はすべてのロスターをまとめて保存する
func (s *RosterStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	snapshot := &domain.Snapshot{Messages: make(map[domain.RosterKey]*domain.Roster, len(s.rosters))}
	for key, r := range s.rosters {
		snapshot.Messages[key] = r.Clone()
	}
	s.mu.Unlock()

	if err := s.repo.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("ロスター保存エラー: %w", err)
	}
	return nil
}

// Get はロスターの複製を返す
func (s *RosterStore) Get(key domain.RosterKey) (*domain.Roster, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rosters[key]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Has はロスターが存在するかどうかを返す
func (s *RosterStore) Has(key domain.RosterKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rosters[key]
	return ok
}

// Add はロスターを追加する。既に同じキーのロスターがあれば false を返す
func (s *RosterStore) Add(r *domain.Roster) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.Key()
	if _, exists := s.rosters[key]; exists {
		return false
	}
	s.rosters[key] = r.Clone()
	openRosters.Set(float64(len(s.rosters)))
	return true
}

// Update はその時点のロスターに fn を適用する
// fn が false を返した場合は変更がなかったものとして扱う
func (s *RosterStore) Update(key domain.RosterKey, fn func(r *domain.Roster) bool) (*domain.Roster, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rosters[key]
	if !ok || s.deleting[key] {
		return nil, false
	}
	if !fn(r) {
		return nil, false
	}
	r.Recompute()
	return r.Clone(), true
}

// BeginDelete はロスターを削除中にする。削除中のロスターは更新されない
func (s *RosterStore) BeginDelete(key domain.RosterKey) (*domain.Roster, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rosters[key]
	if !ok || s.deleting[key] {
		return nil, false
	}
	s.deleting[key] = true
	return r.Clone(), true
}

// FinishDelete は削除中のロスターを取り除くか、失敗した場合は元に戻す
func (s *RosterStore) FinishDelete(key domain.RosterKey, deleted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleting, key)
	if deleted {
		delete(s.rosters, key)
		openRosters.Set(float64(len(s.rosters)))
	}
}

// Remove はロスターを取り除く
func (s *RosterStore) Remove(key domain.RosterKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rosters, key)
	delete(s.deleting, key)
	openRosters.Set(float64(len(s.rosters)))
}

// Keys はすべてのキーをソートして返す
func (s *RosterStore) Keys() []domain.RosterKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]domain.RosterKey, 0, len(s.rosters))
	for key := range s.rosters {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len はロスターの数を返す
func (s *RosterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rosters)
}
