// Package storage はロスターのスナップショットを永続化するリポジトリを提供する
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// FileRepository はスナップショットを1つのJSONファイルに保存する
type FileRepository struct {
	path string
}

// NewFileRepository は新しいFileRepositoryを作成する
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Load はファイルからスナップショットを読み込む
// ファイルがない場合は空のスナップショットを返す
func (r *FileRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("スナップショット読み込みエラー: %w", err)
	}
	return decodeSnapshot(data)
}

// Save はスナップショットを一時ファイルに書き出してから置き換える
func (r *FileRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("スナップショット変換エラー: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("ディレクトリ作成エラー: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイル作成エラー: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("スナップショット書き込みエラー: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("スナップショット書き込みエラー: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("スナップショット置き換えエラー: %w", err)
	}
	return nil
}

func decodeSnapshot(data []byte) (*domain.Snapshot, error) {
	snapshot := domain.NewSnapshot()
	if len(data) == 0 {
		return snapshot, nil
	}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("スナップショット解析エラー: %w", err)
	}
	if snapshot.Messages == nil {
		snapshot.Messages = map[domain.RosterKey]*domain.Roster{}
	}
	return snapshot, nil
}
