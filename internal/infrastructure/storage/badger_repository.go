package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// snapshotKey はスナップショット全体を保存するキー
var snapshotKey = []byte("almuerzo/snapshot")

// BadgerConfig はBadgerDBの設定
type BadgerConfig struct {
	// Path はデータベースのディレクトリ（InMemory の場合は無視）
	Path string
	// InMemory はディスクに書き出さないモード（テスト用）
	InMemory   bool
	SyncWrites bool
	// Logger が nil の場合はBadgerDB内部のログを出さない
	Logger *slog.Logger
}

// badgerLogger はslog.LoggerをBadgerDBのLoggerインターフェースに合わせる
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerRepository はスナップショットをBadgerDBに保存する
type BadgerRepository struct {
	db       *badger.DB
	inMemory bool
}

// OpenBadger はBadgerDBを開いてBadgerRepositoryを作成する
// 使い終わったら Close を呼ぶこと
func OpenBadger(cfg BadgerConfig) (*BadgerRepository, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("データベースのパスが指定されていません")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("ディレクトリ作成エラー %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("BadgerDBオープンエラー: %w", err)
	}
	return &BadgerRepository{db: db, inMemory: cfg.InMemory}, nil
}

// Load はスナップショットを読み込む
// まだ保存されていない場合は空のスナップショットを返す
func (r *BadgerRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("スナップショット読み込みエラー: %w", err)
	}
	return decodeSnapshot(data)
}

// Save はスナップショットを1つのトランザクションで書き込む
func (r *BadgerRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("スナップショット変換エラー: %w", err)
	}
	if err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey, data)
	}); err != nil {
		return fmt.Errorf("スナップショット書き込みエラー: %w", err)
	}
	return nil
}

// RunGC は ctx が終了するまで interval ごとに値ログのGCを実行する
func (r *BadgerRepository) RunGC(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if r.inMemory || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := r.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("BadgerDBのGCエラー", "error", err)
			}
		}
	}
}

// Close はデータベースを閉じる
func (r *BadgerRepository) Close() error {
	return r.db.Close()
}
