package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// Recovery は起動時に保存済みのロスターを読み込み、最新の状態と突き合わせる
type Recovery struct {
	store    *RosterStore
	fetcher  *HistoryFetcher
	router   *Router
	triggers domain.Triggers
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// RecoveryResult は復旧処理の結果
type RecoveryResult struct {
	Expired    int
	Migrated   int
	Reconciled int
	Failed     int
}

// NewRecovery は新しいRecoveryを作成する
func NewRecovery(store *RosterStore, fetcher *HistoryFetcher, router *Router, triggers domain.Triggers, timeout time.Duration, logger *slog.Logger) *Recovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{
		store:    store,
		fetcher:  fetcher,
		router:   router,
		triggers: triggers,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger,
	}
}

// Run は保存済みのロスターを復旧する。イベントの受信を始める前に一度だけ呼ぶ
//
// 期限切れのロスターは破棄し、古い形式のレコードは変換する。残ったロスターは
// 履歴を取得し直して current と突き合わせる。取得に失敗したロスターは読み込んだ
// 状態のまま残す。
func (rc *Recovery) Run(ctx context.Context) (RecoveryResult, error) {
	ctx, span := tracer.Start(ctx, "Recovery.Run")
	defer span.End()

	var result RecoveryResult
	if err := rc.store.Load(ctx); err != nil {
		return result, fmt.Errorf("復旧エラー: %w", err)
	}

	now := rc.now()
	for _, key := range rc.store.Keys() {
		roster, ok := rc.store.Get(key)
		if !ok {
			continue
		}
		if roster.IsExpired(now, rc.timeout) {
			rc.store.Remove(key)
			result.Expired++
			rc.logger.Debug("期限切れのロスターを破棄", "key", key)
			continue
		}

		migrated := false
		rc.store.Update(key, func(r *domain.Roster) bool {
			migrated = r.Migrate(rc.triggers)
			return migrated
		})
		if migrated {
			result.Migrated++
		}

		reacted, _, err := rc.fetcher.FetchReactedUsers(ctx, roster.Channel, roster.OriginalMessage)
		if err != nil {
			result.Failed++
			rc.logger.Warn("復旧時のリアクション取得エラー", "key", key, "error", err)
			continue
		}

		rc.store.Update(key, func(r *domain.Roster) bool {
			for name, e := range r.Reactions {
				if users, ok := reacted[name]; ok {
					e.Current = domain.Reconcile(e.Current, users)
				}
			}
			return true
		})
		rc.router.Refresh(ctx, key)
		result.Reconciled++
	}

	span.SetAttributes(
		attribute.Int("expired", result.Expired),
		attribute.Int("migrated", result.Migrated),
		attribute.Int("reconciled", result.Reconciled),
		attribute.Int("failed", result.Failed),
	)
	if err := rc.store.Persist(ctx); err != nil {
		rc.logger.Error("ロスター保存エラー", "error", err)
	}
	rc.logger.Info("ロスター復旧完了",
		"open", rc.store.Len(), "expired", result.Expired, "migrated", result.Migrated,
		"reconciled", result.Reconciled, "failed", result.Failed)
	return result, nil
}
