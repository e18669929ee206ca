package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/Tattsum/almuerzo/internal/domain"
)

const (
	eventReactionAdded   = "reaction_added"
	eventReactionRemoved = "reaction_removed"
	eventMessage         = "message"
)

// RouterConfig はイベントルーターの設定
type RouterConfig struct {
	Triggers         domain.Triggers
	DefaultReactions []string
}

// Router はリアクションとスレッドのイベントをロスターの変更に振り分ける
//
// プラットフォーム呼び出しの後は必ずストアから最新の状態を読み直して変更を適用する。
// 同じキーのロスター作成は一度に一つだけ実行される。
type Router struct {
	store     *RosterStore
	fetcher   *HistoryFetcher
	publisher domain.MessagePublisher
	typing    domain.TypingIndicator
	config    RouterConfig
	logger    *slog.Logger
	creating  singleflight.Group
}

// NewRouter は新しいRouterを作成する。typing は nil でもよい
func NewRouter(store *RosterStore, fetcher *HistoryFetcher, publisher domain.MessagePublisher, typing domain.TypingIndicator, config RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		typing:    typing,
		config:    config,
		logger:    logger,
	}
}

// HandleReactionAdded はリアクションの追加を処理する
func (r *Router) HandleReactionAdded(ctx context.Context, ev domain.ReactionEvent) {
	reaction := domain.CanonicalEmoji(ev.Reaction)
	key := ev.Key()
	isTrigger := r.config.Triggers.IsTrigger(reaction)

	if isTrigger && !r.store.Has(key) {
		r.create(ctx, ev, reaction)
		return
	}

	roster, ok := r.store.Update(key, func(ro *domain.Roster) bool {
		if isTrigger && ro.User == ev.User {
			ro.AddTrigger(reaction, r.config.Triggers)
			return true
		}
		e, ok := ro.Entry(reaction)
		if !ok {
			return false
		}
		e.Join(ev.User)
		return true
	})
	if !ok {
		eventsTotal.WithLabelValues(eventReactionAdded, outcomeIgnored).Inc()
		return
	}
	eventsTotal.WithLabelValues(eventReactionAdded, outcomeApplied).Inc()
	r.logger.Debug("リアクション追加", "key", key, "reaction", reaction, "user", ev.User)
	r.publish(ctx, roster)
}

// HandleReactionRemoved はリアクションの削除を処理する
// 作成者が最後のトリガーを外した場合はまとめメッセージごとロスターを削除する
func (r *Router) HandleReactionRemoved(ctx context.Context, ev domain.ReactionEvent) {
	reaction := domain.CanonicalEmoji(ev.Reaction)
	key := ev.Key()

	if r.config.Triggers.IsTrigger(reaction) && r.isInitiator(key, ev.User) {
		r.removeTrigger(ctx, key, reaction)
		return
	}

	roster, ok := r.store.Update(key, func(ro *domain.Roster) bool {
		e, ok := ro.Entry(reaction)
		if !ok {
			return false
		}
		return e.Leave(ev.User)
	})
	if !ok {
		eventsTotal.WithLabelValues(eventReactionRemoved, outcomeIgnored).Inc()
		return
	}
	eventsTotal.WithLabelValues(eventReactionRemoved, outcomeApplied).Inc()
	r.logger.Debug("リアクション削除", "key", key, "reaction", reaction, "user", ev.User)
	r.publish(ctx, roster)
}

// HandleMessage はスレッド内のメッセージの追加・編集・削除を処理する
func (r *Router) HandleMessage(ctx context.Context, ev domain.MessageEvent) {
	key := ev.Key()
	if ev.ThreadTS == "" || !r.store.Has(key) {
		eventsTotal.WithLabelValues(eventMessage, outcomeIgnored).Inc()
		return
	}

	added, removed := domain.CountDelta(ev.OldText, ev.NewText)
	roster, ok := r.store.Update(key, func(ro *domain.Roster) bool {
		if added != nil {
			if e, ok := ro.Entry(added.Name); ok {
				e.Join(added.Users...)
			}
		}
		if removed != nil {
			if e, ok := ro.Entry(removed.Name); ok {
				for _, u := range removed.Users {
					e.Leave(u)
				}
			}
		}
		return true
	})
	if !ok {
		eventsTotal.WithLabelValues(eventMessage, outcomeIgnored).Inc()
		return
	}
	eventsTotal.WithLabelValues(eventMessage, outcomeApplied).Inc()
	r.logger.Debug("スレッドのメッセージを反映", "key", key, "kind", ev.Kind.String())
	r.publish(ctx, roster)
}

// Refresh はロスターを再計算し、まとめメッセージを更新して保存する
func (r *Router) Refresh(ctx context.Context, key domain.RosterKey) bool {
	roster, ok := r.store.Update(key, func(*domain.Roster) bool { return true })
	if !ok {
		return false
	}
	r.publish(ctx, roster)
	return true
}

func (r *Router) isInitiator(key domain.RosterKey, user string) bool {
	roster, ok := r.store.Get(key)
	return ok && roster.User == user
}

func (r *Router) create(ctx context.Context, ev domain.ReactionEvent, trigger string) {
	key := ev.Key()
	_, _, _ = r.creating.Do(string(key), func() (interface{}, error) {
		if r.store.Has(key) {
			return nil, nil
		}

		ctx, span := tracer.Start(ctx, "Router.create")
		defer span.End()
		span.SetAttributes(attribute.String("key", string(key)), attribute.String("trigger", trigger))

		if r.typing != nil {
			r.typing.StartTyping(ev.Channel)
		}

		reacted, original, err := r.fetcher.FetchReactedUsers(ctx, ev.Channel, ev.Timestamp)
		if err != nil {
			eventsTotal.WithLabelValues(eventReactionAdded, outcomeFailed).Inc()
			r.logger.Warn("リアクション取得に失敗したためロスターを作成しません", "key", key, "error", err)
			return nil, err
		}

		roster := r.buildRoster(ev, trigger, reacted, original)
		if roster == nil {
			eventsTotal.WithLabelValues(eventReactionAdded, outcomeIgnored).Inc()
			r.logger.Info("対象の絵文字がないためロスターを作成しません", "key", key)
			return nil, nil
		}

		ts, err := r.publisher.Post(ctx, ev.Channel, RenderSummary(roster, false))
		if err != nil {
			platformErrors.WithLabelValues("post").Inc()
			eventsTotal.WithLabelValues(eventReactionAdded, outcomeFailed).Inc()
			r.logger.Error("まとめメッセージ投稿エラー", "key", key, "error", err)
			return nil, err
		}
		roster.TS = ts

		if !r.store.Add(roster) {
			r.logger.Warn("ロスターは既に存在します", "key", key)
			return nil, nil
		}
		eventsTotal.WithLabelValues(eventReactionAdded, outcomeApplied).Inc()
		r.logger.Info("ロスター作成", "key", key, "entries", len(roster.Reactions), "summary_ts", ts)
		r.persist(ctx)
		return nil, nil
	})
}

// buildRoster は取得したリアクションから最初のロスターを組み立てる
// 元メッセージに書かれた絵文字と、既定の絵文字のうちリアクションがあるものが対象になる
func (r *Router) buildRoster(ev domain.ReactionEvent, trigger string, reacted domain.ReactedUsers, original *domain.Message) *domain.Roster {
	if len(reacted) == 0 {
		return nil
	}

	names := domain.ExtractEmojis(original.Text)
	for _, name := range r.config.DefaultReactions {
		if _, ok := reacted[domain.CanonicalEmoji(name)]; ok {
			names = append(names, domain.CanonicalEmoji(name))
		}
	}

	roster := domain.NewRoster(ev.Channel, ev.User, ev.Timestamp, trigger, r.config.Triggers)
	for _, name := range names {
		roster.AddEntry(domain.NewRosterEntry(name, reacted[name]))
	}
	if len(roster.Reactions) == 0 {
		return nil
	}
	roster.Recompute()
	return roster
}

func (r *Router) removeTrigger(ctx context.Context, key domain.RosterKey, reaction string) {
	last := false
	roster, ok := r.store.Update(key, func(ro *domain.Roster) bool {
		if ro.IsLastTrigger(reaction) {
			last = true
			return false
		}
		return ro.RemoveTrigger(reaction, r.config.Triggers)
	})
	if ok {
		eventsTotal.WithLabelValues(eventReactionRemoved, outcomeApplied).Inc()
		r.publish(ctx, roster)
		return
	}
	if !last {
		eventsTotal.WithLabelValues(eventReactionRemoved, outcomeIgnored).Inc()
		return
	}
	r.delete(ctx, key)
}

func (r *Router) delete(ctx context.Context, key domain.RosterKey) {
	roster, ok := r.store.BeginDelete(key)
	if !ok {
		eventsTotal.WithLabelValues(eventReactionRemoved, outcomeIgnored).Inc()
		return
	}

	if roster.TS != "" {
		if err := r.publisher.Delete(ctx, roster.Channel, roster.TS); err != nil {
			r.store.FinishDelete(key, false)
			platformErrors.WithLabelValues("delete").Inc()
			eventsTotal.WithLabelValues(eventReactionRemoved, outcomeFailed).Inc()
			r.logger.Error("まとめメッセージ削除エラー", "key", key, "error", err)
			return
		}
	}

	r.store.FinishDelete(key, true)
	eventsTotal.WithLabelValues(eventReactionRemoved, outcomeApplied).Inc()
	r.logger.Info("ロスター削除", "key", key)
	r.persist(ctx)
}

// publish はまとめメッセージを更新して保存する。失敗はログに残すだけで処理は続ける
func (r *Router) publish(ctx context.Context, roster *domain.Roster) {
	key := roster.Key()
	if roster.TS == "" {
		r.logger.Warn("まとめメッセージが未投稿のため更新しません", "key", key)
	} else if err := r.publisher.Update(ctx, roster.Channel, roster.TS, RenderSummary(roster, true)); err != nil {
		platformErrors.WithLabelValues("update").Inc()
		r.logger.Error("まとめメッセージ更新エラー", "key", key, "error", err)
	}
	r.persist(ctx)
}

func (r *Router) persist(ctx context.Context) {
	if err := r.store.Persist(ctx); err != nil {
		r.logger.Error("ロスター保存エラー", "error", err)
	}
}
