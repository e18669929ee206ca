package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// ReplyLimit はスレッドから取得する返信の最大数
const ReplyLimit = 100

var tracer = otel.Tracer("github.com/Tattsum/almuerzo/internal/service")

// HistoryFetcher は元メッセージとスレッドからリアクションした参加者を集める
type HistoryFetcher struct {
	messageRepo domain.MessageRepository
	logger      *slog.Logger
}

// NewHistoryFetcher は新しいHistoryFetcherを作成する
func NewHistoryFetcher(messageRepo domain.MessageRepository, logger *slog.Logger) *HistoryFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryFetcher{
		messageRepo: messageRepo,
		logger:      logger,
	}
}

// FetchReactedUsers は元メッセージのリアクションとスレッド内のコマンドを絵文字ごとにまとめる
// 元メッセージのリアクションが先、その後に返信が時系列順に続く
func (f *HistoryFetcher) FetchReactedUsers(ctx context.Context, channelID, ts string) (domain.ReactedUsers, *domain.Message, error) {
	ctx, span := tracer.Start(ctx, "HistoryFetcher.FetchReactedUsers")
	defer span.End()
	span.SetAttributes(attribute.String("channel", channelID), attribute.String("ts", ts))

	start := time.Now()
	defer func() { historyFetchSeconds.Observe(time.Since(start).Seconds()) }()

	original, err := f.messageRepo.FindByTimestamp(ctx, channelID, ts)
	if err != nil {
		platformErrors.WithLabelValues("history").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "history")
		return nil, nil, fmt.Errorf("元メッセージ取得エラー: %w", err)
	}

	replies, err := f.messageRepo.FindThreadReplies(ctx, channelID, ts, ReplyLimit)
	if err != nil {
		platformErrors.WithLabelValues("replies").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "replies")
		return nil, nil, fmt.Errorf("スレッド取得エラー: %w", err)
	}

	reacted := make(domain.ReactedUsers)
	if original.HasReactions() {
		for _, r := range original.Reactions {
			if r.Count > len(r.Users) {
				f.logger.Warn("リアクションしたユーザーの一部しか取得できませんでした",
					"channel", channelID, "ts", ts, "reaction", r.Name, "count", r.Count, "users", len(r.Users))
			}
			reacted.Add(r.Name, r.Users...)
		}
	}
	commands := 0
	for _, msg := range replies {
		if cmd, ok := domain.ParseCount(msg.Text); ok {
			reacted.Add(cmd.Name, cmd.Users...)
			commands++
		}
	}

	span.SetAttributes(attribute.Int("emojis", len(reacted)), attribute.Int("commands", commands))
	f.logger.Debug("リアクション取得完了",
		"channel", channelID, "ts", ts, "emojis", len(reacted), "replies", len(replies), "commands", commands)
	return reacted, original, nil
}
