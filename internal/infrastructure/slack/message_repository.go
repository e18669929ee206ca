package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/Tattsum/almuerzo/internal/domain"
)

const maxRetries = 3

// Options はMessageRepositoryの設定
type Options struct {
	// RateLimit は1秒あたりの呼び出し回数の上限（0以下で無制限）
	RateLimit float64
	// Timeout は1回の呼び出しの期限（0以下で無期限）
	Timeout time.Duration
	Logger  *slog.Logger
}

// MessageRepository はSlack APIを使用してメッセージを取得・投稿するリポジトリ
type MessageRepository struct {
	client  *slack.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
	backoff func(retry int) time.Duration
}

// NewMessageRepository は新しいMessageRepositoryを作成する
func NewMessageRepository(client *slack.Client, opts Options) *MessageRepository {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageRepository{
		client:  client,
		limiter: limiter,
		timeout: opts.Timeout,
		logger:  logger,
		backoff: func(retry int) time.Duration {
			return time.Duration(10+retry*5) * time.Second
		},
	}
}

// FindByTimestamp は指定したタイムスタンプのメッセージを取得する
func (r *MessageRepository) FindByTimestamp(ctx context.Context, channelID, ts string) (*domain.Message, error) {
	params := slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    ts,
		Oldest:    ts,
		Inclusive: true,
		Limit:     1,
	}

	var history *slack.GetConversationHistoryResponse
	err := r.call(ctx, "conversations.history", func(ctx context.Context) error {
		var err error
		history, err = r.client.GetConversationHistoryContext(ctx, &params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("メッセージ取得エラー: %w: %w", domain.ErrTransport, err)
	}
	if history == nil || !history.Ok {
		return nil, fmt.Errorf("メッセージ取得エラー: %w: 不正な応答", domain.ErrTransport)
	}
	if len(history.Messages) == 0 {
		return nil, fmt.Errorf("メッセージ %s/%s: %w", channelID, ts, domain.ErrNotFound)
	}

	return convertToDomainMessage(&history.Messages[0], channelID), nil
}

// FindThreadReplies はスレッドの返信を取得する（親メッセージとボットの投稿は除く）
// 親メッセージを除くのはこの層だけで行う
func (r *MessageRepository) FindThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]*domain.Message, error) {
	params := slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     limit,
	}

	var replies []slack.Message
	err := r.call(ctx, "conversations.replies", func(ctx context.Context) error {
		var err error
		replies, _, _, err = r.client.GetConversationRepliesContext(ctx, &params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("スレッドメッセージ取得エラー: %w: %w", domain.ErrTransport, err)
	}

	messages := make([]*domain.Message, 0, len(replies))
	for i := range replies {
		msg := convertToDomainMessage(&replies[i], channelID)
		if !msg.IsThreadReply() || msg.IsBot {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Post はメッセージを投稿してタイムスタンプを返す
func (r *MessageRepository) Post(ctx context.Context, channelID, text string) (string, error) {
	var ts string
	err := r.call(ctx, "chat.postMessage", func(ctx context.Context) error {
		var err error
		_, ts, err = r.client.PostMessageContext(ctx, channelID,
			slack.MsgOptionText(text, false),
			slack.MsgOptionDisableLinkUnfurl(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("メッセージ投稿エラー: %w: %w", domain.ErrTransport, err)
	}
	if ts == "" {
		return "", fmt.Errorf("メッセージ投稿エラー: %w: タイムスタンプがありません", domain.ErrTransport)
	}
	return ts, nil
}

// Update はメッセージを書き換える
func (r *MessageRepository) Update(ctx context.Context, channelID, ts, text string) error {
	err := r.call(ctx, "chat.update", func(ctx context.Context) error {
		_, _, _, err := r.client.UpdateMessageContext(ctx, channelID, ts, slack.MsgOptionText(text, false))
		return err
	})
	if err != nil {
		return fmt.Errorf("メッセージ更新エラー: %w: %w", domain.ErrTransport, err)
	}
	return nil
}

// Delete はメッセージを削除する
func (r *MessageRepository) Delete(ctx context.Context, channelID, ts string) error {
	err := r.call(ctx, "chat.delete", func(ctx context.Context) error {
		_, _, err := r.client.DeleteMessageContext(ctx, channelID, ts)
		return err
	})
	if err != nil {
		return fmt.Errorf("メッセージ削除エラー: %w: %w", domain.ErrTransport, err)
	}
	return nil
}

// call はレート制限と期限を適用して fn を実行する
// レート制限エラーの場合は待ってから最大 maxRetries 回まで実行する
func (r *MessageRepository) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	var err error
	for retry := 0; retry < maxRetries; retry++ {
		if err = r.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		delay, limited := r.retryDelay(err, retry)
		if !limited {
			return err
		}
		r.logger.Warn("レート制限のため待機します", "method", method, "retry", retry+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// retryDelay はレート制限エラーであれば再試行までの待ち時間を返す
func (r *MessageRepository) retryDelay(err error, retry int) (time.Duration, bool) {
	var limited *slack.RateLimitedError
	if errors.As(err, &limited) {
		return limited.RetryAfter, true
	}
	if !isRateLimitError(err) {
		return 0, false
	}
	if sec := extractRetryAfter(err.Error()); sec > 0 {
		return time.Duration(sec) * time.Second, true
	}
	return r.backoff(retry), true
}

// convertToDomainMessage はSlackのMessageをドメインモデルに変換する
func convertToDomainMessage(msg *slack.Message, channelID string) *domain.Message {
	timestamp, _ := domain.ParseSlackTimestamp(msg.Timestamp)

	reactions := make([]domain.Reaction, 0, len(msg.Reactions))
	for _, reaction := range msg.Reactions {
		reactions = append(reactions, domain.Reaction{
			Name:  reaction.Name,
			Count: reaction.Count,
			Users: reaction.Users,
		})
	}

	return &domain.Message{
		ID:        msg.Timestamp,
		Text:      msg.Text,
		UserID:    msg.User,
		ChannelID: channelID,
		Timestamp: timestamp,
		Reactions: reactions,
		IsBot:     msg.SubType == "bot_message" || msg.BotID != "",
		ThreadTS:  msg.ThreadTimestamp,
	}
}

// isRateLimitError はレート制限エラーかチェック
func isRateLimitError(err error) bool {
	return strings.Contains(err.Error(), "rate limit exceeded")
}

// extractRetryAfter はエラーメッセージからretry-after時間を抽出
func extractRetryAfter(errMsg string) int {
	if strings.Contains(errMsg, "retry after") {
		parts := strings.Split(errMsg, "retry after ")
		if len(parts) > 1 {
			timeStr := strings.TrimSpace(strings.TrimSuffix(parts[len(parts)-1], "s"))
			if retryAfter, err := strconv.Atoi(timeStr); err == nil {
				return retryAfter
			}
		}
	}
	return 0
}
