package slack

import (
	"context"
	"errors"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// ErrInvalidAuth はトークンが無効であることを表す
var ErrInvalidAuth = errors.New("slack: invalid auth")

// Listener はRTM接続からイベントを受け取りハンドラーに渡す
// ハンドラーは受信ループの中で呼ばれるため、すぐに戻る必要がある
type Listener struct {
	rtm    *slack.RTM
	logger *slog.Logger
	selfID string
}

// NewListener は新しいListenerを作成する
func NewListener(rtm *slack.RTM, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		rtm:    rtm,
		logger: logger,
	}
}

// StartTyping はチャンネルに入力中表示を送る
func (l *Listener) StartTyping(channelID string) {
	l.rtm.SendMessage(l.rtm.NewTypingMessage(channelID))
}

// Run は ctx が終了するか認証エラーになるまでイベントを処理する
func (l *Listener) Run(ctx context.Context, h domain.EventHandler) error {
	go l.rtm.ManageConnection()
	defer func() {
		if err := l.rtm.Disconnect(); err != nil {
			l.logger.Debug("切断エラー", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-l.rtm.IncomingEvents:
			if !ok {
				return nil
			}
			if err := l.dispatch(ctx, msg, h); err != nil {
				return err
			}
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, msg slack.RTMEvent, h domain.EventHandler) error {
	switch ev := msg.Data.(type) {
	case *slack.ConnectedEvent:
		if ev.Info != nil && ev.Info.User != nil {
			l.selfID = ev.Info.User.ID
		}
		l.logger.Info("Slackに接続しました", "connections", ev.ConnectionCount, "self", l.selfID)
	case *slack.ReactionAddedEvent:
		if re, ok := reactionAdded(ev); ok {
			h.HandleReactionAdded(ctx, re)
		}
	case *slack.ReactionRemovedEvent:
		if re, ok := reactionRemoved(ev); ok {
			h.HandleReactionRemoved(ctx, re)
		}
	case *slack.MessageEvent:
		if ev.User != "" && ev.User == l.selfID {
			return nil
		}
		if me, ok := toMessageEvent(ev); ok {
			h.HandleMessage(ctx, me)
		}
	case *slack.RTMError:
		l.logger.Warn("RTMエラー", "code", ev.Code, "message", ev.Msg)
	case *slack.InvalidAuthEvent:
		return ErrInvalidAuth
	}
	return nil
}

func reactionAdded(ev *slack.ReactionAddedEvent) (domain.ReactionEvent, bool) {
	if ev.Item.Type != "" && ev.Item.Type != "message" {
		return domain.ReactionEvent{}, false
	}
	return domain.ReactionEvent{
		Channel:   ev.Item.Channel,
		Timestamp: ev.Item.Timestamp,
		User:      ev.User,
		Reaction:  ev.Reaction,
	}, true
}

func reactionRemoved(ev *slack.ReactionRemovedEvent) (domain.ReactionEvent, bool) {
	if ev.Item.Type != "" && ev.Item.Type != "message" {
		return domain.ReactionEvent{}, false
	}
	return domain.ReactionEvent{
		Channel:   ev.Item.Channel,
		Timestamp: ev.Item.Timestamp,
		User:      ev.User,
		Reaction:  ev.Reaction,
	}, true
}

// toMessageEvent はスレッド内のメッセージイベントをドメインのイベントに変換する
// スレッド外のメッセージ、親メッセージ自体の変化、対象外のサブタイプは false を返す
func toMessageEvent(ev *slack.MessageEvent) (domain.MessageEvent, bool) {
	threadTS := ev.ThreadTimestamp
	if threadTS == "" && ev.SubMessage != nil {
		threadTS = ev.SubMessage.ThreadTimestamp
	}
	if threadTS == "" && ev.PreviousMessage != nil {
		threadTS = ev.PreviousMessage.ThreadTimestamp
	}
	if threadTS == "" {
		return domain.MessageEvent{}, false
	}

	me := domain.MessageEvent{Channel: ev.Channel, ThreadTS: threadTS}
	switch ev.SubType {
	case "", "thread_broadcast":
		if ev.Timestamp == threadTS || ev.BotID != "" {
			return domain.MessageEvent{}, false
		}
		me.Kind = domain.MessageAdded
		me.NewText = ev.Text
	case "message_changed":
		if ev.SubMessage == nil || ev.PreviousMessage == nil || ev.SubMessage.Timestamp == threadTS {
			return domain.MessageEvent{}, false
		}
		me.Kind = domain.MessageChanged
		me.OldText = ev.PreviousMessage.Text
		me.NewText = ev.SubMessage.Text
	case "message_deleted":
		if ev.PreviousMessage == nil || ev.PreviousMessage.Timestamp == threadTS {
			return domain.MessageEvent{}, false
		}
		me.Kind = domain.MessageDeleted
		me.OldText = ev.PreviousMessage.Text
	default:
		return domain.MessageEvent{}, false
	}
	return me, true
}
