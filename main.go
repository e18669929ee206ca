package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tattsum/almuerzo/internal/config"
	"github.com/Tattsum/almuerzo/internal/domain"
	slackinfra "github.com/Tattsum/almuerzo/internal/infrastructure/slack"
	"github.com/Tattsum/almuerzo/internal/infrastructure/storage"
	"github.com/Tattsum/almuerzo/internal/service"
)

const badgerGCInterval = 5 * time.Minute

// options はすべてのサブコマンドで共通のフラグ
type options struct {
	configPath string
	logLevel   string
	logFormat  string
	trace      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "almuerzo",
		Short:         "リアクションからお昼の参加者をまとめるSlackボット",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("ALMUERZO_CONFIG"), "設定ファイルのパス（YAML）")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "ログ形式（text, json）")
	root.PersistentFlags().StringVar(&opts.trace, "trace", "", "トレースの出力先（stdout、空なら出力しない）")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "ロスターを復旧してからイベントの受信を始める",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), opts, cmd.ErrOrStderr(), true)
			},
		},
		&cobra.Command{
			Use:   "recover",
			Short: "保存済みのロスターを復旧して終了する",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), opts, cmd.ErrOrStderr(), false)
			},
		},
	)
	return root
}

// newLogger はフラグに応じたslog.Loggerを作成する
func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("不明なログレベル: %q", level)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("不明なログ形式: %q", format)
	}
}

// openStorage は設定に応じたスナップショットの保存先を開く
func openStorage(cfg *config.Config, logger *slog.Logger) (domain.SnapshotRepository, *storage.BadgerRepository, error) {
	switch cfg.Storage.Backend {
	case config.BackendBadger:
		repo, err := storage.OpenBadger(storage.BadgerConfig{
			Path:       cfg.Storage.Path,
			SyncWrites: true,
			Logger:     logger.With("component", "badger"),
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	default:
		return storage.NewFileRepository(cfg.Storage.Path), nil, nil
	}
}

func run(ctx context.Context, opts *options, logOut io.Writer, listen bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(opts.logLevel, opts.logFormat, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	shutdownTracer, err := initTracer(opts.trace, logOut)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("トレースの終了に失敗しました", "error", err)
		}
	}()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if cfg.SlackToken == "" {
		return errors.New("環境変数 SLACK_BOT_TOKEN が設定されていません")
	}

	snapshots, badgerRepo, err := openStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("ストレージ初期化エラー: %w", err)
	}
	if badgerRepo != nil {
		defer func() {
			if err := badgerRepo.Close(); err != nil {
				logger.Error("BadgerDBのクローズに失敗しました", "error", err)
			}
		}()
	}

	client := slack.New(cfg.SlackToken)
	messages := slackinfra.NewMessageRepository(client, slackinfra.Options{
		RateLimit: cfg.RateLimit,
		Timeout:   cfg.APITimeoutDuration(),
		Logger:    logger.With("component", "slack"),
	})

	var listener *slackinfra.Listener
	var typing domain.TypingIndicator
	if listen {
		listener = slackinfra.NewListener(client.NewRTM(), logger.With("component", "rtm"))
		typing = listener
	}

	store := service.NewRosterStore(snapshots)
	fetcher := service.NewHistoryFetcher(messages, logger)
	router := service.NewRouter(store, fetcher, messages, typing, service.RouterConfig{
		Triggers:         cfg.Triggers(),
		DefaultReactions: cfg.DefaultReactions,
	}, logger)
	recovery := service.NewRecovery(store, fetcher, router, cfg.Triggers(), cfg.TimeoutDuration(), logger)

	logger.Info("almuerzo を開始します",
		"reaction", cfg.Reaction,
		"countReaction", cfg.CountReaction,
		"storage", cfg.Storage.Backend,
	)
	if _, err := recovery.Run(ctx); err != nil {
		return err
	}
	if !listen {
		return nil
	}

	dispatcher := service.NewDispatcher(router)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := listener.Run(ctx, dispatcher)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err == nil {
			return errors.New("RTM接続が終了しました")
		}
		return err
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsAddr, logger)
		})
	}
	if badgerRepo != nil {
		g.Go(func() error {
			badgerRepo.RunGC(ctx, badgerGCInterval, logger)
			return nil
		})
	}

	err = g.Wait()
	dispatcher.Wait()
	if perr := store.Persist(context.Background()); perr != nil {
		logger.Error("終了時の保存に失敗しました", "error", perr)
	}
	logger.Info("almuerzo を終了します")
	return err
}

// serveMetrics は ctx が終了するまでPrometheusのエンドポイントを公開する
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("メトリクスを公開します", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("メトリクスサーバーエラー: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
