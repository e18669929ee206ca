// Package config は設定ファイルと環境変数から設定を読み込む
//
// 設定は YAML ファイル（--config で指定、省略可）を読み込んだ後、
// ALMUERZO_* 環境変数で上書きする。カレントディレクトリに .env があれば先に読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// ストレージのバックエンド
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Config はアプリケーション全体の設定
type Config struct {
	// Reaction はロスターを作成する絵文字
	Reaction string `yaml:"reaction"`
	// CountReaction は集計中モードの絵文字（省略可）
	CountReaction string `yaml:"countReaction"`
	// DefaultReactions は本文になくても、リアクションされていれば集計する絵文字
	DefaultReactions []string `yaml:"defaultReactions"`
	// Timeout はロスターを保持するミリ秒数
	Timeout int64 `yaml:"timeout"`
	// APITimeout はSlack API呼び出し1回あたりのミリ秒数
	APITimeout int64 `yaml:"apiTimeout"`
	// RateLimit は1秒あたりのSlack API呼び出し回数
	RateLimit float64 `yaml:"rateLimit"`
	// MetricsAddr が空でなければPrometheusのエンドポイントを公開する
	MetricsAddr string        `yaml:"metricsAddr"`
	Storage     StorageConfig `yaml:"storage"`

	// SlackToken は環境変数 SLACK_BOT_TOKEN からのみ読み込む
	SlackToken string `yaml:"-"`
}

// StorageConfig はスナップショットの保存先
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Default はデフォルトの設定を返す
func Default() *Config {
	return &Config{
		Reaction:   "almuerzo",
		Timeout:    int64((12 * time.Hour) / time.Millisecond),
		APITimeout: 10000,
		RateLimit:  1,
		Storage: StorageConfig{
			Backend: BackendFile,
			Path:    "data/almuerzo.json",
		},
	}
}

// Load は設定を読み込んで検証する。path が空の場合は設定ファイルを読まない
func Load(path string) (*Config, error) {
	// .env は任意
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイル解析エラー %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Reaction = domain.CanonicalEmoji(cfg.Reaction)
	cfg.CountReaction = domain.CanonicalEmoji(cfg.CountReaction)
	for i, name := range cfg.DefaultReactions {
		cfg.DefaultReactions[i] = domain.CanonicalEmoji(name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("ALMUERZO_REACTION"); ok {
		c.Reaction = v
	}
	if v, ok := os.LookupEnv("ALMUERZO_COUNT_REACTION"); ok {
		c.CountReaction = v
	}
	if v, ok := os.LookupEnv("ALMUERZO_TIMEOUT"); ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ALMUERZO_TIMEOUT が不正です: %w", err)
		}
		c.Timeout = ms
	}
	if v, ok := os.LookupEnv("ALMUERZO_DATA"); ok {
		c.Storage.Path = v
	}
	if v, ok := os.LookupEnv("ALMUERZO_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	c.SlackToken = os.Getenv("SLACK_BOT_TOKEN")
	return nil
}

// Validate は設定値を検証する
func (c *Config) Validate() error {
	var errs []error
	if c.Reaction == "" {
		errs = append(errs, errors.New("reaction が指定されていません"))
	}
	if c.CountReaction != "" && c.CountReaction == c.Reaction {
		errs = append(errs, errors.New("countReaction は reaction と別の絵文字にしてください"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout は正の値にしてください: %d", c.Timeout))
	}
	if c.APITimeout < 0 {
		errs = append(errs, fmt.Errorf("apiTimeout が不正です: %d", c.APITimeout))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rateLimit が不正です: %v", c.RateLimit))
	}
	switch c.Storage.Backend {
	case BackendFile, BackendBadger:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path が指定されていません"))
		}
	default:
		errs = append(errs, fmt.Errorf("不明なストレージ: %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// Triggers はトリガー絵文字を返す
func (c *Config) Triggers() domain.Triggers {
	return domain.Triggers{Main: c.Reaction, Count: c.CountReaction}
}

// TimeoutDuration はロスターの保持期間を返す
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// APITimeoutDuration はSlack API呼び出しの期限を返す
func (c *Config) APITimeoutDuration() time.Duration {
	return time.Duration(c.APITimeout) * time.Millisecond
}
