// Package config loads newsdesk configuration from a YAML file, NEWSDESK_*
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/queue"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "NEWSDESK"

// Content failure policies.
const (
	PolicyRetry  = "retry"
	PolicyAbsorb = "absorb"
)

// Config is the full application configuration.
type Config struct {
	Database  DatabaseConfig         `mapstructure:"database"`
	Log       LogConfig              `mapstructure:"log"`
	Queues    map[string]QueueConfig `mapstructure:"queues"`
	Worker    WorkerConfig           `mapstructure:"worker"`
	Scheduler SchedulerConfig        `mapstructure:"scheduler"`
	Content   ContentConfig          `mapstructure:"content"`
	AI        AIConfig               `mapstructure:"ai"`
	Media     MediaConfig            `mapstructure:"media"`
	Social    SocialConfig           `mapstructure:"social"`
	Ingest    IngestConfig           `mapstructure:"ingest"`
	Redis     RedisConfig            `mapstructure:"redis"`
	Kafka     KafkaConfig            `mapstructure:"kafka"`
	Sources   []SourceConfig         `mapstructure:"sources"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// QueueConfig overrides the policy of one named queue.
type QueueConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

type WorkerConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	LockDuration      time.Duration `mapstructure:"lock_duration"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StaleLockSweep    time.Duration `mapstructure:"stale_lock_sweep"`
}

// SchedulerConfig holds the trigger schedules. Each schedule accepts
// "@every <duration>", a cron descriptor, or a five-field cron expression.
type SchedulerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	FetchOnStart   bool          `mapstructure:"fetch_on_start"`
	Fetch          string        `mapstructure:"fetch"`
	Reconcile      string        `mapstructure:"reconcile"`
	Report         string        `mapstructure:"report"`
	Cleanup        string        `mapstructure:"cleanup"`
	ReconcileBatch int           `mapstructure:"reconcile_batch"`
	Retention      time.Duration `mapstructure:"retention"`
	Categories     []string      `mapstructure:"categories"`
}

type ContentConfig struct {
	FailurePolicy        string `mapstructure:"failure_policy"`
	ChainImageGeneration bool   `mapstructure:"chain_image_generation"`
	ImageTemplate        string `mapstructure:"image_template"`
}

type AIConfig struct {
	Provider      string        `mapstructure:"provider"` // openai, cohere or empty
	OpenAIKey     string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	OpenAIModel   string        `mapstructure:"openai_model"`
	CohereKey     string        `mapstructure:"cohere_api_key"`
	CohereModel   string        `mapstructure:"cohere_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxInputChars int           `mapstructure:"max_input_chars"`
}

type MediaConfig struct {
	Renderer       string        `mapstructure:"renderer"` // placeholder or http
	RenderEndpoint string        `mapstructure:"render_endpoint"`
	RenderTimeout  time.Duration `mapstructure:"render_timeout"`
	Storage        string        `mapstructure:"storage"` // local or s3
	LocalDir       string        `mapstructure:"local_dir"`
	BaseURL        string        `mapstructure:"base_url"`
	S3Bucket       string        `mapstructure:"s3_bucket"`
	S3Region       string        `mapstructure:"s3_region"`
	S3Prefix       string        `mapstructure:"s3_prefix"`
	S3PathStyle    bool          `mapstructure:"s3_path_style"`
}

type SocialConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

type WebhookConfig struct {
	Platform string `mapstructure:"platform"`
	URL      string `mapstructure:"url"`
	Token    string `mapstructure:"token"`
}

type IngestConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxItemsPerFeed int           `mapstructure:"max_items_per_feed"`
	ExtractFullText bool          `mapstructure:"extract_full_text"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	SeenKey  string        `mapstructure:"seen_key"`
	SeenTTL  time.Duration `mapstructure:"seen_ttl"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	ReportTopic string   `mapstructure:"report_topic"`
}

// SourceConfig seeds one external_sources row.
type SourceConfig struct {
	Name       string   `mapstructure:"name"`
	Active     bool     `mapstructure:"active"`
	Feeds      []string `mapstructure:"feeds"`
	Categories []string `mapstructure:"categories"`
	Keywords   []string `mapstructure:"keywords"`
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration. An empty path looks for newsdesk.yaml in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("newsdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "newsdesk.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	for name, qc := range queue.DefaultConfigs() {
		prefix := "queues." + name + "."
		v.SetDefault(prefix+"max_attempts", qc.MaxAttempts)
		v.SetDefault(prefix+"base_delay", qc.BaseDelay)
		v.SetDefault(prefix+"timeout", qc.Timeout)
		v.SetDefault(prefix+"concurrency", qc.Concurrency)
	}

	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("worker.lock_duration", 5*time.Minute)
	v.SetDefault("worker.heartbeat_interval", time.Minute)
	v.SetDefault("worker.stale_lock_sweep", time.Minute)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.fetch_on_start", true)
	v.SetDefault("scheduler.fetch", "@every 30m")
	v.SetDefault("scheduler.reconcile", "@every 2h")
	v.SetDefault("scheduler.report", "@daily 00:05")
	v.SetDefault("scheduler.cleanup", "@weekly sunday 03:00")
	v.SetDefault("scheduler.reconcile_batch", 10)
	v.SetDefault("scheduler.retention", 7*24*time.Hour)
	v.SetDefault("scheduler.categories", []string{})

	v.SetDefault("content.failure_policy", PolicyRetry)
	v.SetDefault("content.chain_image_generation", false)
	v.SetDefault("content.image_template", "default")

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.openai_api_key", "")
	v.SetDefault("ai.openai_base_url", "")
	v.SetDefault("ai.openai_model", "gpt-4o-mini")
	v.SetDefault("ai.cohere_api_key", "")
	v.SetDefault("ai.cohere_model", "command-r")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.max_input_chars", 12000)

	v.SetDefault("media.renderer", "placeholder")
	v.SetDefault("media.render_endpoint", "")
	v.SetDefault("media.render_timeout", 30*time.Second)
	v.SetDefault("media.storage", "local")
	v.SetDefault("media.local_dir", "media")
	v.SetDefault("media.base_url", "/media")
	v.SetDefault("media.s3_bucket", "")
	v.SetDefault("media.s3_region", "")
	v.SetDefault("media.s3_prefix", "social")
	v.SetDefault("media.s3_path_style", false)

	v.SetDefault("social.timeout", 15*time.Second)
	v.SetDefault("social.telegram.bot_token", "")
	v.SetDefault("social.telegram.chat_id", "")
	v.SetDefault("social.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("social.webhook.platform", "webhook")
	v.SetDefault("social.webhook.url", "")
	v.SetDefault("social.webhook.token", "")

	v.SetDefault("ingest.timeout", 20*time.Second)
	v.SetDefault("ingest.max_items_per_feed", 50)
	v.SetDefault("ingest.extract_full_text", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.seen_key", "newsdesk:seen")
	v.SetDefault("redis.seen_ttl", 14*24*time.Hour)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.report_topic", "newsdesk.daily-reports")
}

// QueueConfigs returns the queue policies to apply on top of the defaults.
func (c *Config) QueueConfigs() []queue.Config {
	out := make([]queue.Config, 0, len(c.Queues))
	for _, name := range []string{core.QueueContent, core.QueueImage, core.QueueSocial} {
		qc, ok := c.Queues[name]
		if !ok {
			continue
		}
		out = append(out, queue.Config{
			Name:        name,
			MaxAttempts: qc.MaxAttempts,
			BaseDelay:   qc.BaseDelay,
			Timeout:     qc.Timeout,
			Concurrency: qc.Concurrency,
		})
	}
	return out
}
