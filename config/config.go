// Package config loads runtime settings from .env, the environment and an
// optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"reading-club-system/services"
	"reading-club-system/storage"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":5200"`
	ClubName   string `env:"CLUB_NAME" envDefault:"reading-club"`
	ConfigFile string `env:"CONFIG_FILE"`

	TelegramToken   string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPI     string  `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	WebhookSecret   string  `env:"TELEGRAM_WEBHOOK_SECRET"`
	WebhookURL      string  `env:"TELEGRAM_WEBHOOK_URL"`
	GroupID         string  `env:"GROUP_ID"`
	GroupThreadID   int64   `env:"GROUP_THREAD_ID"`
	AdminIDs        []int64 `env:"ADMIN_IDS" envSeparator:","`
	AdminToken      string  `env:"ADMIN_TOKEN"`
	NotifyQueueSize int     `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"file"`
	DataFile       string `env:"DATA_FILE" envDefault:"data.json"`
	RedisURL       string `env:"REDIS_URL"`
	RedisKey       string `env:"REDIS_KEY" envDefault:"club:snapshot"`
	DatabaseURL    string `env:"DATABASE_URL"`
	R2AccountID    string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKey    string `env:"R2_ACCESS_KEY_ID"`
	R2SecretKey    string `env:"R2_ACCESS_KEY_SECRET"`
	R2Bucket       string `env:"R2_BUCKET_NAME"`
	R2Endpoint     string `env:"R2_ENDPOINT"`

	QueueCapacity    int           `env:"QUEUE_CAPACITY" envDefault:"10"`
	Cooldown         time.Duration `env:"SUBMISSION_COOLDOWN" envDefault:"48h"`
	SubmissionReward int64         `env:"SUBMISSION_REWARD" envDefault:"10"`
	StartBonus       int64         `env:"START_BONUS" envDefault:"50"`
	DailyReward      int64         `env:"DAILY_REWARD" envDefault:"5"`
	PublishAt        string        `env:"PUBLISH_AT" envDefault:"10:00"`
	PublishBatchSize int           `env:"PUBLISH_BATCH_SIZE" envDefault:"3"`
	TimeZone         string        `env:"TIME_ZONE" envDefault:"UTC"`
	TickInterval     time.Duration `env:"TICK_INTERVAL" envDefault:"30s"`
	SaveInterval     time.Duration `env:"SAVE_INTERVAL" envDefault:"60s"`

	DuelPrize      int64         `env:"DUEL_PRIZE" envDefault:"20"`
	DuelStake      int64         `env:"DUEL_STAKE" envDefault:"0"`
	CollectFor     time.Duration `env:"DUEL_COLLECTION_WINDOW" envDefault:"1h"`
	VoteFor        time.Duration `env:"DUEL_VOTE_WINDOW" envDefault:"30m"`
	MaxEntryLength int           `env:"DUEL_MAX_ENTRY_LENGTH" envDefault:"1500"`

	AllowedDomains []string `env:"ALLOWED_DOMAINS" envSeparator:"," envDefault:"habr.com,vc.ru,medium.com,dev.to,tproger.ru"`
	DuelTopics     []string `env:"DUEL_TOPICS" envSeparator:"|"`
}

// overlay holds the settings a YAML file may override. Lists are awkward in
// env vars, so they mostly live here.
type overlay struct {
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`
	DuelTopics     []string `yaml:"duel_topics,omitempty"`
	AdminIDs       []int64  `yaml:"admin_ids,omitempty"`
	GroupID        string   `yaml:"group_id,omitempty"`
	PublishAt      string   `yaml:"publish_at,omitempty"`
	TimeZone       string   `yaml:"time_zone,omitempty"`
}

var defaultTopics = []string{
	"The first rainy day of autumn",
	"A letter you never sent",
	"The last page of a favourite book",
	"A city at four in the morning",
	"A conversation overheard on a train",
}

// Load reads .env (if present), the environment and CONFIG_FILE, then validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv parses the environment without touching .env.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	if len(cfg.DuelTopics) == 0 {
		cfg.DuelTopics = append([]string(nil), defaultTopics...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if len(o.AllowedDomains) > 0 {
		c.AllowedDomains = o.AllowedDomains
	}
	if len(o.DuelTopics) > 0 {
		c.DuelTopics = o.DuelTopics
	}
	if len(o.AdminIDs) > 0 {
		c.AdminIDs = o.AdminIDs
	}
	if o.GroupID != "" {
		c.GroupID = o.GroupID
	}
	if o.PublishAt != "" {
		c.PublishAt = o.PublishAt
	}
	if o.TimeZone != "" {
		c.TimeZone = o.TimeZone
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.QueueCapacity <= 0 {
		errs = append(errs, errors.New("QUEUE_CAPACITY must be positive"))
	}
	if c.PublishBatchSize <= 0 {
		errs = append(errs, errors.New("PUBLISH_BATCH_SIZE must be positive"))
	}
	if c.Cooldown <= 0 {
		errs = append(errs, errors.New("SUBMISSION_COOLDOWN must be positive"))
	}
	if c.TickInterval <= 0 || c.SaveInterval <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL and SAVE_INTERVAL must be positive"))
	}
	if c.CollectFor <= 0 || c.VoteFor <= 0 {
		errs = append(errs, errors.New("duel windows must be positive"))
	}
	if c.SubmissionReward < 0 || c.StartBonus < 0 || c.DailyReward < 0 || c.DuelPrize < 0 || c.DuelStake < 0 {
		errs = append(errs, errors.New("reward amounts must not be negative"))
	}
	if c.DuelPrize > services.MaxPrize || c.DuelStake > services.MaxPrize {
		errs = append(errs, fmt.Errorf("DUEL_PRIZE and DUEL_STAKE must not exceed %d", services.MaxPrize))
	}
	if _, err := services.ParseTimeOfDay(c.PublishAt); err != nil {
		errs = append(errs, err)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("invalid TIME_ZONE: %w", err))
	}
	if len(c.AllowedDomains) == 0 {
		errs = append(errs, errors.New("ALLOWED_DOMAINS must not be empty"))
	}
	return errors.Join(errs...)
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Club() services.ClubConfig {
	return services.ClubConfig{
		Registry: services.RegistryConfig{
			Capacity: c.QueueCapacity,
			Cooldown: c.Cooldown,
			Reward:   c.SubmissionReward,
		},
		Duel: services.DuelConfig{
			Prize:          c.DuelPrize,
			Stake:          c.DuelStake,
			CollectFor:     c.CollectFor,
			VoteFor:        c.VoteFor,
			MaxEntryLength: c.MaxEntryLength,
		},
		Members: services.MembersConfig{
			StartBonus:  c.StartBonus,
			DailyReward: c.DailyReward,
			Location:    c.Location(),
		},
		Group:       services.Recipient(c.GroupID),
		GroupThread: c.GroupThreadID,
	}
}

func (c *Config) Scheduler() services.SchedulerConfig {
	at, _ := services.ParseTimeOfDay(c.PublishAt)
	return services.SchedulerConfig{
		TickInterval: c.TickInterval,
		PublishAt:    at,
		BatchSize:    c.PublishBatchSize,
		Location:     c.Location(),
	}
}

// Storage returns options for the configured backend, or for backend when set.
func (c *Config) Storage(backend string) storage.Options {
	if backend == "" {
		backend = c.StorageBackend
	}
	return storage.Options{
		Backend:     backend,
		FilePath:    c.DataFile,
		RedisURL:    c.RedisURL,
		RedisKey:    c.RedisKey,
		DatabaseURL: c.DatabaseURL,
		R2: storage.R2Options{
			AccountID:       c.R2AccountID,
			AccessKeyID:     c.R2AccessKey,
			AccessKeySecret: c.R2SecretKey,
			Bucket:          c.R2Bucket,
			Namespace:       c.ClubName,
			Endpoint:        c.R2Endpoint,
		},
	}
}
