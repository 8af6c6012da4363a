// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/pipeline"
	localstorage "github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/storage/local"
)

// Source names.
const (
	SourceMTProto    = "mtproto"
	SourceWebPreview = "webpreview"
)

// Archive backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// TelegramConfig selects the channel source and drives the scrape.
type TelegramConfig struct {
	Source            string        `mapstructure:"source"              validate:"oneof=mtproto webpreview"`
	APIID             int           `mapstructure:"api_id"              validate:"gte=0"`
	APIHash           string        `mapstructure:"api_hash"`
	Phone             string        `mapstructure:"phone"`
	Password          string        `mapstructure:"password"`
	SessionFile       string        `mapstructure:"session_file"`
	Channels          []string      `mapstructure:"channels"            validate:"dive,required"`
	MessageLimit      int           `mapstructure:"message_limit"       validate:"gt=0"`
	ChannelDelay      time.Duration `mapstructure:"channel_delay"       validate:"gte=0"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"     validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	UserAgent         string        `mapstructure:"user_agent"`
	BaseURL           string        `mapstructure:"base_url"            validate:"omitempty,url"`
}

// PathsConfig locates the local data lake.
type PathsConfig struct {
	RawMessagesDir string `mapstructure:"raw_messages_dir" validate:"required"`
	RawImagesDir   string `mapstructure:"raw_images_dir"   validate:"required"`
}

// DatabaseConfig controls access to the relational store. DSN wins over the
// discrete connection fields.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"              validate:"gte=0,lte=65535"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	Schema          string        `mapstructure:"schema"`
	MaxConns        int32         `mapstructure:"max_conns"         validate:"gte=0"`
	MinConns        int32         `mapstructure:"min_conns"         validate:"gte=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" validate:"gte=0"`
}

// StorageConfig configures the optional archive mirror.
type StorageConfig struct {
	Backend string              `mapstructure:"backend" validate:"oneof=none memory local gcs"`
	Bucket  string              `mapstructure:"bucket"  validate:"required_if=Backend gcs"`
	Prefix  string              `mapstructure:"prefix"`
	Local   localstorage.Config `mapstructure:"local"`
}

// PubSubConfig holds metadata for scrape-run notifications. An empty topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id" validate:"required_with=TopicName"`
	TopicName string `mapstructure:"topic_name"`
}

// PipelineConfig lists the external stages run after load.
type PipelineConfig struct {
	Transform pipeline.CommandConfig `mapstructure:"transform"`
	Enrich    pipeline.CommandConfig `mapstructure:"enrich"`
}

// ServerConfig controls the ops HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// legacyEnv maps keys to the variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"telegram.api_id":       "TELEGRAM_API_ID",
	"telegram.api_hash":     "TELEGRAM_API_HASH",
	"telegram.session_file": "TELEGRAM_SESSION",
	"telegram.phone":        "TELEGRAM_PHONE",
	"database.host":         "POSTGRES_HOST",
	"database.port":         "POSTGRES_PORT",
	"database.name":         "POSTGRES_DB",
	"database.user":         "POSTGRES_USER",
	"database.password":     "POSTGRES_PASSWORD",
}

// Load builds a Config from an optional .env file, the optional YAML file
// at path, and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envName := "PIPELINE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.source", SourceMTProto)
	v.SetDefault("telegram.session_file", "anon.session")
	v.SetDefault("telegram.channels", []string{
		"https://t.me/lobelia4cosmetics",
		"https://t.me/tikvahpharma",
	})
	v.SetDefault("telegram.message_limit", 1000)
	v.SetDefault("telegram.channel_delay", 3*time.Second)
	v.SetDefault("telegram.request_timeout", 30*time.Second)
	v.SetDefault("telegram.requests_per_second", 1.0)
	v.SetDefault("telegram.user_agent", "tgpipeline/0.1")
	v.SetDefault("telegram.base_url", "https://t.me")
	v.SetDefault("paths.raw_messages_dir", "data/raw/telegram_messages")
	v.SetDefault("paths.raw_images_dir", "data/raw/telegram_images")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "raw")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("storage.backend", BackendNone)
	v.SetDefault("storage.local.base_dir", "data/archive")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
}

// Validate enforces struct-tag rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// RequireTelegram checks the credentials the selected source needs.
func (c Config) RequireTelegram() error {
	if len(c.Telegram.Channels) == 0 {
		return errors.New("telegram.channels must list at least one channel")
	}
	if c.Telegram.Source != SourceMTProto {
		return nil
	}
	var missing []string
	if c.Telegram.APIID <= 0 {
		missing = append(missing, "telegram.api_id")
	}
	if c.Telegram.APIHash == "" {
		missing = append(missing, "telegram.api_hash")
	}
	if c.Telegram.SessionFile == "" {
		missing = append(missing, "telegram.session_file")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing telegram credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireDatabase checks that a connection string can be built.
func (c Config) RequireDatabase() error {
	if c.Database.DSN != "" {
		return nil
	}
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "database.host")
	}
	if c.Database.Name == "" {
		missing = append(missing, "database.name")
	}
	if c.Database.User == "" {
		missing = append(missing, "database.user")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing database settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ConnString returns the configured DSN or one assembled from the discrete fields.
func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:   "/" + c.Name,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}
