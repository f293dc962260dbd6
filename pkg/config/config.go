package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type TelegramConfig struct {
	Token       string        `mapstructure:"token" validate:"required"`
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"min=0"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port" validate:"min=0,max=65535"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type OpenAIConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens" validate:"min=1"`
	Temperature  float64 `mapstructure:"temperature" validate:"min=0,max=2"`
	HistoryLimit int     `mapstructure:"history_limit" validate:"min=0"`
}

// PipelineConfig holds the fixed scope identifiers the pre-wired pipeline
// steps are bound to. Zero values disable the corresponding step.
type PipelineConfig struct {
	AdminChatID   int64  `mapstructure:"admin_chat_id"`
	ForwardChatID int64  `mapstructure:"forward_chat_id"`
	IdeasChatID   int64  `mapstructure:"ideas_chat_id"`
	IdeaThreadID  int    `mapstructure:"idea_thread_id"`
	BotUsername   string `mapstructure:"bot_username"`
}

type ReconcileConfig struct {
	KeepTombstones bool          `mapstructure:"keep_tombstones"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout" validate:"min=0"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("telegram.call_timeout", 10*time.Second)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.history_limit", 50)
	v.SetDefault("reconcile.keep_tombstones", false)
	v.SetDefault("reconcile.fetch_timeout", 2*time.Minute)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
