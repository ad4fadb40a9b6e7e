package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Backfill   BackfillConfig   `mapstructure:"backfill"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration. Driver selects
// between "mysql" and "sqlite".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"`
}

// ClassifierConfig holds the external classification service configuration
type ClassifierConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TransportConfig holds the chat transport bridge configuration
type TransportConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	SessionDir   string        `mapstructure:"session_dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MonitorConfig controls which chats feed the pipeline
type MonitorConfig struct {
	Chats                []string `mapstructure:"chats"`
	CommandChat          string   `mapstructure:"command_chat"`
	VerifyChatsOnStartup bool     `mapstructure:"verify_chats_on_startup"`
	MinMessageLength     int      `mapstructure:"min_message_length"`
}

// BackfillConfig controls the startup backfill scan
type BackfillConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxLookbackDays int           `mapstructure:"max_lookback_days"`
	FetchPageSize   int           `mapstructure:"fetch_page_size"`
	ScanTimeout     time.Duration `mapstructure:"scan_timeout"`
}

// ConnectionConfig controls the transport lifecycle state machine
type ConnectionConfig struct {
	MaxReconnectAttempts  int           `mapstructure:"max_reconnect_attempts"`
	SessionClearThreshold int           `mapstructure:"session_clear_threshold"`
	AutoClearSession      bool          `mapstructure:"auto_clear_session"`
	RetryDelayBase        time.Duration `mapstructure:"retry_delay_base"`
	MaxRetryDelay         time.Duration `mapstructure:"max_retry_delay"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
	AuthTimeout           time.Duration `mapstructure:"auth_timeout"`
	DestroyTimeout        time.Duration `mapstructure:"destroy_timeout"`
	SessionMaxAgeDays     int           `mapstructure:"session_max_age_days"`
	StaleConnectionAfter  time.Duration `mapstructure:"stale_connection_after"`
	BackupKeep            int           `mapstructure:"backup_keep"`
}

// SchedulerConfig holds maintenance scheduler configuration
type SchedulerConfig struct {
	RefreshIntervalMinutes int `mapstructure:"refresh_interval_minutes"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.path", "data/scanner.db")

	viper.SetDefault("classifier.model", "gpt-4o-mini")
	viper.SetDefault("classifier.min_interval", "1s")
	viper.SetDefault("classifier.timeout", "15s")

	viper.SetDefault("transport.base_url", "http://localhost:3000")
	viper.SetDefault("transport.session_dir", "data/session")
	viper.SetDefault("transport.poll_interval", "2s")

	viper.SetDefault("monitor.verify_chats_on_startup", true)
	viper.SetDefault("monitor.min_message_length", 3)

	viper.SetDefault("backfill.enabled", true)
	viper.SetDefault("backfill.max_lookback_days", 7)
	viper.SetDefault("backfill.fetch_page_size", 50)
	viper.SetDefault("backfill.scan_timeout", "5m")

	viper.SetDefault("connection.max_reconnect_attempts", 3)
	viper.SetDefault("connection.session_clear_threshold", 3)
	viper.SetDefault("connection.auto_clear_session", false)
	viper.SetDefault("connection.retry_delay_base", "10s")
	viper.SetDefault("connection.max_retry_delay", "2m")
	viper.SetDefault("connection.connect_timeout", "3m")
	viper.SetDefault("connection.auth_timeout", "4m")
	viper.SetDefault("connection.destroy_timeout", "10s")
	viper.SetDefault("connection.session_max_age_days", 30)
	viper.SetDefault("connection.stale_connection_after", "24h")
	viper.SetDefault("connection.backup_keep", 3)

	viper.SetDefault("scheduler.refresh_interval_minutes", 15)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.driver", "DB_DRIVER")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
	viper.BindEnv("database.path", "DB_PATH")

	// Classifier
	viper.BindEnv("classifier.api_key", "CLASSIFIER_API_KEY")
	viper.BindEnv("classifier.base_url", "CLASSIFIER_BASE_URL")
	viper.BindEnv("classifier.model", "CLASSIFIER_MODEL")
	viper.BindEnv("classifier.min_interval", "CLASSIFIER_MIN_INTERVAL")
	viper.BindEnv("classifier.timeout", "CLASSIFIER_TIMEOUT")

	// Transport
	viper.BindEnv("transport.base_url", "TRANSPORT_BASE_URL")
	viper.BindEnv("transport.session_dir", "TRANSPORT_SESSION_DIR")
	viper.BindEnv("transport.poll_interval", "TRANSPORT_POLL_INTERVAL")

	// Monitor
	viper.BindEnv("monitor.chats", "MONITOR_CHATS")
	viper.BindEnv("monitor.command_chat", "MONITOR_COMMAND_CHAT")
	viper.BindEnv("monitor.verify_chats_on_startup", "MONITOR_VERIFY_CHATS_ON_STARTUP")
	viper.BindEnv("monitor.min_message_length", "MONITOR_MIN_MESSAGE_LENGTH")

	// Backfill
	viper.BindEnv("backfill.enabled", "BACKFILL_ENABLED")
	viper.BindEnv("backfill.max_lookback_days", "BACKFILL_MAX_LOOKBACK_DAYS")
	viper.BindEnv("backfill.fetch_page_size", "BACKFILL_FETCH_PAGE_SIZE")
	viper.BindEnv("backfill.scan_timeout", "BACKFILL_SCAN_TIMEOUT")

	// Connection
	viper.BindEnv("connection.max_reconnect_attempts", "CONNECTION_MAX_RECONNECT_ATTEMPTS")
	viper.BindEnv("connection.session_clear_threshold", "CONNECTION_SESSION_CLEAR_THRESHOLD")
	viper.BindEnv("connection.auto_clear_session", "CONNECTION_AUTO_CLEAR_SESSION")
	viper.BindEnv("connection.retry_delay_base", "CONNECTION_RETRY_DELAY_BASE")
	viper.BindEnv("connection.max_retry_delay", "CONNECTION_MAX_RETRY_DELAY")
	viper.BindEnv("connection.connect_timeout", "CONNECTION_CONNECT_TIMEOUT")
	viper.BindEnv("connection.auth_timeout", "CONNECTION_AUTH_TIMEOUT")
	viper.BindEnv("connection.destroy_timeout", "CONNECTION_DESTROY_TIMEOUT")
	viper.BindEnv("connection.session_max_age_days", "CONNECTION_SESSION_MAX_AGE_DAYS")
	viper.BindEnv("connection.stale_connection_after", "CONNECTION_STALE_CONNECTION_AFTER")
	viper.BindEnv("connection.backup_keep", "CONNECTION_BACKUP_KEEP")

	// Scheduler
	viper.BindEnv("scheduler.refresh_interval_minutes", "SCHEDULER_REFRESH_INTERVAL_MINUTES")
}

// GetDSN returns the MySQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required for mysql")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Classifier.APIKey == "" {
		return fmt.Errorf("classifier API key is required")
	}
	if c.Classifier.MinInterval <= 0 {
		return fmt.Errorf("classifier min interval must be greater than 0")
	}
	if c.Classifier.Timeout <= 0 {
		return fmt.Errorf("classifier timeout must be greater than 0")
	}

	if c.Transport.BaseURL == "" {
		return fmt.Errorf("transport base URL is required")
	}
	if c.Transport.SessionDir == "" {
		return fmt.Errorf("transport session dir is required")
	}

	if len(c.Monitor.Chats) == 0 {
		return fmt.Errorf("at least one monitored chat is required")
	}

	if c.Backfill.MaxLookbackDays <= 0 {
		return fmt.Errorf("backfill max lookback days must be greater than 0")
	}
	if c.Backfill.FetchPageSize <= 0 {
		return fmt.Errorf("backfill fetch page size must be greater than 0")
	}

	if c.Connection.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("connection max reconnect attempts must be greater than 0")
	}

	if c.Scheduler.RefreshIntervalMinutes <= 0 {
		return fmt.Errorf("scheduler refresh interval must be greater than 0")
	}

	return nil
}
