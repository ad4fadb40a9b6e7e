package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "data/scanner.db",
		},
		Classifier: ClassifierConfig{
			APIKey:      "test",
			Model:       "gpt-4o-mini",
			MinInterval: time.Second,
			Timeout:     15 * time.Second,
		},
		Transport: TransportConfig{
			BaseURL:    "http://localhost:3000",
			SessionDir: "data/session",
		},
		Monitor: MonitorConfig{
			Chats:            []string{"Family"},
			MinMessageLength: 3,
		},
		Backfill: BackfillConfig{
			Enabled:         true,
			MaxLookbackDays: 7,
			FetchPageSize:   50,
			ScanTimeout:     5 * time.Minute,
		},
		Connection: ConnectionConfig{
			MaxReconnectAttempts: 3,
		},
		Scheduler: SchedulerConfig{
			RefreshIntervalMinutes: 15,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	config := validConfig()
	assert.NoError(t, config.Validate())

	// Test invalid configuration
	invalidConfig := &Config{
		Server: ServerConfig{
			Port: "",
		},
	}
	assert.Error(t, invalidConfig.Validate())
}

func TestConfigValidationDrivers(t *testing.T) {
	config := validConfig()
	config.Database = DatabaseConfig{Driver: "mysql", Host: "localhost", User: "scanner", DBName: "scanner"}
	assert.NoError(t, config.Validate())

	config.Database = DatabaseConfig{Driver: "mysql", Host: "localhost"}
	assert.Error(t, config.Validate(), "mysql requires user and dbname")

	config.Database = DatabaseConfig{Driver: "sqlite"}
	assert.Error(t, config.Validate(), "sqlite requires a path")

	config.Database = DatabaseConfig{Driver: "postgres", Host: "localhost"}
	assert.Error(t, config.Validate(), "unsupported driver")
}

func TestConfigValidationRequiredFields(t *testing.T) {
	mutations := map[string]func(*Config){
		"missing api key":        func(c *Config) { c.Classifier.APIKey = "" },
		"zero min interval":      func(c *Config) { c.Classifier.MinInterval = 0 },
		"zero timeout":           func(c *Config) { c.Classifier.Timeout = 0 },
		"missing transport url":  func(c *Config) { c.Transport.BaseURL = "" },
		"missing session dir":    func(c *Config) { c.Transport.SessionDir = "" },
		"no monitored chats":     func(c *Config) { c.Monitor.Chats = nil },
		"zero lookback":          func(c *Config) { c.Backfill.MaxLookbackDays = 0 },
		"zero page size":         func(c *Config) { c.Backfill.FetchPageSize = 0 },
		"zero reconnect ceiling": func(c *Config) { c.Connection.MaxReconnectAttempts = 0 },
		"zero refresh interval":  func(c *Config) { c.Scheduler.RefreshIntervalMinutes = 0 },
	}

	for name, mutate := range mutations {
		config := validConfig()
		mutate(config)
		assert.Error(t, config.Validate(), name)
	}
}

func TestConnectionEnvOverrides(t *testing.T) {
	t.Setenv("CONNECTION_CONNECT_TIMEOUT", "90s")
	t.Setenv("CONNECTION_AUTH_TIMEOUT", "5m")
	t.Setenv("CONNECTION_DESTROY_TIMEOUT", "3s")
	t.Setenv("CONNECTION_SESSION_MAX_AGE_DAYS", "14")
	t.Setenv("CONNECTION_STALE_CONNECTION_AFTER", "12h")
	t.Setenv("CONNECTION_BACKUP_KEEP", "5")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Connection.ConnectTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Connection.AuthTimeout)
	assert.Equal(t, 3*time.Second, cfg.Connection.DestroyTimeout)
	assert.Equal(t, 14, cfg.Connection.SessionMaxAgeDays)
	assert.Equal(t, 12*time.Hour, cfg.Connection.StaleConnectionAfter)
	assert.Equal(t, 5, cfg.Connection.BackupKeep)
}

func TestDatabaseDSN(t *testing.T) {
	config := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	dsn := config.GetDSN()
	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	assert.Equal(t, expected, dsn)
}
