package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"errormonitor/internal/types"
)

// Manager loads and serves monitor-service configuration from flags,
// environment variables (prefixed MONITOR_), an optional .env file and an
// optional config file, in that order of precedence.
type Manager struct {
	v  *viper.Viper
	mu sync.RWMutex

	server      types.ServerConfig
	auth        types.AuthConfig
	cors        types.CORSConfig
	performance types.PerformanceConfig
	log         types.LogConfig
	database    types.DatabaseConfig
	warehouse   types.WarehouseConfig
	alert       types.AlertConfig
	detection   types.DetectionConfig
	redisDSN    string
	encKey      string
}

// NewManager builds a Manager from pflag's default CommandLine. If that
// flag set has not been parsed yet, it first registers the service flags
// (--port, --log-level, ...) and parses os.Args[1:]; otherwise it binds
// whichever of those flags the caller already defined.
func NewManager() (*Manager, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read-timeout", 15)
	v.SetDefault("server.write-timeout", 30)
	v.SetDefault("server.idle-timeout", 60)
	v.SetDefault("server.graceful-shutdown-timeout", 20)
	v.SetDefault("auth.key", "")
	v.SetDefault("cors.enabled", true)
	v.SetDefault("cors.allowed-origins", []string{"*"})
	v.SetDefault("cors.allowed-methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed-headers", []string{"*"})
	v.SetDefault("cors.allow-credentials", false)
	v.SetDefault("performance.max-concurrent-requests", 100)
	v.SetDefault("performance.ingest-worker-limit", 6)
	v.SetDefault("performance.seasonal-worker-limit", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.enable-file", false)
	v.SetDefault("log.file-path", "logs/monitor.log")
	v.SetDefault("redis-dsn", "")
	v.SetDefault("encryption-key", "")
	v.SetDefault("warehouse.endpoint", "")
	v.SetDefault("warehouse.project-id", "")
	v.SetDefault("warehouse.dataset", "")
	v.SetDefault("warehouse.request-timeout", 30*time.Second)
	v.SetDefault("warehouse.max-retries", 3)
	v.SetDefault("warehouse.retry-base-delay", 60*time.Second)
	v.SetDefault("alert.webhook-url", "")
	v.SetDefault("alert.channel", "#errors")
	v.SetDefault("alert.blacklist-patterns", []string{})
	v.SetDefault("detection.baseline-window-hours", 168)
	v.SetDefault("detection.elevated-probability", 0.9995)
	v.SetDefault("detection.seasonal-anomaly-score", -10.0)
	v.SetDefault("detection.seasonal-period", 168)
	v.SetDefault("detection.seasonal-history-days", 14)
	v.SetDefault("detection.uri-blacklist", []string{})

	if !pflag.Parsed() {
		pflag.Int("port", 9090, "HTTP listen port")
		pflag.String("log-level", "info", "Logging level (debug, info, warn, error)")
		pflag.String("log-format", "text", "Log format (text, json)")
		pflag.String("auth-key", "", "Shared credential required on mutating endpoints")
		pflag.String("redis-dsn", "", "Redis connection string; empty selects the in-memory store")
		pflag.String("config-file", "", "Path to a YAML/JSON config file")
		pflag.Parse()
	}
	_ = v.BindPFlag("server.port", pflag.Lookup("port"))
	_ = v.BindPFlag("log.level", pflag.Lookup("log-level"))
	_ = v.BindPFlag("log.format", pflag.Lookup("log-format"))
	_ = v.BindPFlag("auth.key", pflag.Lookup("auth-key"))
	_ = v.BindPFlag("redis-dsn", pflag.Lookup("redis-dsn"))

	v.SetEnvPrefix("MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if cf, _ := pflag.CommandLine.GetString("config-file"); cf != "" {
		v.SetConfigFile(cf)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	m := &Manager{v: v}
	if err := m.load(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.v
	m.server = types.ServerConfig{
		Port:                    v.GetInt("server.port"),
		Host:                    v.GetString("server.host"),
		IsMaster:                true,
		ReadTimeout:             v.GetInt("server.read-timeout"),
		WriteTimeout:            v.GetInt("server.write-timeout"),
		IdleTimeout:             v.GetInt("server.idle-timeout"),
		GracefulShutdownTimeout: v.GetInt("server.graceful-shutdown-timeout"),
	}
	m.auth = types.AuthConfig{Key: v.GetString("auth.key")}
	m.cors = types.CORSConfig{
		Enabled:          v.GetBool("cors.enabled"),
		AllowedOrigins:   v.GetStringSlice("cors.allowed-origins"),
		AllowedMethods:   v.GetStringSlice("cors.allowed-methods"),
		AllowedHeaders:   v.GetStringSlice("cors.allowed-headers"),
		AllowCredentials: v.GetBool("cors.allow-credentials"),
	}
	m.performance = types.PerformanceConfig{
		MaxConcurrentRequests: v.GetInt("performance.max-concurrent-requests"),
		IngestWorkerLimit:     v.GetInt("performance.ingest-worker-limit"),
		SeasonalWorkerLimit:   v.GetInt("performance.seasonal-worker-limit"),
	}
	m.log = types.LogConfig{
		Level:      v.GetString("log.level"),
		Format:     v.GetString("log.format"),
		EnableFile: v.GetBool("log.enable-file"),
		FilePath:   v.GetString("log.file-path"),
	}
	m.database = types.DatabaseConfig{DSN: v.GetString("database.dsn")}
	m.redisDSN = v.GetString("redis-dsn")
	m.encKey = v.GetString("encryption-key")
	m.warehouse = types.WarehouseConfig{
		Endpoint:       v.GetString("warehouse.endpoint"),
		ProjectID:      v.GetString("warehouse.project-id"),
		Dataset:        v.GetString("warehouse.dataset"),
		RequestTimeout: v.GetDuration("warehouse.request-timeout"),
		MaxRetries:     v.GetInt("warehouse.max-retries"),
		RetryBaseDelay: v.GetDuration("warehouse.retry-base-delay"),
	}
	m.alert = types.AlertConfig{
		WebhookURL:      v.GetString("alert.webhook-url"),
		Channel:         v.GetString("alert.channel"),
		BlacklistRegexp: v.GetStringSlice("alert.blacklist-patterns"),
	}
	m.detection = types.DetectionConfig{
		BaselineWindowHours:  v.GetInt("detection.baseline-window-hours"),
		ElevatedProbability:  v.GetFloat64("detection.elevated-probability"),
		SeasonalAnomalyScore: v.GetFloat64("detection.seasonal-anomaly-score"),
		SeasonalPeriod:       v.GetInt("detection.seasonal-period"),
		SeasonalHistoryDays:  v.GetInt("detection.seasonal-history-days"),
		URIBlacklist:         v.GetStringSlice("detection.uri-blacklist"),
	}
	return nil
}

func (m *Manager) IsMaster() bool { return true }

func (m *Manager) GetAuthConfig() types.AuthConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auth
}

func (m *Manager) GetCORSConfig() types.CORSConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cors
}

func (m *Manager) GetPerformanceConfig() types.PerformanceConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.performance
}

func (m *Manager) GetLogConfig() types.LogConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.log
}

func (m *Manager) GetDatabaseConfig() types.DatabaseConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.database
}

func (m *Manager) GetEncryptionKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.encKey
}

func (m *Manager) GetEffectiveServerConfig() types.ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.server
}

func (m *Manager) GetRedisDSN() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.redisDSN
}

func (m *Manager) GetWarehouseConfig() types.WarehouseConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.warehouse
}

func (m *Manager) GetAlertConfig() types.AlertConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alert
}

func (m *Manager) GetDetectionConfig() types.DetectionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detection
}

func (m *Manager) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.server.Port <= 0 || m.server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", m.server.Port)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true, "trace": true}
	if !validLevels[strings.ToLower(m.log.Level)] {
		return fmt.Errorf("invalid log.level: %s", m.log.Level)
	}
	if m.detection.SeasonalPeriod <= 0 {
		return fmt.Errorf("detection.seasonal-period must be positive")
	}
	return nil
}

func (m *Manager) DisplayServerConfig() {
	s := m.GetEffectiveServerConfig()
	fmt.Printf("monitor-service listening on %s:%d (graceful shutdown %ds)\n", s.Host, s.Port, s.GracefulShutdownTimeout)
}

func (m *Manager) ReloadConfig() error {
	return m.load()
}
