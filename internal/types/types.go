package types

import "time"

// ConfigManager defines the interface for configuration management.
type ConfigManager interface {
	IsMaster() bool
	GetAuthConfig() AuthConfig
	GetCORSConfig() CORSConfig
	GetPerformanceConfig() PerformanceConfig
	GetLogConfig() LogConfig
	GetDatabaseConfig() DatabaseConfig
	GetEncryptionKey() string
	GetEffectiveServerConfig() ServerConfig
	GetRedisDSN() string
	GetWarehouseConfig() WarehouseConfig
	GetAlertConfig() AlertConfig
	GetDetectionConfig() DetectionConfig
	Validate() error
	DisplayServerConfig()
	ReloadConfig() error
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Port                    int    `json:"port"`
	Host                    string `json:"host"`
	IsMaster                bool   `json:"is_master"`
	ReadTimeout             int    `json:"read_timeout"`
	WriteTimeout            int    `json:"write_timeout"`
	IdleTimeout             int    `json:"idle_timeout"`
	GracefulShutdownTimeout int    `json:"graceful_shutdown_timeout"`
}

// AuthConfig represents the shared credential required on mutating endpoints.
type AuthConfig struct {
	Key string `json:"key"`
}

// CORSConfig represents CORS configuration for the monitor API.
type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// PerformanceConfig bounds concurrency for HTTP handling and background workers.
type PerformanceConfig struct {
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
	IngestWorkerLimit     int `json:"ingest_worker_limit"`
	SeasonalWorkerLimit   int `json:"seasonal_worker_limit"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	EnableFile bool   `json:"enable_file"`
	FilePath   string `json:"file_path"`
}

// DatabaseConfig is retained for interface parity with the store factory
// contract; the monitor service has no relational persistence (see
// Non-goals), so DSN is expected to stay empty in practice.
type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// WarehouseConfig points the Ingestor at the request/error log warehouse.
type WarehouseConfig struct {
	Endpoint       string        `json:"endpoint"`
	ProjectID      string        `json:"project_id"`
	Dataset        string        `json:"dataset"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxRetries     int           `json:"max_retries"`
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
}

// AlertConfig configures the outbound alert channel used by the reporter.
type AlertConfig struct {
	WebhookURL      string   `json:"webhook_url"`
	Channel         string   `json:"channel"`
	BlacklistRegexp []string `json:"blacklist_patterns"`
}

// DetectionConfig tunes the baseline and seasonal anomaly detectors.
type DetectionConfig struct {
	BaselineWindowHours  int      `json:"baseline_window_hours"`
	ElevatedProbability  float64  `json:"elevated_probability"`
	SeasonalAnomalyScore float64  `json:"seasonal_anomaly_score"`
	SeasonalPeriod       int      `json:"seasonal_period"`
	SeasonalHistoryDays  int      `json:"seasonal_history_days"`
	URIBlacklist         []string `json:"uri_blacklist"`
}

// RetryError captures context about a failed upstream call so callers can
// decide whether to retry and what to tell an operator.
type RetryError struct {
	StatusCode         int    `json:"status_code"`
	ErrorMessage       string `json:"error_message"`
	ParsedErrorMessage string `json:"-"`
	Attempt            int    `json:"attempt"`
	UpstreamAddr       string `json:"-"`
}
