package config

import (
	"testing"

	"errormonitor/internal/types"
)

// MockConfig implements types.ConfigManager for testing.
type MockConfig struct {
	AuthKeyValue       string
	EncryptionKeyValue string
	Warehouse          types.WarehouseConfig
	Alert              types.AlertConfig
	Detection          types.DetectionConfig
}

// NewTestManager builds a types.ConfigManager suitable for unit tests: no
// auth key (so every request is rejected unless explicitly authorized), CORS
// disabled, and a 100-request concurrency limit.
func NewTestManager(t *testing.T) types.ConfigManager {
	t.Helper()
	return &MockConfig{}
}

func (m *MockConfig) GetServerConfig() types.ServerConfig {
	return types.ServerConfig{
		Port:                    3001,
		Host:                    "0.0.0.0",
		ReadTimeout:             300,
		WriteTimeout:            600,
		IdleTimeout:             120,
		GracefulShutdownTimeout: 10,
	}
}

func (m *MockConfig) GetAuthConfig() types.AuthConfig {
	return types.AuthConfig{Key: m.AuthKeyValue}
}

func (m *MockConfig) GetCORSConfig() types.CORSConfig {
	return types.CORSConfig{
		Enabled:          false,
		AllowedOrigins:   []string{},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}
}

func (m *MockConfig) GetPerformanceConfig() types.PerformanceConfig {
	return types.PerformanceConfig{MaxConcurrentRequests: 100, IngestWorkerLimit: 4, SeasonalWorkerLimit: 2}
}

func (m *MockConfig) GetLogConfig() types.LogConfig {
	return types.LogConfig{Level: "info", Format: "text", EnableFile: false, FilePath: "./data/logs/app.log"}
}

func (m *MockConfig) GetDatabaseConfig() types.DatabaseConfig {
	return types.DatabaseConfig{DSN: ":memory:"}
}

func (m *MockConfig) GetWarehouseConfig() types.WarehouseConfig { return m.Warehouse }

func (m *MockConfig) GetAlertConfig() types.AlertConfig { return m.Alert }

func (m *MockConfig) GetDetectionConfig() types.DetectionConfig { return m.Detection }

func (m *MockConfig) GetRedisDSN() string { return "" }

func (m *MockConfig) GetEncryptionKey() string { return m.EncryptionKeyValue }

func (m *MockConfig) GetEffectiveServerConfig() types.ServerConfig { return m.GetServerConfig() }

func (m *MockConfig) IsMaster() bool { return true }

func (m *MockConfig) Validate() error { return nil }

func (m *MockConfig) DisplayServerConfig() {}

func (m *MockConfig) ReloadConfig() error { return nil }
