// Package config provides environment-driven configuration for the agent
// and server binaries, following the teacher's getEnv/DefaultXConfig style.
package config

import (
	"os"
	"strconv"
	"time"
)

// AgentConfig configures the sensor-side process: the sensor manager, the
// collector, and the storage engine it writes into.
type AgentConfig struct {
	// InstanceID identifies this agent in logs.
	InstanceID string

	// StoragePath is the SQLite database file the agent writes metrics into.
	StoragePath string

	// SystemSensorInterval is the system sensor's sampling tick.
	SystemSensorInterval time.Duration

	// ATCCacheCapacity bounds the ATC sensor's peripheral LRU.
	ATCCacheCapacity int

	// MiFloraSyncInterval is how long a successful MiFlora sync stays fresh.
	MiFloraSyncInterval time.Duration

	// MiFloraHeartbeat is how often MiFlora re-sweeps tracked devices.
	MiFloraHeartbeat time.Duration
}

// DefaultAgentConfig returns the agent's default configuration, overridable
// per field via environment variables.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		InstanceID:           getEnv("AGENT_ID", "agent-1"),
		StoragePath:          getEnv("STORAGE_PATH", "telemetry.db"),
		SystemSensorInterval: getEnvDuration("SYSTEM_SENSOR_INTERVAL", 10*time.Second),
		ATCCacheCapacity:     getEnvInt("ATC_CACHE_CAPACITY", 10),
		MiFloraSyncInterval:  getEnvDuration("MIFLORA_SYNC_INTERVAL", time.Hour),
		MiFloraHeartbeat:     getEnvDuration("MIFLORA_HEARTBEAT", 10*time.Minute),
	}
}

// ServerConfig configures the query-side process: the HTTP adapter and the
// periodic SQLite maintenance job.
type ServerConfig struct {
	// Host is the HTTP server host.
	Host string

	// Port is the HTTP server port.
	Port int

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// StoragePath is the SQLite database file the server reads/maintains.
	StoragePath string

	// RetentionPeriod is how long rows are kept before Cleanup removes them.
	RetentionPeriod time.Duration

	// MaintenanceInterval is how often the gocron job runs Cleanup. The
	// job issues no PRAGMA optimize.
	MaintenanceInterval time.Duration
}

// DefaultServerConfig returns the server's default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:                getEnv("SERVER_HOST", "0.0.0.0"),
		Port:                getEnvInt("SERVER_PORT", 8080),
		ReadTimeout:         getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:        getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		StoragePath:         getEnv("STORAGE_PATH", "telemetry.db"),
		RetentionPeriod:     getEnvDuration("RETENTION_PERIOD", 90*24*time.Hour),
		MaintenanceInterval: getEnvDuration("MAINTENANCE_INTERVAL", time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
