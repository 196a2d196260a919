package config

import "fmt"

// Bus drivers.
const (
	BusDriverMemory = "memory"
	BusDriverRedis  = "redis"
)

// BusConfig selects and configures the message bus connecting harbor and
// worker.
type BusConfig struct {
	// Driver is the bus implementation. "memory" runs both actor sides in
	// a single process (development and tests); "redis" splits them across
	// processes over Redis Streams.
	// Default: "memory"
	Driver string

	// RedisURL is the Redis connection URL when Driver is "redis".
	// Format: "redis://host:port/db"
	// Default: "redis://localhost:6379/0"
	RedisURL string

	// MemoryBuffer is the per-actor inbox capacity when Driver is "memory".
	// Default: 1024
	MemoryBuffer int
}

// LoadBusConfig loads bus configuration from environment variables.
// Returns a config with defaults if environment variables are not set.
func LoadBusConfig() (*BusConfig, error) {
	config := &BusConfig{
		Driver:       getEnvOrDefault("BUS_DRIVER", BusDriverMemory),
		RedisURL:     getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		MemoryBuffer: getEnvInt("BUS_MEMORY_BUFFER", 1024),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bus configuration: %w", err)
	}

	return config, nil
}

// Validate checks configuration correctness.
func (c *BusConfig) Validate() error {
	if c.Driver != BusDriverMemory && c.Driver != BusDriverRedis {
		return fmt.Errorf("BUS_DRIVER must be %q or %q, got %q", BusDriverMemory, BusDriverRedis, c.Driver)
	}

	if c.Driver == BusDriverRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL cannot be empty with the redis driver")
	}

	if c.MemoryBuffer <= 0 {
		return fmt.Errorf("BUS_MEMORY_BUFFER must be positive")
	}

	return nil
}
