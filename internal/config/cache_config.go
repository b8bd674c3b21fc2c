package config

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/cache"
)

// GetCacheConfig creates the list cache configuration from environment variables.
// Redis settings are shared with the redis delivery backend.
func GetCacheConfig() cache.CacheConfig {
	return cache.CacheConfig{
		DefaultTTL:      getDurationEnv("CACHE_DEFAULT_TTL", 5*time.Minute),
		MemoryCacheSize: getIntEnv("CACHE_MEMORY_SIZE", 1000),
		RedisAddr:       getStringEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getStringEnv("REDIS_PASSWORD", ""),
		RedisDB:         getIntEnv("REDIS_DB", 0),
		EnableMemory:    getBoolEnv("CACHE_ENABLE_MEMORY", true),
		EnableRedis:     getBoolEnv("CACHE_ENABLE_REDIS", false),
		KeyPrefix:       getStringEnv("CACHE_KEY_PREFIX", "mailbeacon:"),
	}
}

// Helper functions for environment variable parsing
func getStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// CacheHealthCheck represents cache health status
type CacheHealthCheck struct {
	Memory struct {
		Enabled bool `json:"enabled"`
		Size    int  `json:"size"`
	} `json:"memory"`
	Redis struct {
		Enabled   bool   `json:"enabled"`
		Connected bool   `json:"connected"`
		Address   string `json:"address"`
	} `json:"redis"`
	Stats cache.CacheStats `json:"stats"`
}

// GetCacheHealth returns current cache health status for a cache built from cfg
func GetCacheHealth(ctx context.Context, cfg cache.CacheConfig, c cache.Cache) CacheHealthCheck {
	health := CacheHealthCheck{}

	// Memory cache info
	health.Memory.Enabled = cfg.EnableMemory
	health.Memory.Size = cfg.MemoryCacheSize

	// Redis cache info
	health.Redis.Enabled = cfg.EnableRedis
	health.Redis.Address = cfg.RedisAddr
	health.Redis.Connected = cfg.EnableRedis && c.Ping(ctx) == nil

	// Cache statistics
	health.Stats = c.GetStats()

	return health
}
