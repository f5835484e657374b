// Package config loads application configuration from the environment, an
// optional .env file and an optional YAML file named by LIMS_CONFIG_FILE.
// Environment variables take precedence over file values.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Token revocation. Empty RedisURL keeps revocations in memory.
	RedisURL string

	// Login lockout
	LockoutThreshold int
	LockoutDuration  time.Duration
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	k := koanf.New(".")
	if path := os.Getenv("LIMS_CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	config := &Config{
		// Server
		Port: get(k, "PORT", "port", "8080"),
		Env:  get(k, "ENV", "env", "development"),

		// Database
		DBHost:     get(k, "DB_HOST", "db.host", "localhost"),
		DBPort:     get(k, "DB_PORT", "db.port", "5432"),
		DBUser:     get(k, "DB_USER", "db.user", "lims"),
		DBPassword: get(k, "DB_PASSWORD", "db.password", "lims"),
		DBName:     get(k, "DB_NAME", "db.name", "lims"),
		DBSSLMode:  get(k, "DB_SSLMODE", "db.sslmode", "disable"),

		// JWT
		JWTSecret: get(k, "JWT_SECRET", "jwt.secret", "fallback-secret-key-for-dev-only"),

		RedisURL: get(k, "REDIS_URL", "redis_url", ""),
	}

	config.JWTExpirationDur = duration(get(k, "JWT_EXPIRES_IN", "jwt.expires_in", "15m"), "JWT_EXPIRES_IN", 15*time.Minute)
	config.LockoutDuration = duration(get(k, "LOCKOUT_DURATION", "lockout.duration", "15m"), "LOCKOUT_DURATION", 15*time.Minute)

	threshold := get(k, "LOCKOUT_THRESHOLD", "lockout.threshold", "5")
	n, err := strconv.Atoi(threshold)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid LOCKOUT_THRESHOLD value '%s', falling back to 5\n", threshold)
		n = 5
	}
	config.LockoutThreshold = n

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// get returns the environment variable envKey if set, else the file value at
// fileKey, else defaultValue.
func get(k *koanf.Koanf, envKey, fileKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if value := k.String(fileKey); value != "" {
		return value
	}
	return defaultValue
}

func duration(value, name string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", name, value, fallback)
		return fallback
	}
	return d
}
