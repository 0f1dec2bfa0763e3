package config

import (
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	// Backend endpoints
	SocketBaseURL string `yaml:"socket_base_url"` // e.g. wss://api.example.com/ws
	GraphQLURL    string `yaml:"graphql_url"`     // history fetch endpoint

	// Scope of the conversation socket: exactly one of these is set.
	DocumentID string `yaml:"document_id"`
	CorpusID   string `yaml:"corpus_id"`

	// Auth
	AuthToken string

	// Send debounce: re-entrancy lock released this long after a send completes.
	SendDebounce time.Duration

	// History fetch
	HistoryPageSize       int
	HistoryTimeoutSeconds int

	// Logging
	LogLevel  string
	LogFormat string

	// Prometheus scrape endpoint; empty disables metrics.
	MetricsAddr string
}

var (
	AppConfig *Config

	DefaultSendDebounce = 300 * time.Millisecond
)

func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		SocketBaseURL: getEnvOrDefault("SOCKET_BASE_URL", "ws://localhost:8080/ws"),
		GraphQLURL:    getEnvOrDefault("GRAPHQL_URL", "http://localhost:8080/graphql"),

		DocumentID: getEnvOrDefault("DOCUMENT_ID", ""),
		CorpusID:   getEnvOrDefault("CORPUS_ID", ""),

		// Auth (trim whitespace to avoid common config errors)
		AuthToken: strings.TrimSpace(getEnvOrDefault("AUTH_TOKEN", "")),

		SendDebounce: getEnvAsDuration("SEND_DEBOUNCE", DefaultSendDebounce),

		HistoryPageSize:       getEnvAsInt("HISTORY_PAGE_SIZE", 50),
		HistoryTimeoutSeconds: getEnvAsInt("HISTORY_TIMEOUT_SECONDS", 30),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		MetricsAddr: getEnvOrDefault("METRICS_ADDR", ""),
	}

	// Load endpoint settings from a configuration file when present.
	// Environment variables should have higher precedence, but the file is
	// only used for endpoint settings that are not expected in the env.
	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")

	if configFile, err := os.Open(configFilePath); err != nil {
		log.Printf("No config file at %v, using environment only", configFilePath)
	} else {
		defer configFile.Close()
		if err := LoadConfigFile(configFile, AppConfig); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}

	if AppConfig.AuthToken == "" {
		log.Println("Warning: auth token is missing. Please set AUTH_TOKEN environment variable.")
	}

	if AppConfig.DocumentID == "" && AppConfig.CorpusID == "" {
		log.Println("Warning: neither DOCUMENT_ID nor CORPUS_ID is set; the socket address cannot be built.")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		return err
	}

	return nil
}
