// Package config loads server configuration from environment variables.
package config

import (
	"os"
	"strconv"
)

// Config holds all server configuration.
type Config struct {
	// Server
	Port    string
	AppName string

	// Artifact locations. Relative image and asset URLs resolve against
	// their base.
	ImageBaseURL       string
	DatabaseImageURL   string
	EmbeddingsImageURL string
	AssetBaseURL       string

	// Encoder
	EncoderVariant    string
	MaxSequenceLength int

	// Worker queues
	QueueDepth int

	// S3-compatible object storage for s3:// artifact URLs. Disabled when
	// the endpoint is empty.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envOrDefault("PORT", "3002"),
		AppName: envOrDefault("APP_NAME", "vecsearch"),

		ImageBaseURL:       os.Getenv("IMAGE_BASE_URL"),
		DatabaseImageURL:   envOrDefault("DATABASE_IMAGE_URL", "movies.img"),
		EmbeddingsImageURL: envOrDefault("EMBEDDINGS_IMAGE_URL", "embeddings.img"),
		AssetBaseURL:       os.Getenv("ASSET_BASE_URL"),

		EncoderVariant:    envOrDefault("ENCODER_VARIANT", "bge-small"),
		MaxSequenceLength: envOrDefaultInt("MAX_SEQUENCE_LENGTH", 256),

		QueueDepth: envOrDefaultInt("QUEUE_DEPTH", 64),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:    envOrDefaultBool("S3_USE_SSL", true),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envOrDefaultBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
