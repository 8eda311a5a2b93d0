package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// simple defaults suited to local development.
type Config struct {
	// Relay server
	ServerAddr string // listen address for the relay, e.g. ":8080"

	// Redis (relay presence cache)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Collaboration client
	CollabURL          string        // ws endpoint of the relay, e.g. "ws://127.0.0.1:8080/ws/session"
	ReconnectBaseDelay time.Duration // first retry delay; attempt n waits n * base
	ReconnectMaxTries  int           // reconnect attempt cap
	PresenceInterval   time.Duration // heartbeat push interval
	IdleWindow         time.Duration // no activity for this long -> idle

	// Render clock
	FrameRate     int     // visual loop frequency, frames per second
	MeterRate     int     // level meter updates per second
	PixelsPerSec  float64 // timeline zoom: pixels per second
	HeaderWidth   float64 // fixed track-header offset in pixels
	BeatsPerBar   int     // bars/beats display signature
	MaxLoopLength float64 // upper clamp for loop bounds in seconds

	// Take ingest
	DropDir      string        // recording drop folder watched for new takes
	IngestSettle time.Duration // quiet period before a dropped file is ingested
	SampleRate   int           // engine sample rate for decoded takes
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration reads a duration expressed as milliseconds.
func getEnvDuration(key string, fallbackMillis int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMillis)) * time.Millisecond
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CollabURL:          getEnv("COLLAB_URL", "ws://127.0.0.1:8080/ws/session"),
		ReconnectBaseDelay: getEnvDuration("RECONNECT_BASE_DELAY_MS", 1000),
		ReconnectMaxTries:  getEnvInt("RECONNECT_MAX_TRIES", 5),
		PresenceInterval:   getEnvDuration("PRESENCE_INTERVAL_MS", 5000),
		IdleWindow:         getEnvDuration("IDLE_WINDOW_MS", 60000),

		FrameRate:     getEnvInt("FRAME_RATE", 60),
		MeterRate:     getEnvInt("METER_RATE", 30),
		PixelsPerSec:  getEnvFloat("PIXELS_PER_SECOND", 100),
		HeaderWidth:   getEnvFloat("HEADER_WIDTH", 200),
		BeatsPerBar:   getEnvInt("BEATS_PER_BAR", 4),
		MaxLoopLength: getEnvFloat("MAX_LOOP_LENGTH", 600),

		DropDir:      getEnv("DROP_DIR", "drops"),
		IngestSettle: getEnvDuration("INGEST_SETTLE_MS", 500),
		SampleRate:   getEnvInt("SAMPLE_RATE", 44100),
	}
}
