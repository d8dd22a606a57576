package httpd

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the lecternd server settings, read from the environment.
type Config struct {
	// Port is the TCP port the server listens on.
	Port string

	// AllowedOrigins lists the CORS origins permitted to call the API.
	AllowedOrigins []string

	// DataDir is where the file-backed annotation store keeps its
	// JSON envelopes.
	DataDir string

	// SupabaseURL and SupabaseKey select the Supabase-backed
	// annotation store when both are set.
	SupabaseURL string
	SupabaseKey string

	// MaxUploadBytes caps the size of an uploaded document.
	MaxUploadBytes int64

	// LogLevel names the minimum level the server logs at.
	LogLevel string
}

// FromEnv builds a Config from environment variables, falling back to
// development defaults.
func FromEnv() Config {
	return Config{
		// Cloud platforms provide the listening port via PORT; keep
		// LECTERN_PORT for local use.
		Port:           getEnvOrDefault("PORT", getEnvOrDefault("LECTERN_PORT", "8080")),
		AllowedOrigins: splitOrigins(getEnvOrDefault("LECTERN_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		DataDir:        getEnvOrDefault("LECTERN_DATA_DIR", "./lectern-data"),
		SupabaseURL:    getEnvOrDefault("SUPABASE_URL", ""),
		SupabaseKey:    getEnvOrDefault("SUPABASE_ANON_KEY", ""),
		MaxUploadBytes: getEnvInt64OrDefault("LECTERN_MAX_UPLOAD", 100<<20),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitOrigins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
