package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment. The core
// game logic never touches the environment directly; it receives the values
// it needs through this struct.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Debug          bool

	// AdminSecret enables admin status on join. Empty disables all admin
	// features.
	AdminSecret string

	// AIAPIKey empty forces permanent fallback-prompt mode.
	AIAPIKey  string
	AIBaseURL string
	AIModel   string

	ChatEnabled bool
}

// Load reads a .env file if one exists and then the process environment.
// Missing optional values fall back to defaults; there are no fatal values
// here, the server can always start in degraded (fallback/no-admin) mode.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:        ":5000",
		AIBaseURL:   "https://api.openai.com/v1",
		AIModel:     "gpt-4o-mini",
		ChatEnabled: true,
	}

	if v, ok := os.LookupEnv("ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		for _, origin := range strings.Split(v, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}
	cfg.Debug = os.Getenv("DEBUG") == "true"
	cfg.AdminSecret = os.Getenv("ADMIN_SECRET")
	cfg.AIAPIKey = os.Getenv("AI_API_KEY")
	if v, ok := os.LookupEnv("AI_BASE_URL"); ok {
		cfg.AIBaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := os.LookupEnv("AI_MODEL"); ok {
		cfg.AIModel = v
	}
	if v, ok := os.LookupEnv("CHAT_ENABLED"); ok {
		cfg.ChatEnabled = v != "false"
	}

	return cfg
}
