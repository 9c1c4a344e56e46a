package app

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"examconsole/internal/content"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores runtime configuration loaded from environment variables and
// an optional .env file.
type Config struct {
	AppEnv   string
	HTTPAddr string

	ContentAPIURL     string
	ContentAPIToken   string
	ContentAPITimeout time.Duration

	CacheMaxAge    time.Duration
	CollapsePolicy content.CollapsePolicy
	SessionIdle    time.Duration
	MaxSessions    int

	CSRFEnforced            bool
	MutationRateLimitPerMin int
}

func LoadConfig() Config {
	loadDotEnv(envFile())

	v := viper.New()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CONTENT_API_URL", "http://localhost:3000/api")
	v.AutomaticEnv()

	policy, err := content.ParseCollapsePolicy(v.GetString("COLLAPSE_POLICY"))
	if err != nil {
		log.Printf("config: %v, using %s", err, policy)
	}

	return Config{
		AppEnv:                  v.GetString("APP_ENV"),
		HTTPAddr:                v.GetString("HTTP_ADDR"),
		ContentAPIURL:           strings.TrimSpace(v.GetString("CONTENT_API_URL")),
		ContentAPIToken:         strings.TrimSpace(v.GetString("CONTENT_API_TOKEN")),
		ContentAPITimeout:       time.Duration(intOrDefault(v, "CONTENT_API_TIMEOUT_SECONDS", 10)) * time.Second,
		CacheMaxAge:             time.Duration(intOrDefault(v, "CACHE_MAX_AGE_MINUTES", 0)) * time.Minute,
		CollapsePolicy:          policy,
		SessionIdle:             time.Duration(intOrDefault(v, "SESSION_IDLE_MINUTES", 60)) * time.Minute,
		MaxSessions:             intOrDefault(v, "SESSION_MAX", 1000),
		CSRFEnforced:            boolOrDefault(v, "CSRF_ENFORCED", false),
		MutationRateLimitPerMin: intOrDefault(v, "MUTATION_RATE_LIMIT_PER_MINUTE", 120),
	}
}

// envFile picks the dotenv file: ENV_FILE when set, else .env in the working
// directory.
func envFile() string {
	if p := strings.TrimSpace(os.Getenv("ENV_FILE")); p != "" {
		return p
	}
	return ".env"
}

// loadDotEnv never overrides variables already set in the environment. A
// missing file is not an error.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("config: stat %s: %v", path, err)
		}
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("config: load %s: %v", path, err)
	}
}

func intOrDefault(v *viper.Viper, key string, fallback int) int {
	n := v.GetInt(key)
	if n <= 0 {
		return fallback
	}
	return n
}

func boolOrDefault(v *viper.Viper, key string, fallback bool) bool {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return fallback
	}
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
