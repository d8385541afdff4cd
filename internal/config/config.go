// Package config loads the process configuration from environment variables.
//
// Configuration is read ONCE in main and passed down as plain structs. No
// other package calls os.Getenv: the verifier, the publisher and the upload
// stager receive exactly the values they need, which keeps them testable with
// injected configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// RuntimeMode selects development-only behaviour (route guard bypass, local
// preview copies, the cleanup endpoint).
type RuntimeMode int

// The zero value is Production.
const (
	Production RuntimeMode = iota
	Development
)

func (m RuntimeMode) String() string {
	if m == Production {
		return "production"
	}
	return "development"
}

// IsProduction reports whether development-only features must be disabled.
func (m RuntimeMode) IsProduction() bool {
	return m == Production
}

// ParseRuntimeMode accepts "development", "dev" and "local" (any case) as
// Development. Everything else, including the empty string and typos, is
// Production: development mode turns the admin guard off, so it has to be
// asked for by name.
func ParseRuntimeMode(s string) RuntimeMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev", "local":
		return Development
	default:
		return Production
	}
}

// Repository identifies the content repository that publishes target.
// Branch is optional; when empty the repository's default branch is used.
type Repository struct {
	Owner  string
	Name   string
	Branch string
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// GitHub holds OAuth application and API settings.
type GitHub struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	// APIURL overrides the REST endpoint (GitHub Enterprise, tests).
	APIURL  string
	Timeout time.Duration
}

// Config aggregates runtime configuration.
type Config struct {
	Port       int
	Mode       RuntimeMode
	AuthSecret string
	GitHub     GitHub
	Repository Repository
	DBPath     string
	// PreviewDir is the local directory mirroring the repository's public/
	// folder; development uploads are copied here for preview.
	PreviewDir string
	LogLevel   slog.Level
	LogFile    string
}

// MinSecretLength is the shortest AUTH_SECRET accepted.
const MinSecretLength = 16

// Load reads configuration from environment variables. It never fails;
// call Validate before using the result.
func Load() Config {
	port := envInt("PORT", 8080)

	cfg := Config{
		Port:       port,
		Mode:       ParseRuntimeMode(os.Getenv("APP_ENV")),
		AuthSecret: os.Getenv("AUTH_SECRET"),
		GitHub: GitHub{
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			CallbackURL:  envDefault("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
			APIURL:       os.Getenv("GITHUB_API_URL"),
			Timeout:      envDuration("GITHUB_TIMEOUT", 30*time.Second),
		},
		Repository: Repository{
			Owner:  os.Getenv("GITHUB_REPO_OWNER"),
			Name:   os.Getenv("GITHUB_REPO_NAME"),
			Branch: os.Getenv("GITHUB_REPO_BRANCH"),
		},
		DBPath:     envDefault("DB_PATH", "data/portfolio-admin.db"),
		PreviewDir: envDefault("PREVIEW_DIR", "public"),
		LogLevel:   envLevel("LOG_LEVEL", slog.LevelInfo),
		LogFile:    os.Getenv("LOG_FILE"),
	}
	return cfg
}

// Validate reports every missing or malformed setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Repository.Owner == "" {
		errs = append(errs, errors.New("GITHUB_REPO_OWNER is required"))
	}
	if c.Repository.Name == "" {
		errs = append(errs, errors.New("GITHUB_REPO_NAME is required"))
	}
	if len(c.AuthSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_SECRET must be at least %d characters", MinSecretLength))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	return errors.Join(errs...)
}

func envDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}

func envLevel(key string, def slog.Level) slog.Level {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		return def
	}
	return level
}
