package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const Production = "production"

type Config struct {
	Addr              string        `env:"APP_ADDR" envDefault:":8080"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	Environment       string        `env:"APP_ENV" envDefault:"development"`
	FrontendDir       string        `env:"FRONTEND_DIR" envDefault:"frontend/dist"`
	UploadRoot        string        `env:"UPLOAD_ROOT" envDefault:"uploads"`
	Projects          []string      `env:"PROJECTS" envSeparator:"," envDefault:"elnusa,regional2,regional3,regional4,regional5,umran"`
	Timezone          string        `env:"APP_TIMEZONE" envDefault:"Asia/Jakarta"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	MaxUploadBytes    int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	MaxImportBytes    int64         `env:"MAX_IMPORT_BYTES" envDefault:"10485760"`
	ExpirySweepEvery  time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"24h"`
	ImportBaseTimeout time.Duration `env:"IMPORT_BASE_TIMEOUT" envDefault:"30s"`
	ImportRowTimeout  time.Duration `env:"IMPORT_ROW_TIMEOUT" envDefault:"100ms"`
	RunMigrations     bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT" envDefault:"json"`
	MetricsEnabled    bool          `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsPath       string        `env:"METRICS_PATH" envDefault:"/metrics"`
	CORSOrigins       []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	RateLimit         string        `env:"RATE_LIMIT" envDefault:"120-M"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
}

// Load reads .env files when present and then the process environment.
func Load() (Config, error) {
	if err := loadEnvFiles(".env", ".env.local"); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	for i, p := range cfg.Projects {
		cfg.Projects[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return cfg, nil
}

func loadEnvFiles(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Location resolves APP_TIMEZONE, the zone in which "today" is evaluated.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) Validate(knownProjects []string) error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.Projects) == 0 {
		return fmt.Errorf("PROJECTS must list at least one project")
	}
	known := make(map[string]struct{}, len(knownProjects))
	for _, p := range knownProjects {
		known[p] = struct{}{}
	}
	for _, p := range c.Projects {
		if _, ok := known[p]; !ok {
			return fmt.Errorf("unknown project %q in PROJECTS", p)
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE is invalid: %w", err)
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.MaxUploadBytes <= 0 || c.MaxImportBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES and MAX_IMPORT_BYTES must be positive")
	}
	if c.ImportBaseTimeout <= 0 {
		return fmt.Errorf("IMPORT_BASE_TIMEOUT must be positive")
	}
	if c.DBMinConns < 0 || c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("DB_MAX_CONNS must be >= DB_MIN_CONNS")
	}
	return nil
}

// ImportTimeout bounds a bulk import transaction by its row count.
func (c Config) ImportTimeout(rows int) time.Duration {
	return c.ImportBaseTimeout + time.Duration(rows)*c.ImportRowTimeout
}
