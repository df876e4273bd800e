package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvProduction is the environment name that enables production behavior.
const EnvProduction = "production"

// Session TTLs selected by the environment flag.
const (
	// devSessionTTL bounds sessions outside production.
	devSessionTTL = 5 * time.Minute
	// prodSessionTTL bounds sessions in production.
	prodSessionTTL = 7 * 24 * time.Hour
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SessionConfig holds session token settings.
type SessionConfig struct {
	Secret string `yaml:"secret"`
}

// RelyingPartyConfig holds the WebAuthn relying party identity.
type RelyingPartyConfig struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Origins []string `yaml:"origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the root application configuration.
type Config struct {
	Environment  string             `yaml:"environment"`
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Session      SessionConfig      `yaml:"session"`
	RelyingParty RelyingPartyConfig `yaml:"relying_party"`
	WebOrigin    string             `yaml:"web_origin"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Default returns the development defaults matching the local frontend setup.
func Default() Config {
	return Config{
		Environment: "development",
		Server:      ServerConfig{Port: 3000},
		Database:    DatabaseConfig{DSN: "file:passkey-auth.db"},
		Session:     SessionConfig{Secret: ""},
		RelyingParty: RelyingPartyConfig{
			ID:      "localhost",
			Name:    "My Passkey App",
			Origins: []string{"http://localhost:5173"},
		},
		WebOrigin: "http://localhost:5173",
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML config file when present and applies environment
// variable overrides. A missing file is not an error; the defaults plus
// overrides are used instead.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, errRead := os.ReadFile(path)
		switch {
		case errRead == nil:
			if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
			}
		case os.IsNotExist(errRead):
			// fall through to env overrides
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
		}
	}

	applyEnvOverrides(&cfg)

	if errValidate := cfg.validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// applyEnvOverrides overlays recognized environment variables onto cfg.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("APP_ENV")); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if port, errParse := strconv.Atoi(v); errParse == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_SECRET")); v != "" {
		cfg.Session.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("RP_ID")); v != "" {
		cfg.RelyingParty.ID = v
	}
	if v := strings.TrimSpace(os.Getenv("RP_NAME")); v != "" {
		cfg.RelyingParty.Name = v
	}
	if v := strings.TrimSpace(os.Getenv("RP_ORIGINS")); v != "" {
		cfg.RelyingParty.Origins = splitCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("WEB_ORIGIN")); v != "" {
		cfg.WebOrigin = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.Logging.File = v
	}
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: missing database dsn")
	}
	if len(c.RelyingParty.Origins) == 0 {
		return fmt.Errorf("config: missing relying party origins")
	}
	if c.IsProduction() && strings.TrimSpace(c.Session.Secret) == "" {
		return fmt.Errorf("config: session secret is required in production")
	}
	return nil
}

// IsProduction reports whether the production environment flag is set.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvProduction)
}

// SessionTTL returns the session lifetime for the configured environment:
// days-scale in production, minutes-scale everywhere else.
func (c Config) SessionTTL() time.Duration {
	if c.IsProduction() {
		return prodSessionTTL
	}
	return devSessionTTL
}
