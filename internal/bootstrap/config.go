// Package bootstrap wires every domain component (spec.md §4.A–J) behind
// the two network ports (HTTP Control API, WebSocket multiplex) and the
// nightly job scheduler, and owns the process lifecycle — grounded on
// components/ledger/internal/bootstrap's Config/Options/Service shape,
// adapted from a Postgres/Mongo/RabbitMQ multi-service composition to a
// single embedded SQLite process.
package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config is the process-level configuration, bound from environment
// variables via caarlos0/env (spec.md §6 "Environment variables").
type Config struct {
	EnvName  string `env:"ENV_NAME" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Version  string `env:"VERSION" envDefault:"NO-VERSION"`

	Host    string `env:"NYX_HOST" envDefault:"127.0.0.1"`
	Port    int    `env:"NYX_PORT" envDefault:"8765"`
	APIPort int    `env:"NYX_API_PORT" envDefault:"8080"`

	DBPath string `env:"NYX_DB_PATH" envDefault:"data/nyx.db"`

	MaxSessions        int `env:"NYX_MAX_SESSIONS" envDefault:"15"`
	SessionIdleMinutes int `env:"NYX_SESSION_IDLE_MINUTES" envDefault:"60"`

	LLMMaxConcurrent int `env:"NYX_LLM_MAX_CONCURRENT" envDefault:"3"`
	LLMRatePerMin    int `env:"NYX_LLM_RATE_PER_MIN" envDefault:"10"`
	LLMTimeoutS      int `env:"NYX_LLM_TIMEOUT_S" envDefault:"120"`
	QueueMax         int `env:"NYX_QUEUE_MAX" envDefault:"50"`

	NotifyMaxPerUser int `env:"NYX_NOTIFY_MAX_PER_USER" envDefault:"100"`

	JWTSecret string `env:"NYX_JWT_SECRET" envDefault:"change-me-in-production"`
	JWTTTLMin int    `env:"NYX_JWT_TTL_MINUTES" envDefault:"720"`

	UsersFile string `env:"NYX_USERS_FILE" envDefault:"data/users.toml"`

	DPODatasetDir string `env:"NYX_DPO_DATASET_DIR" envDefault:"data/dpo_datasets"`
	BackupDir     string `env:"NYX_BACKUP_DIR" envDefault:"data/backups"`
	BackupKeep    int    `env:"NYX_BACKUP_KEEP" envDefault:"30"`
	AuditMaxDays  int    `env:"NYX_AUDIT_MAX_DAYS" envDefault:"90"`
}

// SessionIdleTimeout is the Config.SessionIdleMinutes field as a Duration.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// JWTTTL is the Config.JWTTTLMin field as a Duration.
func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMin) * time.Minute
}

// LLMTimeout is the Config.LLMTimeoutS field as a Duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutS) * time.Second
}

// LoadConfig loads a local .env file (when ENV_NAME is unset or "local")
// then binds Config from the process environment, mirroring
// common/os.go's InitLocalEnvConfig two-step shape.
func LoadConfig() (*Config, error) {
	envName := os.Getenv("ENV_NAME")
	if envName == "" || envName == "local" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using process environment only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment variables: %w", err)
	}

	return cfg, nil
}

// UserAccounts is the on-disk shape of the local operator registry: a TOML
// file of username -> {password_hash, display_name, role}, since this
// local-first deployment has no external identity provider.
type UserAccounts struct {
	Users map[string]UserAccount `toml:"users"`
}

// UserAccount is one entry in users.toml.
type UserAccount struct {
	PasswordHash string `toml:"password_hash"`
	DisplayName  string `toml:"display_name"`
	Role         string `toml:"role"`
}

// LoadUsers reads the operator registry from path. A missing file is not
// an error: it yields an empty registry so a fresh install can still
// start (no operator can log in until the file is created).
func LoadUsers(path string) (UserAccounts, error) {
	var accounts UserAccounts

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return UserAccounts{Users: map[string]UserAccount{}}, nil
	}

	if _, err := toml.DecodeFile(path, &accounts); err != nil {
		return UserAccounts{}, fmt.Errorf("failed to load users file %s: %w", path, err)
	}

	if accounts.Users == nil {
		accounts.Users = map[string]UserAccount{}
	}

	return accounts, nil
}
