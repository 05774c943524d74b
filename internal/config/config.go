package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  Server  `yaml:"server" json:"server"`
	Gateway Gateway `yaml:"gateway" json:"gateway"`
	Objects Objects `yaml:"objects" json:"objects"`
	Uploads Uploads `yaml:"uploads" json:"uploads"`
	Undo    Undo    `yaml:"undo" json:"undo"`
	Auth    Auth    `yaml:"auth" json:"auth"`
}

type Server struct {
	Addr string `yaml:"addr" json:"addr"`
}

type Gateway struct {
	// Driver: "memory" | "sqlite" | "postgres"
	Driver      string `yaml:"driver" json:"driver"`
	SQLitePath  string `yaml:"sqlite_path" json:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
}

type Objects struct {
	// Driver: "disk" | "gcs"
	Driver     string `yaml:"driver" json:"driver"`
	Dir        string `yaml:"dir" json:"dir"`
	PublicBase string `yaml:"public_base" json:"public_base"`
	GCS        GCS    `yaml:"gcs" json:"gcs"`
}

type GCS struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

type Uploads struct {
	MaxBytes     int64    `yaml:"max_bytes" json:"max_bytes"`
	MaxDimension int      `yaml:"max_dimension" json:"max_dimension"`
	AllowedTypes []string `yaml:"allowed_types" json:"allowed_types"`
}

type Undo struct {
	GraceMS int `yaml:"grace_ms" json:"grace_ms"`
}

type Auth struct {
	CookieName      string `yaml:"cookie_name" json:"cookie_name"`
	CodeTTLMinutes  int    `yaml:"code_ttl_minutes" json:"code_ttl_minutes"`
	SessionTTLHours int    `yaml:"session_ttl_hours" json:"session_ttl_hours"`
	// DevExposeCode returns sign-in codes in API responses. Never enable
	// outside local development.
	DevExposeCode bool `yaml:"dev_expose_code" json:"dev_expose_code"`
}

func Default() *Config {
	return &Config{
		Server: Server{Addr: ":8080"},
		Gateway: Gateway{
			Driver:     "sqlite",
			SQLitePath: "data/tracker.db",
		},
		Objects: Objects{
			Driver:     "disk",
			Dir:        "data/media",
			PublicBase: "/media",
		},
		Uploads: Uploads{
			MaxBytes:     5 << 20,
			MaxDimension: 1600,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
		},
		Undo: Undo{GraceMS: 5000},
		Auth: Auth{
			CookieName:      "tracker_session",
			CodeTTLMinutes:  10,
			SessionTTLHours: 7 * 24,
		},
	}
}

// Load reads the yaml config at path, falling back to defaults when the file
// does not exist, then applies TRACKER_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Gateway.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown gateway driver %q", c.Gateway.Driver)
	}
	switch c.Objects.Driver {
	case "disk", "gcs":
	default:
		return fmt.Errorf("unknown objects driver %q", c.Objects.Driver)
	}
	if c.Gateway.Driver == "postgres" && c.Gateway.PostgresDSN == "" {
		return fmt.Errorf("gateway driver postgres requires postgres_dsn")
	}
	if c.Objects.Driver == "gcs" && c.Objects.GCS.Bucket == "" {
		return fmt.Errorf("objects driver gcs requires a bucket")
	}
	return nil
}
