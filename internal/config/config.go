package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Spray    SprayConfig    `yaml:"spray"`
	AI       AIConfig       `yaml:"ai"`
	Vision   VisionConfig   `yaml:"vision"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	RecentCap int    `yaml:"recent_cap"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// SprayConfig controls the spray gate and the physical controller client.
type SprayConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	CooldownSeconds     int     `yaml:"cooldown_seconds"`
	ControllerURL       string  `yaml:"controller_url"`
}

func (s SprayConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

type AIConfig struct {
	Gemini GeminiConfig `yaml:"gemini"`
}

// GeminiConfig configures the detection summarizer. Summaries are disabled
// when no API key is set.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type VisionConfig struct {
	StreamURL string `yaml:"stream_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RecentCap == 0 {
		cfg.Server.RecentCap = 50
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Spray.ConfidenceThreshold == 0 {
		cfg.Spray.ConfidenceThreshold = 0.75
	}
	if cfg.Spray.CooldownSeconds == 0 {
		cfg.Spray.CooldownSeconds = 30
	}
	if cfg.AI.Gemini.Model == "" {
		cfg.AI.Gemini.Model = "gemini-1.5-flash"
	}
	if cfg.Vision.StreamURL == "" {
		cfg.Vision.StreamURL = "http://localhost:8000/video/feed"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PV_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PV_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PV_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PV_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PV_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PV_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PV_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PV_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PV_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("PV_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PV_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PV_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("PV_SPRAY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Spray.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("PV_SPRAY_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Spray.CooldownSeconds = n
		}
	}
	if v := os.Getenv("PV_SPRAY_CONTROLLER_URL"); v != "" {
		cfg.Spray.ControllerURL = v
	}
	if v := os.Getenv("PV_GEMINI_API_KEY"); v != "" {
		cfg.AI.Gemini.APIKey = v
	}
	if v := os.Getenv("PV_GEMINI_MODEL"); v != "" {
		cfg.AI.Gemini.Model = v
	}
	if v := os.Getenv("PV_VISION_STREAM_URL"); v != "" {
		cfg.Vision.StreamURL = v
	}
}
