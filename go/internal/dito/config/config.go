package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/dito/go/internal/dbconfig"
	"gopkg.in/yaml.v3"
)

// Source kinds for the pair table.
const (
	SourceCSV      = "csv"
	SourceMinio    = "minio"
	SourcePostgres = "postgres"
)

// Transports the bot can receive chat events over.
const (
	TransportWebsocket = "websocket"
	TransportNATS      = "nats"
)

type Config struct {
	TaskID      int    `yaml:"task_id"`
	Token       string `yaml:"token"`
	ChatHost    string `yaml:"chat_host"`
	ChatPort    int    `yaml:"chat_port"`
	WaitingRoom string `yaml:"waiting_room"`

	Transport string `yaml:"transport"`
	NATSURL   string `yaml:"nats_url"`
	StatsAddr string `yaml:"stats_addr"`

	Instructions string `yaml:"instructions"`
	Names        string `yaml:"names"`

	Timers   Timers          `yaml:"timers"`
	Images   Images          `yaml:"images"`
	Minio    Minio           `yaml:"minio"`
	Postgres dbconfig.Config `yaml:"postgres"`
}

// Timers holds the delays in minutes.
type Timers struct {
	Ready   float64 `yaml:"ready"`
	Game    float64 `yaml:"game"`
	Waiting float64 `yaml:"waiting"`
	Answer  float64 `yaml:"answer"`
}

type Images struct {
	Source  string `yaml:"source"`
	Path    string `yaml:"path"`
	Table   string `yaml:"table"`
	N       int    `yaml:"n"`
	Shuffle bool   `yaml:"shuffle"`
	Seed    *int64 `yaml:"seed"`
}

type Minio struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Object    string `yaml:"object"`
}

// Default returns the settings the bot runs with when the file is silent.
func Default() Config {
	return Config{
		ChatHost:     "http://localhost",
		WaitingRoom:  "waiting_room",
		Transport:    TransportWebsocket,
		StatsAddr:    ":8081",
		Instructions: "data/instructions.json",
		Names:        "data/names.txt",
		Timers: Timers{
			Ready:   0.5,
			Game:    5,
			Waiting: 5,
			Answer:  1.5,
		},
		Images: Images{
			Source: SourceCSV,
			Path:   "data/image_data.csv",
			Table:  "image_pairs",
			N:      5,
		},
		Postgres: dbconfig.Default(),
	}
}

// Load reads the YAML file at path on top of the defaults and applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Token = getEnv("TOKEN", c.Token)
	c.ChatHost = getEnv("CHAT_HOST", c.ChatHost)
	c.ChatPort = getEnvAsInt("CHAT_PORT", c.ChatPort)
	c.TaskID = getEnvAsInt("DITO_TASK_ID", c.TaskID)
	c.Transport = getEnv("DITO_TRANSPORT", c.Transport)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.StatsAddr = getEnv("DITO_STATS_ADDR", c.StatsAddr)

	c.Minio.Endpoint = getEnv("MINIO_ENDPOINT", c.Minio.Endpoint)
	c.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", c.Minio.AccessKey)
	c.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", c.Minio.SecretKey)
	c.Minio.Bucket = getEnv("MINIO_BUCKET", c.Minio.Bucket)
	c.Minio.Region = getEnv("MINIO_REGION", c.Minio.Region)
	c.Minio.UseSSL = getEnvAsBool("MINIO_USE_SSL", c.Minio.UseSSL)

	c.Postgres = c.Postgres.WithEnv()
}

// Validate reports settings the bot cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Images.N <= 0 {
		errs = append(errs, fmt.Errorf("images.n must be positive, got %d", c.Images.N))
	}
	switch c.Images.Source {
	case SourceCSV, SourceMinio, SourcePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown image source %q", c.Images.Source))
	}
	switch c.Transport {
	case TransportWebsocket, TransportNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	for name, v := range map[string]float64{
		"ready": c.Timers.Ready, "game": c.Timers.Game,
		"waiting": c.Timers.Waiting, "answer": c.Timers.Answer,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("timers.%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// ChatURL is the chat server address including the port, if any.
func (c *Config) ChatURL() string {
	url := strings.TrimRight(c.ChatHost, "/")
	if c.ChatPort != 0 {
		url += ":" + strconv.Itoa(c.ChatPort)
	}
	return url
}

// BaseURI is the root of the administrative REST API.
func (c *Config) BaseURI() string {
	return c.ChatURL() + "/api/v2"
}

// Minutes converts a delay given in minutes.
func Minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
