package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"` // postgres only
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Cloud struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"cloud"`

	Engine struct {
		Endpoint         string `yaml:"endpoint"` // inference sidecar base URL
		HasGPU           bool   `yaml:"hasGPU"`
		HasNPU           bool   `yaml:"hasNPU"`
		Product          string `yaml:"product"`
		SmallestScreenDP int    `yaml:"smallestScreenDP"`
		NewestMajor      int    `yaml:"newestMajor"`
		RecentMajor      int    `yaml:"recentMajor"`
		ThermalZonePath  string `yaml:"thermalZonePath"`
	} `yaml:"engine"`

	Orchestrator struct {
		CacheTTLSeconds  int     `yaml:"cacheTTLSeconds"`
		CacheMaxEntries  int     `yaml:"cacheMaxEntries"`
		TargetFPS        float64 `yaml:"targetFPS"`
		TimeoutHighMS    int     `yaml:"timeoutHighMS"`
		TimeoutMediumMS  int     `yaml:"timeoutMediumMS"`
		TimeoutLowMS     int     `yaml:"timeoutLowMS"`
		TimeoutCloudMS   int     `yaml:"timeoutCloudMS"`
		SuccessRateFloor float64 `yaml:"successRateFloor"`
		MaxImageMB       int     `yaml:"maxImageMB"`
	} `yaml:"orchestrator"`

	Auth struct {
		// site ID -> API key; empty map disables auth
		Keys map[string]string `yaml:"keys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"`
	} `yaml:"rateLimit"`
}

// Load reads the config.yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	return &cfg, nil
}

// Helper to build the MySQL DSN
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper to build the Postgres DSN
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}

// CacheTTL converts the configured seconds to a duration (zero means "use
// the orchestrator default").
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Orchestrator.CacheTTLSeconds) * time.Second
}
