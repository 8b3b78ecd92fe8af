package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type FetcherConfig struct {
	UserAgent       string `yaml:"userAgent"`
	TimeoutMs       int    `yaml:"timeoutMs"`
	RobotsTimeoutMs int    `yaml:"robotsTimeoutMs"`
}

type CrawlerConfig struct {
	MaxDepthDefault    int  `yaml:"maxDepthDefault"`
	PageLimitDefault   int  `yaml:"pageLimitDefault"`
	MaxChildrenPerPage int  `yaml:"maxChildrenPerPage"`
	RespectRobots      bool `yaml:"respectRobots"`
}

type RodConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BrowserURL string `yaml:"browserUrl"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AdminToken string `yaml:"adminToken"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

type WorkerConfig struct {
	MaxConcurrentJobs int `yaml:"maxConcurrentJobs"`
	PollIntervalMs    int `yaml:"pollIntervalMs"`
	ShutdownGraceMs   int `yaml:"shutdownGraceMs"`
}

type SchedulerConfig struct {
	DiscoveryIntervalHours int `yaml:"discoveryIntervalHours"`
	QueueTickSeconds       int `yaml:"queueTickSeconds"`
	SeedsPerSitemap        int `yaml:"seedsPerSitemap"`
	SitemapsPerSite        int `yaml:"sitemapsPerSite"`
	RediscoverAfterHours   int `yaml:"rediscoverAfterHours"`
}

type IndexerConfig struct {
	MaxImagesPerRecord int `yaml:"maxImagesPerRecord"`
	MaxContentBytes    int `yaml:"maxContentBytes"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Rod       RodConfig       `yaml:"rod"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Worker    WorkerConfig    `yaml:"worker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Indexer   IndexerConfig   `yaml:"indexer"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}
