// Package config defines the configuration structures shared across layers.
package config

import "fmt"

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// SubscriptionConfig selects the feeds to evaluate and the candidate cap for
// constrained links.
type SubscriptionConfig struct {
	URLs             []string `mapstructure:"urls"`
	PrecheckSites    []string `mapstructure:"precheck_sites"`
	LowInternetMode  bool     `mapstructure:"low_internet_mode"`
	LowInternetLimit int      `mapstructure:"low_internet_limit"`
}

// ProbeConfig drives the engine and the latency/site probes.
type ProbeConfig struct {
	XrayPath       string `mapstructure:"xray_path"`
	XrayAssetsPath string `mapstructure:"xray_assets_path"`
	LatencyTestURL string `mapstructure:"latency_test_url"`
	BatchSize      int    `mapstructure:"batch_size"`
	BasePort       int    `mapstructure:"base_port"`
	TestTimeout    int    `mapstructure:"test_timeout"`
	MaxDelayMS     int    `mapstructure:"max_delay_ms"`
}

// CacheConfig controls the refresh loop and per-site entry expiry.
type CacheConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	SiteTTLSeconds  int `mapstructure:"site_ttl_seconds"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type GeoIPConfig struct {
	DBPath      string `mapstructure:"db_path"`
	DownloadURL string `mapstructure:"download_url"`
}

// GitHubConfig configures the subscription publisher. Push is skipped unless
// Enabled, Token and RepoURL are all set.
type GitHubConfig struct {
	PushEnabled bool   `mapstructure:"push_enabled"`
	Token       string `mapstructure:"token"`
	RepoURL     string `mapstructure:"repo_url"`
	User        string `mapstructure:"user"`
	Email       string `mapstructure:"email"`
	Branch      string `mapstructure:"branch"`
	Filename    string `mapstructure:"filename"`
	RepoDir     string `mapstructure:"repo_dir"`
}
