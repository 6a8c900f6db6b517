// Package config loads configuration from file and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/proxypulse/proxypulse/internal/shared/config"
)

type Config struct {
	Server       sharedConfig.ServerConfig       `mapstructure:"server"`
	Logger       sharedConfig.LoggerConfig       `mapstructure:"logger"`
	Subscription sharedConfig.SubscriptionConfig `mapstructure:"subscription"`
	Probe        sharedConfig.ProbeConfig        `mapstructure:"probe"`
	Cache        sharedConfig.CacheConfig        `mapstructure:"cache"`
	Redis        sharedConfig.RedisConfig        `mapstructure:"redis"`
	GeoIP        sharedConfig.GeoIPConfig        `mapstructure:"geoip"`
	GitHub       sharedConfig.GitHubConfig       `mapstructure:"github"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configs/config.yaml (optional) plus environment variables and
// returns the assembled configuration. Flat environment names such as
// SUB_URLS or BATCH_SIZE are accepted alongside the PROXYPULSE_* form.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")

	v.SetEnvPrefix("PROXYPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindAliases(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// List options may arrive from the environment as a JSON array or a
	// comma-separated string.
	config.Subscription.URLs = toStringList(v.Get("subscription.urls"))
	config.Subscription.PrecheckSites = toStringList(v.Get("subscription.precheck_sites"))

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration.
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.mode", "release")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("subscription.urls",
		"https://github.com/Epodonios/v2ray-configs/raw/main/Splitted-By-Protocol/vless.txt")
	v.SetDefault("subscription.precheck_sites", "")
	v.SetDefault("subscription.low_internet_mode", false)
	v.SetDefault("subscription.low_internet_limit", 50)

	v.SetDefault("probe.xray_path", "/usr/local/bin/xray")
	v.SetDefault("probe.xray_assets_path", "/usr/share/xray/")
	v.SetDefault("probe.latency_test_url", "http://www.google.com/generate_204")
	v.SetDefault("probe.batch_size", 500)
	v.SetDefault("probe.base_port", 20000)
	v.SetDefault("probe.test_timeout", 10)
	v.SetDefault("probe.max_delay_ms", 8000)

	v.SetDefault("cache.interval_seconds", 900)
	v.SetDefault("cache.site_ttl_seconds", 3600)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("geoip.db_path", "Country.mmdb")
	v.SetDefault("geoip.download_url",
		"https://github.com/P3TERX/GeoLite.mmdb/raw/download/GeoLite2-Country.mmdb")

	v.SetDefault("github.push_enabled", false)
	v.SetDefault("github.token", "")
	v.SetDefault("github.repo_url", "")
	v.SetDefault("github.user", "Subscription Updater")
	v.SetDefault("github.email", "bot@example.com")
	v.SetDefault("github.branch", "main")
	v.SetDefault("github.filename", "subscription.txt")
	v.SetDefault("github.repo_dir", "/app/subscription_repo")
}

// bindAliases wires the flat environment names recognized by deployments of
// the original service. SUB_URL is kept as a fallback for SUB_URLS.
func bindAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"subscription.urls":               {"SUB_URLS", "SUB_URL"},
		"subscription.precheck_sites":     {"PRECHECK_SITES"},
		"subscription.low_internet_mode":  {"LOW_INTERNET_CONS"},
		"subscription.low_internet_limit": {"LOW_INTERNET_LIMIT"},
		"probe.xray_path":                 {"XRAY_PATH"},
		"probe.xray_assets_path":          {"XRAY_ASSETS_PATH"},
		"probe.latency_test_url":          {"LATENCY_TEST_URL"},
		"probe.batch_size":                {"BATCH_SIZE"},
		"probe.base_port":                 {"BASE_PORT"},
		"probe.test_timeout":              {"TEST_TIMEOUT"},
		"probe.max_delay_ms":              {"MAX_DELAY_MS"},
		"cache.interval_seconds":          {"CACHE_INTERVAL_SECONDS"},
		"cache.site_ttl_seconds":          {"SITE_CACHE_TTL_SECONDS"},
		"redis.host":                      {"REDIS_HOST"},
		"redis.port":                      {"REDIS_PORT"},
		"redis.password":                  {"REDIS_PASSWORD"},
		"redis.db":                        {"REDIS_DB"},
		"geoip.db_path":                   {"GEOIP_DB_PATH"},
		"github.push_enabled":             {"GITHUB_PUSH_ENABLED"},
		"github.token":                    {"GITHUB_TOKEN"},
		"github.repo_url":                 {"GITHUB_REPO_URL"},
		"github.user":                     {"GITHUB_USER"},
		"github.email":                    {"GITHUB_EMAIL"},
		"github.branch":                   {"GITHUB_BRANCH"},
		"github.filename":                 {"GITHUB_FILENAME"},
		"github.repo_dir":                 {"GITHUB_REPO_DIR"},
	}
	for key, envs := range aliases {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
}

// toStringList normalizes a list option. Strings are tried as a JSON array
// first, then split on commas; empty entries are dropped.
func toStringList(value any) []string {
	switch val := value.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return nil
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			var parsed []string
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return parsed
			}
		}
		var out []string
		for _, part := range strings.Split(trimmed, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}
