package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. COLLECTFLOW_DATABASE_URL.
const EnvPrefix = "COLLECTFLOW"

// Config holds the configuration for the service and CLI.
type Config struct {
	Database struct {
		URL      string `mapstructure:"url"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"database"`
	Server struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
		OIDC      struct {
			Issuer    string `mapstructure:"issuer"`
			ClientID  string `mapstructure:"client_id"`
			OrgClaim  string `mapstructure:"org_claim"`
			RoleClaim string `mapstructure:"role_claim"`
		} `mapstructure:"oidc"`
	} `mapstructure:"auth"`
	Generator struct {
		URL     string        `mapstructure:"url"`
		APIKey  string        `mapstructure:"api_key"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"generator"`
	Workflow struct {
		GeneratorTimeout time.Duration `mapstructure:"generator_timeout"`
		LockCases        bool          `mapstructure:"lock_cases"`
		Holidays         []string      `mapstructure:"holidays"`
		CatalogFile      string        `mapstructure:"catalog_file"`
	} `mapstructure:"workflow"`
	Scheduler struct {
		Enabled     bool   `mapstructure:"enabled"`
		Cron        string `mapstructure:"cron"`
		Concurrency int    `mapstructure:"concurrency"`
		BatchSize   int    `mapstructure:"batch_size"`
	} `mapstructure:"scheduler"`
	MCP struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"mcp"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.oidc.issuer", "")
	v.SetDefault("auth.oidc.client_id", "")
	v.SetDefault("auth.oidc.org_claim", "org_id")
	v.SetDefault("auth.oidc.role_claim", "role")
	v.SetDefault("generator.url", "")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.timeout", 60*time.Second)
	v.SetDefault("workflow.generator_timeout", 45*time.Second)
	v.SetDefault("workflow.lock_cases", true)
	v.SetDefault("workflow.holidays", []string{})
	v.SetDefault("workflow.catalog_file", "")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron", "*/5 * * * *")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from path, or from collectflow.yaml in . or
// ./config when path is empty, then applies COLLECTFLOW_* environment
// overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("collectflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Workflow.Holidays = splitList(cfg.Workflow.Holidays)
	cfg.Generator.URL = strings.TrimRight(strings.TrimSpace(cfg.Generator.URL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("config: database.max_conns must be positive")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("config: scheduler.concurrency must be positive")
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("config: scheduler.batch_size must be positive")
	}
	if (c.Auth.OIDC.Issuer == "") != (c.Auth.OIDC.ClientID == "") {
		return fmt.Errorf("config: auth.oidc.issuer and auth.oidc.client_id must be set together")
	}
	if c.Workflow.GeneratorTimeout < 0 {
		return fmt.Errorf("config: workflow.generator_timeout must not be negative")
	}
	return nil
}

// splitList accepts both YAML lists and a comma separated env value.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
