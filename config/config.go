package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the full process configuration.
type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	SEP10     SEP10Settings     `mapstructure:"sep10"`
	Horizon   HorizonSettings   `mapstructure:"horizon"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Scheduler SchedulerSettings `mapstructure:"scheduler"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SEP10Settings configures web authentication
type SEP10Settings struct {
	WebAuthDomain        string        `mapstructure:"web_auth_domain"`
	HomeDomains          []string      `mapstructure:"home_domains"`
	SigningSeed          string        `mapstructure:"signing_seed"`
	NetworkPassphrase    string        `mapstructure:"network_passphrase"`
	ChallengeTimeout     time.Duration `mapstructure:"challenge_timeout"`
	JWTSecret            string        `mapstructure:"jwt_secret"`
	JWTIssuer            string        `mapstructure:"jwt_issuer"`
	TokenTTL             time.Duration `mapstructure:"token_ttl"`
	ClientDomainRequired bool          `mapstructure:"client_domain_required"`
	ClientDomainsAllowed []string      `mapstructure:"client_domains_allowed"`
	ClientDomainsDenied  []string      `mapstructure:"client_domains_denied"`
	TomlTimeout          time.Duration `mapstructure:"toml_timeout"`
}

type HorizonSettings struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PostgresSettings configures the transaction store. An empty DSN selects
// the in-memory store.
type PostgresSettings struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// RedisSettings configures stream cursors and event publishing. An empty URL
// keeps cursors in memory and disables events.
type RedisSettings struct {
	URL          string `mapstructure:"url"`
	CursorPrefix string `mapstructure:"cursor_prefix"`
}

type SchedulerSettings struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	EventsTopic string        `mapstructure:"events_topic"`
}

// Load reads configuration from ANCHOR_* environment variables and, when
// path is not empty, a config file.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ANCHOR")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"sep10.web_auth_domain",
		"sep10.home_domains",
		"sep10.signing_seed",
		"sep10.network_passphrase",
		"sep10.challenge_timeout",
		"sep10.jwt_secret",
		"sep10.jwt_issuer",
		"sep10.token_ttl",
		"sep10.client_domain_required",
		"sep10.client_domains_allowed",
		"sep10.client_domains_denied",
		"sep10.toml_timeout",
		"horizon.url",
		"horizon.timeout",
		"postgres.dsn",
		"postgres.max_conns",
		"postgres.migrate",
		"redis.url",
		"redis.cursor_prefix",
		"scheduler.interval",
		"scheduler.concurrency",
		"scheduler.events_topic",
	}); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings every command needs. serve additionally
// needs the SEP-10 secrets.
func (c *AppConfig) Validate(serve bool) error {
	var errs []error
	if c.SEP10.NetworkPassphrase == "" {
		errs = append(errs, errors.New("sep10.network_passphrase is required"))
	}
	if c.Horizon.URL == "" {
		errs = append(errs, errors.New("horizon.url is required"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	if serve {
		if c.SEP10.SigningSeed == "" {
			errs = append(errs, errors.New("sep10.signing_seed is required"))
		}
		if c.SEP10.JWTSecret == "" {
			errs = append(errs, errors.New("sep10.jwt_secret is required"))
		}
		if c.SEP10.WebAuthDomain == "" {
			errs = append(errs, errors.New("sep10.web_auth_domain is required"))
		}
		if len(c.SEP10.HomeDomains) == 0 {
			errs = append(errs, errors.New("sep10.home_domains is required"))
		}
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "anchor")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8000)

	v.SetDefault("sep10.network_passphrase", "Test SDF Network ; September 2015")
	v.SetDefault("sep10.challenge_timeout", 900*time.Second)
	v.SetDefault("sep10.token_ttl", 24*time.Hour)
	v.SetDefault("sep10.toml_timeout", 11*time.Second)

	v.SetDefault("horizon.url", "https://horizon-testnet.stellar.org")
	v.SetDefault("horizon.timeout", 30*time.Second)

	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.migrate", false)

	v.SetDefault("redis.cursor_prefix", "anchor:cursor:")

	v.SetDefault("scheduler.interval", 10*time.Second)
	v.SetDefault("scheduler.concurrency", 16)
	v.SetDefault("scheduler.events_topic", "sep24.transaction.status")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
