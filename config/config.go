package config

import (
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// Address is the listen address, host:port.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type OriginConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the HTTP client timeout; the breaker call timeout normally
	// fires first.
	Timeout string `mapstructure:"timeout"`
}

type ProxyConfig struct {
	RoutePrefix    string `mapstructure:"route_prefix"`
	Namespace      string `mapstructure:"namespace"`
	CacheTTL       string `mapstructure:"cache_ttl"`
	CoalesceMisses bool   `mapstructure:"coalesce_misses"`
}

type CacheConfig struct {
	URL          string `mapstructure:"url"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

type BreakerConfig struct {
	CallTimeout              string `mapstructure:"call_timeout"`
	ErrorThresholdPercentage int    `mapstructure:"error_threshold_percentage"`
	ResetTimeout             string `mapstructure:"reset_timeout"`
	WindowSize               int    `mapstructure:"window_size"`
	VolumeThreshold          int    `mapstructure:"volume_threshold"`
	RollingWindow            string `mapstructure:"rolling_window"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Path     string `mapstructure:"path"`
}

type EventsConfig struct {
	// AMQPURL enables publishing breaker events when set.
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// File, when set, receives a copy of every log line.
	File string `mapstructure:"file"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Origin      OriginConfig      `mapstructure:"origin"`
	Proxy       ProxyConfig       `mapstructure:"proxy"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Events      EventsConfig      `mapstructure:"events"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// legacyEnv maps config keys to the plain variable names older deployments
// use. The first name is the canonical one.
var legacyEnv = map[string][]string{
	"origin.base_url": {"ORIGIN_BASE_URL", "WP_API_BASE"},
	"cache.url":       {"CACHE_URL", "REDIS_URL"},
	"server.port":     {"SERVER_PORT", "PORT"},
}

// Load reads .env (if present), config.yaml from ./config or the working
// directory (if present) and the environment, in increasing priority.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.String("error", err.Error()))
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.environment", EnvDev)

	v.SetDefault("origin.base_url", "")
	v.SetDefault("origin.timeout", "10s")

	v.SetDefault("proxy.route_prefix", "/wp-json")
	v.SetDefault("proxy.namespace", "wp")
	v.SetDefault("proxy.cache_ttl", "300s")
	v.SetDefault("proxy.coalesce_misses", true)

	v.SetDefault("cache.url", "redis://localhost:6379/0")
	v.SetDefault("cache.write_timeout", "1s")

	v.SetDefault("breaker.call_timeout", "3000ms")
	v.SetDefault("breaker.error_threshold_percentage", 50)
	v.SetDefault("breaker.reset_timeout", "10000ms")
	v.SetDefault("breaker.window_size", 10)
	v.SetDefault("breaker.volume_threshold", 5)
	v.SetDefault("breaker.rolling_window", "10s")

	v.SetDefault("health_check.interval", "10s")
	v.SetDefault("health_check.path", "/")

	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "fastproxy_events")
	v.SetDefault("events.buffer_size", 256)

	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.file", "")
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Host, is.Host),
					validation.Field(&sc.Port,
						validation.Required,
						validation.Min(1),
						validation.Max(65535),
					),
				)
			}),
		),
		validation.Field(&c.Origin,
			validation.Required,
			validation.By(func(value interface{}) error {
				oc, ok := value.(OriginConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an OriginConfig")
				}
				return validation.ValidateStruct(&oc,
					validation.Field(&oc.BaseURL,
						validation.Required,
						validation.By(validateServerURL),
					),
					validation.Field(&oc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Proxy,
			validation.Required,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProxyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProxyConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.RoutePrefix,
						validation.Required,
						validation.By(validateRoutePrefix),
					),
					validation.Field(&pc.Namespace, validation.Required),
					validation.Field(&pc.CacheTTL,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
				)
			}),
		),
		validation.Field(&c.Cache,
			validation.Required,
			validation.By(func(value interface{}) error {
				cc, ok := value.(CacheConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CacheConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.URL,
						validation.Required,
						validation.By(validateCacheURL),
					),
					validation.Field(&cc.WriteTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.CallTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&bc.ErrorThresholdPercentage,
						validation.Required,
						validation.Min(1),
						validation.Max(100),
					),
					validation.Field(&bc.ResetTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&bc.WindowSize,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&bc.VolumeThreshold, validation.Min(0)),
					validation.Field(&bc.RollingWindow, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&hc.Path, validation.Required),
				)
			}),
		),
		validation.Field(&c.Events,
			validation.By(func(value interface{}) error {
				ec, ok := value.(EventsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an EventsConfig")
				}
				return validation.ValidateStruct(&ec,
					validation.Field(&ec.AMQPURL, validation.By(validateAMQPURL)),
					validation.Field(&ec.Exchange,
						validation.When(ec.AMQPURL != "", validation.Required),
					),
					validation.Field(&ec.BufferSize,
						validation.When(ec.AMQPURL != "", validation.Required, validation.Min(1)),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
	)
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if durationStr == "" {
		return nil
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

func validatePositiveDuration(value interface{}) error {
	if err := validateDuration(value); err != nil {
		return err
	}
	if d, _ := time.ParseDuration(value.(string)); d == 0 {
		return validation.NewError("validation_zero_duration", "must be greater than zero")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "server URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validateCacheURL(value interface{}) error {
	cacheURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	parsedURL, err := url.Parse(cacheURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	switch parsedURL.Scheme {
	case "redis", "rediss":
		if parsedURL.Host == "" {
			return validation.NewError("validation_missing_host", "URL must have a host")
		}
	case "sqlite", "memory":
	default:
		return validation.NewError("validation_invalid_scheme", "URL must use redis, rediss, sqlite or memory scheme")
	}

	return nil
}

func validateAMQPURL(value interface{}) error {
	amqpURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if amqpURL == "" {
		return nil
	}

	parsedURL, err := url.Parse(amqpURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		return validation.NewError("validation_invalid_scheme", "URL must use amqp or amqps scheme")
	}

	return nil
}

func validateRoutePrefix(value interface{}) error {
	prefix, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(prefix, "/") {
		return validation.NewError("validation_invalid_prefix", "must start with /")
	}
	if len(prefix) > 1 && strings.HasSuffix(prefix, "/") {
		return validation.NewError("validation_invalid_prefix", "must not end with /")
	}

	return nil
}
