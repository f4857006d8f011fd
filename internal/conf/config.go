// Package conf loads metrink settings from file, environment and defaults.
package conf

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/viper"

	"github.com/metrink/metrink-go/internal/errors"
)

// Settings is the complete runtime configuration.
type Settings struct {
	Log         LogSettings         `mapstructure:"log" yaml:"log"`
	Database    DatabaseSettings    `mapstructure:"database" yaml:"database"`
	Aggregation AggregationSettings `mapstructure:"aggregation" yaml:"aggregation"`
	Alerting    AlertingSettings    `mapstructure:"alerting" yaml:"alerting"`
	Retention   RetentionSettings   `mapstructure:"retention" yaml:"retention"`
	SMTP        SMTPSettings        `mapstructure:"smtp" yaml:"smtp"`
	HTTP        HTTPSettings        `mapstructure:"http" yaml:"http"`
	MQTT        MQTTSettings        `mapstructure:"mqtt" yaml:"mqtt"`
	Forecast    ForecastSettings    `mapstructure:"forecast" yaml:"forecast"`
	SelfStats   SelfStatsSettings   `mapstructure:"selfstats" yaml:"selfstats"`
	Sentry      SentrySettings      `mapstructure:"sentry" yaml:"sentry"`
}

type LogSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Path       string `mapstructure:"path" yaml:"path"` // empty logs to stderr
	MaxSizeMB  int    `mapstructure:"maxsizemb" yaml:"maxsizemb"`
	MaxBackups int    `mapstructure:"maxbackups" yaml:"maxbackups"`
	MaxAgeDays int    `mapstructure:"maxagedays" yaml:"maxagedays"`
	Timezone   string `mapstructure:"timezone" yaml:"timezone"`
}

type DatabaseSettings struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite or mysql
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	Debug  bool   `mapstructure:"debug" yaml:"debug"`
}

type AggregationSettings struct {
	Interval Duration `mapstructure:"interval" yaml:"interval"`
}

type AlertingSettings struct {
	SyncInterval         Duration `mapstructure:"syncinterval" yaml:"syncinterval"`
	BatchQuota           int      `mapstructure:"batchquota" yaml:"batchquota"`
	DispatchBuffer       int      `mapstructure:"dispatchbuffer" yaml:"dispatchbuffer"`
	DispatchRate         float64  `mapstructure:"dispatchrate" yaml:"dispatchrate"` // deliveries per second
	ActionCacheTTL       Duration `mapstructure:"actioncachettl" yaml:"actioncachettl"`
	HistoryRetentionDays int      `mapstructure:"historyretentiondays" yaml:"historyretentiondays"`
	GraphBaseURL         string   `mapstructure:"graphbaseurl" yaml:"graphbaseurl"`
}

type RetentionSettings struct {
	Days     int      `mapstructure:"days" yaml:"days"`
	Interval Duration `mapstructure:"interval" yaml:"interval"`
}

type SMTPSettings struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	From     string `mapstructure:"from" yaml:"from"`
	UseHTML  bool   `mapstructure:"usehtml" yaml:"usehtml"`
	// Encryption is passed through to the SMTP URL: auto, none, explicittls or implicittls.
	Encryption string   `mapstructure:"encryption" yaml:"encryption"`
	Timeout    Duration `mapstructure:"timeout" yaml:"timeout"`
}

type HTTPSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	// BodyLimit caps request bodies, e.g. "8M" or "512K".
	BodyLimit string `mapstructure:"bodylimit" yaml:"bodylimit"`
}

// DefaultBodyLimit is used when http.bodylimit is empty.
const DefaultBodyLimit = "8M"

// BodyLimitBytes returns the request body limit in bytes.
func (h HTTPSettings) BodyLimitBytes() (int64, error) {
	limit := h.BodyLimit
	if limit == "" {
		limit = DefaultBodyLimit
	}
	n, err := bytes.Parse(limit)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("body limit must be positive, got %q", limit)
	}
	return n, nil
}

type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"clientid" yaml:"clientid"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	QoS      byte   `mapstructure:"qos" yaml:"qos"`
}

type ForecastSettings struct {
	Period int `mapstructure:"period" yaml:"period"`
}

type SelfStatsSettings struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Interval Duration `mapstructure:"interval" yaml:"interval"`
	Device   string   `mapstructure:"device" yaml:"device"`
}

type SentrySettings struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// EnvPrefix is the prefix for environment overrides, e.g. METRINK_SMTP_HOST.
const EnvPrefix = "METRINK"

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.maxsizemb", 10)
	v.SetDefault("log.maxbackups", 3)
	v.SetDefault("log.maxagedays", 7)
	v.SetDefault("log.timezone", "UTC")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "metrink.db")

	v.SetDefault("aggregation.interval", "1m")

	v.SetDefault("alerting.syncinterval", "30s")
	v.SetDefault("alerting.batchquota", 100)
	v.SetDefault("alerting.dispatchbuffer", 1000)
	v.SetDefault("alerting.dispatchrate", 5.0)
	v.SetDefault("alerting.actioncachettl", "5m")
	v.SetDefault("alerting.historyretentiondays", 90)
	v.SetDefault("alerting.graphbaseurl", "https://www.metrink.com/graphing/")

	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.interval", "1h")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.encryption", "auto")
	v.SetDefault("smtp.usehtml", true)
	v.SetDefault("smtp.timeout", "10s")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.bodylimit", DefaultBodyLimit)

	v.SetDefault("mqtt.topic", "metrink/metrics/#")
	v.SetDefault("mqtt.clientid", "metrink")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("forecast.period", 10080)

	v.SetDefault("selfstats.interval", "1m")
	v.SetDefault("selfstats.device", "metrink")
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (when non-empty) into v and decodes the result.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("file", configFile).
				Build()
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks values that would otherwise fail at runtime.
func (s *Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, errors.Newf(format, args...).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build())
		}
	}

	check(s.Database.Driver == "sqlite" || s.Database.Driver == "mysql",
		"database.driver must be sqlite or mysql, got %q", s.Database.Driver)
	check(s.Database.DSN != "", "database.dsn must be set")
	check(s.Aggregation.Interval.Std() > 0, "aggregation.interval must be positive")
	check(s.Alerting.SyncInterval.Std() > 0, "alerting.syncinterval must be positive")
	check(s.Alerting.BatchQuota > 0, "alerting.batchquota must be positive")
	check(s.Alerting.DispatchBuffer > 0, "alerting.dispatchbuffer must be positive")
	check(s.Retention.Days >= 0, "retention.days must not be negative")
	check(s.Retention.Interval.Std() > 0, "retention.interval must be positive")
	check(s.Forecast.Period > 0, "forecast.period must be positive")
	if _, err := s.HTTP.BodyLimitBytes(); err != nil {
		check(false, "http.bodylimit %q is invalid: %v", s.HTTP.BodyLimit, err)
	}
	if s.MQTT.Enabled {
		check(s.MQTT.Broker != "", "mqtt.broker must be set when mqtt is enabled")
	}
	if _, err := time.LoadLocation(s.Log.Timezone); err != nil {
		check(false, "log.timezone %q is invalid", s.Log.Timezone)
	}
	return errors.Join(errs...)
}

// Location returns the configured log timezone, falling back to UTC.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Log.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var (
	current   *Settings
	currentMu sync.RWMutex
)

// SetSettings installs the process-wide settings.
func SetSettings(s *Settings) {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = s
}

// GetSettings returns the process-wide settings, or nil before loading.
func GetSettings() *Settings {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}
