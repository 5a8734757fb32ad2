// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads anemostat settings from defaults, an optional YAML
// file, ANEMOSTAT_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/anemostat/pkg/telemetry"
	"github.com/Thermoquad/anemostat/pkg/windbus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read
const EnvPrefix = "ANEMOSTAT"

// PasswordEnv holds the WebSocket bridge password
const PasswordEnv = EnvPrefix + "_PASSWORD"

type BusConfig struct {
	Port        string `mapstructure:"port"`
	Baud        int    `mapstructure:"baud"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	NoSSLVerify bool   `mapstructure:"noSSLVerify"`
}

type SensorConfig struct {
	SpeedAddress     uint8 `mapstructure:"speedAddress"`
	DirectionAddress uint8 `mapstructure:"directionAddress"`
}

type TimingConfig struct {
	ByteWindow     time.Duration `mapstructure:"byteWindow"`
	ResendInterval time.Duration `mapstructure:"resendInterval"`
	Deadline       time.Duration `mapstructure:"deadline"`
}

// Timing converts the section to bus timing
func (t TimingConfig) Timing() windbus.Timing {
	return windbus.Timing{
		ByteWindow:     t.ByteWindow,
		ResendInterval: t.ResendInterval,
		Deadline:       t.Deadline,
	}
}

type PollConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	StatsInterval time.Duration `mapstructure:"statsInterval"`
}

type DisplayConfig struct {
	Enable           bool  `mapstructure:"enable"`
	Bus              int   `mapstructure:"bus"`
	SpeedAddress     uint8 `mapstructure:"speedAddress"`
	DirectionAddress uint8 `mapstructure:"directionAddress"`
	Brightness       int   `mapstructure:"brightness"`
}

type MQTTConfig struct {
	URL           string        `mapstructure:"url"`
	ClientID      string        `mapstructure:"clientID"`
	QoS           uint8         `mapstructure:"qos"`
	Retain        bool          `mapstructure:"retain"`
	Timeout       time.Duration `mapstructure:"timeout"`
	TLSSkipVerify bool          `mapstructure:"tlsSkipVerify"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type TelemetryConfig struct {
	Sink        string        `mapstructure:"sink"`
	Encoding    string        `mapstructure:"encoding"`
	MinInterval time.Duration `mapstructure:"minInterval"`
	MQTT        MQTTConfig    `mapstructure:"mqtt"`
	Redis       RedisConfig   `mapstructure:"redis"`
}

type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

type Config struct {
	Bus       BusConfig         `mapstructure:"bus"`
	Sensor    SensorConfig      `mapstructure:"sensor"`
	Timing    TimingConfig      `mapstructure:"timing"`
	Poll      PollConfig        `mapstructure:"poll"`
	Display   DisplayConfig     `mapstructure:"display"`
	Telemetry TelemetryConfig   `mapstructure:"telemetry"`
	Ambient   telemetry.Ambient `mapstructure:"ambient"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	HTTP      HTTPConfig        `mapstructure:"http"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`

	settings map[string]any
}

// flagKeys maps configuration keys to the persistent flags overriding them
var flagKeys = map[string]string{
	"bus.port":        "port",
	"bus.baud":        "baud",
	"bus.url":         "url",
	"bus.username":    "username",
	"bus.noSSLVerify": "no-ssl-verify",
	"logging.level":   "log-level",
	"logging.format":  "log-format",
}

// Load reads the configuration. path may be empty, in which case
// anemostat.yaml is looked up in the working directory and
// ~/.config/anemostat; a missing file is not an error. Flags that were set
// on the command line override every other source.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/anemostat")
		v.SetConfigName("anemostat")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("bus.password", PasswordEnv); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.settings = v.AllSettings()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.port", "")
	v.SetDefault("bus.baud", 9600)
	v.SetDefault("bus.url", "")
	v.SetDefault("bus.username", "admin")
	v.SetDefault("bus.password", "")
	v.SetDefault("bus.noSSLVerify", false)

	v.SetDefault("sensor.speedAddress", 0x01)
	v.SetDefault("sensor.directionAddress", 0x02)

	v.SetDefault("timing.byteWindow", windbus.DefaultByteWindow.String())
	v.SetDefault("timing.resendInterval", windbus.DefaultResendInterval.String())
	v.SetDefault("timing.deadline", windbus.DefaultDeadline.String())

	v.SetDefault("poll.interval", "2s")
	v.SetDefault("poll.statsInterval", "10s")

	v.SetDefault("display.enable", false)
	v.SetDefault("display.bus", 1)
	v.SetDefault("display.speedAddress", 0x71)
	v.SetDefault("display.directionAddress", 0x72)
	v.SetDefault("display.brightness", 100)

	v.SetDefault("telemetry.sink", "none")
	v.SetDefault("telemetry.encoding", string(telemetry.EncodingCBOR))
	v.SetDefault("telemetry.minInterval", "1s")
	v.SetDefault("telemetry.mqtt.url", "mqtt://localhost:1883/anemostat")
	v.SetDefault("telemetry.mqtt.clientID", "")
	v.SetDefault("telemetry.mqtt.qos", 0)
	v.SetDefault("telemetry.mqtt.retain", true)
	v.SetDefault("telemetry.mqtt.timeout", "5s")
	v.SetDefault("telemetry.mqtt.tlsSkipVerify", false)
	v.SetDefault("telemetry.redis.addr", "localhost:6379")
	v.SetDefault("telemetry.redis.password", "")
	v.SetDefault("telemetry.redis.db", 0)
	v.SetDefault("telemetry.redis.channel", "anemostat")

	v.SetDefault("ambient.pressure", 1013.25)
	v.SetDefault("ambient.humidity", 50)
	v.SetDefault("ambient.temperature", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("http.addr", "")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks values viper cannot check by type alone
func (c *Config) Validate() error {
	if c.Sensor.SpeedAddress == windbus.AddressBroadcast || c.Sensor.DirectionAddress == windbus.AddressBroadcast {
		return fmt.Errorf("sensor addresses must not be the broadcast address 0x%02X", windbus.AddressBroadcast)
	}
	switch c.Telemetry.Sink {
	case "none", "log", "mqtt", "redis":
	default:
		return fmt.Errorf("unknown telemetry sink %q (use none, log, mqtt or redis)", c.Telemetry.Sink)
	}
	if _, err := telemetry.ParseEncoding(c.Telemetry.Encoding); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q (use console or json)", c.Logging.Format)
	}
	if c.Display.Brightness < 0 || c.Display.Brightness > 100 {
		return fmt.Errorf("display brightness %d outside 0-100", c.Display.Brightness)
	}
	return nil
}

// secretKeys are redacted by YAML
var secretKeys = []string{"bus.password", "telemetry.redis.password"}

// YAML renders the effective settings with secrets redacted
func (c *Config) YAML() ([]byte, error) {
	settings := c.settings
	if settings == nil {
		settings = map[string]any{}
	}
	for _, key := range secretKeys {
		redact(settings, strings.Split(key, "."))
	}
	return yaml.Marshal(settings)
}

func redact(m map[string]any, path []string) {
	// viper lowercases every key
	key := strings.ToLower(path[0])
	if len(path) == 1 {
		if s, ok := m[key].(string); ok && s != "" {
			m[key] = "<redacted>"
		}
		return
	}
	if sub, ok := m[key].(map[string]any); ok {
		redact(sub, path[1:])
	}
}
