// Package config provides configuration loading and validation for
// kafka-consumer. Supports YAML files with environment variable overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable Load reads the config file
// path from.
const EnvConfigPath = "KAFKA_CONSUMER_CONFIG"

// Client library names accepted in KafkaConfig.Client.
const (
	ClientFranz   = "franz"
	ClientSarama  = "sarama"
	ClientKafkaGo = "kafka-go"
)

// Config holds all configuration shared by every invocation. The record
// location and destination are per-invocation and come from flags only.
type Config struct {
	Kafka         KafkaConfig         `yaml:"kafka"`
	ObjectStore   ObjectStoreConfig   `yaml:"objectStore"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers" env:"KAFKA_CONSUMER_BROKERS"`
	GroupID        string        `yaml:"groupId" env:"KAFKA_CONSUMER_GROUP_ID"`
	ClientID       string        `yaml:"clientId" env:"KAFKA_CONSUMER_CLIENT_ID"`
	Client         string        `yaml:"client" env:"KAFKA_CONSUMER_CLIENT"`
	DialTimeout    time.Duration `yaml:"dialTimeout" env:"KAFKA_CONSUMER_DIAL_TIMEOUT"`
	ValidateOffset bool          `yaml:"validateOffset" env:"KAFKA_CONSUMER_VALIDATE_OFFSET"`
}

type ObjectStoreConfig struct {
	Endpoint     string `yaml:"endpoint" env:"KAFKA_CONSUMER_S3_ENDPOINT"`
	Region       string `yaml:"region" env:"KAFKA_CONSUMER_S3_REGION"`
	AccessKey    string `yaml:"accessKey" env:"KAFKA_CONSUMER_S3_ACCESS_KEY"`
	SecretKey    string `yaml:"secretKey" env:"KAFKA_CONSUMER_S3_SECRET_KEY"`
	UsePathStyle bool   `yaml:"usePathStyle" env:"KAFKA_CONSUMER_S3_PATH_STYLE"`
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"logLevel" env:"KAFKA_CONSUMER_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"KAFKA_CONSUMER_LOG_FORMAT"`
	MetricsFile string `yaml:"metricsFile" env:"KAFKA_CONSUMER_METRICS_FILE"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Kafka: KafkaConfig{
			Brokers:  []string{"localhost:9092"},
			GroupID:  "group",
			ClientID: "kafka-consumer",
			Client:   ClientFranz,
		},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "warn",
			LogFormat: "text",
		},
	}
}

// Load builds a Config from defaults, the file named by KAFKA_CONSUMER_CONFIG
// if set, and environment overrides, then validates it.
func Load() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadFromPath(path)
	}
	cfg := Default()
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath builds a Config from defaults, the YAML file at path, and
// environment overrides, then validates it.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields whose env tag names a set variable.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	return applyEnv(reflect.ValueOf(cfg).Elem(), lookup)
}

func applyEnv(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyEnv(field, lookup); err != nil {
				return err
			}
			continue
		}

		key := sf.Tag.Get("env")
		if key == "" {
			continue
		}
		raw, ok := lookup(key)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("config: %s=%q: %w", key, raw, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(field reflect.Value, raw string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(raw)
	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		field.Set(reflect.ValueOf(SplitList(raw)))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers: at least one broker is required"))
	}
	for _, b := range c.Kafka.Brokers {
		if _, port, err := net.SplitHostPort(b); err != nil || port == "" {
			errs = append(errs, fmt.Errorf("kafka.brokers: %q is not host:port", b))
		}
	}
	if c.Kafka.GroupID == "" {
		errs = append(errs, errors.New("kafka.groupId: must not be empty"))
	}
	switch c.Kafka.Client {
	case ClientFranz, ClientSarama, ClientKafkaGo:
	default:
		errs = append(errs, fmt.Errorf("kafka.client: unknown client %q", c.Kafka.Client))
	}
	if c.Kafka.DialTimeout < 0 {
		errs = append(errs, errors.New("kafka.dialTimeout: must not be negative"))
	}
	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("observability.logLevel: unknown level %q", c.Observability.LogLevel))
	}
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("observability.logFormat: unknown format %q", c.Observability.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
