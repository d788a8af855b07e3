package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("expected default broker localhost:9092, got %v", cfg.Kafka.Brokers)
	}

	if cfg.Kafka.GroupID != "group" {
		t.Errorf("expected default group id group, got %s", cfg.Kafka.GroupID)
	}

	if cfg.Kafka.Client != ClientFranz {
		t.Errorf("expected default client franz, got %s", cfg.Kafka.Client)
	}

	if cfg.Kafka.ValidateOffset {
		t.Error("expected offset validation to be disabled by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
kafka:
  brokers: ["b1:9092", "b2:9092"]
  client: sarama
  dialTimeout: 5s
  validateOffset: true
observability:
  logFormat: json
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b2:9092" {
		t.Errorf("expected two brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Client != ClientSarama {
		t.Errorf("expected client sarama, got %s", cfg.Kafka.Client)
	}
	if cfg.Kafka.DialTimeout != 5*time.Second {
		t.Errorf("expected dial timeout 5s, got %s", cfg.Kafka.DialTimeout)
	}
	if !cfg.Kafka.ValidateOffset {
		t.Error("expected validateOffset true")
	}
	if cfg.Kafka.GroupID != "group" {
		t.Errorf("expected untouched group id to keep default, got %s", cfg.Kafka.GroupID)
	}
	if cfg.Observability.LogLevel != "warn" {
		t.Errorf("expected untouched log level to keep default, got %s", cfg.Observability.LogLevel)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if cfg.Kafka.ClientID != "kafka-consumer" {
		t.Errorf("expected defaults for empty document, got %+v", cfg.Kafka)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("kafka:\n  brokerz: [x:1]\n")); err == nil {
		t.Error("expected unknown key to be rejected")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"KAFKA_CONSUMER_BROKERS":         " a:1, ,b:2 ",
		"KAFKA_CONSUMER_GROUP_ID":        "ops",
		"KAFKA_CONSUMER_DIAL_TIMEOUT":    "250ms",
		"KAFKA_CONSUMER_VALIDATE_OFFSET": "true",
		"KAFKA_CONSUMER_S3_PATH_STYLE":   "1",
		"KAFKA_CONSUMER_S3_ENDPOINT":     "http://minio:9000",
	}
	cfg := Default()
	err := ApplyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if strings.Join(cfg.Kafka.Brokers, ",") != "a:1,b:2" {
		t.Errorf("expected brokers a:1,b:2, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.GroupID != "ops" {
		t.Errorf("expected group ops, got %s", cfg.Kafka.GroupID)
	}
	if cfg.Kafka.DialTimeout != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", cfg.Kafka.DialTimeout)
	}
	if !cfg.Kafka.ValidateOffset || !cfg.ObjectStore.UsePathStyle {
		t.Error("expected boolean overrides to apply")
	}
	if cfg.ObjectStore.Endpoint != "http://minio:9000" {
		t.Errorf("expected endpoint override, got %s", cfg.ObjectStore.Endpoint)
	}
}

func TestApplyEnvInvalidValue(t *testing.T) {
	err := ApplyEnv(Default(), func(k string) (string, bool) {
		if k == "KAFKA_CONSUMER_DIAL_TIMEOUT" {
			return "soon", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), "KAFKA_CONSUMER_DIAL_TIMEOUT") {
		t.Errorf("expected error naming the variable, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }, "at least one broker"},
		{"bad broker", func(c *Config) { c.Kafka.Brokers = []string{"localhost"} }, "not host:port"},
		{"empty group", func(c *Config) { c.Kafka.GroupID = "" }, "groupId"},
		{"unknown client", func(c *Config) { c.Kafka.Client = "rdkafka" }, "unknown client"},
		{"negative timeout", func(c *Config) { c.Kafka.DialTimeout = -time.Second }, "dialTimeout"},
		{"bad level", func(c *Config) { c.Observability.LogLevel = "trace" }, "logLevel"},
		{"bad format", func(c *Config) { c.Observability.LogFormat = "xml" }, "logFormat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consumer.yaml")
	if err := os.WriteFile(path, []byte("kafka:\n  groupId: from-file\n  client: kafka-go\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KAFKA_CONSUMER_CLIENT", "sarama")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Kafka.GroupID != "from-file" {
		t.Errorf("expected group from file, got %s", cfg.Kafka.GroupID)
	}
	if cfg.Kafka.Client != ClientSarama {
		t.Errorf("expected env to win over file, got %s", cfg.Kafka.Client)
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consumer.yaml")
	if err := os.WriteFile(path, []byte("kafka:\n  clientId: env-path\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Kafka.ClientID != "env-path" {
		t.Errorf("expected client id from env path, got %s", cfg.Kafka.ClientID)
	}
}
