// Package config loads pipeline configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	// Street correction
	StreetMatchThreshold int `yaml:"street_match_threshold"`

	// Anomaly detection
	MinBillsPerCustomer int     `yaml:"min_bills_per_customer"`
	LowVolumeClusters   int     `yaml:"low_volume_clusters"`
	IsolationTrees      int     `yaml:"isolation_trees"`
	AnomalyQuantile     float64 `yaml:"anomaly_quantile"`

	// Execution
	Workers int `yaml:"workers"`

	// Artifact server
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	Debug bool `yaml:"debug"`
}

// Default returns the production defaults.
func Default() *Config {
	return &Config{
		StreetMatchThreshold: 90,
		MinBillsPerCustomer:  3,
		LowVolumeClusters:    3,
		IsolationTrees:       100,
		AnomalyQuantile:      0.012,
		Workers:              0, // 0 = number of CPUs
		ListenAddr:           ":8000",
		DataDir:              "data/output",
	}
}

// Load builds the configuration: defaults, then the YAML file if a path is
// given, then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvironment()
	return cfg, nil
}

func (c *Config) applyEnvironment() {
	c.StreetMatchThreshold = GetEnvInt("BILLING_STREET_MATCH_THRESHOLD", c.StreetMatchThreshold)
	c.MinBillsPerCustomer = GetEnvInt("BILLING_MIN_BILLS_PER_CUSTOMER", c.MinBillsPerCustomer)
	c.LowVolumeClusters = GetEnvInt("BILLING_LOW_VOLUME_CLUSTERS", c.LowVolumeClusters)
	c.IsolationTrees = GetEnvInt("BILLING_ISOLATION_TREES", c.IsolationTrees)
	c.AnomalyQuantile = GetEnvFloat("BILLING_ANOMALY_QUANTILE", c.AnomalyQuantile)
	c.Workers = GetEnvInt("BILLING_WORKERS", c.Workers)
	c.ListenAddr = GetEnv("BILLING_LISTEN_ADDR", c.ListenAddr)
	c.DataDir = GetEnv("BILLING_DATA_DIR", c.DataDir)
	c.Debug = GetEnvBool("BILLING_DEBUG", c.Debug)
}

// GetEnv gets environment variable with default
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets integer environment variable with default
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvFloat gets float environment variable with default
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvBool gets boolean environment variable with default
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}
