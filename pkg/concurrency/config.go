package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
)

// Config holds concurrency configuration parameters
type Config struct {
	MaxConcurrent    int
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Source           ConfigSource
	IsKubernetes     bool
	EffectiveCPUs    int
}

// LoadConfig loads concurrency configuration with priority: env vars > auto-detection.
//
//	DAEDALUS_MAX_CONCURRENT          fixed number of concurrent renders
//	DAEDALUS_CONCURRENCY_MULTIPLIER  renders per effective CPU
//	DAEDALUS_BREAKER_THRESHOLD       consecutive failures before a batch stops (0 disables)
//	DAEDALUS_BREAKER_COOLDOWN        duration before the breaker half-opens, e.g. 30s
func LoadConfig() *Config {
	config := &Config{
		IsKubernetes:     isKubernetes(),
		EffectiveCPUs:    runtime.GOMAXPROCS(0),
		BreakerThreshold: 10,
		BreakerCooldown:  30 * time.Second,
	}

	if n := getEnvInt("DAEDALUS_MAX_CONCURRENT", 0); n > 0 {
		config.MaxConcurrent = n
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt("DAEDALUS_CONCURRENCY_MULTIPLIER", 0); multiplier > 0 {
		config.MaxConcurrent = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxConcurrent = defaultMaxConcurrent(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	if n := getEnvInt("DAEDALUS_BREAKER_THRESHOLD", -1); n >= 0 {
		config.BreakerThreshold = n
	}
	if v := os.Getenv("DAEDALUS_BREAKER_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.BreakerCooldown = d
		}
	}
	return config
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// defaultMaxConcurrent keeps renders close to the CPU count; each one holds a JS runtime
func defaultMaxConcurrent(isK8s bool, cpus int) int {
	if isK8s {
		return cpus
	}
	return cpus * 2
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MaxConcurrent: %d, BreakerThreshold: %d, BreakerCooldown: %s, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxConcurrent,
		c.BreakerThreshold,
		c.BreakerCooldown,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}
