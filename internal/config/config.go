// Package config provides configuration loading and validation for the
// molrank API server and CLI. It uses koanf to merge environment variables
// with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/onnwee/molrank/internal/diffusion"
	"github.com/onnwee/molrank/internal/engine"
	"github.com/onnwee/molrank/internal/tracing"
)

// Config holds all configuration values.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage. Both are optional; in-memory backends are used when unset.
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// Engine
	CalibrationPath    string `koanf:"calibration_path"`
	GraphMaxCandidates     int    `koanf:"graph_max_candidates"`
	OversizePolicy         string `koanf:"oversize_policy"`
	DiffusionMaxIterations int    `koanf:"diffusion_max_iterations"`

	// Snapshot cache
	SnapshotTTLSeconds     int      `koanf:"snapshot_ttl_seconds"`
	SnapshotRefreshSeconds int      `koanf:"snapshot_refresh_seconds"`
	SnapshotDatasets       []string `koanf:"snapshot_datasets"`

	// HTTP surface
	RateLimitPerMinute int      `koanf:"rate_limit_per_minute"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
	ProfilingEnabled   bool     `koanf:"profiling_enabled"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`

	// R2 (Cloudflare Object Storage) for artifact export
	R2BucketName      string `koanf:"r2_bucket_name"`
	R2AccessKeyID     string `koanf:"r2_access_key_id"`
	R2SecretAccessKey string `koanf:"r2_secret_access_key"`
	R2Endpoint        string `koanf:"r2_endpoint"`
	R2MaxUploadSizeMB int    `koanf:"r2_max_upload_size_mb"`
}

// Configuration validation errors.
var (
	ErrInvalidPort              = errors.New("PORT must be a valid integer between 1 and 65535")
	ErrInvalidNumber            = errors.New("value must be a valid number")
	ErrInvalidOversizePolicy    = errors.New("OVERSIZE_POLICY must be reject, cap, or subsample")
	ErrInvalidGraphMax          = errors.New("GRAPH_MAX_CANDIDATES must be > 0")
	ErrInvalidDiffusionMax      = fmt.Errorf("DIFFUSION_MAX_ITERATIONS must be between 1 and %d", diffusion.MaxIterations)
	ErrInvalidSnapshotTTL       = errors.New("SNAPSHOT_TTL_SECONDS must be > 0")
	ErrInvalidSnapshotRefresh   = errors.New("SNAPSHOT_REFRESH_SECONDS must be >= 0")
	ErrInvalidRateLimit         = errors.New("RATE_LIMIT_PER_MINUTE must be >= 0")
	ErrInvalidTracingSampleRate = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidTracingExporter   = errors.New("TRACING_EXPORTER must be otlp-grpc or otlp-http")
	ErrMissingR2BucketName      = errors.New("R2_BUCKET_NAME is required")
	ErrMissingR2AccessKeyID     = errors.New("R2_ACCESS_KEY_ID is required")
	ErrMissingR2SecretAccessKey = errors.New("R2_SECRET_ACCESS_KEY is required")
	ErrMissingR2Endpoint        = errors.New("R2_ENDPOINT is required")
)

// Default values for non-secret configuration.
const (
	DefaultPort                   = 8080
	DefaultEnv                    = "development"
	DefaultGraphMaxCandidates     = engine.DefaultMaxGraphCandidates
	DefaultOversizePolicy         = string(engine.PolicyCap)
	DefaultDiffusionMaxIterations = engine.DefaultMaxDiffusionIterations
	DefaultSnapshotTTLSeconds     = 300
	DefaultSnapshotRefreshSeconds = 60
	DefaultRateLimitPerMinute     = 120
	DefaultTracingExporter        = tracing.ExporterOTLPHTTP
	DefaultTracingSampleRate      = 0.1
	DefaultR2MaxUploadSizeMB      = 64
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	intVal := func(envKeys []string, key string, def int) int {
		v, err := getEnvIntOrDefaultMulti(envKeys, k, key, def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}

	port := intVal([]string{"MOLRANK_PORT", "PORT"}, "port", DefaultPort)
	graphMax := intVal([]string{"GRAPH_MAX_CANDIDATES"}, "graph_max_candidates", DefaultGraphMaxCandidates)
	diffusionMax := intVal([]string{"DIFFUSION_MAX_ITERATIONS"}, "diffusion_max_iterations", DefaultDiffusionMaxIterations)
	ttl := intVal([]string{"SNAPSHOT_TTL_SECONDS"}, "snapshot_ttl_seconds", DefaultSnapshotTTLSeconds)
	refresh := intVal([]string{"SNAPSHOT_REFRESH_SECONDS"}, "snapshot_refresh_seconds", DefaultSnapshotRefreshSeconds)
	rateLimit := intVal([]string{"RATE_LIMIT_PER_MINUTE"}, "rate_limit_per_minute", DefaultRateLimitPerMinute)
	maxUpload := intVal([]string{"R2_MAX_UPLOAD_SIZE_MB"}, "r2_max_upload_size_mb", DefaultR2MaxUploadSizeMB)

	sampleRate, err := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefaultMulti([]string{"MOLRANK_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:            getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:               getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		CalibrationPath:        getEnvOrKoanf("CALIBRATION_PATH", k, "calibration_path"),
		GraphMaxCandidates:     graphMax,
		OversizePolicy:         getEnvOrDefault("OVERSIZE_POLICY", k.String("oversize_policy"), DefaultOversizePolicy),
		DiffusionMaxIterations: diffusionMax,
		SnapshotTTLSeconds:     ttl,
		SnapshotRefreshSeconds: refresh,
		SnapshotDatasets:       getEnvListOrKoanf("SNAPSHOT_DATASETS", k, "snapshot_datasets"),
		RateLimitPerMinute:     rateLimit,
		CORSAllowedOrigins:     getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		ProfilingEnabled:       getEnvBoolOrKoanf("PROFILING_ENABLED", k, "profiling_enabled"),
		TracingEnabled:         getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		TracingExporter:        getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		OTLPEndpoint:           getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		TracingSampleRate:      sampleRate,
		TracingInsecure:        getEnvBoolOrKoanf("TRACING_INSECURE", k, "tracing_insecure"),
		R2BucketName:           getEnvOrKoanf("R2_BUCKET_NAME", k, "r2_bucket_name"),
		R2AccessKeyID:          getEnvOrKoanf("R2_ACCESS_KEY_ID", k, "r2_access_key_id"),
		R2SecretAccessKey:      getEnvOrKoanf("R2_SECRET_ACCESS_KEY", k, "r2_secret_access_key"),
		R2Endpoint:             getEnvOrKoanf("R2_ENDPOINT", k, "r2_endpoint"),
		R2MaxUploadSizeMB:      maxUpload,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	return getEnvOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefaultMulti returns the first set environment variable as an
// int, otherwise the koanf value when the key exists, or the default.
func getEnvIntOrDefaultMulti(envKeys []string, k *koanf.Koanf, koanfKey string, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return defaultVal, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidNumber)
			}
			return i, nil
		}
	}
	if k.Exists(koanfKey) {
		return k.Int(koanfKey), nil
	}
	return defaultVal, nil
}

func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return defaultVal, fmt.Errorf("%s must be a valid float: %w", envKey, ErrInvalidNumber)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvBoolOrKoanf accepts true/1/yes/on and false/0/no/off from the
// environment. Unrecognized values leave the file value in place.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	v := k.Bool(koanfKey)
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envKey))) {
	case "true", "1", "yes", "on":
		v = true
	case "false", "0", "no", "off":
		v = false
	}
	return v
}

// getEnvListOrKoanf reads a comma-separated environment variable, falling
// back to a YAML list.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return k.Strings(koanfKey)
}

// Validate checks value ranges and the optional R2 group.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.GraphMaxCandidates <= 0 {
		errs = append(errs, ErrInvalidGraphMax)
	}
	if c.DiffusionMaxIterations < 1 || c.DiffusionMaxIterations > diffusion.MaxIterations {
		errs = append(errs, ErrInvalidDiffusionMax)
	}
	if _, err := engine.ParseOversizePolicy(c.OversizePolicy); err != nil {
		errs = append(errs, ErrInvalidOversizePolicy)
	}
	if c.SnapshotTTLSeconds <= 0 {
		errs = append(errs, ErrInvalidSnapshotTTL)
	}
	if c.SnapshotRefreshSeconds < 0 {
		errs = append(errs, ErrInvalidSnapshotRefresh)
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidTracingSampleRate)
	}
	if c.TracingEnabled && c.TracingExporter != tracing.ExporterOTLPGRPC && c.TracingExporter != tracing.ExporterOTLPHTTP {
		errs = append(errs, ErrInvalidTracingExporter)
	}

	// R2 configuration is optional. Only validate fields if any R2 value is set.
	if c.R2Enabled() {
		if c.R2BucketName == "" {
			errs = append(errs, ErrMissingR2BucketName)
		}
		if c.R2AccessKeyID == "" {
			errs = append(errs, ErrMissingR2AccessKeyID)
		}
		if c.R2SecretAccessKey == "" {
			errs = append(errs, ErrMissingR2SecretAccessKey)
		}
		if c.R2Endpoint == "" {
			errs = append(errs, ErrMissingR2Endpoint)
		}
	}

	return errs
}

// R2Enabled reports whether any R2 setting is present.
func (c *Config) R2Enabled() bool {
	return c.R2BucketName != "" || c.R2AccessKeyID != "" || c.R2SecretAccessKey != "" || c.R2Endpoint != ""
}

// SnapshotTTL returns the snapshot cache TTL.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

// SnapshotRefreshInterval returns the refresh period. Zero disables the
// background job.
func (c *Config) SnapshotRefreshInterval() time.Duration {
	return time.Duration(c.SnapshotRefreshSeconds) * time.Second
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                     strconv.Itoa(c.Port),
		"env":                      c.Env,
		"database_url":             maskURLPassword(c.DatabaseURL),
		"redis_url":                maskURLPassword(c.RedisURL),
		"calibration_path":         c.CalibrationPath,
		"graph_max_candidates":     strconv.Itoa(c.GraphMaxCandidates),
		"oversize_policy":          c.OversizePolicy,
		"diffusion_max_iterations": strconv.Itoa(c.DiffusionMaxIterations),
		"snapshot_ttl_seconds":     strconv.Itoa(c.SnapshotTTLSeconds),
		"snapshot_refresh_seconds": strconv.Itoa(c.SnapshotRefreshSeconds),
		"snapshot_datasets":        strings.Join(c.SnapshotDatasets, ","),
		"rate_limit_per_minute":    strconv.Itoa(c.RateLimitPerMinute),
		"cors_allowed_origins":     strings.Join(c.CORSAllowedOrigins, ","),
		"profiling_enabled":        strconv.FormatBool(c.ProfilingEnabled),
		"tracing_enabled":          strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":         c.TracingExporter,
		"otlp_endpoint":            c.OTLPEndpoint,
		"tracing_sample_rate":      strconv.FormatFloat(c.TracingSampleRate, 'g', -1, 64),
		"r2_bucket_name":           c.R2BucketName,
		"r2_access_key_id":         maskSecret(c.R2AccessKeyID),
		"r2_secret_access_key":     maskSecret(c.R2SecretAccessKey),
		"r2_endpoint":              c.R2Endpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURLPassword masks the password in a postgres:// or redis:// URL.
func maskURLPassword(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
