// Package config provides configuration loading for the tomography
// pipeline. Configuration is always an explicit value threaded through
// reconstruction calls; this package only assembles that value.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/qforge/tomo/internal/modules/bootstrap"
	"github.com/qforge/tomo/internal/modules/reconstruction"
)

// Config bundles the pipeline configuration surface: basis family,
// reconstruction mode and solver budget, and bootstrap settings.
type Config struct {
	BasisFamily    string
	LogLevel       string
	Reconstruction reconstruction.Config
	Bootstrap      bootstrap.Config
}

// Default returns the pipeline defaults for a reconstruction mode.
func Default(mode reconstruction.Mode) Config {
	return Config{
		BasisFamily:    "pauli",
		LogLevel:       "info",
		Reconstruction: reconstruction.DefaultConfig(mode),
		Bootstrap:      bootstrap.DefaultConfig(),
	}
}

// Load reads configuration from environment variables on top of the
// defaults, loading a .env file first if one exists.
func Load(mode reconstruction.Mode) (Config, error) {
	_ = godotenv.Load()

	cfg := Default(mode)
	cfg.BasisFamily = getEnv("TOMO_BASIS_FAMILY", cfg.BasisFamily)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	r := &cfg.Reconstruction
	if getEnvAsBool("TOMO_WEIGHTED_OBJECTIVE", false) {
		r.Weighting = reconstruction.WeightingShotNoise
	}
	r.TracePreserving = getEnvAsBool("TOMO_TRACE_PRESERVING", r.TracePreserving)
	r.MaxIterations = getEnvAsInt("TOMO_SOLVER_MAX_ITERATIONS", r.MaxIterations)
	r.Budget = getEnvAsDuration("TOMO_SOLVER_BUDGET", r.Budget)
	r.GradientTolerance = getEnvAsFloat("TOMO_SOLVER_TOLERANCE", r.GradientTolerance)
	r.EigClipTolerance = getEnvAsFloat("TOMO_EIG_CLIP_TOLERANCE", r.EigClipTolerance)

	b := &cfg.Bootstrap
	b.Samples = getEnvAsInt("TOMO_BOOTSTRAP_SAMPLES", b.Samples)
	b.Workers = getEnvAsInt("TOMO_BOOTSTRAP_WORKERS", b.Workers)
	b.ConfidenceLevel = getEnvAsFloat("TOMO_CONFIDENCE_LEVEL", b.ConfidenceLevel)
	b.FailureThreshold = getEnvAsFloat("TOMO_BOOTSTRAP_FAILURE_THRESHOLD", b.FailureThreshold)

	if err := r.Validate(); err != nil {
		return Config{}, err
	}
	if err := b.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
