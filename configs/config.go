package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the application configuration
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	LogFormat   string

	// ModelVariant selects the active model. It is validated lazily by the
	// artifact store so a bad value fails on first model access, not at boot.
	ModelVariant string

	DataDir           string
	ModelDir          string
	TestDataPath      string
	EncodingPath      string
	LightGBMPath      string
	XGBoostPath       string
	FeatureSchemaPath string

	PreloadArtifacts bool
	CORSAllowOrigins []string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	dataDir := getEnv("DATA_DIR", "data")
	modelDir := getEnv("MODEL_DIR", "model")

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		ModelVariant:      strings.ToLower(strings.TrimSpace(getEnv("MODEL_VARIANT", "lightgbm"))),
		DataDir:           dataDir,
		ModelDir:          modelDir,
		TestDataPath:      getEnv("TEST_DATA_PATH", filepath.Join(dataDir, "test_data.parquet")),
		EncodingPath:      getEnv("ENCODING_PATH", filepath.Join(dataDir, "target_encoding_mapping.json")),
		LightGBMPath:      getEnv("LGBM_MODEL_PATH", filepath.Join(modelDir, "lgbm_model.txt")),
		XGBoostPath:       getEnv("XGB_MODEL_PATH", filepath.Join(modelDir, "xgboost_model.model")),
		FeatureSchemaPath: getEnv("FEATURE_SCHEMA_PATH", ""),
		PreloadArtifacts:  getEnvBool("PRELOAD_ARTIFACTS", false),
		CORSAllowOrigins:  getEnvList("CORS_ALLOW_ORIGINS"),
	}
}

// IsProduction reports whether the service runs with production defaults
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
