// Package config loads the relay server settings from an optional YAML file
// and the environment. Environment variables always win over the file.
//
//	COVERBOT_CONFIG   path to a YAML file (optional)
//	PORT              listen port (default 8080)
//	GITHUB_API_URL    GitHub REST base URL (default api.github.com)
//	INDEXER_API_URL   indexing service base URL (default Greptile v2)
//	FIXED_PROMPT      replace /query-code queries with the missing-tests prompt
//	OTEL_ENABLED      export traces and metrics over OTLP gRPC
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EnvFile names the variable holding the optional config file path.
const EnvFile = "COVERBOT_CONFIG"

// Config is the relay server configuration.
type Config struct {
	Port          string `yaml:"port"`
	GitHubAPIURL  string `yaml:"githubApiUrl"`
	IndexerAPIURL string `yaml:"indexerApiUrl"`
	FixedPrompt   bool   `yaml:"fixedPrompt"`
	OTelEnabled   bool   `yaml:"otelEnabled"`
}

// envVarPattern matches ${VAR_NAME} placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)}`)

// FromEnv loads the file named by COVERBOT_CONFIG, if any, then applies
// environment overrides.
func FromEnv() (*Config, error) {
	return Load(os.Getenv(EnvFile))
}

// Load reads path (skipped when empty), expands ${VAR} references in it and
// applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{Port: "8080"}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expand(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	return cfg, nil
}

func expand(raw string) string {
	return envVarPattern.ReplaceAllStringFunc(raw, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) error {
	envOr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envOr("PORT", &cfg.Port)
	envOr("GITHUB_API_URL", &cfg.GitHubAPIURL)
	envOr("INDEXER_API_URL", &cfg.IndexerAPIURL)

	for key, dst := range map[string]*bool{
		"FIXED_PROMPT": &cfg.FixedPrompt,
		"OTEL_ENABLED": &cfg.OTelEnabled,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	return nil
}
