// internal/config/detector.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoBackendType is returned when the file has no backend.type.
var ErrNoBackendType = errors.New("backend type not specified in config")

// configFileNames are tried in order when a directory is given.
var configFileNames = []string{"config.yaml", "config.yml", "quorum-guard.yaml", "quorum-guard.yml"}

// DetectBackendType determines the backend type from the configuration file.
// QUORUMGUARD_BACKEND_TYPE overrides the file.
func DetectBackendType(configPath string) (string, error) {
	if envType := os.Getenv(envPrefix + "_BACKEND_TYPE"); envType != "" {
		return normalizeBackendType(envType), nil
	}

	configFile, err := resolveConfigFilePath(configPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return "", fmt.Errorf("failed to read config file: %w", err)
	}

	var config RootConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return "", fmt.Errorf("invalid configuration file: %w", err)
	}

	if config.Backend.Type == "" {
		return "", ErrNoBackendType
	}

	return normalizeBackendType(config.Backend.Type), nil
}

func normalizeBackendType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	switch t {
	case "scylla", "cassandra":
		return "scylladb"
	case "dynamo":
		return "dynamodb"
	case "inmemory", "mem":
		return "memory"
	}
	return t
}

// resolveConfigFilePath determines the actual configuration file path
func resolveConfigFilePath(configPath string) (string, error) {
	if configPath == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	fileInfo, err := os.Stat(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("configuration file not found at %s: %w", configPath, err)
		}
		return "", err
	}

	if !fileInfo.IsDir() {
		return configPath, nil
	}

	for _, name := range configFileNames {
		candidate := filepath.Join(configPath, name)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no config file found in directory %s: %w", configPath, os.ErrNotExist)
}
