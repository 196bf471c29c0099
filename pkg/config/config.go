// Package config loads and validates the single JSON configuration document
// a pipeline run starts from (spec.md §6).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/klever-verify/core/pkg/types"
)

// Load reads and validates the configuration document at path.
func Load(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigError{Field: path, Msg: fmt.Sprintf("cannot read file: %v", err)}
	}

	var cfg types.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &types.ConfigError{Field: path, Msg: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
