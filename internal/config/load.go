package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "DBGCORE_"

// Load builds the configuration from the defaults, the file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Environ())
}

// LoadWithEnv is Load with an explicit environment in "KEY=value" form.
func LoadWithEnv(path string, environ []string) (*Config, error) {
	merged := make(map[string]any)
	if path != "" {
		file, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, file)
	}
	merged = deepMerge(merged, loadEnv(EnvPrefix, environ))

	cfg := Default()
	if len(merged) > 0 {
		// Round-trip through TOML so both file formats and the environment
		// decode with the same struct tags.
		data, err := toml.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("encoding merged config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, &ParseError{Path: sourceName(path), Message: err.Error(), Err: err}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func sourceName(path string) string {
	if path == "" {
		return "<environment>"
	}
	return path + " + <environment>"
}

// loadFile reads a TOML or YAML file into a map.
func loadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var out map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return out, nil
}

// loadEnv maps DBGCORE_SESSION_MAX_IN_FLIGHT=8 to session.max_in_flight.
func loadEnv(prefix string, environ []string) map[string]any {
	out := make(map[string]any)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		section, key, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(name, prefix)), "_")
		if !ok || section == "" || key == "" {
			continue
		}
		sec, _ := out[section].(map[string]any)
		if sec == nil {
			sec = make(map[string]any)
			out[section] = sec
		}
		sec[key] = parseEnvValue(value)
	}
	return out
}

// parseEnvValue converts booleans, integers and comma-separated lists.
// Everything else, durations included, stays a string. A list with a
// single element needs a trailing comma.
func parseEnvValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if strings.Contains(s, ",") {
		var list []any
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		return list
	}
	return s
}

// deepMerge merges src into dst; src wins except where both hold maps.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = deepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}
