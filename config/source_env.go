package config

import (
	"os"
	"strings"
)

// EnvSource environment variables. Each bound key "stream.heartbeat_interval"
// reads PREFIX_STREAM_HEARTBEAT_INTERVAL; AddBinding overrides the variable
// name for one key.
type EnvSource struct {
	prefix   string
	priority int
	bindings map[string]string
}

func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{
		prefix:   prefix,
		priority: priority,
		bindings: make(map[string]string),
	}
}

// BindKeys binds keys to their derived variable names.
func (s *EnvSource) BindKeys(keys ...string) {
	for _, key := range keys {
		if _, ok := s.bindings[key]; !ok {
			s.bindings[key] = EnvName(s.prefix, key)
		}
	}
}

// AddBinding reads key from envKey; the prefix is added when missing.
func (s *EnvSource) AddBinding(key, envKey string) {
	if s.prefix != "" && !strings.HasPrefix(envKey, s.prefix+"_") {
		envKey = s.prefix + "_" + envKey
	}
	s.bindings[key] = envKey
}

func (s *EnvSource) Name() string { return "env:" + s.prefix }

func (s *EnvSource) Priority() int { return s.priority }

// Load returns the bound keys whose variables are set and non-empty.
func (s *EnvSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	for key, envKey := range s.bindings {
		if value, ok := os.LookupEnv(envKey); ok && value != "" {
			result[key] = value
		}
	}
	return result, nil
}

// EnvName ("OPSFEED", "cache.store.driver") -> "OPSFEED_CACHE_STORE_DRIVER"
func EnvName(prefix, key string) string {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}
