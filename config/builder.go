package config

import (
	"os"
	"path/filepath"
)

// DefaultEnvPrefix environment variable prefix
const DefaultEnvPrefix = "OPSFEED"

// LoaderBuilder assembles the standard source stack:
// config.yaml (10), <env>.yaml (20), environment variables (50).
type LoaderBuilder struct {
	configPath string
	envPrefix  string
	env        string
	keys       []string
	extra      []ConfigSource
}

func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{envPrefix: DefaultEnvPrefix}
}

// WithConfigPath directory holding config.yaml and <env>.yaml
func (b *LoaderBuilder) WithConfigPath(path string) *LoaderBuilder {
	b.configPath = path
	return b
}

// WithEnvPrefix empty disables environment overrides
func (b *LoaderBuilder) WithEnvPrefix(prefix string) *LoaderBuilder {
	b.envPrefix = prefix
	return b
}

// WithEnv overrides GetEnv for the <env>.yaml layer
func (b *LoaderBuilder) WithEnv(env string) *LoaderBuilder {
	b.env = env
	return b
}

// WithKeys keys that may be overridden from the environment, see Keys
func (b *LoaderBuilder) WithKeys(keys ...string) *LoaderBuilder {
	b.keys = append(b.keys, keys...)
	return b
}

// WithSource adds a custom layer.
func (b *LoaderBuilder) WithSource(s ConfigSource) *LoaderBuilder {
	b.extra = append(b.extra, s)
	return b
}

func (b *LoaderBuilder) Build() (*Loader, error) {
	loader := NewLoader()

	if b.configPath != "" {
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, "config.yaml"), 10))
		env := b.env
		if env == "" {
			env = GetEnv()
		}
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, env+".yaml"), 20))
	}
	if b.envPrefix != "" && len(b.keys) > 0 {
		src := NewEnvSource(b.envPrefix, 50)
		src.BindKeys(b.keys...)
		loader.AddSource(src)
	}
	for _, s := range b.extra {
		loader.AddSource(s)
	}

	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}

// GetEnv OPSFEED_ENV, then APP_ENV, then "dev"
func GetEnv() string {
	if env := os.Getenv(DefaultEnvPrefix + "_ENV"); env != "" {
		return env
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	return "dev"
}
