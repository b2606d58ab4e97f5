package config

import (
	"github.com/samber/do/v2"
)

// ProvideLoaderOptions sources of the provided Loader
type ProvideLoaderOptions struct {
	// ConfigPath directory holding config.yaml; empty skips files
	ConfigPath string
	// EnvPrefix defaults to DefaultEnvPrefix
	EnvPrefix string
	Env       string
}

func (o ProvideLoaderOptions) builder() *LoaderBuilder {
	b := NewLoaderBuilder().WithConfigPath(o.ConfigPath).WithEnv(o.Env)
	if o.EnvPrefix != "" {
		b.WithEnvPrefix(o.EnvPrefix)
	}
	return b
}

// ProvideLoader registers a Loader built from opts.
//
//	do.Provide(injector, config.ProvideLoader(config.ProvideLoaderOptions{ConfigPath: "./configs"}))
//	loader := do.MustInvoke[*config.Loader](injector)
func ProvideLoader(opts ProvideLoaderOptions) func(do.Injector) (*Loader, error) {
	return func(do.Injector) (*Loader, error) {
		return opts.builder().WithKeys(Keys(DefaultAppConfig())...).Build()
	}
}

// ProvideAppConfig decodes the injected Loader over DefaultAppConfig.
func ProvideAppConfig(i do.Injector) (AppConfig, error) {
	loader, err := do.Invoke[*Loader](i)
	if err != nil {
		return AppConfig{}, err
	}
	return FromLoader(loader)
}

// ProvideAppConfigValue registers an already built AppConfig.
func ProvideAppConfigValue(cfg AppConfig) func(do.Injector) (AppConfig, error) {
	return func(do.Injector) (AppConfig, error) {
		return cfg, nil
	}
}
