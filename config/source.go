package config

// ConfigSource one layer of configuration. Keys are dot separated, e.g.
// "stream.heartbeat_interval".
type ConfigSource interface {
	// Name for logs
	Name() string

	// Priority higher overrides lower. Defaults 1, config.yaml 10,
	// <env>.yaml 20, environment variables 50.
	Priority() int

	Load() (map[string]interface{}, error)
}

// MapSource in-memory layer, used for programmatic overrides and tests
type MapSource struct {
	name     string
	priority int
	data     map[string]interface{}
}

// NewMapSource nested maps are flattened to dotted keys.
func NewMapSource(name string, priority int, data map[string]interface{}) *MapSource {
	return &MapSource{name: name, priority: priority, data: flattenMap("", data)}
}

func (s *MapSource) Name() string { return "map:" + s.name }

func (s *MapSource) Priority() int { return s.priority }

func (s *MapSource) Load() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}
