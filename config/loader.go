package config

import (
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader merges sources by priority into one viper instance.
type Loader struct {
	sources      []ConfigSource
	mergedConfig map[string]interface{}
	v            *viper.Viper
	loadedFiles  []string
}

func NewLoader() *Loader {
	return &Loader{
		mergedConfig: make(map[string]interface{}),
		v:            viper.New(),
	}
}

func (l *Loader) AddSource(source ConfigSource) {
	l.sources = append(l.sources, source)
}

// Load reads every source, lowest priority first.
func (l *Loader) Load() error {
	sort.SliceStable(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	l.mergedConfig = make(map[string]interface{})
	l.loadedFiles = l.loadedFiles[:0]
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return ErrLoadSource.WithData("source", source.Name()).Wrap(err)
		}
		if fs, ok := source.(*FileSource); ok && len(data) > 0 {
			l.loadedFiles = append(l.loadedFiles, fs.path)
		}
		for key, value := range data {
			l.mergedConfig[strings.ToLower(key)] = value
		}
	}

	l.v = viper.New()
	for key, value := range unflattenMap(l.mergedConfig) {
		l.v.Set(key, value)
	}
	return nil
}

// unflattenMap {"stream.batch_size": 50} -> {"stream": {"batch_size": 50}}
func unflattenMap(flat map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	// parents before children so a nested key wins over a scalar parent
	sort.Strings(keys)
	for _, key := range keys {
		setNested(result, strings.Split(key, "."), flat[key])
	}
	return result
}

func setNested(m map[string]interface{}, path []string, value interface{}) {
	current := m
	for _, k := range path[:len(path)-1] {
		next, ok := current[k].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[k] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

// Unmarshal decodes onto v; fields absent from every source keep their
// current value, so v is usually pre-filled with defaults.
func (l *Loader) Unmarshal(v interface{}) error {
	if err := l.v.Unmarshal(v); err != nil {
		return ErrDecode.Wrap(err)
	}
	return nil
}

// UnmarshalKey decodes one section, e.g. "cache".
func (l *Loader) UnmarshalKey(key string, v interface{}) error {
	if err := l.v.UnmarshalKey(key, v); err != nil {
		return ErrDecode.WithData("key", key).Wrap(err)
	}
	return nil
}

func (l *Loader) Get(key string) interface{} { return l.v.Get(key) }

func (l *Loader) GetString(key string) string { return l.v.GetString(key) }

func (l *Loader) GetInt(key string) int { return l.v.GetInt(key) }

func (l *Loader) GetBool(key string) bool { return l.v.GetBool(key) }

func (l *Loader) IsSet(key string) bool { return l.v.IsSet(key) }

func (l *Loader) AllSettings() map[string]interface{} { return l.v.AllSettings() }

// LoadedFiles files that existed and contributed settings
func (l *Loader) LoadedFiles() []string {
	return append([]string(nil), l.loadedFiles...)
}

func (l *Loader) Viper() *viper.Viper { return l.v }

func (l *Loader) Reload() error { return l.Load() }
