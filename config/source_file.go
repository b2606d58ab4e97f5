package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/viper"
)

// FileSource YAML (or any viper-supported format) file. A missing file loads
// as empty.
type FileSource struct {
	path     string
	priority int
}

func NewFileSource(path string, priority int) *FileSource {
	return &FileSource{path: path, priority: priority}
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Priority() int { return s.priority }

func (s *FileSource) Load() (map[string]interface{}, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]interface{}{}, nil
		}
		return nil, ErrReadFile.WithData("path", s.path).Wrap(err)
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, ErrReadFile.WithData("path", s.path).Wrap(err)
	}
	return flattenMap("", v.AllSettings()), nil
}

// flattenMap {"stream": {"batch_size": 50}} -> {"stream.batch_size": 50}
func flattenMap(prefix string, data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]interface{}:
			for nk, nv := range flattenMap(fullKey, v) {
				result[nk] = nv
			}
		default:
			result[fullKey] = value
		}
	}
	return result
}
