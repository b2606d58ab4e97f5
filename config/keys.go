package config

import (
	"reflect"
	"sort"
	"strings"
)

// Keys dotted mapstructure keys of every leaf field of v, sorted. Map and
// slice fields are leaves.
func Keys(v interface{}) []string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	var keys []string
	collectKeys(t, "", &keys)
	sort.Strings(keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, squash := tagName(f)
		if name == "-" {
			continue
		}
		ft := f.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			if squash || f.Anonymous {
				collectKeys(ft, prefix, keys)
			} else {
				collectKeys(ft, join(prefix, name), keys)
			}
			continue
		}
		*keys = append(*keys, join(prefix, name))
	}
}

func tagName(f reflect.StructField) (name string, squash bool) {
	tag := f.Tag.Get("mapstructure")
	parts := strings.Split(tag, ",")
	name = parts[0]
	for _, opt := range parts[1:] {
		if opt == "squash" {
			squash = true
		}
	}
	if name == "" {
		name = strings.ToLower(f.Name)
	}
	return name, squash
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
