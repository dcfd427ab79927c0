package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
)

// MergeFromEnv overlays environment variables onto cfg. Each field
// with an `env` struct tag is replaced when the variable is set and
// non-empty. Only string and int fields are recognized.
func MergeFromEnv(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || !field.CanSet() {
			continue
		}

		raw, ok := os.LookupEnv(envTag)
		if !ok || raw == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", envTag, err)
			}
			field.SetInt(int64(n))
		default:
			return fmt.Errorf("unsupported field kind %s for %s", field.Kind(), envTag)
		}
	}

	return nil
}
