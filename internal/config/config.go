// Package config loads YAML configuration files with environment overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "CONFIG_PATH"

// Load reads file into config, which must be a pointer to a struct.
// Values already set in config act as defaults. Every key can be overridden by an
// environment variable named after its path with dots replaced by underscores,
// e.g. JUDGE_WORKERS for judge.workers.
func Load(file string, config any) error {
	v := viper.New()

	if err := setDefaults(v, "", config); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", file, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	return nil
}

// setDefaults registers every leaf of value under its dotted path. Viper only
// consults the environment for keys it knows, nested ones included.
func setDefaults(v *viper.Viper, prefix string, value any) error {
	fields, ok := value.(map[string]any)
	if !ok {
		fields = make(map[string]any)
		if err := mapstructure.Decode(value, &fields); err != nil {
			return err
		}
	}

	for name, field := range fields {
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		switch reflect.ValueOf(field).Kind() {
		case reflect.Struct, reflect.Map:
			if err := setDefaults(v, key, field); err != nil {
				return err
			}
		default:
			v.SetDefault(key, field)
		}
	}

	return nil
}

// LoadFromEnv loads the file named by the CONFIG_PATH environment variable.
func LoadFromEnv(config any) error {
	p := os.Getenv(PathEnv)
	if p == "" {
		return fmt.Errorf("%s not set", PathEnv)
	}

	return Load(p, config)
}
