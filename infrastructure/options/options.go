// Package options decodes technique and evaluator options from settings
// maps into typed, defaulted config structs.
package options

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Names lists the yaml field names of a config struct, sorted. These are
// the option names a technique recognizes.
func Names(cfg any) []string {
	t := reflect.TypeOf(cfg)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var names []string
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("yaml")
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Decode overlays params on defaults through a yaml round trip and
// validates the result with v.
func Decode[T any](params map[string]any, defaults T, v *validator.Validate) (T, error) {
	cfg := defaults
	if len(params) > 0 {
		data, err := yaml.Marshal(params)
		if err != nil {
			return cfg, fmt.Errorf("marshal parameters: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse parameters: %w", err)
		}
	}
	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("parameter validation failed: %w", err)
	}
	return cfg, nil
}
