package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// Validatable is an optional interface that config structs can implement
// to validate themselves before being swapped in.
type Validatable interface {
	Validate() error
}

// LoadTOML loads a TOML config file into a struct of type T, starting from a
// copy of defaults. If the file does not exist, the copy is returned as is.
func LoadTOML[T any](path string, defaults *T) (*T, error) {
	cfg, err := clone(defaults)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing config %s: unknown keys %v", path, undecoded)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// clone deep-copies v so decoding into the copy cannot reach slices or maps
// shared with v.
func clone[T any](v *T) (*T, error) {
	out := new(T)
	if v == nil {
		return out, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("copying defaults: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("copying defaults: %w", err)
	}
	return out, nil
}

func validate(cfg any) error {
	if v, ok := cfg.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
