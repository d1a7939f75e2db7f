package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// ReadConfig reads a configuration file, `name` should come with a file extension,
// it will automatically be lopped off to produce the other extensions.
// this function will decode the following files over `base`, where higher number is more prioritized.
// 1. <name>.<ext>
// 2. <name>.local.<ext>
// Only the keys present in a file replace a value, so an explicit zero is kept.
func ReadConfig[T any](name string, base T) (T, error) {
	out := base
	allNotFound := true

	dirname := filepath.Dir(name)
	basename := filepath.Base(name)
	prefixname, ext := splitExt(basename)

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		err = json5.Unmarshal(defaultFile, &out)
		if err != nil {
			return out, fmt.Errorf("parse %s: %w", name, err)
		}
		allNotFound = false
	}

	localFilepath := filepath.Join(
		dirname,
		fmt.Sprintf("%s.local.%s", prefixname, ext),
	)
	localFile, err := os.ReadFile(localFilepath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		err = json5.Unmarshal(localFile, &out)
		if err != nil {
			return out, fmt.Errorf("parse %s: %w", localFilepath, err)
		}
		slog.Info("merging config with local overrides", "local", localFilepath)
		allNotFound = false
	}

	if allNotFound {
		return base, os.ErrNotExist
	}

	return out, nil
}

// ReadRecursively is ReadConfig but it goes up the filesystem from the working
// directory until the root to find a configuration file matching the name.
func ReadRecursively[T any](name string, base T) (T, error) {
	current, err := os.Getwd()
	if err != nil {
		return base, err
	}

	for {
		config, err := ReadConfig(filepath.Join(current, name), base)
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return base, err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return base, os.ErrNotExist
		}
		current = parent
	}
}

// WithOverrides replaces the fields of `config` with every non-zero field of
// `overrides`, zero fields in `overrides` mean "not set".
func WithOverrides[T any](config T, overrides T) (T, error) {
	err := mergo.Merge(&config, overrides, mergo.WithOverride)
	return config, err
}
