package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const noConfigMessage = "no pssbuild.toml found in this directory or any parent\nspecify the module to build explicitly instead, e.g.:\n  pssbuild build path/to/module.pssir"

type config struct {
	Path string
	Root string
	Data configData
}

type configData struct {
	Target targetConfig `toml:"target"`
	Build  buildConfig  `toml:"build"`
}

type targetConfig struct {
	Triple string `toml:"triple"`
}

type buildConfig struct {
	Entry string `toml:"entry"`
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "pssbuild.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadConfig(startDir string) (*config, bool, error) {
	path, ok, err := findConfig(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	var data configData
	if _, err := toml.DecodeFile(path, &data); err != nil {
		return nil, true, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return &config{Path: path, Root: filepath.Dir(path), Data: data}, true, nil
}
