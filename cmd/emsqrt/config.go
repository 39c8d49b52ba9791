// Copyright 2024 The EM-√ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/logannye/emsqrt/internal/emerrors"
)

const (
	defaultMemCapBytes = int64(64 << 20) // 64 MiB
	defaultCodec       = "zstd"
)

// fileConfig is the optional on-disk `emsqrt.toml` shape (§1 AMBIENT
// STACK: "mirroring tinykv's own TOML config loader"). Every field is
// optional; zero values are left for env/flag overrides to fill in.
type fileConfig struct {
	MemCapBytes uint64 `toml:"memory_cap_bytes"`
	SpillDir    string `toml:"spill_dir"`
	Codec       string `toml:"codec"`
	MaxParallel int    `toml:"max_parallel"`
}

// config is the resolved, three-tier-precedence (flags > env > file >
// built-in default) set of knobs run/explain consult, mirroring the
// layering tinykv's config loader documents for its own TOML+flag
// surface.
type config struct {
	MemCapBytes int64
	SpillDir    string
	Codec       string
	MaxParallel int
}

func defaultConfig() config {
	return config{MemCapBytes: defaultMemCapBytes, Codec: defaultCodec, MaxParallel: 1}
}

// loadFileConfig reads an optional TOML config file; a missing path is
// not an error (the whole file is optional), but a malformed one is.
func loadFileConfig(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if os.IsNotExist(err) {
			return fileConfig{}, nil
		}
		return fileConfig{}, emerrors.Wrap(err, "reading config file "+path)
	}
	return fc, nil
}

func applyFileConfig(c config, fc fileConfig) config {
	if fc.MemCapBytes != 0 {
		c.MemCapBytes = int64(fc.MemCapBytes)
	}
	if fc.SpillDir != "" {
		c.SpillDir = fc.SpillDir
	}
	if fc.Codec != "" {
		c.Codec = fc.Codec
	}
	if fc.MaxParallel != 0 {
		c.MaxParallel = fc.MaxParallel
	}
	return c
}

// applyEnv overrides c with EMSQRT_MEM_CAP_BYTES / EMSQRT_SPILL_DIR /
// EMSQRT_MAX_PARALLEL when set (§6 "Environment").
func applyEnv(c config) config {
	if v := os.Getenv("EMSQRT_MEM_CAP_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MemCapBytes = n
		}
	}
	if v := os.Getenv("EMSQRT_SPILL_DIR"); v != "" {
		c.SpillDir = v
	}
	if v := os.Getenv("EMSQRT_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxParallel = n
		}
	}
	return c
}

// resolveConfig layers built-in defaults < config file < environment <
// explicit CLI flags (applied by the caller after this returns, since
// cobra flag values and their "was it set" state live with *cobra.Command).
func resolveConfig(configPath string) (config, error) {
	c := defaultConfig()
	fc, err := loadFileConfig(configPath)
	if err != nil {
		return config{}, err
	}
	c = applyFileConfig(c, fc)
	c = applyEnv(c)
	return c, nil
}
