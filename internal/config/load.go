// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"grimm.is/portgate/internal/errors"
)

// LoadFile loads a config file. Files ending in .json are parsed as HCL
// JSON syntax; anything else as native HCL. Callers apply any overrides and
// then call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		kind := errors.KindInternal
		if os.IsNotExist(err) {
			kind = errors.KindNotFound
		}
		return nil, errors.Attr(errors.Wrap(err, kind, "failed to read config file"), "path", path)
	}

	var cfg *Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		cfg, err = LoadJSON(data)
	} else {
		cfg, err = LoadHCL(data, path)
	}
	if err != nil {
		return nil, errors.Attr(err, "path", path)
	}
	return cfg, nil
}

// LoadHCL loads config from HCL bytes.
func LoadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	return decode(file, diags)
}

// LoadJSON loads config from JSON bytes using the HCL JSON syntax.
func LoadJSON(data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseJSON(data, "config.json")
	return decode(file, diags)
}

func decode(file *hcl.File, diags hcl.Diagnostics) (*Config, error) {
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to parse config")
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to decode config")
	}
	cfg.applyDefaults()
	return &cfg, nil
}
