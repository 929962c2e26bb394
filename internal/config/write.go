// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/portgate/internal/errors"
)

// MarshalHCL renders cfg as native HCL.
func MarshalHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	schema := cfg.SchemaVersion
	if schema == "" {
		schema = CurrentSchemaVersion
	}
	body.SetAttributeValue("schema_version", cty.StringVal(schema))
	body.SetAttributeValue("interface", cty.StringVal(cfg.Interface))
	if cfg.AttachMode != "" {
		body.SetAttributeValue("attach_mode", cty.StringVal(cfg.AttachMode))
	}
	if cfg.BlockedPort != nil {
		body.SetAttributeValue("blocked_port", cty.NumberIntVal(int64(*cfg.BlockedPort)))
	}

	if cfg.API != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("api", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(cfg.API.Enabled))
		if cfg.API.Listen != "" {
			b.SetAttributeValue("listen", cty.StringVal(cfg.API.Listen))
		}
	}

	if cfg.Log != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("log", nil).Body()
		if cfg.Log.Level != "" {
			b.SetAttributeValue("level", cty.StringVal(cfg.Log.Level))
		}
		b.SetAttributeValue("json", cty.BoolVal(cfg.Log.JSON))
	}

	return hclwrite.Format(f.Bytes())
}

// WriteFile validates cfg and writes it to path, creating parent
// directories. An existing file is kept as path.bak.
func WriteFile(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to create config directory")
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return errors.Wrap(err, errors.KindInternal, "failed to create backup")
		}
	}

	if err := os.WriteFile(path, MarshalHCL(cfg), 0o644); err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindInternal, "failed to write config file"), "path", path)
	}
	return nil
}
