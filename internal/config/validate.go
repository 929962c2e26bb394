// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"strings"

	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the names of the invalid fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// Validate checks every field and returns a KindValidation error wrapping
// ValidationErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.SchemaVersion != "" && c.SchemaVersion != CurrentSchemaVersion {
		errs = append(errs, ValidationError{"schema_version", fmt.Sprintf("unsupported version %q", c.SchemaVersion)})
	}
	if strings.TrimSpace(c.Interface) == "" {
		errs = append(errs, ValidationError{"interface", "must be set"})
	}
	switch strings.ToLower(c.AttachMode) {
	case "", "generic", "driver", "offload":
	default:
		errs = append(errs, ValidationError{"attach_mode", fmt.Sprintf("unknown mode %q", c.AttachMode)})
	}
	if c.BlockedPort != nil && (*c.BlockedPort < 0 || *c.BlockedPort > 65535) {
		errs = append(errs, ValidationError{"blocked_port", fmt.Sprintf("%d is outside 0..65535", *c.BlockedPort)})
	}
	if c.API != nil && c.API.Enabled && strings.TrimSpace(c.API.Listen) == "" {
		errs = append(errs, ValidationError{"api.listen", "must be set when the API is enabled"})
	}
	if c.Log != nil {
		if _, err := logging.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, ValidationError{"log.level", err.Error()})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	err := errors.Wrap(errs, errors.KindValidation, "invalid configuration")
	return errors.Attr(err, "fields", errs.Fields())
}
