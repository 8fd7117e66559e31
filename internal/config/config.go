// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the settings shared by the data access services
// and the live buffers.
package config

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"
)

const (
	QueryLimitKey      = "query-limit"
	IncludeAllKey      = "include-all"
	SaveBatchSizeKey   = "save-batch-size"
	SaveReturnDepthKey = "save-return-depth"
	FetchDepthKey      = "fetch-depth"
	BulkDepthKey       = "bulk-depth"
	LoggingConfigKey   = "logging-config"
)

// Config is the docsync configuration.
type Config struct {
	// QueryLimit bounds bulk queries, and is the fallback limit of the
	// get-all operations when counting fails.
	QueryLimit int
	// IncludeAll makes live buffers resolve every nested reference.
	IncludeAll bool
	// SaveBatchSize is the batch size of SaveMany.
	SaveBatchSize int
	// SaveReturnDepth is the hydration depth of the objects SaveMany
	// returns.
	SaveReturnDepth int
	// FetchDepth is the hydration depth of single object fetches.
	FetchDepth int
	// BulkDepth is the hydration depth of bulk fetches and of live buffer
	// nodes. It is at least 1.
	BulkDepth int
	// LoggingConfig is a loggo specification.
	LoggingConfig string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		QueryLimit:      100000,
		IncludeAll:      false,
		SaveBatchSize:   20,
		SaveReturnDepth: 1,
		FetchDepth:      3,
		BulkDepth:       2,
		LoggingConfig:   "<root>=INFO",
	}
}

var (
	fields = schema.Fields{
		QueryLimitKey:      schema.ForceInt(),
		IncludeAllKey:      schema.Bool(),
		SaveBatchSizeKey:   schema.ForceInt(),
		SaveReturnDepthKey: schema.ForceInt(),
		FetchDepthKey:      schema.ForceInt(),
		BulkDepthKey:       schema.ForceInt(),
		LoggingConfigKey:   schema.String(),
	}
	defaults = schema.Defaults{
		QueryLimitKey:      schema.Omit,
		IncludeAllKey:      schema.Omit,
		SaveBatchSizeKey:   schema.Omit,
		SaveReturnDepthKey: schema.Omit,
		FetchDepthKey:      schema.Omit,
		BulkDepthKey:       schema.Omit,
		LoggingConfigKey:   schema.Omit,
	}
	checker = schema.FieldMap(fields, defaults)
)

// Parse coerces attrs into a Config. Missing keys keep their default.
func Parse(attrs map[string]interface{}) (Config, error) {
	coerced, err := checker.Coerce(attrs, nil)
	if err != nil {
		return Config{}, errors.NotValidf("config: %v", err)
	}
	values := coerced.(map[string]interface{})

	cfg := Default()
	if v, ok := values[QueryLimitKey]; ok {
		cfg.QueryLimit = v.(int)
	}
	if v, ok := values[IncludeAllKey]; ok {
		cfg.IncludeAll = v.(bool)
	}
	if v, ok := values[SaveBatchSizeKey]; ok {
		cfg.SaveBatchSize = v.(int)
	}
	if v, ok := values[SaveReturnDepthKey]; ok {
		cfg.SaveReturnDepth = v.(int)
	}
	if v, ok := values[FetchDepthKey]; ok {
		cfg.FetchDepth = v.(int)
	}
	if v, ok := values[BulkDepthKey]; ok {
		cfg.BulkDepth = v.(int)
	}
	if v, ok := values[LoggingConfigKey]; ok {
		cfg.LoggingConfig = v.(string)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

// Read parses the YAML configuration file at path.
func Read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Annotatef(err, "reading %q", path)
	}
	var attrs map[string]interface{}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return Config{}, errors.Annotatef(err, "parsing %q", path)
	}
	cfg, err := Parse(attrs)
	if err != nil {
		return Config{}, errors.Annotatef(err, "loading %q", path)
	}
	return cfg, nil
}

// Validate returns an error if a setting is out of range.
func (c Config) Validate() error {
	if c.QueryLimit <= 0 {
		return errors.NotValidf("%s %d", QueryLimitKey, c.QueryLimit)
	}
	if c.SaveBatchSize <= 0 {
		return errors.NotValidf("%s %d", SaveBatchSizeKey, c.SaveBatchSize)
	}
	// Bulk hydration must fill at least the root fields.
	if c.BulkDepth < 1 {
		return errors.NotValidf("%s %d", BulkDepthKey, c.BulkDepth)
	}
	for key, depth := range map[string]int{
		SaveReturnDepthKey: c.SaveReturnDepth,
		FetchDepthKey:      c.FetchDepth,
	} {
		if depth < 0 {
			return errors.NotValidf("%s %d", key, depth)
		}
	}
	return nil
}
