/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	SourceDirectory = "dir"
	SourceDatabase  = "database"
)

// Config holds all configuration for the application
type Config struct {
	Source     SourceConfig
	Vocabulary VocabularyConfig
	Cohort     CohortConfig
	Database   DatabaseConfig

	// AsOf is the censoring date ("today"). Zero means the current date.
	AsOf     time.Time
	LogLevel string
	Format   string
}

// SourceConfig selects where tables are loaded from.
type SourceConfig struct {
	Kind      string // "dir" or "database"
	Directory string
	Extension string
}

// VocabularyConfig describes the drug vocabulary export.
type VocabularyConfig struct {
	Path      string
	SkipLines int
	TermTypes []string
}

// CohortConfig holds the condition search settings.
type CohortConfig struct {
	Pattern string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Dialect                        string
	Host                           string
	Port                           int
	User                           string
	Password                       string
	DBName                         string
	SSLMode                        string
	CloudSQLInstanceConnectionName string
	UsePrivateIP                   bool
}

// DefaultTermTypes is the RxNorm term-type whitelist for the concept set.
var DefaultTermTypes = []string{"BN", "IN", "MIN", "PIN", "SBD", "SBDC", "SBDF", "SBDFP", "SBDG", "SCD", "SCDC", "SCDF", "SCDG"}

var globalConfig *Config

// GetConfig returns the configuration set with SetConfig, or the defaults.
func GetConfig() *Config {
	if globalConfig != nil {
		return globalConfig
	}
	return Default()
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:      SourceDirectory,
			Directory: "../output/csv/",
			Extension: ".csv",
		},
		Vocabulary: VocabularyConfig{
			Path:      "./output/Metformin_RxNav_6809_table.csv",
			SkipLines: 2,
			TermTypes: append([]string(nil), DefaultTermTypes...),
		},
		Cohort: CohortConfig{
			Pattern: `\bdiab`,
		},
		Database: DatabaseConfig{
			Dialect: "postgres",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		LogLevel: "info",
		Format:   "text",
	}
}

// SetConfig sets the global configuration.
func SetConfig(cfg *Config) {
	globalConfig = cfg
}

// SetDefaults registers the defaults with v so that config files and
// environment variables can override any of them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("source", d.Source.Kind)
	v.SetDefault("data-dir", d.Source.Directory)
	v.SetDefault("extension", d.Source.Extension)
	v.SetDefault("vocabulary", d.Vocabulary.Path)
	v.SetDefault("vocabulary-skip", d.Vocabulary.SkipLines)
	v.SetDefault("term-types", d.Vocabulary.TermTypes)
	v.SetDefault("pattern", d.Cohort.Pattern)
	v.SetDefault("as-of", "")
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("format", d.Format)
	v.SetDefault("dialect", d.Database.Dialect)
	v.SetDefault("host", d.Database.Host)
	v.SetDefault("port", d.Database.Port)
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("database", "")
	v.SetDefault("sslmode", d.Database.SSLMode)
	v.SetDefault("cloudsql-instance-connection-name", "")
	v.SetDefault("cloudsql-use-private-ip", false)
}

// FromViper builds a Config from the resolved viper values.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Source: SourceConfig{
			Kind:      strings.ToLower(strings.TrimSpace(v.GetString("source"))),
			Directory: v.GetString("data-dir"),
			Extension: v.GetString("extension"),
		},
		Vocabulary: VocabularyConfig{
			Path:      v.GetString("vocabulary"),
			SkipLines: v.GetInt("vocabulary-skip"),
			TermTypes: v.GetStringSlice("term-types"),
		},
		Cohort: CohortConfig{
			Pattern: v.GetString("pattern"),
		},
		Database: DatabaseConfig{
			Dialect:                        v.GetString("dialect"),
			Host:                           v.GetString("host"),
			Port:                           v.GetInt("port"),
			User:                           v.GetString("username"),
			Password:                       v.GetString("password"),
			DBName:                         v.GetString("database"),
			SSLMode:                        v.GetString("sslmode"),
			CloudSQLInstanceConnectionName: v.GetString("cloudsql-instance-connection-name"),
			UsePrivateIP:                   v.GetBool("cloudsql-use-private-ip"),
		},
		LogLevel: v.GetString("log-level"),
		Format:   strings.ToLower(v.GetString("format")),
	}

	if asOf := strings.TrimSpace(v.GetString("as-of")); asOf != "" {
		t, err := time.Parse("2006-01-02", asOf)
		if err != nil {
			return nil, fmt.Errorf("invalid --as-of date %q (want YYYY-MM-DD): %w", asOf, err)
		}
		cfg.AsOf = t
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceDirectory:
		if c.Source.Directory == "" {
			return fmt.Errorf("--data-dir is required when --source=%s", SourceDirectory)
		}
	case SourceDatabase:
		if c.Database.Dialect == "" {
			return fmt.Errorf("--dialect is required when --source=%s", SourceDatabase)
		}
	default:
		return fmt.Errorf("unsupported source: %q (only %s, %s are supported)", c.Source.Kind, SourceDirectory, SourceDatabase)
	}
	if c.Vocabulary.SkipLines < 0 {
		return fmt.Errorf("--vocabulary-skip must not be negative, got %d", c.Vocabulary.SkipLines)
	}
	if strings.TrimSpace(c.Cohort.Pattern) == "" {
		return fmt.Errorf("--pattern must not be empty")
	}
	switch c.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format: %q (only text, json, yaml are supported)", c.Format)
	}
	return nil
}

// Today returns the censoring date truncated to midnight UTC.
func (c *Config) Today() time.Time {
	t := c.AsOf
	if t.IsZero() {
		t = time.Now()
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
