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
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/config"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/database"
	_ "github.com/GoogleCloudPlatform/cohort-extractor/internal/database/duckdb"
	_ "github.com/GoogleCloudPlatform/cohort-extractor/internal/database/mysql"
	_ "github.com/GoogleCloudPlatform/cohort-extractor/internal/database/postgres"
	_ "github.com/GoogleCloudPlatform/cohort-extractor/internal/database/sqlite"
	_ "github.com/GoogleCloudPlatform/cohort-extractor/internal/database/sqlserver"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/source"
)

// EnvPrefix prefixes the environment variables that override flags,
// e.g. COHORT_DATA_DIR.
const EnvPrefix = "COHORT"

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "cohort_extractor",
	Short: "Extract a diagnosis cohort and its medications from clinical tables",
	Long: `cohort_extractor loads patients, encounters, conditions and medications
tables, selects the subjects whose conditions match a diagnosis pattern, links
them to their encounters and to the medications of a drug vocabulary, and
summarizes their age by survival status.`,
	SilenceUsage:      true,
	PersistentPreRunE: initFlagsAndConfig,
}

// initFlagsAndConfig resolves flags, environment and config file into the
// global configuration and installs the logger.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if cfg.Source.Kind == config.SourceDatabase {
		if err := validateDialect(cfg.Database.Dialect); err != nil {
			return err
		}
	}

	logger, err := diag.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	config.SetConfig(cfg)

	if v.ConfigFileUsed() != "" {
		zap.L().Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
	}
	return nil
}

func validateDialect(dialect string) error {
	supportedDialects := database.SupportedDialects()
	for _, supportedDialect := range supportedDialects {
		if dialect == supportedDialect {
			return nil
		}
	}
	return fmt.Errorf("unsupported dialect: %s (only %s are supported)", dialect, strings.Join(supportedDialects, ", "))
}

func setupDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.New(ctx, cfg.Database, database.DefaultRetryOptions)
	if err != nil {
		zap.L().Error("Failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newSource builds the configured table source. The returned cleanup must be
// called once loading is done.
func newSource(ctx context.Context, cfg *config.Config, tables map[string][]string) (source.Source, func(), error) {
	switch cfg.Source.Kind {
	case config.SourceDatabase:
		db, err := setupDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := db.Close(); err != nil {
				zap.L().Warn("Failed to close database", zap.Error(err))
			}
		}
		return &source.Database{DB: db, Tables: tables}, cleanup, nil
	default:
		dir := source.NewDirectory(cfg.Source.Directory)
		if cfg.Source.Extension != "" {
			dir.Extension = cfg.Source.Extension
		}
		return dir, func() {}, nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer zap.L().Sync() //nolint:errcheck
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	d := config.Default()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml) - optional")

	// Input flags
	flags.String("source", d.Source.Kind, fmt.Sprintf("Table source (%s or %s)", config.SourceDirectory, config.SourceDatabase))
	flags.String("data-dir", d.Source.Directory, "Directory of exported tables, one file per table")
	flags.String("extension", d.Source.Extension, "File extension of the exported tables")
	flags.String("vocabulary", d.Vocabulary.Path, "RxNav table export of the drug vocabulary")
	flags.Int("vocabulary-skip", d.Vocabulary.SkipLines, "Preamble lines to skip in the vocabulary file")
	flags.StringSlice("term-types", d.Vocabulary.TermTypes, "RxNorm term types kept from the vocabulary")
	flags.String("pattern", d.Cohort.Pattern, "Case-insensitive regular expression matched against condition descriptions")
	flags.String("as-of", "", "Censoring date YYYY-MM-DD (defaults to today)")

	// Output flags
	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringP("format", "f", d.Format, "Output format (text, json, yaml)")

	// Database connection flags
	flags.String("dialect", d.Database.Dialect, "Database dialect when --source=database (postgres, mysql, sqlserver, sqlite, duckdb, cloudsqlpostgres, cloudsqlmysql, cloudsqlsqlserver)")
	flags.String("host", d.Database.Host, "Database host")
	flags.Int("port", d.Database.Port, "Database port")
	flags.String("username", "", "Database username")
	flags.String("password", "", "Database password")
	flags.String("database", "", "Database name, or file path for sqlite and duckdb")
	flags.String("sslmode", d.Database.SSLMode, "PostgreSQL sslmode")
	flags.String("cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects)")
	flags.Bool("cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	config.SetDefaults(v)
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(ageSummaryCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(vocabularyCmd)
}
