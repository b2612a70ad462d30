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
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/config"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/report"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/utils"
)

var tablesCmd = &cobra.Command{
	Use:     "tables",
	Short:   "List the loaded tables and their columns",
	Long:    `Loads the configured source and prints every table name with its (upper-cased) column names.`,
	Example: `./cohort_extractor tables --data-dir ../output/csv/ --tables "patients[ID,BIRTHDATE],conditions"`,
	RunE:    runTables,
}

func runTables(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	ctx := cmd.Context()

	tablesFlag, _ := cmd.Flags().GetString("tables")
	filters, err := utils.ParseTablesFlag(tablesFlag)
	if err != nil {
		return fmt.Errorf("invalid --tables value: %w", err)
	}

	src, cleanup, err := newSource(ctx, cfg, filters)
	if err != nil {
		return err
	}
	defer cleanup()

	dc := diag.NewCollector(zap.L())
	reg, err := src.Load(ctx, dc)
	if err != nil {
		return fmt.Errorf("failed to load tables: %w", err)
	}

	listing := utils.FilterSchema(reg.Schema(), filters)
	return report.NewWriter(cmd.OutOrStdout(), cfg.Format).Tables(listing)
}

func init() {
	var tables string

	// Flags for tables command
	tablesCmd.Flags().StringVar(&tables, "tables", "", "Comma-separated list of tables, optionally with columns in brackets, e.g. \"patients[ID,BIRTHDATE],conditions\"")
}
