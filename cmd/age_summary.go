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
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/pipeline"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/report"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

var ageSummaryCmd = &cobra.Command{
	Use:     "age-summary",
	Short:   "Summarize patient age by survival status",
	Long:    `Computes each patient's age at death or at the --as-of date and prints count, mean, min and max per survival status.`,
	Example: `./cohort_extractor age-summary --data-dir ../output/csv/ --as-of 2024-01-01`,
	RunE:    runAgeSummary,
}

func runAgeSummary(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	ctx := cmd.Context()

	src, cleanup, err := newSource(ctx, cfg, map[string][]string{table.Patients: nil})
	if err != nil {
		return err
	}
	defer cleanup()

	dc := diag.NewCollector(zap.L())
	reg, err := src.Load(ctx, dc)
	if err != nil {
		return fmt.Errorf("failed to load tables: %w", err)
	}

	res := pipeline.Survival(reg, pipeline.OptionsFromConfig(cfg), dc)
	if err := report.NewWriter(cmd.OutOrStdout(), cfg.Format).Survival(res); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
