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
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/join"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/pipeline"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/report"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the full cohort extraction",
	Long: `Loads every table, selects the diagnosis cohort, links it to encounters and
classified medications, validates the linkage and prints the summary.
A linkage that does not have one row per cohort encounter aborts the run.`,
	Example: `./cohort_extractor extract --data-dir ../output/csv/ --vocabulary ./output/Metformin_RxNav_6809_table.csv
./cohort_extractor extract --source database --dialect postgres --host localhost --port 5432 --username user --password pass --database synthea -f json`,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	ctx := cmd.Context()

	zap.L().Info("Loading inputs",
		zap.String("source", cfg.Source.Kind),
		zap.String("vocabulary", cfg.Vocabulary.Path),
		zap.String("pattern", cfg.Cohort.Pattern))

	src, cleanup, err := newSource(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	dc := diag.NewCollector(zap.L())
	res, err := pipeline.Run(ctx, src, pipeline.OptionsFromConfig(cfg), dc)
	if err != nil {
		if join.IsCardinalityError(err) {
			zap.L().Error("Join cardinality violation", zap.Error(err))
		}
		return fmt.Errorf("extraction failed: %w", err)
	}

	if err := report.NewWriter(cmd.OutOrStdout(), cfg.Format).Extraction(res); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	zap.L().Info("Extraction completed", zap.String("run_id", res.RunID.String()))
	return nil
}
