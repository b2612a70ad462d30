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
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/config"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/report"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/vocab"
)

var vocabularyCmd = &cobra.Command{
	Use:     "vocabulary",
	Short:   "Show the concept codes selected from the drug vocabulary",
	Example: `./cohort_extractor vocabulary --vocabulary ./output/Metformin_RxNav_6809_table.csv --term-types SCD,SBD`,
	RunE:    runVocabulary,
}

func runVocabulary(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	dc := diag.NewCollector(zap.L())

	t := vocab.Load(cfg.Vocabulary.Path, cfg.Vocabulary.SkipLines, cfg.Vocabulary.TermTypes, dc)
	codes := vocab.Codes(t, dc)

	return report.NewWriter(cmd.OutOrStdout(), cfg.Format).Vocabulary(report.VocabularySummary{
		Path:      cfg.Vocabulary.Path,
		Codes:     codes.Len(),
		TermTypes: vocab.TermTypeCounts(t),
	})
}
