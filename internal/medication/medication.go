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

// Package medication classifies medication rows against a concept code set.
package medication

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/vocab"
)

const (
	// ClassifiedTable names the table returned by Classify.
	ClassifiedTable = "medications_classified"

	// ColTotalCostRounded holds TOTALCOST rounded to a whole unit.
	ColTotalCostRounded = "TOTALCOST_ROUNDED"
)

// Classify keeps the medication rows whose CODE is in codes. When the table
// has a TOTALCOST column the result also carries TOTALCOST_ROUNDED. An
// absent table, or one without CODE, classifies to an empty table.
func Classify(meds *table.Table, codes vocab.ConceptCodeSet, dc *diag.Collector) *table.Table {
	if meds == nil {
		dc.Warn(diag.MissingInput, table.Medications, "No medications table, nothing to classify")
		return table.MustNew(ClassifiedTable)
	}
	if err := table.MedicationSchema.Check(meds); err != nil {
		dc.Warn(diag.MissingInput, meds.Name, "Medications unusable: %v", err)
		return table.MustNew(ClassifiedTable)
	}

	out := meds.Filter(ClassifiedTable, func(i int) bool {
		return codes.Contains(meds.Get(i, table.ColCode))
	})

	if out.HasColumn(table.ColTotalCost) {
		failed, err := addRoundedCosts(out)
		if err != nil {
			dc.Warn(diag.TypeCoercionFailure, meds.Name, "Could not add %s: %v", ColTotalCostRounded, err)
		} else if failed > 0 {
			dc.Warn(diag.TypeCoercionFailure, meds.Name, "%d %s value(s) could not be parsed and were set to %s",
				failed, table.ColTotalCost, table.NullMarker)
		}
	}

	dc.Logger().Info("Classified medications",
		zap.Int("medications", meds.Len()),
		zap.Int("codes", codes.Len()),
		zap.Int("matched", out.Len()))
	return out
}

// addRoundedCosts sets TOTALCOST_ROUNDED on t from its TOTALCOST column and
// returns the number of costs that could not be parsed.
func addRoundedCosts(t *table.Table) (int, error) {
	costs, err := t.Column(table.ColTotalCost)
	if err != nil {
		return 0, err
	}
	rounded, failed := RoundCosts(costs)
	if err := t.SetColumn(ColTotalCostRounded, rounded); err != nil {
		return 0, err
	}
	return failed, nil
}

// RoundCosts rounds each cost to zero decimal places, half to even (2.5 -> 2,
// 3.5 -> 4). Nulls stay null; unparseable values become null and are counted.
func RoundCosts(costs []table.Value) ([]table.Value, int) {
	out := make([]table.Value, len(costs))
	failed := 0
	for i, v := range costs {
		d, ok, err := toDecimal(v)
		switch {
		case err != nil:
			failed++
			out[i] = table.Null()
		case !ok:
			out[i] = table.Null()
		default:
			out[i] = table.Number(d.RoundBank(0).InexactFloat64())
		}
	}
	return out, failed
}

func toDecimal(v table.Value) (decimal.Decimal, bool, error) {
	switch v.Kind() {
	case table.KindNull:
		return decimal.Decimal{}, false, nil
	case table.KindNumber:
		f, _ := v.Float()
		return decimal.NewFromFloat(f), true, nil
	default:
		s := strings.TrimSpace(v.Key())
		if s == "" {
			return decimal.Decimal{}, false, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, false, err
		}
		return d, true, nil
	}
}
