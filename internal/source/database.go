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
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/database"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

// Database loads every base table of a SQL database. It only reads.
type Database struct {
	DB database.DBAdapter
	// Tables restricts the load to these table names when non-empty.
	Tables map[string][]string
}

var _ Source = (*Database)(nil)

// ErrNoTables is returned when a database has no base table to read.
var ErrNoTables = errors.New("no tables found")

func (d *Database) Load(ctx context.Context, dc *diag.Collector) (*table.Registry, error) {
	names, err := d.DB.ListTables()
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("database %s: %w", d.DB.GetConfig().DBName, ErrNoTables)
	}

	reg := table.NewRegistry()
	for _, name := range names {
		if len(d.Tables) > 0 {
			if _, ok := d.Tables[strings.ToLower(name)]; !ok {
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, err := d.DB.ReadTable(ctx, name)
		if err != nil {
			dc.Warn(diag.LoadFailure, name, "Could not load table %s: %v", name, err)
			continue
		}
		if err := reg.Add(t); err != nil {
			dc.Warn(diag.LoadFailure, name, "Skipping table %s: %v", name, err)
			continue
		}
		dc.Logger().Debug("Loaded table", zap.String("table", t.Name), zap.Int("rows", t.Len()))
	}

	cfg := d.DB.GetConfig()
	dc.Logger().Info("Loaded database tables",
		zap.String("dialect", cfg.Dialect),
		zap.String("database", cfg.DBName),
		zap.Int("tables", reg.Len()))
	return reg, nil
}
