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

// Package source turns external tabular data (a directory of CSV files or a
// SQL database) into a table.Registry.
package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

// Source loads every table it knows about. Unreadable tables are reported to
// the collector and skipped; only a source-wide failure is returned as an
// error.
type Source interface {
	Load(ctx context.Context, dc *diag.Collector) (*table.Registry, error)
}

// Directory loads every file with a recognized extension in a directory.
type Directory struct {
	Path      string
	Extension string
}

var _ Source = (*Directory)(nil)

// NewDirectory returns a Directory source recognizing ".csv" files.
func NewDirectory(path string) *Directory {
	return &Directory{Path: path, Extension: ".csv"}
}

// Load reads the directory. A missing directory yields an empty registry
// and a MissingInput warning, so the pipeline still produces (empty) results.
func (d *Directory) Load(ctx context.Context, dc *diag.Collector) (*table.Registry, error) {
	reg := table.NewRegistry()

	entries, err := os.ReadDir(d.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			dc.Warn(diag.MissingInput, "", "data directory %s does not exist", d.Path)
			return reg, nil
		}
		return nil, err
	}

	ext := strings.ToLower(d.Extension)
	if ext == "" {
		ext = ".csv"
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ext {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	for _, filename := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := table.TableName(filename)
		path := filepath.Join(d.Path, filename)

		t, err := ReadCSVFile(path, name, 0)
		if err != nil {
			dc.Warn(diag.LoadFailure, name, "Could not load or process %s: %v", filename, err)
			continue
		}
		if err := reg.Add(t); err != nil {
			dc.Warn(diag.LoadFailure, name, "Skipping %s: %v", filename, err)
			continue
		}
		dc.Logger().Debug("Loaded table", zap.String("table", name), zap.Int("rows", t.Len()), zap.Int("columns", len(t.Columns())))
	}

	dc.Logger().Info("Loaded data directory", zap.String("path", d.Path), zap.Int("tables", reg.Len()))
	return reg, nil
}
