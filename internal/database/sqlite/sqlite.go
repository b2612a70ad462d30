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

// Package sqlite reads tables from a SQLite file, e.g. a Synthea export
// loaded with the sqlite3 shell. The file path is taken from the database name.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/config"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/database"
)

type sqliteHandler struct{}

var _ database.DialectHandler = (*sqliteHandler)(nil)

func (h sqliteHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	return nil, fmt.Errorf("sqlite does not support Cloud SQL connections")
}

// CreateStandardPool opens cfg.DBName read-only.
func (h sqliteHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DBName == "" {
		return nil, fmt.Errorf("sqlite requires a database file path (--database)")
	}
	dsn := cfg.DBName
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = "file:" + dsn + "?mode=ro"
	}
	dbPool, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open (sqlite3): %w", err)
	}
	return dbPool, nil
}

func (h sqliteHandler) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

const (
	listTablesQuery  = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	listColumnsQuery = "SELECT name, type FROM pragma_table_info(?) ORDER BY cid"
)

func (h sqliteHandler) ListTables(db *database.DB) ([]string, error) {
	return db.QueryNames(listTablesQuery)
}

func (h sqliteHandler) ListColumns(db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	return db.QueryColumns(tableName, listColumnsQuery, tableName)
}

func init() {
	database.RegisterDialectHandler("sqlite", sqliteHandler{})
}
