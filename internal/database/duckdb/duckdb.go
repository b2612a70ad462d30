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

// Package duckdb reads tables from a DuckDB database file. An empty database
// name opens an in-memory instance.
package duckdb

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/config"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/database"
)

type duckdbHandler struct{}

var _ database.DialectHandler = (*duckdbHandler)(nil)

func (h duckdbHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	return nil, fmt.Errorf("duckdb does not support Cloud SQL connections")
}

func (h duckdbHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DBName
	if dsn != "" {
		dsn += "?access_mode=read_only"
	}
	dbPool, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open (duckdb): %w", err)
	}
	return dbPool, nil
}

func (h duckdbHandler) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

const listTablesQuery = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		AND table_type = 'BASE TABLE'
		ORDER BY table_name`

const listColumnsQuery = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		AND table_name = ?
		ORDER BY ordinal_position`

func (h duckdbHandler) ListTables(db *database.DB) ([]string, error) {
	return db.QueryNames(listTablesQuery)
}

func (h duckdbHandler) ListColumns(db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	return db.QueryColumns(tableName, listColumnsQuery, tableName)
}

func init() {
	database.RegisterDialectHandler("duckdb", duckdbHandler{})
}
