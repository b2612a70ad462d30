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
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/config"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/database"
)

type postgresHandler struct{}

var _ database.DialectHandler = (*postgresHandler)(nil)

// CreateCloudSQLPool connects through the Cloud SQL connector with pgx.
func (h postgresHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	instance := cfg.CloudSQLInstanceConnectionName
	if instance == "" {
		return nil, fmt.Errorf("missing Cloud SQL instance connection name")
	}

	pgxCfg, err := pgx.ParseConfig(connectionURL(cfg.User, cfg.Password, "", 0, cfg.DBName, ""))
	if err != nil {
		return nil, fmt.Errorf("pgx.ParseConfig: %w", err)
	}

	var dialOpts []cloudsqlconn.DialOption
	if cfg.UsePrivateIP {
		dialOpts = append(dialOpts, cloudsqlconn.WithPrivateIP())
	}
	dialer, err := cloudsqlconn.NewDialer(context.Background(), cloudsqlconn.WithDefaultDialOptions(dialOpts...))
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}
	pgxCfg.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, instance)
	}

	dbPool, err := sql.Open("pgx", stdlib.RegisterConnConfig(pgxCfg))
	if err != nil {
		return nil, fmt.Errorf("sql.Open (cloudsql pgx): %w", err)
	}
	return dbPool, nil
}

// CreateStandardPool opens a lib/pq pool.
func (h postgresHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	dbPool, err := sql.Open("postgres", connectionURL(cfg.User, cfg.Password, cfg.Host, port, cfg.DBName, cfg.SSLMode))
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard postgres): %w", err)
	}
	return dbPool, nil
}

// connectionURL builds a postgres:// URL. An empty host leaves the address
// to a custom dialer.
func connectionURL(user, password, host string, port int, dbName, sslMode string) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, password),
		Path:   "/" + dbName,
	}
	if host != "" {
		u.Host = fmt.Sprintf("%s:%d", host, port)
	}
	if sslMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	}
	return u.String()
}

func (h postgresHandler) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

const listTablesQuery = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		AND table_type = 'BASE TABLE'
		ORDER BY table_name;`

const listColumnsQuery = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		AND table_name = $1
		ORDER BY ordinal_position;`

func (h postgresHandler) ListTables(db *database.DB) ([]string, error) {
	return db.QueryNames(listTablesQuery)
}

func (h postgresHandler) ListColumns(db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	return db.QueryColumns(tableName, listColumnsQuery, tableName)
}

func init() {
	database.RegisterDialectHandler("postgres", postgresHandler{})
	database.RegisterDialectHandler("cloudsqlpostgres", postgresHandler{})
}
