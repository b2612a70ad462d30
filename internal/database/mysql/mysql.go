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
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/config"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/database"
)

type mysqlHandler struct{}

var _ database.DialectHandler = (*mysqlHandler)(nil)

// driverConfig holds the settings shared by both pools. ParseTime makes
// DATE and DATETIME columns scan as time.Time.
func driverConfig(cfg config.DatabaseConfig) *mysql.Config {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.DBName = cfg.DBName
	c.AllowNativePasswords = true
	c.ParseTime = true
	return c
}

// CreateCloudSQLPool registers a per-instance network that dials through the
// Cloud SQL connector.
func (h mysqlHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	instance := cfg.CloudSQLInstanceConnectionName
	if cfg.User == "" || cfg.DBName == "" || instance == "" {
		return nil, fmt.Errorf("missing required Cloud SQL connection parameter (username, database, instance)")
	}

	dialer, err := cloudsqlconn.NewDialer(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}
	var dialOpts []cloudsqlconn.DialOption
	if cfg.UsePrivateIP {
		dialOpts = append(dialOpts, cloudsqlconn.WithPrivateIP())
	}

	network := "cloudsql-" + instance
	mysql.RegisterDialContext(network, func(ctx context.Context, _ string) (net.Conn, error) {
		conn, err := dialer.Dial(ctx, instance, dialOpts...)
		if err != nil {
			zap.L().Error("Cloud SQL dial failed", zap.String("instance", instance), zap.Error(err))
		}
		return conn, err
	})

	c := driverConfig(cfg)
	c.Net = network
	c.Addr = instance
	dbPool, err := sql.Open("mysql", c.FormatDSN())
	if err != nil {
		mysql.DeregisterDialContext(network)
		dialer.Close()
		return nil, fmt.Errorf("sql.Open (cloudsql mysql): %w", err)
	}
	return dbPool, nil
}

func (h mysqlHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	c := driverConfig(cfg)
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	dbPool, err := sql.Open("mysql", c.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard mysql): %w", err)
	}
	return dbPool, nil
}

func (h mysqlHandler) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

const (
	listTablesQuery  = "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"
	listColumnsQuery = `
		  SELECT COLUMN_NAME, COLUMN_TYPE
		  FROM information_schema.COLUMNS
		  WHERE TABLE_SCHEMA = DATABASE()
			AND TABLE_NAME = ?
		  ORDER BY ORDINAL_POSITION;`
)

func (h mysqlHandler) ListTables(db *database.DB) ([]string, error) {
	return db.QueryNames(listTablesQuery)
}

func (h mysqlHandler) ListColumns(db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	return db.QueryColumns(tableName, listColumnsQuery, tableName)
}

func init() {
	database.RegisterDialectHandler("mysql", mysqlHandler{})
	database.RegisterDialectHandler("cloudsqlmysql", mysqlHandler{})
}
