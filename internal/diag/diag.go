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

// Package diag carries the non-fatal side of the error taxonomy. Components
// report recoverable anomalies to a Collector, which logs them and keeps them
// for the pipeline result.
package diag

import (
	"fmt"

	"go.uber.org/zap"
)

// Kind classifies a recoverable anomaly.
type Kind string

const (
	// MissingInput: a table or column is absent; the affected branch
	// degrades to an empty result.
	MissingInput Kind = "missing_input"
	// LoadFailure: a source file or table could not be read and was skipped.
	LoadFailure Kind = "load_failure"
	// TypeCoercionFailure: a single field could not be parsed and was nulled.
	TypeCoercionFailure Kind = "type_coercion"
)

// Warning is one recorded anomaly.
type Warning struct {
	Kind  Kind   `json:"kind" yaml:"kind"`
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
	Msg   string `json:"msg" yaml:"msg"`
}

func (w Warning) String() string {
	if w.Table == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Msg)
	}
	return fmt.Sprintf("%s[%s]: %s", w.Kind, w.Table, w.Msg)
}

// Collector logs warnings to the diagnostic stream and keeps them in order.
// A nil *Collector logs through the global zap logger and records nothing.
type Collector struct {
	log      *zap.Logger
	warnings []Warning
}

// NewCollector returns a collector writing to log; a nil logger falls back
// to zap.L().
func NewCollector(log *zap.Logger) *Collector {
	return &Collector{log: log}
}

func (c *Collector) logger() *zap.Logger {
	if c == nil || c.log == nil {
		return zap.L()
	}
	return c.log
}

// Warn records a warning and writes it to the log.
func (c *Collector) Warn(kind Kind, tableName, format string, args ...interface{}) {
	w := Warning{Kind: kind, Table: tableName, Msg: fmt.Sprintf(format, args...)}
	c.logger().Warn(w.Msg, zap.String("kind", string(kind)), zap.String("table", tableName))
	if c != nil {
		c.warnings = append(c.warnings, w)
	}
}

// Logger exposes the underlying logger for info/debug messages.
func (c *Collector) Logger() *zap.Logger { return c.logger() }

// Warnings returns a copy of the recorded warnings.
func (c *Collector) Warnings() []Warning {
	if c == nil {
		return nil
	}
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Count returns how many warnings of the given kind were recorded.
func (c *Collector) Count(kind Kind) int {
	if c == nil {
		return 0
	}
	n := 0
	for _, w := range c.warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}
