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
package table

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// NullMarker is how a null cell is rendered for display.
const NullMarker = "NA"

const dateLayout = "2006-01-02"

// ErrNullValue is returned when a typed accessor is called on a null cell.
var ErrNullValue = errors.New("value is null")

// Kind identifies the scalar type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is a single typed cell. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	date time.Time
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Date(t time.Time) Value { return Value{kind: KindDate, date: t.UTC()} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Key returns the canonical string form used for membership tests and join
// keys. Integral numbers render without a fractional part so that 860975,
// 860975.0, "860975" and "860975.0" share a key. Null has the empty key.
func (v Value) Key() string {
	switch v.kind {
	case KindString:
		return stringKey(v.str)
	case KindNumber:
		return formatNumber(v.num)
	case KindDate:
		return formatDate(v.date)
	default:
		return ""
	}
}

// String renders the value for display, using NullMarker for nulls.
func (v Value) String() string {
	if v.kind == KindNull {
		return NullMarker
	}
	if v.kind == KindString {
		return v.str
	}
	return v.Key()
}

// Float returns the value as a number. Strings are parsed.
func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number: %w", v.str, err)
		}
		return f, nil
	case KindDate:
		return 0, fmt.Errorf("cannot convert date %s to number", formatDate(v.date))
	default:
		return 0, ErrNullValue
	}
}

// Time returns the value as a UTC timestamp. Strings are parsed leniently
// (ISO dates, RFC3339 timestamps and the other layouts dateparse knows).
func (v Value) Time() (time.Time, error) {
	switch v.kind {
	case KindDate:
		return v.date, nil
	case KindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return time.Time{}, ErrNullValue
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot convert %q to date: %w", v.str, err)
		}
		return t.UTC(), nil
	case KindNumber:
		return time.Time{}, fmt.Errorf("cannot convert number %s to date", formatNumber(v.num))
	default:
		return time.Time{}, ErrNullValue
	}
}

// Equal reports whether two values share the same canonical key and are
// both non-null.
func (v Value) Equal(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return false
	}
	return v.Key() == o.Key()
}

// stringKey trims s and rewrites a decimal literal with an integral value,
// such as a NUMERIC column read as text, the way formatNumber renders it.
func stringKey(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") || !isDecimalLiteral(s) {
		return s
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) >= 1e15 {
		return s
	}
	return formatNumber(f)
}

func isDecimalLiteral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		default:
			return false
		}
	}
	return digits > 0 && strings.Count(s, ".") == 1
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}
