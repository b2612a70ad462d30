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
package database

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryOptions controls how New retries a failing ping.
type RetryOptions struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryOptions is what the CLI connects with.
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:       3,
	InitialBackoff:    100 * time.Millisecond,
	MaxBackoff:        2 * time.Second,
	BackoffMultiplier: 2.0,
}

// backoff returns the wait after the given zero-based attempt.
func (o RetryOptions) backoff(attempt int) time.Duration {
	d := time.Duration(float64(o.InitialBackoff) * math.Pow(o.BackoffMultiplier, float64(attempt)))
	if o.MaxBackoff > 0 && d > o.MaxBackoff {
		return o.MaxBackoff
	}
	return d
}

// pingWithRetry pings pool until it answers, the attempts run out or ctx is
// done. Every ping failure is an *ErrConnection.
func pingWithRetry(ctx context.Context, pool *sql.DB, dialect string, opts RetryOptions) error {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return &ErrCancelled{Msg: "connection cancelled", Err: ctx.Err()}
		}

		err := pool.PingContext(ctx)
		if err == nil {
			return nil
		}
		lastErr = &ErrConnection{Msg: "ping failed for dialect " + dialect, Err: err}
		if errors.Is(err, context.Canceled) || attempt == attempts-1 {
			break
		}

		wait := opts.backoff(attempt)
		zap.L().Warn("Database ping failed, retrying",
			zap.String("dialect", dialect),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ErrCancelled{Msg: "connection cancelled during backoff", Err: ctx.Err()}
		case <-timer.C:
		}
	}
	return lastErr
}
