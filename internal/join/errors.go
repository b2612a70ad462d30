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
package join

import (
	"errors"
	"fmt"
)

// CardinalityError is the only fatal error of the pipeline: the subject to
// event linkage does not have exactly one row per restricted event.
type CardinalityError struct {
	Table    string
	Expected int
	Got      int
	Msg      string
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("%s: %s has %d row(s), linkage has %d", e.Msg, e.Table, e.Expected, e.Got)
}

// IsCardinalityError reports whether err is or wraps a *CardinalityError.
func IsCardinalityError(err error) bool {
	var ce *CardinalityError
	return errors.As(err, &ce)
}
