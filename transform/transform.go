// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transform implements the closed set of key transforms ("KTR")
// that rivers may use to map a user-supplied key of any JSON-like type to
// the integer sort-key used by the index. Transforms are persisted by
// symbolic name and resolved through a static table, never by reflection.
package transform

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
)

// A Func maps a user key to an integer sort-key. It must be a total
// function: every value a caller might legitimately pass as a user key
// must produce a result, or Func must return an error that the caller can
// surface as KeyTransformIncompatible-adjacent to the offending key.
type Func func(userKey any) (int64, error)

// ErrUnknownTransform is reported by Lookup for a name not in the static
// table.
var ErrUnknownTransform = errors.New("transform: unknown key transform")

// Names of the built-in transforms, as persisted in a river descriptor's
// KTR field.
const (
	StringCRC = "stringcrc"
	AllZero   = "allzero"
	Cast      = "cast"
)

var table = map[string]Func{
	StringCRC: stringCRC,
	AllZero:   allZero,
	Cast:      cast,
}

// Lookup resolves name to its Func. It reports ErrUnknownTransform if name
// is not one of the built-in transforms.
func Lookup(name string) (Func, error) {
	f, ok := table[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, name)
	}
	return f, nil
}

// stringCRC hashes a string user key with CRC-32 (IEEE polynomial). It is
// the transform used when rivers are keyed by arbitrary strings.
func stringCRC(userKey any) (int64, error) {
	s, ok := userKey.(string)
	if !ok {
		return 0, fmt.Errorf("stringcrc: user key %v is not a string", userKey)
	}
	sum := crc32.ChecksumIEEE([]byte(s)) & 0xffffffff
	return int64(sum), nil
}

// allZero maps every user key to the sort-key 0. It exists to demonstrate
// (and let callers rely on) the fact that UNQ uniqueness is enforced per
// user-key, not per sort-key: every record collides into the same bucket,
// but distinct user keys still coexist there.
func allZero(any) (int64, error) { return 0, nil }

// cast parses a user key that is already a decimal integer, in string or
// numeric form.
func cast(userKey any) (int64, error) {
	switch v := userKey.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cast: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cast: user key %v has unsupported type %T", userKey, userKey)
	}
}
