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

// Package hexkey implements hexadecimal sharding of store keys on a local
// filesystem, so that a directory holding one file per key does not
// accumulate every entry at the top level.
package hexkey

import (
	"cmp"
	"encoding/hex"
	"errors"
	"path"
	"strings"
)

// Config carries settings for the encoding and decoding of hex keys. The
// zero value is ready for use and encodes keys as plain hexadecimal
// strings with no sharding.
type Config struct {
	// Prefix, if set, is prepended to all keys, separated from the
	// remainder of the key by "/".
	Prefix string

	// Shard, if positive, specifies a prefix length for each hex-encoded
	// key that is split off into its own path segment. For example, if
	// Shard is 2, a key "012345" becomes "01/012345". If Shard <= 0, keys
	// are not partitioned.
	Shard int
}

// ErrNotMyKey is reported by Decode when given a key that does not match
// the parameters of the config.
var ErrNotMyKey = errors.New("key does not match config")

// Encode encodes key as a filesystem path according to c.
func (c Config) Encode(key string) string {
	if c.Shard <= 0 {
		// An empty key encodes as "-" here too, so that it does not collapse
		// into the prefix itself.
		return path.Join(c.Prefix, cmp.Or(hex.EncodeToString([]byte(key)), "-"))
	}
	tail := hex.EncodeToString([]byte(key))

	// Pad the shard label out to the desired length with "-", which
	// orders prior to any hexadecimal digit.
	shard := tail[:min(c.Shard, len(tail))]
	for len(shard) < c.Shard {
		shard += "-"
	}

	// An empty key encodes as "-": non-empty, but sorts before any
	// hexadecimal value.
	return path.Join(c.Prefix, shard, cmp.Or(tail, "-"))
}

// Decode recovers the original key from a path produced by Encode. If ekey
// does not match the expected format, it reports ErrNotMyKey.
func (c Config) Decode(ekey string) (string, error) {
	if c.Prefix != "" {
		tail, ok := strings.CutPrefix(ekey, c.Prefix+"/")
		if !ok {
			return "", ErrNotMyKey
		}
		ekey = tail
	}
	if c.Shard <= 0 {
		if ekey == "-" {
			return "", nil
		}
		key, err := hex.DecodeString(ekey)
		return string(key), err
	}
	pre, post, ok := strings.Cut(ekey, "/")
	if !ok || len(pre) != c.Shard || post == "" {
		return "", ErrNotMyKey
	}
	if post == "-" {
		return "", nil
	}
	key, err := hex.DecodeString(post)
	return string(key), err
}
