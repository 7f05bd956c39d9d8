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

// Package filekv implements the [kv.Adapter] interface using one file per
// key on a local filesystem, similar in spirit to a Git object store. It is
// intended for local development and single-process testing of rivers
// across process restarts; it is not a substitute for the distributed flat
// store the design targets.
//
// Values are stored snappy-compressed on disk: river leaf buckets are the
// hottest and largest values this store holds, and a heavily-populated
// bucket's packed byte form compresses well. CAS tokens are fingerprints
// of the on-disk (compressed) bytes, so a concurrent writer racing this
// one is detected regardless of which process last decompressed the file.
package filekv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/creachadair/atomicfile"
	"github.com/eastein/riverfish/codec/snappy"
	"github.com/eastein/riverfish/kv"
	"github.com/eastein/riverfish/storage/hexkey"
)

// Store implements [kv.Adapter] using a directory of files, one per key,
// sharded by a prefix of the hex-encoded key so that a single directory
// never accumulates one entry per logical key.
type Store struct {
	key hexkey.Config
}

// New creates a Store rooted at dir, which is created if it does not
// already exist.
func New(dir string) (*Store, error) {
	root := filepath.Clean(dir)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	return &Store{key: hexkey.Config{Prefix: root, Shard: 2}}, nil
}

func (s *Store) path(key string) string { return s.key.Encode(key) }

// Get implements part of [kv.Adapter].
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, kv.Fail("get", key, err)
	}
	data, err := snappy.Decompress(raw)
	if err != nil {
		return nil, false, kv.Fail("get", key, fmt.Errorf("decompress: %w", err))
	}
	return data, true, nil
}

// Gets implements part of [kv.Adapter]. The token is a fingerprint of the
// file's current on-disk (compressed) contents, so a CAS racing a
// concurrent writer on the same path detects the change even though the
// underlying filesystem has no native compare-and-swap primitive.
func (s *Store) Gets(_ context.Context, key string) ([]byte, kv.Token, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, false, nil
	} else if err != nil {
		return nil, nil, false, kv.Fail("gets", key, err)
	}
	data, err := snappy.Decompress(raw)
	if err != nil {
		return nil, nil, false, kv.Fail("gets", key, fmt.Errorf("decompress: %w", err))
	}
	return data, xxhash.Sum64(raw), true, nil
}

// Add implements part of [kv.Adapter].
func (s *Store) Add(_ context.Context, key string, value []byte) (bool, error) {
	path := s.path(key)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, kv.Fail("add", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, kv.Fail("add", key, err)
	}
	// A concurrent Add racing us to the same path loses the race for one
	// of the two writers; atomicfile's rename-into-place does not itself
	// detect that, so re-check for existence is inherent here and callers
	// must treat Add's "ok" result, not the absence of an error, as the
	// source of truth.
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := atomicfile.WriteData(path, snappy.Compress(value), 0o600); err != nil {
		return false, kv.Fail("add", key, err)
	}
	return true, nil
}

// CAS implements part of [kv.Adapter].
func (s *Store) CAS(_ context.Context, key string, value []byte, tok kv.Token) (bool, error) {
	path := s.path(key)
	cur, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, kv.Fail("cas", key, err)
	}
	want, ok := tok.(uint64)
	if !ok {
		return false, kv.ErrBadToken
	}
	if xxhash.Sum64(cur) != want {
		return false, nil
	}
	if err := atomicfile.WriteData(path, snappy.Compress(value), 0o600); err != nil {
		return false, kv.Fail("cas", key, err)
	}
	return true, nil
}
