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

// Package memkv implements the [kv.Adapter] interface using an in-memory
// map. It is intended for tests and local experimentation, never for
// production use: nothing is persisted and the whole store is lost when
// the process exits.
package memkv

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/eastein/riverfish/kv"
)

// fingerprint is the CAS token used by Store: a hash of the stored bytes
// salted with a per-key revision counter, so that two writes which happen
// to produce byte-identical content still invalidate a stale Gets token
// (the revision counter changes even when the hash does not).
type fingerprint struct {
	rev  uint64
	hash uint64
}

// Store implements [kv.Adapter] using a dictionary guarded by a mutex. A
// zero value is ready for use.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
	rev  map[string]uint64
}

// New constructs an empty in-memory adapter.
func New() *Store {
	return &Store{data: make(map[string][]byte), rev: make(map[string]uint64)}
}

// Get implements part of [kv.Adapter].
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Gets implements part of [kv.Adapter].
func (s *Store) Gets(_ context.Context, key string) ([]byte, kv.Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil, false, nil
	}
	tok := fingerprint{rev: s.rev[key], hash: xxhash.Sum64(v)}
	return append([]byte(nil), v...), tok, true, nil
}

// Add implements part of [kv.Adapter].
func (s *Store) Add(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	if s.data == nil {
		s.data = make(map[string][]byte)
		s.rev = make(map[string]uint64)
	}
	s.data[key] = append([]byte(nil), value...)
	s.rev[key]++
	return true, nil
}

// CAS implements part of [kv.Adapter].
func (s *Store) CAS(_ context.Context, key string, value []byte, tok kv.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[key]
	if !ok {
		return false, nil // nothing to compare-and-swap
	}
	want, ok := tok.(fingerprint)
	if !ok {
		return false, kv.ErrBadToken
	}
	got := fingerprint{rev: s.rev[key], hash: xxhash.Sum64(cur)}
	if got != want {
		return false, nil // stale
	}
	s.data[key] = append([]byte(nil), value...)
	s.rev[key]++
	return true, nil
}

// Len reports the number of keys currently stored. It is not part of
// [kv.Adapter]; river never needs it, but it is convenient for tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Snapshot returns a copy of every key currently stored, for test
// inspection. The returned map does not alias the store's internal state.
func (s *Store) Snapshot() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		out[k] = append([]byte(nil), v...)
	}
	return out
}
