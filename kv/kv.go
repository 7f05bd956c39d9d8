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

// Package kv defines the contract a flat key/value store must satisfy for
// the river package to build an ordered index over it. An Adapter exposes
// exactly four operations: Get, Gets, Add, and CAS.
//
// Implementations of this interface must be safe for concurrent use by
// multiple goroutines, though the river package never issues concurrent
// calls against the same handle (see the package doc of river for the
// concurrency contract).
package kv

import (
	"context"
	"errors"
	"fmt"
)

// A Token is an opaque value returned by Gets and consumed by CAS. Its
// concrete type and meaning are private to the Adapter implementation that
// produced it; callers must never construct or inspect one.
type Token any

// Adapter is the flat store contract described in the package doc. No
// operations beyond these four are used by river.
type Adapter interface {
	// Get fetches the value stored at key. It reports ok == false, with a
	// nil error, if no value is present.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Gets fetches the value stored at key along with a Token that a later
	// CAS can use to detect whether the value has changed. It reports
	// ok == false, with a nil error, if no value is present.
	Gets(ctx context.Context, key string) (value []byte, tok Token, ok bool, err error)

	// Add stores value at key only if no value is currently present. It
	// reports ok == false, with a nil error, if a value was already
	// present (the store is left unchanged).
	Add(ctx context.Context, key string, value []byte) (ok bool, err error)

	// CAS stores value at key only if the value has not changed since tok
	// was produced by Gets. It reports ok == false, with a nil error, if
	// the value changed (the store is left unchanged).
	CAS(ctx context.Context, key string, value []byte, tok Token) (ok bool, err error)
}

// ErrBadToken is reported by an Adapter's CAS method when given a Token it
// did not itself produce, or one that has already been consumed by an
// implementation that single-shots tokens.
var ErrBadToken = errors.New("kv: token not recognized by this adapter")

// OpError records the operation and key involved in an Adapter failure that
// is not itself one of the expected ok/absent/exists/stale outcomes (those
// are reported through ordinary return values, never as errors).
type OpError struct {
	Op  string // "get", "gets", "add", or "cas"
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("kv: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Fail wraps err, if non-nil, as an *OpError for the given operation and
// key. It returns nil if err is nil.
func Fail(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Key: key, Err: err}
}
