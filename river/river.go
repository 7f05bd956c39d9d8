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

// Package river implements the ordered, sharded, multi-level index
// ("river") described by the design: a River stores records ("fish") --
// arbitrary field maps tagged with an integer sort key -- over a flat
// key/value store that supports only Get, Gets, Add, and CAS (see
// [github.com/eastein/riverfish/kv]).
//
// A *River value is a lightweight handle: the authoritative state lives
// entirely in the underlying store. A handle caches its descriptor's IND,
// KTR, and UNQ for its lifetime and carries its own iteration options; it
// is not safe for concurrent use by multiple goroutines (callers that need
// concurrency should open one handle per concurrent context, mirroring the
// one-handle-per-connection discipline of the store it sits on).
package river

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/creachadair/msync"

	"github.com/eastein/riverfish/codec"
	"github.com/eastein/riverfish/kv"
	"github.com/eastein/riverfish/riverkey"
	"github.com/eastein/riverfish/transform"
)

// DefaultLevels is the default IND used when Options.IND is nil.
var DefaultLevels = []int64{10_000_000, 1_000_000, 100_000, 10_000}

// CRCLevels is a preset IND tuned for stringcrc-transformed rivers, whose
// sort-keys are uniformly distributed over the full uint32 range.
var CRCLevels = []int64{430_000_000, 4_300_000, 43_000, 430}

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,200}$`)

// Options configures a river at creation time (spec §6).
type Options struct {
	IND []int64 // strictly decreasing positive granularities; default DefaultLevels
	KTR string  // key transform name, or "" for none
	UNQ bool    // enforce uniqueness of user keys
}

// River is a handle to a named, ordered collection of records.
type River struct {
	adapter kv.Adapter
	name    string
	keys    riverkey.Scheme

	ind  []int64
	ktr  string
	xfrm transform.Func // nil if ktr == ""
	unq  bool

	iter iterOptions

	// changed is set after every successful Add, so that a consumer polling
	// for new arrivals (e.g. a re-run of Lowerbound(lastSeen).Records) can
	// wait on Changed() instead of busy-polling. It is shared across every
	// view derived from the same Create/Open call via clone.
	changed *msync.Flag[any]
}

type iterOptions struct {
	hasLower, hasUpper, hasReverse bool
	lower, upper                   int64
	reverse                        bool
}

// Name reports the river's name.
func (r *River) Name() string { return r.name }

// Levels reports the river's index granularities, coarsest first.
func (r *River) Levels() []int64 { return append([]int64(nil), r.ind...) }

// Unique reports whether the river enforces uniqueness of user keys.
func (r *River) Unique() bool { return r.unq }

func validateIND(ind []int64) error {
	if len(ind) < 1 {
		return fmt.Errorf("river: IND must have at least one level")
	}
	for i, g := range ind {
		if g <= 0 {
			return fmt.Errorf("river: IND[%d] = %d is not positive", i, g)
		}
		if i > 0 && g >= ind[i-1] {
			return fmt.Errorf("river: IND is not strictly decreasing at index %d", i)
		}
	}
	return nil
}

// Create creates a new, empty river named name on adapter and returns a
// handle to it. It fails with ErrRiverAlreadyExists, leaving the store
// unchanged, if a river of that name already exists.
func Create(ctx context.Context, adapter kv.Adapter, name string, opts Options) (*River, error) {
	if !nameRE.MatchString(name) {
		return nil, fmt.Errorf("river: invalid river name %q", name)
	}
	ind := opts.IND
	if ind == nil {
		ind = DefaultLevels
	}
	if err := validateIND(ind); err != nil {
		return nil, err
	}
	var xfrm transform.Func
	if opts.KTR != "" {
		f, err := transform.Lookup(opts.KTR)
		if err != nil {
			return nil, fmt.Errorf("river: %w: %w", ErrKeyTransformIncompatible, err)
		}
		xfrm = f
	}

	r := &River{
		adapter: adapter,
		name:    name,
		keys:    riverkey.For(name),
		ind:     append([]int64(nil), ind...),
		ktr:     opts.KTR,
		xfrm:    xfrm,
		unq:     opts.UNQ,
		changed: msync.NewFlag[any](),
	}

	desc := &descriptor{IND: r.ind, KTR: r.ktr, UNQ: r.unq}
	data, err := desc.pack()
	if err != nil {
		return nil, err
	}
	ok, err := adapter.Add(ctx, r.keys.River(), data)
	if err != nil {
		return nil, kv.Fail("add", r.keys.River(), err)
	}
	if !ok {
		return nil, ErrRiverAlreadyExists
	}
	return r, nil
}

// Open opens the existing river named name on adapter. It fails with
// ErrRiverDoesNotExist if no such river exists, or
// ErrKeyTransformIncompatible if the stored descriptor names a key
// transform this build does not recognize.
func Open(ctx context.Context, adapter kv.Adapter, name string) (*River, error) {
	keys := riverkey.For(name)
	data, ok, err := adapter.Get(ctx, keys.River())
	if err != nil {
		return nil, kv.Fail("get", keys.River(), err)
	}
	if !ok {
		return nil, ErrRiverDoesNotExist
	}
	desc, err := unpackDescriptor(data)
	if err != nil {
		return nil, err
	}
	var xfrm transform.Func
	if desc.KTR != "" {
		f, err := transform.Lookup(desc.KTR)
		if err != nil {
			return nil, fmt.Errorf("river: %w: %w", ErrKeyTransformIncompatible, err)
		}
		xfrm = f
	}
	return &River{
		adapter: adapter,
		name:    name,
		keys:    keys,
		ind:     desc.IND,
		ktr:     desc.KTR,
		xfrm:    xfrm,
		unq:     desc.UNQ,
		changed: msync.NewFlag[any](),
	}, nil
}

// Changed reports a channel that becomes ready after this handle's first
// successful Add. It is shared with every view derived from this handle
// via Reverse, Lowerbound, or Upperbound, so a consumer can hold a single
// channel to learn that some insert has landed since it last iterated,
// without re-polling the store.
func (r *River) Changed() <-chan struct{} { return r.changed.Ready() }

// clone returns a shallow copy of r, for building iteration-option views.
func (r *River) clone() *River {
	nr := *r
	return &nr
}

// Reverse returns a new handle that iterates in descending sort-key order.
// Calling Reverse twice (directly or via composition) fails
// ErrIterationOptions.
func (r *River) Reverse() (*River, error) {
	if r.iter.hasReverse {
		return nil, ErrIterationOptions
	}
	nr := r.clone()
	nr.iter.hasReverse = true
	nr.iter.reverse = true
	return nr, nil
}

// Lowerbound returns a new handle that only yields records with sort-key
// >= the transformed form of userKey. Calling Lowerbound twice fails
// ErrIterationOptions.
func (r *River) Lowerbound(userKey any) (*River, error) {
	k, err := r.sortKeyOf(userKey)
	if err != nil {
		return nil, err
	}
	return r.lowerboundKey(k)
}

// LowerboundTransformed is like Lowerbound, but key is already a
// transformed sort-key (spec §4.3.5's key_transformed flag).
func (r *River) LowerboundTransformed(key int64) (*River, error) {
	return r.lowerboundKey(key)
}

func (r *River) lowerboundKey(k int64) (*River, error) {
	if r.iter.hasLower {
		return nil, ErrIterationOptions
	}
	nr := r.clone()
	nr.iter.hasLower = true
	nr.iter.lower = k
	return nr, nil
}

// Upperbound returns a new handle that only yields records with sort-key
// <= the transformed form of userKey. Calling Upperbound twice fails
// ErrIterationOptions.
func (r *River) Upperbound(userKey any) (*River, error) {
	k, err := r.sortKeyOf(userKey)
	if err != nil {
		return nil, err
	}
	return r.upperboundKey(k)
}

// UpperboundTransformed is like Upperbound, but key is already a
// transformed sort-key.
func (r *River) UpperboundTransformed(key int64) (*River, error) {
	return r.upperboundKey(key)
}

func (r *River) upperboundKey(k int64) (*River, error) {
	if r.iter.hasUpper {
		return nil, ErrIterationOptions
	}
	nr := r.clone()
	nr.iter.hasUpper = true
	nr.iter.upper = k
	return nr, nil
}

// sortKeyOf transforms a user key into a sort-key using the river's KTR,
// or, if the river has no transform, converts an int, int64, or float64
// key to int64 (a float64 is truncated) and rejects any other type.
func (r *River) sortKeyOf(userKey any) (int64, error) {
	if r.xfrm != nil {
		return r.xfrm(userKey)
	}
	return asInt64(userKey)
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("river: key %v (%T) is not an integer and no key transform is configured", v, v)
	}
}

// Add inserts a fish into the river. record must contain a "KEY" field
// (the user key) and no field names beginning with "_". See the package
// doc and the design's §4.3.3 for the full insertion protocol, including
// the ContentionError / ErrRiverDeleted / ErrRiverKeyAlreadyExists outcomes.
func (r *River) Add(ctx context.Context, record map[string]any) error {
	for k := range record {
		if len(k) > 0 && k[0] == '_' {
			return fmt.Errorf("%w: %q", ErrDisallowedMetadataKey, k)
		}
	}
	userKey, ok := record["KEY"]
	if !ok {
		return fmt.Errorf("river: record missing required KEY field")
	}

	stored := make(map[string]any, len(record)+1)
	for k, v := range record {
		stored[k] = v
	}

	var sortKey int64
	var err error
	if r.xfrm != nil {
		sortKey, err = r.xfrm(userKey)
		if err != nil {
			return fmt.Errorf("river: transform: %w", err)
		}
		stored["_KEY"] = userKey
		stored["KEY"] = sortKey
	} else {
		sortKey, err = asInt64(userKey)
		if err != nil {
			return err
		}
		stored["KEY"] = sortKey
	}

	riverNodeKey := r.keys.River()
	_, _, ok, err := r.adapter.Gets(ctx, riverNodeKey)
	if err != nil {
		return kv.Fail("gets", riverNodeKey, err)
	}
	if !ok {
		return ErrRiverDeleted
	}

	for i := 0; i < len(r.ind)-1; i++ {
		if err := r.insertInterior(ctx, r.ind[i], sortKey); err != nil {
			return err
		}
	}
	if err := r.insertLeaf(ctx, r.ind[len(r.ind)-1], sortKey, stored); err != nil {
		return err
	}

	if err := r.widenRiverNode(ctx, riverNodeKey, sortKey); err != nil {
		return err
	}
	r.changed.Set(nil)
	return nil
}

func (r *River) insertInterior(ctx context.Context, g, k int64) error {
	return widenInterior(ctx, r.adapter, r.keys, g, k)
}

// widenInterior widens the interior node at granularity g covering
// sort-key k so that its [Fin,Lin] includes k, creating the node if it
// does not yet exist. This is the single CAS-widen primitive shared by
// Add's insertion path and riversweep's reconciliation walk (spec §4.3.3,
// supplemented by the Design Note "Clutter recovery").
func widenInterior(ctx context.Context, adapter kv.Adapter, keys riverkey.Scheme, g, k int64) error {
	key := keys.Node(g, k)
	data, tok, ok, err := adapter.Gets(ctx, key)
	if err != nil {
		return kv.Fail("gets", key, err)
	}
	if !ok {
		node := &interiorNode{Fin: k, Lin: k}
		packed, err := node.pack()
		if err != nil {
			return err
		}
		added, err := adapter.Add(ctx, key, packed)
		if err != nil {
			return kv.Fail("add", key, err)
		}
		if !added {
			return contention(key, k)
		}
		return nil
	}
	node, err := unpackInteriorNode(data)
	if err != nil {
		return err
	}
	widened, changed := node.widen(k)
	if !changed {
		return nil
	}
	packed, err := widened.pack()
	if err != nil {
		return err
	}
	casOK, err := adapter.CAS(ctx, key, packed, tok)
	if err != nil {
		return kv.Fail("cas", key, err)
	}
	if !casOK {
		return contention(key, k)
	}
	return nil
}

func (r *River) insertLeaf(ctx context.Context, g, k int64, record map[string]any) error {
	key := r.keys.Node(g, k)
	data, tok, ok, err := r.adapter.Gets(ctx, key)
	if err != nil {
		return kv.Fail("gets", key, err)
	}
	if !ok {
		node := leafNode{k: {record}}
		packed, err := node.pack()
		if err != nil {
			return err
		}
		added, err := r.adapter.Add(ctx, key, packed)
		if err != nil {
			return kv.Fail("add", key, err)
		}
		if !added {
			return contention(key, k)
		}
		return nil
	}
	node, err := unpackLeafNode(data)
	if err != nil {
		return err
	}
	list := node[k]

	// The idempotent re-drive check runs before the UNQ collision scan: a
	// record byte-equal to one already stored is the caller's own earlier
	// insert seen again, not a distinct value colliding on the same user
	// key, and must succeed as a no-op even under UNQ.
	eq, err := recordPresent(list, record)
	if err != nil {
		return err
	}
	if eq {
		return nil // idempotent re-drive
	}

	if r.unq {
		if r.xfrm != nil {
			incoming := record["_KEY"]
			for _, existing := range list {
				if valuesEqual(existing["_KEY"], incoming) {
					return ErrRiverKeyAlreadyExists
				}
			}
		} else if len(list) > 0 {
			return ErrRiverKeyAlreadyExists
		}
	}

	newList := append(append([]map[string]any(nil), list...), record)
	sort.SliceStable(newList, func(i, j int) bool {
		ki, _ := codec.AsInt64(newList[i]["KEY"])
		kj, _ := codec.AsInt64(newList[j]["KEY"])
		return ki < kj
	})
	node[k] = newList
	packed, err := node.pack()
	if err != nil {
		return err
	}
	casOK, err := r.adapter.CAS(ctx, key, packed, tok)
	if err != nil {
		return kv.Fail("cas", key, err)
	}
	if !casOK {
		return contention(key, k)
	}
	return nil
}

// widenRiverNode widens the river node's [FIN,LIN] envelope to include k,
// if necessary. It re-reads the node immediately before its own CAS rather
// than reusing the token from before the interior/leaf inserts ran, since
// those inserts may themselves have taken a while and the token would
// otherwise be stale more often than not. If a concurrent writer has since
// changed the river node, this is reported as ContentionError. The record
// is then already stored at its leaf, where Get finds it, but the river's
// envelope may not include k, so iteration (which clamps to the envelope)
// can skip it until a retried Add re-drives the leaf idempotently and
// widens the envelope.
func (r *River) widenRiverNode(ctx context.Context, key string, k int64) error {
	data, tok, ok, err := r.adapter.Gets(ctx, key)
	if err != nil {
		return kv.Fail("gets", key, err)
	}
	if !ok {
		// The river node vanished after the leaf write already landed; the
		// record is visible, there is simply no envelope left to widen.
		return nil
	}
	desc, err := unpackDescriptor(data)
	if err != nil {
		return err
	}
	widened, changed := desc.widen(k)
	if !changed {
		return nil
	}
	packed, err := widened.pack()
	if err != nil {
		return err
	}
	casOK, err := r.adapter.CAS(ctx, key, packed, tok)
	if err != nil {
		return kv.Fail("cas", key, err)
	}
	if !casOK {
		return contention(key, k)
	}
	return nil
}

// valuesEqual compares two user-key values for the collision filter and
// the UNQ scan. Numeric types are normalized before comparing so that, for
// example, an int key given by the caller still matches a float64 key
// recovered from the store.
func valuesEqual(a, b any) bool {
	na, aok := asInt64(a)
	nb, bok := asInt64(b)
	if aok && bok {
		return na == nb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// recordPresent reports whether a record byte-equal to rec already exists
// in list, using the packed-byte fingerprint as the equality test (spec
// §4.3.3 step 5's "byte-equal" comparison).
func recordPresent(list []map[string]any, rec map[string]any) (bool, error) {
	want, err := fingerprintRecord(rec)
	if err != nil {
		return false, err
	}
	for _, existing := range list {
		got, err := fingerprintRecord(existing)
		if err != nil {
			return false, err
		}
		if got == want {
			return true, nil
		}
	}
	return false, nil
}

func fingerprintRecord(rec map[string]any) ([32]byte, error) {
	data, err := codec.PackMap(rec)
	if err != nil {
		return [32]byte{}, err
	}
	return codec.Fingerprint(data), nil
}
