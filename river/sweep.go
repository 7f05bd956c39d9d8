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

package river

import (
	"context"

	"github.com/eastein/riverfish/kv"
	"github.com/eastein/riverfish/riverkey"
)

// Envelope is the read-only [FIN,LIN] envelope and index granularities of
// a river, exposed for riversweep's reconciliation walk. Empty is true if
// the river has never had a successful insert.
type Envelope struct {
	IND      []int64
	Fin, Lin int64
	Empty    bool
}

// ReadEnvelope reads the river node for name without constructing a full
// handle. It is exported for riversweep, which only ever reads the river
// node and never widens it (the river node's own envelope only ever grows,
// by construction; see spec §4.3.3).
func ReadEnvelope(ctx context.Context, adapter kv.Adapter, name string) (*Envelope, error) {
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
	if desc.FIN == nil || desc.LIN == nil {
		return &Envelope{IND: desc.IND, Empty: true}, nil
	}
	return &Envelope{IND: desc.IND, Fin: *desc.FIN, Lin: *desc.LIN}, nil
}

// LeafRange reads the leaf node at granularity g covering sort-key k and
// reports the minimum and maximum sort-key actually present there. It
// reports ok == false if the bucket has no leaf node, which is a normal
// outcome, not an error (spec §4.4's "absent is a skip" rule).
func LeafRange(ctx context.Context, adapter kv.Adapter, name string, g, k int64) (lo, hi int64, ok bool, err error) {
	keys := riverkey.For(name)
	key := keys.Node(g, k)
	data, present, err := adapter.Get(ctx, key)
	if err != nil {
		return 0, 0, false, kv.Fail("get", key, err)
	}
	if !present {
		return 0, 0, false, nil
	}
	node, err := unpackLeafNode(data)
	if err != nil {
		return 0, 0, false, err
	}
	sorted := node.sortedKeys()
	if len(sorted) == 0 {
		return 0, 0, false, nil
	}
	return sorted[0], sorted[len(sorted)-1], true, nil
}

// WidenInteriorAt widens the interior node at granularity g covering
// sort-key k so that its [Fin,Lin] includes k, creating the node if it is
// absent. It is exported for riversweep, which uses it to widen interior
// nodes over leaf records they do not yet bound (such as leaves written
// directly by a bulk loader): the same Add/CAS primitive Add itself uses,
// so the result is indistinguishable from one that Add produced directly.
func WidenInteriorAt(ctx context.Context, adapter kv.Adapter, name string, g, k int64) error {
	return widenInterior(ctx, adapter, riverkey.For(name), g, k)
}
