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
	"testing"

	"github.com/eastein/riverfish/kv/memkv"
)

// Invariant 4: envelope monotonicity, at both the river node and interior
// node level.
func TestEnvelopeMonotonicity(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	r, err := Create(ctx, store, "env", Options{IND: []int64{100, 10}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	keys := []int64{50, 5, 999, 3, -7, 42}
	var prevFin, prevLin *int64

	for _, k := range keys {
		if err := r.Add(ctx, map[string]any{"KEY": k}); err != nil {
			t.Fatalf("Add(%d): %v", k, err)
		}
		data, ok, err := store.Get(ctx, r.keys.River())
		if err != nil || !ok {
			t.Fatalf("Get river node after Add(%d): ok=%v err=%v", k, ok, err)
		}
		desc, err := unpackDescriptor(data)
		if err != nil {
			t.Fatalf("unpackDescriptor: %v", err)
		}
		if desc.FIN == nil || desc.LIN == nil {
			t.Fatalf("descriptor FIN/LIN absent after insert")
		}
		if prevFin != nil && *desc.FIN > *prevFin {
			t.Fatalf("FIN increased: was %d, now %d", *prevFin, *desc.FIN)
		}
		if prevLin != nil && *desc.LIN < *prevLin {
			t.Fatalf("LIN decreased: was %d, now %d", *prevLin, *desc.LIN)
		}
		prevFin, prevLin = desc.FIN, desc.LIN

		for i := 0; i < len(r.ind)-1; i++ {
			g := r.ind[i]
			nodeKey := r.keys.Node(g, k)
			ndata, ok, err := store.Get(ctx, nodeKey)
			if err != nil || !ok {
				t.Fatalf("Get interior node for key %d level %d: ok=%v err=%v", k, i, ok, err)
			}
			node, err := unpackInteriorNode(ndata)
			if err != nil {
				t.Fatalf("unpackInteriorNode: %v", err)
			}
			if node.Fin > k || node.Lin < k {
				t.Fatalf("interior node [%d,%d] does not bound key %d", node.Fin, node.Lin, k)
			}
		}
	}
}
