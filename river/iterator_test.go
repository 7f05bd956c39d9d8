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

package river_test

import (
	"context"
	"errors"
	"testing"

	"github.com/eastein/riverfish/kv"
	"github.com/eastein/riverfish/kv/memkv"
	"github.com/eastein/riverfish/river"
	"github.com/eastein/riverfish/riverkey"
)

// hidingAdapter wraps an Adapter and reports a chosen key as absent,
// simulating the river node vanishing underneath a live handle.
type hidingAdapter struct {
	kv.Adapter
	hidden string
}

func (h *hidingAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == h.hidden {
		return nil, false, nil
	}
	return h.Adapter.Get(ctx, key)
}

func (h *hidingAdapter) Gets(ctx context.Context, key string) ([]byte, kv.Token, bool, error) {
	if key == h.hidden {
		return nil, nil, false, nil
	}
	return h.Adapter.Gets(ctx, key)
}

// failingAdapter wraps an Adapter and reports a genuine error from Get for
// a chosen key, simulating a corrupt node or a flaky store, as distinct
// from hidingAdapter's "absent, no error" simulation.
type failingAdapter struct {
	kv.Adapter
	failKey string
}

var errSimulatedStoreFailure = errors.New("simulated store failure")

func (f *failingAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == f.failKey {
		return nil, false, errSimulatedStoreFailure
	}
	return f.Adapter.Get(ctx, key)
}

func TestIteratorReportsInteriorReadError(t *testing.T) {
	store := memkv.New()
	failing := &failingAdapter{Adapter: store}
	r, err := river.Create(context.Background(), failing, "badinterior", river.Options{IND: []int64{1000, 100, 10}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	mustAdd(t, r, map[string]any{"KEY": int64(5)})

	// The top level of IND (1000) is read as an interior node, not a leaf,
	// since len(IND) == 3; fail its read to exercise stepInterior's error
	// path, as distinct from the leaf-level failure stepLeaf already covers.
	failing.failKey = riverkey.For("badinterior").Node(1000, 5)

	sawErr := false
	for item, err := range r.Records(context.Background()) {
		if err != nil {
			if !errors.Is(err, errSimulatedStoreFailure) {
				t.Fatalf("unexpected error: %v", err)
			}
			sawErr = true
		} else {
			t.Fatalf("unexpected item yielded after interior read should have failed: %v", item)
		}
	}
	if !sawErr {
		t.Fatalf("expected %v from iteration over a failing interior node, got no error", errSimulatedStoreFailure)
	}
}

func TestIteratorSkipsAbsentBuckets(t *testing.T) {
	store := memkv.New()
	r := mustCreate(t, store, "sparse", river.Options{IND: []int64{1000, 100, 10}})
	mustAdd(t, r, map[string]any{"KEY": int64(5)})
	mustAdd(t, r, map[string]any{"KEY": int64(2005)})
	mustAdd(t, r, map[string]any{"KEY": int64(900_005)})

	got := collect(t, r)
	if len(got) != 3 {
		t.Fatalf("got %d items, want 3: %v", len(got), got)
	}
	if got[0].Key != int64(5) || got[1].Key != int64(2005) || got[2].Key != int64(900_005) {
		t.Fatalf("wrong order: %v", got)
	}
}

func TestIteratorReportsDeletedRiver(t *testing.T) {
	store := memkv.New()
	hidden := &hidingAdapter{Adapter: store}
	r, err := river.Create(context.Background(), hidden, "vanish", river.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	mustAdd(t, r, map[string]any{"KEY": int64(1)})

	hidden.hidden = "t:vanish:rn" // simulate the river node vanishing underneath the handle

	sawErr := false
	for _, err := range r.Records(context.Background()) {
		if err != nil {
			if !errors.Is(err, river.ErrRiverDeleted) {
				t.Fatalf("unexpected error: %v", err)
			}
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatalf("expected ErrRiverDeleted from iteration over a hidden river node")
	}
}

func TestGetReportsDeletedRiver(t *testing.T) {
	store := memkv.New()
	hidden := &hidingAdapter{Adapter: store}
	r, err := river.Create(context.Background(), hidden, "vanish2", river.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	hidden.hidden = "t:vanish2:rn"

	_, err = r.Get(context.Background(), int64(1))
	if !errors.Is(err, river.ErrRiverDeleted) {
		t.Fatalf("Get on hidden river: got %v, want ErrRiverDeleted", err)
	}
}
