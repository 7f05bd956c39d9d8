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

// Package riversweep implements an optional, off-core reconciliation walk
// over a river's leaf buckets. It re-widens interior nodes that have
// fallen behind the leaf data actually present underneath them -- the
// case after a bulk loader has written leaf nodes directly through the
// adapter and wants the interior index backfilled afterward. (river.Add
// itself widens every interior level before it writes the leaf, so an
// abandoned Add never leaves a leaf record outside its interior nodes.)
// It is read/CAS only against the same
// [github.com/eastein/riverfish/kv.Adapter] contract as the river
// package, adds no new store primitive, and is never called by river
// itself.
package riversweep

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/taskgroup"

	"github.com/eastein/riverfish/kv"
	"github.com/eastein/riverfish/river"
	"github.com/eastein/riverfish/riverkey"
)

// Options configures a reconciliation pass.
type Options struct {
	// Concurrency bounds the number of leaf buckets read concurrently.
	// Values <= 0 are treated as 1.
	Concurrency int
}

// Stats summarizes one reconciliation pass.
type Stats struct {
	LeavesVisited   int   // leaf buckets within the envelope that were read
	LeavesNonEmpty  int   // of those, how many actually held records
	InteriorWidened int   // widen attempts issued across all interior levels
	NonEmptyBases   []int64
}

// Reconcile walks every leaf bucket reachable from name's river node
// envelope, at the leaf granularity, exactly as the iterator's top-level
// bucket enumeration does, bounded by a worker pool of size
// opts.Concurrency. For every non-empty leaf it finds, it re-widens every
// interior node on the path from that leaf up to (but not including) the
// river node itself, so that every interior node bounds the leaf records
// beneath it. It only widens: interior nodes wider than their leaves (for
// example after an abandoned Add) stay as they are. It never deletes anything and
// never touches the river node's own [FIN,LIN], which is a safe
// overestimate by construction and only ever widens going forward.
func Reconcile(ctx context.Context, adapter kv.Adapter, name string, opts Options) (Stats, error) {
	var stats Stats

	env, err := river.ReadEnvelope(ctx, adapter, name)
	if err != nil {
		return stats, err
	}
	if env.Empty {
		return stats, nil
	}

	leafG := env.IND[len(env.IND)-1]
	bases := riverkey.BucketsCovering(leafG, env.Fin, env.Lin)

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, start := taskgroup.New(nil).Limit(limit)

	var mu sync.Mutex
	nonEmpty := mapset.New[int64]()

	for _, base := range bases {
		base := base
		start(func() error {
			lo, hi, ok, err := river.LeafRange(ctx, adapter, name, leafG, base)

			mu.Lock()
			stats.LeavesVisited++
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("riversweep: leaf at %d: %w", base, err)
			}
			if !ok {
				return nil
			}

			mu.Lock()
			nonEmpty.Add(base)
			mu.Unlock()

			for i := 0; i < len(env.IND)-1; i++ {
				widenG := env.IND[i]
				if err := widenAt(ctx, adapter, name, widenG, lo); err != nil {
					return err
				}
				mu.Lock()
				stats.InteriorWidened++
				mu.Unlock()
				if hi != lo {
					if err := widenAt(ctx, adapter, name, widenG, hi); err != nil {
						return err
					}
					mu.Lock()
					stats.InteriorWidened++
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.LeavesNonEmpty = len(nonEmpty)
	stats.NonEmptyBases = make([]int64, 0, len(nonEmpty))
	for base := range nonEmpty {
		stats.NonEmptyBases = append(stats.NonEmptyBases, base)
	}
	return stats, nil
}

// widenAt widens the interior node at granularity g covering k, treating a
// lost CAS race as benign: some other writer (the core's own Add, or a
// concurrent sweep) already advanced the node past what this pass
// observed, which is exactly the outcome reconciliation is trying to
// reach.
func widenAt(ctx context.Context, adapter kv.Adapter, name string, g, k int64) error {
	if err := river.WidenInteriorAt(ctx, adapter, name, g, k); err != nil {
		if errors.Is(err, river.ErrContention) {
			return nil
		}
		return fmt.Errorf("riversweep: widen interior at granularity %d, key %d: %w", g, k, err)
	}
	return nil
}
