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
	"iter"

	"github.com/eastein/riverfish/kv"
	"github.com/eastein/riverfish/riverkey"
)

// Item is one record produced by iteration: Key is the sort-key, or, for a
// river with a key transform, the original user key; Record is the stored
// fields (untransformed, if applicable).
type Item struct {
	Key    any
	Record map[string]any
}

// workKind distinguishes the two kinds of stack item the traversal pushes
// (spec §4.4). The river-node step runs once, inline in Records, before
// the stack is seeded, so it has no stack item of its own.
type workKind int

const (
	workInterior workKind = iota
	workLeaf
)

type workItem struct {
	kind  workKind
	base  int64 // the bucket's base sort-key
	level int   // index into r.ind
}

// Records returns a lazy, one-shot sequence of this river's records, in
// the order determined by the handle's iteration options (forward by
// default; see Reverse, Lowerbound, Upperbound). It performs one store
// read per work item popped from an explicit stack, holding at most
// O(fan-out * depth) nodes in memory at a time (spec §4.4). The sequence
// must be consumed to completion or abandoned; it is not restartable and
// is not safe to share across goroutines.
//
// Per the iteration contract used throughout this package's store layer
// (compare [kv.Adapter] and the teacher's own iter.Seq2-based listing
// idiom), once the sequence reports a non-nil error it stops immediately;
// callers must check the error on every iteration.
func (r *River) Records(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		riverNodeKey := r.keys.River()
		data, ok, err := r.adapter.Get(ctx, riverNodeKey)
		if err != nil {
			yield(Item{}, kv.Fail("get", riverNodeKey, err))
			return
		}
		if !ok {
			yield(Item{}, ErrRiverDeleted)
			return
		}
		desc, err := unpackDescriptor(data)
		if err != nil {
			yield(Item{}, err)
			return
		}
		if desc.FIN == nil || desc.LIN == nil {
			return // empty river: nothing to iterate
		}
		fin, lin := *desc.FIN, *desc.LIN
		if r.iter.hasLower && r.iter.lower > fin {
			fin = r.iter.lower
		}
		if r.iter.hasUpper && r.iter.upper < lin {
			lin = r.iter.upper
		}
		if fin > lin {
			return // bounds exclude everything present
		}

		var stack []workItem
		g0 := r.ind[0]
		bases := riverkey.BucketsCovering(g0, fin, lin)
		nextKind := workInterior
		if len(r.ind) == 1 {
			nextKind = workLeaf
		}
		stack = pushBases(stack, bases, 0, nextKind, r.iter.reverse)

		for len(stack) > 0 {
			item := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			switch item.kind {
			case workInterior:
				var err error
				stack, err = r.stepInterior(ctx, stack, item)
				if err != nil {
					yield(Item{}, err)
					return
				}
			case workLeaf:
				cont, err := r.stepLeaf(ctx, item, yield)
				if err != nil {
					yield(Item{}, err)
					return
				}
				if !cont {
					return
				}
			}
		}
	}
}

func (r *River) stepInterior(ctx context.Context, stack []workItem, item workItem) ([]workItem, error) {
	g := r.ind[item.level]
	key := r.keys.Bucket(g, riverkey.Bucket(g, item.base))
	data, ok, err := r.adapter.Get(ctx, key)
	if err != nil {
		return stack, kv.Fail("get", key, err)
	}
	if !ok {
		return stack, nil // absent interior node: normal, skip
	}
	node, err := unpackInteriorNode(data)
	if err != nil {
		return stack, err
	}
	fin, lin := node.Fin, node.Lin
	if r.iter.hasLower && r.iter.lower > fin {
		fin = r.iter.lower
	}
	if r.iter.hasUpper && r.iter.upper < lin {
		lin = r.iter.upper
	}
	if fin > lin {
		return stack, nil // empty clamp: skip
	}

	childLevel := item.level + 1
	childG := r.ind[childLevel]
	bases := riverkey.BucketsCovering(childG, fin, lin)
	childKind := workInterior
	if childLevel == len(r.ind)-1 {
		childKind = workLeaf
	}
	stack = pushBases(stack, bases, childLevel, childKind, r.iter.reverse)
	return stack, nil
}

func (r *River) stepLeaf(ctx context.Context, item workItem, yield func(Item, error) bool) (bool, error) {
	g := r.ind[item.level]
	key := r.keys.Bucket(g, riverkey.Bucket(g, item.base))
	data, ok, err := r.adapter.Get(ctx, key)
	if err != nil {
		return false, kv.Fail("get", key, err)
	}
	if !ok {
		return true, nil // absent leaf node: normal, skip
	}
	node, err := unpackLeafNode(data)
	if err != nil {
		return false, err
	}
	keys := node.sortedKeys()
	if r.iter.reverse {
		reverseInt64s(keys)
	}
	for _, ks := range keys {
		if r.iter.hasLower && ks < r.iter.lower {
			continue
		}
		if r.iter.hasUpper && ks > r.iter.upper {
			continue
		}
		list := node[ks]
		if r.iter.reverse {
			for i := len(list) - 1; i >= 0; i-- {
				if !r.emit(ks, list[i], yield) {
					return false, nil
				}
			}
		} else {
			for _, rec := range list {
				if !r.emit(ks, rec, yield) {
					return false, nil
				}
			}
		}
	}
	return true, nil
}

func (r *River) emit(ks int64, rec map[string]any, yield func(Item, error) bool) bool {
	if r.xfrm != nil {
		restored, userKey := untransform(rec)
		return yield(Item{Key: userKey, Record: restored}, nil)
	}
	return yield(Item{Key: ks, Record: rec}, nil)
}

// pushBases pushes work items for each base in bases onto stack, ordered
// so that popping yields them in ascending order for forward iteration or
// descending order for reverse iteration (spec §4.4: "push in reverse of
// desired visit order; reverse direction pushes in forward order").
func pushBases(stack []workItem, bases []int64, level int, kind workKind, reverse bool) []workItem {
	if !reverse {
		for i := len(bases) - 1; i >= 0; i-- {
			stack = append(stack, workItem{kind: kind, base: bases[i], level: level})
		}
	} else {
		for _, b := range bases {
			stack = append(stack, workItem{kind: kind, base: b, level: level})
		}
	}
	return stack
}

func reverseInt64s(s []int64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
