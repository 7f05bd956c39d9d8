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
)

// Get performs a point lookup by user key (spec §4.3.4). For a river with
// no UNQ constraint it returns every record stored at userKey's sort-key
// whose (possibly transform-restored) user key matches, preserving stored
// order; the result may be empty but is never nil on success. For a UNQ
// river it returns at most one record, or an empty slice if none is present, and
// reports ErrResultsNotUnique if the invariant that at most one exists was
// somehow violated.
func (r *River) Get(ctx context.Context, userKey any) ([]map[string]any, error) {
	sortKey, err := r.sortKeyOf(userKey)
	if err != nil {
		return nil, err
	}

	riverNodeKey := r.keys.River()
	if _, ok, err := r.adapter.Get(ctx, riverNodeKey); err != nil {
		return nil, kv.Fail("get", riverNodeKey, err)
	} else if !ok {
		return nil, ErrRiverDeleted
	}

	leafKey := r.keys.Node(r.ind[len(r.ind)-1], sortKey)
	data, ok, err := r.adapter.Get(ctx, leafKey)
	if err != nil {
		return nil, kv.Fail("get", leafKey, err)
	}
	if !ok {
		return []map[string]any{}, nil
	}
	node, err := unpackLeafNode(data)
	if err != nil {
		return nil, err
	}
	list := node[sortKey]

	var out []map[string]any
	if r.xfrm != nil {
		for _, rec := range list {
			restored, orig := untransform(rec)
			if valuesEqual(orig, userKey) {
				out = append(out, restored)
			}
		}
	} else {
		out = append(out, list...)
	}
	if out == nil {
		out = []map[string]any{}
	}

	if r.unq {
		if len(out) > 1 {
			return nil, ErrResultsNotUnique
		}
		return out, nil
	}
	return out, nil
}

// untransform restores the original user key onto a copy of rec, dropping
// the "_KEY" bookkeeping field, and returns both the restored record and
// the original user key that was found under "_KEY".
func untransform(rec map[string]any) (restored map[string]any, userKey any) {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if k == "_KEY" {
			continue
		}
		out[k] = v
	}
	userKey = rec["_KEY"]
	out["KEY"] = userKey
	return out, userKey
}
