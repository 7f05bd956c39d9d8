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
	"fmt"
	"sort"
	"strconv"

	"github.com/eastein/riverfish/codec"
)

// descriptor is the on-disk shape of a river node (spec §3.1).
type descriptor struct {
	IND []int64
	FIN *int64
	LIN *int64
	KTR string // "" means absent
	UNQ bool
}

func (d *descriptor) pack() ([]byte, error) {
	m := map[string]any{
		"IND": int64SliceToAny(d.IND),
		"UNQ": d.UNQ,
	}
	if d.FIN != nil {
		m["FIN"] = float64(*d.FIN)
	}
	if d.LIN != nil {
		m["LIN"] = float64(*d.LIN)
	}
	if d.KTR != "" {
		m["KTR"] = d.KTR
	}
	return codec.PackMap(m)
}

func unpackDescriptor(data []byte) (*descriptor, error) {
	m, err := codec.UnpackMap(data)
	if err != nil {
		return nil, fmt.Errorf("river: unpack descriptor: %w", err)
	}
	d := new(descriptor)
	raw, ok := m["IND"].([]any)
	if !ok {
		return nil, fmt.Errorf("river: descriptor missing IND")
	}
	for _, v := range raw {
		n, ok := codec.AsInt64(v)
		if !ok {
			return nil, fmt.Errorf("river: descriptor IND entry %v is not a number", v)
		}
		d.IND = append(d.IND, n)
	}
	if v, ok := m["FIN"]; ok {
		n, _ := codec.AsInt64(v)
		d.FIN = &n
	}
	if v, ok := m["LIN"]; ok {
		n, _ := codec.AsInt64(v)
		d.LIN = &n
	}
	if v, ok := m["KTR"]; ok {
		s, _ := v.(string)
		d.KTR = s
	}
	if v, ok := m["UNQ"]; ok {
		b, _ := v.(bool)
		d.UNQ = b
	}
	return d, nil
}

// widen returns a copy of d with [FIN,LIN] widened to include k, and
// reports whether any change was needed.
func (d *descriptor) widen(k int64) (*descriptor, bool) {
	nd := *d
	changed := false
	if nd.FIN == nil || k < *nd.FIN {
		v := k
		nd.FIN = &v
		changed = true
	}
	if nd.LIN == nil || k > *nd.LIN {
		v := k
		nd.LIN = &v
		changed = true
	}
	return &nd, changed
}

// interiorNode is the on-disk shape of a non-leaf index node (spec §3.2).
type interiorNode struct {
	Fin, Lin int64
}

func (n *interiorNode) pack() ([]byte, error) {
	return codec.PackMap(map[string]any{
		"FIN": float64(n.Fin),
		"LIN": float64(n.Lin),
	})
}

func unpackInteriorNode(data []byte) (*interiorNode, error) {
	m, err := codec.UnpackMap(data)
	if err != nil {
		return nil, fmt.Errorf("river: unpack interior node: %w", err)
	}
	fin, ok := codec.AsInt64(m["FIN"])
	if !ok {
		return nil, fmt.Errorf("river: interior node missing FIN")
	}
	lin, ok := codec.AsInt64(m["LIN"])
	if !ok {
		return nil, fmt.Errorf("river: interior node missing LIN")
	}
	return &interiorNode{Fin: fin, Lin: lin}, nil
}

// widen returns a copy of n with [Fin,Lin] widened to include k, and
// reports whether any change was needed.
func (n *interiorNode) widen(k int64) (*interiorNode, bool) {
	nn := *n
	changed := false
	if k < nn.Fin {
		nn.Fin = k
		changed = true
	}
	if k > nn.Lin {
		nn.Lin = k
		changed = true
	}
	return &nn, changed
}

// leafNode is the on-disk shape of a leaf index node (spec §3.2): exact
// sort-key to ordered record list.
type leafNode map[int64][]map[string]any

func (n leafNode) pack() ([]byte, error) {
	m := make(map[string]any, len(n))
	for k, records := range n {
		list := make([]any, len(records))
		for i, r := range records {
			list[i] = r
		}
		m[strconv.FormatInt(k, 10)] = list
	}
	return codec.PackMap(m)
}

func unpackLeafNode(data []byte) (leafNode, error) {
	m, err := codec.UnpackMap(data)
	if err != nil {
		return nil, fmt.Errorf("river: unpack leaf node: %w", err)
	}
	n := make(leafNode, len(m))
	for ks, v := range m {
		k, err := strconv.ParseInt(ks, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("river: leaf node key %q: %w", ks, err)
		}
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("river: leaf node value at %q is not a list", ks)
		}
		records := make([]map[string]any, len(list))
		for i, e := range list {
			rec, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("river: leaf node %q element %d is not a record", ks, i)
			}
			records[i] = rec
		}
		n[k] = records
	}
	return n, nil
}

// sortedKeys returns the sort-keys present in n in ascending order.
func (n leafNode) sortedKeys() []int64 {
	keys := make([]int64, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func int64SliceToAny(s []int64) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}
