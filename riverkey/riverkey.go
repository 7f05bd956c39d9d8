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

// Package riverkey constructs the bit-exact key strings used to address
// river descriptors and sharded index nodes in the underlying key/value
// store.
package riverkey

import "strconv"

// Scheme builds storage keys for a single named river. The zero value is
// not valid; construct one with [For].
type Scheme struct {
	name string
}

// For returns the key scheme for the river named name.
func For(name string) Scheme { return Scheme{name: name} }

// River returns the key of the river descriptor: "t:<name>:rn".
func (s Scheme) River() string {
	return "t:" + s.name + ":rn"
}

// Node returns the key of the index or leaf node at granularity g covering
// sort-key k: "t:<name>:in:<g>:<q>", where q = k div g.
func (s Scheme) Node(g, k int64) string {
	return s.Bucket(g, Bucket(g, k))
}

// Bucket returns the key of the index or leaf node at granularity g and
// bucket id q directly, for callers that already have q = k div g.
func (s Scheme) Bucket(g, q int64) string {
	return "t:" + s.name + ":in:" + strconv.FormatInt(g, 10) + ":" + strconv.FormatInt(q, 10)
}

// Bucket computes the bucket id q = k div g for sort-key k at granularity g,
// using floor division so that negative sort-keys bucket consistently (the
// bucket covering [-g, 0) is q = -1, never 0).
func Bucket(g, k int64) int64 {
	q := k / g
	if k%g != 0 && (k < 0) != (g < 0) {
		q--
	}
	return q
}

// Base returns the inclusive lower bound of the bucket b at granularity g:
// b*g.
func Base(g, b int64) int64 { return b * g }

// BucketsCovering returns, in ascending order, the base sort-key of every
// bucket at granularity g that overlaps the inclusive range [lo, hi].
func BucketsCovering(g, lo, hi int64) []int64 {
	if lo > hi {
		return nil
	}
	startID := Bucket(g, lo)
	endID := Bucket(g, hi)
	bases := make([]int64, 0, endID-startID+1)
	for id := startID; id <= endID; id++ {
		bases = append(bases, Base(g, id))
	}
	return bases
}
