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

// Package codec packs and unpacks river descriptors, index nodes, and
// record maps to the opaque byte strings stored in the flat key/value
// store. The wire format is built on protocol buffers' structpb, which
// represents an arbitrary JSON-like value without requiring a fixed schema
// for the user-defined fields of a fish record.
package codec

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// PackMap packs an arbitrary string-keyed map of JSON-like values (the
// shape of both a fish record and a river descriptor) into bytes. Map
// entries are marshaled in a deterministic order, so equal maps pack to
// equal bytes.
func PackMap(m map[string]any) ([]byte, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("codec: pack map: %w", err)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(st)
}

// UnpackMap is the inverse of PackMap.
func UnpackMap(data []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("codec: unpack map: %w", err)
	}
	return st.AsMap(), nil
}

// PackList packs an ordered list of records, preserving order and
// duplicate values, as used for a leaf node's record list at a single
// sort-key.
func PackList(records []map[string]any) ([]byte, error) {
	vals := make([]*structpb.Value, len(records))
	for i, r := range records {
		st, err := structpb.NewStruct(r)
		if err != nil {
			return nil, fmt.Errorf("codec: pack list element %d: %w", i, err)
		}
		vals[i] = structpb.NewStructValue(st)
	}
	return proto.Marshal(&structpb.ListValue{Values: vals})
}

// UnpackList is the inverse of PackList.
func UnpackList(data []byte) ([]map[string]any, error) {
	var lv structpb.ListValue
	if err := proto.Unmarshal(data, &lv); err != nil {
		return nil, fmt.Errorf("codec: unpack list: %w", err)
	}
	out := make([]map[string]any, len(lv.Values))
	for i, v := range lv.Values {
		st := v.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("codec: unpack list element %d: not a struct", i)
		}
		out[i] = st.AsMap()
	}
	return out, nil
}

// AsInt64 converts a value recovered from UnpackMap/UnpackList back to an
// int64. structpb represents every number as float64, so integers wider
// than 2^53 do not round-trip exactly; river's sort-keys and transformed
// keys never exceed that range in practice (the largest built-in
// transform, stringcrc, tops out at 2^32-1).
func AsInt64(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Fingerprint returns a content digest of data, used by the river package
// to recognize that a record byte-equal to one already stored at a
// sort-key is being re-driven (spec: idempotent re-drive), without holding
// the full encoded list in memory for comparison.
func Fingerprint(data []byte) [blake2b.Size256]byte {
	return blake2b.Sum256(data)
}
