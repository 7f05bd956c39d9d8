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

// Package snappy wraps the output of codec.PackMap/PackList (or any other
// byte-producing packer) with block compression, for adapters where the
// cost of a few extra CPU cycles per operation is worth the reduction in
// bytes moved or stored — notably kv/filekv, where records for a
// heavily-populated leaf bucket can otherwise grow to tens of kilobytes.
package snappy

import "github.com/golang/snappy"

// Compress returns the snappy-compressed form of src.
func Compress(src []byte) []byte {
	return snappy.Encode(nil, src)
}

// Decompress is the inverse of Compress.
func Decompress(src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}
