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
	"errors"
	"fmt"
)

// Safely-failed, no-op errors: the store is unchanged from before the call.
var (
	// ErrRiverAlreadyExists is reported by Create when a river of the same
	// name already exists.
	ErrRiverAlreadyExists = errors.New("river: already exists")

	// ErrRiverDoesNotExist is reported by Open when no river of the given
	// name exists.
	ErrRiverDoesNotExist = errors.New("river: does not exist")

	// ErrKeyTransformIncompatible is reported by Open or Create when the
	// descriptor names a key transform this build does not recognize.
	ErrKeyTransformIncompatible = errors.New("river: key transform incompatible")

	// ErrDisallowedMetadataKey is reported by Add when a record contains a
	// field name beginning with "_".
	ErrDisallowedMetadataKey = errors.New("river: disallowed metadata key")

	// ErrRiverKeyAlreadyExists is reported by Add on a UNQ river when the
	// user key is already present.
	ErrRiverKeyAlreadyExists = errors.New("river: key already exists")

	// ErrIterationOptions is reported when an iteration option is stacked
	// on top of itself (two Reverse, two Lowerbound, or two Upperbound).
	ErrIterationOptions = errors.New("river: invalid iteration option stacking")

	// ErrResultsNotUnique is reported by Get on a UNQ river when more than
	// one record survives the collision filter, which is an invariant
	// violation rather than an expected outcome.
	ErrResultsNotUnique = errors.New("river: results not unique")
)

// ErrRiverDeleted is a safely-failed error: the river node vanished while
// the handle was in use. Add reports it from its first read of the river
// node, before any interior or leaf write, so the store is unchanged.
var ErrRiverDeleted = errors.New("river: deleted")

// ErrContention is the sentinel wrapped by ContentionError. It classifies
// as a partial failure: some interior widening may have landed even
// though the operation as a whole did not complete.
var ErrContention = errors.New("river: contention")

// ContentionError reports that an Add or CAS lost a race on the node at
// Key, during an Add at sort-key Fish. If Key is an interior or leaf node,
// the record at Fish is not visible, though some interior nodes above Key
// may have been widened. If Key is the river node, the record was already
// written at its leaf and only the widening of the river's [FIN,LIN] lost.
// In either case the caller should retry the Add.
type ContentionError struct {
	Key  string // the store key whose CAS lost the race
	Fish int64  // the sort-key of the record being added
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("river: contention at %q adding fish %d", e.Key, e.Fish)
}

func (e *ContentionError) Unwrap() error { return ErrContention }

func contention(key string, fish int64) error {
	return &ContentionError{Key: key, Fish: fish}
}
