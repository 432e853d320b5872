// Package container holds the per-key value containers of an index storage.
//
// A [ValueContainer] maps each value of a key to the posting list of input ids
// that contributed it. Posting lists are Roaring bitmaps.
//
// A [ChangeTracking] container wraps a ValueContainer that is materialized on
// first access through an [Initializer] and tracks whether it was mutated since
// it was last written back:
//
//	stateUninitialized --Load--> stateLoading --Compute ok--> stateReady
//	        ^                          |
//	        +-------Compute error------+
//
// Containers are persisted as blobs (see [Encode]). Blobs of the same key can
// be unioned without knowing the value type ([Union]); the durable map uses
// this as its merge operator.
package container
