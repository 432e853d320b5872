// Package codec defines how keys and values of an index storage become bytes.
//
// A [KeyDescriptor] supplies the 32-bit key hash recorded in the side index and
// the key's byte form in the durable map. A [DataExternalizer] supplies the byte
// form of values. Both must be deterministic: equal inputs produce equal bytes,
// because the durable map merges containers by comparing encoded values.
//
// Changing a descriptor or externalizer for an existing storage is a breaking
// change; persisted bytes written by the old one may no longer decode.
package codec
