// Package durable implements the persistent key to value-container map on
// top of Pebble.
//
// Keys are stored as their descriptor encoding. Values are container blobs
// (see package container). Absence of a key and an empty container are the
// same thing: putting an empty container deletes the key.
//
// Appends are Pebble merge operands. The registered merger unions posting
// lists of equal encoded values, so an append never hides data already on
// disk.
package durable
