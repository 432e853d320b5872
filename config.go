package mapindex

import (
	"os"
	"strconv"
)

// Environment toggles read by Open. They can only switch features off.
const (
	// EnvKeyHashTracking set to a false value disables the side index.
	EnvKeyHashTracking = "MAPINDEX_KEY_HASH_TRACKING"
	// EnvNoCachedHashIDs set to a true value disables snapshot files.
	EnvNoCachedHashIDs = "MAPINDEX_NO_CACHED_HASH_IDS"
)

func applyEnv(o *options) {
	if v, ok := envBool(EnvKeyHashTracking); ok && !v {
		o.keyHashTracking = false
	}
	if v, ok := envBool(EnvNoCachedHashIDs); ok && v {
		o.cachedHashIDs = false
	}
}

// envBool parses name with strconv.ParseBool. Unset or malformed values
// report ok=false.
func envBool(name string) (value, ok bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return b, true
}
