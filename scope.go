package mapindex

import "github.com/RoaringBitmap/roaring/v2"

// ScopeIdentity identifies a search scope across sessions. Scans with equal
// identities must use equal id filters; their hash filters share a snapshot.
type ScopeIdentity struct {
	ProjectHash       int32
	IncludesLibraries bool
}

// Scope is the search scope of a filtered ProcessKeys call.
//
// Identity reports ok=false for scopes that have no stable identity; their
// hash filters are always recomputed.
type Scope interface {
	Identity() (id ScopeIdentity, ok bool)
}

// ProjectScope returns a scope with a stable identity.
func ProjectScope(projectHash int32, includesLibraries bool) Scope {
	return ScopeIdentity{ProjectHash: projectHash, IncludesLibraries: includesLibraries}
}

// Identity implements Scope.
func (s ScopeIdentity) Identity() (ScopeIdentity, bool) { return s, true }

func scopeIdentity(s Scope) (ScopeIdentity, bool) {
	if s == nil {
		return ScopeIdentity{}, false
	}
	return s.Identity()
}

// IDFilter selects the input ids a filtered ProcessKeys call is interested in.
type IDFilter interface {
	ContainsInputID(id uint32) bool
}

// IDFilterFunc adapts a function to IDFilter.
type IDFilterFunc func(id uint32) bool

// ContainsInputID implements IDFilter.
func (f IDFilterFunc) ContainsInputID(id uint32) bool { return f(id) }

// IDSet is an IDFilter backed by a roaring bitmap.
type IDSet struct {
	*roaring.Bitmap
}

// NewIDSet returns a filter accepting exactly ids.
func NewIDSet(ids ...uint32) IDSet {
	return IDSet{Bitmap: roaring.BitmapOf(ids...)}
}

// ContainsInputID implements IDFilter.
func (s IDSet) ContainsInputID(id uint32) bool { return s.Contains(id) }
