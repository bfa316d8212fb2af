package domain

// ResourceStatus is the ingest pipeline state of a resource. Transitions
// form a DAG; quarantined, invalid_format, failed and ready are terminal.
type ResourceStatus string

const (
	ResourcePending       ResourceStatus = "pending"
	ResourceScanning      ResourceStatus = "scanning"
	ResourceQuarantined   ResourceStatus = "quarantined"
	ResourceInvalidFormat ResourceStatus = "invalid_format"
	ResourceGraphed       ResourceStatus = "graphed"
	ResourceExtracted     ResourceStatus = "extracted"
	ResourceChunked       ResourceStatus = "chunked"
	ResourceEmbedded      ResourceStatus = "embedded"
	ResourceReady         ResourceStatus = "ready"
	ResourceFailed        ResourceStatus = "failed"
)

// resourceRank orders the happy-path states so replays of an
// already-advanced status can be recognised.
var resourceRank = map[ResourceStatus]int{
	ResourcePending:   0,
	ResourceScanning:  1,
	ResourceGraphed:   2,
	ResourceExtracted: 3,
	ResourceChunked:   4,
	ResourceEmbedded:  5,
	ResourceReady:     6,
}

// Terminal reports whether the ingest pipeline is done with this resource.
func (s ResourceStatus) Terminal() bool {
	switch s {
	case ResourceQuarantined, ResourceInvalidFormat, ResourceReady, ResourceFailed:
		return true
	}
	return false
}

// CanAdvanceTo reports whether moving from s to next is a legal transition.
// A transition to a state the resource has already reached (or passed) is a
// tolerated replay and also returns true; the caller treats it as success
// without rewriting state.
func (s ResourceStatus) CanAdvanceTo(next ResourceStatus) bool {
	switch next {
	case ResourceScanning:
		return s == ResourcePending || s == ResourceScanning
	case ResourceQuarantined, ResourceInvalidFormat:
		return s == ResourceScanning || s == next
	case ResourceFailed:
		return !s.Terminal() || s == ResourceFailed
	}
	from, okFrom := resourceRank[s]
	to, okTo := resourceRank[next]
	if !okFrom || !okTo {
		return false
	}
	return to == from+1 || to <= from
}

// Replay reports whether next is a state the resource has already reached.
func (s ResourceStatus) Replay(next ResourceStatus) bool {
	from, okFrom := resourceRank[s]
	to, okTo := resourceRank[next]
	return okFrom && okTo && to <= from
}

// SearchStatus is the query pipeline state of a search request. The status
// advances monotonically; ready and failed are terminal.
type SearchStatus string

const (
	SearchPending       SearchStatus = "pending"
	SearchVectorised    SearchStatus = "vectorised"
	SearchMatched       SearchStatus = "matched"
	SearchGenerated     SearchStatus = "generated"
	SearchCredentialled SearchStatus = "credentialled"
	SearchReady         SearchStatus = "ready"
	SearchFailed        SearchStatus = "failed"
)

var searchRank = map[SearchStatus]int{
	SearchPending:       0,
	SearchVectorised:    1,
	SearchMatched:       2,
	SearchGenerated:     3,
	SearchCredentialled: 4,
	SearchReady:         5,
}

// Terminal reports whether the query pipeline is done with this search.
func (s SearchStatus) Terminal() bool {
	return s == SearchReady || s == SearchFailed
}

// CanAdvanceTo reports whether moving from s to next is legal, counting
// replays of already-reached states as legal no-ops.
func (s SearchStatus) CanAdvanceTo(next SearchStatus) bool {
	if next == SearchFailed {
		return !s.Terminal() || s == SearchFailed
	}
	from, okFrom := searchRank[s]
	to, okTo := searchRank[next]
	if !okFrom || !okTo {
		return false
	}
	return to == from+1 || to <= from
}

// Replay reports whether next is a state the search has already reached.
func (s SearchStatus) Replay(next SearchStatus) bool {
	from, okFrom := searchRank[s]
	to, okTo := searchRank[next]
	return okFrom && okTo && to <= from
}
