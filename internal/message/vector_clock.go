package message

import (
	"maps"
	"sort"
	"strconv"
	"strings"
)

// ClockRelation describes how two vector clocks relate to each other.
type ClockRelation int

const (
	Equal ClockRelation = iota
	Before
	After
	Concurrent
)

// VectorClock maps a node id to a non-negative logical counter. It tracks
// causal history rather than a total order: merge is element-wise max, and
// comparison can come back Concurrent when neither clock dominates the
// other.
type VectorClock map[string]uint64

// Increment bumps the counter owned by nodeID.
func (vc VectorClock) Increment(nodeID string) {
	vc[nodeID]++
}

// Compare reports how vc relates to other.
func (vc VectorClock) Compare(other VectorClock) ClockRelation {
	vcGreater := false
	otherGreater := false

	for node, cnt := range vc {
		if cnt > other[node] {
			vcGreater = true
		} else if cnt < other[node] {
			otherGreater = true
		}
	}
	for node, cnt := range other {
		if _, ok := vc[node]; !ok && cnt > 0 {
			otherGreater = true
		}
	}

	switch {
	case !vcGreater && !otherGreater:
		return Equal
	case vcGreater && !otherGreater:
		return After
	case !vcGreater && otherGreater:
		return Before
	default:
		return Concurrent
	}
}

// Merge returns the element-wise max of vc and other. It does not mutate
// either argument.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	merged := vc.Copy()
	for node, cnt := range other {
		if cnt > merged[node] {
			merged[node] = cnt
		}
	}
	return merged
}

// Copy returns a deep copy; VectorClock is a map and aliases otherwise.
func (vc VectorClock) Copy() VectorClock {
	c := make(VectorClock, len(vc))
	maps.Copy(c, vc)
	return c
}

// Serialize renders vc as "key:value;key:value…", sorted by key so the
// output is deterministic. An empty clock serializes to the empty string.
func (vc VectorClock) Serialize() string {
	if len(vc) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vc))
	for k := range vc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(vc[k], 10))
	}
	return b.String()
}

// DeserializeVectorClock parses the "key:value;key:value…" wire format.
// Malformed entries (missing colon, non-numeric value, empty key) are
// silently dropped rather than causing the whole parse to fail. The empty
// string yields an empty, non-nil clock.
func DeserializeVectorClock(s string) VectorClock {
	vc := make(VectorClock)
	if s == "" {
		return vc
	}
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		idx := strings.IndexByte(entry, ':')
		if idx <= 0 || idx == len(entry)-1 {
			continue
		}
		key := entry[:idx]
		val, err := strconv.ParseUint(entry[idx+1:], 10, 64)
		if err != nil {
			continue
		}
		vc[key] = val
	}
	return vc
}
