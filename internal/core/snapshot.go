package core

import (
	"encoding/json"
)

// Snapshot is the full value delivered by a subscription at one point in
// time: every document at the subscribed path or below, keyed by its path
// relative to the subscription root. The document at the root itself, if
// any, sits under the "" key. A snapshot is always a complete replacement,
// never a delta; an absent path yields a snapshot with no docs.
type Snapshot struct {
	Path string
	Docs map[string]json.RawMessage
}

func EmptySnapshot(path string) Snapshot {
	return Snapshot{Path: path, Docs: map[string]json.RawMessage{}}
}

// Doc returns the document at exactly the snapshot's path.
func (s Snapshot) Doc() (json.RawMessage, bool) {
	raw, ok := s.Docs[""]
	return raw, ok
}

func (s Snapshot) Len() int {
	return len(s.Docs)
}

// Clone deep-copies the snapshot so fan-out consumers can hold it without
// aliasing the store's internal mirror.
func (s Snapshot) Clone() Snapshot {
	docs := make(map[string]json.RawMessage, len(s.Docs))
	for k, v := range s.Docs {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		docs[k] = cp
	}
	return Snapshot{Path: s.Path, Docs: docs}
}
