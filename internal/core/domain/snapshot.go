package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
)

// Revisioned is anything a poller can diff.
type Revisioned interface {
	Revision() (id string, version int)
}

// Snapshot is a point-in-time list plus a content version. Clients keep
// the version they last saw and re-poll; an unchanged version means no diff.
type Snapshot[T Revisioned] struct {
	Version string `json:"version"`
	Items   []T    `json:"items"`
}

func NewSnapshot[T Revisioned](items []T) Snapshot[T] {
	if items == nil {
		items = []T{}
	}
	return Snapshot[T]{Version: versionOf(items), Items: items}
}

func versionOf[T Revisioned](items []T) string {
	pairs := make([]string, 0, len(items))
	for _, item := range items {
		id, v := item.Revision()
		pairs = append(pairs, id+":"+strconv.Itoa(v))
	}
	sort.Strings(pairs)

	h := sha256.New()
	for _, p := range pairs {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Changes is what happened between two snapshots.
type Changes[T Revisioned] struct {
	Added   []T
	Updated []T
	Removed []string
}

func (c Changes[T]) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

func Diff[T Revisioned](prev, next Snapshot[T]) Changes[T] {
	var changes Changes[T]
	if prev.Version == next.Version {
		return changes
	}

	seen := make(map[string]int, len(prev.Items))
	for _, item := range prev.Items {
		id, v := item.Revision()
		seen[id] = v
	}

	for _, item := range next.Items {
		id, v := item.Revision()
		old, ok := seen[id]
		switch {
		case !ok:
			changes.Added = append(changes.Added, item)
		case old != v:
			changes.Updated = append(changes.Updated, item)
		}
		delete(seen, id)
	}

	for id := range seen {
		changes.Removed = append(changes.Removed, id)
	}
	sort.Strings(changes.Removed)
	return changes
}
