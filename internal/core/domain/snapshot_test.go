package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_VersionIgnoresOrder(t *testing.T) {
	a := Transfer{ID: "a", Version: 1}
	b := Transfer{ID: "b", Version: 3}

	before := NewSnapshot([]Transfer{a, b})
	assert.Equal(t, before.Version, NewSnapshot([]Transfer{b, a}).Version)

	b.Version++
	assert.NotEqual(t, before.Version, NewSnapshot([]Transfer{a, b}).Version)
	assert.NotNil(t, NewSnapshot[Transfer](nil).Items)
}

func TestDiff(t *testing.T) {
	prev := NewSnapshot([]Transfer{{ID: "keep", Version: 1}, {ID: "bump", Version: 1}, {ID: "gone", Version: 2}})
	next := NewSnapshot([]Transfer{{ID: "keep", Version: 1}, {ID: "bump", Version: 2}, {ID: "new", Version: 1}})

	changes := Diff(prev, next)
	require.Len(t, changes.Added, 1)
	require.Len(t, changes.Updated, 1)
	assert.Equal(t, "new", changes.Added[0].ID)
	assert.Equal(t, "bump", changes.Updated[0].ID)
	assert.Equal(t, []string{"gone"}, changes.Removed)

	assert.True(t, Diff(next, next).Empty())
}
