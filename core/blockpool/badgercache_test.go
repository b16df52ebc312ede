package blockpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noxproject/forkd/common/hash"
)

func TestBadgerMirrorAllReturnsPersistedOrphans(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenBadgerMirror(dir)
	require.NoError(t, err)

	a := mkOrphan(hash.MustHexToHash("02"), hash.MustHexToHash("01"))
	b := mkOrphan(hash.MustHexToHash("03"), hash.MustHexToHash("02"))
	require.NoError(t, m.Put(a, time.Hour))
	require.NoError(t, m.Put(b, time.Hour))

	all, err := m.All()
	require.NoError(t, err)
	require.Len(t, all, 2)

	byHash := make(map[hash.Hash]bool)
	for _, blk := range all {
		byHash[blk.Hash] = true
	}
	assert.True(t, byHash[a.Hash])
	assert.True(t, byHash[b.Hash])

	require.NoError(t, m.Close())
}

func TestBadgerMirrorAllOmitsDeletedEntries(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenBadgerMirror(dir)
	require.NoError(t, err)

	a := mkOrphan(hash.MustHexToHash("02"), hash.MustHexToHash("01"))
	require.NoError(t, m.Put(a, time.Hour))
	require.NoError(t, m.Delete(a.Hash))

	all, err := m.All()
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, m.Close())
}

func TestNewRestoresOrphansFromMirror(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenBadgerMirror(dir)
	require.NoError(t, err)

	a := mkOrphan(hash.MustHexToHash("02"), hash.MustHexToHash("01"))
	require.NoError(t, m.Put(a, time.Hour))

	p := New(time.Minute, m)
	assert.Equal(t, 1, p.Len())

	require.NoError(t, m.Close())
}
