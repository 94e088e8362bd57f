package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBanListCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banlist")
	bl, err := LoadBanList(path)
	require.NoError(t, err)
	assert.Empty(t, bl.Usernames())

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestBanListAddAndIsBanned(t *testing.T) {
	bl, err := LoadBanList(filepath.Join(t.TempDir(), "banlist"))
	require.NoError(t, err)

	added, err := bl.Add("bob")
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, bl.IsBanned("bob"))

	added, err = bl.Add("bob")
	require.NoError(t, err)
	assert.False(t, added, "re-adding an already-banned user reports no change")
}

func TestBanListRemoveAbsentUserIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banlist")
	bl, err := LoadBanList(path)
	require.NoError(t, err)

	before, statErr := os.Stat(path)
	require.NoError(t, statErr)

	removed, err := bl.Remove("ghost")
	require.NoError(t, err)
	assert.False(t, removed)

	after, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Equal(t, before.ModTime(), after.ModTime(), "removing an absent user must not rewrite the file")
}

func TestBanListPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banlist")
	bl, err := LoadBanList(path)
	require.NoError(t, err)
	_, err = bl.Add("carol")
	require.NoError(t, err)

	reloaded, err := LoadBanList(path)
	require.NoError(t, err)
	assert.True(t, reloaded.IsBanned("carol"))
}

func TestBanListUnbanThenRemoveFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banlist")
	bl, err := LoadBanList(path)
	require.NoError(t, err)
	_, err = bl.Add("dave")
	require.NoError(t, err)

	removed, err := bl.Remove("dave")
	require.NoError(t, err)
	assert.True(t, removed)

	reloaded, err := LoadBanList(path)
	require.NoError(t, err)
	assert.False(t, reloaded.IsBanned("dave"))
}
