package identity

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`^player-1700000000000-[0-9a-z]{9}$`)

func TestNewIDShape(t *testing.T) {
	id := NewID(RolePlayer, time.UnixMilli(1700000000000))
	require.Regexp(t, idPattern, id)
	require.NotEqual(t, id, NewID(RolePlayer, time.UnixMilli(1700000000000)))
	require.Contains(t, NewID(RoleNone, time.Now()), "guest-")
}

func TestLoadSynthesizesAndPersistsID(t *testing.T) {
	storage := NewMapStorage()
	require.NoError(t, storage.Set(KeyRole, "player"))

	first, err := Load(storage)
	require.NoError(t, err)
	require.Equal(t, RolePlayer, first.Role())
	require.NotEmpty(t, first.ID())

	stored, ok := storage.Get(KeyUserID)
	require.True(t, ok)
	require.Equal(t, first.ID(), stored)

	second, err := Load(storage)
	require.NoError(t, err)
	require.Equal(t, first.ID(), second.ID())
}

func TestLoadReadsSessionValues(t *testing.T) {
	storage := NewMapStorage()
	for key, value := range map[string]string{
		KeyRole:       "viewer",
		KeyViewerName: "Sam",
		KeyUserID:     "viewer-1-abc",
		KeyPlayerSeat: "not-a-number",
		KeyProduction: "true",
	} {
		require.NoError(t, storage.Set(key, value))
	}
	id, err := Load(storage)
	require.NoError(t, err)
	require.Equal(t, User{Role: RoleViewer, Name: "Sam", ID: "viewer-1-abc", Production: true}, id.Current())
}

func TestUnsetRoleIsNone(t *testing.T) {
	id, err := Load(NewMapStorage())
	require.NoError(t, err)
	require.Equal(t, RoleNone, id.Role())
	require.Equal(t, RoleNone, ParseRole("ghost"))
	require.Equal(t, RoleHost, ParseRole(" Host "))
}

func TestBeginLocksRole(t *testing.T) {
	storage := NewMapStorage()
	id, err := Begin(storage, RolePlayer)
	require.NoError(t, err)
	require.Equal(t, RolePlayer, id.Role())

	_, err = Begin(storage, RolePlayer)
	require.NoError(t, err)

	_, err = Begin(storage, RoleHost)
	require.True(t, errors.Is(err, ErrRoleLocked))
}

func TestSeatAndNamePersist(t *testing.T) {
	storage := NewMapStorage()
	id, err := Begin(storage, RolePlayer)
	require.NoError(t, err)

	require.NoError(t, id.SetSeat(7))
	require.NoError(t, id.SetName("Ana"))
	reloaded, err := Load(storage)
	require.NoError(t, err)
	require.Equal(t, 7, reloaded.Seat())
	require.Equal(t, "Ana", reloaded.Name())

	require.NoError(t, id.ClearSeat())
	_, ok := storage.Get(KeyPlayerSeat)
	require.False(t, ok)
	require.Equal(t, 0, id.Seat())
}

func TestViewerNameKey(t *testing.T) {
	storage := NewMapStorage()
	id, err := Begin(storage, RoleViewer)
	require.NoError(t, err)
	require.NoError(t, id.SetName("Lee"))
	value, ok := storage.Get(KeyViewerName)
	require.True(t, ok)
	require.Equal(t, "Lee", value)
	_, ok = storage.Get(KeyPlayerName)
	require.False(t, ok)
}

func TestFileStorageSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs", "one.json")
	storage, err := OpenFileStorage(path)
	require.NoError(t, err)

	id, err := Begin(storage, RoleHost)
	require.NoError(t, err)
	require.NoError(t, id.SetSeat(1))

	reopened, err := OpenFileStorage(path)
	require.NoError(t, err)
	again, err := Load(reopened)
	require.NoError(t, err)
	require.Equal(t, id.ID(), again.ID())
	require.Equal(t, RoleHost, again.Role())
	require.Equal(t, 1, again.Seat())
}
