package game

import (
	"context"
	"testing"

	"traitors-table/internal/identity"
	"traitors-table/internal/media"
	"traitors-table/internal/media/loopback"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestJoinMediaTracksRemoteSeats(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	room := loopback.NewRoom()
	ana := newClient(t, mem, identity.RolePlayer)
	bo := newClient(t, mem, identity.RolePlayer)
	seated(t, mem, ana, 2, "Ana")
	seated(t, mem, bo, 3, "Bo")

	require.NoError(t, ana.JoinMedia(ctx, room.NewSession(loopback.Options{})))
	require.NoError(t, bo.JoinMedia(ctx, room.NewSession(loopback.Options{})))
	mem.Sync()

	require.True(t, ana.State().MediaActive(3))
	require.True(t, bo.State().MediaActive(2))
	record, _ := ana.State().Player(bo.me.ID())
	require.True(t, record.VideoActive)

	require.NoError(t, bo.SetVideoOff(ctx, true))
	mem.Sync()
	require.False(t, ana.State().MediaActive(3))
	record, _ = ana.State().Player(bo.me.ID())
	require.True(t, record.VideoOff)

	require.NoError(t, bo.LeaveMedia(ctx))
	mem.Sync()
	record, _ = ana.State().Player(bo.me.ID())
	require.False(t, record.VideoActive)
}

func TestJoinMediaDegradesWithoutDevices(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	room := loopback.NewRoom()
	ana := newClient(t, mem, identity.RolePlayer)
	seated(t, mem, ana, 2, "Ana")

	err := ana.JoinMedia(ctx, room.NewSession(loopback.Options{DenyDevices: true}))
	require.ErrorIs(t, err, media.ErrPermissionDenied)
	require.Len(t, ofKind(drain(ana), EventMediaDegraded), 1)

	// The failed session left the channel, so a retry can join cleanly.
	require.NoError(t, ana.JoinMedia(ctx, room.NewSession(loopback.Options{})))
}

func TestJoinMediaSkipsViewersAndUnseated(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	room := loopback.NewRoom()
	viewer := newClient(t, mem, identity.RoleViewer)
	player := newClient(t, mem, identity.RolePlayer)

	session := room.NewSession(loopback.Options{})
	require.NoError(t, viewer.JoinMedia(ctx, session))
	require.NoError(t, player.JoinMedia(ctx, session))
	require.ErrorIs(t, session.SetEnabled(ctx, media.TrackVideo, true), media.ErrNotJoined)
}

func TestProductionHostJoinsWithCameraOff(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	room := loopback.NewRoom()

	storage := identity.NewMapStorage()
	require.NoError(t, storage.Set(identity.KeyProduction, "true"))
	me, err := identity.Begin(storage, identity.RoleHost)
	require.NoError(t, err)
	host := NewController(mem, me, zerolog.Nop(), Options{MediaChannel: "table"})
	require.NoError(t, host.Start(ctx))
	t.Cleanup(func() { host.Close() })
	_, err = host.RegisterHost(ctx, "Claudia")
	require.NoError(t, err)
	mem.Sync()

	ana := newClient(t, mem, identity.RolePlayer)
	seated(t, mem, ana, 2, "Ana")
	require.NoError(t, ana.JoinMedia(ctx, room.NewSession(loopback.Options{})))
	require.NoError(t, host.JoinMedia(ctx, room.NewSession(loopback.Options{})))
	mem.Sync()

	require.False(t, ana.State().MediaActive(1))
	record, _ := ana.State().Player(HostKey)
	require.True(t, record.VideoActive)
	require.True(t, record.VideoOff)
}
