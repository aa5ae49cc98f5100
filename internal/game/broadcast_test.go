package game

import (
	"context"
	"testing"

	"traitors-table/internal/identity"

	"github.com/stretchr/testify/require"
)

func TestAnnouncementFiresOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	host := newClient(t, mem, identity.RoleHost)
	viewer := newClient(t, mem, identity.RoleViewer)

	require.ErrorIs(t, viewer.Announce(ctx, "hi"), ErrNotPermitted)
	for _, text := range []string{"Breakfast is served", "Breakfast is served", "Someone was murdered", ""} {
		require.NoError(t, host.Announce(ctx, text))
		mem.Sync()
	}
	require.NoError(t, host.Announce(ctx, "Someone was murdered"))
	mem.Sync()

	var texts []string
	for _, ev := range ofKind(drain(viewer), EventAnnouncement) {
		texts = append(texts, ev.Text)
	}
	require.Equal(t, []string{"Breakfast is served", "Someone was murdered", "Someone was murdered"}, texts)
	require.Equal(t, "Someone was murdered", viewer.State().Announcement().Text)
}

func TestSpotlightFiresPerNewPlayer(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	host := newClient(t, mem, identity.RoleHost)
	ana := newClient(t, mem, identity.RolePlayer)
	bo := newClient(t, mem, identity.RolePlayer)
	seated(t, mem, ana, 2, "Ana")
	seated(t, mem, bo, 3, "Bo")

	require.ErrorIs(t, host.Spotlight(ctx, "nobody"), ErrUnknownPlayer)
	steps := []func() error{
		func() error { return host.Spotlight(ctx, ana.me.ID()) },
		func() error { return host.Spotlight(ctx, ana.me.ID()) },
		func() error { return host.Spotlight(ctx, bo.me.ID()) },
		func() error { return host.ClearSpotlight(ctx) },
		func() error { return host.Spotlight(ctx, bo.me.ID()) },
	}
	for _, step := range steps {
		require.NoError(t, step())
		mem.Sync()
	}

	var ids []string
	for _, ev := range ofKind(drain(ana), EventSpotlight) {
		ids = append(ids, ev.PlayerID)
	}
	require.Equal(t, []string{ana.me.ID(), bo.me.ID(), bo.me.ID()}, ids)
	require.True(t, ana.State().Spotlight().Active)
}
