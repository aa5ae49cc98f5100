package game

import (
	"context"
	"testing"
	"time"

	"traitors-table/internal/identity"
	"traitors-table/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newMemory(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })
	return mem
}

// newClient starts a controller with a tick interval long enough that tests
// drive the countdown by calling Tick.
func newClient(t *testing.T, s store.Store, role identity.Role) *Controller {
	t.Helper()
	return newTickingClient(t, s, role, time.Hour)
}

func newTickingClient(t *testing.T, s store.Store, role identity.Role, tick time.Duration) *Controller {
	t.Helper()
	me, err := identity.Begin(identity.NewMapStorage(), role)
	require.NoError(t, err)
	c := NewController(s, me, zerolog.Nop(), Options{TimerTick: tick, MediaChannel: "table"})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func seated(t *testing.T, mem *store.Memory, c *Controller, seat int, name string) {
	t.Helper()
	_, err := c.ClaimSeat(context.Background(), seat, name, "")
	require.NoError(t, err)
	mem.Sync()
}

func drain(c *Controller) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func readJSON(t *testing.T, s store.Store, path string) string {
	t.Helper()
	snap, err := s.Read(context.Background(), path)
	require.NoError(t, err)
	return string(snap.Value)
}

func readSnap(t *testing.T, s store.Store, path string) store.Snapshot {
	t.Helper()
	snap, err := s.Read(context.Background(), path)
	require.NoError(t, err)
	return snap
}
