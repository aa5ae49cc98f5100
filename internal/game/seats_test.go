package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"traitors-table/internal/identity"
	"traitors-table/internal/store"

	"github.com/stretchr/testify/require"
)

func TestClaimSeatIsExclusive(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	ana := newClient(t, mem, identity.RolePlayer)
	bo := newClient(t, mem, identity.RolePlayer)

	player, err := ana.ClaimSeat(ctx, 5, "  Anastasia-Marie ", "she/her")
	require.NoError(t, err)
	require.Equal(t, "Anastasia-Ma", player.Name)
	require.Equal(t, 5, ana.me.Seat())
	mem.Sync()

	_, err = bo.ClaimSeat(ctx, 5, "Bo", "")
	require.ErrorIs(t, err, ErrSeatTaken)
	require.Equal(t, 0, bo.me.Seat())

	_, err = bo.ClaimSeat(ctx, 6, "anastasia-ma", "")
	require.ErrorIs(t, err, ErrDuplicateName)

	_, err = ana.ClaimSeat(ctx, 7, "Ana", "")
	require.ErrorIs(t, err, ErrAlreadySeated)

	require.Equal(t, `"`+ana.me.ID()+`"`, readJSON(t, mem, "game/seats/5"))
	occupant, ok := bo.State().OccupantOf(5)
	require.True(t, ok)
	require.Equal(t, ana.me.ID(), occupant.ID)
	require.Equal(t, "Seat 6", bo.State().SeatLabel(6))
}

func TestClaimSeatValidation(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	player := newClient(t, mem, identity.RolePlayer)
	viewer := newClient(t, mem, identity.RoleViewer)

	_, err := player.ClaimSeat(ctx, 1, "Ana", "")
	require.ErrorIs(t, err, ErrInvalidSeat)
	_, err = player.ClaimSeat(ctx, 26, "Ana", "")
	require.ErrorIs(t, err, ErrInvalidSeat)
	_, err = player.ClaimSeat(ctx, 4, "   ", "")
	require.ErrorIs(t, err, ErrNameRequired)
	_, err = viewer.ClaimSeat(ctx, 4, "Vic", "")
	require.ErrorIs(t, err, ErrNotPermitted)
}

// barrierStore holds every reader of one path until all expected readers have
// read it, forcing two blind claims to interleave.
type barrierStore struct {
	store.Store
	path    string
	reads   atomic.Int32
	readers sync.WaitGroup
}

func (b *barrierStore) Read(ctx context.Context, path string) (store.Snapshot, error) {
	snap, err := b.Store.Read(ctx, path)
	if path == b.path && b.reads.Add(1) <= 2 {
		b.readers.Done()
		b.readers.Wait()
	}
	return snap, err
}

func TestBlindClaimRaceIsReconciled(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	racy := &barrierStore{Store: mem, path: "game/seats/9"}
	racy.readers.Add(2)
	require.False(t, store.SupportsTransactions(racy))

	ana := newClient(t, racy, identity.RolePlayer)
	bo := newClient(t, racy, identity.RolePlayer)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, c := range []*Controller{ana, bo} {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.ClaimSeat(ctx, 9, []string{"Ana", "Bo"}[i], "")
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	mem.Sync()

	lost := 0
	var winner, loser *Controller
	for _, c := range []*Controller{ana, bo} {
		err := c.Reconcile(ctx)
		if errors.Is(err, ErrSeatTaken) {
			lost++
			loser = c
		} else {
			require.NoError(t, err)
			winner = c
		}
	}
	require.Equal(t, 1, lost)
	mem.Sync()

	require.Equal(t, 0, loser.me.Seat())
	require.Equal(t, 9, winner.me.Seat())
	require.Equal(t, "", readJSON(t, mem, "players/"+loser.me.ID()))
	require.Len(t, ofKind(drain(loser), EventSeatLost), 1)

	occupant, ok := winner.State().OccupantOf(9)
	require.True(t, ok)
	require.Equal(t, winner.me.ID(), occupant.ID)
}

func TestOccupantSkipsGhostsAndPrefersEarliest(t *testing.T) {
	s := newState()
	s.players = map[string]Player{
		"late":  {ID: "late", Seat: 4, JoinedAt: 20, Status: StatusActive},
		"early": {ID: "early", Seat: 4, JoinedAt: 10, Status: StatusActive},
		"ghost": {ID: "ghost", Seat: 5, JoinedAt: 1, Status: StatusGhost},
	}
	p, ok := s.OccupantOf(4)
	require.True(t, ok)
	require.Equal(t, "early", p.ID)
	_, ok = s.OccupantOf(5)
	require.False(t, ok)
}

func TestRenameAndProfile(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	ana := newClient(t, mem, identity.RolePlayer)
	bo := newClient(t, mem, identity.RolePlayer)
	seated(t, mem, ana, 3, "Ana")
	seated(t, mem, bo, 4, "Bo")

	require.ErrorIs(t, bo.Rename(ctx, "ANA"), ErrDuplicateName)
	require.ErrorIs(t, bo.Rename(ctx, ""), ErrNameRequired)
	require.NoError(t, bo.UpdateProfile(ctx, "Bobbybobbybobby", "they/them"))
	mem.Sync()
	record, _ := ana.State().Player(bo.me.ID())
	require.Equal(t, "Bobbybobbybo", record.Name)
	require.NoError(t, bo.Rename(ctx, "Bo"))
	mem.Sync()

	record, ok := ana.State().Player(bo.me.ID())
	require.True(t, ok)
	require.Equal(t, "Bo", record.Name)
	require.Equal(t, "they/them", record.Pronouns)
	require.Equal(t, "Bo", bo.me.Name())
}

func TestHostRegistersAndManagesPlayers(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	host := newClient(t, mem, identity.RoleHost)
	ana := newClient(t, mem, identity.RolePlayer)

	_, err := host.RegisterHost(ctx, "Claudia")
	require.NoError(t, err)
	seated(t, mem, ana, 2, "Ana")

	require.Equal(t, `"host"`, readJSON(t, mem, "game/seats/1"))
	require.Equal(t, "Claudia", ana.State().SeatLabel(1))

	require.ErrorIs(t, host.MoveToRoom(ctx, ana.me.ID(), "attic"), ErrInvalidRoom)
	require.ErrorIs(t, host.SetStatus(ctx, "nobody", StatusGhost), ErrUnknownPlayer)
	require.ErrorIs(t, ana.SetStatus(ctx, ana.me.ID(), StatusGhost), ErrNotPermitted)
	require.NoError(t, host.MoveToRoom(ctx, ana.me.ID(), RoomLibrary))
	require.NoError(t, host.SetStatus(ctx, ana.me.ID(), StatusGhost))
	mem.Sync()

	record, ok := host.State().Player(ana.me.ID())
	require.True(t, ok)
	require.Equal(t, RoomLibrary, record.Room)
	require.True(t, record.Ghost())
	require.Equal(t, 2, record.Seat)
	_, ok = host.State().OccupantOf(2)
	require.False(t, ok)
}
