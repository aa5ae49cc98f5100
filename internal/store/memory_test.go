package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) fn(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.snaps))
	for _, snap := range r.snaps {
		out = append(out, string(snap.Value))
	}
	return out
}

func TestSubscribeFiresImmediatelyThenOnWrite(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	rec := &recorder{}
	unsubscribe := mem.Subscribe("game/phase", rec.fn)
	require.NoError(t, mem.Write(ctx, "game/phase", "lobby"))
	mem.Sync()
	require.Equal(t, []string{"", `"lobby"`}, rec.values())

	unsubscribe()
	require.NoError(t, mem.Write(ctx, "game/phase", "night"))
	mem.Sync()
	require.Len(t, rec.values(), 2)
}

func TestSubscribeSeesAncestorAndDescendantWrites(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	parent := &recorder{}
	child := &recorder{}
	sibling := &recorder{}
	mem.Subscribe("game/voting", parent.fn)
	mem.Subscribe("game/voting/votes/p1", child.fn)
	mem.Subscribe("game/phase", sibling.fn)

	require.NoError(t, mem.Write(ctx, "game/voting/votes/p1", 3))
	require.NoError(t, mem.Write(ctx, "game/voting", map[string]any{"active": true}))
	mem.Sync()

	require.Equal(t, []string{"", `{"votes":{"p1":3}}`, `{"active":true}`}, parent.values())
	require.Equal(t, []string{"", "3", ""}, child.values())
	require.Equal(t, []string{""}, sibling.values())
}

func TestWriteNilDeletesAndPrunes(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	require.NoError(t, mem.Write(ctx, "players/p1/name", "Ana"))
	require.NoError(t, mem.Write(ctx, "players/p1/name", nil))

	snap, err := mem.Read(ctx, "players")
	require.NoError(t, err)
	require.False(t, snap.Exists())
}

func TestUpdateCommitsOnce(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	rec := &recorder{}
	mem.Subscribe("game/voting", rec.fn)
	require.NoError(t, mem.Update(ctx, "game/voting", map[string]any{
		"revealed/p1":  true,
		"lastRevealed": "p1",
	}))
	mem.Sync()

	require.Equal(t, []string{"", `{"lastRevealed":"p1","revealed":{"p1":true}}`}, rec.values())
	require.Equal(t, int64(1), mem.Revision())
}

func TestInvalidPathRejected(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	require.ErrorIs(t, mem.Write(ctx, "players/../host", "x"), ErrInvalidPath)
	require.ErrorIs(t, mem.Write(ctx, "players/a#b", "x"), ErrInvalidPath)
	require.ErrorIs(t, mem.Update(ctx, "game", map[string]any{"": 1}), ErrInvalidPath)
}

func TestCompareAndSwapVersions(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	snap, err := mem.Read(ctx, "game/seats/5")
	require.NoError(t, err)
	require.Equal(t, int64(0), snap.Version)

	ok, err := mem.CompareAndSwap(ctx, "game/seats/5", snap.Version, "p1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mem.CompareAndSwap(ctx, "game/seats/5", snap.Version, "p2")
	require.NoError(t, err)
	require.False(t, ok)

	// A write to an ancestor bumps the version seen at the leaf.
	require.NoError(t, mem.Write(ctx, "game/seats", map[string]any{"5": "p3"}))
	after, err := mem.Read(ctx, "game/seats/5")
	require.NoError(t, err)
	require.Equal(t, `"p3"`, string(after.Value))
	require.Greater(t, after.Version, int64(1))
}

func TestTransactRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	attempts := 0
	err := Transact(ctx, mem, "counter", func(current Snapshot) (any, error) {
		attempts++
		var n int
		require.NoError(t, current.Decode(&n))
		if attempts == 1 {
			require.NoError(t, mem.Write(ctx, "counter", 10))
		}
		return n + 1, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	snap, err := mem.Read(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, "11", string(snap.Value))
}

func TestTransactAbortsWithCallbackError(t *testing.T) {
	mem := NewMemory()
	defer mem.Close()

	boom := errors.New("boom")
	err := Transact(context.Background(), mem, "x", func(Snapshot) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestBlindStoreHasNoTransactions(t *testing.T) {
	mem := NewMemory()
	defer mem.Close()

	blind := Blind(mem)
	require.False(t, SupportsTransactions(blind))
	require.True(t, SupportsTransactions(mem))
	err := Transact(context.Background(), blind, "x", func(Snapshot) (any, error) { return 1, nil })
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestCommitHooksAndRestore(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	var changes []Change
	mem.OnCommit(func(change Change) { changes = append(changes, change) })
	require.NoError(t, mem.Write(ctx, "game/phase", "talk"))
	require.NoError(t, mem.Write(ctx, "game/timer", map[string]any{"remainingSeconds": 5}))
	require.Len(t, changes, 2)
	require.Equal(t, "game/timer", changes[1].Path)
	require.JSONEq(t, `{"remainingSeconds":5}`, string(changes[1].Value))

	restored := NewMemory()
	defer restored.Close()
	require.NoError(t, restored.Restore(changes))
	require.Equal(t, int64(2), restored.Revision())

	snap, err := restored.Read(ctx, "game")
	require.NoError(t, err)
	require.JSONEq(t, `{"phase":"talk","timer":{"remainingSeconds":5}}`, string(snap.Value))
}

func TestCallbackMayWriteWithoutDeadlock(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	mem.Subscribe("a", func(snap Snapshot) {
		if snap.Exists() {
			_ = mem.Write(ctx, "b", json.RawMessage(snap.Value))
		}
	})
	require.NoError(t, mem.Write(ctx, "a", 7))
	mem.Sync()

	snap, err := mem.Read(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "7", string(snap.Value))
}

func TestPathHelpers(t *testing.T) {
	require.Equal(t, "game/seats/5", Clean("/game//seats/5/"))
	require.Equal(t, "players/p1", Join("players", "p1"))
	require.True(t, related("game", "game/phase"))
	require.True(t, related("", "x"))
	require.False(t, related("game/phase", "game/phaseX"))
}
