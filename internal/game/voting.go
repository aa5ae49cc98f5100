package game

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"traitors-table/internal/identity"
	"traitors-table/internal/store"
)

// TallyColors are assigned to tally rows by position.
var TallyColors = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A", "#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2"}

type TallyEntry struct {
	Seat  int
	Count int
	Color string
	Name  string
}

// Tally counts votes per target seat, one row per seat that got a vote,
// ordered by seat.
func Tally(votes map[string]int) []TallyEntry {
	counts := make(map[int]int)
	for _, seat := range votes {
		counts[seat]++
	}
	entries := make([]TallyEntry, 0, len(counts))
	for seat, count := range counts {
		entries = append(entries, TallyEntry{Seat: seat, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seat < entries[j].Seat })
	for i := range entries {
		entries[i].Color = TallyColors[i%len(TallyColors)]
	}
	return entries
}

func (c *Controller) labelTallyLocked(entries []TallyEntry) []TallyEntry {
	for i := range entries {
		entries[i].Name = "Seat " + strconv.Itoa(entries[i].Seat)
		if p, ok := c.state.occupantLocked(entries[i].Seat); ok && p.Name != "" {
			entries[i].Name = p.Name
		}
	}
	return entries
}

// CastVote records this player's vote for the player in seat. Voting again
// replaces the earlier vote.
func (c *Controller) CastVote(ctx context.Context, seat int) error {
	snap, err := c.store.Read(ctx, pathVoting)
	if err != nil {
		return fmt.Errorf("read voting: %w", err)
	}
	if voting, _ := decodeVoting(snap, c.log); !voting.Open() {
		return ErrVotingClosed
	}

	user := c.me.Current()
	if user.Role != identity.RolePlayer {
		return ErrNotPermitted
	}
	if user.Seat == 0 {
		return fmt.Errorf("%w: not seated", ErrNotPermitted)
	}
	if p, ok := c.state.Player(user.ID); ok && p.Ghost() {
		return fmt.Errorf("%w: ghosts cannot vote", ErrNotPermitted)
	}
	if seat < MinPlayerSeat || seat > MaxSeat {
		return fmt.Errorf("%w: seat %d", ErrInvalidTarget, seat)
	}
	if _, ok := c.state.OccupantOf(seat); !ok {
		return fmt.Errorf("%w: seat %d", ErrInvalidTarget, seat)
	}

	if store.SupportsTransactions(c.store) {
		err = store.Transact(ctx, c.store, pathVoting, func(current store.Snapshot) (any, error) {
			voting, _ := decodeVoting(current, c.log)
			if !voting.Open() {
				return nil, ErrVotingClosed
			}
			round := map[string]any{}
			if err := current.Decode(&round); err != nil {
				return nil, err
			}
			votes, _ := round["votes"].(map[string]any)
			if votes == nil {
				votes = map[string]any{}
			}
			votes[user.ID] = seat
			round["votes"] = votes
			return round, nil
		})
	} else {
		err = c.store.Write(ctx, votingField("votes", user.ID), seat)
	}
	if err != nil {
		return fmt.Errorf("cast vote: %w", err)
	}
	c.log.Info().Int("seat", seat).Msg("vote cast")
	return nil
}

// Reveal shows this player's vote when it is their turn. It reports false
// without writing when it is not.
func (c *Controller) Reveal(ctx context.Context) (bool, error) {
	user := c.me.Current()
	if user.Role != identity.RolePlayer {
		return false, nil
	}
	snap, err := c.store.Read(ctx, pathVoting)
	if err != nil {
		return false, fmt.Errorf("read voting: %w", err)
	}
	voting, ok := decodeVoting(snap, c.log)
	if !ok || voting.CurrentRevealer != user.ID {
		return false, nil
	}
	if _, voted := voting.Votes[user.ID]; !voted {
		return false, nil
	}
	if err := c.store.Update(ctx, pathVoting, map[string]any{
		"revealed/" + user.ID: true,
		"lastRevealed":        user.ID,
	}); err != nil {
		return false, fmt.Errorf("reveal vote: %w", err)
	}
	c.log.Info().Int("seat", voting.Votes[user.ID]).Msg("vote revealed")
	return true, nil
}

// RevealArmed reports whether the reveal key is live.
func (c *Controller) RevealArmed() bool {
	return c.revealArmed.Load()
}

// HandleKey routes a key press. Space reveals this player's vote once per
// turn.
func (c *Controller) HandleKey(ctx context.Context, key string) (bool, error) {
	if key != "Space" && key != " " {
		return false, nil
	}
	if !c.revealArmed.CompareAndSwap(true, false) {
		return false, nil
	}
	revealed, err := c.Reveal(ctx)
	if err != nil || (!revealed && c.myTurnToReveal()) {
		c.revealArmed.Store(true)
	}
	return revealed, err
}

// myTurnToReveal reports whether the last voting push still hands the
// reveal turn to this player.
func (c *Controller) myTurnToReveal() bool {
	voting, ok := c.state.Voting()
	id := c.me.ID()
	return ok && voting.Active && voting.CurrentRevealer == id && !voting.Revealed[id]
}

// StartVote opens a fresh round. A positive seconds also starts the countdown
// that locks it.
func (c *Controller) StartVote(ctx context.Context, seconds int) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if err := c.store.Write(ctx, pathVoting, Voting{Active: true}); err != nil {
		return fmt.Errorf("start vote: %w", err)
	}
	c.log.Info().Int("seconds", seconds).Msg("vote started")
	if seconds > 0 {
		return c.StartTimer(ctx, "voting", seconds)
	}
	return nil
}

func (c *Controller) LockVoting(ctx context.Context) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if err := c.store.Write(ctx, votingField("votingLocked"), true); err != nil {
		return fmt.Errorf("lock voting: %w", err)
	}
	return nil
}

// SetRevealer hands the reveal turn to a voter. An empty id clears it.
func (c *Controller) SetRevealer(ctx context.Context, playerID string) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	var value any
	if playerID != "" {
		value = playerID
	}
	if err := c.store.Write(ctx, votingField("currentRevealer"), value); err != nil {
		return fmt.Errorf("set revealer: %w", err)
	}
	return nil
}

// NextRevealer passes the turn to the next unrevealed voter in seat order
// after lastRevealed, wrapping to the lowest seat. It reports false once
// everyone has revealed.
func (c *Controller) NextRevealer(ctx context.Context) (string, bool, error) {
	if err := c.requireHost(); err != nil {
		return "", false, err
	}
	snap, err := c.store.Read(ctx, pathVoting)
	if err != nil {
		return "", false, fmt.Errorf("read voting: %w", err)
	}
	voting, _ := decodeVoting(snap, c.log)
	players := c.state.Players()
	seatOf := func(id string) int {
		if p, ok := players[id]; ok {
			return p.Seat
		}
		return MaxSeat + 1
	}
	voters := make([]string, 0, len(voting.Votes))
	for id := range voting.Votes {
		if !voting.Revealed[id] {
			voters = append(voters, id)
		}
	}
	if len(voters) == 0 {
		return "", false, c.SetRevealer(ctx, "")
	}
	sort.Slice(voters, func(i, j int) bool {
		if seatOf(voters[i]) != seatOf(voters[j]) {
			return seatOf(voters[i]) < seatOf(voters[j])
		}
		return voters[i] < voters[j]
	})
	next := voters[0]
	if voting.LastRevealed != "" {
		after := seatOf(voting.LastRevealed)
		for _, id := range voters {
			if seatOf(id) > after {
				next = id
				break
			}
		}
	}
	return next, true, c.SetRevealer(ctx, next)
}

// EndVote closes the round. Votes stay readable until the next StartVote.
func (c *Controller) EndVote(ctx context.Context) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if err := c.store.Update(ctx, pathVoting, map[string]any{
		"active":          false,
		"currentRevealer": nil,
	}); err != nil {
		return fmt.Errorf("end vote: %w", err)
	}
	return nil
}
