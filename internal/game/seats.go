package game

import (
	"context"
	"fmt"

	"traitors-table/internal/identity"
	"traitors-table/internal/media"
	"traitors-table/internal/store"

	"go.uber.org/multierr"
)

// ClaimSeat seats this player. The seat index is the lock: with a
// conditional store it is taken first, then the player record is written.
// Without one the check and the writes can interleave with another claim;
// Reconcile cleans up the loser.
func (c *Controller) ClaimSeat(ctx context.Context, seat int, name, pronouns string) (Player, error) {
	user := c.me.Current()
	if user.Role != identity.RolePlayer {
		return Player{}, ErrNotPermitted
	}
	if user.Seat != 0 {
		return Player{}, fmt.Errorf("%w: seat %d", ErrAlreadySeated, user.Seat)
	}
	if seat < MinPlayerSeat || seat > MaxSeat {
		return Player{}, fmt.Errorf("%w: %d", ErrInvalidSeat, seat)
	}
	name, err := c.checkName(name, user.ID)
	if err != nil {
		return Player{}, err
	}
	player := Player{
		ID:       user.ID,
		Name:     name,
		Pronouns: cleanText(pronouns, MaxPronounsLength),
		Seat:     seat,
		Room:     RoomMain,
		Status:   StatusActive,
		JoinedAt: c.opts.Now().UnixMilli(),
	}

	if store.SupportsTransactions(c.store) {
		err = store.Transact(ctx, c.store, seatPath(seat), func(current store.Snapshot) (any, error) {
			if holder := seatHolder(current); holder != "" && holder != user.ID {
				return nil, fmt.Errorf("%w: seat %d", ErrSeatTaken, seat)
			}
			return user.ID, nil
		})
		if err != nil {
			return Player{}, fmt.Errorf("claim seat: %w", err)
		}
		if err := c.store.Write(ctx, playerPath(user.ID), player); err != nil {
			rollback := c.store.Write(ctx, seatPath(seat), nil)
			return Player{}, multierr.Append(fmt.Errorf("write player: %w", err), rollback)
		}
	} else {
		snap, err := c.store.Read(ctx, seatPath(seat))
		if err != nil {
			return Player{}, fmt.Errorf("read seat: %w", err)
		}
		if holder := seatHolder(snap); holder != "" && holder != user.ID {
			return Player{}, fmt.Errorf("%w: seat %d", ErrSeatTaken, seat)
		}
		if err := c.store.Write(ctx, playerPath(user.ID), player); err != nil {
			return Player{}, fmt.Errorf("write player: %w", err)
		}
		if err := c.store.Write(ctx, seatPath(seat), user.ID); err != nil {
			return Player{}, fmt.Errorf("write seat: %w", err)
		}
	}

	if err := multierr.Append(c.me.SetSeat(seat), c.me.SetName(name)); err != nil {
		return player, fmt.Errorf("save session: %w", err)
	}
	c.log.Info().Int("seat", seat).Str("name", name).Msg("seat claimed")
	return player, nil
}

// seatHolder returns the id in a seat index entry. Anything that is not a
// string counts as held.
func seatHolder(snap store.Snapshot) string {
	if !snap.Exists() {
		return ""
	}
	var id string
	if err := snap.Decode(&id); err != nil {
		return "?"
	}
	return id
}

// Reconcile checks that this player still owns the seat it believes it holds.
// If another claim won, the local seat and the stale record are dropped and
// ErrSeatTaken is returned.
func (c *Controller) Reconcile(ctx context.Context) error {
	user := c.me.Current()
	if user.Role != identity.RolePlayer || user.Seat == 0 {
		return nil
	}
	snap, err := c.store.Read(ctx, seatPath(user.Seat))
	if err != nil {
		return fmt.Errorf("read seat: %w", err)
	}
	holder := seatHolder(snap)
	if holder == "" || holder == user.ID {
		return nil
	}
	err = multierr.Append(c.me.ClearSeat(), c.store.Write(ctx, playerPath(user.ID), nil))
	c.log.Warn().Int("seat", user.Seat).Str("holder", holder).Msg("lost seat to another claim")
	c.emit(Event{Kind: EventSeatLost, Seat: user.Seat, PlayerID: holder})
	return multierr.Append(fmt.Errorf("%w: seat %d is held by %s", ErrSeatTaken, user.Seat, holder), err)
}

// RegisterHost writes the host record and seats the host in seat 1.
func (c *Controller) RegisterHost(ctx context.Context, name string) (Player, error) {
	if err := c.requireHost(); err != nil {
		return Player{}, err
	}
	name, err := c.checkName(name, HostKey)
	if err != nil {
		return Player{}, err
	}
	host := Player{
		ID:       HostKey,
		Name:     name,
		Seat:     HostSeat,
		Room:     RoomMain,
		Status:   StatusActive,
		JoinedAt: c.opts.Now().UnixMilli(),
	}
	if existing, ok := c.state.Player(HostKey); ok {
		host.Pronouns = existing.Pronouns
		host.JoinedAt = existing.JoinedAt
	}
	if err := c.store.Write(ctx, playerPath(HostKey), host); err != nil {
		return Player{}, fmt.Errorf("write host: %w", err)
	}
	if err := c.store.Write(ctx, seatPath(HostSeat), HostKey); err != nil {
		return Player{}, fmt.Errorf("write seat: %w", err)
	}
	if err := multierr.Append(c.me.SetSeat(HostSeat), c.me.SetName(name)); err != nil {
		return host, fmt.Errorf("save session: %w", err)
	}
	return host, nil
}

func (c *Controller) checkName(name, exceptID string) (string, error) {
	name = cleanText(name, MaxNameLength)
	if name == "" {
		return "", ErrNameRequired
	}
	if c.state.NameTaken(name, exceptID) {
		return "", fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	return name, nil
}

func (c *Controller) requireSeated() (identity.User, error) {
	user := c.me.Current()
	switch user.Role {
	case identity.RoleHost:
		return user, nil
	case identity.RolePlayer:
		if user.Seat == 0 {
			return user, fmt.Errorf("%w: not seated", ErrNotPermitted)
		}
		return user, nil
	default:
		return user, ErrNotPermitted
	}
}

func (c *Controller) Rename(ctx context.Context, name string) error {
	if _, err := c.requireSeated(); err != nil {
		return err
	}
	current, _ := c.state.Player(c.myKey())
	return c.UpdateProfile(ctx, name, current.Pronouns)
}

func (c *Controller) UpdatePronouns(ctx context.Context, pronouns string) error {
	if _, err := c.requireSeated(); err != nil {
		return err
	}
	key := c.myKey()
	pronouns = cleanText(pronouns, MaxPronounsLength)
	if err := c.store.Update(ctx, playerPath(key), map[string]any{"pronouns": pronouns}); err != nil {
		return fmt.Errorf("update pronouns: %w", err)
	}
	return nil
}

// UpdateProfile changes the display name and pronouns in one write.
func (c *Controller) UpdateProfile(ctx context.Context, name, pronouns string) error {
	if _, err := c.requireSeated(); err != nil {
		return err
	}
	key := c.myKey()
	name, err := c.checkName(name, key)
	if err != nil {
		return err
	}
	pronouns = cleanText(pronouns, MaxPronounsLength)
	if err := c.store.Update(ctx, playerPath(key), map[string]any{
		"name":     name,
		"pronouns": pronouns,
	}); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if err := c.me.SetName(name); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	c.log.Info().Str("name", name).Msg("profile updated")
	return nil
}

// SetStatus ghosts or revives a player. Ghosts keep their seat.
func (c *Controller) SetStatus(ctx context.Context, playerID string, status Status) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if _, ok := c.state.Player(playerID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	if err := c.store.Write(ctx, store.Join(playerPath(playerID), "status"), string(status)); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	c.log.Info().Str("player_id", playerID).Str("status", string(status)).Msg("status changed")
	return nil
}

func (c *Controller) MoveToRoom(ctx context.Context, playerID string, room Room) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if !room.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	if _, ok := c.state.Player(playerID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	return c.writeRoom(ctx, playerID, room)
}

// MoveSelf moves this player to another room.
func (c *Controller) MoveSelf(ctx context.Context, room Room) error {
	if _, err := c.requireSeated(); err != nil {
		return err
	}
	if !room.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	return c.writeRoom(ctx, c.myKey(), room)
}

func (c *Controller) writeRoom(ctx context.Context, key string, room Room) error {
	if err := c.store.Write(ctx, store.Join(playerPath(key), "room"), string(room)); err != nil {
		return fmt.Errorf("move to room: %w", err)
	}
	c.log.Info().Str("player_id", key).Str("room", string(room)).Msg("room changed")
	return nil
}

// SetVideoOff records the camera preference and applies it to the joined
// media session, if any.
func (c *Controller) SetVideoOff(ctx context.Context, off bool) error {
	if _, err := c.requireSeated(); err != nil {
		return err
	}
	if err := c.store.Write(ctx, store.Join(playerPath(c.myKey()), "videoOff"), off); err != nil {
		return fmt.Errorf("set video: %w", err)
	}
	c.mu.Lock()
	session := c.media
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.SetEnabled(ctx, media.TrackVideo, !off)
}
