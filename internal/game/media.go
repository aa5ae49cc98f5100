package game

import (
	"context"
	"fmt"

	"traitors-table/internal/identity"
	"traitors-table/internal/media"
	"traitors-table/internal/store"
)

// JoinMedia connects this client's camera and microphone under its seat
// number. Viewers, ghosts and unseated players stay off camera. A failure
// leaves the game playable without media.
func (c *Controller) JoinMedia(ctx context.Context, session media.Session) error {
	user := c.me.Current()
	if user.Role != identity.RoleHost && user.Role != identity.RolePlayer {
		return nil
	}
	if user.Seat == 0 {
		return nil
	}
	key := c.myKey()
	if p, ok := c.state.Player(key); ok && p.Ghost() {
		return nil
	}

	session.OnRemoteTrackPublished(c.onRemoteTrack)
	if err := session.Join(ctx, c.opts.MediaChannel, user.Seat); err != nil {
		return c.mediaDegraded(err)
	}
	if err := session.PublishLocalTracks(ctx); err != nil {
		if leaveErr := session.Leave(ctx); leaveErr != nil {
			c.log.Debug().Err(leaveErr).Msg("leave after failed publish")
		}
		return c.mediaDegraded(err)
	}
	c.mu.Lock()
	c.media = session
	c.mu.Unlock()

	fields := map[string]any{"videoActive": true}
	if user.Role == identity.RoleHost && user.Production {
		if err := session.SetEnabled(ctx, media.TrackVideo, false); err != nil {
			c.log.Warn().Err(err).Msg("could not turn off production camera")
		} else {
			fields["videoOff"] = true
		}
	}
	if err := c.store.Update(ctx, playerPath(key), fields); err != nil {
		return fmt.Errorf("mark video active: %w", err)
	}
	c.log.Info().Int("seat", user.Seat).Str("channel", c.opts.MediaChannel).Msg("media joined")
	return nil
}

// LeaveMedia disconnects from the media channel.
func (c *Controller) LeaveMedia(ctx context.Context) error {
	c.mu.Lock()
	session := c.media
	c.media = nil
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	if err := session.Leave(ctx); err != nil {
		return fmt.Errorf("leave media: %w", err)
	}
	if err := c.store.Write(ctx, store.Join(playerPath(c.myKey()), "videoActive"), false); err != nil {
		return fmt.Errorf("mark video inactive: %w", err)
	}
	return nil
}

func (c *Controller) mediaDegraded(err error) error {
	c.log.Warn().Err(err).Msg("continuing without media")
	c.emit(Event{Kind: EventMediaDegraded, Err: err})
	return fmt.Errorf("join media: %w", err)
}

func (c *Controller) onRemoteTrack(seat int, kind media.TrackKind, published bool) {
	if kind != media.TrackVideo {
		return
	}
	c.state.mu.Lock()
	if published {
		c.state.mediaActive[seat] = true
	} else {
		delete(c.state.mediaActive, seat)
	}
	c.state.mu.Unlock()
	c.emit(Event{Kind: EventMedia, Seat: seat, Active: published})
}
