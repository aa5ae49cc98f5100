package game

import (
	"context"
	"fmt"
	"strings"
)

// Announce shows text to every client. Clients only redisplay when the text
// changes.
func (c *Controller) Announce(ctx context.Context, text string) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if err := c.store.Write(ctx, pathAnnouncement, Announcement{Text: strings.TrimSpace(text)}); err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	return nil
}

// Spotlight puts a player in the circle of truth.
func (c *Controller) Spotlight(ctx context.Context, playerID string) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if _, ok := c.state.Player(playerID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	if err := c.store.Write(ctx, pathSpotlight, Spotlight{Active: true, PlayerID: playerID}); err != nil {
		return fmt.Errorf("spotlight: %w", err)
	}
	return nil
}

func (c *Controller) ClearSpotlight(ctx context.Context) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if err := c.store.Write(ctx, pathSpotlight, Spotlight{}); err != nil {
		return fmt.Errorf("clear spotlight: %w", err)
	}
	return nil
}
