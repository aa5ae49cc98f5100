package game

import (
	"context"
	"fmt"
	"time"

	"traitors-table/internal/identity"
)

// StartTimer starts a countdown owned by this host, replacing any running one.
func (c *Controller) StartTimer(ctx context.Context, label string, seconds int) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}
	timer := Timer{Phase: label, IsRunning: true, RemainingSeconds: seconds, Owner: c.me.ID()}
	if err := c.store.Write(ctx, pathTimer, timer); err != nil {
		return fmt.Errorf("start timer: %w", err)
	}
	c.startTickLoop(true)
	c.log.Info().Str("label", label).Int("seconds", seconds).Msg("timer started")
	return nil
}

func (c *Controller) PauseTimer(ctx context.Context) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	c.stopTickLoop()
	if err := c.store.Write(ctx, timerField("isRunning"), false); err != nil {
		return fmt.Errorf("pause timer: %w", err)
	}
	return nil
}

// ResumeTimer restarts a paused countdown and takes ownership of it.
func (c *Controller) ResumeTimer(ctx context.Context) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if err := c.store.Update(ctx, pathTimer, map[string]any{
		"isRunning": true,
		"owner":     c.me.ID(),
	}); err != nil {
		return fmt.Errorf("resume timer: %w", err)
	}
	c.startTickLoop(true)
	return nil
}

func (c *Controller) StopTimer(ctx context.Context) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	c.stopTickLoop()
	if err := c.store.Update(ctx, pathTimer, map[string]any{
		"isRunning":        false,
		"remainingSeconds": 0,
	}); err != nil {
		return fmt.Errorf("stop timer: %w", err)
	}
	return nil
}

// Tick advances the shared countdown by one step. It returns false when the
// loop should end: the timer stopped, expired on this tick, or belongs to
// another host.
func (c *Controller) Tick(ctx context.Context) (bool, error) {
	if c.me.Role() != identity.RoleHost {
		return false, ErrNotPermitted
	}
	snap, err := c.store.Read(ctx, pathTimer)
	if err != nil {
		return false, fmt.Errorf("read timer: %w", err)
	}
	timer, ok := decodeTimer(snap, c.log)
	if !ok || !timer.IsRunning {
		return false, nil
	}
	if timer.Owner != "" && timer.Owner != c.me.ID() {
		c.log.Info().Str("owner", timer.Owner).Msg("timer owned by another host, yielding")
		c.emit(Event{Kind: EventTimerYield, Timer: timer})
		return false, nil
	}
	if timer.RemainingSeconds > 0 {
		if err := c.store.Write(ctx, timerField("remainingSeconds"), timer.RemainingSeconds-1); err != nil {
			return false, fmt.Errorf("tick timer: %w", err)
		}
		return true, nil
	}

	if err := c.store.Write(ctx, timerField("isRunning"), false); err != nil {
		return false, fmt.Errorf("expire timer: %w", err)
	}
	c.emit(Event{Kind: EventGong, Timer: timer})
	c.log.Info().Str("label", timer.Phase).Msg("timer expired")

	active, err := c.store.Read(ctx, votingField("active"))
	if err != nil {
		return false, fmt.Errorf("read voting: %w", err)
	}
	var isActive bool
	if err := active.Decode(&isActive); err == nil && isActive {
		if err := c.store.Write(ctx, votingField("votingLocked"), true); err != nil {
			return false, fmt.Errorf("lock voting: %w", err)
		}
		c.log.Info().Msg("voting locked at timer expiry")
	}
	return false, nil
}

// FormatClock renders seconds as mm:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// startTickLoop runs the host countdown. With restart, a loop that is already
// running is replaced.
func (c *Controller) startTickLoop(restart bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.runCtx == nil {
		return
	}
	if c.tickCancel != nil {
		if !restart {
			return
		}
		c.tickCancel()
	}
	ctx, cancel := context.WithCancel(c.runCtx)
	c.tickGen++
	c.tickCancel = cancel
	go c.runTicks(ctx, c.tickGen)
}

// stopTickLoop reports whether a loop was running.
func (c *Controller) stopTickLoop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickCancel == nil {
		return false
	}
	c.tickCancel()
	c.tickCancel = nil
	return true
}

func (c *Controller) runTicks(ctx context.Context, gen uint64) {
	defer c.tickExited(gen)
	ticker := time.NewTicker(c.opts.TimerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		running, err := c.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("timer tick failed")
			continue
		}
		if !running {
			return
		}
	}
}

func (c *Controller) tickExited(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickGen == gen && c.tickCancel != nil {
		c.tickCancel()
		c.tickCancel = nil
	}
}
