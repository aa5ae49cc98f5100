package game

import (
	"context"
	"fmt"

	"traitors-table/internal/identity"
)

type Phase string

const (
	PhaseWaiting      Phase = "waiting"
	PhaseLobby        Phase = "lobby"
	PhaseBreakfast    Phase = "breakfast"
	PhaseTalk         Phase = "talk"
	PhaseDeliberation Phase = "deliberation"
	PhaseNight        Phase = "night"
)

var phaseTransitions = map[Phase][]Phase{
	PhaseWaiting:      {PhaseLobby},
	PhaseLobby:        {PhaseBreakfast},
	PhaseBreakfast:    {PhaseTalk},
	PhaseTalk:         {PhaseDeliberation},
	PhaseDeliberation: {PhaseNight},
	PhaseNight:        {PhaseBreakfast, PhaseTalk},
}

var phaseNames = map[Phase]string{
	PhaseWaiting:      "Waiting to Start",
	PhaseLobby:        "Lobby - Select Your Seat",
	PhaseBreakfast:    "Breakfast",
	PhaseTalk:         "Talk Time",
	PhaseDeliberation: "Deliberation",
	PhaseNight:        "Night",
}

// ParsePhase maps a stored value to a phase. Missing values are waiting; the
// bool is false for anything unrecognized, which is also treated as waiting.
func ParsePhase(raw string) (Phase, bool) {
	if raw == "" {
		return PhaseWaiting, true
	}
	phase := Phase(raw)
	if _, ok := phaseTransitions[phase]; !ok {
		return PhaseWaiting, false
	}
	return phase, true
}

func (p Phase) DisplayName() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return string(p)
}

func CanTransition(from, to Phase) bool {
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OverlayVisible reports whether the night overlay covers this client. Only
// players in the turret stay awake; the host never sees it.
func OverlayVisible(phase Phase, role identity.Role, room Room) bool {
	if phase != PhaseNight {
		return false
	}
	switch role {
	case identity.RoleViewer:
		return true
	case identity.RolePlayer:
		return room != RoomTurret
	default:
		return false
	}
}

// SetPhase advances the game along the transition table.
func (c *Controller) SetPhase(ctx context.Context, next Phase) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	current := c.state.Phase()
	if !CanTransition(current, next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, next)
	}
	return c.writePhase(ctx, next)
}

// ForcePhase sets any known phase, for recovering a game that drifted.
func (c *Controller) ForcePhase(ctx context.Context, next Phase) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if _, ok := phaseTransitions[next]; !ok {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, next)
	}
	return c.writePhase(ctx, next)
}

func (c *Controller) writePhase(ctx context.Context, next Phase) error {
	if err := c.store.Write(ctx, pathPhase, string(next)); err != nil {
		return fmt.Errorf("write phase: %w", err)
	}
	c.log.Info().Str("phase", string(next)).Msg("phase changed")
	return nil
}
