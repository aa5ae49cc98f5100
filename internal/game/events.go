package game

type EventKind string

const (
	EventPhase         EventKind = "phase"
	EventOverlay       EventKind = "overlay"
	EventPlayers       EventKind = "players"
	EventTimer         EventKind = "timer"
	EventTimerYield    EventKind = "timer_yield"
	EventGong          EventKind = "gong"
	EventVoting        EventKind = "voting"
	EventTally         EventKind = "tally"
	EventRevealTurn    EventKind = "reveal_turn"
	EventAnnouncement  EventKind = "announcement"
	EventSpotlight     EventKind = "spotlight"
	EventSeatLost      EventKind = "seat_lost"
	EventMedia         EventKind = "media"
	EventMediaDegraded EventKind = "media_degraded"
)

// Event is something the UI layer should react to. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind     EventKind
	Phase    Phase
	Overlay  bool
	Timer    Timer
	Voting   Voting
	Tally    []TallyEntry
	Text     string
	PlayerID string
	Seat     int
	Active   bool
	Err      error
}
