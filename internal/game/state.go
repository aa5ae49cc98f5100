package game

import (
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// State is the client's mirror of the shared store. Store callbacks are the
// only writers; getters return copies.
type State struct {
	mu           sync.RWMutex
	phase        Phase
	players      map[string]Player
	seats        map[int]string
	timer        Timer
	hasTimer     bool
	voting       Voting
	hasVoting    bool
	announcement Announcement
	spotlight    Spotlight
	mediaActive  map[int]bool
	overlay      bool
	tally        []TallyEntry
}

func newState() *State {
	return &State{
		phase:       PhaseWaiting,
		players:     make(map[string]Player),
		seats:       make(map[int]string),
		mediaActive: make(map[int]bool),
	}
}

func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *State) Players() map[string]Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.players)
}

// Player looks a record up by its store key.
func (s *State) Player(key string) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[key]
	return p, ok
}

// Seats returns the seat index as last pushed.
func (s *State) Seats() map[int]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.seats)
}

// OccupantOf is the active player sitting in seat. When records disagree the
// earliest joiner wins.
func (s *State) OccupantOf(seat int) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.occupantLocked(seat)
}

func (s *State) occupantLocked(seat int) (Player, bool) {
	var found Player
	ok := false
	for _, p := range s.players {
		if p.Seat != seat || p.Ghost() {
			continue
		}
		if !ok || p.JoinedAt < found.JoinedAt || (p.JoinedAt == found.JoinedAt && p.ID < found.ID) {
			found = p
			ok = true
		}
	}
	return found, ok
}

// SeatLabel is the occupant's name, or "Seat N" for an empty seat.
func (s *State) SeatLabel(seat int) string {
	if p, ok := s.OccupantOf(seat); ok && p.Name != "" {
		return p.Name
	}
	return "Seat " + strconv.Itoa(seat)
}

// NameTaken reports whether another active player already uses name.
func (s *State) NameTaken(name, exceptID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.players {
		if p.ID == exceptID || p.Ghost() {
			continue
		}
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// ActivePlayers lists non-ghost players in seat order.
func (s *State) ActivePlayers() []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		if !p.Ghost() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seat != out[j].Seat {
			return out[i].Seat < out[j].Seat
		}
		return out[i].JoinedAt < out[j].JoinedAt
	})
	return out
}

func (s *State) Timer() (Timer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timer, s.hasTimer
}

func (s *State) Voting() (Voting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneVoting(s.voting), s.hasVoting
}

func (s *State) Tally() []TallyEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TallyEntry(nil), s.tally...)
}

func (s *State) Announcement() Announcement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.announcement
}

func (s *State) Spotlight() Spotlight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spotlight
}

func (s *State) Overlay() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay
}

// MediaActive reports whether a remote seat is currently publishing video.
func (s *State) MediaActive(seat int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mediaActive[seat]
}

func cloneVoting(v Voting) Voting {
	v.Votes = maps.Clone(v.Votes)
	v.Revealed = maps.Clone(v.Revealed)
	return v
}
