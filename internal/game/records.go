package game

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"traitors-table/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	HostSeat          = 1
	MinPlayerSeat     = 2
	MaxSeat           = 25
	MaxNameLength     = 12
	MaxPronounsLength = 20
)

type Room string

const (
	RoomMain      Room = "main"
	RoomKitchen   Room = "kitchen"
	RoomLibrary   Room = "library"
	RoomLiving    Room = "living"
	RoomCourtyard Room = "courtyard"
	RoomBathroom  Room = "bathroom"
	RoomGym       Room = "gym"
	RoomTurret    Room = "turret"
	RoomLobby     Room = "lobby"
)

var roomNames = map[Room]string{
	RoomMain:      "Main Hall",
	RoomKitchen:   "Kitchen",
	RoomLibrary:   "Library",
	RoomLiving:    "Living Room",
	RoomCourtyard: "Courtyard",
	RoomBathroom:  "Bathroom",
	RoomGym:       "Gym",
	RoomTurret:    "Turret",
	RoomLobby:     "Lobby",
}

// Rooms lists every room in display order.
var Rooms = []Room{RoomMain, RoomKitchen, RoomLibrary, RoomLiving, RoomCourtyard, RoomBathroom, RoomGym, RoomTurret, RoomLobby}

func (r Room) Valid() bool {
	_, ok := roomNames[r]
	return ok
}

func (r Room) DisplayName() string {
	if name, ok := roomNames[r]; ok {
		return name
	}
	return string(r)
}

type Status string

const (
	StatusActive Status = "active"
	StatusGhost  Status = "ghost"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusGhost
}

type Player struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name"`
	Pronouns    string `json:"pronouns"`
	Seat        int    `json:"seat" validate:"min=1,max=25"`
	Room        Room   `json:"room"`
	Status      Status `json:"status"`
	JoinedAt    int64  `json:"joinedAt"`
	VideoActive bool   `json:"videoActive"`
	VideoOff    bool   `json:"videoOff"`
}

func (p Player) Ghost() bool {
	return p.Status == StatusGhost
}

type Timer struct {
	Phase            string `json:"phase"`
	IsRunning        bool   `json:"isRunning"`
	RemainingSeconds int    `json:"remainingSeconds"`
	Owner            string `json:"owner,omitempty"`
}

type Voting struct {
	Active          bool            `json:"active"`
	VotingLocked    bool            `json:"votingLocked"`
	Votes           map[string]int  `json:"votes,omitempty"`
	Revealed        map[string]bool `json:"revealed,omitempty"`
	CurrentRevealer string          `json:"currentRevealer,omitempty"`
	LastRevealed    string          `json:"lastRevealed,omitempty"`
}

// Open reports whether votes are accepted.
func (v Voting) Open() bool {
	return v.Active && !v.VotingLocked
}

type Announcement struct {
	Text string `json:"text"`
}

type Spotlight struct {
	Active   bool   `json:"active"`
	PlayerID string `json:"playerId"`
}

var validate = validator.New()

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// cleanText trims s and cuts it to n characters.
func cleanText(s string, n int) string {
	return strings.TrimSpace(Truncate(strings.TrimSpace(s), n))
}

// normalizePlayer fixes what can be fixed in a record read from the store and
// rejects what cannot.
func normalizePlayer(p Player) (Player, error) {
	if err := validate.Struct(p); err != nil {
		return Player{}, err
	}
	p.Name = cleanText(p.Name, MaxNameLength)
	p.Pronouns = cleanText(p.Pronouns, MaxPronounsLength)
	if !p.Room.Valid() {
		p.Room = RoomMain
	}
	if !p.Status.Valid() {
		p.Status = StatusActive
	}
	return p, nil
}

func decodePlayers(snap store.Snapshot, log zerolog.Logger) map[string]Player {
	players := make(map[string]Player)
	var raw map[string]json.RawMessage
	if err := snap.Decode(&raw); err != nil {
		log.Warn().Err(err).Msg("players is not an object")
		return players
	}
	for key, value := range raw {
		var p Player
		if err := json.Unmarshal(value, &p); err != nil {
			log.Warn().Err(err).Str("player_id", key).Msg("dropping malformed player record")
			continue
		}
		p, err := normalizePlayer(p)
		if err != nil {
			log.Warn().Err(err).Str("player_id", key).Msg("dropping invalid player record")
			continue
		}
		players[key] = p
	}
	return players
}

func decodeSeats(snap store.Snapshot, log zerolog.Logger) map[int]string {
	seats := make(map[int]string)
	var raw map[string]json.RawMessage
	if err := snap.Decode(&raw); err != nil {
		log.Warn().Err(err).Msg("seats is not an object")
		return seats
	}
	for key, value := range raw {
		seat, err := strconv.Atoi(key)
		if err != nil || seat < HostSeat || seat > MaxSeat {
			log.Warn().Str("seat", key).Msg("dropping seat outside 1..25")
			continue
		}
		var id string
		if err := json.Unmarshal(value, &id); err != nil || id == "" {
			log.Warn().Str("seat", key).Msg("dropping seat without a player id")
			continue
		}
		seats[seat] = id
	}
	return seats
}

func decodePhase(snap store.Snapshot, log zerolog.Logger) Phase {
	var raw string
	if err := snap.Decode(&raw); err != nil {
		log.Warn().Err(err).Msg("phase is not a string")
		return PhaseWaiting
	}
	phase, ok := ParsePhase(raw)
	if !ok {
		log.Warn().Str("phase", raw).Msg("unknown phase, treating as waiting")
	}
	return phase
}

func decodeTimer(snap store.Snapshot, log zerolog.Logger) (Timer, bool) {
	if !snap.Exists() {
		return Timer{}, false
	}
	var raw struct {
		Phase            string  `json:"phase"`
		IsRunning        bool    `json:"isRunning"`
		RemainingSeconds float64 `json:"remainingSeconds"`
		Owner            string  `json:"owner"`
	}
	if err := snap.Decode(&raw); err != nil {
		log.Warn().Err(err).Msg("dropping malformed timer")
		return Timer{}, false
	}
	remaining := int(math.Floor(raw.RemainingSeconds))
	if remaining < 0 {
		remaining = 0
	}
	return Timer{Phase: raw.Phase, IsRunning: raw.IsRunning, RemainingSeconds: remaining, Owner: raw.Owner}, true
}

func decodeVoting(snap store.Snapshot, log zerolog.Logger) (Voting, bool) {
	if !snap.Exists() {
		return Voting{}, false
	}
	var raw struct {
		Active          bool                       `json:"active"`
		VotingLocked    bool                       `json:"votingLocked"`
		Votes           map[string]json.RawMessage `json:"votes"`
		Revealed        map[string]bool            `json:"revealed"`
		CurrentRevealer string                     `json:"currentRevealer"`
		LastRevealed    string                     `json:"lastRevealed"`
	}
	if err := snap.Decode(&raw); err != nil {
		log.Warn().Err(err).Msg("dropping malformed voting round")
		return Voting{}, false
	}
	voting := Voting{
		Active:          raw.Active,
		VotingLocked:    raw.VotingLocked,
		Votes:           make(map[string]int, len(raw.Votes)),
		Revealed:        raw.Revealed,
		CurrentRevealer: raw.CurrentRevealer,
		LastRevealed:    raw.LastRevealed,
	}
	if voting.Revealed == nil {
		voting.Revealed = make(map[string]bool)
	}
	for voter, value := range raw.Votes {
		seat, ok := seatNumber(value)
		if !ok {
			log.Warn().Str("player_id", voter).RawJSON("vote", value).Msg("dropping vote without a valid seat")
			continue
		}
		voting.Votes[voter] = seat
	}
	return voting, true
}

// seatNumber accepts 7, 7.0 and "7".
func seatNumber(raw json.RawMessage) (int, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false
		}
		n = float64(parsed)
	}
	seat := int(n)
	if float64(seat) != n || seat < HostSeat || seat > MaxSeat {
		return 0, false
	}
	return seat, true
}

func decodeAnnouncement(snap store.Snapshot, log zerolog.Logger) Announcement {
	var a Announcement
	if err := snap.Decode(&a); err != nil {
		log.Warn().Err(err).Msg("dropping malformed announcement")
		return Announcement{}
	}
	return a
}

func decodeSpotlight(snap store.Snapshot, log zerolog.Logger) Spotlight {
	var s Spotlight
	if err := snap.Decode(&s); err != nil {
		log.Warn().Err(err).Msg("dropping malformed spotlight")
		return Spotlight{}
	}
	return s
}
