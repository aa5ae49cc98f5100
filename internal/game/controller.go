package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"traitors-table/internal/identity"
	"traitors-table/internal/media"
	"traitors-table/internal/store"

	"github.com/rs/zerolog"
)

const eventBuffer = 256

type Options struct {
	// TimerTick is the host countdown interval.
	TimerTick    time.Duration
	MediaChannel string
	Now          func() time.Time
}

// Controller is one client's view of the game. Store pushes update its State;
// exported methods turn user intent into store writes.
type Controller struct {
	store store.Store
	me    *identity.Identity
	log   zerolog.Logger
	opts  Options
	state *State

	events chan Event

	mu        sync.Mutex
	runCtx    context.Context
	cancelRun context.CancelFunc
	unsubs    []func()
	closed    bool

	tickCancel context.CancelFunc
	tickGen    uint64

	media media.Session

	// Only touched from store callbacks, which run one at a time.
	lastAnnouncement string
	lastSpotlight    string
	lastRevealer     string

	revealArmed atomic.Bool
}

func NewController(s store.Store, me *identity.Identity, log zerolog.Logger, opts Options) *Controller {
	if opts.TimerTick <= 0 {
		opts.TimerTick = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		store:  s,
		me:     me,
		log:    log.With().Str("component", "game").Str("user_id", me.ID()).Str("role", string(me.Role())).Logger(),
		opts:   opts,
		state:  newState(),
		events: make(chan Event, eventBuffer),
	}
}

// Start subscribes to the shared game paths. ctx bounds the host tick loop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return store.ErrClosed
	}
	if c.runCtx != nil {
		c.mu.Unlock()
		return errors.New("controller already started")
	}
	c.runCtx, c.cancelRun = context.WithCancel(ctx)
	c.mu.Unlock()

	subs := []struct {
		path string
		fn   func(store.Snapshot)
	}{
		{pathPhase, c.onPhase},
		{pathPlayers, c.onPlayers},
		{pathSeats, c.onSeats},
		{pathTimer, c.onTimer},
		{pathVoting, c.onVoting},
		{pathAnnouncement, c.onAnnouncement},
		{pathSpotlight, c.onSpotlight},
	}
	unsubs := make([]func(), 0, len(subs))
	for _, sub := range subs {
		unsubs = append(unsubs, c.store.Subscribe(sub.path, sub.fn))
	}
	c.mu.Lock()
	c.unsubs = unsubs
	c.mu.Unlock()
	c.log.Debug().Msg("controller started")
	return nil
}

func (c *Controller) State() *State {
	return c.state
}

// Events delivers UI notifications. Events are dropped when nobody drains the
// channel.
func (c *Controller) Events() <-chan Event {
	return c.events
}

func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubs := c.unsubs
	c.unsubs = nil
	if c.tickCancel != nil {
		c.tickCancel()
		c.tickCancel = nil
	}
	if c.cancelRun != nil {
		c.cancelRun()
	}
	session := c.media
	c.media = nil
	close(c.events)
	c.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	if session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return session.Leave(ctx)
	}
	return nil
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Str("event", string(ev.Kind)).Msg("event buffer full, dropping")
	}
}

// myKey is the player record key of this client.
func (c *Controller) myKey() string {
	if c.me.Role() == identity.RoleHost {
		return HostKey
	}
	return c.me.ID()
}

func (c *Controller) requireHost() error {
	if c.me.Role() != identity.RoleHost {
		return ErrNotPermitted
	}
	return nil
}

func (c *Controller) onPhase(snap store.Snapshot) {
	phase := decodePhase(snap, c.log)
	c.state.mu.Lock()
	changed := c.state.phase != phase
	c.state.phase = phase
	overlay, flipped := c.recomputeOverlayLocked()
	c.state.mu.Unlock()

	if changed {
		c.emit(Event{Kind: EventPhase, Phase: phase})
	}
	if flipped {
		c.emit(Event{Kind: EventOverlay, Phase: phase, Overlay: overlay})
	}
}

func (c *Controller) onPlayers(snap store.Snapshot) {
	players := decodePlayers(snap, c.log)
	c.state.mu.Lock()
	c.state.players = players
	overlay, flipped := c.recomputeOverlayLocked()
	phase := c.state.phase
	var tally []TallyEntry
	host := c.me.Role() == identity.RoleHost
	if host && c.state.hasVoting {
		tally = c.labelTallyLocked(Tally(c.state.voting.Votes))
		c.state.tally = tally
	}
	c.state.mu.Unlock()

	c.emit(Event{Kind: EventPlayers})
	if flipped {
		c.emit(Event{Kind: EventOverlay, Phase: phase, Overlay: overlay})
	}
	if host && tally != nil {
		c.emit(Event{Kind: EventTally, Tally: tally})
	}
}

func (c *Controller) onSeats(snap store.Snapshot) {
	seats := decodeSeats(snap, c.log)
	c.state.mu.Lock()
	c.state.seats = seats
	c.state.mu.Unlock()
}

// recomputeOverlayLocked evaluates the night overlay for this client and
// reports whether it flipped.
func (c *Controller) recomputeOverlayLocked() (bool, bool) {
	room := RoomMain
	if p, ok := c.state.players[c.myKey()]; ok {
		room = p.Room
	}
	visible := OverlayVisible(c.state.phase, c.me.Role(), room)
	flipped := visible != c.state.overlay
	c.state.overlay = visible
	return visible, flipped
}

func (c *Controller) onTimer(snap store.Snapshot) {
	timer, ok := decodeTimer(snap, c.log)
	c.state.mu.Lock()
	c.state.timer = timer
	c.state.hasTimer = ok
	c.state.mu.Unlock()
	c.emit(Event{Kind: EventTimer, Timer: timer})

	if c.me.Role() != identity.RoleHost {
		return
	}
	switch {
	case timer.IsRunning && (timer.Owner == "" || timer.Owner == c.me.ID()):
		c.startTickLoop(false)
	case timer.IsRunning:
		if c.stopTickLoop() {
			c.log.Info().Str("owner", timer.Owner).Msg("another host owns the timer, yielding")
			c.emit(Event{Kind: EventTimerYield, Timer: timer})
		}
	default:
		c.stopTickLoop()
	}
}

func (c *Controller) onVoting(snap store.Snapshot) {
	voting, ok := decodeVoting(snap, c.log)
	host := c.me.Role() == identity.RoleHost
	c.state.mu.Lock()
	c.state.voting = voting
	c.state.hasVoting = ok
	var tally []TallyEntry
	if host {
		tally = c.labelTallyLocked(Tally(voting.Votes))
		c.state.tally = tally
	}
	c.state.mu.Unlock()

	c.emit(Event{Kind: EventVoting, Voting: cloneVoting(voting)})
	if host {
		c.emit(Event{Kind: EventTally, Tally: tally})
	}
	c.armReveal(voting)
}

// armReveal arms the reveal key when the turn passes to this player and
// disarms it when the turn moves on.
func (c *Controller) armReveal(voting Voting) {
	if c.me.Role() != identity.RolePlayer {
		return
	}
	id := c.me.ID()
	turn := voting.Active && voting.CurrentRevealer == id && !voting.Revealed[id]
	newTurn := voting.CurrentRevealer != c.lastRevealer
	c.lastRevealer = voting.CurrentRevealer
	if !turn {
		c.revealArmed.Store(false)
		return
	}
	if newTurn && c.revealArmed.CompareAndSwap(false, true) {
		c.emit(Event{Kind: EventRevealTurn, PlayerID: id})
	}
}

func (c *Controller) onAnnouncement(snap store.Snapshot) {
	announcement := decodeAnnouncement(snap, c.log)
	c.state.mu.Lock()
	c.state.announcement = announcement
	c.state.mu.Unlock()

	if announcement.Text == c.lastAnnouncement {
		return
	}
	c.lastAnnouncement = announcement.Text
	if announcement.Text != "" {
		c.emit(Event{Kind: EventAnnouncement, Text: announcement.Text})
	}
}

func (c *Controller) onSpotlight(snap store.Snapshot) {
	spotlight := decodeSpotlight(snap, c.log)
	c.state.mu.Lock()
	c.state.spotlight = spotlight
	c.state.mu.Unlock()

	if !spotlight.Active || spotlight.PlayerID == "" {
		c.lastSpotlight = ""
		return
	}
	if spotlight.PlayerID == c.lastSpotlight {
		return
	}
	c.lastSpotlight = spotlight.PlayerID
	c.emit(Event{Kind: EventSpotlight, PlayerID: spotlight.PlayerID, Active: true})
}
