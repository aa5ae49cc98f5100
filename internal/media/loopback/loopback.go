// Package loopback is an in-process media room. Sessions in the same Room and
// channel see each other's tracks; no audio or video is carried.
package loopback

import (
	"context"
	"sync"

	"traitors-table/internal/media"
)

type Room struct {
	mu       sync.Mutex
	channels map[string]map[*Session]struct{}
}

func NewRoom() *Room {
	return &Room{channels: make(map[string]map[*Session]struct{})}
}

type Options struct {
	// DenyDevices makes PublishLocalTracks fail the way a refused camera
	// prompt does.
	DenyDevices bool
}

type Session struct {
	room *Room
	opts Options

	mu        sync.Mutex
	channel   string
	seat      int
	joined    bool
	published map[media.TrackKind]bool
	listener  media.RemoteTrackFunc
}

var _ media.Session = (*Session)(nil)

func (r *Room) NewSession(opts Options) *Session {
	return &Session{room: r, opts: opts, published: make(map[media.TrackKind]bool)}
}

type notice struct {
	fn   media.RemoteTrackFunc
	seat int
	kind media.TrackKind
	on   bool
}

func fire(notices []notice) {
	for _, n := range notices {
		n.fn(n.seat, n.kind, n.on)
	}
}

func (s *Session) Join(ctx context.Context, channel string, seat int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.room.mu.Lock()
	s.mu.Lock()
	if s.joined {
		s.mu.Unlock()
		s.room.mu.Unlock()
		return media.ErrAlreadyJoined
	}
	s.channel = channel
	s.seat = seat
	s.joined = true
	listener := s.listener
	s.mu.Unlock()

	members := s.room.channels[channel]
	if members == nil {
		members = make(map[*Session]struct{})
		s.room.channels[channel] = members
	}
	var notices []notice
	if listener != nil {
		for peer := range members {
			for kind, on := range peer.snapshot() {
				if on {
					notices = append(notices, notice{fn: listener, seat: peer.seat, kind: kind, on: true})
				}
			}
		}
	}
	members[s] = struct{}{}
	s.room.mu.Unlock()
	fire(notices)
	return nil
}

func (s *Session) PublishLocalTracks(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.opts.DenyDevices {
		return media.ErrPermissionDenied
	}
	return s.set(toggle{media.TrackAudio, true}, toggle{media.TrackVideo, true})
}

func (s *Session) SetEnabled(ctx context.Context, kind media.TrackKind, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set(toggle{kind, enabled})
}

func (s *Session) OnRemoteTrackPublished(fn media.RemoteTrackFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *Session) Leave(ctx context.Context) error {
	s.room.mu.Lock()
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		s.room.mu.Unlock()
		return nil
	}
	var kinds []media.TrackKind
	for kind, on := range s.published {
		if on {
			kinds = append(kinds, kind)
		}
	}
	s.published = make(map[media.TrackKind]bool)
	s.joined = false
	channel := s.channel
	s.mu.Unlock()

	members := s.room.channels[channel]
	delete(members, s)
	if len(members) == 0 {
		delete(s.room.channels, channel)
	}
	notices := s.room.peerNoticesLocked(channel, s, kinds, false)
	s.room.mu.Unlock()
	fire(notices)
	return nil
}

type toggle struct {
	kind media.TrackKind
	on   bool
}

// set applies the toggles and tells peers about the ones that changed.
func (s *Session) set(toggles ...toggle) error {
	s.room.mu.Lock()
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		s.room.mu.Unlock()
		return media.ErrNotJoined
	}
	var on, off []media.TrackKind
	for _, t := range toggles {
		if s.published[t.kind] == t.on {
			continue
		}
		s.published[t.kind] = t.on
		if t.on {
			on = append(on, t.kind)
		} else {
			off = append(off, t.kind)
		}
	}
	channel := s.channel
	s.mu.Unlock()
	notices := s.room.peerNoticesLocked(channel, s, on, true)
	notices = append(notices, s.room.peerNoticesLocked(channel, s, off, false)...)
	s.room.mu.Unlock()
	fire(notices)
	return nil
}

func (s *Session) snapshot() map[media.TrackKind]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[media.TrackKind]bool, len(s.published))
	for kind, on := range s.published {
		out[kind] = on
	}
	return out
}

func (r *Room) peerNoticesLocked(channel string, from *Session, kinds []media.TrackKind, on bool) []notice {
	var notices []notice
	for peer := range r.channels[channel] {
		if peer == from {
			continue
		}
		peer.mu.Lock()
		listener := peer.listener
		peer.mu.Unlock()
		if listener == nil {
			continue
		}
		for _, kind := range kinds {
			notices = append(notices, notice{fn: listener, seat: from.seat, kind: kind, on: on})
		}
	}
	return notices
}
