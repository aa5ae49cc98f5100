// Package vivox adapts a Vivox client SDK to media.Session. The SDK itself is
// reached through Engine so a native binding or a test double can sit behind
// it.
package vivox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"traitors-table/internal/media"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Engine is the slice of the vendor SDK the adapter drives.
type Engine interface {
	Login(ctx context.Context, userURI, token string) error
	Logout(ctx context.Context) error
	JoinChannel(ctx context.Context, channelURI, token string) error
	LeaveChannel(ctx context.Context, channelURI string) error
	SetTransmitting(ctx context.Context, kind media.TrackKind, on bool) error
	OnParticipantMedia(fn func(userURI string, kind media.TrackKind, active bool))
}

// ErrDeviceDenied is what engines return when the OS refuses capture devices.
var ErrDeviceDenied = errors.New("vivox: capture device access denied")

type Session struct {
	engine Engine
	issuer *Issuer
	log    zerolog.Logger

	mu       sync.Mutex
	channel  string
	joined   bool
	listener media.RemoteTrackFunc
}

var _ media.Session = (*Session)(nil)

func NewSession(engine Engine, issuer *Issuer, log zerolog.Logger) *Session {
	s := &Session{engine: engine, issuer: issuer, log: log.With().Str("component", "vivox").Logger()}
	engine.OnParticipantMedia(s.participantMedia)
	return s
}

func (s *Session) Join(ctx context.Context, channel string, seat int) error {
	s.mu.Lock()
	if s.joined {
		s.mu.Unlock()
		return media.ErrAlreadyJoined
	}
	s.mu.Unlock()

	user := SeatUser(seat)
	loginToken, err := s.issuer.Token(user, ActionLogin, "")
	if err != nil {
		return fmt.Errorf("login token: %w", err)
	}
	if err := s.engine.Login(ctx, s.issuer.UserURI(user), loginToken); err != nil {
		return fmt.Errorf("vivox login: %w", err)
	}
	joinToken, err := s.issuer.Token(user, ActionJoin, channel)
	if err != nil {
		return fmt.Errorf("join token: %w", err)
	}
	if err := s.engine.JoinChannel(ctx, s.issuer.ChannelURI(channel), joinToken); err != nil {
		_ = s.engine.Logout(ctx)
		return fmt.Errorf("vivox join: %w", err)
	}

	s.mu.Lock()
	s.channel = channel
	s.joined = true
	s.mu.Unlock()
	s.log.Info().Int("seat", seat).Str("channel", channel).Msg("joined voice channel")
	return nil
}

func (s *Session) PublishLocalTracks(ctx context.Context) error {
	if err := s.requireJoined(); err != nil {
		return err
	}
	for _, kind := range []media.TrackKind{media.TrackAudio, media.TrackVideo} {
		if err := s.engine.SetTransmitting(ctx, kind, true); err != nil {
			return translate(err)
		}
	}
	return nil
}

func (s *Session) SetEnabled(ctx context.Context, kind media.TrackKind, enabled bool) error {
	if err := s.requireJoined(); err != nil {
		return err
	}
	return translate(s.engine.SetTransmitting(ctx, kind, enabled))
}

func (s *Session) OnRemoteTrackPublished(fn media.RemoteTrackFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return nil
	}
	channel := s.channel
	s.joined = false
	s.mu.Unlock()

	leaveErr := s.engine.LeaveChannel(ctx, s.issuer.ChannelURI(channel))
	return multierr.Append(leaveErr, s.engine.Logout(ctx))
}

func (s *Session) requireJoined() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return media.ErrNotJoined
	}
	return nil
}

func (s *Session) participantMedia(userURI string, kind media.TrackKind, active bool) {
	seat, ok := s.issuer.SeatFromURI(userURI)
	if !ok {
		s.log.Debug().Str("uri", userURI).Msg("ignoring participant without a seat")
		return
	}
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		listener(seat, kind, active)
	}
}

func translate(err error) error {
	if errors.Is(err, ErrDeviceDenied) {
		return fmt.Errorf("%w: %v", media.ErrPermissionDenied, err)
	}
	return err
}
