package vivox

import (
	"context"
	"errors"
	"testing"

	"traitors-table/internal/media"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	calls       []string
	denyDevices bool
	joinErr     error
	emit        func(userURI string, kind media.TrackKind, active bool)
}

func (f *fakeEngine) Login(_ context.Context, userURI, token string) error {
	f.calls = append(f.calls, "login "+userURI)
	return nil
}

func (f *fakeEngine) Logout(context.Context) error {
	f.calls = append(f.calls, "logout")
	return nil
}

func (f *fakeEngine) JoinChannel(_ context.Context, channelURI, token string) error {
	f.calls = append(f.calls, "join "+channelURI)
	return f.joinErr
}

func (f *fakeEngine) LeaveChannel(_ context.Context, channelURI string) error {
	f.calls = append(f.calls, "leave "+channelURI)
	return nil
}

func (f *fakeEngine) SetTransmitting(_ context.Context, kind media.TrackKind, on bool) error {
	if f.denyDevices {
		return ErrDeviceDenied
	}
	f.calls = append(f.calls, "transmit "+string(kind))
	return nil
}

func (f *fakeEngine) OnParticipantMedia(fn func(string, media.TrackKind, bool)) {
	f.emit = fn
}

func TestSessionJoinPublishLeave(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{}
	issuer := NewIssuer("secret", "issuer", "example.com")
	session := NewSession(engine, issuer, zerolog.Nop())

	require.ErrorIs(t, session.PublishLocalTracks(ctx), media.ErrNotJoined)
	require.NoError(t, session.Join(ctx, "main", 4))
	require.ErrorIs(t, session.Join(ctx, "main", 4), media.ErrAlreadyJoined)
	require.NoError(t, session.PublishLocalTracks(ctx))
	require.NoError(t, session.Leave(ctx))

	require.Equal(t, []string{
		"login sip:.issuer.seat-4.@example.com",
		"join sip:confctl-g-main@example.com",
		"transmit audio",
		"transmit video",
		"leave sip:confctl-g-main@example.com",
		"logout",
	}, engine.calls)
}

func TestSessionMapsParticipantsToSeats(t *testing.T) {
	engine := &fakeEngine{}
	issuer := NewIssuer("secret", "issuer", "example.com")
	session := NewSession(engine, issuer, zerolog.Nop())

	var seats []int
	session.OnRemoteTrackPublished(func(seat int, kind media.TrackKind, published bool) {
		seats = append(seats, seat)
	})
	engine.emit(issuer.UserURI(SeatUser(9)), media.TrackVideo, true)
	engine.emit("sip:.issuer.stranger.@example.com", media.TrackVideo, true)
	require.Equal(t, []int{9}, seats)
}

func TestSessionPermissionDenied(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{denyDevices: true}
	session := NewSession(engine, NewIssuer("secret", "issuer", "example.com"), zerolog.Nop())

	require.NoError(t, session.Join(ctx, "main", 2))
	err := session.PublishLocalTracks(ctx)
	require.ErrorIs(t, err, media.ErrPermissionDenied)
}

func TestSessionJoinFailureLogsOut(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{joinErr: errors.New("channel full")}
	session := NewSession(engine, NewIssuer("secret", "issuer", "example.com"), zerolog.Nop())

	require.Error(t, session.Join(ctx, "main", 2))
	require.Equal(t, "logout", engine.calls[len(engine.calls)-1])
	require.ErrorIs(t, session.PublishLocalTracks(ctx), media.ErrNotJoined)
}
