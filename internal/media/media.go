// Package media describes the per-seat audio/video capability the game needs.
// Transport belongs to the implementations; the game only tracks which seats
// are publishing.
package media

import (
	"context"
	"errors"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrNotJoined        = errors.New("media session not joined")
	ErrAlreadyJoined    = errors.New("media session already joined")
)

// RemoteTrackFunc reports a remote seat publishing or unpublishing a track.
type RemoteTrackFunc func(seat int, kind TrackKind, published bool)

// Session is one client's connection to the media channel. The seat number is
// the identity other participants see.
type Session interface {
	Join(ctx context.Context, channel string, seat int) error
	PublishLocalTracks(ctx context.Context) error
	OnRemoteTrackPublished(fn RemoteTrackFunc)
	SetEnabled(ctx context.Context, kind TrackKind, enabled bool) error
	Leave(ctx context.Context) error
}
