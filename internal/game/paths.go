package game

import (
	"strconv"

	"traitors-table/internal/store"
)

const (
	pathPlayers      = "players"
	pathPhase        = "game/phase"
	pathSeats        = "game/seats"
	pathTimer        = "game/timer"
	pathVoting       = "game/voting"
	pathAnnouncement = "game/announcement"
	pathSpotlight    = "game/circleOfTruth"

	// HostKey is the player record key of the host, who always sits in seat 1.
	HostKey = "host"
)

func playerPath(key string) string {
	return store.Join(pathPlayers, key)
}

func seatPath(seat int) string {
	return store.Join(pathSeats, strconv.Itoa(seat))
}

func timerField(field string) string {
	return store.Join(pathTimer, field)
}

func votingField(parts ...string) string {
	return store.Join(append([]string{pathVoting}, parts...)...)
}
