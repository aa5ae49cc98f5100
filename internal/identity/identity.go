// Package identity gives a client tab its role and stable id. Values live in
// tab-local storage so a reload keeps the same seat and name.
package identity

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Role string

const (
	RoleNone   Role = ""
	RoleHost   Role = "host"
	RolePlayer Role = "player"
	RoleViewer Role = "viewer"
)

func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleHost:
		return RoleHost
	case RolePlayer:
		return RolePlayer
	case RoleViewer:
		return RoleViewer
	default:
		return RoleNone
	}
}

// Keys of the persisted session values.
const (
	KeyRole       = "userRole"
	KeyPlayerName = "playerName"
	KeyViewerName = "viewerName"
	KeyUserID     = "userId"
	KeyPlayerSeat = "playerSeat"
	KeyProduction = "isProduction"
)

var ErrRoleLocked = errors.New("role is fixed for this session")

type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// User is a point-in-time copy of the identity.
type User struct {
	Role       Role
	Name       string
	ID         string
	Seat       int
	Production bool
}

type Identity struct {
	storage Storage

	mu   sync.RWMutex
	user User
}

// Begin fixes the session role before the first Load. Asking for a different
// role than the one already stored fails.
func Begin(storage Storage, role Role) (*Identity, error) {
	if stored, ok := storage.Get(KeyRole); ok && ParseRole(stored) != RoleNone && ParseRole(stored) != role {
		return nil, fmt.Errorf("%w: already %s", ErrRoleLocked, stored)
	}
	if role != RoleNone {
		if err := storage.Set(KeyRole, string(role)); err != nil {
			return nil, err
		}
	}
	return Load(storage)
}

// Load derives the identity from storage, minting and saving an id when none
// exists yet.
func Load(storage Storage) (*Identity, error) {
	role := RoleNone
	if raw, ok := storage.Get(KeyRole); ok {
		role = ParseRole(raw)
	}
	name, ok := storage.Get(KeyPlayerName)
	if !ok || name == "" {
		name, _ = storage.Get(KeyViewerName)
	}
	id, ok := storage.Get(KeyUserID)
	if !ok || id == "" {
		id = NewID(role, time.Now())
	}
	if err := storage.Set(KeyUserID, id); err != nil {
		return nil, err
	}
	seat := 0
	if raw, ok := storage.Get(KeyPlayerSeat); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			seat = n
		}
	}
	production := false
	if raw, ok := storage.Get(KeyProduction); ok {
		production = raw == "true"
	}
	return &Identity{
		storage: storage,
		user:    User{Role: role, Name: name, ID: id, Seat: seat, Production: production},
	}, nil
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID builds role-<unix ms>-<9 base36 chars>. Unique with overwhelming
// probability, not guaranteed.
func NewID(role Role, now time.Time) string {
	label := string(role)
	if label == "" {
		label = "guest"
	}
	var suffix [9]byte
	for i := range suffix {
		suffix[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return label + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix[:])
}

func (i *Identity) Current() User {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.user
}

func (i *Identity) Role() Role {
	return i.Current().Role
}

func (i *Identity) ID() string {
	return i.Current().ID
}

func (i *Identity) Seat() int {
	return i.Current().Seat
}

func (i *Identity) Name() string {
	return i.Current().Name
}

// SetName persists the display name under the key the role reads it from.
func (i *Identity) SetName(name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := KeyPlayerName
	if i.user.Role == RoleViewer {
		key = KeyViewerName
	}
	if err := i.storage.Set(key, name); err != nil {
		return err
	}
	i.user.Name = name
	return nil
}

func (i *Identity) SetSeat(seat int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.storage.Set(KeyPlayerSeat, strconv.Itoa(seat)); err != nil {
		return err
	}
	i.user.Seat = seat
	return nil
}

func (i *Identity) ClearSeat() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.storage.Delete(KeyPlayerSeat); err != nil {
		return err
	}
	i.user.Seat = 0
	return nil
}
