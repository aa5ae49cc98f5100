package vivox

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

const (
	ActionLogin = "login"
	ActionJoin  = "join"

	tokenTTL = time.Hour
)

var ErrIncompleteConfig = errors.New("vivox config is incomplete")

// Issuer mints Vivox access tokens. Users are named after their seat so the
// SIP address maps straight back to a seat number.
type Issuer struct {
	secret string
	issuer string
	domain string
	now    func() time.Time
}

func NewIssuer(secret, issuer, domain string) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, domain: domain, now: time.Now}
}

func (i *Issuer) Configured() bool {
	return i != nil && i.secret != "" && i.issuer != "" && i.domain != ""
}

func (i *Issuer) Token(user, action, channel string) (string, error) {
	if i == nil {
		return "", errors.New("vivox issuer is nil")
	}
	if user == "" {
		return "", errors.New("user is required")
	}
	if !i.Configured() {
		return "", ErrIncompleteConfig
	}
	from := i.UserURI(user)
	to, err := i.targetURI(action, channel, from)
	if err != nil {
		return "", err
	}
	now := i.now()
	claims := jwt.MapClaims{
		"iss": i.issuer,
		"sub": user,
		"exp": now.Add(tokenTTL).Unix(),
		"vxa": action,
		"vxi": fmt.Sprintf("%d-%d", now.UnixNano(), rand.Int63()),
		"f":   from,
		"t":   to,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.secret))
}

func (i *Issuer) UserURI(user string) string {
	return "sip:." + i.issuer + "." + user + ".@" + i.domain
}

func (i *Issuer) ChannelURI(channel string) string {
	return "sip:confctl-g-" + channel + "@" + i.domain
}

func (i *Issuer) targetURI(action, channel, userURI string) (string, error) {
	switch action {
	case ActionLogin:
		return userURI, nil
	case ActionJoin:
		if channel == "" {
			return "", errors.New("channel name is required for join tokens")
		}
		return i.ChannelURI(channel), nil
	default:
		return "", fmt.Errorf("unsupported vivox action: %s", action)
	}
}

// SeatUser is the Vivox user name for a seat.
func SeatUser(seat int) string {
	return "seat-" + strconv.Itoa(seat)
}

// SeatFromURI recovers the seat from a participant address minted by UserURI.
func (i *Issuer) SeatFromURI(uri string) (int, bool) {
	prefix := "sip:." + i.issuer + ".seat-"
	suffix := ".@" + i.domain
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return 0, false
	}
	seat, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix))
	if err != nil || seat <= 0 {
		return 0, false
	}
	return seat, true
}
