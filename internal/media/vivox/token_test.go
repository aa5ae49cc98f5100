package vivox

import (
	"fmt"
	"testing"

	"github.com/form3tech-oss/jwt-go"
)

func TestIssuerLoginToken(t *testing.T) {
	issuer := NewIssuer("test-secret", "issuer", "example.com")
	tokenString, err := issuer.Token("seat-5", ActionLogin, "")
	if err != nil {
		t.Fatalf("generate login token error: %v", err)
	}

	claims := parseClaims(t, tokenString, "test-secret")
	userURI := "sip:.issuer.seat-5.@example.com"
	if got := stringClaim(t, claims, "vxa"); got != ActionLogin {
		t.Fatalf("vxa = %s, want %s", got, ActionLogin)
	}
	if got := stringClaim(t, claims, "f"); got != userURI {
		t.Fatalf("f = %s, want %s", got, userURI)
	}
	if got := stringClaim(t, claims, "t"); got != userURI {
		t.Fatalf("t = %s, want %s", got, userURI)
	}
	if got := stringClaim(t, claims, "sub"); got != "seat-5" {
		t.Fatalf("sub = %s, want seat-5", got)
	}
}

func TestIssuerJoinToken(t *testing.T) {
	issuer := NewIssuer("test-secret", "issuer", "example.com")
	tokenString, err := issuer.Token("seat-2", ActionJoin, "subversion-traitors-main")
	if err != nil {
		t.Fatalf("generate join token error: %v", err)
	}
	claims := parseClaims(t, tokenString, "test-secret")
	want := "sip:confctl-g-subversion-traitors-main@example.com"
	if got := stringClaim(t, claims, "t"); got != want {
		t.Fatalf("t = %s, want %s", got, want)
	}
}

func TestIssuerRejectsBadRequests(t *testing.T) {
	issuer := NewIssuer("secret", "issuer", "example.com")
	if _, err := issuer.Token("seat-1", "unknown", ""); err == nil {
		t.Fatal("expected error for unsupported action")
	}
	if _, err := issuer.Token("seat-1", ActionJoin, ""); err == nil {
		t.Fatal("expected error for empty channel name")
	}
	if _, err := issuer.Token("", ActionLogin, ""); err == nil {
		t.Fatal("expected error for empty user")
	}
	if _, err := NewIssuer("", "issuer", "example.com").Token("seat-1", ActionLogin, ""); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestSeatFromURI(t *testing.T) {
	issuer := NewIssuer("secret", "issuer", "example.com")
	seat, ok := issuer.SeatFromURI(issuer.UserURI(SeatUser(17)))
	if !ok || seat != 17 {
		t.Fatalf("seat = %d ok=%v, want 17", seat, ok)
	}
	for _, uri := range []string{"sip:.issuer.bob.@example.com", "sip:.other.seat-3.@example.com", "sip:.issuer.seat-0.@example.com"} {
		if _, ok := issuer.SeatFromURI(uri); ok {
			t.Fatalf("expected %s to be rejected", uri)
		}
	}
}

func parseClaims(t *testing.T, tokenString, secret string) jwt.MapClaims {
	t.Helper()
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		t.Fatalf("parse token error: %v", err)
	}
	if !token.Valid {
		t.Fatal("token is invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("claims are not map claims")
	}
	return claims
}

func stringClaim(t *testing.T, claims jwt.MapClaims, name string) string {
	t.Helper()
	value, ok := claims[name]
	if !ok {
		t.Fatalf("missing %s claim", name)
	}
	str, ok := value.(string)
	if !ok {
		t.Fatalf("%s claim is not a string", name)
	}
	return str
}
