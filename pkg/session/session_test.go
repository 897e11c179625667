package session

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIssueAndVerify(t *testing.T) {
	_, client := newRedis(t)
	m, err := NewManager(Options{TTL: time.Minute}, NewRedisRevoker(client, "test"))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	userID, err := m.Verify(token)
	if err != nil || userID != "u1" {
		t.Fatalf("verify: user=%q err=%v", userID, err)
	}
	if _, err := m.Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := m.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for empty input, got %v", err)
	}
}

func TestVerifyRejectsOtherAudienceAndExpired(t *testing.T) {
	m, err := NewManager(Options{TTL: time.Minute}, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	other := *m
	other.audience = "someone-else"
	token, _ := other.Issue("u1")
	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected audience mismatch to fail, got %v", err)
	}

	token, _ = m.Issue("u1")
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestRevokeTokenAndUser(t *testing.T) {
	_, client := newRedis(t)
	m, err := NewManager(Options{TTL: time.Minute}, NewRedisRevoker(client, "test"))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _ := m.Issue("u1")
	if err := m.Revoke(token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}

	base := time.Now()
	m.now = func() time.Time { return base }
	old, _ := m.Issue("u2")
	if err := m.RevokeUser("u2", base.Add(time.Second)); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, err := m.Verify(old); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected user cutoff to revoke, got %v", err)
	}
	m.now = func() time.Time { return base.Add(5 * time.Second) }
	fresh, _ := m.Issue("u2")
	if _, err := m.Verify(fresh); err != nil {
		t.Fatalf("token issued after cutoff should verify: %v", err)
	}
}

func TestPEMKeysAndJWKS(t *testing.T) {
	dir := t.TempDir()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPath := filepath.Join(dir, "jwt.pem")
	if err := os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	oldKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	pubDER, _ := x509.MarshalPKIXPublicKey(&oldKey.PublicKey)
	oldPath := filepath.Join(dir, "old.pub")
	if err := os.WriteFile(oldPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600); err != nil {
		t.Fatalf("write pub: %v", err)
	}

	m, err := NewManager(Options{PrivateKeyPath: privPath, KeyID: "k2", VerifyKeyFiles: map[string]string{"k1": oldPath}}, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	keys := m.JWKS()
	if len(keys) != 2 || keys[0].Kid != "k1" || keys[1].Kid != "k2" || keys[1].Alg != "RS256" {
		t.Fatalf("unexpected jwks: %+v", keys)
	}
	token, _ := m.Issue("u1")
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("verify with pem key: %v", err)
	}

	if _, err := NewManager(Options{PrivateKeyPath: filepath.Join(dir, "missing.pem")}, nil); err == nil {
		t.Fatalf("expected error for missing key file")
	}
}

func TestRefreshRotateAndReplay(t *testing.T) {
	_, client := newRedis(t)
	s := NewRefreshStore(client, "test", time.Hour)

	first, err := s.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	userID, second, err := s.Rotate(first)
	if err != nil || userID != "u1" || second == "" || second == first {
		t.Fatalf("rotate: user=%q token=%q err=%v", userID, second, err)
	}
	if _, _, err := s.Rotate(first); !errors.Is(err, ErrRefreshTokenReplay) {
		t.Fatalf("expected replay, got %v", err)
	}
	if _, _, err := s.Rotate(second); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("family should be revoked after replay, got %v", err)
	}
	if _, _, err := s.Rotate("unknown"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestRefreshRevokeAndExpiry(t *testing.T) {
	mr, client := newRedis(t)
	s := NewRefreshStore(client, "test", time.Minute)

	a, _ := s.Issue("u1")
	b, _ := s.Issue("u1")
	if err := s.Revoke(a); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, _, err := s.Rotate(a); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("revoked token should be invalid, got %v", err)
	}
	if err := s.RevokeUser("u1"); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, _, err := s.Rotate(b); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("user revocation should invalidate, got %v", err)
	}

	c, _ := s.Issue("u2")
	mr.FastForward(2 * time.Minute)
	if _, _, err := s.Rotate(c); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expired token should be invalid, got %v", err)
	}
}
