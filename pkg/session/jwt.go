// Package session issues and verifies access tokens and rotates refresh
// tokens for the API.
package session

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer   = "donormatch-api"
	defaultAudience = "donormatch"
	defaultLeeway   = 30 * time.Second
	defaultKeyID    = "jwt-active"
)

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for logged-out tokens.
	ErrTokenRevoked = errors.New("token revoked")
)

// Options configures a Manager. Without PrivateKeyPath a throwaway key is
// generated, so tokens do not survive a restart.
type Options struct {
	PrivateKeyPath string
	PublicKeyPath  string
	KeyID          string
	// VerifyKeyFiles maps kid to an older public key still accepted.
	VerifyKeyFiles map[string]string
	TTL            time.Duration
	Issuer         string
	Audience       string
	Leeway         time.Duration
}

// JWK is one entry of the JWKS document.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// Manager signs RS256 access tokens.
type Manager struct {
	signer    *rsa.PrivateKey
	kid       string
	verifiers map[string]*rsa.PublicKey
	ttl       time.Duration
	issuer    string
	audience  string
	leeway    time.Duration
	revoker   Revoker
	now       func() time.Time
}

// NewManager loads keys and builds a Manager. revoker may be nil.
func NewManager(opts Options, revoker Revoker) (*Manager, error) {
	var (
		signer *rsa.PrivateKey
		err    error
	)
	if strings.TrimSpace(opts.PrivateKeyPath) == "" {
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate jwt key: %w", err)
		}
	} else {
		signer, err = loadPrivateKey(opts.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load jwt private key: %w", err)
		}
	}
	kid := strings.TrimSpace(opts.KeyID)
	if kid == "" {
		kid = defaultKeyID
	}
	active := &signer.PublicKey
	if strings.TrimSpace(opts.PublicKeyPath) != "" {
		active, err = loadPublicKey(opts.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load jwt public key: %w", err)
		}
	}
	verifiers := map[string]*rsa.PublicKey{kid: active}
	for k, path := range opts.VerifyKeyFiles {
		k, path = strings.TrimSpace(k), strings.TrimSpace(path)
		if k == "" || path == "" {
			continue
		}
		pub, err := loadPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", k, err)
		}
		verifiers[k] = pub
	}

	m := &Manager{
		signer:    signer,
		kid:       kid,
		verifiers: verifiers,
		ttl:       opts.TTL,
		issuer:    strings.TrimSpace(opts.Issuer),
		audience:  strings.TrimSpace(opts.Audience),
		leeway:    opts.Leeway,
		revoker:   revoker,
		now:       time.Now,
	}
	if m.ttl <= 0 {
		m.ttl = 15 * time.Minute
	}
	if m.issuer == "" {
		m.issuer = defaultIssuer
	}
	if m.audience == "" {
		m.audience = defaultAudience
	}
	if m.leeway <= 0 {
		m.leeway = defaultLeeway
	}
	return m, nil
}

// TTL is the access token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs an access token for userID.
func (m *Manager) Issue(userID string) (string, error) {
	now := m.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    m.issuer,
		Audience:  jwt.ClaimStrings{m.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        randomID(12),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.kid
	return token.SignedString(m.signer)
}

// Verify checks signature, claims and revocation and returns the user ID.
func (m *Manager) Verify(token string) (string, error) {
	claims, err := m.parse(token)
	if err != nil {
		return "", err
	}
	if m.revoker != nil {
		revoked, err := m.revoker.IsRevoked(claims.ID)
		if err != nil {
			return "", fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return "", ErrTokenRevoked
		}
		cutoff, err := m.revoker.RevokedAfter(claims.Subject)
		if err != nil {
			return "", fmt.Errorf("check user revocation: %w", err)
		}
		if !cutoff.IsZero() && !claims.IssuedAt.Time.After(cutoff) {
			return "", ErrTokenRevoked
		}
	}
	return claims.Subject, nil
}

// Revoke blocks token until it would have expired. Invalid tokens are
// ignored.
func (m *Manager) Revoke(token string) error {
	if m.revoker == nil {
		return nil
	}
	claims, err := m.parse(token)
	if err != nil {
		return nil
	}
	return m.revoker.Revoke(claims.ID, claims.ExpiresAt.Time.Sub(m.now()))
}

// RevokeUser blocks every token for userID issued at or before since.
func (m *Manager) RevokeUser(userID string, since time.Time) error {
	if m.revoker == nil {
		return nil
	}
	return m.revoker.RevokeUser(userID, since, m.ttl+m.leeway)
}

// JWKS publishes the verification keys, sorted by kid.
func (m *Manager) JWKS() []JWK {
	kids := make([]string, 0, len(m.verifiers))
	for kid := range m.verifiers {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		pub := m.verifiers[kid]
		out = append(out, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

func (m *Manager) parse(token string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := m.verifiers[strings.TrimSpace(kid)]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return claims, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.Subject == "" || claims.IssuedAt == nil {
		return claims, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return claims, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return key, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if pub, ok := parsed.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, errors.New("public key is not rsa")
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, errors.New("certificate key is not rsa")
	}
	return nil, errors.New("failed to parse rsa public key")
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	return block, nil
}

func randomID(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
