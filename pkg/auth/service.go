// Package auth issues and verifies signed bearer tokens backed by a
// shared, file-persisted token store. Verification reloads the store, so
// several processes pointed at the same store file observe each other's
// tokens and revocations without coordination.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// FailureReason is the precise cause of a verification failure. It is
// meant for the audit log only; client-facing messages stay generic so a
// caller cannot probe why a token was rejected.
type FailureReason string

const (
	ReasonMalformed           FailureReason = "malformed"
	ReasonBadSignature        FailureReason = "bad_signature"
	ReasonExpired             FailureReason = "expired"
	ReasonUnknown             FailureReason = "unknown_token"
	ReasonRevoked             FailureReason = "revoked"
	ReasonFingerprintMismatch FailureReason = "fingerprint_mismatch"
)

// ErrAuthentication is the broad category every verification failure
// belongs to; check with errors.Is.
var ErrAuthentication = errors.New("authentication failed")

// Error is a verification failure. Its message is deliberately generic;
// the distinguishing Reason is for auditing.
type Error struct {
	Reason FailureReason
}

func (e *Error) Error() string { return "authentication failed" }

func (e *Error) Is(target error) bool { return target == ErrAuthentication }

func failure(reason FailureReason) error { return &Error{Reason: reason} }

// TokenInfo is the verified identity carried by a token.
type TokenInfo struct {
	Group     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service mints and verifies HMAC-signed tokens and keeps their revocable
// state in a TokenStore.
type Service struct {
	secret []byte
	store  TokenStore
	logger *slog.Logger
}

func NewService(secret string, store TokenStore, logger *slog.Logger) (*Service, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret must not be empty")
	}
	return &Service{secret: []byte(secret), store: store, logger: logger}, nil
}

// tokenID derives the store key for a signed token. The raw token never
// hits disk; only this digest does.
func tokenID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateToken mints a signed token for group, valid for expiresIn, and
// persists its record immediately. A non-empty fingerprint binds the
// token to that device context.
func (s *Service) CreateToken(group string, expiresIn time.Duration, fingerprint string) (string, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)

	claims := jwt.MapClaims{
		"group": group,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	rec := TokenRecord{
		Group:       group,
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
		Fingerprint: fingerprint,
	}
	if err := s.store.Put(tokenID(token), rec); err != nil {
		return "", fmt.Errorf("persisting token record: %w", err)
	}

	s.logger.Info("token created", "group", group, "expires_at", expiresAt.Format(time.RFC3339))
	return token, nil
}

// VerifyToken validates signature and expiry first, failing fast on forged
// or expired tokens without touching the store, then consults the
// reloaded store for revocation and fingerprint-binding state.
func (s *Service) VerifyToken(token, fingerprint string) (*TokenInfo, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, failure(ReasonExpired)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, failure(ReasonBadSignature)
		default:
			return nil, failure(ReasonMalformed)
		}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, failure(ReasonMalformed)
	}
	group, _ := claims["group"].(string)

	rec, found, err := s.store.Lookup(tokenID(token))
	if err != nil {
		return nil, fmt.Errorf("reading token store: %w", err)
	}
	if !found {
		// Signature checks out but the store has no record: the store is
		// the source of truth, so the token is not honored.
		return nil, failure(ReasonUnknown)
	}
	if rec.Revoked {
		return nil, failure(ReasonRevoked)
	}
	if rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
		return nil, failure(ReasonFingerprintMismatch)
	}

	return &TokenInfo{Group: group, IssuedAt: rec.IssuedAt, ExpiresAt: rec.ExpiresAt}, nil
}

// RevokeToken tombstones the record for a signed token. Unknown tokens
// report an authentication failure rather than revealing store contents.
func (s *Service) RevokeToken(token string) error {
	ok, err := s.store.Revoke(tokenID(token))
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	if !ok {
		return failure(ReasonUnknown)
	}
	return nil
}

// SecretFingerprint returns a short non-reversible digest of the signing
// secret, safe to log. Two processes printing the same value share a
// secret; that is all it reveals.
func (s *Service) SecretFingerprint() string {
	sum := sha256.Sum256(s.secret)
	return "sha256:" + hex.EncodeToString(sum[:])[:12]
}
