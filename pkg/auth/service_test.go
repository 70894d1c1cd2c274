package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, secret string) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.json")
	store, err := NewFileTokenStore(path, testLogger())
	require.NoError(t, err)
	svc, err := NewService(secret, store, testLogger())
	require.NoError(t, err)
	return svc, path
}

func reasonOf(t *testing.T, err error) FailureReason {
	t.Helper()
	var authErr *Error
	require.True(t, errors.As(err, &authErr), "expected *auth.Error, got %v", err)
	return authErr.Reason
}

func TestService_CreateAndVerify(t *testing.T) {
	svc, _ := newTestService(t, "test-secret")

	token, err := svc.CreateToken("analytics", time.Hour, "")
	require.NoError(t, err)

	info, err := svc.VerifyToken(token, "")
	require.NoError(t, err)
	assert.Equal(t, "analytics", info.Group)
	assert.WithinDuration(t, time.Now().Add(time.Hour), info.ExpiresAt, 5*time.Second)
}

func TestService_EmptySecretRejected(t *testing.T) {
	store, err := NewFileTokenStore(filepath.Join(t.TempDir(), "tokens.json"), testLogger())
	require.NoError(t, err)
	_, err = NewService("", store, testLogger())
	assert.Error(t, err)
}

func TestService_ExpiredToken(t *testing.T) {
	svc, _ := newTestService(t, "test-secret")

	token, err := svc.CreateToken("grp", -time.Minute, "")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token, "")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, ReasonExpired, reasonOf(t, err))
}

func TestService_BadSignature(t *testing.T) {
	svc, path := newTestService(t, "secret-one")

	token, err := svc.CreateToken("grp", time.Hour, "")
	require.NoError(t, err)

	// A service with a different secret rejects the signature even if it
	// shares the token store.
	store, err := NewFileTokenStore(path, testLogger())
	require.NoError(t, err)
	other, err := NewService("secret-two", store, testLogger())
	require.NoError(t, err)

	_, err = other.VerifyToken(token, "")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, ReasonBadSignature, reasonOf(t, err))
}

func TestService_MalformedToken(t *testing.T) {
	svc, _ := newTestService(t, "test-secret")

	_, err := svc.VerifyToken("not.a.token", "")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, ReasonMalformed, reasonOf(t, err))
}

func TestService_UnknownToken(t *testing.T) {
	svcA, _ := newTestService(t, "shared-secret")
	svcB, _ := newTestService(t, "shared-secret")

	// Minted by A, so B's store has no record: a valid signature alone is
	// not enough.
	token, err := svcA.CreateToken("grp", time.Hour, "")
	require.NoError(t, err)

	_, err = svcB.VerifyToken(token, "")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, ReasonUnknown, reasonOf(t, err))
}

func TestService_Revocation(t *testing.T) {
	svc, _ := newTestService(t, "test-secret")

	token, err := svc.CreateToken("grp", time.Hour, "")
	require.NoError(t, err)
	require.NoError(t, svc.RevokeToken(token))

	_, err = svc.VerifyToken(token, "")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, ReasonRevoked, reasonOf(t, err))

	// Revoking a token the store never saw reports unknown.
	bogus, err := svc.CreateToken("grp", time.Hour, "")
	require.NoError(t, err)
	svcOther, _ := newTestService(t, "test-secret")
	err = svcOther.RevokeToken(bogus)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestService_FingerprintBinding(t *testing.T) {
	svc, _ := newTestService(t, "test-secret")

	token, err := svc.CreateToken("grp", time.Hour, "device-a")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token, "device-a")
	assert.NoError(t, err)

	_, err = svc.VerifyToken(token, "device-b")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, ReasonFingerprintMismatch, reasonOf(t, err))

	// Unbound tokens verify from any device.
	free, err := svc.CreateToken("grp", time.Hour, "")
	require.NoError(t, err)
	_, err = svc.VerifyToken(free, "whatever")
	assert.NoError(t, err)
}

func TestService_CrossProcessVisibility(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	storeA, err := NewFileTokenStore(path, testLogger())
	require.NoError(t, err)
	svcA, err := NewService("shared-secret", storeA, testLogger())
	require.NoError(t, err)

	// Second service instance opened before the token exists, simulating
	// a separate process sharing the store file.
	storeB, err := NewFileTokenStore(path, testLogger())
	require.NoError(t, err)
	svcB, err := NewService("shared-secret", storeB, testLogger())
	require.NoError(t, err)

	token, err := svcA.CreateToken("grp", time.Hour, "")
	require.NoError(t, err)

	// B sees the new token without any reload call.
	_, err = svcB.VerifyToken(token, "")
	assert.NoError(t, err)

	// And B's revocation is visible to A.
	require.NoError(t, svcB.RevokeToken(token))
	_, err = svcA.VerifyToken(token, "")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, ReasonRevoked, reasonOf(t, err))
}

func TestService_GenericErrorMessage(t *testing.T) {
	svc, _ := newTestService(t, "test-secret")

	token, err := svc.CreateToken("grp", -time.Minute, "")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token, "")
	require.Error(t, err)
	// The message must not leak the failure reason.
	assert.Equal(t, "authentication failed", err.Error())
}

func TestService_RawTokenNeverPersisted(t *testing.T) {
	svc, path := newTestService(t, "test-secret")

	token, err := svc.CreateToken("grp", time.Hour, "")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), token)
}

func TestService_SecretFingerprint(t *testing.T) {
	svcA, _ := newTestService(t, "same-secret")
	svcB, _ := newTestService(t, "same-secret")
	svcC, _ := newTestService(t, "different")

	assert.Equal(t, svcA.SecretFingerprint(), svcB.SecretFingerprint())
	assert.NotEqual(t, svcA.SecretFingerprint(), svcC.SecretFingerprint())
	assert.True(t, strings.HasPrefix(svcA.SecretFingerprint(), "sha256:"))
	assert.Len(t, svcA.SecretFingerprint(), len("sha256:")+12)
}

func TestFileTokenStore_PreservesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	// Store file written by a newer version with extra per-token fields.
	existing := map[string]map[string]any{
		"someid": {
			"group":      "grp",
			"issued_at":  "2026-01-01T00:00:00Z",
			"expires_at": "2027-01-01T00:00:00Z",
			"revoked":    false,
			"scopes":     []string{"render", "admin"},
		},
	}
	raw, err := json.Marshal(existing)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	store, err := NewFileTokenStore(path, testLogger())
	require.NoError(t, err)

	// Revoke rewrites the record; the unknown field must survive.
	ok, err := store.Revoke("someid")
	require.NoError(t, err)
	require.True(t, ok)

	persisted, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(persisted, &out))
	assert.JSONEq(t, `["render","admin"]`, string(out["someid"]["scopes"]))
	assert.JSONEq(t, `true`, string(out["someid"]["revoked"]))
}

func TestFileTokenStore_MalformedFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("corrupt"), 0o600))

	store, err := NewFileTokenStore(path, testLogger())
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	// Still writable after the reset.
	require.NoError(t, store.Put("id1", TokenRecord{Group: "grp", IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}))
	_, found, err := store.Lookup("id1")
	require.NoError(t, err)
	assert.True(t, found)
}
