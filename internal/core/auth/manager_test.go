package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVendorAPI records the mobile API exchange.
type fakeVendorAPI struct {
	loginCalls   int
	lastUUID     string
	lastUsername string
	lastIdentity string
	loginErr     error

	refreshCalls int
	refreshErr   error
}

func (f *fakeVendorAPI) Login(_ context.Context, mobileUUID, username, identityToken string) (string, string, error) {
	f.loginCalls++
	f.lastUUID = mobileUUID
	f.lastUsername = username
	f.lastIdentity = identityToken
	if f.loginErr != nil {
		return "", "", f.loginErr
	}
	return "vendor-access", "vendor-refresh", nil
}

func (f *fakeVendorAPI) RefreshToken(_ context.Context, _ string) (string, string, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return "", "", f.refreshErr
	}
	return "vendor-access-2", "vendor-refresh-2", nil
}

func TestManagerLoginWithoutMFA(t *testing.T) {
	idp := newFakeIdP(t)
	vendor := &fakeVendorAPI{}
	store := NewStore(t.TempDir(), testLogger())
	store.legacyDir = ""

	mgr := NewManager(testCognito(idp), vendor, store, testLogger())

	res, err := mgr.Login(context.Background(), "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.False(t, res.MFARequired)

	// The vendor exchange uses the identity subject as the mobile UUID
	// and the provider access token as the identity header.
	assert.Equal(t, 1, vendor.loginCalls)
	assert.Equal(t, "user-sub-1", vendor.lastUUID)
	assert.Equal(t, "alice@example.com", vendor.lastUsername)
	assert.Equal(t, "cog-access", vendor.lastIdentity)

	got := store.LoadPair()
	assert.Equal(t, "vendor-access", got.AccessToken)
	assert.Equal(t, "vendor-refresh", got.RefreshToken)

	pending, _ := mgr.MFAPending()
	assert.False(t, pending)
}

func TestManagerLoginWithMFA(t *testing.T) {
	idp := newFakeIdP(t)
	idp.mfaKind = MFAKindSMS
	vendor := &fakeVendorAPI{}
	store := NewStore(t.TempDir(), testLogger())
	store.legacyDir = ""

	mgr := NewManager(testCognito(idp), vendor, store, testLogger())

	res, err := mgr.Login(context.Background(), "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.True(t, res.MFARequired)
	assert.Equal(t, MFAKindSMS, res.MFAKind)

	// Nothing persisted and no vendor call while the code is pending.
	assert.Zero(t, vendor.loginCalls)
	assert.Empty(t, store.LoadPair().AccessToken)

	pending, kind := mgr.MFAPending()
	assert.True(t, pending)
	assert.Equal(t, MFAKindSMS, kind)

	// A rejected code keeps the challenge pending and persists nothing.
	err = mgr.SubmitMFACode(context.Background(), "000000")
	require.Error(t, err)
	assert.Equal(t, KindMfaInvalidCode, KindOf(err))
	pending, _ = mgr.MFAPending()
	assert.True(t, pending)
	assert.Empty(t, store.LoadPair().AccessToken)

	// The correct code completes the login end to end.
	require.NoError(t, mgr.SubmitMFACode(context.Background(), "654321"))
	assert.Equal(t, 1, vendor.loginCalls)
	assert.Equal(t, "vendor-access", store.LoadPair().AccessToken)

	pending, _ = mgr.MFAPending()
	assert.False(t, pending)
}

func TestSubmitMFAWithoutChallenge(t *testing.T) {
	idp := newFakeIdP(t)
	mgr := NewManager(testCognito(idp), &fakeVendorAPI{}, NewStore(t.TempDir(), testLogger()), testLogger())

	err := mgr.SubmitMFACode(context.Background(), "123456")
	assert.Error(t, err)
}

func TestManagerVendorExchangeFailure(t *testing.T) {
	idp := newFakeIdP(t)
	vendor := &fakeVendorAPI{loginErr: errors.New("mobile api down")}
	store := NewStore(t.TempDir(), testLogger())
	store.legacyDir = ""

	mgr := NewManager(testCognito(idp), vendor, store, testLogger())

	_, err := mgr.Login(context.Background(), "alice@example.com", "hunter2")
	require.Error(t, err)
	assert.Empty(t, store.LoadPair().AccessToken)
}
