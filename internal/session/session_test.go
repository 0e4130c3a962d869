package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/consentgate/internal/cache"
	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/store/memory"
)

func newStore(now func() time.Time) *Store {
	users := memory.NewUsers(
		repository.User{ID: "42", Username: "alice", Active: true},
		repository.User{ID: "7", Username: "bob", Active: false},
	)
	return NewStore(StoreDeps{Cache: cache.NewMemory("", time.Hour), Users: users, TTL: time.Hour, Now: now})
}

func TestAuthenticate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(nil)

	sid, exp, err := s.Create(ctx, "42", []string{"pwd", "otp"})
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))

	id, err := s.Authenticate(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, "alice", id.User.Username)
	require.Equal(t, []string{"pwd", "otp"}, id.AMR)
	require.False(t, id.AuthTime.IsZero())

	require.NoError(t, s.Delete(ctx, sid))
	_, err = s.Authenticate(ctx, sid)
	require.ErrorIs(t, err, ErrLoginRequired)
}

func TestAuthenticate_LoginRequired(t *testing.T) {
	s := newStore(nil)
	_, err := s.Authenticate(context.Background(), "")
	require.ErrorIs(t, err, ErrLoginRequired)
	_, err = s.Authenticate(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrLoginRequired)
}

func TestAuthenticate_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newStore(clock)
	sid, _, err := s.Create(context.Background(), "42", nil)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = s.Authenticate(context.Background(), sid)
	require.ErrorIs(t, err, ErrLoginRequired)
}

func TestAuthenticate_Aborted(t *testing.T) {
	ctx := context.Background()
	s := newStore(nil)

	sid, _, err := s.Create(ctx, "7", nil)
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, sid)
	require.ErrorIs(t, err, ErrAborted)

	sid, _, err = s.Create(ctx, "ghost", nil)
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, sid)
	require.ErrorIs(t, err, ErrAborted)
}

func TestAuthenticate_AMRFromSession(t *testing.T) {
	ctx := context.Background()
	s := newStore(nil)

	sid, _, err := s.Create(ctx, "42", nil)
	require.NoError(t, err)
	id, err := s.Authenticate(ctx, sid)
	require.NoError(t, err)
	require.Empty(t, id.AMR)
	require.NotContains(t, id.AMR, "pwd")

	sid, _, err = s.Create(ctx, "42", []string{"fed"})
	require.NoError(t, err)
	id, err = s.Authenticate(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, []string{"fed"}, id.AMR)
}
